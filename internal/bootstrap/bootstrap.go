// Package bootstrap wires configuration, infrastructure adapters, and
// use cases into the runnable applications behind cmd/.
package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/clinical-ai-assistant/internal/config"
	"github.com/kirillkom/clinical-ai-assistant/internal/core/ports"
	"github.com/kirillkom/clinical-ai-assistant/internal/core/usecase"
	"github.com/kirillkom/clinical-ai-assistant/internal/infrastructure/chunking"
	"github.com/kirillkom/clinical-ai-assistant/internal/infrastructure/extractor"
	"github.com/kirillkom/clinical-ai-assistant/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/clinical-ai-assistant/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/clinical-ai-assistant/internal/infrastructure/graph/neo4j"
	"github.com/kirillkom/clinical-ai-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/clinical-ai-assistant/internal/infrastructure/llm/openaicompat"
	"github.com/kirillkom/clinical-ai-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/clinical-ai-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/clinical-ai-assistant/internal/infrastructure/rerank/bge"
	"github.com/kirillkom/clinical-ai-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/clinical-ai-assistant/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/clinical-ai-assistant/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/clinical-ai-assistant/internal/infrastructure/workerpool"
	"github.com/kirillkom/clinical-ai-assistant/internal/observability/metrics"
)

// App is the full dependency graph for the API and indexer processes.
type App struct {
	Config config.Config
	Assets config.Assets

	Queue ports.MessageQueue
	Repo  ports.DocumentRepository
	Graph *neo4j.Store

	RetrieveUC *usecase.RetrieveUseCase
	AssessUC   *usecase.AssessUseCase
	DrugInfoUC *usecase.DrugInfoUseCase
	IngestUC   *usecase.IngestGuidelineUseCase
	ProcessUC  *usecase.ProcessGuidelineUseCase

	APIMetrics     *metrics.HTTPServerMetrics
	IndexerMetrics *metrics.WorkerMetrics

	closeFn func()
}

// QueryApp carries only the read-side services. The MCP server uses it
// so a Postgres or NATS outage cannot take the query tools down.
type QueryApp struct {
	Config config.Config
	Assets config.Assets

	RetrieveUC *usecase.RetrieveUseCase
	AssessUC   *usecase.AssessUseCase
	DrugInfoUC *usecase.DrugInfoUseCase

	closeFn func()
}

// New builds everything. External model and graph backends are dialed
// lazily so their outages degrade answers at request time instead of
// failing boot; Postgres and NATS connect here because ingestion cannot
// run without them.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	assets, err := config.LoadAssets(cfg.AssetsDir)
	if err != nil {
		return nil, fmt.Errorf("load data assets: %w", err)
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewGuidelineRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	services, err := newQueryServices(cfg, assets)
	if err != nil {
		return nil, err
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: services.executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	apiMetrics := metrics.NewHTTPServerMetrics("api")
	apiMetrics.RegisterRerankPoolGauges("api", services.pool.Running, services.pool.Cap())
	indexerMetrics := metrics.NewWorkerMetrics("indexer")

	ingestUC := usecase.NewIngestGuidelineUseCase(repo, storage, queue)

	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	textExtractor := extractor.NewSelector(pdf.NewExtractor(storage), plaintext.NewExtractor(storage))
	processUC := usecase.NewProcessGuidelineUseCase(repo, textExtractor, chunker, services.embedder, services.index)

	return &App{
		Config: cfg,
		Assets: assets,

		Queue: queue,
		Repo:  repo,
		Graph: services.graph,

		RetrieveUC: services.retrieveUC,
		AssessUC:   services.assessUC,
		DrugInfoUC: services.drugInfoUC,
		IngestUC:   ingestUC,
		ProcessUC:  processUC,

		APIMetrics:     apiMetrics,
		IndexerMetrics: indexerMetrics,

		closeFn: func() {
			queue.Close()
			services.close()
			_ = db.Close()
		},
	}, nil
}

// NewQuery builds the read-side services only.
func NewQuery(cfg config.Config) (*QueryApp, error) {
	assets, err := config.LoadAssets(cfg.AssetsDir)
	if err != nil {
		return nil, fmt.Errorf("load data assets: %w", err)
	}

	services, err := newQueryServices(cfg, assets)
	if err != nil {
		return nil, err
	}

	return &QueryApp{
		Config: cfg,
		Assets: assets,

		RetrieveUC: services.retrieveUC,
		AssessUC:   services.assessUC,
		DrugInfoUC: services.drugInfoUC,

		closeFn: services.close,
	}, nil
}

// queryServices is the shared read-side assembly: retrieval over
// Qdrant, reranking over the scorer pool, the graph store, and the
// three query use cases on top.
type queryServices struct {
	executor *resilience.Executor
	embedder *ollama.Embedder
	index    *qdrant.Client
	graph    *neo4j.Store
	pool     *workerpool.Pool

	retrieveUC *usecase.RetrieveUseCase
	assessUC   *usecase.AssessUseCase
	drugInfoUC *usecase.DrugInfoUseCase
}

func newQueryServices(cfg config.Config, assets config.Assets) (*queryServices, error) {
	// One executor shared by all backends; breakers are keyed by
	// operation name so a tripped graph breaker never blocks NATS.
	executor := resilience.NewExecutor(resilience.DefaultConfig())

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel)
	embedder := ollama.NewEmbedder(ollamaClient)

	generator, err := newGenerator(cfg, ollamaClient)
	if err != nil {
		return nil, err
	}

	index := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, embedder)
	scorer := bge.New(cfg.RerankURL)

	graph, err := neo4j.New(neo4j.Options{
		URI:                cfg.Neo4jURI,
		Username:           cfg.Neo4jUsername,
		Password:           cfg.Neo4jPassword,
		Database:           cfg.Neo4jDatabase,
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init graph store: %w", err)
	}

	pool, err := workerpool.New(cfg.RerankPoolSize)
	if err != nil {
		return nil, fmt.Errorf("init rerank pool: %w", err)
	}

	retrieveUC := usecase.NewRetrieveUseCase(index, scorer, graph, generator, pool, usecase.RetrieveConfig{
		HybridTopK:         cfg.HybridTopK,
		RerankTopK:         cfg.RerankTopK,
		RRFConstant:        cfg.RRFConstant,
		ExampleThreshold:   cfg.ExampleThreshold,
		PromptExamples:     cfg.PromptExamples,
		TextBranchTimeout:  cfg.TextBranchTimeout,
		GraphBranchTimeout: cfg.GraphBranchTimeout,
		SchemaText:         assets.SchemaText,
		Examples:           assets.Examples,
		MetricAliases:      assets.MetricAliases,
		GraphCues:          assets.GraphCues,
		Lexicon: usecase.FusionLexicon{
			Affirmative: assets.Affirmative,
			Negation:    assets.Negation,
		},
	})
	assessUC := usecase.NewAssessUseCase(graph, assets.MetricAliases, assets.DrugAliases)
	drugInfoUC := usecase.NewDrugInfoUseCase(graph, assets.DrugAliases)

	return &queryServices{
		executor: executor,
		embedder: embedder,
		index:    index,
		graph:    graph,
		pool:     pool,

		retrieveUC: retrieveUC,
		assessUC:   assessUC,
		drugInfoUC: drugInfoUC,
	}, nil
}

func (s *queryServices) close() {
	s.pool.Release()
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.graph.Close(closeCtx)
}

func newGenerator(cfg config.Config, ollamaClient *ollama.Client) (ports.TextGenerator, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.LLMProvider)) {
	case "openai":
		generator, err := openaicompat.New(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel)
		if err != nil {
			return nil, fmt.Errorf("init openai generator: %w", err)
		}
		return generator, nil
	default:
		return ollama.NewGenerator(ollamaClient), nil
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func (a *QueryApp) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
