package neo4j

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kirillkom/clinical-ai-assistant/internal/core/domain"
	"github.com/kirillkom/clinical-ai-assistant/internal/infrastructure/resilience"
)

const factsMetricQuery = `
MATCH (d:Drug)-[r:CONTRAINDICATED_IF]->(m:Metric)
WHERE d.name CONTAINS $drug OR $drug CONTAINS d.name OR toLower(coalesce(d.en_name, '')) = toLower($drug)
RETURN d.name AS drug, m.name AS metric, r.operator AS operator,
       r.value AS value, r.value_min AS value_min, r.value_max AS value_max,
       r.unit AS unit, coalesce(r.severity, 'WARNING') AS severity`

const factsDiseaseQuery = `
MATCH (d:Drug)-[r:FORBIDDEN_FOR]->(dis:Disease)
WHERE d.name CONTAINS $drug OR $drug CONTAINS d.name OR toLower(coalesce(d.en_name, '')) = toLower($drug)
RETURN d.name AS drug, dis.name AS disease, coalesce(r.severity, '禁忌') AS severity`

const drugLookupQuery = `
MATCH (d:Drug)
WHERE d.name = $drug OR toLower(coalesce(d.en_name, '')) = toLower($drug) OR d.name CONTAINS $drug
OPTIONAL MATCH (d)-[:BELONGS_TO]->(c:Category)
OPTIONAL MATCH (b:Brand)-[:IS_BRAND_OF]->(d)
OPTIONAL MATCH (d)-[:TREATS]->(t:Disease)
RETURN d.name AS name, coalesce(d.en_name, '') AS en_name,
       coalesce(d.max_daily_dose, '') AS max_daily_dose,
       coalesce(d.starting_dose, '') AS starting_dose,
       coalesce(d.timing, '') AS timing,
       coalesce(d.route, '') AS route,
       coalesce(c.name, '') AS category,
       collect(DISTINCT b.name) AS brands,
       collect(DISTINCT t.name) AS treats
ORDER BY size(name) ASC
LIMIT 1`

const dosageAdjustQuery = `
MATCH (d:Drug {name: $drug})-[r:DOSAGE_ADJUST_IF]->(m:Metric)
RETURN d.name AS drug, m.name AS metric, r.operator AS operator,
       r.value AS value, r.value_min AS value_min, r.value_max AS value_max,
       r.unit AS unit, coalesce(r.severity, 'INFO') AS severity`

type Options struct {
	URI                string
	Username           string
	Password           string
	Database           string
	ResilienceExecutor *resilience.Executor
}

// Store serves cypher reads for the retrieval pipeline, the typed fact
// lookups for the risk detector, and the write path for the dataset
// loader.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
	executor *resilience.Executor
}

func New(options Options) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(options.URI, neo4j.BasicAuth(options.Username, options.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return &Store{
		driver:   driver,
		database: options.Database,
		executor: options.ResilienceExecutor,
	}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// VerifyConnectivity pings the server. The API process starts without
// it so a graph outage degrades answers instead of blocking boot; the
// dataset loader calls it before importing.
func (s *Store) VerifyConnectivity(ctx context.Context) error {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return domain.WrapError(domain.ErrGraphUnavailable, "verify graph connectivity", err)
	}
	return nil
}

// Run executes a read-only statement. Generated statements are
// validated upstream; the read transaction rejects mutations anyway.
func (s *Store) Run(ctx context.Context, cypher string, params map[string]any) ([]domain.GraphRecord, error) {
	trimmed := strings.TrimSpace(cypher)
	if trimmed == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "graph query", fmt.Errorf("empty statement"))
	}
	return s.readRows(ctx, "neo4j.query", trimmed, params)
}

// FactsForDrug loads every contraindication rule attached to a drug.
// Matching is bidirectional on the Chinese name so that profile entries
// like 二甲双胍缓释片 still hit the 二甲双胍 node, and exact on the
// English name.
func (s *Store) FactsForDrug(ctx context.Context, drug string) ([]domain.StructuredFact, error) {
	name := strings.TrimSpace(drug)
	if name == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "graph facts", fmt.Errorf("empty drug name"))
	}
	params := map[string]any{"drug": name}

	metricRows, err := s.readRows(ctx, "neo4j.facts", factsMetricQuery, params)
	if err != nil {
		return nil, err
	}
	diseaseRows, err := s.readRows(ctx, "neo4j.facts", factsDiseaseQuery, params)
	if err != nil {
		return nil, err
	}

	facts := make([]domain.StructuredFact, 0, len(metricRows)+len(diseaseRows))
	for _, row := range metricRows {
		if fact, ok := metricFactFromRow(row, domain.PredicateContraindicatedIf); ok {
			facts = append(facts, fact)
		}
	}
	for _, row := range diseaseRows {
		if fact, ok := diseaseFactFromRow(row); ok {
			facts = append(facts, fact)
		}
	}
	return facts, nil
}

func (s *Store) DrugInfo(ctx context.Context, drug string) (*domain.DrugInfo, error) {
	name := strings.TrimSpace(drug)
	if name == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "drug info", fmt.Errorf("empty drug name"))
	}

	rows, err := s.readRows(ctx, "neo4j.drug_info", drugLookupQuery, map[string]any{"drug": name})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.WrapError(domain.ErrDrugNotFound, "drug info", fmt.Errorf("no graph node matches %q", name))
	}
	info := drugInfoFromRow(rows[0])

	facts, err := s.FactsForDrug(ctx, info.Name)
	if err != nil {
		return nil, err
	}
	info.Contraindications = facts

	adjustRows, err := s.readRows(ctx, "neo4j.drug_info", dosageAdjustQuery, map[string]any{"drug": info.Name})
	if err != nil {
		return nil, err
	}
	for _, row := range adjustRows {
		if fact, ok := metricFactFromRow(row, domain.PredicateDosageAdjustIf); ok {
			info.DosageAdjustments = append(info.DosageAdjustments, fact)
		}
	}
	return info, nil
}

func (s *Store) readRows(ctx context.Context, operation, cypher string, params map[string]any) ([]domain.GraphRecord, error) {
	var rows []domain.GraphRecord
	call := func(callCtx context.Context) error {
		collected, err := s.collectRows(callCtx, cypher, params)
		if err != nil {
			return err
		}
		rows = collected
		return nil
	}

	var err error
	if s.executor != nil {
		err = s.executor.Execute(ctx, operation, call, classifyGraphError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, wrapUnavailable(operation, err)
	}
	return rows, nil
}

func (s *Store) collectRows(ctx context.Context, cypher string, params map[string]any) ([]domain.GraphRecord, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead, DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		cursor, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		records, err := cursor.Collect(ctx)
		if err != nil {
			return nil, err
		}
		rows := make([]domain.GraphRecord, 0, len(records))
		for _, record := range records {
			row := make(domain.GraphRecord, len(record.Keys))
			for i, key := range record.Keys {
				row[key] = record.Values[i]
			}
			rows = append(rows, row)
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.GraphRecord), nil
}

func metricFactFromRow(row domain.GraphRecord, predicate domain.Predicate) (domain.StructuredFact, bool) {
	fact := domain.StructuredFact{
		Drug:      stringAt(row, "drug"),
		Predicate: predicate,
		Object:    stringAt(row, "metric"),
		Operator:  domain.Operator(strings.ToUpper(stringAt(row, "operator"))),
		Unit:      stringAt(row, "unit"),
		Severity:  domain.ParseSeverity(stringAt(row, "severity")),
	}
	if fact.Drug == "" || fact.Object == "" {
		return domain.StructuredFact{}, false
	}

	if minValue, ok := floatAt(row, "value_min"); ok {
		fact.Operator = domain.OperatorBetween
		fact.Threshold = minValue
		fact.ThresholdMax, _ = floatAt(row, "value_max")
		return fact, true
	}
	value, ok := floatAt(row, "value")
	if !ok {
		return domain.StructuredFact{}, false
	}
	fact.Threshold = value
	return fact, true
}

func diseaseFactFromRow(row domain.GraphRecord) (domain.StructuredFact, bool) {
	fact := domain.StructuredFact{
		Drug:      stringAt(row, "drug"),
		Predicate: domain.PredicateForbiddenFor,
		Object:    stringAt(row, "disease"),
		Severity:  domain.ParseSeverity(stringAt(row, "severity")),
	}
	if fact.Drug == "" || fact.Object == "" {
		return domain.StructuredFact{}, false
	}
	return fact, true
}

func drugInfoFromRow(row domain.GraphRecord) *domain.DrugInfo {
	info := &domain.DrugInfo{
		Name:     stringAt(row, "name"),
		EnName:   stringAt(row, "en_name"),
		Category: stringAt(row, "category"),
		Brands:   stringSliceAt(row, "brands"),
		Treats:   stringSliceAt(row, "treats"),
	}
	info.DosageInfo = dosageSummary(
		stringAt(row, "max_daily_dose"),
		stringAt(row, "starting_dose"),
		stringAt(row, "timing"),
		stringAt(row, "route"),
	)
	return info
}

func dosageSummary(maxDaily, starting, timing, route string) string {
	parts := make([]string, 0, 4)
	if starting != "" {
		parts = append(parts, "起始剂量 "+starting)
	}
	if maxDaily != "" {
		parts = append(parts, "最大日剂量 "+maxDaily)
	}
	if timing != "" {
		parts = append(parts, "用药时机 "+timing)
	}
	if route != "" {
		parts = append(parts, "给药途径 "+route)
	}
	return strings.Join(parts, "；")
}

func stringAt(row domain.GraphRecord, key string) string {
	value, ok := row[key]
	if !ok || value == nil {
		return ""
	}
	text, ok := value.(string)
	if !ok {
		return strings.TrimSpace(fmt.Sprint(value))
	}
	return strings.TrimSpace(text)
}

func floatAt(row domain.GraphRecord, key string) (float64, bool) {
	switch value := row[key].(type) {
	case float64:
		return value, true
	case int64:
		return float64(value), true
	case int:
		return float64(value), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// stringSliceAt sorts collected values because collect() order is not
// stable across runs.
func stringSliceAt(row domain.GraphRecord, key string) []string {
	value, ok := row[key]
	if !ok || value == nil {
		return nil
	}
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		text, ok := item.(string)
		if !ok || strings.TrimSpace(text) == "" {
			continue
		}
		out = append(out, strings.TrimSpace(text))
	}
	sort.Strings(out)
	return out
}
