package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/kirillkom/clinical-ai-assistant/internal/config"
	"github.com/kirillkom/clinical-ai-assistant/internal/core/domain"
	"github.com/kirillkom/clinical-ai-assistant/internal/infrastructure/graph/neo4j"
	"github.com/kirillkom/clinical-ai-assistant/internal/infrastructure/graphload"
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "graphload",
		Usage: "Import a drug knowledge dataset into the Neo4j graph",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "json",
				Usage: "Path to a JSON dataset file",
			},
			&cli.StringFlag{
				Name:  "xlsx",
				Usage: "Path to an XLSX drug workbook",
			},
			&cli.BoolFlag{
				Name:  "wipe",
				Usage: "Delete all existing graph data before importing",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Print the generated statements without touching the graph",
			},
		},
		Action: loadCommand,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadCommand(c *cli.Context) error {
	jsonPath := c.String("json")
	xlsxPath := c.String("xlsx")
	if (jsonPath == "") == (xlsxPath == "") {
		return fmt.Errorf("exactly one of --json or --xlsx is required")
	}

	var entries []graphload.DrugEntry
	var err error
	if jsonPath != "" {
		entries, err = graphload.LoadJSON(jsonPath)
	} else {
		entries, err = graphload.LoadXLSX(xlsxPath)
	}
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}

	statements := graphload.Build(entries)
	log.Printf("dataset: %d drugs, %d statements", len(entries), len(statements))

	if c.Bool("dry-run") {
		printStatements(statements)
		return nil
	}

	cfg := config.Load()
	store, err := neo4j.New(neo4j.Options{
		URI:      cfg.Neo4jURI,
		Username: cfg.Neo4jUsername,
		Password: cfg.Neo4jPassword,
		Database: cfg.Neo4jDatabase,
	})
	if err != nil {
		return fmt.Errorf("init graph store: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = store.Close(closeCtx)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := store.VerifyConnectivity(ctx); err != nil {
		return err
	}

	if c.Bool("wipe") {
		log.Printf("wiping existing graph data")
		if err := store.Wipe(ctx); err != nil {
			return fmt.Errorf("wipe graph: %w", err)
		}
	}

	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure graph schema: %w", err)
	}
	if err := store.Apply(ctx, statements); err != nil {
		return fmt.Errorf("apply statements: %w", err)
	}

	log.Printf("import complete: %d statements applied", len(statements))
	return nil
}

func printStatements(statements []domain.GraphStatement) {
	for _, statement := range statements {
		fmt.Println(strings.TrimSpace(statement.Cypher))
		if len(statement.Params) > 0 {
			fmt.Printf("  params: %v\n", statement.Params)
		}
		fmt.Println()
	}
}
