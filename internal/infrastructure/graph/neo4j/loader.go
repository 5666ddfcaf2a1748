package neo4j

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kirillkom/clinical-ai-assistant/internal/core/domain"
)

const applyBatchSize = 200

// Constraints and indexes match the dataset shape: drug, brand, and
// category names are unique; diseases and metrics are looked up by
// name.
var schemaStatements = []string{
	"CREATE CONSTRAINT drug_name_unique IF NOT EXISTS FOR (d:Drug) REQUIRE d.name IS UNIQUE",
	"CREATE CONSTRAINT brand_name_unique IF NOT EXISTS FOR (b:Brand) REQUIRE b.name IS UNIQUE",
	"CREATE CONSTRAINT category_name_unique IF NOT EXISTS FOR (c:Category) REQUIRE c.name IS UNIQUE",
	"CREATE INDEX drug_id_idx IF NOT EXISTS FOR (d:Drug) ON (d.id)",
	"CREATE INDEX disease_name_idx IF NOT EXISTS FOR (dis:Disease) ON (dis.name)",
	"CREATE INDEX metric_name_idx IF NOT EXISTS FOR (m:Metric) ON (m.name)",
}

// EnsureSchema creates constraints and indexes. Each statement runs in
// its own auto-commit transaction; Neo4j rejects schema changes inside
// explicit transactions.
func (s *Store) EnsureSchema(ctx context.Context) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite, DatabaseName: s.database})
	defer session.Close(ctx)

	for _, statement := range schemaStatements {
		result, err := session.Run(ctx, statement, nil)
		if err != nil {
			return wrapUnavailable("neo4j.schema", err)
		}
		if _, err := result.Consume(ctx); err != nil {
			return wrapUnavailable("neo4j.schema", err)
		}
	}
	return nil
}

// Apply runs loader statements in write transactions of applyBatchSize.
func (s *Store) Apply(ctx context.Context, statements []domain.GraphStatement) error {
	if len(statements) == 0 {
		return nil
	}
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite, DatabaseName: s.database})
	defer session.Close(ctx)

	for start := 0; start < len(statements); start += applyBatchSize {
		batch := statements[start:min(start+applyBatchSize, len(statements))]
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			for _, statement := range batch {
				cursor, err := tx.Run(ctx, statement.Cypher, statement.Params)
				if err != nil {
					return nil, fmt.Errorf("apply %q: %w", statementLabel(statement.Cypher), err)
				}
				if _, err := cursor.Consume(ctx); err != nil {
					return nil, err
				}
			}
			return nil, nil
		})
		if err != nil {
			return wrapUnavailable("neo4j.apply", err)
		}
	}
	return nil
}

// Wipe removes every node and relationship. Only the loader's --wipe
// path calls this.
func (s *Store) Wipe(ctx context.Context) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite, DatabaseName: s.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		cursor, err := tx.Run(ctx, "MATCH (n) DETACH DELETE n", nil)
		if err != nil {
			return nil, err
		}
		return cursor.Consume(ctx)
	})
	if err != nil {
		return wrapUnavailable("neo4j.wipe", err)
	}
	return nil
}

func statementLabel(cypher string) string {
	line := strings.TrimSpace(cypher)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	if runes := []rune(line); len(runes) > 80 {
		line = string(runes[:80])
	}
	return line
}
