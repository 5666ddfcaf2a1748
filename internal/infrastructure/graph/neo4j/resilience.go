package neo4j

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kirillkom/clinical-ai-assistant/internal/core/domain"
	"github.com/kirillkom/clinical-ai-assistant/internal/infrastructure/resilience"
)

func classifyGraphError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}
	if neo4j.IsConnectivityError(err) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}

	var serverErr *neo4j.Neo4jError
	if errors.As(err, &serverErr) {
		if retryableServerCode(serverErr.Code) {
			return resilience.ErrorClassification{
				Retryable:     true,
				RecordFailure: true,
			}
		}
		// Statement-level failures (bad generated cypher, missing
		// labels) say nothing about graph health.
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}

	return resilience.ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}

func retryableServerCode(code string) bool {
	if strings.HasPrefix(code, "Neo.TransientError.") {
		return true
	}
	switch code {
	case "Neo.ClientError.Security.AuthorizationExpired",
		"Neo.ClientError.Cluster.NotALeader",
		"Neo.ClientError.General.ForbiddenOnReadOnlyDatabase":
		return true
	}
	return false
}

// wrapUnavailable marks outage-class failures so callers can tell a
// down graph from a statement that merely failed.
func wrapUnavailable(operation string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrGraphUnavailable) {
		return err
	}
	if isUnavailable(err) {
		return domain.WrapError(domain.ErrGraphUnavailable, operation, err)
	}
	return fmt.Errorf("%s: %w", operation, err)
}

func isUnavailable(err error) bool {
	if resilience.IsCircuitOpen(err) || neo4j.IsConnectivityError(err) {
		return true
	}
	var serverErr *neo4j.Neo4jError
	if errors.As(err, &serverErr) {
		return serverErr.Code == "Neo.TransientError.General.DatabaseUnavailable"
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
