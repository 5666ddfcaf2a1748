package ollama

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/kirillkom/clinical-ai-assistant/internal/core/domain"
	"github.com/kirillkom/clinical-ai-assistant/internal/infrastructure/resilience"
)

// classifyOllamaError decides retry and breaker behavior for model
// calls. Connection failures and busy-backend statuses count as
// outages; a 4xx means the prompt or the model name is wrong and a
// retry cannot fix it.
func classifyOllamaError(err error) resilience.ErrorClassification {
	var statusErr *HTTPStatusError
	var netErr net.Error
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	case errors.As(err, &statusErr):
		if retryableStatus(statusErr.StatusCode) {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return resilience.ErrorClassification{}
	case errors.As(err, &netErr):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}

func retryableStatus(statusCode int) bool {
	return statusCode == http.StatusRequestTimeout ||
		statusCode == http.StatusTooManyRequests ||
		statusCode >= 500
}

// wrapModelUnavailable marks outage-class failures so the pipeline can
// report a degraded model backend instead of a generic error.
func wrapModelUnavailable(operation string, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrModelUnavailable) {
		return err
	}
	if classifyOllamaError(err).Retryable {
		return domain.WrapError(domain.ErrModelUnavailable, "ollama "+operation, err)
	}
	return err
}
