package nats

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/infrastructure/resilience"
)

const publishOperation = resilience.FamilyQueue + ".publish"

// connectionErrors are the client states in which a publish may succeed on
// the next attempt.
var connectionErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrConnectionDraining,
	nats.ErrDisconnected,
	nats.ErrReconnectBufExceeded,
}

func isConnectionError(err error) bool {
	for _, target := range connectionErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// classifyPublishError retries analysis request publishes only on connection
// trouble. Payloads or subjects the server refuses are not held against the
// breaker.
func classifyPublishError(err error) resilience.ErrorClassification {
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err):
		return resilience.ErrorClassification{RecordFailure: true}
	case isConnectionError(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	case errors.Is(err, nats.ErrMaxPayload), errors.Is(err, nats.ErrBadSubject):
		return resilience.ErrorClassification{}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

// publishError names the exam that could not be queued. Broker outages become
// domain.ErrTemporary, which the API reports as 503.
func publishError(req domain.AnalysisRequest, err error) error {
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	cause := fmt.Errorf("exam %s: %w", req.ExamID, err)
	if isConnectionError(err) || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, "publish analysis request", cause)
	}
	return fmt.Errorf("publish analysis request: %w", cause)
}
