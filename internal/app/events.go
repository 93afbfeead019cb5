package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/banklink-service/internal/clock"
	"github.com/transfa/banklink-service/internal/domain"
)

// EventPublisher is the subset of the broker producer the engine needs.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// eventEmitter publishes best-effort domain events. Failures are logged and
// never change the outcome of the operation that produced the event.
type eventEmitter struct {
	publisher EventPublisher
	exchange  string
	clock     clock.Clock
	logger    *slog.Logger
}

func (e *eventEmitter) emit(ctx context.Context, routingKey string, payload any) {
	if e == nil || e.publisher == nil {
		return
	}
	event := domain.Event{
		ID:         uuid.NewString(),
		Type:       routingKey,
		OccurredAt: e.clock.Now().UTC(),
		Payload:    payload,
	}
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.publisher.Publish(publishCtx, e.exchange, routingKey, event); err != nil {
		e.logger.Warn("event publish failed", "component", "events", "routing_key", routingKey, "error", err)
	}
}

func (e *eventEmitter) transaction(ctx context.Context, tx *domain.BankTransaction) {
	e.emit(ctx, domain.EventTransactionPrefix+string(tx.Status), domain.TransactionEvent{
		TransactionID:     tx.ID,
		ConnectionID:      tx.ConnectionID,
		BusinessAccountID: tx.BusinessAccountID,
		Status:            tx.Status,
		AmountCents:       tx.AmountCents,
		FailureReason:     tx.FailureReason,
	})
}

func (e *eventEmitter) verification(ctx context.Context, v *domain.BankVerification) {
	var key string
	switch v.Status {
	case domain.VerificationCompleted:
		key = domain.EventVerificationCompleted
	case domain.VerificationFailed:
		key = domain.EventVerificationFailed
	case domain.VerificationExpired:
		key = domain.EventVerificationExpired
	default:
		key = domain.EventVerificationInitiated
	}
	e.emit(ctx, key, domain.VerificationEvent{
		VerificationID: v.ID,
		ConnectionID:   v.ConnectionID,
		Method:         v.Method,
		Status:         v.Status,
		FailureReason:  v.FailureReason,
	})
}
