package domain

import "time"

// Routing keys published on the events exchange.
const (
	EventConnectionLinked      = "connection.linked"
	EventConnectionRemoved     = "connection.removed"
	EventVerificationCompleted = "verification.completed"
	EventVerificationFailed    = "verification.failed"
	EventVerificationExpired   = "verification.expired"
	EventTransactionPrefix     = "transaction."
	EventVerificationInitiated = "verification.initiated"
)

// Event is the envelope published to the message broker.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// TransactionEvent is the payload for transaction status changes.
type TransactionEvent struct {
	TransactionID     string            `json:"transaction_id"`
	ConnectionID      string            `json:"connection_id"`
	BusinessAccountID string            `json:"business_account_id,omitempty"`
	Status            TransactionStatus `json:"status"`
	AmountCents       int64             `json:"amount"`
	FailureReason     string            `json:"failure_reason,omitempty"`
}

// VerificationEvent is the payload for verification state changes. It never
// carries deposit amounts.
type VerificationEvent struct {
	VerificationID string             `json:"verification_id"`
	ConnectionID   string             `json:"connection_id"`
	Method         VerificationMethod `json:"method"`
	Status         VerificationStatus `json:"status"`
	FailureReason  string             `json:"failure_reason,omitempty"`
}

// ConnectionEvent is the payload for connection lifecycle changes.
type ConnectionEvent struct {
	ConnectionID string `json:"connection_id"`
	TenantID     string `json:"tenant_id"`
	BankName     string `json:"bank_name,omitempty"`
	AccountMask  string `json:"account_mask,omitempty"`
}
