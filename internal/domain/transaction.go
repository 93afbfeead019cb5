/**
 * @description
 * Domain models for ACH transactions executed against verified connections.
 *
 * @notes
 * - Amounts and fees are `int64` cents; nothing in the processing path uses
 *   floating point for money.
 * - EffectiveDate and settlement dates are calendar dates expressed as midnight
 *   in the processor's location.
 */

package domain

import "time"

// Direction is the side of an ACH movement relative to the connection.
type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

// TransactionStatus is the state of a BankTransaction.
type TransactionStatus string

const (
	TransactionPending    TransactionStatus = "pending"
	TransactionProcessing TransactionStatus = "processing"
	TransactionCompleted  TransactionStatus = "completed"
	TransactionFailed     TransactionStatus = "failed"
	TransactionReversed   TransactionStatus = "reversed"
)

// IsTerminal reports whether the automatic pipeline can no longer move s.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionCompleted || s == TransactionFailed || s == TransactionReversed
}

// InFlight reports whether a transaction in s still blocks removal of its connection.
func (s TransactionStatus) InFlight() bool {
	return s == TransactionPending || s == TransactionProcessing
}

const (
	FailureReasonInsufficientFunds = "Insufficient funds"
	FailureReasonCancelled         = "cancelled"
)

// BankTransaction is one ACH funds movement. Maps to the `bank_transactions` table.
type BankTransaction struct {
	ID                 string            `json:"id"`
	ConnectionID       string            `json:"connection_id"`
	BusinessAccountID  string            `json:"business_account_id,omitempty"`
	Direction          Direction         `json:"direction"`
	AmountCents        int64             `json:"amount"`
	Description        string            `json:"description"`
	ReferenceCode      string            `json:"reference_code"`
	Status             TransactionStatus `json:"status"`
	ExternalID         string            `json:"external_id"`
	EffectiveDate      time.Time         `json:"effective_date"`
	ProcessingFeeCents int64             `json:"processing_fee"`
	ReceiveFeeCents    int64             `json:"receive_fee"`
	FailureReason      string            `json:"failure_reason,omitempty"`
	ProcessedAt        *time.Time        `json:"processed_at,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// SubmitRequest is the input to a transaction submission.
// Direction defaults to debit.
type SubmitRequest struct {
	ConnectionID      string    `json:"connection_id"`
	AmountCents       int64     `json:"amount"`
	Description       string    `json:"description"`
	BusinessAccountID string    `json:"business_account_id,omitempty"`
	Direction         Direction `json:"direction,omitempty"`
}

// ACHProcessingResult is the projected outcome returned immediately from Submit.
type ACHProcessingResult struct {
	TransactionID       string            `json:"transaction_id"`
	ReferenceCode       string            `json:"reference_code"`
	Status              TransactionStatus `json:"status"`
	AmountCents         int64             `json:"amount"`
	EffectiveDate       time.Time         `json:"effective_date"`
	ProcessingFeeCents  int64             `json:"processing_fee"`
	ReceiveFeeCents     int64             `json:"receive_fee"`
	BusinessAccountID   string            `json:"business_account_id,omitempty"`
	EstimatedSettlement time.Time         `json:"estimated_settlement"`
}
