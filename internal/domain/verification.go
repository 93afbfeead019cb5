package domain

import "time"

const (
	// DefaultVerificationMaxAttempts bounds micro-deposit guesses per verification.
	DefaultVerificationMaxAttempts = 3
	// DefaultVerificationTTL is how long a verification stays open.
	DefaultVerificationTTL = 7 * 24 * time.Hour
	// MicroDepositCount is the number of deposits sent per micro-deposit challenge.
	MicroDepositCount = 2
)

// VerificationMethod selects how ownership of a connection is proven.
type VerificationMethod string

const (
	VerificationInstant       VerificationMethod = "instant"
	VerificationMicroDeposits VerificationMethod = "micro_deposits"
	VerificationManual        VerificationMethod = "manual"
)

// Valid reports whether m is a known method.
func (m VerificationMethod) Valid() bool {
	switch m {
	case VerificationInstant, VerificationMicroDeposits, VerificationManual:
		return true
	}
	return false
}

// VerificationStatus is the state of a BankVerification.
type VerificationStatus string

const (
	VerificationPending   VerificationStatus = "pending"
	VerificationCompleted VerificationStatus = "completed"
	VerificationFailed    VerificationStatus = "failed"
	VerificationExpired   VerificationStatus = "expired"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s VerificationStatus) IsTerminal() bool {
	return s == VerificationCompleted || s == VerificationFailed || s == VerificationExpired
}

// MicroDepositStatus tracks delivery of a single micro-deposit.
type MicroDepositStatus string

const (
	MicroDepositPending  MicroDepositStatus = "pending"
	MicroDepositSent     MicroDepositStatus = "sent"
	MicroDepositVerified MicroDepositStatus = "verified"
	MicroDepositFailed   MicroDepositStatus = "failed"
)

// MicroDeposit is one of the small deposits sent to prove account ownership.
type MicroDeposit struct {
	ID          string             `json:"id"`
	AmountCents int64              `json:"amount"`
	Status      MicroDepositStatus `json:"status"`
	SentAt      *time.Time         `json:"sent_at,omitempty"`
}

// BankVerification is one verification session for a connection.
type BankVerification struct {
	ID            string             `json:"id"`
	ConnectionID  string             `json:"connection_id"`
	Method        VerificationMethod `json:"method"`
	Status        VerificationStatus `json:"status"`
	Attempts      int                `json:"attempts"`
	MaxAttempts   int                `json:"max_attempts"`
	MicroDeposits []MicroDeposit     `json:"micro_deposits,omitempty"`
	ExpiresAt     time.Time          `json:"expires_at"`
	CompletedAt   *time.Time         `json:"completed_at,omitempty"`
	FailureReason string             `json:"failure_reason,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// AttemptsRemaining returns how many more submissions are allowed.
func (v *BankVerification) AttemptsRemaining() int {
	remaining := v.MaxAttempts - v.Attempts
	if remaining < 0 {
		return 0
	}
	return remaining
}

// MarkDeposits sets every deposit's status.
func (v *BankVerification) MarkDeposits(status MicroDepositStatus) {
	for i := range v.MicroDeposits {
		v.MicroDeposits[i].Status = status
	}
}

// VerificationView is the caller-facing projection of a verification. Deposit
// amounts are never included.
type VerificationView struct {
	ID                string             `json:"id"`
	ConnectionID      string             `json:"connection_id"`
	Method            VerificationMethod `json:"method"`
	Status            VerificationStatus `json:"status"`
	Attempts          int                `json:"attempts"`
	MaxAttempts       int                `json:"max_attempts"`
	AttemptsRemaining int                `json:"attempts_remaining"`
	DepositCount      int                `json:"deposit_count"`
	ExpiresAt         time.Time          `json:"expires_at"`
	CompletedAt       *time.Time         `json:"completed_at,omitempty"`
	FailureReason     string             `json:"failure_reason,omitempty"`
}

// View builds the redacted projection of v.
func (v *BankVerification) View() VerificationView {
	return VerificationView{
		ID:                v.ID,
		ConnectionID:      v.ConnectionID,
		Method:            v.Method,
		Status:            v.Status,
		Attempts:          v.Attempts,
		MaxAttempts:       v.MaxAttempts,
		AttemptsRemaining: v.AttemptsRemaining(),
		DepositCount:      len(v.MicroDeposits),
		ExpiresAt:         v.ExpiresAt,
		CompletedAt:       v.CompletedAt,
		FailureReason:     v.FailureReason,
	}
}

// MicroDepositResult is returned from an amount submission.
type MicroDepositResult struct {
	Success           bool               `json:"success"`
	Status            VerificationStatus `json:"status"`
	AttemptsRemaining int                `json:"attempts_remaining"`
	Error             string             `json:"error,omitempty"`
}
