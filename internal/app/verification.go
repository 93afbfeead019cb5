package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/banklink-service/internal/clock"
	"github.com/transfa/banklink-service/internal/domain"
	"github.com/transfa/banklink-service/internal/store"
)

const (
	minMicroDepositCents = 1
	maxMicroDepositCents = 99

	reasonAttemptsExceeded = "maximum verification attempts exceeded"
	reasonManualRejected   = "manual review rejected"
	reasonExpired          = "verification window elapsed"
)

// errNotDue aborts an expiry update for a record that is not yet due.
var errNotDue = errors.New("verification not yet due for expiry")

// VerificationEngine runs ownership challenges against connections.
// Every mutation of a given verification is serialized through the locker.
type VerificationEngine struct {
	repo     store.Repository
	clock    clock.Clock
	random   RandomSource
	locker   Locker
	events   *eventEmitter
	logger   *slog.Logger
	settings Settings
}

func verificationLockKey(id string) string { return "verification:" + id }

// Initiate opens a verification. Instant verifications complete immediately;
// micro-deposit verifications send two deposits; manual ones await review.
// Any older pending verification for the connection is superseded.
func (e *VerificationEngine) Initiate(ctx context.Context, connectionID string, method domain.VerificationMethod) (*domain.BankVerification, error) {
	if !method.Valid() {
		return nil, domain.NewValidationError("method", "must be instant, micro_deposits or manual")
	}

	now := e.clock.Now()
	v := &domain.BankVerification{
		ID:           uuid.NewString(),
		ConnectionID: connectionID,
		Method:       method,
		Status:       domain.VerificationPending,
		MaxAttempts:  e.settings.VerificationMaxAttempts,
		ExpiresAt:    now.Add(e.settings.VerificationTTL),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var connectionStatus domain.ConnectionStatus
	switch method {
	case domain.VerificationInstant:
		completedAt := now
		v.Status = domain.VerificationCompleted
		v.CompletedAt = &completedAt
		connectionStatus = domain.ConnectionVerified
	case domain.VerificationMicroDeposits:
		v.MicroDeposits = make([]domain.MicroDeposit, domain.MicroDepositCount)
		for i := range v.MicroDeposits {
			sentAt := now
			v.MicroDeposits[i] = domain.MicroDeposit{
				ID:          uuid.NewString(),
				AmountCents: int64(minMicroDepositCents + e.random.IntN(maxMicroDepositCents-minMicroDepositCents+1)),
				Status:      domain.MicroDepositSent,
				SentAt:      &sentAt,
			}
		}
		connectionStatus = domain.ConnectionMicroDepositsSent
	case domain.VerificationManual:
		connectionStatus = domain.ConnectionPending
	}

	_, err := e.repo.CreateVerification(ctx, v, func(c *domain.BankConnection) error {
		c.VerificationMethod = method
		c.SetVerificationStatus(connectionStatus, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("verification initiated", "verification_id", v.ID, "connection_id", connectionID, "method", method, "status", v.Status)
	e.events.verification(ctx, v)
	return v.Clone(), nil
}

// Get returns the verification with id.
func (e *VerificationEngine) Get(ctx context.Context, id string) (*domain.BankVerification, error) {
	return e.repo.GetVerification(ctx, id)
}

// Latest returns the newest verification of a connection.
func (e *VerificationEngine) Latest(ctx context.Context, connectionID string) (*domain.BankVerification, error) {
	return e.repo.LatestVerification(ctx, connectionID)
}

func amountsMatch(deposits []domain.MicroDeposit, amounts []int64) bool {
	if len(deposits) != len(amounts) {
		return false
	}
	for i, d := range deposits {
		if d.AmountCents != amounts[i] {
			return false
		}
	}
	return true
}

// expire moves a pending verification and, unless already verified, its connection to expired.
func expire(v *domain.BankVerification, c *domain.BankConnection, now time.Time) {
	v.Status = domain.VerificationExpired
	v.FailureReason = reasonExpired
	v.UpdatedAt = now
	v.MarkDeposits(domain.MicroDepositFailed)
	if c.VerificationStatus != domain.ConnectionVerified {
		c.SetVerificationStatus(domain.ConnectionExpired, now)
	}
}

// SubmitMicroDepositAmounts checks the caller's amounts against the deposits
// positionally. Every accepted call consumes an attempt. The stored amounts are
// never returned.
func (e *VerificationEngine) SubmitMicroDepositAmounts(ctx context.Context, verificationID string, amounts []int64) (*domain.MicroDepositResult, error) {
	unlock, err := e.locker.Lock(ctx, verificationLockKey(verificationID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := e.clock.Now()
	expired := false
	v, _, err := e.repo.UpdateVerification(ctx, verificationID, func(v *domain.BankVerification, c *domain.BankConnection) error {
		if v.Status != domain.VerificationPending {
			return domain.ErrVerificationNotPending
		}
		if v.Method != domain.VerificationMicroDeposits {
			return domain.ErrWrongVerificationType
		}
		if !now.Before(v.ExpiresAt) {
			expire(v, c, now)
			expired = true
			return nil
		}

		v.Attempts++
		v.UpdatedAt = now
		switch {
		case amountsMatch(v.MicroDeposits, amounts):
			completedAt := now
			v.Status = domain.VerificationCompleted
			v.CompletedAt = &completedAt
			v.MarkDeposits(domain.MicroDepositVerified)
			c.SetVerificationStatus(domain.ConnectionVerified, now)
		case v.Attempts >= v.MaxAttempts:
			v.Status = domain.VerificationFailed
			v.FailureReason = reasonAttemptsExceeded
			v.MarkDeposits(domain.MicroDepositFailed)
			c.SetVerificationStatus(domain.ConnectionFailed, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if expired {
		e.logger.Info("verification expired on submission", "verification_id", v.ID)
		e.events.verification(ctx, v)
		return nil, domain.ErrVerificationExpired
	}

	result := &domain.MicroDepositResult{
		Success:           v.Status == domain.VerificationCompleted,
		Status:            v.Status,
		AttemptsRemaining: v.AttemptsRemaining(),
	}
	switch v.Status {
	case domain.VerificationCompleted:
		e.logger.Info("micro-deposit verification completed", "verification_id", v.ID, "attempts", v.Attempts)
		e.events.verification(ctx, v)
	case domain.VerificationFailed:
		result.Error = reasonAttemptsExceeded
		e.logger.Warn("micro-deposit verification failed", "verification_id", v.ID, "attempts", v.Attempts)
		e.events.verification(ctx, v)
	default:
		result.Error = "amounts do not match"
	}
	return result, nil
}

// CompleteManual records a back-office decision on a manual verification.
func (e *VerificationEngine) CompleteManual(ctx context.Context, verificationID string, approved bool, reason string) (*domain.BankVerification, error) {
	unlock, err := e.locker.Lock(ctx, verificationLockKey(verificationID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := e.clock.Now()
	expired := false
	v, _, err := e.repo.UpdateVerification(ctx, verificationID, func(v *domain.BankVerification, c *domain.BankConnection) error {
		if v.Status != domain.VerificationPending {
			return domain.ErrVerificationNotPending
		}
		if v.Method != domain.VerificationManual {
			return domain.ErrWrongVerificationType
		}
		if !now.Before(v.ExpiresAt) {
			expire(v, c, now)
			expired = true
			return nil
		}
		v.UpdatedAt = now
		if approved {
			completedAt := now
			v.Status = domain.VerificationCompleted
			v.CompletedAt = &completedAt
			c.SetVerificationStatus(domain.ConnectionVerified, now)
			return nil
		}
		v.Status = domain.VerificationFailed
		v.FailureReason = strings.TrimSpace(reason)
		if v.FailureReason == "" {
			v.FailureReason = reasonManualRejected
		}
		c.SetVerificationStatus(domain.ConnectionFailed, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.events.verification(ctx, v)
	if expired {
		return nil, domain.ErrVerificationExpired
	}
	e.logger.Info("manual verification reviewed", "verification_id", v.ID, "approved", approved)
	return v, nil
}

// ExpireStale moves every pending verification past its expiry to expired and
// returns how many were changed.
func (e *VerificationEngine) ExpireStale(ctx context.Context) (int, error) {
	now := e.clock.Now()
	ids, err := e.repo.ListExpiredPendingVerificationIDs(ctx, now)
	if err != nil {
		return 0, err
	}

	expiredCount := 0
	for _, id := range ids {
		v, err := e.expireOne(ctx, id, now)
		if err != nil {
			if errors.Is(err, domain.ErrVerificationNotPending) || errors.Is(err, errNotDue) || errors.Is(err, domain.ErrNotFound) {
				continue
			}
			e.logger.Error("failed to expire verification", "verification_id", id, "error", err)
			continue
		}
		expiredCount++
		e.events.verification(ctx, v)
	}
	return expiredCount, nil
}

func (e *VerificationEngine) expireOne(ctx context.Context, id string, now time.Time) (*domain.BankVerification, error) {
	unlock, err := e.locker.Lock(ctx, verificationLockKey(id))
	if err != nil {
		return nil, err
	}
	defer unlock()

	v, _, err := e.repo.UpdateVerification(ctx, id, func(v *domain.BankVerification, c *domain.BankConnection) error {
		if v.Status != domain.VerificationPending {
			return domain.ErrVerificationNotPending
		}
		if now.Before(v.ExpiresAt) {
			return errNotDue
		}
		expire(v, c, now)
		return nil
	})
	return v, err
}
