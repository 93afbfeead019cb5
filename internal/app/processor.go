/**
 * @description
 * TransactionProcessor executes ACH transactions against verified connections.
 * Submit returns the projected result immediately; the pending -> processing ->
 * completed|failed advance is driven by clock timers and persisted through the
 * repository so later reads observe it.
 *
 * @notes
 * - Each advance is a compare-and-set on the stored status, so a cancelled or
 *   otherwise terminal transaction is never moved by a late timer.
 * - Fees are integer cents computed with decimal arithmetic.
 */

package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/banklink-service/internal/calendar"
	"github.com/transfa/banklink-service/internal/clock"
	"github.com/transfa/banklink-service/internal/domain"
	"github.com/transfa/banklink-service/internal/store"
)

const settlementBusinessDays = 2

// errStaleAdvance aborts a scheduled advance whose precondition no longer holds.
var errStaleAdvance = errors.New("transaction already moved past this step")

// TransactionProcessor owns BankTransaction records.
type TransactionProcessor struct {
	repo     store.Repository
	ledger   *BusinessAccountLedger
	calendar *calendar.Calendar
	clock    clock.Clock
	random   RandomSource
	locker   Locker
	events   *eventEmitter
	logger   *slog.Logger
	settings Settings

	mu     sync.Mutex
	timers map[string]clock.Timer
	closed bool
}

func connectionLockKey(id string) string { return "connection:" + id }

func businessAccountLockKey(id string) string { return "business_account:" + id }

// EffectiveDate is the first business day of cal strictly after at, in loc.
func EffectiveDate(cal *calendar.Calendar, at time.Time, loc *time.Location) time.Time {
	return cal.NextBusinessDay(at.In(loc))
}

// EstimatedSettlement is two business days after the effective date.
func EstimatedSettlement(cal *calendar.Calendar, effective time.Time) time.Time {
	return cal.AddBusinessDays(effective, settlementBusinessDays)
}

// Submit validates and records a transaction, schedules its advance and returns
// the projected result.
func (p *TransactionProcessor) Submit(ctx context.Context, req domain.SubmitRequest) (*domain.ACHProcessingResult, error) {
	if req.AmountCents <= 0 {
		return nil, domain.NewValidationError("amount", "must be a positive number of cents")
	}
	direction := req.Direction
	if direction == "" {
		direction = domain.DirectionDebit
	}
	if direction != domain.DirectionDebit && direction != domain.DirectionCredit {
		return nil, domain.NewValidationError("direction", "must be debit or credit")
	}
	businessAccountID := strings.TrimSpace(req.BusinessAccountID)

	// Limit totals are read and the new row inserted under the same locks.
	// The connection key is always taken before the account key.
	unlockConn, err := p.locker.Lock(ctx, connectionLockKey(req.ConnectionID))
	if err != nil {
		return nil, err
	}
	defer unlockConn()
	if businessAccountID != "" {
		unlockAccount, err := p.locker.Lock(ctx, businessAccountLockKey(businessAccountID))
		if err != nil {
			return nil, err
		}
		defer unlockAccount()
	}

	conn, err := p.repo.GetConnection(ctx, req.ConnectionID)
	if err != nil {
		return nil, err
	}
	now := p.clock.Now()
	if !conn.IsVerified {
		return nil, domain.ErrConnectionNotVerified
	}
	if !conn.CanMove(direction, now) {
		return nil, domain.ErrPermissionDenied
	}
	if conn.DailyLimit != nil && req.AmountCents > *conn.DailyLimit {
		return nil, domain.ErrDailyLimitExceeded
	}
	if conn.MonthlyLimit != nil {
		monthTotal, err := p.connectionMonthTotal(ctx, conn.ID, now)
		if err != nil {
			return nil, err
		}
		if monthTotal+req.AmountCents > *conn.MonthlyLimit {
			return nil, domain.ErrMonthlyLimitExceeded
		}
	}

	var receiveFee int64
	if businessAccountID != "" {
		account, err := p.ledger.GetAccount(ctx, businessAccountID)
		if err != nil {
			return nil, err
		}
		if !account.CanReceivePayments {
			return nil, domain.ErrAccountCannotReceive
		}
		periodTotal, err := p.ledger.PeriodReceiveTotal(ctx, account.ID, now)
		if err != nil {
			return nil, err
		}
		if !p.ledger.IsWithinReceiveLimits(account, req.AmountCents, periodTotal) {
			return nil, domain.ErrReceiveLimitExceeded
		}
		receiveFee = p.ledger.ChargeReceiveFee(account, req.AmountCents)
	}

	effective := EffectiveDate(p.calendar, now, p.settings.Location)
	tx := &domain.BankTransaction{
		ID:                 uuid.NewString(),
		ConnectionID:       conn.ID,
		BusinessAccountID:  businessAccountID,
		Direction:          direction,
		AmountCents:        req.AmountCents,
		Description:        strings.TrimSpace(req.Description),
		ReferenceCode:      "ACH-" + randomCode(p.random, 8),
		Status:             domain.TransactionPending,
		EffectiveDate:      effective,
		ProcessingFeeCents: ProcessingFee(req.AmountCents, p.settings.ProcessingFeeBps),
		ReceiveFeeCents:    receiveFee,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := p.repo.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}
	p.logger.Info("ach transaction submitted", "transaction_id", tx.ID, "connection_id", conn.ID, "amount", tx.AmountCents, "direction", direction)
	p.events.transaction(ctx, tx)
	p.scheduleAdvance(tx.ID)

	return &domain.ACHProcessingResult{
		TransactionID:       tx.ID,
		ReferenceCode:       tx.ReferenceCode,
		Status:              tx.Status,
		AmountCents:         tx.AmountCents,
		EffectiveDate:       effective,
		ProcessingFeeCents:  tx.ProcessingFeeCents,
		ReceiveFeeCents:     receiveFee,
		BusinessAccountID:   businessAccountID,
		EstimatedSettlement: EstimatedSettlement(p.calendar, effective),
	}, nil
}

func (p *TransactionProcessor) connectionMonthTotal(ctx context.Context, connectionID string, now time.Time) (int64, error) {
	txs, err := p.repo.ListTransactionsByConnection(ctx, connectionID)
	if err != nil {
		return 0, err
	}
	from, to := monthWindow(now, p.settings.Location)
	var total int64
	for _, tx := range txs {
		if tx.Status == domain.TransactionFailed || tx.Status == domain.TransactionReversed {
			continue
		}
		if tx.CreatedAt.Before(from) || !tx.CreatedAt.Before(to) {
			continue
		}
		total += tx.AmountCents
	}
	return total, nil
}

func (p *TransactionProcessor) setTimer(id string, d time.Duration, fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.timers[id] = p.clock.AfterFunc(d, fn)
}

func (p *TransactionProcessor) forget(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.timers, id)
}

func (p *TransactionProcessor) scheduleAdvance(id string) {
	p.setTimer(id, p.settings.ProcessingDelay, func() { p.advanceToProcessing(id) })
}

func (p *TransactionProcessor) advanceToProcessing(id string) {
	ctx := context.Background()
	now := p.clock.Now()
	tx, err := p.repo.UpdateTransaction(ctx, id, func(tx *domain.BankTransaction) error {
		if tx.Status != domain.TransactionPending {
			return errStaleAdvance
		}
		tx.Status = domain.TransactionProcessing
		tx.ExternalID = "ach_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
		tx.UpdatedAt = now
		return nil
	})
	if err != nil {
		p.forget(id)
		if !errors.Is(err, errStaleAdvance) {
			p.logger.Error("failed to advance transaction to processing", "transaction_id", id, "error", err)
		}
		return
	}
	p.events.transaction(ctx, tx)
	p.setTimer(id, p.settings.SettlementDelay, func() { p.settle(id) })
}

func (p *TransactionProcessor) settle(id string) {
	defer p.forget(id)

	ctx := context.Background()
	now := p.clock.Now()
	failed := p.random.Float64() < p.settings.SettlementFailureRate
	tx, err := p.repo.UpdateTransaction(ctx, id, func(tx *domain.BankTransaction) error {
		if tx.Status != domain.TransactionProcessing {
			return errStaleAdvance
		}
		processedAt := now
		tx.ProcessedAt = &processedAt
		tx.UpdatedAt = now
		if failed {
			tx.Status = domain.TransactionFailed
			tx.FailureReason = domain.FailureReasonInsufficientFunds
			return nil
		}
		tx.Status = domain.TransactionCompleted
		return nil
	})
	if err != nil {
		if !errors.Is(err, errStaleAdvance) {
			p.logger.Error("failed to settle transaction", "transaction_id", id, "error", err)
		}
		return
	}
	p.logger.Info("ach transaction settled", "transaction_id", id, "status", tx.Status)
	p.events.transaction(ctx, tx)
}

// Get returns the transaction with id.
func (p *TransactionProcessor) Get(ctx context.Context, id string) (*domain.BankTransaction, error) {
	return p.repo.GetTransaction(ctx, id)
}

// ListByConnection returns every transaction for a connection.
func (p *TransactionProcessor) ListByConnection(ctx context.Context, connectionID string) ([]domain.BankTransaction, error) {
	return p.repo.ListTransactionsByConnection(ctx, connectionID)
}

// Cancel fails a pending transaction with reason "cancelled". Once processing
// has begun the transaction can no longer be cancelled.
func (p *TransactionProcessor) Cancel(ctx context.Context, id string) (*domain.BankTransaction, error) {
	now := p.clock.Now()
	tx, err := p.repo.UpdateTransaction(ctx, id, func(tx *domain.BankTransaction) error {
		if tx.Status != domain.TransactionPending {
			return domain.ErrTransactionNotPending
		}
		tx.Status = domain.TransactionFailed
		tx.FailureReason = domain.FailureReasonCancelled
		tx.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if timer, ok := p.timers[id]; ok {
		timer.Stop()
		delete(p.timers, id)
	}
	p.mu.Unlock()

	p.logger.Info("ach transaction cancelled", "transaction_id", id)
	p.events.transaction(ctx, tx)
	return tx, nil
}

// Reverse claws back a completed transaction. It is never triggered automatically.
func (p *TransactionProcessor) Reverse(ctx context.Context, id string, reason string) (*domain.BankTransaction, error) {
	now := p.clock.Now()
	tx, err := p.repo.UpdateTransaction(ctx, id, func(tx *domain.BankTransaction) error {
		if tx.Status != domain.TransactionCompleted {
			return domain.ErrTransactionNotSettled
		}
		tx.Status = domain.TransactionReversed
		tx.FailureReason = strings.TrimSpace(reason)
		if tx.FailureReason == "" {
			tx.FailureReason = "reversed"
		}
		tx.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.logger.Warn("ach transaction reversed", "transaction_id", id, "reason", tx.FailureReason)
	p.events.transaction(ctx, tx)
	return tx, nil
}

// PendingAdvances returns the number of transactions with a scheduled advance.
func (p *TransactionProcessor) PendingAdvances() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.timers)
}

// Close stops every scheduled advance. Transactions keep their stored status.
func (p *TransactionProcessor) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for id, timer := range p.timers {
		timer.Stop()
		delete(p.timers, id)
	}
}
