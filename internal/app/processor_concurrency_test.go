package app

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transfa/banklink-service/internal/clock"
	"github.com/transfa/banklink-service/internal/domain"
	"github.com/transfa/banklink-service/internal/store"
)

// slowTotalsRepository widens the window between reading limit totals and
// inserting the new transaction.
type slowTotalsRepository struct {
	store.Repository
	delay time.Duration
}

func (r slowTotalsRepository) ListTransactionsByConnection(ctx context.Context, connectionID string) ([]domain.BankTransaction, error) {
	time.Sleep(r.delay)
	return r.Repository.ListTransactionsByConnection(ctx, connectionID)
}

func (r slowTotalsRepository) SumBusinessAccountReceipts(ctx context.Context, accountID string, from, to time.Time) (int64, error) {
	time.Sleep(r.delay)
	return r.Repository.SumBusinessAccountReceipts(ctx, accountID, from, to)
}

func newSlowEngine(t *testing.T) *Engine {
	t.Helper()
	engine := NewEngine(slowTotalsRepository{Repository: store.NewMemoryRepository(), delay: 20 * time.Millisecond}, Options{
		Clock:    clock.NewFake(friday),
		Random:   &scriptedRandom{},
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Settings: DefaultSettings(),
	})
	t.Cleanup(engine.Close)
	return engine
}

func submitConcurrently(engine *Engine, reqs []domain.SubmitRequest) []error {
	errs := make([]error, len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req domain.SubmitRequest) {
			defer wg.Done()
			_, errs[i] = engine.SubmitTransaction(context.Background(), req)
		}(i, req)
	}
	wg.Wait()
	return errs
}

func TestSubmit_ConcurrentMonthlyLimitHolds(t *testing.T) {
	engine := newSlowEngine(t)
	ctx := context.Background()
	conn, err := engine.LinkConnection(ctx, "tenant-1", testLink(), "acct-checking")
	require.NoError(t, err)
	_, err = engine.Registry.Update(ctx, conn.ID, domain.ConnectionUpdate{MonthlyLimit: int64Ptr(1000)})
	require.NoError(t, err)

	reqs := make([]domain.SubmitRequest, 5)
	for i := range reqs {
		reqs[i] = domain.SubmitRequest{ConnectionID: conn.ID, AmountCents: 600}
	}
	errs := submitConcurrently(engine, reqs)

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrMonthlyLimitExceeded)
	}
	assert.Equal(t, 1, accepted)

	txs, err := engine.Processor.ListByConnection(ctx, conn.ID)
	require.NoError(t, err)
	var total int64
	for _, tx := range txs {
		total += tx.AmountCents
	}
	assert.LessOrEqual(t, total, int64(1000))
}

func TestSubmit_ConcurrentReceiveLimitHoldsAcrossConnections(t *testing.T) {
	engine := newSlowEngine(t)
	ctx := context.Background()
	checking, err := engine.LinkConnection(ctx, "tenant-1", testLink(), "acct-checking")
	require.NoError(t, err)
	savings, err := engine.LinkConnection(ctx, "tenant-2", testLink(), "acct-savings")
	require.NoError(t, err)
	account, err := engine.Ledger.CreateAccount(ctx, BusinessAccountInput{
		OrganizationID:      "org-1",
		BankName:            "Operating Bank",
		RoutingNumber:       "021000021",
		AccountNumber:       "000123456789",
		CanReceivePayments:  true,
		MonthlyReceiveLimit: int64Ptr(1000),
	})
	require.NoError(t, err)

	reqs := []domain.SubmitRequest{
		{ConnectionID: checking.ID, AmountCents: 600, BusinessAccountID: account.ID},
		{ConnectionID: savings.ID, AmountCents: 600, BusinessAccountID: account.ID},
		{ConnectionID: checking.ID, AmountCents: 600, BusinessAccountID: account.ID},
		{ConnectionID: savings.ID, AmountCents: 600, BusinessAccountID: account.ID},
	}
	errs := submitConcurrently(engine, reqs)

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrReceiveLimitExceeded)
	}
	assert.Equal(t, 1, accepted)

	received, err := engine.Ledger.PeriodReceiveTotal(ctx, account.ID, friday)
	require.NoError(t, err)
	assert.Equal(t, int64(600), received)
}
