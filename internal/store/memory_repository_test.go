package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transfa/banklink-service/internal/domain"
)

var baseTime = time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)

func newConnection(id, tenant string, created time.Time) *domain.BankConnection {
	return &domain.BankConnection{
		ID:                 id,
		TenantID:           tenant,
		BankName:           "First Platypus Bank",
		AccountType:        domain.AccountTypeChecking,
		AccountMask:        "****0000",
		VerificationStatus: domain.ConnectionPending,
		IsActive:           true,
		CreatedAt:          created,
		UpdatedAt:          created,
	}
}

func TestMemoryRepository_FirstConnectionBecomesDefault(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	first := newConnection("c1", "tenant-1", baseTime)
	require.NoError(t, repo.CreateConnection(ctx, first))
	second := newConnection("c2", "tenant-1", baseTime.Add(time.Minute))
	require.NoError(t, repo.CreateConnection(ctx, second))

	assert.True(t, first.IsDefault)
	assert.False(t, second.IsDefault)

	_, err := repo.UpdateConnection(ctx, "c2", func(c *domain.BankConnection) error {
		c.IsDefault = true
		return nil
	})
	require.NoError(t, err)

	list, err := repo.ListConnectionsByTenant(ctx, "tenant-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c1", list[0].ID)
	assert.False(t, list[0].IsDefault)
	assert.True(t, list[1].IsDefault)
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.CreateConnection(ctx, newConnection("c1", "t", baseTime)))

	got, err := repo.GetConnection(ctx, "c1")
	require.NoError(t, err)
	got.BankName = "mutated"

	again, err := repo.GetConnection(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "First Platypus Bank", again.BankName)
}

func TestMemoryRepository_ReturnedPointersDoNotAliasStoredState(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	limit := int64(50000)
	expires := baseTime.Add(24 * time.Hour)
	conn := newConnection("c1", "t", baseTime)
	conn.DailyLimit = &limit
	conn.LastVerifiedAt = &expires
	conn.Permissions.Debit = domain.Permission{Granted: true, ExpiresAt: &expires}
	require.NoError(t, repo.CreateConnection(ctx, conn))

	limit = 7
	got, err := repo.GetConnection(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(50000), *got.DailyLimit)

	*got.DailyLimit = 1
	*got.LastVerifiedAt = baseTime
	*got.Permissions.Debit.ExpiresAt = baseTime
	listed, err := repo.ListConnectionsByTenant(ctx, "t")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	*listed[0].DailyLimit = 2

	again, err := repo.GetConnection(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(50000), *again.DailyLimit)
	assert.Equal(t, expires, *again.LastVerifiedAt)
	assert.Equal(t, expires, *again.Permissions.Debit.ExpiresAt)

	require.NoError(t, repo.CreateRoute(ctx, &domain.PaymentRoute{ID: "r1", OrganizationID: "org", Rules: []domain.RoutingRule{
		{Condition: domain.ConditionPropertyType, Operator: domain.OperatorContains, Value: []any{"retail", "office"}},
	}}))
	route, err := repo.GetRoute(ctx, "r1")
	require.NoError(t, err)
	route.Rules[0].Value.([]any)[0] = "mutated"
	route, err = repo.GetRoute(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []any{"retail", "office"}, route.Rules[0].Value)
}

func TestMemoryRepository_UpdateConnectionAbortsOnError(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.CreateConnection(ctx, newConnection("c1", "t", baseTime)))

	boom := errors.New("boom")
	_, err := repo.UpdateConnection(ctx, "c1", func(c *domain.BankConnection) error {
		c.BankName = "partial"
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, _ := repo.GetConnection(ctx, "c1")
	assert.Equal(t, "First Platypus Bank", got.BankName)

	_, err = repo.UpdateConnection(ctx, "missing", func(*domain.BankConnection) error { return nil })
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryRepository_DeleteConnectionRefusesInFlight(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.CreateConnection(ctx, newConnection("c1", "t", baseTime)))
	require.NoError(t, repo.CreateTransaction(ctx, &domain.BankTransaction{
		ID: "tx1", ConnectionID: "c1", AmountCents: 100, Status: domain.TransactionProcessing, CreatedAt: baseTime,
	}))

	err := repo.DeleteConnection(ctx, "c1")
	require.ErrorIs(t, err, domain.ErrConnectionInUse)
	assert.ErrorIs(t, err, domain.ErrState)

	_, err = repo.UpdateTransaction(ctx, "tx1", func(tx *domain.BankTransaction) error {
		tx.Status = domain.TransactionCompleted
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, repo.DeleteConnection(ctx, "c1"))

	_, err = repo.GetConnection(ctx, "c1")
	assert.ErrorIs(t, err, domain.ErrConnectionNotFound)
	assert.ErrorIs(t, repo.DeleteConnection(ctx, "c1"), domain.ErrNotFound)
}

func TestMemoryRepository_CreateVerificationSupersedesPending(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.CreateConnection(ctx, newConnection("c1", "t", baseTime)))

	older := &domain.BankVerification{ID: "v1", ConnectionID: "c1", Status: domain.VerificationPending, MaxAttempts: 3, CreatedAt: baseTime}
	_, err := repo.CreateVerification(ctx, older, nil)
	require.NoError(t, err)

	newer := &domain.BankVerification{ID: "v2", ConnectionID: "c1", Status: domain.VerificationPending, MaxAttempts: 3, CreatedAt: baseTime.Add(time.Hour)}
	conn, err := repo.CreateVerification(ctx, newer, func(c *domain.BankConnection) error {
		c.SetVerificationStatus(domain.ConnectionMicroDepositsSent, newer.CreatedAt)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ConnectionMicroDepositsSent, conn.VerificationStatus)

	got, err := repo.GetVerification(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationFailed, got.Status)
	assert.Equal(t, SupersededReason, got.FailureReason)

	latest, err := repo.LatestVerification(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "v2", latest.ID)
}

func TestMemoryRepository_UpdateVerificationWritesBothRecords(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.CreateConnection(ctx, newConnection("c1", "t", baseTime)))
	_, err := repo.CreateVerification(ctx, &domain.BankVerification{
		ID: "v1", ConnectionID: "c1", Status: domain.VerificationPending, MaxAttempts: 3,
		ExpiresAt: baseTime.Add(time.Hour), CreatedAt: baseTime,
	}, nil)
	require.NoError(t, err)

	v, c, err := repo.UpdateVerification(ctx, "v1", func(v *domain.BankVerification, c *domain.BankConnection) error {
		v.Status = domain.VerificationCompleted
		c.SetVerificationStatus(domain.ConnectionVerified, baseTime)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationCompleted, v.Status)
	assert.True(t, c.IsVerified)

	stored, _ := repo.GetConnection(ctx, "c1")
	assert.True(t, stored.IsVerified)

	ids, err := repo.ListExpiredPendingVerificationIDs(ctx, baseTime.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestMemoryRepository_SumBusinessAccountReceipts(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.CreateConnection(ctx, newConnection("c1", "t", baseTime)))

	txs := []domain.BankTransaction{
		{ID: "a", ConnectionID: "c1", BusinessAccountID: "biz", AmountCents: 1000, Status: domain.TransactionCompleted, CreatedAt: baseTime},
		{ID: "b", ConnectionID: "c1", BusinessAccountID: "biz", AmountCents: 2000, Status: domain.TransactionPending, CreatedAt: baseTime},
		{ID: "c", ConnectionID: "c1", BusinessAccountID: "biz", AmountCents: 4000, Status: domain.TransactionFailed, CreatedAt: baseTime},
		{ID: "d", ConnectionID: "c1", BusinessAccountID: "other", AmountCents: 8000, Status: domain.TransactionCompleted, CreatedAt: baseTime},
		{ID: "e", ConnectionID: "c1", BusinessAccountID: "biz", AmountCents: 16000, Status: domain.TransactionCompleted, CreatedAt: baseTime.AddDate(0, -1, 0)},
	}
	for i := range txs {
		require.NoError(t, repo.CreateTransaction(ctx, &txs[i]))
	}

	total, err := repo.SumBusinessAccountReceipts(ctx, "biz", baseTime.AddDate(0, 0, -3), baseTime.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(3000), total)
}

func TestMemoryRepository_RoutesOrderedByPriority(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.CreateRoute(ctx, &domain.PaymentRoute{ID: "r2", OrganizationID: "org", Priority: 2, CreatedAt: baseTime}))
	require.NoError(t, repo.CreateRoute(ctx, &domain.PaymentRoute{ID: "r1", OrganizationID: "org", Priority: 1, CreatedAt: baseTime.Add(time.Hour)}))

	routes, err := repo.ListRoutes(ctx, "org")
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, "r1", routes[0].ID)

	require.NoError(t, repo.DeleteRoute(ctx, "r1"))
	assert.ErrorIs(t, repo.DeleteRoute(ctx, "r1"), domain.ErrRouteNotFound)
}
