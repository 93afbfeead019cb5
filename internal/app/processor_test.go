package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transfa/banklink-service/internal/calendar"
	"github.com/transfa/banklink-service/internal/domain"
)

func TestEffectiveDateAndSettlement(t *testing.T) {
	effective := EffectiveDate(calendar.Weekdays(), friday, time.UTC)
	assert.Equal(t, time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC), effective)
	assert.Equal(t, time.Date(2024, time.March, 13, 0, 0, 0, 0, time.UTC), EstimatedSettlement(calendar.Weekdays(), effective))

	tuesday := time.Date(2024, time.March, 12, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, time.March, 13, 0, 0, 0, 0, time.UTC), EffectiveDate(calendar.Weekdays(), tuesday, time.UTC))
}

func TestSubmit_FederalHolidaysShiftDates(t *testing.T) {
	h := newHarness(t, func(s *Settings) { s.ObserveFederalHolidays = true })
	conn := h.link(t, "tenant-1")
	h.clock.Set(time.Date(2024, time.July, 3, 10, 0, 0, 0, time.UTC))

	res, err := h.engine.SubmitTransaction(context.Background(), domain.SubmitRequest{ConnectionID: conn.ID, AmountCents: 1000})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.July, 5, 0, 0, 0, 0, time.UTC), res.EffectiveDate)
	assert.Equal(t, time.Date(2024, time.July, 9, 0, 0, 0, 0, time.UTC), res.EstimatedSettlement)

	plain := newHarness(t, nil)
	conn = plain.link(t, "tenant-1")
	plain.clock.Set(time.Date(2024, time.July, 3, 10, 0, 0, 0, time.UTC))
	res, err = plain.engine.SubmitTransaction(context.Background(), domain.SubmitRequest{ConnectionID: conn.ID, AmountCents: 1000})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.July, 4, 0, 0, 0, 0, time.UTC), res.EffectiveDate)
}

func TestSubmit_ReturnsProjectedResult(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.link(t, "tenant-1")

	res, err := h.engine.SubmitTransaction(context.Background(), domain.SubmitRequest{
		ConnectionID: conn.ID,
		AmountCents:  100000,
		Description:  "  March rent ",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.TransactionPending, res.Status)
	assert.Equal(t, int64(100000), res.AmountCents)
	assert.Equal(t, int64(750), res.ProcessingFeeCents)
	assert.Zero(t, res.ReceiveFeeCents)
	assert.Equal(t, time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC), res.EffectiveDate)
	assert.Equal(t, time.Date(2024, time.March, 13, 0, 0, 0, 0, time.UTC), res.EstimatedSettlement)
	assert.True(t, strings.HasPrefix(res.ReferenceCode, "ACH-"))
	assert.Len(t, res.ReferenceCode, 12)

	tx, err := h.engine.Processor.Get(context.Background(), res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, "March rent", tx.Description)
	assert.Equal(t, domain.DirectionDebit, tx.Direction)
	assert.Equal(t, 1, h.engine.Processor.PendingAdvances())
}

func TestSubmit_Rejections(t *testing.T) {
	h := newHarness(t, manualVerify)
	ctx := context.Background()
	conn := h.link(t, "tenant-1")

	_, err := h.engine.SubmitTransaction(ctx, domain.SubmitRequest{ConnectionID: conn.ID, AmountCents: 0})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.engine.SubmitTransaction(ctx, domain.SubmitRequest{ConnectionID: conn.ID, AmountCents: 100, Direction: "sideways"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.engine.SubmitTransaction(ctx, domain.SubmitRequest{ConnectionID: "missing", AmountCents: 100})
	assert.ErrorIs(t, err, domain.ErrConnectionNotFound)

	_, err = h.engine.SubmitTransaction(ctx, domain.SubmitRequest{ConnectionID: conn.ID, AmountCents: 100})
	assert.ErrorIs(t, err, domain.ErrConnectionNotVerified)
	assert.ErrorIs(t, err, domain.ErrDomain)
	assert.Contains(t, err.Error(), "not verified")

	_, err = h.engine.InitiateVerification(ctx, conn.ID, domain.VerificationInstant)
	require.NoError(t, err)
	inactive := false
	_, err = h.engine.Registry.Update(ctx, conn.ID, domain.ConnectionUpdate{IsActive: &inactive})
	require.NoError(t, err)
	_, err = h.engine.SubmitTransaction(ctx, domain.SubmitRequest{ConnectionID: conn.ID, AmountCents: 100})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestSubmit_DailyLimitIsInclusive(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	conn := h.link(t, "tenant-1")
	_, err := h.engine.Registry.Update(ctx, conn.ID, domain.ConnectionUpdate{DailyLimit: int64Ptr(500000)})
	require.NoError(t, err)

	_, err = h.engine.SubmitTransaction(ctx, domain.SubmitRequest{ConnectionID: conn.ID, AmountCents: 500000})
	require.NoError(t, err)

	_, err = h.engine.SubmitTransaction(ctx, domain.SubmitRequest{ConnectionID: conn.ID, AmountCents: 500001})
	assert.ErrorIs(t, err, domain.ErrDailyLimitExceeded)
	assert.ErrorIs(t, err, domain.ErrLimitExceeded)
}

func TestSubmit_MonthlyLimitIsCumulative(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	conn := h.link(t, "tenant-1")
	_, err := h.engine.Registry.Update(ctx, conn.ID, domain.ConnectionUpdate{MonthlyLimit: int64Ptr(100000)})
	require.NoError(t, err)

	_, err = h.engine.SubmitTransaction(ctx, domain.SubmitRequest{ConnectionID: conn.ID, AmountCents: 60000})
	require.NoError(t, err)
	_, err = h.engine.SubmitTransaction(ctx, domain.SubmitRequest{ConnectionID: conn.ID, AmountCents: 40001})
	assert.ErrorIs(t, err, domain.ErrMonthlyLimitExceeded)
	_, err = h.engine.SubmitTransaction(ctx, domain.SubmitRequest{ConnectionID: conn.ID, AmountCents: 40000})
	require.NoError(t, err)

	h.clock.Set(time.Date(2024, time.April, 1, 9, 0, 0, 0, time.UTC))
	_, err = h.engine.SubmitTransaction(ctx, domain.SubmitRequest{ConnectionID: conn.ID, AmountCents: 100000})
	require.NoError(t, err)
}

func TestTransaction_AdvancesToCompleted(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	conn := h.link(t, "tenant-1")

	res, err := h.engine.SubmitTransaction(ctx, domain.SubmitRequest{ConnectionID: conn.ID, AmountCents: 2500})
	require.NoError(t, err)

	h.clock.Advance(2 * time.Second)
	tx, err := h.engine.Processor.Get(ctx, res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionProcessing, tx.Status)
	assert.True(t, strings.HasPrefix(tx.ExternalID, "ach_"))
	assert.Len(t, tx.ExternalID, 20)
	assert.Nil(t, tx.ProcessedAt)

	h.clock.Advance(5 * time.Second)
	tx, err = h.engine.Processor.Get(ctx, res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionCompleted, tx.Status)
	require.NotNil(t, tx.ProcessedAt)
	assert.Equal(t, friday.Add(7*time.Second), *tx.ProcessedAt)
	assert.Empty(t, tx.FailureReason)
	assert.Zero(t, h.engine.Processor.PendingAdvances())

	h.clock.Advance(time.Hour)
	again, err := h.engine.Processor.Get(ctx, res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, tx.UpdatedAt, again.UpdatedAt)

	keys := h.publisher.keys()
	assert.Contains(t, keys, "transaction.pending")
	assert.Contains(t, keys, "transaction.processing")
	assert.Contains(t, keys, "transaction.completed")
}

func TestTransaction_SettlementFailure(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	conn := h.link(t, "tenant-1")
	h.random.floats = []float64{0.01}

	res, err := h.engine.SubmitTransaction(ctx, domain.SubmitRequest{ConnectionID: conn.ID, AmountCents: 2500})
	require.NoError(t, err)
	h.clock.Advance(7 * time.Second)

	tx, err := h.engine.Processor.Get(ctx, res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionFailed, tx.Status)
	assert.Equal(t, "Insufficient funds", tx.FailureReason)
	require.NotNil(t, tx.ProcessedAt)
}

func TestCancel(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	conn := h.link(t, "tenant-1")

	res, err := h.engine.SubmitTransaction(ctx, domain.SubmitRequest{ConnectionID: conn.ID, AmountCents: 2500})
	require.NoError(t, err)

	cancelled, err := h.engine.Processor.Cancel(ctx, res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionFailed, cancelled.Status)
	assert.Equal(t, "cancelled", cancelled.FailureReason)
	assert.Zero(t, h.engine.Processor.PendingAdvances())

	h.clock.Advance(time.Minute)
	tx, err := h.engine.Processor.Get(ctx, res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionFailed, tx.Status)

	_, err = h.engine.Processor.Cancel(ctx, res.TransactionID)
	assert.ErrorIs(t, err, domain.ErrTransactionNotPending)

	other, err := h.engine.SubmitTransaction(ctx, domain.SubmitRequest{ConnectionID: conn.ID, AmountCents: 2500})
	require.NoError(t, err)
	h.clock.Advance(2 * time.Second)
	_, err = h.engine.Processor.Cancel(ctx, other.TransactionID)
	assert.ErrorIs(t, err, domain.ErrTransactionNotPending)

	_, err = h.engine.Processor.Cancel(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestReverse(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	conn := h.link(t, "tenant-1")

	res, err := h.engine.SubmitTransaction(ctx, domain.SubmitRequest{ConnectionID: conn.ID, AmountCents: 2500})
	require.NoError(t, err)

	_, err = h.engine.Processor.Reverse(ctx, res.TransactionID, "")
	assert.ErrorIs(t, err, domain.ErrTransactionNotSettled)

	h.clock.Advance(7 * time.Second)
	reversed, err := h.engine.Processor.Reverse(ctx, res.TransactionID, "disputed")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionReversed, reversed.Status)
	assert.Equal(t, "disputed", reversed.FailureReason)

	_, err = h.engine.Processor.Reverse(ctx, res.TransactionID, "")
	assert.ErrorIs(t, err, domain.ErrTransactionNotSettled)
}

func TestClose_StopsScheduledAdvances(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	conn := h.link(t, "tenant-1")

	res, err := h.engine.SubmitTransaction(ctx, domain.SubmitRequest{ConnectionID: conn.ID, AmountCents: 2500})
	require.NoError(t, err)

	h.engine.Close()
	h.clock.Advance(time.Minute)

	tx, err := h.engine.Processor.Get(ctx, res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionPending, tx.Status)
	assert.Zero(t, h.clock.Pending())
}

func TestSubmit_BusinessAccountReceiveRules(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	conn := h.link(t, "tenant-1")

	account, err := h.engine.Ledger.CreateAccount(ctx, BusinessAccountInput{
		OrganizationID:      "org-1",
		BankName:            "Operating Bank",
		RoutingNumber:       "021000021",
		AccountNumber:       "000123456789",
		CanReceivePayments:  true,
		MonthlyReceiveLimit: int64Ptr(300000),
		Fees:                domain.FeeSchedule{ACHReceive: 25},
	})
	require.NoError(t, err)

	res, err := h.engine.SubmitTransaction(ctx, domain.SubmitRequest{ConnectionID: conn.ID, AmountCents: 200000, BusinessAccountID: account.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(25), res.ReceiveFeeCents)
	assert.Equal(t, account.ID, res.BusinessAccountID)

	_, err = h.engine.SubmitTransaction(ctx, domain.SubmitRequest{ConnectionID: conn.ID, AmountCents: 100001, BusinessAccountID: account.ID})
	assert.ErrorIs(t, err, domain.ErrReceiveLimitExceeded)

	sendOnly, err := h.engine.Ledger.CreateAccount(ctx, BusinessAccountInput{
		OrganizationID:  "org-1",
		BankName:        "Payroll Bank",
		RoutingNumber:   "011000015",
		AccountNumber:   "000987654321",
		CanSendPayments: true,
	})
	require.NoError(t, err)
	_, err = h.engine.SubmitTransaction(ctx, domain.SubmitRequest{ConnectionID: conn.ID, AmountCents: 100, BusinessAccountID: sendOnly.ID})
	assert.ErrorIs(t, err, domain.ErrAccountCannotReceive)

	_, err = h.engine.SubmitTransaction(ctx, domain.SubmitRequest{ConnectionID: conn.ID, AmountCents: 100, BusinessAccountID: "missing"})
	assert.ErrorIs(t, err, domain.ErrBusinessAccountNotFound)
}

func TestProcessingFee(t *testing.T) {
	cases := []struct {
		amount, bps, want int64
	}{
		{100000, 75, 750},
		{2500, 75, 19},
		{200, 75, 2},
		{600, 75, 5},
		{66, 75, 0},
		{67, 75, 1},
		{0, 75, 0},
		{100000, 0, 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ProcessingFee(tc.amount, tc.bps), "amount=%d bps=%d", tc.amount, tc.bps)
	}
}
