package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transfa/banklink-service/internal/domain"
	"github.com/transfa/banklink-service/internal/store"
)

// startMicroDeposits links a pending connection and sends deposits of 12 and 32 cents.
func startMicroDeposits(t *testing.T, h *testHarness) (*domain.BankConnection, *domain.BankVerification) {
	t.Helper()
	conn := h.link(t, "tenant-1")
	h.random.ints = []int{11, 31}
	v, err := h.engine.InitiateVerification(context.Background(), conn.ID, domain.VerificationMicroDeposits)
	require.NoError(t, err)
	return conn, v
}

func TestInitiate_MicroDepositsSendsTwoDeposits(t *testing.T) {
	h := newHarness(t, manualVerify)
	conn, v := startMicroDeposits(t, h)

	assert.Equal(t, domain.VerificationPending, v.Status)
	assert.Equal(t, 3, v.MaxAttempts)
	assert.Equal(t, friday.Add(7*24*time.Hour), v.ExpiresAt)
	require.Len(t, v.MicroDeposits, 2)
	assert.Equal(t, int64(12), v.MicroDeposits[0].AmountCents)
	assert.Equal(t, int64(32), v.MicroDeposits[1].AmountCents)
	for _, d := range v.MicroDeposits {
		assert.Equal(t, domain.MicroDepositSent, d.Status)
	}

	stored, err := h.engine.Registry.Get(context.Background(), conn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConnectionMicroDepositsSent, stored.VerificationStatus)
	assert.Equal(t, domain.VerificationMicroDeposits, stored.VerificationMethod)
	assert.False(t, stored.IsVerified)
}

func TestInitiate_RejectsUnknownMethodAndConnection(t *testing.T) {
	h := newHarness(t, manualVerify)
	conn := h.link(t, "tenant-1")

	_, err := h.engine.InitiateVerification(context.Background(), conn.ID, "carrier_pigeon")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.engine.InitiateVerification(context.Background(), "missing", domain.VerificationManual)
	assert.ErrorIs(t, err, domain.ErrConnectionNotFound)
}

func TestSubmitMicroDeposits_SucceedsOnSecondAttempt(t *testing.T) {
	h := newHarness(t, manualVerify)
	ctx := context.Background()
	conn, v := startMicroDeposits(t, h)

	res, err := h.engine.SubmitMicroDepositAmounts(ctx, v.ID, []int64{32, 12})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, domain.VerificationPending, res.Status)
	assert.Equal(t, 2, res.AttemptsRemaining)
	assert.Equal(t, "amounts do not match", res.Error)

	res, err = h.engine.SubmitMicroDepositAmounts(ctx, v.ID, []int64{12, 32})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, domain.VerificationCompleted, res.Status)
	assert.Equal(t, 1, res.AttemptsRemaining)
	assert.Empty(t, res.Error)

	stored, err := h.engine.Registry.Get(ctx, conn.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsVerified)
	assert.Equal(t, domain.ConnectionVerified, stored.VerificationStatus)

	final, err := h.engine.Verification.Get(ctx, v.ID)
	require.NoError(t, err)
	require.NotNil(t, final.CompletedAt)
	for _, d := range final.MicroDeposits {
		assert.Equal(t, domain.MicroDepositVerified, d.Status)
	}

	_, err = h.engine.SubmitMicroDepositAmounts(ctx, v.ID, []int64{12, 32})
	assert.ErrorIs(t, err, domain.ErrVerificationNotPending)
	assert.ErrorIs(t, err, domain.ErrState)
}

func TestSubmitMicroDeposits_FailsAfterMaxAttempts(t *testing.T) {
	h := newHarness(t, manualVerify)
	ctx := context.Background()
	conn, v := startMicroDeposits(t, h)

	for i := 0; i < 2; i++ {
		res, err := h.engine.SubmitMicroDepositAmounts(ctx, v.ID, []int64{1, 1})
		require.NoError(t, err)
		assert.Equal(t, domain.VerificationPending, res.Status)
	}
	res, err := h.engine.SubmitMicroDepositAmounts(ctx, v.ID, []int64{1, 1})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, domain.VerificationFailed, res.Status)
	assert.Equal(t, 0, res.AttemptsRemaining)
	assert.Equal(t, "maximum verification attempts exceeded", res.Error)

	stored, err := h.engine.Registry.Get(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConnectionFailed, stored.VerificationStatus)
	assert.False(t, stored.IsVerified)

	_, err = h.engine.SubmitMicroDepositAmounts(ctx, v.ID, []int64{12, 32})
	assert.ErrorIs(t, err, domain.ErrVerificationNotPending)

	final, err := h.engine.Verification.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, final.Attempts)
	assert.Contains(t, h.publisher.keys(), domain.EventVerificationFailed)
}

func TestSubmitMicroDeposits_WrongCountConsumesAttempt(t *testing.T) {
	h := newHarness(t, manualVerify)
	_, v := startMicroDeposits(t, h)

	res, err := h.engine.SubmitMicroDepositAmounts(context.Background(), v.ID, []int64{12})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 2, res.AttemptsRemaining)
}

func TestSubmitMicroDeposits_ExpiredWindow(t *testing.T) {
	h := newHarness(t, manualVerify)
	ctx := context.Background()
	conn, v := startMicroDeposits(t, h)

	h.clock.Advance(7*24*time.Hour + time.Second)

	_, err := h.engine.SubmitMicroDepositAmounts(ctx, v.ID, []int64{12, 32})
	assert.ErrorIs(t, err, domain.ErrVerificationExpired)

	stored, err := h.engine.Verification.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationExpired, stored.Status)
	assert.Equal(t, 0, stored.Attempts)

	c, err := h.engine.Registry.Get(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConnectionExpired, c.VerificationStatus)
}

func TestSubmitMicroDeposits_WrongMethodAndUnknownID(t *testing.T) {
	h := newHarness(t, manualVerify)
	ctx := context.Background()
	conn := h.link(t, "tenant-1")

	manual, err := h.engine.InitiateVerification(ctx, conn.ID, domain.VerificationManual)
	require.NoError(t, err)

	_, err = h.engine.SubmitMicroDepositAmounts(ctx, manual.ID, []int64{1, 2})
	assert.ErrorIs(t, err, domain.ErrWrongVerificationType)

	_, err = h.engine.SubmitMicroDepositAmounts(ctx, "missing", []int64{1, 2})
	assert.ErrorIs(t, err, domain.ErrVerificationNotFound)
}

func TestSubmitMicroDeposits_ConcurrentSubmissionsNeverExceedMaxAttempts(t *testing.T) {
	h := newHarness(t, manualVerify)
	ctx := context.Background()
	_, v := startMicroDeposits(t, h)

	const callers = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.SubmitMicroDepositAmounts(ctx, v.ID, []int64{99, 99})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, domain.ErrVerificationNotPending)
				rejected++
				return
			}
			accepted++
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, accepted)
	assert.Equal(t, callers-3, rejected)
	final, err := h.engine.Verification.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, final.Attempts)
	assert.Equal(t, domain.VerificationFailed, final.Status)
}

func TestInitiate_SupersedesPendingVerification(t *testing.T) {
	h := newHarness(t, manualVerify)
	ctx := context.Background()
	conn, first := startMicroDeposits(t, h)

	h.clock.Advance(time.Minute)
	second, err := h.engine.InitiateVerification(ctx, conn.ID, domain.VerificationManual)
	require.NoError(t, err)

	old, err := h.engine.Verification.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationFailed, old.Status)
	assert.Equal(t, store.SupersededReason, old.FailureReason)

	latest, err := h.engine.Verification.Latest(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
}

func TestCompleteManual(t *testing.T) {
	h := newHarness(t, manualVerify)
	ctx := context.Background()
	conn := h.link(t, "tenant-1")

	v, err := h.engine.InitiateVerification(ctx, conn.ID, domain.VerificationManual)
	require.NoError(t, err)
	approved, err := h.engine.Verification.CompleteManual(ctx, v.ID, true, "")
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationCompleted, approved.Status)
	stored, err := h.engine.Registry.Get(ctx, conn.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsVerified)

	h.clock.Advance(time.Minute)
	v2, err := h.engine.InitiateVerification(ctx, conn.ID, domain.VerificationManual)
	require.NoError(t, err)
	rejected, err := h.engine.Verification.CompleteManual(ctx, v2.ID, false, "document mismatch")
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationFailed, rejected.Status)
	assert.Equal(t, "document mismatch", rejected.FailureReason)
	stored, err = h.engine.Registry.Get(ctx, conn.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsVerified)
	assert.Equal(t, domain.ConnectionFailed, stored.VerificationStatus)

	_, err = h.engine.Verification.CompleteManual(ctx, v2.ID, true, "")
	assert.ErrorIs(t, err, domain.ErrVerificationNotPending)
}

func TestExpireStale(t *testing.T) {
	h := newHarness(t, manualVerify)
	ctx := context.Background()
	conn, v := startMicroDeposits(t, h)

	count, err := h.engine.Verification.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	h.clock.Advance(8 * 24 * time.Hour)
	count, err = h.engine.Verification.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	stored, err := h.engine.Verification.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationExpired, stored.Status)
	for _, d := range stored.MicroDeposits {
		assert.Equal(t, domain.MicroDepositFailed, d.Status)
	}
	c, err := h.engine.Registry.Get(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConnectionExpired, c.VerificationStatus)
	assert.Contains(t, h.publisher.keys(), domain.EventVerificationExpired)

	count, err = h.engine.Verification.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestVerificationView_HidesAmounts(t *testing.T) {
	h := newHarness(t, manualVerify)
	_, v := startMicroDeposits(t, h)

	view := v.View()

	assert.Equal(t, 2, view.DepositCount)
	assert.Equal(t, 3, view.AttemptsRemaining)
}
