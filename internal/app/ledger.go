package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/banklink-service/internal/bankcheck"
	"github.com/transfa/banklink-service/internal/calendar"
	"github.com/transfa/banklink-service/internal/clock"
	"github.com/transfa/banklink-service/internal/domain"
	"github.com/transfa/banklink-service/internal/routing"
	"github.com/transfa/banklink-service/internal/store"
)

const defaultCutoffTime = "15:00"

var defaultProcessingDays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}

// BusinessAccountLedger owns business accounts, their fees and processing
// calendars, and the payment routes that target them.
type BusinessAccountLedger struct {
	repo     store.Repository
	clock    clock.Clock
	location *time.Location
	logger   *slog.Logger
}

// BusinessAccountInput is the data accepted when registering a business account.
// Raw routing/account numbers are validated and only their masks are stored.
type BusinessAccountInput struct {
	OrganizationID      string                    `json:"organization_id"`
	BankName            string                    `json:"bank_name"`
	AccountType         domain.AccountType        `json:"account_type"`
	RoutingNumber       string                    `json:"routing_number"`
	AccountNumber       string                    `json:"account_number"`
	BusinessName        string                    `json:"business_name"`
	EIN                 string                    `json:"ein,omitempty"`
	IsVerified          bool                      `json:"is_verified"`
	IsPrimary           bool                      `json:"is_primary"`
	CanReceivePayments  bool                      `json:"can_receive_payments"`
	CanSendPayments     bool                      `json:"can_send_payments"`
	DailyReceiveLimit   *int64                    `json:"daily_receive_limit,omitempty"`
	MonthlyReceiveLimit *int64                    `json:"monthly_receive_limit,omitempty"`
	Fees                domain.FeeSchedule        `json:"fees"`
	ProcessingSchedule  domain.ProcessingSchedule `json:"processing_schedule"`
}

func validateFees(f domain.FeeSchedule) error {
	for name, v := range map[string]int64{
		"ach_receive": f.ACHReceive, "ach_send": f.ACHSend, "wire_receive": f.WireReceive,
		"wire_send": f.WireSend, "monthly_maintenance": f.MonthlyMaintenance, "overdraft": f.Overdraft,
	} {
		if v < 0 {
			return domain.NewValidationError("fees."+name, "must not be negative")
		}
	}
	return nil
}

func (l *BusinessAccountLedger) normalizeSchedule(s domain.ProcessingSchedule) (domain.ProcessingSchedule, error) {
	if len(s.DebitDays) == 0 {
		s.DebitDays = append([]time.Weekday(nil), defaultProcessingDays...)
	}
	if len(s.CreditDays) == 0 {
		s.CreditDays = append([]time.Weekday(nil), defaultProcessingDays...)
	}
	for _, d := range append(append([]time.Weekday(nil), s.DebitDays...), s.CreditDays...) {
		if d < time.Sunday || d > time.Saturday {
			return s, domain.NewValidationError("processing_schedule.days", fmt.Sprintf("invalid weekday %d", d))
		}
	}
	if strings.TrimSpace(s.CutoffTime) == "" {
		s.CutoffTime = defaultCutoffTime
	}
	if _, err := time.Parse("15:04", s.CutoffTime); err != nil {
		return s, domain.NewValidationError("processing_schedule.cutoff_time", "must be HH:MM")
	}
	if strings.TrimSpace(s.Timezone) == "" {
		s.Timezone = l.location.String()
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return s, domain.NewValidationError("processing_schedule.timezone", "unknown timezone")
	}
	for _, h := range s.Holidays {
		if !calendar.ValidDate(h) {
			return s, domain.NewValidationError("processing_schedule.holidays", fmt.Sprintf("invalid date %q", h))
		}
	}
	return s, nil
}

// CreateAccount registers a business account.
func (l *BusinessAccountLedger) CreateAccount(ctx context.Context, in BusinessAccountInput) (*domain.BusinessBankAccount, error) {
	if strings.TrimSpace(in.OrganizationID) == "" {
		return nil, domain.NewValidationError("organization_id", "is required")
	}
	if strings.TrimSpace(in.BankName) == "" {
		return nil, domain.NewValidationError("bank_name", "is required")
	}
	if in.AccountType == "" {
		in.AccountType = domain.AccountTypeBusinessChecking
	}
	if !in.AccountType.Valid() {
		return nil, domain.NewValidationError("account_type", "unknown account type")
	}
	validation := bankcheck.ValidateBankAccount(in.RoutingNumber, in.AccountNumber)
	if !validation.RoutingNumberValid {
		return nil, domain.NewValidationError("routing_number", "failed ABA checksum")
	}
	if !validation.AccountNumberValid {
		return nil, domain.NewValidationError("account_number", "must contain 4 to 17 digits")
	}
	if in.DailyReceiveLimit != nil && *in.DailyReceiveLimit < 0 {
		return nil, domain.NewValidationError("daily_receive_limit", "must not be negative")
	}
	if in.MonthlyReceiveLimit != nil && *in.MonthlyReceiveLimit < 0 {
		return nil, domain.NewValidationError("monthly_receive_limit", "must not be negative")
	}
	if err := validateFees(in.Fees); err != nil {
		return nil, err
	}
	schedule, err := l.normalizeSchedule(in.ProcessingSchedule)
	if err != nil {
		return nil, err
	}

	einMask := ""
	if in.EIN != "" {
		einMask = "**-***" + lastDigits(in.EIN, 4)
	}
	now := l.clock.Now()
	account := &domain.BusinessBankAccount{
		ID:                  uuid.NewString(),
		OrganizationID:      strings.TrimSpace(in.OrganizationID),
		BankName:            strings.TrimSpace(in.BankName),
		AccountType:         in.AccountType,
		AccountMask:         bankcheck.MaskAccountNumber(in.AccountNumber),
		RoutingMask:         "*****" + lastDigits(in.RoutingNumber, 4),
		BusinessName:        strings.TrimSpace(in.BusinessName),
		EINMask:             einMask,
		IsVerified:          in.IsVerified,
		IsPrimary:           in.IsPrimary,
		CanReceivePayments:  in.CanReceivePayments,
		CanSendPayments:     in.CanSendPayments,
		DailyReceiveLimit:   in.DailyReceiveLimit,
		MonthlyReceiveLimit: in.MonthlyReceiveLimit,
		Fees:                in.Fees,
		ProcessingSchedule:  schedule,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := l.repo.CreateBusinessAccount(ctx, account); err != nil {
		return nil, err
	}
	l.logger.Info("business account created", "business_account_id", account.ID, "organization_id", account.OrganizationID)
	return account, nil
}

func lastDigits(s string, n int) string {
	var digits []byte
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			digits = append(digits, s[i])
		}
	}
	if len(digits) > n {
		digits = digits[len(digits)-n:]
	}
	return string(digits)
}

// GetAccount returns the business account with id.
func (l *BusinessAccountLedger) GetAccount(ctx context.Context, id string) (*domain.BusinessBankAccount, error) {
	return l.repo.GetBusinessAccount(ctx, id)
}

// ListAccounts returns every account of an organization.
func (l *BusinessAccountLedger) ListAccounts(ctx context.Context, organizationID string) ([]domain.BusinessBankAccount, error) {
	return l.repo.ListBusinessAccounts(ctx, organizationID)
}

// ListReceivable returns the organization's accounts that can receive payments.
func (l *BusinessAccountLedger) ListReceivable(ctx context.Context, organizationID string) ([]domain.BusinessBankAccount, error) {
	accounts, err := l.repo.ListBusinessAccounts(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.BusinessBankAccount, 0, len(accounts))
	for _, a := range accounts {
		if a.CanReceivePayments {
			out = append(out, a)
		}
	}
	return out, nil
}

// ChargeReceiveFee returns the flat ACH receive fee of the account.
func (l *BusinessAccountLedger) ChargeReceiveFee(account *domain.BusinessBankAccount, amountCents int64) int64 {
	return account.Fees.ACHReceive
}

// IsWithinReceiveLimits reports whether amountCents fits the account's daily and
// monthly receive limits given the period total so far. A nil or zero limit is
// unlimited.
func (l *BusinessAccountLedger) IsWithinReceiveLimits(account *domain.BusinessBankAccount, amountCents, periodTotalSoFar int64) bool {
	if limit := account.DailyReceiveLimit; limit != nil && *limit > 0 && amountCents > *limit {
		return false
	}
	if limit := account.MonthlyReceiveLimit; limit != nil && *limit > 0 && periodTotalSoFar+amountCents > *limit {
		return false
	}
	return true
}

// monthWindow returns [first of month, first of next month) for now in loc.
func monthWindow(now time.Time, loc *time.Location) (time.Time, time.Time) {
	local := now.In(loc)
	from := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	return from, from.AddDate(0, 1, 0)
}

// PeriodReceiveTotal sums this calendar month's live receipts for the account.
func (l *BusinessAccountLedger) PeriodReceiveTotal(ctx context.Context, accountID string, now time.Time) (int64, error) {
	from, to := monthWindow(now, l.location)
	return l.repo.SumBusinessAccountReceipts(ctx, accountID, from, to)
}

// NextProcessingDay returns the first date, at or after at, on which the account
// processes the given direction: an allowed weekday, not a holiday, and before
// the cutoff when it is the same day.
func (l *BusinessAccountLedger) NextProcessingDay(account *domain.BusinessBankAccount, at time.Time, direction domain.Direction) (time.Time, error) {
	schedule := account.ProcessingSchedule
	loc := l.location
	if schedule.Timezone != "" {
		parsed, err := time.LoadLocation(schedule.Timezone)
		if err != nil {
			return time.Time{}, domain.NewValidationError("processing_schedule.timezone", "unknown timezone")
		}
		loc = parsed
	}
	days := schedule.DebitDays
	if direction == domain.DirectionCredit {
		days = schedule.CreditDays
	}
	if len(days) == 0 {
		days = defaultProcessingDays
	}
	workdays := calendar.New(calendar.Options{
		Workdays:        days,
		FederalHolidays: schedule.ObserveFederalHolidays,
		Holidays:        schedule.Holidays,
	})

	local := at.In(loc)
	cutoff := schedule.CutoffTime
	if cutoff == "" {
		cutoff = defaultCutoffTime
	}
	cutoffClock, err := time.Parse("15:04", cutoff)
	if err != nil {
		return time.Time{}, domain.NewValidationError("processing_schedule.cutoff_time", "must be HH:MM")
	}
	day := calendar.StartOfDay(local)
	cutoffAt := time.Date(day.Year(), day.Month(), day.Day(), cutoffClock.Hour(), cutoffClock.Minute(), 0, 0, loc)
	if !local.Before(cutoffAt) {
		day = day.AddDate(0, 0, 1)
	}
	for i := 0; i < 366; i++ {
		if workdays.IsBusinessDay(day) {
			return day, nil
		}
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}, fmt.Errorf("no processing day within a year: %w", domain.ErrDomain)
}

// RouteInput is the data accepted when creating a payment route.
type RouteInput struct {
	OrganizationID string               `json:"organization_id"`
	Name           string               `json:"name"`
	AccountID      string               `json:"account_id"`
	Rules          []domain.RoutingRule `json:"rules"`
	IsActive       *bool                `json:"is_active,omitempty"`
	Priority       int                  `json:"priority"`
}

func (l *BusinessAccountLedger) ensureOrgAccount(ctx context.Context, organizationID, accountID string) error {
	account, err := l.repo.GetBusinessAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if account.OrganizationID != organizationID {
		return domain.NewValidationError("account_id", "belongs to a different organization")
	}
	return nil
}

// CreateRoute validates and stores a payment route.
func (l *BusinessAccountLedger) CreateRoute(ctx context.Context, in RouteInput) (*domain.PaymentRoute, error) {
	if strings.TrimSpace(in.OrganizationID) == "" {
		return nil, domain.NewValidationError("organization_id", "is required")
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	now := l.clock.Now()
	route := &domain.PaymentRoute{
		ID:             uuid.NewString(),
		OrganizationID: strings.TrimSpace(in.OrganizationID),
		Name:           strings.TrimSpace(in.Name),
		AccountID:      strings.TrimSpace(in.AccountID),
		Rules:          append([]domain.RoutingRule(nil), in.Rules...),
		IsActive:       active,
		Priority:       in.Priority,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if route.Rules == nil {
		route.Rules = []domain.RoutingRule{}
	}
	if err := routing.ValidateRoute(*route); err != nil {
		return nil, err
	}
	targets := map[string]bool{}
	if route.AccountID != "" {
		targets[route.AccountID] = true
	}
	for _, rule := range route.Rules {
		if rule.AccountID != "" {
			targets[rule.AccountID] = true
		}
	}
	for accountID := range targets {
		if err := l.ensureOrgAccount(ctx, route.OrganizationID, accountID); err != nil {
			return nil, err
		}
	}
	if err := l.repo.CreateRoute(ctx, route); err != nil {
		return nil, err
	}
	l.logger.Info("payment route created", "route_id", route.ID, "organization_id", route.OrganizationID, "priority", route.Priority)
	return route, nil
}

// GetRoute returns the route with id.
func (l *BusinessAccountLedger) GetRoute(ctx context.Context, id string) (*domain.PaymentRoute, error) {
	return l.repo.GetRoute(ctx, id)
}

// ListRoutes returns the organization's routes in priority order.
func (l *BusinessAccountLedger) ListRoutes(ctx context.Context, organizationID string) ([]domain.PaymentRoute, error) {
	return l.repo.ListRoutes(ctx, organizationID)
}

// SetRouteActive toggles a route.
func (l *BusinessAccountLedger) SetRouteActive(ctx context.Context, id string, active bool) (*domain.PaymentRoute, error) {
	now := l.clock.Now()
	return l.repo.UpdateRoute(ctx, id, func(r *domain.PaymentRoute) error {
		r.IsActive = active
		r.UpdatedAt = now
		return nil
	})
}

// DeleteRoute removes a route.
func (l *BusinessAccountLedger) DeleteRoute(ctx context.Context, id string) error {
	return l.repo.DeleteRoute(ctx, id)
}

// ResolvePaymentAccount runs the organization's routes for pctx and falls back
// to its primary receivable account when no route matches.
func (l *BusinessAccountLedger) ResolvePaymentAccount(ctx context.Context, organizationID string, pctx routing.PaymentContext) (string, error) {
	routes, err := l.repo.ListRoutes(ctx, organizationID)
	if err != nil {
		return "", err
	}
	if accountID, ok := routing.ResolveAccount(routes, pctx); ok {
		return accountID, nil
	}

	receivable, err := l.ListReceivable(ctx, organizationID)
	if err != nil {
		return "", err
	}
	for _, a := range receivable {
		if a.IsPrimary {
			return a.ID, nil
		}
	}
	return "", domain.ErrBusinessAccountNotFound
}
