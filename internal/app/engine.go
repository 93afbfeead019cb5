/**
 * @description
 * Engine is the explicit application context for bank linking, verification,
 * ACH processing and payment routing. It is built once per process (or once per
 * test) and owns every component; nothing in this package keeps global state.
 *
 * @dependencies
 * - internal/store: persistence behind the Repository interface.
 * - internal/clock: injectable time source and timers.
 */

package app

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/transfa/banklink-service/internal/calendar"
	"github.com/transfa/banklink-service/internal/clock"
	"github.com/transfa/banklink-service/internal/domain"
	"github.com/transfa/banklink-service/internal/routing"
	"github.com/transfa/banklink-service/internal/store"
)

// Settings tunes the engine's business parameters.
type Settings struct {
	AutoVerifyOnLink        bool
	MaxConnectionsPerTenant int
	VerificationMaxAttempts int
	VerificationTTL         time.Duration
	ProcessingDelay         time.Duration
	SettlementDelay         time.Duration
	SettlementFailureRate   float64
	ObserveFederalHolidays  bool
	ProcessingFeeBps        int64
	Location                *time.Location
	EventsExchange          string
}

// DefaultSettings returns the production defaults.
func DefaultSettings() Settings {
	return Settings{
		AutoVerifyOnLink:        true,
		MaxConnectionsPerTenant: 10,
		VerificationMaxAttempts: domain.DefaultVerificationMaxAttempts,
		VerificationTTL:         domain.DefaultVerificationTTL,
		ProcessingDelay:         2 * time.Second,
		SettlementDelay:         5 * time.Second,
		SettlementFailureRate:   0.05,
		ProcessingFeeBps:        DefaultProcessingFeeBasisPoints,
		Location:                time.UTC,
		EventsExchange:          "banklink.events",
	}
}

// Options carries the injectable collaborators. Zero values get defaults.
type Options struct {
	Clock     clock.Clock
	Random    RandomSource
	Locker    Locker
	Publisher EventPublisher
	Logger    *slog.Logger
	Settings  Settings
}

// Engine groups the components and exposes the inbound operations.
type Engine struct {
	Registry     *ConnectionRegistry
	Verification *VerificationEngine
	Processor    *TransactionProcessor
	Ledger       *BusinessAccountLedger
}

// NewEngine wires every component over repo.
func NewEngine(repo store.Repository, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Random == nil {
		opts.Random = DefaultRandom()
	}
	if opts.Locker == nil {
		opts.Locker = NewKeyedLocker()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Settings.Location == nil {
		opts.Settings.Location = time.UTC
	}
	if opts.Settings.VerificationMaxAttempts <= 0 {
		opts.Settings.VerificationMaxAttempts = domain.DefaultVerificationMaxAttempts
	}
	if opts.Settings.VerificationTTL <= 0 {
		opts.Settings.VerificationTTL = domain.DefaultVerificationTTL
	}

	events := &eventEmitter{
		publisher: opts.Publisher,
		exchange:  opts.Settings.EventsExchange,
		clock:     opts.Clock,
		logger:    opts.Logger,
	}

	verification := &VerificationEngine{
		repo:     repo,
		clock:    opts.Clock,
		random:   opts.Random,
		locker:   opts.Locker,
		events:   events,
		logger:   opts.Logger.With("component", "verification"),
		settings: opts.Settings,
	}
	registry := &ConnectionRegistry{
		repo:     repo,
		verifier: verification,
		clock:    opts.Clock,
		locker:   opts.Locker,
		events:   events,
		logger:   opts.Logger.With("component", "registry"),
		settings: opts.Settings,
	}
	ledger := &BusinessAccountLedger{
		repo:     repo,
		clock:    opts.Clock,
		location: opts.Settings.Location,
		logger:   opts.Logger.With("component", "ledger"),
	}
	processor := &TransactionProcessor{
		repo:     repo,
		ledger:   ledger,
		calendar: calendar.New(calendar.Options{FederalHolidays: opts.Settings.ObserveFederalHolidays}),
		clock:    opts.Clock,
		random:   opts.Random,
		locker:   opts.Locker,
		events:   events,
		logger:   opts.Logger.With("component", "processor"),
		settings: opts.Settings,
		timers:   make(map[string]clock.Timer),
	}

	return &Engine{
		Registry:     registry,
		Verification: verification,
		Processor:    processor,
		Ledger:       ledger,
	}
}

// LinkConnection registers a connection from a completed link session.
func (e *Engine) LinkConnection(ctx context.Context, tenantID string, link domain.LinkResult, selectedAccountID string) (*domain.BankConnection, error) {
	return e.Registry.Connect(ctx, tenantID, link, selectedAccountID)
}

// InitiateVerification starts a verification of the given method.
func (e *Engine) InitiateVerification(ctx context.Context, connectionID string, method domain.VerificationMethod) (*domain.BankVerification, error) {
	return e.Verification.Initiate(ctx, connectionID, method)
}

// SubmitMicroDepositAmounts checks a micro-deposit guess.
func (e *Engine) SubmitMicroDepositAmounts(ctx context.Context, verificationID string, amounts []int64) (*domain.MicroDepositResult, error) {
	return e.Verification.SubmitMicroDepositAmounts(ctx, verificationID, amounts)
}

// SubmitTransaction starts an ACH transaction.
func (e *Engine) SubmitTransaction(ctx context.Context, req domain.SubmitRequest) (*domain.ACHProcessingResult, error) {
	return e.Processor.Submit(ctx, req)
}

// ResolveRoute picks the account for a payment from an explicit route set.
func (e *Engine) ResolveRoute(routes []domain.PaymentRoute, ctx routing.PaymentContext) (string, bool) {
	return routing.ResolveAccount(routes, ctx)
}

// Close stops outstanding scheduled work.
func (e *Engine) Close() {
	e.Processor.Close()
}
