/**
 * @description
 * This file defines the `Repository` interface, the contract for every data access
 * operation the banklink engine needs. Business logic depends on this interface
 * only, so the in-memory and PostgreSQL implementations are interchangeable.
 *
 * @notes
 * - Mutations that touch a status and its dependent fields go through the
 *   `Update*` callbacks, which run under a single lock (memory) or a single
 *   row-locking transaction (PostgreSQL). A callback that returns an error
 *   aborts the write and the error is returned unchanged.
 * - At most one connection per tenant is default and at most one business
 *   account per organization is primary; saving one clears the flag on siblings.
 */

package store

import (
	"context"
	"time"

	"github.com/transfa/banklink-service/internal/domain"
)

// ConnectionMutator edits a connection inside an atomic update.
type ConnectionMutator func(c *domain.BankConnection) error

// VerificationMutator edits a verification and its connection inside one atomic update.
type VerificationMutator func(v *domain.BankVerification, c *domain.BankConnection) error

// TransactionMutator edits a transaction inside an atomic update.
type TransactionMutator func(tx *domain.BankTransaction) error

// RouteMutator edits a payment route inside an atomic update.
type RouteMutator func(r *domain.PaymentRoute) error

// Repository defines the set of methods for interacting with storage.
type Repository interface {
	// Connection methods
	CreateConnection(ctx context.Context, c *domain.BankConnection) error
	GetConnection(ctx context.Context, id string) (*domain.BankConnection, error)
	ListConnectionsByTenant(ctx context.Context, tenantID string) ([]domain.BankConnection, error)
	CountConnectionsByTenant(ctx context.Context, tenantID string) (int, error)
	UpdateConnection(ctx context.Context, id string, fn ConnectionMutator) (*domain.BankConnection, error)
	// DeleteConnection removes the connection and its verifications. It fails with
	// domain.ErrConnectionInUse while any of its transactions is pending or processing.
	DeleteConnection(ctx context.Context, id string) error

	// Verification methods
	// CreateVerification stores v, fails any other pending verification for the
	// same connection with reason "superseded", and applies fn to the connection.
	CreateVerification(ctx context.Context, v *domain.BankVerification, fn ConnectionMutator) (*domain.BankConnection, error)
	GetVerification(ctx context.Context, id string) (*domain.BankVerification, error)
	LatestVerification(ctx context.Context, connectionID string) (*domain.BankVerification, error)
	UpdateVerification(ctx context.Context, id string, fn VerificationMutator) (*domain.BankVerification, *domain.BankConnection, error)
	ListExpiredPendingVerificationIDs(ctx context.Context, now time.Time) ([]string, error)

	// Transaction methods
	CreateTransaction(ctx context.Context, tx *domain.BankTransaction) error
	GetTransaction(ctx context.Context, id string) (*domain.BankTransaction, error)
	ListTransactionsByConnection(ctx context.Context, connectionID string) ([]domain.BankTransaction, error)
	UpdateTransaction(ctx context.Context, id string, fn TransactionMutator) (*domain.BankTransaction, error)
	// SumBusinessAccountReceipts totals non-failed, non-reversed transactions routed
	// to the account with CreatedAt in [from, to).
	SumBusinessAccountReceipts(ctx context.Context, accountID string, from, to time.Time) (int64, error)

	// Business account methods
	CreateBusinessAccount(ctx context.Context, a *domain.BusinessBankAccount) error
	GetBusinessAccount(ctx context.Context, id string) (*domain.BusinessBankAccount, error)
	ListBusinessAccounts(ctx context.Context, organizationID string) ([]domain.BusinessBankAccount, error)

	// Payment route methods
	CreateRoute(ctx context.Context, r *domain.PaymentRoute) error
	GetRoute(ctx context.Context, id string) (*domain.PaymentRoute, error)
	ListRoutes(ctx context.Context, organizationID string) ([]domain.PaymentRoute, error)
	UpdateRoute(ctx context.Context, id string, fn RouteMutator) (*domain.PaymentRoute, error)
	DeleteRoute(ctx context.Context, id string) error
}

// SupersededReason is recorded on a pending verification replaced by a newer one.
const SupersededReason = "superseded"
