/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * Status changes and their dependent fields are written inside one transaction
 * that holds `FOR UPDATE` row locks on every record it touches.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver and connection pool.
 * - internal/domain: Domain models and error kinds.
 *
 * @notes
 * - JSON columns are bound as text so the simple query protocol configured in
 *   main.go can send them without a bytea round trip.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/transfa/banklink-service/internal/domain"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *PostgresRepository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// --- connections ---

const connectionColumns = `id, tenant_id, institution_id, bank_name, account_name, account_type, account_mask,
	routing_number, verification_status, verification_method, is_verified, is_active, is_default,
	permissions, risk_score, daily_limit, monthly_limit, last_verified_at, created_at, updated_at`

func scanConnection(row pgx.Row) (*domain.BankConnection, error) {
	var c domain.BankConnection
	var permissions []byte
	err := row.Scan(
		&c.ID, &c.TenantID, &c.InstitutionID, &c.BankName, &c.AccountName, &c.AccountType, &c.AccountMask,
		&c.RoutingNumber, &c.VerificationStatus, &c.VerificationMethod, &c.IsVerified, &c.IsActive, &c.IsDefault,
		&permissions, &c.RiskScore, &c.DailyLimit, &c.MonthlyLimit, &c.LastVerifiedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrConnectionNotFound
		}
		return nil, err
	}
	if len(permissions) > 0 {
		if err := json.Unmarshal(permissions, &c.Permissions); err != nil {
			return nil, fmt.Errorf("decode permissions for connection %s: %w", c.ID, err)
		}
	}
	return &c, nil
}

func clearDefaultConnection(ctx context.Context, q querier, tenantID, keepID string) error {
	_, err := q.Exec(ctx, `UPDATE bank_connections SET is_default = FALSE WHERE tenant_id = $1 AND id <> $2 AND is_default`, tenantID, keepID)
	return err
}

// CreateConnection inserts c. The first connection of a tenant becomes its default.
func (r *PostgresRepository) CreateConnection(ctx context.Context, c *domain.BankConnection) error {
	permissions, err := toJSON(c.Permissions)
	if err != nil {
		return err
	}
	return r.inTx(ctx, func(tx pgx.Tx) error {
		// Serialize concurrent first-links for the same tenant.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, c.TenantID); err != nil {
			return err
		}
		var existing int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM bank_connections WHERE tenant_id = $1`, c.TenantID).Scan(&existing); err != nil {
			return err
		}
		if existing == 0 {
			c.IsDefault = true
		}
		if c.IsDefault {
			if err := clearDefaultConnection(ctx, tx, c.TenantID, c.ID); err != nil {
				return err
			}
		}
		query := `INSERT INTO bank_connections (` + connectionColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`
		_, err := tx.Exec(ctx, query,
			c.ID, c.TenantID, c.InstitutionID, c.BankName, c.AccountName, c.AccountType, c.AccountMask,
			c.RoutingNumber, c.VerificationStatus, c.VerificationMethod, c.IsVerified, c.IsActive, c.IsDefault,
			permissions, c.RiskScore, c.DailyLimit, c.MonthlyLimit, c.LastVerifiedAt, c.CreatedAt, c.UpdatedAt,
		)
		return err
	})
}

// GetConnection returns the connection with id.
func (r *PostgresRepository) GetConnection(ctx context.Context, id string) (*domain.BankConnection, error) {
	return scanConnection(r.db.QueryRow(ctx, `SELECT `+connectionColumns+` FROM bank_connections WHERE id = $1`, id))
}

// ListConnectionsByTenant returns the tenant's connections oldest first.
func (r *PostgresRepository) ListConnectionsByTenant(ctx context.Context, tenantID string) ([]domain.BankConnection, error) {
	rows, err := r.db.Query(ctx, `SELECT `+connectionColumns+` FROM bank_connections WHERE tenant_id = $1 ORDER BY created_at, id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.BankConnection, 0)
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// CountConnectionsByTenant returns how many connections the tenant owns.
func (r *PostgresRepository) CountConnectionsByTenant(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM bank_connections WHERE tenant_id = $1`, tenantID).Scan(&n)
	return n, err
}

func writeConnection(ctx context.Context, q querier, c *domain.BankConnection) error {
	permissions, err := toJSON(c.Permissions)
	if err != nil {
		return err
	}
	query := `
		UPDATE bank_connections SET
			bank_name = $2, account_name = $3, verification_status = $4, verification_method = $5,
			is_verified = $6, is_active = $7, is_default = $8, permissions = $9, risk_score = $10,
			daily_limit = $11, monthly_limit = $12, last_verified_at = $13, updated_at = $14
		WHERE id = $1
	`
	result, err := q.Exec(ctx, query,
		c.ID, c.BankName, c.AccountName, c.VerificationStatus, c.VerificationMethod,
		c.IsVerified, c.IsActive, c.IsDefault, permissions, c.RiskScore,
		c.DailyLimit, c.MonthlyLimit, c.LastVerifiedAt, c.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrConnectionNotFound
	}
	if c.IsDefault {
		return clearDefaultConnection(ctx, q, c.TenantID, c.ID)
	}
	return nil
}

// UpdateConnection locks the row, applies fn and writes the result.
func (r *PostgresRepository) UpdateConnection(ctx context.Context, id string, fn ConnectionMutator) (*domain.BankConnection, error) {
	var updated *domain.BankConnection
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		c, err := scanConnection(tx.QueryRow(ctx, `SELECT `+connectionColumns+` FROM bank_connections WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		tenantID := c.TenantID
		if err := fn(c); err != nil {
			return err
		}
		c.ID, c.TenantID = id, tenantID
		if err := writeConnection(ctx, tx, c); err != nil {
			return err
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteConnection removes the connection; verifications cascade.
func (r *PostgresRepository) DeleteConnection(ctx context.Context, id string) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		var locked string
		err := tx.QueryRow(ctx, `SELECT id FROM bank_connections WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrConnectionNotFound
			}
			return err
		}
		var inFlight bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM bank_transactions
				WHERE connection_id = $1 AND status IN ('pending', 'processing')
			)`, id).Scan(&inFlight)
		if err != nil {
			return err
		}
		if inFlight {
			return domain.ErrConnectionInUse
		}
		_, err = tx.Exec(ctx, `DELETE FROM bank_connections WHERE id = $1`, id)
		return err
	})
}

// --- verifications ---

const verificationColumns = `id, connection_id, method, status, attempts, max_attempts, micro_deposits,
	expires_at, completed_at, failure_reason, created_at, updated_at`

func scanVerification(row pgx.Row) (*domain.BankVerification, error) {
	var v domain.BankVerification
	var deposits []byte
	err := row.Scan(
		&v.ID, &v.ConnectionID, &v.Method, &v.Status, &v.Attempts, &v.MaxAttempts, &deposits,
		&v.ExpiresAt, &v.CompletedAt, &v.FailureReason, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrVerificationNotFound
		}
		return nil, err
	}
	if len(deposits) > 0 {
		if err := json.Unmarshal(deposits, &v.MicroDeposits); err != nil {
			return nil, fmt.Errorf("decode micro deposits for verification %s: %w", v.ID, err)
		}
	}
	if len(v.MicroDeposits) == 0 {
		v.MicroDeposits = nil
	}
	return &v, nil
}

func depositsJSON(v *domain.BankVerification) (string, error) {
	if v.MicroDeposits == nil {
		return "[]", nil
	}
	return toJSON(v.MicroDeposits)
}

// CreateVerification stores v, supersedes older pending verifications and applies fn to the connection.
func (r *PostgresRepository) CreateVerification(ctx context.Context, v *domain.BankVerification, fn ConnectionMutator) (*domain.BankConnection, error) {
	deposits, err := depositsJSON(v)
	if err != nil {
		return nil, err
	}
	var updated *domain.BankConnection
	err = r.inTx(ctx, func(tx pgx.Tx) error {
		c, err := scanConnection(tx.QueryRow(ctx, `SELECT `+connectionColumns+` FROM bank_connections WHERE id = $1 FOR UPDATE`, v.ConnectionID))
		if err != nil {
			return err
		}
		if fn != nil {
			if err := fn(c); err != nil {
				return err
			}
		}
		_, err = tx.Exec(ctx, `
			UPDATE bank_verifications SET status = 'failed', failure_reason = $2, updated_at = $3
			WHERE connection_id = $1 AND status = 'pending'`, v.ConnectionID, SupersededReason, v.CreatedAt)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `INSERT INTO bank_verifications (`+verificationColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			v.ID, v.ConnectionID, v.Method, v.Status, v.Attempts, v.MaxAttempts, deposits,
			v.ExpiresAt, v.CompletedAt, v.FailureReason, v.CreatedAt, v.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if err := writeConnection(ctx, tx, c); err != nil {
			return err
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// GetVerification returns the verification with id.
func (r *PostgresRepository) GetVerification(ctx context.Context, id string) (*domain.BankVerification, error) {
	return scanVerification(r.db.QueryRow(ctx, `SELECT `+verificationColumns+` FROM bank_verifications WHERE id = $1`, id))
}

// LatestVerification returns the most recently created verification for a connection.
func (r *PostgresRepository) LatestVerification(ctx context.Context, connectionID string) (*domain.BankVerification, error) {
	return scanVerification(r.db.QueryRow(ctx, `SELECT `+verificationColumns+` FROM bank_verifications
		WHERE connection_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`, connectionID))
}

// UpdateVerification locks the verification and its connection, applies fn and writes both.
func (r *PostgresRepository) UpdateVerification(ctx context.Context, id string, fn VerificationMutator) (*domain.BankVerification, *domain.BankConnection, error) {
	var (
		updatedV *domain.BankVerification
		updatedC *domain.BankConnection
	)
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		v, err := scanVerification(tx.QueryRow(ctx, `SELECT `+verificationColumns+` FROM bank_verifications WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		c, err := scanConnection(tx.QueryRow(ctx, `SELECT `+connectionColumns+` FROM bank_connections WHERE id = $1 FOR UPDATE`, v.ConnectionID))
		if err != nil {
			return err
		}
		if err := fn(v, c); err != nil {
			return err
		}
		deposits, err := depositsJSON(v)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE bank_verifications SET
				status = $2, attempts = $3, micro_deposits = $4, completed_at = $5,
				failure_reason = $6, updated_at = $7
			WHERE id = $1`,
			v.ID, v.Status, v.Attempts, deposits, v.CompletedAt, v.FailureReason, v.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if err := writeConnection(ctx, tx, c); err != nil {
			return err
		}
		updatedV, updatedC = v, c
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return updatedV, updatedC, nil
}

// ListExpiredPendingVerificationIDs returns pending verifications whose expiry is not after now.
func (r *PostgresRepository) ListExpiredPendingVerificationIDs(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM bank_verifications WHERE status = 'pending' AND expires_at <= $1 ORDER BY id`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- transactions ---

const transactionColumns = `id, connection_id, business_account_id, direction, amount, description,
	reference_code, status, external_id, effective_date, processing_fee, receive_fee, failure_reason,
	processed_at, created_at, updated_at`

func scanTransaction(row pgx.Row) (*domain.BankTransaction, error) {
	var tx domain.BankTransaction
	err := row.Scan(
		&tx.ID, &tx.ConnectionID, &tx.BusinessAccountID, &tx.Direction, &tx.AmountCents, &tx.Description,
		&tx.ReferenceCode, &tx.Status, &tx.ExternalID, &tx.EffectiveDate, &tx.ProcessingFeeCents, &tx.ReceiveFeeCents,
		&tx.FailureReason, &tx.ProcessedAt, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, err
	}
	return &tx, nil
}

// CreateTransaction inserts tx.
func (r *PostgresRepository) CreateTransaction(ctx context.Context, tx *domain.BankTransaction) error {
	return r.inTx(ctx, func(dbTx pgx.Tx) error {
		// FOR SHARE conflicts with the FOR UPDATE taken by DeleteConnection, so a
		// removal either sees this row as in flight or commits before it and the
		// insert fails here.
		var locked string
		err := dbTx.QueryRow(ctx, `SELECT id FROM bank_connections WHERE id = $1 FOR SHARE`, tx.ConnectionID).Scan(&locked)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrConnectionNotFound
			}
			return err
		}
		query := `INSERT INTO bank_transactions (` + transactionColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
		_, err = dbTx.Exec(ctx, query,
			tx.ID, tx.ConnectionID, tx.BusinessAccountID, tx.Direction, tx.AmountCents, tx.Description,
			tx.ReferenceCode, tx.Status, tx.ExternalID, tx.EffectiveDate, tx.ProcessingFeeCents, tx.ReceiveFeeCents,
			tx.FailureReason, tx.ProcessedAt, tx.CreatedAt, tx.UpdatedAt,
		)
		return err
	})
}

// GetTransaction returns the transaction with id.
func (r *PostgresRepository) GetTransaction(ctx context.Context, id string) (*domain.BankTransaction, error) {
	return scanTransaction(r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM bank_transactions WHERE id = $1`, id))
}

// ListTransactionsByConnection returns the connection's transactions oldest first.
func (r *PostgresRepository) ListTransactionsByConnection(ctx context.Context, connectionID string) ([]domain.BankTransaction, error) {
	rows, err := r.db.Query(ctx, `SELECT `+transactionColumns+` FROM bank_transactions WHERE connection_id = $1 ORDER BY created_at, id`, connectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.BankTransaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tx)
	}
	return out, rows.Err()
}

// UpdateTransaction locks the row, applies fn and writes the result.
func (r *PostgresRepository) UpdateTransaction(ctx context.Context, id string, fn TransactionMutator) (*domain.BankTransaction, error) {
	var updated *domain.BankTransaction
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		current, err := scanTransaction(tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM bank_transactions WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if err := fn(current); err != nil {
			return err
		}
		current.ID = id
		_, err = tx.Exec(ctx, `
			UPDATE bank_transactions SET
				status = $2, external_id = $3, failure_reason = $4, processed_at = $5, updated_at = $6
			WHERE id = $1`,
			current.ID, current.Status, current.ExternalID, current.FailureReason, current.ProcessedAt, current.UpdatedAt,
		)
		if err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SumBusinessAccountReceipts totals live receipts for the account within [from, to).
func (r *PostgresRepository) SumBusinessAccountReceipts(ctx context.Context, accountID string, from, to time.Time) (int64, error) {
	var total int64
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)::bigint FROM bank_transactions
		WHERE business_account_id = $1
		  AND status NOT IN ('failed', 'reversed')
		  AND created_at >= $2 AND created_at < $3`, accountID, from, to).Scan(&total)
	return total, err
}

// --- business accounts ---

const businessAccountColumns = `id, organization_id, bank_name, account_type, account_mask, routing_mask,
	business_name, ein_mask, is_verified, is_primary, can_receive_payments, can_send_payments,
	daily_receive_limit, monthly_receive_limit, fees, processing_schedule, created_at, updated_at`

func scanBusinessAccount(row pgx.Row) (*domain.BusinessBankAccount, error) {
	var a domain.BusinessBankAccount
	var fees, schedule []byte
	err := row.Scan(
		&a.ID, &a.OrganizationID, &a.BankName, &a.AccountType, &a.AccountMask, &a.RoutingMask,
		&a.BusinessName, &a.EINMask, &a.IsVerified, &a.IsPrimary, &a.CanReceivePayments, &a.CanSendPayments,
		&a.DailyReceiveLimit, &a.MonthlyReceiveLimit, &fees, &schedule, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBusinessAccountNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(fees, &a.Fees); err != nil {
		return nil, fmt.Errorf("decode fees for business account %s: %w", a.ID, err)
	}
	if err := json.Unmarshal(schedule, &a.ProcessingSchedule); err != nil {
		return nil, fmt.Errorf("decode schedule for business account %s: %w", a.ID, err)
	}
	return &a, nil
}

// CreateBusinessAccount inserts a.
func (r *PostgresRepository) CreateBusinessAccount(ctx context.Context, a *domain.BusinessBankAccount) error {
	fees, err := toJSON(a.Fees)
	if err != nil {
		return err
	}
	schedule, err := toJSON(a.ProcessingSchedule)
	if err != nil {
		return err
	}
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if a.IsPrimary {
			if _, err := tx.Exec(ctx, `UPDATE business_bank_accounts SET is_primary = FALSE WHERE organization_id = $1 AND is_primary`, a.OrganizationID); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, `INSERT INTO business_bank_accounts (`+businessAccountColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
			a.ID, a.OrganizationID, a.BankName, a.AccountType, a.AccountMask, a.RoutingMask,
			a.BusinessName, a.EINMask, a.IsVerified, a.IsPrimary, a.CanReceivePayments, a.CanSendPayments,
			a.DailyReceiveLimit, a.MonthlyReceiveLimit, fees, schedule, a.CreatedAt, a.UpdatedAt,
		)
		return err
	})
}

// GetBusinessAccount returns the business account with id.
func (r *PostgresRepository) GetBusinessAccount(ctx context.Context, id string) (*domain.BusinessBankAccount, error) {
	return scanBusinessAccount(r.db.QueryRow(ctx, `SELECT `+businessAccountColumns+` FROM business_bank_accounts WHERE id = $1`, id))
}

// ListBusinessAccounts returns the organization's accounts oldest first.
func (r *PostgresRepository) ListBusinessAccounts(ctx context.Context, organizationID string) ([]domain.BusinessBankAccount, error) {
	rows, err := r.db.Query(ctx, `SELECT `+businessAccountColumns+` FROM business_bank_accounts WHERE organization_id = $1 ORDER BY created_at, id`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.BusinessBankAccount, 0)
	for rows.Next() {
		a, err := scanBusinessAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// --- payment routes ---

const routeColumns = `id, organization_id, name, account_id, rules, is_active, priority, created_at, updated_at`

func scanRoute(row pgx.Row) (*domain.PaymentRoute, error) {
	var route domain.PaymentRoute
	var rules []byte
	err := row.Scan(&route.ID, &route.OrganizationID, &route.Name, &route.AccountID, &rules,
		&route.IsActive, &route.Priority, &route.CreatedAt, &route.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRouteNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(rules, &route.Rules); err != nil {
		return nil, fmt.Errorf("decode rules for route %s: %w", route.ID, err)
	}
	return &route, nil
}

// CreateRoute inserts route.
func (r *PostgresRepository) CreateRoute(ctx context.Context, route *domain.PaymentRoute) error {
	rules, err := toJSON(route.Rules)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO payment_routes (`+routeColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		route.ID, route.OrganizationID, route.Name, route.AccountID, rules, route.IsActive, route.Priority, route.CreatedAt, route.UpdatedAt)
	return err
}

// GetRoute returns the route with id.
func (r *PostgresRepository) GetRoute(ctx context.Context, id string) (*domain.PaymentRoute, error) {
	return scanRoute(r.db.QueryRow(ctx, `SELECT `+routeColumns+` FROM payment_routes WHERE id = $1`, id))
}

// ListRoutes returns the organization's routes in ascending priority.
func (r *PostgresRepository) ListRoutes(ctx context.Context, organizationID string) ([]domain.PaymentRoute, error) {
	rows, err := r.db.Query(ctx, `SELECT `+routeColumns+` FROM payment_routes WHERE organization_id = $1 ORDER BY priority, created_at, id`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.PaymentRoute, 0)
	for rows.Next() {
		route, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *route)
	}
	return out, rows.Err()
}

// UpdateRoute locks the row, applies fn and writes the result.
func (r *PostgresRepository) UpdateRoute(ctx context.Context, id string, fn RouteMutator) (*domain.PaymentRoute, error) {
	var updated *domain.PaymentRoute
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		route, err := scanRoute(tx.QueryRow(ctx, `SELECT `+routeColumns+` FROM payment_routes WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if err := fn(route); err != nil {
			return err
		}
		route.ID = id
		rules, err := toJSON(route.Rules)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE payment_routes SET name = $2, account_id = $3, rules = $4, is_active = $5, priority = $6, updated_at = $7
			WHERE id = $1`, route.ID, route.Name, route.AccountID, rules, route.IsActive, route.Priority, route.UpdatedAt)
		if err != nil {
			return err
		}
		updated = route
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteRoute removes the route with id.
func (r *PostgresRepository) DeleteRoute(ctx context.Context, id string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM payment_routes WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrRouteNotFound
	}
	return nil
}

var (
	_ Repository = (*PostgresRepository)(nil)
	_ Repository = (*MemoryRepository)(nil)
)
