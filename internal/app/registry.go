package app

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/banklink-service/internal/bankcheck"
	"github.com/transfa/banklink-service/internal/clock"
	"github.com/transfa/banklink-service/internal/domain"
	"github.com/transfa/banklink-service/internal/store"
)

const maxRiskScore = 100

// ConnectionRegistry owns BankConnection records and their lifecycle.
type ConnectionRegistry struct {
	repo     store.Repository
	verifier *VerificationEngine
	clock    clock.Clock
	locker   Locker
	events   *eventEmitter
	logger   *slog.Logger
	settings Settings
}

func tenantLockKey(id string) string { return "tenant:" + id }

func accountTypeFromLink(acct domain.LinkedAccount) domain.AccountType {
	business := strings.Contains(strings.ToLower(acct.Type), "business") ||
		strings.Contains(strings.ToLower(acct.Subtype), "business")
	savings := strings.Contains(strings.ToLower(acct.Subtype), "savings")
	switch {
	case business && savings:
		return domain.AccountTypeBusinessSavings
	case business:
		return domain.AccountTypeBusinessChecking
	case savings:
		return domain.AccountTypeSavings
	default:
		return domain.AccountTypeChecking
	}
}

// Connect creates a connection for the selected account of a completed link
// session. With auto verification enabled it is verified instantly.
func (r *ConnectionRegistry) Connect(ctx context.Context, tenantID string, link domain.LinkResult, selectedAccountID string) (*domain.BankConnection, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, domain.NewValidationError("tenant_id", "is required")
	}
	acct, ok := link.FindAccount(selectedAccountID)
	if !ok {
		return nil, domain.ErrLinkedAccountNotFound
	}
	if acct.RoutingNumber != "" && !bankcheck.ValidateRoutingNumber(acct.RoutingNumber) {
		return nil, domain.NewValidationError("routing_number", "failed ABA checksum")
	}
	if acct.AccountNumber != "" && !bankcheck.ValidateAccountNumber(acct.AccountNumber) {
		return nil, domain.NewValidationError("account_number", "must contain 4 to 17 digits")
	}

	mask := bankcheck.MaskAccountNumber(acct.AccountNumber)
	if acct.Mask != "" {
		mask = "****" + acct.Mask
	}
	bankName := strings.TrimSpace(link.Institution.Name)
	if bankName == "" {
		bankName = "Unknown Bank"
	}

	// The tenant lock keeps the count and the insert together.
	unlockTenant, err := r.locker.Lock(ctx, tenantLockKey(tenantID))
	if err != nil {
		return nil, err
	}
	defer unlockTenant()
	if r.settings.MaxConnectionsPerTenant > 0 {
		count, err := r.repo.CountConnectionsByTenant(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		if count >= r.settings.MaxConnectionsPerTenant {
			return nil, domain.ErrConnectionLimit
		}
	}

	now := r.clock.Now()
	conn := &domain.BankConnection{
		ID:                 uuid.NewString(),
		TenantID:           tenantID,
		InstitutionID:      link.Institution.ID,
		BankName:           bankName,
		AccountName:        acct.Name,
		AccountType:        accountTypeFromLink(acct),
		AccountMask:        mask,
		RoutingNumber:      acct.RoutingNumber,
		VerificationStatus: domain.ConnectionPending,
		IsActive:           true,
		Permissions: domain.Permissions{
			Read:   domain.Permission{Granted: true},
			Debit:  domain.Permission{Granted: true},
			Credit: domain.Permission{Granted: true},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.repo.CreateConnection(ctx, conn); err != nil {
		return nil, err
	}
	r.logger.Info("bank connection linked", "connection_id", conn.ID, "tenant_id", tenantID, "is_default", conn.IsDefault)
	r.events.emit(ctx, domain.EventConnectionLinked, domain.ConnectionEvent{
		ConnectionID: conn.ID,
		TenantID:     conn.TenantID,
		BankName:     conn.BankName,
		AccountMask:  conn.AccountMask,
	})

	if !r.settings.AutoVerifyOnLink {
		return conn, nil
	}
	if _, err := r.verifier.Initiate(ctx, conn.ID, domain.VerificationInstant); err != nil {
		r.logger.Warn("instant verification on link failed; connection left pending", "connection_id", conn.ID, "error", err)
		return conn, nil
	}
	return r.repo.GetConnection(ctx, conn.ID)
}

// Get returns the connection with id.
func (r *ConnectionRegistry) Get(ctx context.Context, id string) (*domain.BankConnection, error) {
	return r.repo.GetConnection(ctx, id)
}

// List returns the tenant's connections.
func (r *ConnectionRegistry) List(ctx context.Context, tenantID string) ([]domain.BankConnection, error) {
	return r.repo.ListConnectionsByTenant(ctx, tenantID)
}

func validateUpdate(update domain.ConnectionUpdate) error {
	if update.DailyLimit != nil && *update.DailyLimit < 0 {
		return domain.NewValidationError("daily_limit", "must not be negative")
	}
	if update.MonthlyLimit != nil && *update.MonthlyLimit < 0 {
		return domain.NewValidationError("monthly_limit", "must not be negative")
	}
	if update.RiskScore != nil && (*update.RiskScore < 0 || *update.RiskScore > maxRiskScore) {
		return domain.NewValidationError("risk_score", "must be between 0 and 100")
	}
	if update.BankName != nil && strings.TrimSpace(*update.BankName) == "" {
		return domain.NewValidationError("bank_name", "must not be blank")
	}
	return nil
}

// Update merges the non-nil fields of update and refreshes UpdatedAt.
func (r *ConnectionRegistry) Update(ctx context.Context, id string, update domain.ConnectionUpdate) (*domain.BankConnection, error) {
	if err := validateUpdate(update); err != nil {
		return nil, err
	}
	now := r.clock.Now()
	return r.repo.UpdateConnection(ctx, id, func(c *domain.BankConnection) error {
		if update.BankName != nil {
			c.BankName = strings.TrimSpace(*update.BankName)
		}
		if update.AccountName != nil {
			c.AccountName = *update.AccountName
		}
		if update.IsActive != nil {
			c.IsActive = *update.IsActive
		}
		if update.IsDefault != nil {
			c.IsDefault = *update.IsDefault
		}
		if update.RiskScore != nil {
			c.RiskScore = *update.RiskScore
		}
		if update.ClearDailyLimit {
			c.DailyLimit = nil
		} else if update.DailyLimit != nil {
			limit := *update.DailyLimit
			c.DailyLimit = &limit
		}
		if update.ClearMonthlyLimit {
			c.MonthlyLimit = nil
		} else if update.MonthlyLimit != nil {
			limit := *update.MonthlyLimit
			c.MonthlyLimit = &limit
		}
		c.UpdatedAt = now
		return nil
	})
}

// SetPermission grants or revokes one permission, optionally with an expiry.
func (r *ConnectionRegistry) SetPermission(ctx context.Context, id string, kind domain.PermissionKind, granted bool, expiresAt *time.Time) (*domain.BankConnection, error) {
	if !kind.Valid() {
		return nil, domain.NewValidationError("permission", "must be read, debit or credit")
	}
	now := r.clock.Now()
	if expiresAt != nil && !expiresAt.After(now) {
		return nil, domain.NewValidationError("expires_at", "must be in the future")
	}
	return r.repo.UpdateConnection(ctx, id, func(c *domain.BankConnection) error {
		perm := domain.Permission{Granted: granted}
		if granted && expiresAt != nil {
			exp := *expiresAt
			perm.ExpiresAt = &exp
		}
		c.Permissions.Set(kind, perm)
		c.UpdatedAt = now
		return nil
	})
}

// Remove hard-deletes the connection unless it has in-flight transactions.
// It holds the connection lock so no submission can slip in between.
func (r *ConnectionRegistry) Remove(ctx context.Context, id string) error {
	unlock, err := r.locker.Lock(ctx, connectionLockKey(id))
	if err != nil {
		return err
	}
	defer unlock()

	conn, err := r.repo.GetConnection(ctx, id)
	if err != nil {
		return err
	}
	if err := r.repo.DeleteConnection(ctx, id); err != nil {
		return err
	}
	r.logger.Info("bank connection removed", "connection_id", id, "tenant_id", conn.TenantID)
	r.events.emit(ctx, domain.EventConnectionRemoved, domain.ConnectionEvent{
		ConnectionID: id,
		TenantID:     conn.TenantID,
	})
	return nil
}
