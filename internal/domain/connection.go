/**
 * @description
 * This file defines the core domain models for linked tenant bank accounts.
 * A BankConnection is created from a completed aggregator link session and is
 * then mutated by verification and by limit/permission updates.
 *
 * @notes
 * - Amounts are stored as `int64` cents. Optional limits are pointers so that an
 *   unset limit is distinguishable from a zero limit.
 * - `IsVerified` is derived state; it must only be changed through
 *   `SetVerificationStatus` so it never drifts from `VerificationStatus`.
 */

package domain

import "time"

// AccountType is the kind of deposit account behind a connection or business account.
type AccountType string

const (
	AccountTypeChecking         AccountType = "checking"
	AccountTypeSavings          AccountType = "savings"
	AccountTypeBusinessChecking AccountType = "business_checking"
	AccountTypeBusinessSavings  AccountType = "business_savings"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeChecking, AccountTypeSavings, AccountTypeBusinessChecking, AccountTypeBusinessSavings:
		return true
	}
	return false
}

// ConnectionStatus is the verification state recorded on a BankConnection.
type ConnectionStatus string

const (
	ConnectionPending           ConnectionStatus = "pending"
	ConnectionMicroDepositsSent ConnectionStatus = "micro_deposits_sent"
	ConnectionVerified          ConnectionStatus = "verified"
	ConnectionFailed            ConnectionStatus = "failed"
	ConnectionExpired           ConnectionStatus = "expired"
)

// PermissionKind names one of the independently revocable connection grants.
type PermissionKind string

const (
	PermissionRead   PermissionKind = "read"
	PermissionDebit  PermissionKind = "debit"
	PermissionCredit PermissionKind = "credit"
)

// Valid reports whether k is a known permission kind.
func (k PermissionKind) Valid() bool {
	return k == PermissionRead || k == PermissionDebit || k == PermissionCredit
}

// Permission is a single grant with an optional expiry.
type Permission struct {
	Granted   bool       `json:"granted"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Active reports whether the grant is in force at the given instant.
func (p Permission) Active(now time.Time) bool {
	if !p.Granted {
		return false
	}
	return p.ExpiresAt == nil || now.Before(*p.ExpiresAt)
}

// Permissions groups the read/debit/credit grants of a connection.
type Permissions struct {
	Read   Permission `json:"read"`
	Debit  Permission `json:"debit"`
	Credit Permission `json:"credit"`
}

// Get returns the grant for kind.
func (p Permissions) Get(kind PermissionKind) Permission {
	switch kind {
	case PermissionRead:
		return p.Read
	case PermissionDebit:
		return p.Debit
	case PermissionCredit:
		return p.Credit
	}
	return Permission{}
}

// Set replaces the grant for kind. Unknown kinds are ignored.
func (p *Permissions) Set(kind PermissionKind, perm Permission) {
	switch kind {
	case PermissionRead:
		p.Read = perm
	case PermissionDebit:
		p.Debit = perm
	case PermissionCredit:
		p.Credit = perm
	}
}

// BankConnection is a tenant's linked consumer bank account.
// This struct maps directly to the `bank_connections` table.
type BankConnection struct {
	ID                 string             `json:"id"`
	TenantID           string             `json:"tenant_id"`
	InstitutionID      string             `json:"institution_id"`
	BankName           string             `json:"bank_name"`
	AccountName        string             `json:"account_name"`
	AccountType        AccountType        `json:"account_type"`
	AccountMask        string             `json:"account_mask"`
	RoutingNumber      string             `json:"routing_number"`
	VerificationStatus ConnectionStatus   `json:"verification_status"`
	VerificationMethod VerificationMethod `json:"verification_method,omitempty"`
	IsVerified         bool               `json:"is_verified"`
	IsActive           bool               `json:"is_active"`
	IsDefault          bool               `json:"is_default"`
	Permissions        Permissions        `json:"permissions"`
	RiskScore          int                `json:"risk_score"`
	DailyLimit         *int64             `json:"daily_limit,omitempty"`   // in cents
	MonthlyLimit       *int64             `json:"monthly_limit,omitempty"` // in cents
	LastVerifiedAt     *time.Time         `json:"last_verified_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// SetVerificationStatus moves the connection to status and keeps IsVerified in step.
func (c *BankConnection) SetVerificationStatus(status ConnectionStatus, at time.Time) {
	c.VerificationStatus = status
	c.IsVerified = status == ConnectionVerified
	if c.IsVerified {
		verifiedAt := at
		c.LastVerifiedAt = &verifiedAt
	}
	c.UpdatedAt = at
}

// CanMove reports whether the connection may be used for money movement in the
// given direction at the given instant.
func (c *BankConnection) CanMove(direction Direction, now time.Time) bool {
	if !c.IsVerified || !c.IsActive {
		return false
	}
	if direction == DirectionCredit {
		return c.Permissions.Credit.Active(now)
	}
	return c.Permissions.Debit.Active(now)
}

// ConnectionUpdate carries the partial fields accepted by an update.
// Nil fields are left untouched.
type ConnectionUpdate struct {
	BankName          *string `json:"bank_name,omitempty"`
	AccountName       *string `json:"account_name,omitempty"`
	IsActive          *bool   `json:"is_active,omitempty"`
	IsDefault         *bool   `json:"is_default,omitempty"`
	RiskScore         *int    `json:"risk_score,omitempty"`
	DailyLimit        *int64  `json:"daily_limit,omitempty"`
	MonthlyLimit      *int64  `json:"monthly_limit,omitempty"`
	ClearDailyLimit   bool    `json:"clear_daily_limit,omitempty"`
	ClearMonthlyLimit bool    `json:"clear_monthly_limit,omitempty"`
}

// LinkedInstitution identifies the bank that completed a link session.
type LinkedInstitution struct {
	ID   string `json:"institution_id"`
	Name string `json:"name"`
}

// LinkedAccount is one account returned by the aggregator for a link session.
type LinkedAccount struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Mask          string `json:"mask"`
	Type          string `json:"type"`
	Subtype       string `json:"subtype"`
	RoutingNumber string `json:"routing_number,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
}

// LinkResult is the already-completed aggregator link session consumed by Connect.
type LinkResult struct {
	Institution LinkedInstitution `json:"institution"`
	Accounts    []LinkedAccount   `json:"accounts"`
}

// FindAccount returns the linked account with the given id.
func (r LinkResult) FindAccount(id string) (LinkedAccount, bool) {
	for _, acct := range r.Accounts {
		if acct.ID == id {
			return acct, true
		}
	}
	return LinkedAccount{}, false
}
