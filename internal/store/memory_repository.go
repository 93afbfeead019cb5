package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/transfa/banklink-service/internal/domain"
)

// MemoryRepository keeps every entity collection in process memory. Records
// are copied on the way in and out so callers never alias stored state.
type MemoryRepository struct {
	mu            sync.RWMutex
	connections   map[string]*domain.BankConnection
	verifications map[string]*domain.BankVerification
	transactions  map[string]*domain.BankTransaction
	accounts      map[string]*domain.BusinessBankAccount
	routes        map[string]*domain.PaymentRoute
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		connections:   make(map[string]*domain.BankConnection),
		verifications: make(map[string]*domain.BankVerification),
		transactions:  make(map[string]*domain.BankTransaction),
		accounts:      make(map[string]*domain.BusinessBankAccount),
		routes:        make(map[string]*domain.PaymentRoute),
	}
}

func byCreated[T any](items []T, created func(T) time.Time, id func(T) string) {
	sort.SliceStable(items, func(i, j int) bool {
		ci, cj := created(items[i]), created(items[j])
		if ci.Equal(cj) {
			return id(items[i]) < id(items[j])
		}
		return ci.Before(cj)
	})
}

// CreateConnection inserts c. The first connection of a tenant becomes its default.
func (m *MemoryRepository) CreateConnection(ctx context.Context, c *domain.BankConnection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	hasOther := false
	for _, other := range m.connections {
		if other.TenantID == c.TenantID {
			hasOther = true
			break
		}
	}
	if !hasOther {
		c.IsDefault = true
	}
	if c.IsDefault {
		m.clearDefaultLocked(c.TenantID, c.ID)
	}
	m.connections[c.ID] = c.Clone()
	return nil
}

func (m *MemoryRepository) clearDefaultLocked(tenantID, keepID string) {
	for id, other := range m.connections {
		if id != keepID && other.TenantID == tenantID && other.IsDefault {
			other.IsDefault = false
		}
	}
}

// GetConnection returns the connection with id.
func (m *MemoryRepository) GetConnection(ctx context.Context, id string) (*domain.BankConnection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.connections[id]
	if !ok {
		return nil, domain.ErrConnectionNotFound
	}
	return c.Clone(), nil
}

// ListConnectionsByTenant returns the tenant's connections oldest first.
func (m *MemoryRepository) ListConnectionsByTenant(ctx context.Context, tenantID string) ([]domain.BankConnection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.BankConnection, 0)
	for _, c := range m.connections {
		if c.TenantID == tenantID {
			out = append(out, *c.Clone())
		}
	}
	byCreated(out, func(c domain.BankConnection) time.Time { return c.CreatedAt }, func(c domain.BankConnection) string { return c.ID })
	return out, nil
}

// CountConnectionsByTenant returns how many connections the tenant owns.
func (m *MemoryRepository) CountConnectionsByTenant(ctx context.Context, tenantID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.connections {
		if c.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

// UpdateConnection applies fn to a copy of the connection and stores it when fn succeeds.
func (m *MemoryRepository) UpdateConnection(ctx context.Context, id string, fn ConnectionMutator) (*domain.BankConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.connections[id]
	if !ok {
		return nil, domain.ErrConnectionNotFound
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.TenantID = current.TenantID
	if next.IsDefault {
		m.clearDefaultLocked(next.TenantID, next.ID)
	}
	m.connections[id] = next
	return next.Clone(), nil
}

// DeleteConnection removes the connection and its verifications.
func (m *MemoryRepository) DeleteConnection(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.connections[id]; !ok {
		return domain.ErrConnectionNotFound
	}
	for _, tx := range m.transactions {
		if tx.ConnectionID == id && tx.Status.InFlight() {
			return domain.ErrConnectionInUse
		}
	}
	for vid, v := range m.verifications {
		if v.ConnectionID == id {
			delete(m.verifications, vid)
		}
	}
	delete(m.connections, id)
	return nil
}

// CreateVerification stores v, supersedes older pending verifications and applies fn to the connection.
func (m *MemoryRepository) CreateVerification(ctx context.Context, v *domain.BankVerification, fn ConnectionMutator) (*domain.BankConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.connections[v.ConnectionID]
	if !ok {
		return nil, domain.ErrConnectionNotFound
	}
	next := current.Clone()
	if fn != nil {
		if err := fn(next); err != nil {
			return nil, err
		}
	}
	for _, other := range m.verifications {
		if other.ConnectionID == v.ConnectionID && other.Status == domain.VerificationPending {
			other.Status = domain.VerificationFailed
			other.FailureReason = SupersededReason
			other.UpdatedAt = v.CreatedAt
		}
	}
	m.verifications[v.ID] = v.Clone()
	m.connections[next.ID] = next
	return next.Clone(), nil
}

// GetVerification returns the verification with id.
func (m *MemoryRepository) GetVerification(ctx context.Context, id string) (*domain.BankVerification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.verifications[id]
	if !ok {
		return nil, domain.ErrVerificationNotFound
	}
	return v.Clone(), nil
}

// LatestVerification returns the most recently created verification for a connection.
func (m *MemoryRepository) LatestVerification(ctx context.Context, connectionID string) (*domain.BankVerification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *domain.BankVerification
	for _, v := range m.verifications {
		if v.ConnectionID != connectionID {
			continue
		}
		if latest == nil || v.CreatedAt.After(latest.CreatedAt) || (v.CreatedAt.Equal(latest.CreatedAt) && v.ID > latest.ID) {
			latest = v
		}
	}
	if latest == nil {
		return nil, domain.ErrVerificationNotFound
	}
	return latest.Clone(), nil
}

// UpdateVerification applies fn to copies of the verification and its connection
// and stores both together when fn succeeds.
func (m *MemoryRepository) UpdateVerification(ctx context.Context, id string, fn VerificationMutator) (*domain.BankVerification, *domain.BankConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.verifications[id]
	if !ok {
		return nil, nil, domain.ErrVerificationNotFound
	}
	conn, ok := m.connections[current.ConnectionID]
	if !ok {
		return nil, nil, domain.ErrConnectionNotFound
	}
	nextV := current.Clone()
	nextC := conn.Clone()
	if err := fn(nextV, nextC); err != nil {
		return nil, nil, err
	}
	m.verifications[id] = nextV
	m.connections[nextC.ID] = nextC
	return nextV.Clone(), nextC.Clone(), nil
}

// ListExpiredPendingVerificationIDs returns pending verifications whose expiry is not after now.
func (m *MemoryRepository) ListExpiredPendingVerificationIDs(ctx context.Context, now time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0)
	for id, v := range m.verifications {
		if v.Status == domain.VerificationPending && !now.Before(v.ExpiresAt) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// CreateTransaction inserts tx.
func (m *MemoryRepository) CreateTransaction(ctx context.Context, tx *domain.BankTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.connections[tx.ConnectionID]; !ok {
		return domain.ErrConnectionNotFound
	}
	m.transactions[tx.ID] = tx.Clone()
	return nil
}

// GetTransaction returns the transaction with id.
func (m *MemoryRepository) GetTransaction(ctx context.Context, id string) (*domain.BankTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.transactions[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return tx.Clone(), nil
}

// ListTransactionsByConnection returns the connection's transactions oldest first.
func (m *MemoryRepository) ListTransactionsByConnection(ctx context.Context, connectionID string) ([]domain.BankTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.BankTransaction, 0)
	for _, tx := range m.transactions {
		if tx.ConnectionID == connectionID {
			out = append(out, *tx.Clone())
		}
	}
	byCreated(out, func(tx domain.BankTransaction) time.Time { return tx.CreatedAt }, func(tx domain.BankTransaction) string { return tx.ID })
	return out, nil
}

// UpdateTransaction applies fn to a copy of the transaction and stores it when fn succeeds.
func (m *MemoryRepository) UpdateTransaction(ctx context.Context, id string, fn TransactionMutator) (*domain.BankTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.transactions[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	m.transactions[id] = next
	return next.Clone(), nil
}

// SumBusinessAccountReceipts totals live receipts for the account within [from, to).
func (m *MemoryRepository) SumBusinessAccountReceipts(ctx context.Context, accountID string, from, to time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total int64
	for _, tx := range m.transactions {
		if tx.BusinessAccountID != accountID {
			continue
		}
		if tx.Status == domain.TransactionFailed || tx.Status == domain.TransactionReversed {
			continue
		}
		if tx.CreatedAt.Before(from) || !tx.CreatedAt.Before(to) {
			continue
		}
		total += tx.AmountCents
	}
	return total, nil
}

// CreateBusinessAccount inserts a.
func (m *MemoryRepository) CreateBusinessAccount(ctx context.Context, a *domain.BusinessBankAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.IsPrimary {
		for _, other := range m.accounts {
			if other.OrganizationID == a.OrganizationID {
				other.IsPrimary = false
			}
		}
	}
	m.accounts[a.ID] = a.Clone()
	return nil
}

// GetBusinessAccount returns the business account with id.
func (m *MemoryRepository) GetBusinessAccount(ctx context.Context, id string) (*domain.BusinessBankAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, domain.ErrBusinessAccountNotFound
	}
	return a.Clone(), nil
}

// ListBusinessAccounts returns the organization's accounts oldest first.
func (m *MemoryRepository) ListBusinessAccounts(ctx context.Context, organizationID string) ([]domain.BusinessBankAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.BusinessBankAccount, 0)
	for _, a := range m.accounts {
		if a.OrganizationID == organizationID {
			out = append(out, *a.Clone())
		}
	}
	byCreated(out, func(a domain.BusinessBankAccount) time.Time { return a.CreatedAt }, func(a domain.BusinessBankAccount) string { return a.ID })
	return out, nil
}

// CreateRoute inserts r.
func (m *MemoryRepository) CreateRoute(ctx context.Context, r *domain.PaymentRoute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[r.ID] = r.Clone()
	return nil
}

// GetRoute returns the route with id.
func (m *MemoryRepository) GetRoute(ctx context.Context, id string) (*domain.PaymentRoute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.routes[id]
	if !ok {
		return nil, domain.ErrRouteNotFound
	}
	return r.Clone(), nil
}

// ListRoutes returns the organization's routes in ascending priority.
func (m *MemoryRepository) ListRoutes(ctx context.Context, organizationID string) ([]domain.PaymentRoute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.PaymentRoute, 0)
	for _, r := range m.routes {
		if r.OrganizationID == organizationID {
			out = append(out, *r.Clone())
		}
	}
	byCreated(out, func(r domain.PaymentRoute) time.Time { return r.CreatedAt }, func(r domain.PaymentRoute) string { return r.ID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

// UpdateRoute applies fn to a copy of the route and stores it when fn succeeds.
func (m *MemoryRepository) UpdateRoute(ctx context.Context, id string, fn RouteMutator) (*domain.PaymentRoute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.routes[id]
	if !ok {
		return nil, domain.ErrRouteNotFound
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	m.routes[id] = next
	return next.Clone(), nil
}

// DeleteRoute removes the route with id.
func (m *MemoryRepository) DeleteRoute(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.routes[id]; !ok {
		return domain.ErrRouteNotFound
	}
	delete(m.routes, id)
	return nil
}
