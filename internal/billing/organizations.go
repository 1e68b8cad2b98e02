package billing

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"
)

var ErrOrganizationNotFound = errors.New("organization not found")

type Organization struct {
	ID                   string    `json:"id" db:"id"`
	Name                 string    `json:"name" db:"name"`
	Plan                 Plan      `json:"plan" db:"plan"`
	StripeCustomerID     string    `json:"stripe_customer_id,omitempty" db:"stripe_customer_id"`
	StripeSubscriptionID string    `json:"stripe_subscription_id,omitempty" db:"stripe_subscription_id"`
	SubscriptionStatus   string    `json:"subscription_status,omitempty" db:"subscription_status"`
	CreatedAt            time.Time `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time `json:"updated_at" db:"updated_at"`
}

// SubscriptionUpdate is what a Stripe subscription event writes onto the organization.
type SubscriptionUpdate struct {
	Plan                 Plan
	StripeCustomerID     string
	StripeSubscriptionID string
	Status               string
	UpdatedAt            time.Time
}

type OrganizationRepository interface {
	Get(ctx context.Context, id string) (Organization, error)
	FindByStripeCustomer(ctx context.Context, customerID string) (Organization, error)
	UpdateSubscription(ctx context.Context, id string, u SubscriptionUpdate) (Organization, error)
}

type SQLOrganizations struct {
	db *sql.DB
}

func NewSQLOrganizations(db *sql.DB) *SQLOrganizations { return &SQLOrganizations{db: db} }

const organizationColumns = `id, name, plan, stripe_customer_id, stripe_subscription_id, subscription_status, created_at, updated_at`

func scanOrganization(row *sql.Row) (Organization, error) {
	var (
		o                Organization
		customer, subsID sql.NullString
	)
	err := row.Scan(&o.ID, &o.Name, &o.Plan, &customer, &subsID, &o.SubscriptionStatus, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Organization{}, ErrOrganizationNotFound
	}
	if err != nil {
		return Organization{}, err
	}
	o.StripeCustomerID = customer.String
	o.StripeSubscriptionID = subsID.String
	return o, nil
}

func (r *SQLOrganizations) Get(ctx context.Context, id string) (Organization, error) {
	const q = `SELECT ` + organizationColumns + ` FROM organizations WHERE id = $1`
	return scanOrganization(r.db.QueryRowContext(ctx, q, id))
}

func (r *SQLOrganizations) FindByStripeCustomer(ctx context.Context, customerID string) (Organization, error) {
	if customerID == "" {
		return Organization{}, ErrOrganizationNotFound
	}
	const q = `SELECT ` + organizationColumns + ` FROM organizations WHERE stripe_customer_id = $1`
	return scanOrganization(r.db.QueryRowContext(ctx, q, customerID))
}

func (r *SQLOrganizations) UpdateSubscription(ctx context.Context, id string, u SubscriptionUpdate) (Organization, error) {
	const q = `
UPDATE organizations
SET plan = $1,
    stripe_customer_id = COALESCE($2, stripe_customer_id),
    stripe_subscription_id = COALESCE($3, stripe_subscription_id),
    subscription_status = $4,
    updated_at = $5
WHERE id = $6
RETURNING ` + organizationColumns

	return scanOrganization(r.db.QueryRowContext(ctx, q,
		string(u.Plan),
		nullIfEmpty(u.StripeCustomerID),
		nullIfEmpty(u.StripeSubscriptionID),
		u.Status,
		u.UpdatedAt.UTC(),
		id,
	))
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type MemoryOrganizations struct {
	mu   sync.Mutex
	orgs map[string]Organization
}

func NewMemoryOrganizations(seed ...Organization) *MemoryOrganizations {
	m := &MemoryOrganizations{orgs: map[string]Organization{}}
	for _, o := range seed {
		m.orgs[o.ID] = o
	}
	return m
}

func (m *MemoryOrganizations) Get(_ context.Context, id string) (Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orgs[id]
	if !ok {
		return Organization{}, ErrOrganizationNotFound
	}
	return o, nil
}

func (m *MemoryOrganizations) FindByStripeCustomer(_ context.Context, customerID string) (Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orgs {
		if customerID != "" && o.StripeCustomerID == customerID {
			return o, nil
		}
	}
	return Organization{}, ErrOrganizationNotFound
}

func (m *MemoryOrganizations) UpdateSubscription(_ context.Context, id string, u SubscriptionUpdate) (Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orgs[id]
	if !ok {
		return Organization{}, ErrOrganizationNotFound
	}
	o.Plan = u.Plan
	if u.StripeCustomerID != "" {
		o.StripeCustomerID = u.StripeCustomerID
	}
	if u.StripeSubscriptionID != "" {
		o.StripeSubscriptionID = u.StripeSubscriptionID
	}
	o.SubscriptionStatus = u.Status
	o.UpdatedAt = u.UpdatedAt.UTC()
	m.orgs[id] = o
	return o, nil
}
