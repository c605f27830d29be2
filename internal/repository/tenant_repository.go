package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/stayops/ota-bridge/internal/model"
)

// TenantRepo provides read access to the tenants table.  Tenant rows
// are provisioned out of band; the bridge only authenticates against
// them.
type TenantRepo struct {
	db *sql.DB
}

// NewTenantRepo returns a new TenantRepo bound to the given database.
func NewTenantRepo(db *sql.DB) *TenantRepo { return &TenantRepo{db: db} }

// GetByID loads a tenant.  Inactive tenants are returned as not found
// so disabled accounts cannot mint tokens.
func (r *TenantRepo) GetByID(ctx context.Context, id uint64) (*model.Tenant, error) {
	const q = `SELECT id, name, api_key_hash, role, is_active, created_at
			   FROM tenants WHERE id = ? AND is_active = 1`
	var t model.Tenant
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&t.ID, &t.Name, &t.APIKeyHash, &t.Role, &t.IsActive, &t.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
