package model

import "time"

// Tenant is a property (or property group) using the bridge.  Admin
// requests authenticate by exchanging the tenant API key for a JWT;
// only a bcrypt hash of the key is stored.
type Tenant struct {
	ID         uint64    // tenants.id
	Name       string    // tenants.name
	APIKeyHash string    // tenants.api_key_hash (bcrypt)
	Role       string    // tenants.role: ADMIN | REVIEWER
	IsActive   bool      // tenants.is_active
	CreatedAt  time.Time // tenants.created_at
}
