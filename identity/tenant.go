package identity

import (
	"fmt"

	"marketplace/config"
	"marketplace/user"
)

// Tenant names one of the two identity pools.
type Tenant int

const (
	TenantGeneral Tenant = iota
	TenantAdmin
)

func (t Tenant) String() string {
	switch t {
	case TenantAdmin:
		return "admin"
	case TenantGeneral:
		return "general"
	default:
		return fmt.Sprintf("tenant(%d)", int(t))
	}
}

// TenantConfig carries the per-pool identifiers and client secret.
type TenantConfig struct {
	PoolID       string
	ClientID     string
	ClientSecret string
}

// Tenants is the lookup table from tenant to pool configuration.
type Tenants map[Tenant]TenantConfig

// NewTenants builds the table from process configuration.
func NewTenants(cfg config.Cognito) Tenants {
	return Tenants{
		TenantGeneral: {
			PoolID:       cfg.UserPoolID,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
		},
		TenantAdmin: {
			PoolID:       cfg.AdminUserPoolID,
			ClientID:     cfg.AdminClientID,
			ClientSecret: cfg.AdminClientSecret,
		},
	}
}

// Get returns the configuration for t.
func (ts Tenants) Get(t Tenant) (TenantConfig, error) {
	tc, ok := ts[t]
	if !ok || tc.PoolID == "" || tc.ClientID == "" {
		return TenantConfig{}, fmt.Errorf("identity: tenant %s not configured", t)
	}
	return tc, nil
}

// TenantFor selects the pool for a user type: admins live in the admin pool,
// everyone else in the general pool.
func TenantFor(t user.Type) Tenant {
	if t == user.TypeAdmin {
		return TenantAdmin
	}
	return TenantGeneral
}
