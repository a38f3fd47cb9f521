package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crewboard/internal/config"
	"crewboard/internal/repo"
)

// ResolveTenantAndConfig picks the active tenant and ensures a tenant + config
// exist in DB, seeding defaults if missing. It prefers the override, then
// single-tenant DB. If the tenant does not exist, it is created on the fly.
func ResolveTenantAndConfig(ctx context.Context, tenantOverride, actorID string, r repo.Repo) (string, *config.Config, error) {
	tenantID := tenantOverride
	if tenantID == "" {
		if t, err := r.SingleTenant(ctx); err == nil {
			tenantID = t.ID
		} else {
			return "", nil, fmt.Errorf("tenant not specified; use --tenant")
		}
	}
	seedCfg := config.Default(tenantID)

	if _, err := r.GetTenant(ctx, tenantID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if err := createTenant(ctx, r, tenantID, seedCfg, actorID); err != nil {
			return "", nil, err
		}
	}
	cfg, err := r.GetTenantConfig(ctx, tenantID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			if err := r.UpsertTenantConfig(ctx, tenantID, seedCfg); err != nil {
				return "", nil, fmt.Errorf("seed tenant config: %w", err)
			}
			cfg = seedCfg
		} else {
			return "", nil, err
		}
	}
	cfg.Tenant.ID = tenantID
	return tenantID, cfg, nil
}

// createTenant inserts a minimal tenant/membership footprint using the seed config.
func createTenant(ctx context.Context, r repo.Repo, tenantID string, seedCfg *config.Config, actorID string) error {
	if seedCfg == nil {
		seedCfg = config.Default(tenantID)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO tenants(id,company_name,created_at) VALUES (?,?,?)`,
		tenantID, seedCfg.Tenant.CompanyName, now); err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}
	if err := r.UpsertTenantConfigTx(ctx, tx, tenantID, seedCfg); err != nil {
		return fmt.Errorf("insert tenant config: %w", err)
	}
	if actorID == "" {
		actorID = "local-user"
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO actors(id,created_at) VALUES (?,?)`, actorID, now); err != nil {
		return fmt.Errorf("ensure actor: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO members(tenant_id,actor_id,role,created_at) VALUES (?,?,?,?)`,
		tenantID, actorID, repo.RoleAdmin, now); err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	return tx.Commit()
}
