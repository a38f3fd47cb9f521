package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ForbiddenError indicates the actor lacks the required role on a tenant.
type ForbiddenError struct {
	Role string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("role %s required", e.Role)
}

// Service provides tenant-membership checks backed by SQL.
type Service struct {
	DB *sql.DB
}

func (s Service) EnsureActor(ctx context.Context, tx *sql.Tx, actorID string) error {
	if actorID == "" {
		return errors.New("actor_id required")
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO actors(id, created_at) VALUES (?,?)`, actorID, now)
	return err
}

// ActorRole returns the actor's role on the tenant, or "" for non-members.
func (s Service) ActorRole(ctx context.Context, tenantID, actorID string) (string, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT role FROM members WHERE tenant_id=? AND actor_id=? LIMIT 1`,
		tenantID, actorID)
	var role string
	err := row.Scan(&role)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return role, err
}

// RequireMember fails with ForbiddenError unless the actor belongs to the tenant.
func (s Service) RequireMember(ctx context.Context, tenantID, actorID string) error {
	role, err := s.ActorRole(ctx, tenantID, actorID)
	if err != nil {
		return err
	}
	if role == "" {
		return ForbiddenError{Role: "member"}
	}
	return nil
}

// RequireAdmin fails with ForbiddenError unless the actor is a tenant admin.
func (s Service) RequireAdmin(ctx context.Context, tenantID, actorID string) error {
	role, err := s.ActorRole(ctx, tenantID, actorID)
	if err != nil {
		return err
	}
	if role != "admin" {
		return ForbiddenError{Role: "admin"}
	}
	return nil
}

// ActorTenants lists the tenant IDs the actor is a member of.
func (s Service) ActorTenants(ctx context.Context, actorID string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT tenant_id FROM members WHERE actor_id=? ORDER BY tenant_id`, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tenants []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}
