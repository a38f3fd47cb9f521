package repo

import (
	"context"
	"database/sql"
	"time"

	"crewboard/internal/domain"
)

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// EnsureActor inserts the actor row if it does not exist yet.
func (r Repo) EnsureActor(ctx context.Context, actorID string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO actors(id,created_at) VALUES (?,?) ON CONFLICT(id) DO NOTHING`,
		actorID, time.Now().UTC().Format(time.RFC3339))
	return err
}

// AssignRole grants or changes an actor's role on a tenant.
func (r Repo) AssignRole(ctx context.Context, tenantID, actorID, role string) error {
	if err := r.EnsureActor(ctx, actorID); err != nil {
		return err
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO members(tenant_id,actor_id,role,created_at) VALUES (?,?,?,?)
ON CONFLICT(tenant_id,actor_id) DO UPDATE SET role=excluded.role`,
		tenantID, actorID, role, time.Now().UTC().Format(time.RFC3339))
	return err
}

// MemberRole returns the actor's role on a tenant, or ErrNotFound when the
// actor is not a member.
func (r Repo) MemberRole(ctx context.Context, tenantID, actorID string) (string, error) {
	var role string
	err := r.DB.QueryRowContext(ctx, `SELECT role FROM members WHERE tenant_id=? AND actor_id=?`, tenantID, actorID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return role, err
}

func (r Repo) IsAdmin(ctx context.Context, tenantID, actorID string) (bool, error) {
	role, err := r.MemberRole(ctx, tenantID, actorID)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return role == RoleAdmin, nil
}

func (r Repo) ListMembers(ctx context.Context, tenantID string) ([]domain.Member, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT tenant_id,actor_id,role,created_at FROM members
WHERE tenant_id=? ORDER BY created_at ASC, actor_id ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Member
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.TenantID, &m.ActorID, &m.Role, &m.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) RemoveMember(ctx context.Context, tenantID, actorID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM members WHERE tenant_id=? AND actor_id=?`, tenantID, actorID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
