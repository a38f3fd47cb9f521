package repo

import (
	"context"
	"database/sql"
	"time"

	"crewboard/internal/domain"
)

// --- predefined statuses ---

func (r Repo) InsertPredefinedStatus(ctx context.Context, s domain.PredefinedStatus) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO predefined_statuses(id,tenant_id,label,position) VALUES (?,?,?,?)`,
		s.ID, s.TenantID, s.Label, s.Position)
	return err
}

func (r Repo) ListPredefinedStatuses(ctx context.Context, tenantID string) ([]domain.PredefinedStatus, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,tenant_id,label,position FROM predefined_statuses
WHERE tenant_id=? ORDER BY position ASC, label ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PredefinedStatus
	for rows.Next() {
		var s domain.PredefinedStatus
		if err := rows.Scan(&s.ID, &s.TenantID, &s.Label, &s.Position); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) GetPredefinedStatusByLabel(ctx context.Context, tenantID, label string) (domain.PredefinedStatus, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,label,position FROM predefined_statuses
WHERE tenant_id=? AND label=?`, tenantID, label)
	var s domain.PredefinedStatus
	err := row.Scan(&s.ID, &s.TenantID, &s.Label, &s.Position)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) DeletePredefinedStatus(ctx context.Context, tenantID, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM predefined_statuses WHERE id=? AND tenant_id=?`, id, tenantID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplacePredefinedStatuses swaps the full ordered list of a tenant in one
// transaction, preserving positions by list order.
func (r Repo) ReplacePredefinedStatuses(ctx context.Context, tenantID string, statuses []domain.PredefinedStatus) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM predefined_statuses WHERE tenant_id=?`, tenantID); err != nil {
		return err
	}
	for i, s := range statuses {
		if _, err := tx.ExecContext(ctx, `INSERT INTO predefined_statuses(id,tenant_id,label,position) VALUES (?,?,?,?)`,
			s.ID, tenantID, s.Label, i); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// --- announcements ---

func (r Repo) InsertAnnouncement(ctx context.Context, a domain.Announcement) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO announcements(id,tenant_id,message,position,created_at,updated_at)
VALUES (?,?,?,?,?,?)`,
		a.ID, a.TenantID, a.Message, a.Position, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) GetAnnouncement(ctx context.Context, tenantID, id string) (domain.Announcement, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,message,position,created_at,updated_at
FROM announcements WHERE id=? AND tenant_id=?`, id, tenantID)
	var a domain.Announcement
	err := row.Scan(&a.ID, &a.TenantID, &a.Message, &a.Position, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) ListAnnouncements(ctx context.Context, tenantID string) ([]domain.Announcement, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,tenant_id,message,position,created_at,updated_at
FROM announcements WHERE tenant_id=? ORDER BY position ASC, created_at ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Announcement
	for rows.Next() {
		var a domain.Announcement
		if err := rows.Scan(&a.ID, &a.TenantID, &a.Message, &a.Position, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) UpdateAnnouncement(ctx context.Context, tenantID, id string, message *string, position *int) error {
	if message == nil && position == nil {
		return nil
	}
	query := `UPDATE announcements SET updated_at=?`
	args := []any{time.Now().UTC().Format(time.RFC3339)}
	if message != nil {
		query += `, message=?`
		args = append(args, *message)
	}
	if position != nil {
		query += `, position=?`
		args = append(args, *position)
	}
	query += ` WHERE id=? AND tenant_id=?`
	args = append(args, id, tenantID)
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteAnnouncement(ctx context.Context, tenantID, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM announcements WHERE id=? AND tenant_id=?`, id, tenantID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
