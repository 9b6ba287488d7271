package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore writes audit entries to Postgres.
type PGStore struct {
	Pool *pgxpool.Pool
}

const insertAuditLog = `INSERT INTO audit_logs
  (actor_kind, actor_user_id, shop_id, action, resource_type, resource_id, method, path, route, status, ip, user_agent, request_id, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING id`

// InsertAuditLog appends one entry and returns its id.
func (s PGStore) InsertAuditLog(ctx context.Context, e Entry) (int64, error) {
	var metadata any
	if len(e.Metadata) > 0 {
		metadata = []byte(e.Metadata)
	}
	var id int64
	err := s.Pool.QueryRow(ctx, insertAuditLog,
		e.ActorKind, e.ActorUserID, e.ShopID, e.Action, e.ResourceType, e.ResourceID,
		e.Method, e.Path, e.Route, e.Status, e.IP, e.UserAgent, e.RequestID, metadata,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert audit log: %w", err)
	}
	return id, nil
}

// ListAuditLogs returns a newest-first page of entries and the matching total.
func (s PGStore) ListAuditLogs(ctx context.Context, p ListParams) ([]Entry, int, error) {
	var (
		where []string
		args  []any
	)
	if rt := strings.TrimSpace(p.ResourceType); rt != "" {
		args = append(args, rt)
		where = append(where, fmt.Sprintf("resource_type = $%d", len(args)))
	}
	if rid := strings.TrimSpace(p.ResourceID); rid != "" {
		args = append(args, rid)
		where = append(where, fmt.Sprintf("resource_id = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.Pool.QueryRow(ctx, "SELECT count(*) FROM audit_logs"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}

	args = append(args, p.Limit, p.Offset)
	query := fmt.Sprintf(`SELECT id, actor_kind, actor_user_id, shop_id, action, resource_type, resource_id,
  method, path, route, status, ip, user_agent, request_id, metadata, created_at
FROM audit_logs%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, clause, len(args)-1, len(args))
	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		var metadata []byte
		err := row.Scan(&e.ID, &e.ActorKind, &e.ActorUserID, &e.ShopID, &e.Action, &e.ResourceType, &e.ResourceID,
			&e.Method, &e.Path, &e.Route, &e.Status, &e.IP, &e.UserAgent, &e.RequestID, &metadata, &e.CreatedAt)
		e.Metadata = metadata
		return e, err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("scan audit logs: %w", err)
	}
	return entries, total, nil
}
