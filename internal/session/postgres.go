package session

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Schema (Postgres):
//
//	CREATE TABLE admin_sessions (
//	  id               uuid PRIMARY KEY,
//	  admin_user_id    uuid NOT NULL,
//	  token_hash       text NOT NULL,
//	  created_at       timestamptz NOT NULL,
//	  last_activity_at timestamptz NOT NULL,
//	  expires_at       timestamptz NOT NULL,
//	  invalidated_at   timestamptz,
//	  ip_address       text,
//	  user_agent       text
//	);
//	CREATE INDEX admin_sessions_admin_idx ON admin_sessions (admin_user_id) WHERE invalidated_at IS NULL;

// PostgresStore implements Gateway on database/sql (pgx stdlib driver).
type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

const selectColumns = `id, admin_user_id, token_hash, created_at, last_activity_at, expires_at, invalidated_at, ip_address, user_agent`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		r           Record
		invalidated sql.NullTime
		ip, ua      sql.NullString
	)
	if err := row.Scan(&r.ID, &r.AdminUserID, &r.TokenHash, &r.CreatedAt, &r.LastActivityAt, &r.ExpiresAt, &invalidated, &ip, &ua); err != nil {
		return Record{}, err
	}
	if invalidated.Valid {
		t := invalidated.Time
		r.InvalidatedAt = &t
	}
	r.IPAddress = ip.String
	r.UserAgent = ua.String
	return r, nil
}

func (s *PostgresStore) Create(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admin_sessions (id, admin_user_id, token_hash, created_at, last_activity_at, expires_at, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''))`,
		r.ID, r.AdminUserID, r.TokenHash, r.CreatedAt, r.LastActivityAt, r.ExpiresAt, r.IPAddress, r.UserAgent)
	if err != nil {
		return wrap("create", err)
	}
	return nil
}

func (s *PostgresStore) FindActive(ctx context.Context, id string) (Record, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+selectColumns+`
		FROM admin_sessions
		WHERE id = $1 AND invalidated_at IS NULL AND expires_at > $2`, id, s.clock())
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, wrap("find", err)
	}
	return r, true, nil
}

func (s *PostgresStore) Invalidate(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE admin_sessions SET invalidated_at = $2
		WHERE id = $1 AND invalidated_at IS NULL`, id, s.clock())
	if err != nil {
		return wrap("invalidate", err)
	}
	return nil
}

func (s *PostgresStore) InvalidateAll(ctx context.Context, adminUserID, exceptID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE admin_sessions SET invalidated_at = $3
		WHERE admin_user_id = $1 AND invalidated_at IS NULL
		  AND ($2 = '' OR id::text <> $2)`, adminUserID, exceptID, s.clock())
	if err != nil {
		return wrap("invalidate all", err)
	}
	return nil
}

func (s *PostgresStore) Touch(ctx context.Context, id, tokenHash string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE admin_sessions SET token_hash = $2, last_activity_at = $3
		WHERE id = $1 AND invalidated_at IS NULL AND expires_at > $4`, id, tokenHash, at, s.clock())
	if err != nil {
		return false, wrap("touch", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrap("touch", err)
	}
	return n == 1, nil
}

func (s *PostgresStore) ListByAdmin(ctx context.Context, adminUserID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM admin_sessions
		WHERE admin_user_id = $1
		ORDER BY created_at DESC
		LIMIT 100`, adminUserID)
	if err != nil {
		return nil, wrap("list", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, wrap("list scan", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list", err)
	}
	return out, nil
}
