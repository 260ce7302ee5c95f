// Package sqliterepo is the provided users.Repo implementation, backed
// by a single-table SQLite database. The auth core treats user-record
// persistence as best-effort: callers log and continue when writes fail.
package sqliterepo

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	apperrors "github.com/pulsetrack/pulsetrack/internal/errors"
	"github.com/pulsetrack/pulsetrack/users"
)

var _ users.Repo = (*Repo)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id           TEXT PRIMARY KEY,
	external_id  TEXT NOT NULL UNIQUE,
	email        TEXT NOT NULL DEFAULT '',
	display_name TEXT NOT NULL DEFAULT '',
	avatar_url   TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL,
	last_login   INTEGER NOT NULL
);`

// Repo provides SQLite-backed persistence for user records.
type Repo struct {
	sqlDB   *sql.DB
	nowTime func() time.Time
}

// Open opens (and if necessary creates) the users database at path.
func Open(path string) (*Repo, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create users table: %w", err)
	}

	return &Repo{sqlDB: sqlDB, nowTime: time.Now}, nil
}

// Close closes the underlying database.
func (r *Repo) Close() error {
	if r == nil || r.sqlDB == nil {
		return nil
	}
	return r.sqlDB.Close()
}

// SetNowTime overrides the clock (primarily for testing).
func (r *Repo) SetNowTime(now func() time.Time) {
	r.nowTime = now
}

func (r *Repo) FindByExternalID(ctx context.Context, externalID string) (*users.User, error) {
	row := r.sqlDB.QueryRowContext(ctx,
		`SELECT id, external_id, email, display_name, avatar_url, created_at, last_login
		 FROM users WHERE external_id = ?`, externalID)

	var (
		u                    users.User
		createdAt, lastLogin int64
	)
	err := row.Scan(&u.ID, &u.ExternalID, &u.Email, &u.DisplayName, &u.AvatarURL, &createdAt, &lastLogin)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user by external id: %w", err)
	}

	u.CreatedAt = time.UnixMilli(createdAt).UTC()
	u.LastLogin = time.UnixMilli(lastLogin).UTC()
	return &u, nil
}

func (r *Repo) Upsert(ctx context.Context, profile users.Profile) (*users.User, error) {
	if profile.ExternalID == "" {
		return nil, fmt.Errorf("external id is required")
	}

	now := r.nowTime().UTC()
	id := uuid.New().String()

	_, err := r.sqlDB.ExecContext(ctx,
		`INSERT INTO users (id, external_id, email, display_name, avatar_url, created_at, last_login)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(external_id) DO UPDATE SET
			email = excluded.email,
			display_name = excluded.display_name,
			avatar_url = excluded.avatar_url,
			last_login = excluded.last_login`,
		id, profile.ExternalID, profile.Email, profile.DisplayName, profile.AvatarURL,
		now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}

	return r.FindByExternalID(ctx, profile.ExternalID)
}
