// Package sqlite provides a SQLite-backed Store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dkeye/Playroom/internal/domain"
	"github.com/dkeye/Playroom/internal/storage"
	"github.com/dkeye/Playroom/internal/storage/sqlite/migrations"
	"github.com/rs/zerolog/log"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists invitations and known users in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store at path and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	log.Info().Str("module", "storage.sqlite").Str("path", cleanPath).Msg("store opened")
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

const invitationColumns = `id, from_identity, to_identity, game_name, kind, status, room_id, created_at, updated_at, expires_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvitation(row rowScanner) (domain.Invitation, error) {
	var (
		inv                          domain.Invitation
		from, to, status, roomID     string
		createdAt, updatedAt, expiry int64
	)
	if err := row.Scan(&inv.ID, &from, &to, &inv.GameName, &inv.Kind, &status, &roomID, &createdAt, &updatedAt, &expiry); err != nil {
		return domain.Invitation{}, err
	}
	parsed, ok := domain.ParseStatus(status)
	if !ok {
		return domain.Invitation{}, fmt.Errorf("invitation %s: unknown status %q", inv.ID, status)
	}
	inv.FromIdentity = domain.Identity(from)
	inv.ToIdentity = domain.Identity(to)
	inv.Status = parsed
	inv.RoomID = domain.RoomID(roomID)
	inv.CreatedAt = fromMillis(createdAt)
	inv.UpdatedAt = fromMillis(updatedAt)
	inv.ExpiresAt = fromMillis(expiry)
	return inv, nil
}

func (s *Store) queryOne(ctx context.Context, query string, args ...any) (domain.Invitation, error) {
	inv, err := scanInvitation(s.sqlDB.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Invitation{}, storage.ErrNotFound
	}
	return inv, err
}

// CreateInvitation inserts one invitation record.
func (s *Store) CreateInvitation(ctx context.Context, inv domain.Invitation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(inv.ID) == "" {
		return fmt.Errorf("invitation id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO invitations (`+invitationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID,
		string(inv.FromIdentity),
		string(inv.ToIdentity),
		inv.GameName,
		inv.Kind,
		string(inv.Status),
		string(inv.RoomID),
		toMillis(inv.CreatedAt),
		toMillis(inv.UpdatedAt),
		toMillis(inv.ExpiresAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create invitation: %w", err)
	}
	return nil
}

// GetInvitation returns one invitation by id.
func (s *Store) GetInvitation(ctx context.Context, id string) (domain.Invitation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Invitation{}, err
	}
	return s.queryOne(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE id = ?`, id)
}

func (s *Store) GetInvitationByRoom(ctx context.Context, roomID domain.RoomID) (domain.Invitation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Invitation{}, err
	}
	return s.queryOne(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE room_id = ? AND status = ? LIMIT 1`,
		string(roomID), string(domain.StatusAccepted))
}

func (s *Store) FindPendingInvitation(ctx context.Context, from, to domain.Identity, gameName string, now time.Time) (domain.Invitation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Invitation{}, err
	}
	return s.queryOne(ctx,
		`SELECT `+invitationColumns+` FROM invitations
		 WHERE from_identity = ? AND to_identity = ? AND game_name = ? AND status = ? AND expires_at >= ?
		 LIMIT 1`,
		string(from), string(to), gameName, string(domain.StatusPending), toMillis(now))
}

// TransitionInvitation is a compare-and-set on status.
func (s *Store) TransitionInvitation(ctx context.Context, t storage.Transition) (domain.Invitation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Invitation{}, err
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE invitations
		 SET status = ?, updated_at = ?, room_id = CASE WHEN ? = '' THEN room_id ELSE ? END
		 WHERE id = ? AND status = ?`,
		string(t.To), toMillis(t.At), string(t.RoomID), string(t.RoomID), t.ID, string(t.From))
	if err != nil {
		return domain.Invitation{}, fmt.Errorf("transition invitation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Invitation{}, fmt.Errorf("transition invitation rows: %w", err)
	}
	inv, err := s.GetInvitation(ctx, t.ID)
	if err != nil {
		return domain.Invitation{}, err
	}
	if n == 0 {
		return inv, storage.ErrConflict
	}
	return inv, nil
}

func (s *Store) ListPendingInvitations(ctx context.Context, to domain.Identity, now time.Time) ([]domain.Invitation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+invitationColumns+` FROM invitations
		 WHERE to_identity = ? AND status = ? AND expires_at >= ?
		 ORDER BY created_at DESC`,
		string(to), string(domain.StatusPending), toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("list pending invitations: %w", err)
	}
	defer rows.Close()

	out := []domain.Invitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invitations: %w", err)
	}
	return out, nil
}

func (s *Store) ExpirePendingInvitations(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE invitations SET status = ?, updated_at = ? WHERE status = ? AND expires_at < ?`,
		string(domain.StatusExpired), toMillis(now), string(domain.StatusPending), toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("expire invitations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire invitations rows: %w", err)
	}
	return int(n), nil
}

// TouchUser records that identity exists and was seen at at.
func (s *Store) TouchUser(ctx context.Context, id domain.Identity, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO users (identity, last_seen_at) VALUES (?, ?)
		 ON CONFLICT(identity) DO UPDATE SET last_seen_at = excluded.last_seen_at`,
		string(id), toMillis(at))
	if err != nil {
		return fmt.Errorf("touch user: %w", err)
	}
	return nil
}

func (s *Store) UserExists(ctx context.Context, id domain.Identity) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var found int
	err := s.sqlDB.QueryRowContext(ctx, `SELECT 1 FROM users WHERE identity = ?`, string(id)).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup user: %w", err)
	}
	return true, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
