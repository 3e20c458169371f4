// Package registry persists channel bindings in SQLite.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vibergram/internal/domain"

	_ "modernc.org/sqlite"
)

// ErrDuplicateBinding is returned when an active binding with the same
// (owner, source channel, credential) triple already exists.
var ErrDuplicateBinding = errors.New("registry: binding already exists")

// Store implements domain.BindingRegistry using SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ domain.BindingRegistry = (*Store)(nil)

func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection: SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db, logger: logger}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS channels (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id       INTEGER NOT NULL,
		viber_token    TEXT NOT NULL,
		source_chat_id TEXT NOT NULL,
		active         INTEGER NOT NULL DEFAULT 1,
		created_at     DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_channels_active_triple
		ON channels(owner_id, source_chat_id, viber_token) WHERE active = 1;
	CREATE INDEX IF NOT EXISTS idx_channels_source
		ON channels(source_chat_id, active);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error { return s.db.Close() }

// Create stores a new binding and returns its id. The binding starts in
// whatever Active state the caller set; a conflicting active triple yields
// ErrDuplicateBinding.
func (s *Store) Create(ctx context.Context, b domain.ChannelBinding) (int64, error) {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO channels (owner_id, viber_token, source_chat_id, active, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		b.OwnerID, b.ViberToken, b.SourceChatID, boolToInt(b.Active), b.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateBinding
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	s.logger.Info("binding created", "id", id, "owner", b.OwnerID, "source", b.SourceChatID)
	return id, nil
}

func (s *Store) ListByOwner(ctx context.Context, ownerID int64) ([]domain.ChannelBinding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, viber_token, source_chat_id, active, created_at
		 FROM channels WHERE owner_id = ? ORDER BY id`, ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBindings(rows)
}

// SetActive toggles a binding owned by ownerID. The false return means the
// binding does not exist or belongs to someone else. Re-activating a paused
// binding whose triple meanwhile got an active twin yields
// ErrDuplicateBinding.
func (s *Store) SetActive(ctx context.Context, id, ownerID int64, active bool) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE channels SET active = ? WHERE id = ? AND owner_id = ?`,
		boolToInt(active), id, ownerID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, ErrDuplicateBinding
		}
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) Delete(ctx context.Context, id, ownerID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM channels WHERE id = ? AND owner_id = ?`, id, ownerID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListActiveBySource returns the active bindings for one source channel,
// oldest first. This is the pipeline's only read; it sees a snapshot, not a
// lock.
func (s *Store) ListActiveBySource(ctx context.Context, sourceChatID string) ([]domain.ChannelBinding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, viber_token, source_chat_id, active, created_at
		 FROM channels WHERE source_chat_id = ? AND active = 1 ORDER BY id`, sourceChatID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBindings(rows)
}

// Count returns the total and active binding counts, for the status command.
func (s *Store) Count(ctx context.Context) (total, active int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(active), 0) FROM channels`,
	).Scan(&total, &active)
	return total, active, err
}

func scanBindings(rows *sql.Rows) ([]domain.ChannelBinding, error) {
	var out []domain.ChannelBinding
	for rows.Next() {
		var b domain.ChannelBinding
		var active int
		if err := rows.Scan(&b.ID, &b.OwnerID, &b.ViberToken, &b.SourceChatID, &active, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.Active = active != 0
		out = append(out, b)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
