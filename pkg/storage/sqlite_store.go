package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/small-frappuccino/modcore/pkg/errutil"
	"github.com/small-frappuccino/modcore/pkg/log"
	"github.com/small-frappuccino/modcore/pkg/moderation"
	_ "modernc.org/sqlite"
)

var errNotInitialized = errors.New("store not initialized")

// Store wraps an embedded SQLite database holding the sanction journal,
// warnings, pending reversions, guild policies and bot metadata.
// It uses modernc.org/sqlite for CGO-less builds.
type Store struct {
	dbPath          string
	db              *sqlx.DB
	defaultLanguage string
	now             func() time.Time
}

var _ moderation.Store = (*Store)(nil)

// NewStore creates a new Store pointing to dbPath. Call Init() before using it.
func NewStore(dbPath string) *Store {
	return &Store{dbPath: dbPath, defaultLanguage: moderation.LanguageEnglish, now: time.Now}
}

// NewStoreWithDB wraps an already open database, e.g. a sqlmock connection.
// The schema is not created.
func NewStoreWithDB(db *sql.DB, driverName string) *Store {
	s := NewStore("")
	s.db = sqlx.NewDb(db, driverName)
	return s
}

// SetDefaultLanguage sets the language of policies created on first read.
func (s *Store) SetDefaultLanguage(lang string) {
	if l, ok := moderation.NormalizeLanguage(lang); ok {
		s.defaultLanguage = l
	}
}

// Init opens the SQLite database, configures pragmas, and ensures the schema exists.
func (s *Store) Init() error {
	if s.db != nil {
		return nil
	}
	if s.dbPath == "" {
		return fmt.Errorf("db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(s.dbPath), 0o755); err != nil {
		return fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sqlx.Open("sqlite", s.dbPath)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between goroutines of this process.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA foreign_keys=ON;`,
		`PRAGMA busy_timeout=5000;`,
		`PRAGMA synchronous=NORMAL;`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	log.DatabaseLogger().Info("SQLite store ready", "path", s.dbPath)
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return errNotInitialized
	}
	return s.db.PingContext(ctx)
}

func (s *Store) ready() error {
	if s.db == nil {
		return errNotInitialized
	}
	return nil
}

// exec runs fn through the store error handler so failures reach the database log.
func (s *Store) exec(op string, fn func() error) error {
	if err := s.ready(); err != nil {
		return err
	}
	return errutil.HandleStoreError(op, fn)
}

func ms(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMS(v int64) time.Time { return time.UnixMilli(v).UTC() }

func nullMS(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: ms(*t), Valid: true}
}

func fromNullMS(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMS(v.Int64)
	return &t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func ensureSchema(db *sqlx.DB) error {
	const createSanctions = `
CREATE TABLE IF NOT EXISTS sanctions (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  guild_id    TEXT    NOT NULL,
  target_id   TEXT    NOT NULL,
  actor_id    TEXT    NOT NULL,
  kind        TEXT    NOT NULL,
  reason      TEXT    NOT NULL DEFAULT '',
  duration_ms INTEGER,
  expires_at  INTEGER,
  active      INTEGER NOT NULL DEFAULT 1,
  metadata    TEXT    NOT NULL DEFAULT '{}',
  created_at  INTEGER NOT NULL,
  CHECK ((duration_ms IS NULL) = (expires_at IS NULL))
);
CREATE INDEX IF NOT EXISTS idx_sanctions_target ON sanctions(guild_id, target_id, id);
CREATE INDEX IF NOT EXISTS idx_sanctions_active ON sanctions(active, expires_at);
CREATE TRIGGER IF NOT EXISTS sanctions_append_only
BEFORE DELETE ON sanctions
BEGIN
  SELECT RAISE(ABORT, 'sanctions are append-only');
END;
CREATE TRIGGER IF NOT EXISTS sanctions_no_reactivation
BEFORE UPDATE OF active ON sanctions
WHEN OLD.active = 0 AND NEW.active <> 0
BEGIN
  SELECT RAISE(ABORT, 'sanction reactivation is not allowed');
END;`

	const createWarnings = `
CREATE TABLE IF NOT EXISTS warnings (
  id            TEXT    PRIMARY KEY,
  guild_id      TEXT    NOT NULL,
  target_id     TEXT    NOT NULL,
  actor_id      TEXT    NOT NULL,
  reason        TEXT    NOT NULL DEFAULT '',
  active        INTEGER NOT NULL DEFAULT 1,
  created_at    INTEGER NOT NULL,
  removed_at    INTEGER,
  removed_by    TEXT    NOT NULL DEFAULT '',
  remove_reason TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_warnings_member ON warnings(guild_id, target_id, active);`

	const createReversions = `
CREATE TABLE IF NOT EXISTS pending_reversions (
  sanction_id INTEGER PRIMARY KEY REFERENCES sanctions(id),
  guild_id    TEXT    NOT NULL,
  target_id   TEXT    NOT NULL,
  kind        TEXT    NOT NULL,
  due_at      INTEGER NOT NULL,
  state       TEXT    NOT NULL DEFAULT 'pending',
  payload     TEXT    NOT NULL DEFAULT '{}',
  attempts    INTEGER NOT NULL DEFAULT 0,
  last_error  TEXT    NOT NULL DEFAULT '',
  created_at  INTEGER NOT NULL,
  updated_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reversions_state_due ON pending_reversions(state, due_at);
CREATE INDEX IF NOT EXISTS idx_reversions_target ON pending_reversions(guild_id, target_id, kind, state);`

	const createPolicies = `
CREATE TABLE IF NOT EXISTS guild_policies (
  guild_id           TEXT    PRIMARY KEY,
  language           TEXT    NOT NULL,
  log_channel_id     TEXT    NOT NULL DEFAULT '',
  mute_role_id       TEXT    NOT NULL DEFAULT '',
  admin_roles        TEXT    NOT NULL DEFAULT '[]',
  moderator_roles    TEXT    NOT NULL DEFAULT '[]',
  welcome_enabled    INTEGER NOT NULL DEFAULT 0,
  welcome_channel_id TEXT    NOT NULL DEFAULT '',
  welcome_message    TEXT    NOT NULL DEFAULT '',
  created_at         INTEGER NOT NULL,
  updated_at         INTEGER NOT NULL
);`

	const createGuildMeta = `
CREATE TABLE IF NOT EXISTS guild_meta (
  guild_id  TEXT PRIMARY KEY,
  bot_since INTEGER,
  owner_id  TEXT NOT NULL DEFAULT ''
);`

	const createRuntimeMeta = `
CREATE TABLE IF NOT EXISTS runtime_meta (
  key TEXT    PRIMARY KEY,
  ts  INTEGER NOT NULL
);`

	stmts := []string{
		createSanctions,
		createWarnings,
		createReversions,
		createPolicies,
		createGuildMeta,
		createRuntimeMeta,
	}
	for _, sqlText := range stmts {
		if _, err := db.Exec(sqlText); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Stats counts journal rows for status displays.
type Stats struct {
	Sanctions         int `db:"sanctions"`
	ActiveSanctions   int `db:"active_sanctions"`
	ActiveWarnings    int `db:"active_warnings"`
	PendingReversions int `db:"pending_reversions"`
	Guilds            int `db:"guilds"`
}

// Stats returns row counts across the store.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.exec("stats", func() error {
		return s.db.GetContext(ctx, &st, `
SELECT
  (SELECT COUNT(*) FROM sanctions)                                  AS sanctions,
  (SELECT COUNT(*) FROM sanctions WHERE active = 1)                 AS active_sanctions,
  (SELECT COUNT(*) FROM warnings WHERE active = 1)                  AS active_warnings,
  (SELECT COUNT(*) FROM pending_reversions WHERE state = 'pending') AS pending_reversions,
  (SELECT COUNT(*) FROM guild_policies)                             AS guilds`)
	})
	return st, err
}
