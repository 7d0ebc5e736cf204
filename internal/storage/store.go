// Package storage is the relational Storage Layer: a SQLite-backed store
// for Files, Contexts, and every fact table the Structural Extractor and
// Resolvers populate, plus Epochs/RepoState. Within this process the
// database/sql pool is pinned to a single connection, so reads and writes
// share it and run one at a time; readers do not run concurrently with
// each other or with a writer.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the process-wide handle to <repo>/.codeplane/index.db.
type Store struct {
	db *sql.DB
}

// Open opens (and if necessary creates) the database at path, enabling WAL
// mode and foreign keys, and runs Migrate.
func Open(path string) (*Store, error) {
	// _txlock=immediate makes every BeginTx acquire the write lock with
	// BEGIN IMMEDIATE rather than deferring it to the first write
	// statement, so Store.ImmediateTransaction below is just Session with
	// documentation, not a second code path.
	dsn := path + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open index database: %w", err)
	}
	// SQLite allows only one writer; serializing all connections to one
	// avoids SQLITE_BUSY churn under the busy_timeout above and guarantees
	// one writer at a time, at the cost of readers waiting their turn too.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping index database: %w", err)
	}

	s := &Store{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for packages that need to build their
// own queries (the Resolvers and Query Surface do, extensively).
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates every table and index. Idempotent; safe to call on an
// already-migrated database.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate index database: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS files (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  language_family TEXT NOT NULL,
  content_hash    TEXT NOT NULL,
  indexed_at      TIMESTAMP,
  declared_module TEXT
);

CREATE TABLE IF NOT EXISTS contexts (
  id              INTEGER PRIMARY KEY,
  language_family TEXT NOT NULL,
  root_path       TEXT NOT NULL,
  include_spec    TEXT NOT NULL, -- JSON array
  exclude_spec    TEXT NOT NULL, -- JSON array
  probe_status    TEXT NOT NULL,
  UNIQUE(language_family, root_path)
);

CREATE TABLE IF NOT EXISTS context_markers (
  id              INTEGER PRIMARY KEY,
  context_id      INTEGER NOT NULL REFERENCES contexts(id),
  marker_path     TEXT NOT NULL,
  tier            INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS def_facts (
  def_uid         TEXT PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  unit_id         INTEGER REFERENCES contexts(id),
  kind            TEXT NOT NULL,
  name            TEXT NOT NULL,
  lexical_path    TEXT NOT NULL,
  start_line      INTEGER NOT NULL,
  start_col       INTEGER NOT NULL,
  end_line        INTEGER NOT NULL,
  end_col         INTEGER NOT NULL,
  docstring       TEXT
);

CREATE TABLE IF NOT EXISTS ref_facts (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  token_text      TEXT NOT NULL,
  start_line      INTEGER NOT NULL,
  start_col       INTEGER NOT NULL,
  end_line        INTEGER NOT NULL,
  end_col         INTEGER NOT NULL,
  role            TEXT NOT NULL,
  ref_tier        TEXT NOT NULL,
  certainty       TEXT NOT NULL,
  target_def_uid  TEXT REFERENCES def_facts(def_uid)
);

CREATE TABLE IF NOT EXISTS local_bind_facts (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  name            TEXT NOT NULL,
  target_kind     TEXT NOT NULL,
  target_uid      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS import_facts (
  import_uid      TEXT PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  unit_id         INTEGER REFERENCES contexts(id),
  imported_name   TEXT NOT NULL,
  alias           TEXT,
  source_literal  TEXT NOT NULL,
  resolved_path   TEXT,
  import_kind     TEXT NOT NULL,
  certainty       TEXT NOT NULL,
  start_line      INTEGER NOT NULL,
  start_col       INTEGER NOT NULL,
  end_line        INTEGER NOT NULL,
  end_col         INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS scope_facts (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  kind            TEXT NOT NULL,
  start_line      INTEGER NOT NULL,
  start_col       INTEGER NOT NULL,
  end_line        INTEGER NOT NULL,
  end_col         INTEGER NOT NULL,
  parent_id       INTEGER REFERENCES scope_facts(id)
);

CREATE TABLE IF NOT EXISTS type_annotation_facts (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  scope_id        INTEGER REFERENCES scope_facts(id),
  target_name     TEXT NOT NULL,
  base_type       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS type_member_facts (
  id                INTEGER PRIMARY KEY,
  parent_type_name  TEXT NOT NULL,
  member_name       TEXT NOT NULL,
  member_kind       TEXT NOT NULL,
  member_def_uid    TEXT NOT NULL REFERENCES def_facts(def_uid),
  base_type         TEXT
);

CREATE TABLE IF NOT EXISTS member_access_facts (
  id                      INTEGER PRIMARY KEY,
  file_id                 INTEGER NOT NULL REFERENCES files(id),
  scope_id                INTEGER REFERENCES scope_facts(id),
  receiver_name           TEXT NOT NULL,
  receiver_declared_type  TEXT,
  member_chain            TEXT NOT NULL,
  start_line              INTEGER NOT NULL,
  start_col               INTEGER NOT NULL,
  end_line                INTEGER NOT NULL,
  end_col                 INTEGER NOT NULL,
  resolved_type_path      TEXT,
  final_target_def_uid    TEXT REFERENCES def_facts(def_uid),
  resolution_method       TEXT NOT NULL DEFAULT 'none',
  resolution_confidence   REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS epochs (
  id              INTEGER PRIMARY KEY,
  published_at    TIMESTAMP NOT NULL,
  files_indexed   INTEGER NOT NULL,
  commit_hash     TEXT
);

CREATE TABLE IF NOT EXISTS repo_state (
  singleton       INTEGER PRIMARY KEY CHECK (singleton = 0),
  current_epoch_id INTEGER NOT NULL DEFAULT 0
);
INSERT OR IGNORE INTO repo_state (singleton, current_epoch_id) VALUES (0, 0);

CREATE INDEX IF NOT EXISTS idx_def_facts_file ON def_facts(file_id);
CREATE INDEX IF NOT EXISTS idx_def_facts_name ON def_facts(name);
CREATE INDEX IF NOT EXISTS idx_ref_facts_file ON ref_facts(file_id);
CREATE INDEX IF NOT EXISTS idx_ref_facts_token ON ref_facts(token_text);
CREATE INDEX IF NOT EXISTS idx_ref_facts_target ON ref_facts(target_def_uid);
CREATE INDEX IF NOT EXISTS idx_local_bind_facts_file ON local_bind_facts(file_id);
CREATE INDEX IF NOT EXISTS idx_local_bind_facts_name ON local_bind_facts(file_id, name);
CREATE INDEX IF NOT EXISTS idx_import_facts_file ON import_facts(file_id);
CREATE INDEX IF NOT EXISTS idx_import_facts_source ON import_facts(source_literal);
CREATE INDEX IF NOT EXISTS idx_scope_facts_file ON scope_facts(file_id);
CREATE INDEX IF NOT EXISTS idx_scope_facts_parent ON scope_facts(parent_id);
CREATE INDEX IF NOT EXISTS idx_type_annotation_facts_file ON type_annotation_facts(file_id);
CREATE INDEX IF NOT EXISTS idx_type_member_facts_parent ON type_member_facts(parent_type_name, member_name);
CREATE INDEX IF NOT EXISTS idx_member_access_facts_file ON member_access_facts(file_id);
CREATE INDEX IF NOT EXISTS idx_context_markers_context ON context_markers(context_id);
`
