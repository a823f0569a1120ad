// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package memory persists run reports and section notes across pipeline
// runs and builds a retrieval index over them. The pipeline treats the
// store as optional: a nil *Store degrades recall to nothing, never to an
// error.
// Implements: prd006-memory (R1-R5);
//
//	docs/ARCHITECTURE § Memory Store.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/doc-engine/pkg/types"
)

const dbFile = "memory.db"

// Note is one remembered piece of section content from a pipeline run.
type Note struct {
	ID        string    `json:"id" yaml:"id"`
	RunID     string    `json:"run_id" yaml:"run_id"`
	Section   string    `json:"section" yaml:"section"`
	Stage     string    `json:"stage" yaml:"stage"`
	Content   string    `json:"content" yaml:"content"`
	Embedding []float32 `json:"-" yaml:"-"`
	Created   time.Time `json:"created" yaml:"created"`
}

// RecallResult pairs a note with its retrieval score: the FTS rank for
// keyword recall (lower is better) or cosine similarity for semantic
// recall (higher is better).
type RecallResult struct {
	Note
	Score float64 `json:"score" yaml:"score"`
}

// Store manages the memory SQLite database. A nil *Store is valid:
// saves and recalls become no-ops so the pipeline never needs to branch
// on whether memory is configured.
type Store struct {
	db       *sql.DB
	dir      string
	embedder Embedder
}

// NewStore opens or creates the memory database at cfg.Dir/memory.db and
// creates the schema if it does not exist (R1.2). embedder may be nil, in
// which case recall is keyword-only (R4.1).
func NewStore(cfg types.MemoryConfig, embedder Embedder) (*Store, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = "memory"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating memory directory: %w", err)
	}

	dbPath := filepath.Join(dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, dir: dir, embedder: embedder}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection and the embedding client.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	if s.embedder != nil {
		s.embedder.Close()
	}
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			started TEXT NOT NULL,
			finished TEXT,
			sections INTEGER NOT NULL DEFAULT 0,
			enriched INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			repaired TEXT,
			input_chars INTEGER NOT NULL DEFAULT 0,
			output_chars INTEGER NOT NULL DEFAULT 0,
			advisory TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS notes (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			run_id TEXT NOT NULL REFERENCES runs(id),
			section TEXT,
			stage TEXT,
			content TEXT NOT NULL,
			embedding TEXT,
			created TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notes_run_id ON notes(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_notes_section ON notes(section)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// FTS5 virtual table with triggers for sync.
	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='notes_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}

	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE notes_fts USING fts5(content, content=notes, content_rowid=rowid)`,
			`CREATE TRIGGER notes_ai AFTER INSERT ON notes BEGIN
				INSERT INTO notes_fts(rowid, content) VALUES (new.rowid, new.content);
			END`,
			`CREATE TRIGGER notes_ad AFTER DELETE ON notes BEGIN
				INSERT INTO notes_fts(notes_fts, rowid, content) VALUES('delete', old.rowid, old.content);
			END`,
			`CREATE TRIGGER notes_au AFTER UPDATE ON notes BEGIN
				INSERT INTO notes_fts(notes_fts, rowid, content) VALUES('delete', old.rowid, old.content);
				INSERT INTO notes_fts(rowid, content) VALUES (new.rowid, new.content);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}

	return nil
}

// RecordRun upserts the run's report row (R2.1). SaveNote creates a stub
// row for in-flight runs; the final report overwrites it.
func (s *Store) RecordRun(ctx context.Context, report types.RunReport) error {
	if s == nil {
		return nil
	}
	if report.RunID == "" {
		return fmt.Errorf("report has no run id")
	}

	repairedJSON, _ := json.Marshal(report.Repaired)
	finished := ""
	if !report.Finished.IsZero() {
		finished = report.Finished.UTC().Format(time.RFC3339Nano)
	}
	started := report.Started
	if started.IsZero() {
		started = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, state, started, finished, sections, enriched, failed, repaired, input_chars, output_chars, advisory)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			state=excluded.state, finished=excluded.finished,
			sections=excluded.sections, enriched=excluded.enriched,
			failed=excluded.failed, repaired=excluded.repaired,
			input_chars=excluded.input_chars, output_chars=excluded.output_chars,
			advisory=excluded.advisory`,
		report.RunID, string(report.State), started.UTC().Format(time.RFC3339Nano), finished,
		report.Sections, report.Enriched, report.Failed, string(repairedJSON),
		report.InputChars, report.OutputChars, report.Advisory,
	)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// SaveNote stores one note (R2.2). A missing ID is filled with a UUID and
// a missing timestamp with now. When an embedder is configured the content
// is embedded best-effort: an embedding failure degrades the note to
// keyword-only recall instead of failing the save.
func (s *Store) SaveNote(ctx context.Context, n Note) error {
	return s.SaveNotes(ctx, []Note{n})
}

// SaveNotes stores a batch of notes in one transaction, embedding the
// batch in a single request when an embedder is configured.
func (s *Store) SaveNotes(ctx context.Context, notes []Note) error {
	if s == nil || len(notes) == 0 {
		return nil
	}

	if s.embedder != nil {
		texts := make([]string, len(notes))
		for i, n := range notes {
			texts[i] = n.Content
		}
		// Best effort: keyword recall still works without vectors.
		if vecs, err := s.embedder.EmbedBatch(ctx, texts); err == nil && len(vecs) == len(notes) {
			for i := range notes {
				notes[i].Embedding = vecs[i]
			}
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO notes (id, run_id, section, stage, content, embedding, created)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, n := range notes {
		if n.RunID == "" {
			return fmt.Errorf("note %q has no run id", n.ID)
		}
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		created := n.Created
		if created.IsZero() {
			created = time.Now()
		}

		// Stub row for in-flight runs keeps the foreign key satisfied.
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO runs (id, state, started) VALUES (?, ?, ?)`,
			n.RunID, string(types.RunRunning), created.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("inserting run stub: %w", err)
		}

		var embJSON any
		if len(n.Embedding) > 0 {
			b, _ := json.Marshal(n.Embedding)
			embJSON = string(b)
		}

		if _, err := stmt.ExecContext(ctx,
			n.ID, n.RunID, n.Section, n.Stage, n.Content, embJSON,
			created.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("inserting note %s: %w", n.ID, err)
		}
	}

	return tx.Commit()
}

// Recall runs a keyword search over note content (R3.1). Results are
// ranked by FTS5 relevance. A nil store recalls nothing.
func (s *Store) Recall(ctx context.Context, query string, limit int) ([]RecallResult, error) {
	if s == nil {
		return nil, nil
	}
	if query == "" {
		return nil, fmt.Errorf("empty recall query")
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT n.id, n.run_id, n.section, n.stage, n.content, n.embedding, n.created, notes_fts.rank
		 FROM notes_fts
		 JOIN notes n ON n.rowid = notes_fts.rowid
		 WHERE notes_fts MATCH ?
		 ORDER BY notes_fts.rank
		 LIMIT ?`,
		query, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying memory: %w", err)
	}
	defer rows.Close()

	return scanResults(rows)
}

// Stats summarizes the store contents.
type Stats struct {
	Runs      int       `json:"runs" yaml:"runs"`
	Notes     int       `json:"notes" yaml:"notes"`
	Embedded  int       `json:"embedded" yaml:"embedded"`
	LastRun   time.Time `json:"last_run,omitempty" yaml:"last_run,omitempty"`
	LastState string    `json:"last_state,omitempty" yaml:"last_state,omitempty"`
}

// Stats reports row counts and the most recent run (R5.1).
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM runs`).Scan(&st.Runs); err != nil {
		return Stats{}, fmt.Errorf("counting runs: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM notes`).Scan(&st.Notes); err != nil {
		return Stats{}, fmt.Errorf("counting notes: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM notes WHERE embedding IS NOT NULL`,
	).Scan(&st.Embedded); err != nil {
		return Stats{}, fmt.Errorf("counting embedded notes: %w", err)
	}

	var started, state string
	err := s.db.QueryRowContext(ctx,
		`SELECT started, state FROM runs ORDER BY started DESC LIMIT 1`,
	).Scan(&started, &state)
	switch {
	case err == sql.ErrNoRows:
		// Empty store.
	case err != nil:
		return Stats{}, fmt.Errorf("reading last run: %w", err)
	default:
		if t, parseErr := time.Parse(time.RFC3339Nano, started); parseErr == nil {
			st.LastRun = t
		}
		st.LastState = state
	}
	return st, nil
}

// Clear removes all runs and notes (R5.2).
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM notes`); err != nil {
		return fmt.Errorf("clearing notes: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs`); err != nil {
		return fmt.Errorf("clearing runs: %w", err)
	}
	return nil
}

// scanResults reads note rows that end in a score column.
func scanResults(rows *sql.Rows) ([]RecallResult, error) {
	var results []RecallResult
	for rows.Next() {
		var (
			r       RecallResult
			embJSON sql.NullString
			created string
		)
		if err := rows.Scan(
			&r.ID, &r.RunID, &r.Section, &r.Stage, &r.Content, &embJSON, &created, &r.Score,
		); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if embJSON.Valid {
			json.Unmarshal([]byte(embJSON.String), &r.Embedding)
		}
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			r.Created = t
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
