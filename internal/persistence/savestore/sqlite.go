// Package savestore is the opaque key→blob store behind the engine's
// persistence boundary, plus a lifecycle read-model index. Writes go through
// a single async writer goroutine so the sim loop never blocks on sqlite.
package savestore

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

type Store struct {
	db *sqlx.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqPut reqKind = iota + 1
	reqLifecycle
	reqFlush
)

type req struct {
	kind reqKind

	slot string
	blob []byte

	row LifecycleRow

	done chan struct{}
}

// LifecycleRow is one transition record in the read-model index.
type LifecycleRow struct {
	AtUnixMs    int64   `db:"at_unix_ms"`
	SaveID      string  `db:"save_id"`
	Trigger     string  `db:"trigger"`
	KarmaGained float64 `db:"karma_gained"`
	KarmaTotal  float64 `db:"karma_total"`
	RealmIndex  int     `db:"realm_index"`
	Stage       int     `db:"stage"`
	AgeYears    float64 `db:"age_years"`
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db: db,
		ch: make(chan req, 1024),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sqlx.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS saves (
			slot TEXT PRIMARY KEY,
			blob BLOB NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS lifecycle_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			at_unix_ms INTEGER NOT NULL,
			save_id TEXT NOT NULL,
			"trigger" TEXT NOT NULL,
			karma_gained REAL NOT NULL,
			karma_total REAL NOT NULL,
			realm_index INTEGER NOT NULL,
			stage INTEGER NOT NULL,
			age_years REAL NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_lifecycle_save_at ON lifecycle_log(save_id, at_unix_ms);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Put enqueues a save blob write for a slot. Fire-and-forget: when the writer
// is saturated the blob is dropped, the next autosave replaces it anyway.
func (s *Store) Put(slot string, blob []byte) {
	if s == nil || s.closed.Load() {
		return
	}
	b := make([]byte, len(blob))
	copy(b, blob)
	select {
	case s.ch <- req{kind: reqPut, slot: slot, blob: b}:
	default:
	}
}

// RecordLifecycle enqueues one transition row.
func (s *Store) RecordLifecycle(row LifecycleRow) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqLifecycle, row: row}:
	default:
	}
}

// Flush blocks until every write enqueued before the call has committed.
// Unlike Put, the send itself blocks: the shutdown save must not be dropped
// just because the queue happens to be full.
func (s *Store) Flush() {
	if s == nil || s.closed.Load() {
		return
	}
	done := make(chan struct{})
	s.ch <- req{kind: reqFlush, done: done}
	<-done
}

// Get reads a slot's blob synchronously. Used at startup only; returns nil
// when the slot does not exist.
func (s *Store) Get(slot string) ([]byte, error) {
	var blob []byte
	err := s.db.Get(&blob, `SELECT blob FROM saves WHERE slot = ?`, slot)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return blob, nil
}

// LifecycleHistory returns the most recent transitions, newest first.
func (s *Store) LifecycleHistory(saveID string, limit int) ([]LifecycleRow, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []LifecycleRow
	err := s.db.Select(&rows,
		`SELECT at_unix_ms, save_id, "trigger", karma_gained, karma_total, realm_index, stage, age_years
		 FROM lifecycle_log WHERE save_id = ? ORDER BY at_unix_ms DESC LIMIT ?`,
		saveID, limit)
	return rows, err
}

func (s *Store) loop() {
	for r := range s.ch {
		switch r.kind {
		case reqPut:
			_, _ = s.db.Exec(
				`INSERT OR REPLACE INTO saves(slot, blob, updated_at) VALUES(?, ?, ?)`,
				r.slot, r.blob, time.Now().UTC().Format(time.RFC3339Nano))
		case reqLifecycle:
			_, _ = s.db.NamedExec(
				`INSERT INTO lifecycle_log(at_unix_ms, save_id, "trigger", karma_gained, karma_total, realm_index, stage, age_years)
				 VALUES(:at_unix_ms, :save_id, :trigger, :karma_gained, :karma_total, :realm_index, :stage, :age_years)`,
				r.row)
		case reqFlush:
			close(r.done)
		}
	}
}
