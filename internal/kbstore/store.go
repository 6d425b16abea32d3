// Package kbstore holds the local sqlite indexes of knowledge bases: the
// primary database of the signed in user and one database per group.
package kbstore

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/kbsync/internal/db"
)

const indexFileName = "index.db"

// fixed width so that stored timestamps sort as text
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

const (
	metaKbGUID       = "kb_guid"
	metaLastSyncTime = "last_sync_time"
	metaVersion      = "version"
)

const baseSchema = `
CREATE TABLE IF NOT EXISTS meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS records (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    body TEXT NOT NULL DEFAULT '',
    version INTEGER NOT NULL DEFAULT 0,
    deleted INTEGER NOT NULL DEFAULT 0,
    dirty INTEGER NOT NULL DEFAULT 0,
    modified_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_dirty ON records(dirty);
`

var (
	ErrStoreClosed    = errors.New("store is closed")
	ErrRecordNotFound = errors.New("record not found")
)

// Store is a knowledge base index. It satisfies the scheduler's Database.
type Store struct {
	db   *sqlx.DB
	path string

	// kb guid is read on every dispatch, keep it off the database
	guidMu sync.RWMutex
	kbGUID string
}

func openStore(path string, extraSchema ...string) (*Store, error) {
	opts := []db.SqliteOption{
		db.WithPath(path),
		db.WithMaxOpenConns(1),
		db.WithSchema(baseSchema),
	}
	if len(extraSchema) > 0 {
		opts = append(opts, db.WithSchema(extraSchema...))
	}

	conn, err := db.NewSqliteDB(opts...)
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}

	s := &Store{db: conn, path: path}
	guid, err := s.getMeta(metaKbGUID)
	if err != nil {
		conn.Close()
		return nil, err
	}
	s.kbGUID = guid
	return s, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Close() error {
	if s.db == nil {
		return ErrStoreClosed
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("close index %s: %w", s.path, err)
	}
	slog.Debug("kb index closed", "path", s.path)
	return nil
}

func (s *Store) KbGUID() string {
	s.guidMu.RLock()
	defer s.guidMu.RUnlock()
	return s.kbGUID
}

func (s *Store) SetKbGUID(kbGUID string) error {
	if err := s.setMeta(metaKbGUID, kbGUID); err != nil {
		return err
	}
	s.guidMu.Lock()
	s.kbGUID = kbGUID
	s.guidMu.Unlock()
	return nil
}

func (s *Store) SaveLastSyncTime(t time.Time) error {
	return s.setMeta(metaLastSyncTime, t.UTC().Format(timeFormat))
}

// LastSyncTime returns the zero time if the store was never synced.
func (s *Store) LastSyncTime() (time.Time, error) {
	v, err := s.getMeta(metaLastSyncTime)
	if err != nil || v == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(timeFormat, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse last sync time %q: %w", v, err)
	}
	return t, nil
}

// Version is the server change version the store is synced up to.
func (s *Store) Version() (int64, error) {
	v, err := s.getMeta(metaVersion)
	if err != nil || v == "" {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

func (s *Store) SetVersion(version int64) error {
	return s.setMeta(metaVersion, strconv.FormatInt(version, 10))
}

func (s *Store) getMeta(key string) (string, error) {
	var value string
	err := s.db.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("read meta %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) setMeta(key, value string) error {
	_, err := s.db.Exec(`INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("write meta %s: %w", key, err)
	}
	return nil
}
