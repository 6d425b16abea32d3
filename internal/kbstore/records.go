package kbstore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Record is a single note of a knowledge base.
type Record struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	Version    int64     `json:"version"`
	Deleted    bool      `json:"deleted,omitempty"`
	Dirty      bool      `json:"-"`
	ModifiedAt time.Time `json:"modified_at"`
}

// dbRecord is the row form; times are stored as text.
type dbRecord struct {
	ID         string `db:"id"`
	Title      string `db:"title"`
	Body       string `db:"body"`
	Version    int64  `db:"version"`
	Deleted    bool   `db:"deleted"`
	Dirty      bool   `db:"dirty"`
	ModifiedAt string `db:"modified_at"`
}

func toRow(r *Record) *dbRecord {
	return &dbRecord{
		ID:         r.ID,
		Title:      r.Title,
		Body:       r.Body,
		Version:    r.Version,
		Deleted:    r.Deleted,
		Dirty:      r.Dirty,
		ModifiedAt: r.ModifiedAt.UTC().Format(timeFormat),
	}
}

func (row *dbRecord) toRecord() (*Record, error) {
	modified, err := time.Parse(timeFormat, row.ModifiedAt)
	if err != nil {
		return nil, fmt.Errorf("parse modified_at of %s: %w", row.ID, err)
	}
	return &Record{
		ID:         row.ID,
		Title:      row.Title,
		Body:       row.Body,
		Version:    row.Version,
		Deleted:    row.Deleted,
		Dirty:      row.Dirty,
		ModifiedAt: modified,
	}, nil
}

const upsertRecord = `INSERT INTO records (id, title, body, version, deleted, dirty, modified_at)
	VALUES (:id, :title, :body, :version, :deleted, :dirty, :modified_at)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		body = excluded.body,
		version = excluded.version,
		deleted = excluded.deleted,
		dirty = excluded.dirty,
		modified_at = excluded.modified_at`

// PutRecord stores a local edit. The record is marked dirty and keeps the
// server version it was based on.
func (s *Store) PutRecord(r *Record) error {
	if r == nil || r.ID == "" {
		return errors.New("record id is empty")
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	row := toRow(r)
	row.Dirty = true
	if r.ModifiedAt.IsZero() {
		row.ModifiedAt = time.Now().UTC().Format(timeFormat)
	}

	var base int64
	err = tx.Get(&base, "SELECT version FROM records WHERE id = ?", r.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read record %s: %w", r.ID, err)
	}
	row.Version = base

	if _, err := tx.NamedExec(upsertRecord, row); err != nil {
		return fmt.Errorf("put record %s: %w", r.ID, err)
	}
	return tx.Commit()
}

func (s *Store) GetRecord(id string) (*Record, error) {
	var row dbRecord
	err := s.db.Get(&row, "SELECT * FROM records WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	} else if err != nil {
		return nil, fmt.Errorf("get record %s: %w", id, err)
	}
	return row.toRecord()
}

// DirtyRecords returns the local edits not yet pushed, oldest first.
func (s *Store) DirtyRecords() ([]*Record, error) {
	var rows []dbRecord
	if err := s.db.Select(&rows, "SELECT * FROM records WHERE dirty = 1 ORDER BY modified_at, id"); err != nil {
		return nil, fmt.Errorf("select dirty records: %w", err)
	}
	return rowsToRecords(rows)
}

func (s *Store) CountRecords() (int, error) {
	var n int
	err := s.db.Get(&n, "SELECT COUNT(*) FROM records WHERE deleted = 0")
	return n, err
}

// MarkClean clears the dirty flag of pushed records and stores the version the
// server assigned. A record edited again after it was pushed stays dirty.
func (s *Store) MarkClean(pushed []*Record, versions map[string]int64) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, r := range pushed {
		version, ok := versions[r.ID]
		if !ok {
			continue
		}
		modified := r.ModifiedAt.UTC().Format(timeFormat)
		if r.Deleted {
			_, err = tx.Exec("DELETE FROM records WHERE id = ? AND modified_at = ?", r.ID, modified)
		} else {
			_, err = tx.Exec("UPDATE records SET dirty = 0, version = ? WHERE id = ? AND modified_at = ?", version, r.ID, modified)
		}
		if err != nil {
			return fmt.Errorf("mark record %s clean: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// ApplyRecords writes records pulled from the server and advances the store
// version. Local edits that are still dirty win; they are pushed on the next
// sync and the server resolves the conflict. It returns how many records changed.
func (s *Store) ApplyRecords(records []*Record, version int64) (int, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	applied := 0
	for _, r := range records {
		ok, err := applyRecord(tx, r)
		if err != nil {
			return 0, err
		}
		if ok {
			applied++
		}
	}

	if _, err := tx.Exec(`INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, metaVersion, fmt.Sprint(version)); err != nil {
		return 0, fmt.Errorf("write version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return applied, nil
}

func applyRecord(tx *sqlx.Tx, r *Record) (bool, error) {
	var local dbRecord
	err := tx.Get(&local, "SELECT * FROM records WHERE id = ?", r.ID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if r.Deleted {
			return false, nil
		}
	case err != nil:
		return false, fmt.Errorf("read record %s: %w", r.ID, err)
	case local.Dirty:
		return false, nil
	case local.Version >= r.Version:
		return false, nil
	}

	if r.Deleted {
		if _, err := tx.Exec("DELETE FROM records WHERE id = ?", r.ID); err != nil {
			return false, fmt.Errorf("delete record %s: %w", r.ID, err)
		}
		return true, nil
	}

	row := toRow(r)
	row.Dirty = false
	if _, err := tx.NamedExec(upsertRecord, row); err != nil {
		return false, fmt.Errorf("apply record %s: %w", r.ID, err)
	}
	return true, nil
}

func rowsToRecords(rows []dbRecord) ([]*Record, error) {
	records := make([]*Record, 0, len(rows))
	for i := range rows {
		r, err := rows[i].toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}
