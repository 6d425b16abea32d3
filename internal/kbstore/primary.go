package kbstore

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

const primarySchema = `
CREATE TABLE IF NOT EXISTS groups (
    kb_guid TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    database_server TEXT NOT NULL DEFAULT '',
    role TEXT NOT NULL DEFAULT '',
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    kb_guid TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL DEFAULT '',
    body TEXT NOT NULL DEFAULT '',
    sender TEXT NOT NULL DEFAULT '',
    version INTEGER NOT NULL,
    created_at TEXT NOT NULL,
    read INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_messages_version ON messages(version);

CREATE TABLE IF NOT EXISTS user_cert (
    user_id TEXT PRIMARY KEY,
    public_key TEXT NOT NULL,
    encrypted_private_key TEXT NOT NULL,
    expires_at TEXT NOT NULL
);
`

var (
	ErrGroupNotFound = errors.New("group not found")
	ErrReadOnly      = errors.New("knowledge base is read only")
)

// RoleReader is the group role without write access.
const RoleReader = "reader"

// Group is a shared knowledge base the user is a member of.
type Group struct {
	KbGUID         string    `json:"kb_guid"`
	Name           string    `json:"name"`
	DatabaseServer string    `json:"database_server"`
	Role           string    `json:"role"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type dbGroup struct {
	KbGUID         string `db:"kb_guid"`
	Name           string `db:"name"`
	DatabaseServer string `db:"database_server"`
	Role           string `db:"role"`
	UpdatedAt      string `db:"updated_at"`
}

// Message is a server side notification for the user.
type Message struct {
	ID        string    `json:"id"`
	KbGUID    string    `json:"kb_guid"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Sender    string    `json:"sender"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Read      bool      `json:"read"`
}

type dbMessage struct {
	ID        string `db:"id"`
	KbGUID    string `db:"kb_guid"`
	Title     string `db:"title"`
	Body      string `db:"body"`
	Sender    string `db:"sender"`
	Version   int64  `db:"version"`
	CreatedAt string `db:"created_at"`
	Read      bool   `db:"read"`
}

// UserCert is the user's key pair as handed out by the server.
type UserCert struct {
	UserID              string    `json:"user_id"`
	PublicKey           string    `json:"public_key"`
	EncryptedPrivateKey string    `json:"encrypted_private_key"`
	ExpiresAt           time.Time `json:"expires_at"`
}

type dbUserCert struct {
	UserID              string `db:"user_id"`
	PublicKey           string `db:"public_key"`
	EncryptedPrivateKey string `db:"encrypted_private_key"`
	ExpiresAt           string `db:"expires_at"`
}

type openGroup struct {
	store *Store
	refs  int
}

// Primary is the index of the user's own knowledge base. It also owns the
// group indexes, which live next to it under groups/<kb guid>/.
type Primary struct {
	*Store
	root string

	mu     sync.Mutex
	groups map[string]*openGroup
}

// OpenPrimary opens <dataDir>/<email>/index.db, creating it when missing.
func OpenPrimary(dataDir, email string) (*Primary, error) {
	root := filepath.Join(dataDir, email)
	store, err := openStore(filepath.Join(root, indexFileName), primarySchema)
	if err != nil {
		return nil, err
	}
	slog.Info("kb index open", "path", store.Path(), "kb", store.KbGUID())

	return &Primary{
		Store:  store,
		root:   root,
		groups: make(map[string]*openGroup),
	}, nil
}

// Close closes the primary index and any group index still open.
func (p *Primary) Close() error {
	p.mu.Lock()
	var errs []error
	for guid, g := range p.groups {
		if err := g.store.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(p.groups, guid)
	}
	p.mu.Unlock()

	if err := p.Store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (p *Primary) groupPath(kbGUID string) string {
	return filepath.Join(p.root, "groups", kbGUID, indexFileName)
}

// OpenGroup opens the index of a group. Opens are reference counted; every
// OpenGroup must be paired with a CloseGroup.
func (p *Primary) OpenGroup(kbGUID string) (*Store, error) {
	if kbGUID == "" {
		return nil, errors.New("group kb guid is empty")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if g, ok := p.groups[kbGUID]; ok {
		g.refs++
		return g.store, nil
	}

	store, err := openStore(p.groupPath(kbGUID))
	if err != nil {
		return nil, err
	}
	if store.KbGUID() == "" {
		if err := store.SetKbGUID(kbGUID); err != nil {
			store.Close()
			return nil, err
		}
	}

	p.groups[kbGUID] = &openGroup{store: store, refs: 1}
	return store, nil
}

func (p *Primary) CloseGroup(store *Store) error {
	if store == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	guid := store.KbGUID()
	g, ok := p.groups[guid]
	if !ok || g.store != store {
		return fmt.Errorf("group index %s is not open", guid)
	}
	g.refs--
	if g.refs > 0 {
		return nil
	}
	delete(p.groups, guid)
	return store.Close()
}

// OpenGroupCount is the number of distinct group indexes currently open.
func (p *Primary) OpenGroupCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.groups)
}

// UpsertGroups stores the group list fetched from the server. Groups missing
// from the list are dropped, the user no longer has access to them.
func (p *Primary) UpsertGroups(groups []*Group) error {
	tx, err := p.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM groups"); err != nil {
		return fmt.Errorf("clear groups: %w", err)
	}

	now := time.Now().UTC()
	for _, g := range groups {
		updated := g.UpdatedAt
		if updated.IsZero() {
			updated = now
		}
		row := &dbGroup{
			KbGUID:         g.KbGUID,
			Name:           g.Name,
			DatabaseServer: g.DatabaseServer,
			Role:           g.Role,
			UpdatedAt:      updated.UTC().Format(timeFormat),
		}
		_, err := tx.NamedExec(`INSERT INTO groups (kb_guid, name, database_server, role, updated_at)
			VALUES (:kb_guid, :name, :database_server, :role, :updated_at)`, row)
		if err != nil {
			return fmt.Errorf("insert group %s: %w", g.KbGUID, err)
		}
	}
	return tx.Commit()
}

func (p *Primary) Groups() ([]*Group, error) {
	var rows []dbGroup
	if err := p.db.Select(&rows, "SELECT * FROM groups ORDER BY name"); err != nil {
		return nil, fmt.Errorf("select groups: %w", err)
	}
	groups := make([]*Group, 0, len(rows))
	for i := range rows {
		g, err := rows[i].toGroup()
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// GroupData returns the stored group, or ErrGroupNotFound.
func (p *Primary) GroupData(kbGUID string) (*Group, error) {
	var row dbGroup
	err := p.db.Get(&row, "SELECT * FROM groups WHERE kb_guid = ?", kbGUID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGroupNotFound
	} else if err != nil {
		return nil, fmt.Errorf("get group %s: %w", kbGUID, err)
	}
	return row.toGroup()
}

func (row *dbGroup) toGroup() (*Group, error) {
	updated, err := time.Parse(timeFormat, row.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at of group %s: %w", row.KbGUID, err)
	}
	return &Group{
		KbGUID:         row.KbGUID,
		Name:           row.Name,
		DatabaseServer: row.DatabaseServer,
		Role:           row.Role,
		UpdatedAt:      updated,
	}, nil
}

func (p *Primary) SetUserCert(cert *UserCert) error {
	if cert == nil {
		return errors.New("user cert is nil")
	}
	tx, err := p.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// one cert per database
	if _, err := tx.Exec("DELETE FROM user_cert"); err != nil {
		return err
	}
	_, err = tx.NamedExec(`INSERT INTO user_cert (user_id, public_key, encrypted_private_key, expires_at)
		VALUES (:user_id, :public_key, :encrypted_private_key, :expires_at)`, &dbUserCert{
		UserID:              cert.UserID,
		PublicKey:           cert.PublicKey,
		EncryptedPrivateKey: cert.EncryptedPrivateKey,
		ExpiresAt:           cert.ExpiresAt.UTC().Format(timeFormat),
	})
	if err != nil {
		return fmt.Errorf("store user cert: %w", err)
	}
	return tx.Commit()
}

// UserCert returns nil when no cert has been stored yet.
func (p *Primary) UserCert() (*UserCert, error) {
	var row dbUserCert
	err := p.db.Get(&row, "SELECT * FROM user_cert LIMIT 1")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("get user cert: %w", err)
	}
	expires, err := time.Parse(timeFormat, row.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("parse cert expiry: %w", err)
	}
	return &UserCert{
		UserID:              row.UserID,
		PublicKey:           row.PublicKey,
		EncryptedPrivateKey: row.EncryptedPrivateKey,
		ExpiresAt:           expires,
	}, nil
}

// AddMessages stores messages that are not known yet and returns the new ones.
func (p *Primary) AddMessages(msgs []*Message) ([]*Message, error) {
	tx, err := p.db.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	added := make([]*Message, 0, len(msgs))
	for _, m := range msgs {
		res, err := tx.NamedExec(`INSERT OR IGNORE INTO messages (id, kb_guid, title, body, sender, version, created_at, read)
			VALUES (:id, :kb_guid, :title, :body, :sender, :version, :created_at, :read)`, &dbMessage{
			ID:        m.ID,
			KbGUID:    m.KbGUID,
			Title:     m.Title,
			Body:      m.Body,
			Sender:    m.Sender,
			Version:   m.Version,
			CreatedAt: m.CreatedAt.UTC().Format(timeFormat),
			Read:      m.Read,
		})
		if err != nil {
			return nil, fmt.Errorf("insert message %s: %w", m.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added = append(added, m)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return added, nil
}

// Messages returns the latest messages, newest first. limit <= 0 returns all.
func (p *Primary) Messages(limit int) ([]*Message, error) {
	query := "SELECT * FROM messages ORDER BY version DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var rows []dbMessage
	if err := p.db.Select(&rows, query, args...); err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}

	msgs := make([]*Message, 0, len(rows))
	for _, row := range rows {
		created, err := time.Parse(timeFormat, row.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at of message %s: %w", row.ID, err)
		}
		msgs = append(msgs, &Message{
			ID:        row.ID,
			KbGUID:    row.KbGUID,
			Title:     row.Title,
			Body:      row.Body,
			Sender:    row.Sender,
			Version:   row.Version,
			CreatedAt: created,
			Read:      row.Read,
		})
	}
	return msgs, nil
}

// MessageVersion is the highest message version stored, 0 when there are none.
func (p *Primary) MessageVersion() (int64, error) {
	var v sql.NullInt64
	if err := p.db.Get(&v, "SELECT MAX(version) FROM messages"); err != nil {
		return 0, fmt.Errorf("message version: %w", err)
	}
	return v.Int64, nil
}
