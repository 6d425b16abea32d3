package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/openmined/kbsync/internal/utils"
)

const (
	groupsDir   = "groups"
	logsDir     = "logs"
	metadataDir = ".data"
	lockFile    = "kbsync.lock"
)

var (
	ErrWorkspaceLocked = errors.New("workspace locked by another process")
)

// Workspace is the data directory of one account. Only a single daemon may
// use it at a time.
type Workspace struct {
	Owner       string
	Root        string
	UserDir     string
	GroupsDir   string
	MetadataDir string
	LogsDir     string

	flock *flock.Flock
}

func NewWorkspace(rootDir string, user string) (*Workspace, error) {
	root, err := utils.ResolvePath(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", rootDir, err)
	}

	userDir := filepath.Join(root, user)
	return &Workspace{
		Owner:       user,
		Root:        root,
		UserDir:     userDir,
		GroupsDir:   filepath.Join(userDir, groupsDir),
		MetadataDir: filepath.Join(root, metadataDir),
		LogsDir:     filepath.Join(root, logsDir),
		flock:       flock.New(filepath.Join(root, metadataDir, lockFile)),
	}, nil
}

func (w *Workspace) Lock() error {
	if err := utils.EnsureDir(w.MetadataDir); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.MetadataDir, err)
	}

	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock workspace: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}

	return nil
}

func (w *Workspace) Unlock() error {
	// only the owner of the lock removes the lock file
	if !w.flock.Locked() {
		return nil
	}

	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock workspace: %w", err)
	}

	return os.Remove(w.flock.Path())
}

// Setup locks the workspace and creates its directories.
func (w *Workspace) Setup() error {
	if err := w.Lock(); err != nil {
		return err
	}

	slog.Info("workspace", "root", w.Root, "owner", w.Owner)

	for _, dir := range []string{w.UserDir, w.GroupsDir, w.LogsDir} {
		if err := utils.EnsureDir(dir); err != nil {
			_ = w.Unlock()
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// GroupDir is the directory holding the index of a group knowledge base.
func (w *Workspace) GroupDir(kbGUID string) (string, error) {
	if !IsValidKbGUID(kbGUID) {
		return "", fmt.Errorf("invalid kb guid %q", kbGUID)
	}
	return filepath.Join(w.GroupsDir, kbGUID), nil
}
