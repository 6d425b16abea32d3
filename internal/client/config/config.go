package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/openmined/kbsync/internal/utils"
)

const (
	DefaultFullSyncInterval = 15 // minutes
	maxFullSyncInterval     = 24 * 60
)

var (
	home, _            = os.UserHomeDir()
	DefaultConfigPath  = filepath.Join(home, ".kbsync", "config.json")
	DefaultLogFilePath = filepath.Join(home, ".kbsync", "logs", "kbsync.log")
	DefaultDataDir     = filepath.Join(home, "KBSync")
	DefaultServerURL   = "https://sync.kbsync.io"
	DefaultClientURL   = "http://localhost:7938"
)

var (
	ErrInvalidEmail     = errors.New("invalid email")
	ErrInvalidServerURL = errors.New("invalid server url")
	ErrInvalidClientURL = errors.New("invalid client url")
	ErrInvalidInterval  = errors.New("invalid full sync interval")
)

type Config struct {
	DataDir          string `json:"data_dir"`
	Email            string `json:"email"`
	ServerURL        string `json:"server_url"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	FullSyncInterval int    `json:"full_sync_interval"` // minutes, 0 disables
	Debug            bool   `json:"debug,omitempty"`
	ClientURL        string `json:"client_url,omitempty"`
	ClientToken      string `json:"client_token,omitempty"`
	LogFile          string `json:"log_file,omitempty"`
	Path             string `json:"-"`
}

// Validate normalizes paths and the email and checks every field.
func (c *Config) Validate() error {
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	if err := utils.ValidateEmail(c.Email); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEmail, err)
	}

	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	dataDir, err := utils.ResolvePath(c.DataDir)
	if err != nil {
		return fmt.Errorf("data dir: %w", err)
	}
	c.DataDir = dataDir

	if c.Path == "" {
		c.Path = DefaultConfigPath
	}
	path, err := utils.ResolvePath(c.Path)
	if err != nil {
		return fmt.Errorf("config path: %w", err)
	}
	c.Path = path

	if err := validateURL(c.ServerURL); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidServerURL, err)
	}

	if c.ClientURL != "" {
		if err := validateURL(c.ClientURL); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidClientURL, err)
		}
	}

	if c.FullSyncInterval < 0 || c.FullSyncInterval > maxFullSyncInterval {
		return fmt.Errorf("%w: %d minutes", ErrInvalidInterval, c.FullSyncInterval)
	}

	if c.LogFile != "" {
		logFile, err := utils.ResolvePath(c.LogFile)
		if err != nil {
			return fmt.Errorf("log file: %w", err)
		}
		c.LogFile = logFile
	}

	return nil
}

// Save writes the config as JSON to c.Path. The file holds the refresh token,
// so it is only readable by the owner.
func (c *Config) Save() error {
	if c.Path == "" {
		return errors.New("config path is empty")
	}
	if err := utils.EnsureParent(c.Path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(c.Path, data, 0o600)
}

func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{FullSyncInterval: DefaultFullSyncInterval}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Path = path

	return cfg, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
