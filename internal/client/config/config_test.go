package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate_NormalizesAndDefaults(t *testing.T) {
	tmp := t.TempDir()
	cfg := &Config{
		DataDir:   tmp,
		Email:     " Alice@Example.com ",
		ServerURL: "http://127.0.0.1:8080",
		ClientURL: "http://localhost:7938",
		Path:      filepath.Join(tmp, "config.json"),
	}

	require.NoError(t, cfg.Validate())
	assert.True(t, filepath.IsAbs(cfg.DataDir))
	assert.True(t, filepath.IsAbs(cfg.Path))
	assert.Equal(t, "alice@example.com", cfg.Email)
	assert.Equal(t, 0, cfg.FullSyncInterval)
}

func TestConfig_Validate_DefaultDataDir(t *testing.T) {
	cfg := &Config{
		Email:     "alice@example.com",
		ServerURL: "https://sync.example.com",
		Path:      filepath.Join(t.TempDir(), "config.json"),
	}

	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultDataDir, cfg.DataDir)
}

func TestConfig_Validate_ErrorsOnInvalidInputs(t *testing.T) {
	tmp := t.TempDir()
	valid := func() *Config {
		return &Config{
			DataDir:   tmp,
			Email:     "alice@example.com",
			ServerURL: "http://127.0.0.1:8080",
			Path:      filepath.Join(tmp, "config.json"),
		}
	}

	t.Run("bad email", func(t *testing.T) {
		cfg := valid()
		cfg.Email = "not-an-email"
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidEmail)
	})

	t.Run("empty email", func(t *testing.T) {
		cfg := valid()
		cfg.Email = ""
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidEmail)
	})

	t.Run("bad server url", func(t *testing.T) {
		cfg := valid()
		cfg.ServerURL = "ftp://bad.example.com"
		err := cfg.Validate()
		assert.ErrorIs(t, err, ErrInvalidServerURL)
		assert.Contains(t, err.Error(), "server url")
	})

	t.Run("bad client url", func(t *testing.T) {
		cfg := valid()
		cfg.ClientURL = "://bad"
		err := cfg.Validate()
		assert.ErrorIs(t, err, ErrInvalidClientURL)
		assert.Contains(t, err.Error(), "client url")
	})

	t.Run("negative interval", func(t *testing.T) {
		cfg := valid()
		cfg.FullSyncInterval = -1
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidInterval)
	})

	t.Run("interval above a day", func(t *testing.T) {
		cfg := valid()
		cfg.FullSyncInterval = 24*60 + 1
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidInterval)
	})
}

func TestConfig_SaveAndLoad_Roundtrip(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "nested", "config.json")

	cfg := &Config{
		DataDir:          tmp,
		Email:            "alice@example.com",
		ServerURL:        "http://127.0.0.1:8080",
		ClientURL:        "http://localhost:7938",
		ClientToken:      "tok",
		RefreshToken:     "rtok",
		FullSyncInterval: 30,
		Debug:            true,
		Path:             path,
	}

	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.Save())

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, cfg.DataDir, loaded.DataDir)
	assert.Equal(t, cfg.Email, loaded.Email)
	assert.Equal(t, cfg.ServerURL, loaded.ServerURL)
	assert.Equal(t, cfg.ClientURL, loaded.ClientURL)
	assert.Equal(t, cfg.ClientToken, loaded.ClientToken)
	assert.Equal(t, cfg.RefreshToken, loaded.RefreshToken)
	assert.Equal(t, 30, loaded.FullSyncInterval)
	assert.True(t, loaded.Debug)
	assert.Equal(t, path, loaded.Path)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}
}

func TestLoadFromFile_DefaultsInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"email": "alice@example.com"}`), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultFullSyncInterval, cfg.FullSyncInterval)
}

func TestLoadFromFile_Errors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o600))
	_, err = LoadFromFile(path)
	assert.ErrorContains(t, err, "parse config")
}

func TestSave_RequiresPath(t *testing.T) {
	assert.Error(t, (&Config{}).Save())
}
