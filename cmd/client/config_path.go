package main

import (
	"os"
	"path/filepath"

	"github.com/openmined/kbsync/internal/client/config"
	"github.com/openmined/kbsync/internal/utils"
	"github.com/spf13/cobra"
)

const (
	configSourceFlag    = "flag"
	configSourceEnv     = "env"
	configSourceFound   = "found"
	configSourceDefault = "default"
)

// resolveConfigPath determines which config file path to use, honoring (in order):
// 1) An explicitly set --config flag
// 2) KBSYNC_CONFIG_PATH environment variable
// 3) Existing config files in common locations
// 4) The default path
func resolveConfigPath(cmd *cobra.Command) string {
	path, _ := resolveConfigPathSource(cmd)
	return path
}

// resolveConfigPathSource is resolveConfigPath that also names the rule that picked the path.
func resolveConfigPathSource(cmd *cobra.Command) (string, string) {
	if cfgFlag := cmd.Flag("config"); cfgFlag != nil && cfgFlag.Changed {
		return cfgFlag.Value.String(), configSourceFlag
	}

	if envPath := os.Getenv(envPrefix + "_CONFIG_PATH"); envPath != "" {
		return envPath, configSourceEnv
	}

	candidates := []string{
		config.DefaultConfigPath,
		filepath.Join(home, ".config", "kbsync", "config.json"),
	}

	for _, candidate := range candidates {
		if utils.FileExists(candidate) {
			return candidate, configSourceFound
		}
	}

	return config.DefaultConfigPath, configSourceDefault
}
