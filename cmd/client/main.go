package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/kbsync/internal/client/config"
	"github.com/openmined/kbsync/internal/utils"
	"github.com/openmined/kbsync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

const envPrefix = "KBSYNC"

var home, _ = os.UserHomeDir()

var rootCmd = &cobra.Command{
	Use:     "kbsync",
	Short:   "KBSync knowledge base sync client",
	Version: version.Detailed(),
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "KBSync config file")
	addDaemonFlags(rootCmd)
	rootCmd.RunE = runDaemon
}

func main() {
	// a missing .env is fine
	_ = godotenv.Load()

	logFile := config.DefaultLogFilePath
	if envPath := os.Getenv(envPrefix + "_LOG_FILE"); envPath != "" {
		logFile = envPath
	}
	closeLogs, err := setupLogging(logFile, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logging: %v\n", err)
		os.Exit(1)
	}
	defer closeLogs()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// setupLogging logs to stdout and to a rotated log file. File lines carry the
// sequence number and timestamp added by the log interceptor, which is the
// format /v1/logs parses.
func setupLogging(logFile string, stdout *os.File) (func(), error) {
	if err := utils.EnsureParent(logFile); err != nil {
		return nil, err
	}

	rotator := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     14, // days
	}

	stdoutHandler := tint.NewHandler(stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(stdout.Fd()),
	})
	interceptor := utils.NewLogInterceptor(rotator)
	fileHandler := newFileLogHandler(interceptor)

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(stdoutHandler, fileHandler)))

	return func() {
		_ = interceptor.Close()
		_ = rotator.Close()
	}, nil
}

func newFileLogHandler(w io.Writer) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		// time comes from the log interceptor
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})
}

// loadConfig merges the config file, KBSYNC_* environment variables and the
// command's flags, in increasing priority.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()

	configPath := resolveConfigPath(cmd)
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return nil, fmt.Errorf("config read '%s': %w", configPath, err)
		}
	}

	v.SetDefault("full_sync_interval", config.DefaultFullSyncInterval)
	v.SetDefault("data_dir", config.DefaultDataDir)
	v.SetDefault("server_url", config.DefaultServerURL)
	v.SetDefault("client_url", config.DefaultClientURL)
	v.SetDefault("log_file", config.DefaultLogFilePath)

	for key, flag := range map[string]string{
		"email":              "email",
		"data_dir":           "datadir",
		"server_url":         "server",
		"client_url":         "client-url",
		"client_token":       "client-token",
		"full_sync_interval": "interval",
		"debug":              "debug",
	} {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	return &config.Config{
		Path:             configPath,
		Email:            v.GetString("email"),
		DataDir:          v.GetString("data_dir"),
		ServerURL:        v.GetString("server_url"),
		RefreshToken:     v.GetString("refresh_token"),
		FullSyncInterval: v.GetInt("full_sync_interval"),
		Debug:            v.GetBool("debug"),
		ClientURL:        v.GetString("client_url"),
		ClientToken:      v.GetString("client_token"),
		LogFile:          v.GetString("log_file"),
	}, nil
}
