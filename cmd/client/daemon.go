package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/fatih/color"
	"github.com/openmined/kbsync/internal/client"
	"github.com/openmined/kbsync/internal/client/config"
	"github.com/openmined/kbsync/internal/version"
	"github.com/spf13/cobra"
)

func addDaemonFlags(cmd *cobra.Command) {
	cmd.Flags().SortFlags = false
	cmd.Flags().StringP("email", "e", "", "Account email")
	cmd.Flags().StringP("datadir", "d", config.DefaultDataDir, "KBSync data directory")
	cmd.Flags().StringP("server", "s", config.DefaultServerURL, "KBSync server")
	cmd.Flags().StringP("client-url", "a", config.DefaultClientURL, "URL of the local control plane")
	cmd.Flags().StringP("client-token", "t", "", "Access token for the local control plane")
	cmd.Flags().IntP("interval", "i", config.DefaultFullSyncInterval, "Full sync interval in minutes, 0 disables")
	cmd.Flags().Bool("debug", false, "Disable automatic full syncs")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	cmd.SilenceUsage = true
	showHeader()
	slog.Info("kbsync", "version", version.Version, "revision", version.Revision, "build", version.BuildDate)
	slog.Info("daemon using config", "path", cfg.Path)

	daemon, err := client.NewClientDaemon(cfg)
	if err != nil {
		return err
	}

	defer slog.Info("Bye!")
	if err := daemon.Start(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("daemon start", "error", err)
		return err
	}
	return nil
}

func showHeader() {
	color.New(color.FgHiCyan, color.Bold).Println(version.ShortWithApp())
}
