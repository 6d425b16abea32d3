package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openmined/kbsync/internal/client/handlers"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newSyncCmd())
}

func newSyncCmd() *cobra.Command {
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Control the sync scheduler of a running daemon",
	}

	var background bool
	fullCmd := &cobra.Command{
		Use:   "full",
		Short: "Request a full sync",
		Args:  cobra.NoArgs,
		RunE: withControlClient(func(cmd *cobra.Command, cp *controlClient, args []string) error {
			if err := cp.FullSync(cmd.Context(), background); err != nil {
				return err
			}
			return printOK(cmd.OutOrStdout(), "full sync requested")
		}),
	}
	fullCmd.Flags().BoolVarP(&background, "background", "b", false, "Skip user facing notifications")

	quickCmd := &cobra.Command{
		Use:   "quick [kb_guid]",
		Short: "Request a quick sync of one knowledge base, the primary one by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: withControlClient(func(cmd *cobra.Command, cp *controlClient, args []string) error {
			kbGUID := ""
			if len(args) == 1 {
				kbGUID = args[0]
			}
			if err := cp.QuickSync(cmd.Context(), kbGUID); err != nil {
				return err
			}
			return printOK(cmd.OutOrStdout(), "quick sync requested")
		}),
	}

	messagesCmd := &cobra.Command{
		Use:   "messages",
		Short: "Request a message download",
		Args:  cobra.NoArgs,
		RunE: withControlClient(func(cmd *cobra.Command, cp *controlClient, args []string) error {
			accepted, err := cp.DownloadMessages(cmd.Context())
			if err != nil {
				return err
			}
			if !accepted {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), gray("message download skipped, requested too recently"))
				return err
			}
			return printOK(cmd.OutOrStdout(), "message download requested")
		}),
	}

	var wait bool
	pauseCmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause the scheduler",
		Args:  cobra.NoArgs,
		RunE: withControlClient(func(cmd *cobra.Command, cp *controlClient, args []string) error {
			if err := cp.Pause(cmd.Context(), wait); err != nil {
				return err
			}
			return printOK(cmd.OutOrStdout(), "paused")
		}),
	}
	pauseCmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the running sync to finish")

	resumeCmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume the scheduler",
		Args:  cobra.NoArgs,
		RunE: withControlClient(func(cmd *cobra.Command, cp *controlClient, args []string) error {
			if err := cp.Resume(cmd.Context()); err != nil {
				return err
			}
			return printOK(cmd.OutOrStdout(), "resumed")
		}),
	}

	intervalCmd := &cobra.Command{
		Use:   "interval <minutes>",
		Short: "Set the full sync interval, 0 disables it",
		Args:  cobra.ExactArgs(1),
		RunE: withControlClient(func(cmd *cobra.Command, cp *controlClient, args []string) error {
			minutes, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid interval %q", args[0])
			}
			if err := cp.SetInterval(cmd.Context(), minutes); err != nil {
				return err
			}
			return printOK(cmd.OutOrStdout(), fmt.Sprintf("full sync every %d minutes", minutes))
		}),
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the scheduler status",
		Args:  cobra.NoArgs,
		RunE: withControlClient(func(cmd *cobra.Command, cp *controlClient, args []string) error {
			status, err := cp.Status(cmd.Context())
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), status, time.Now())
		}),
	}

	syncCmd.AddCommand(fullCmd, quickCmd, messagesCmd, pauseCmd, resumeCmd, intervalCmd, statusCmd)
	return syncCmd
}

func withControlClient(run func(cmd *cobra.Command, cp *controlClient, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true
		return run(cmd, newControlClient(cfg.ClientURL, cfg.ClientToken), args)
	}
}

func printOK(w io.Writer, msg string) error {
	_, err := fmt.Fprintln(w, green("✔"), msg)
	return err
}

func printStatus(w io.Writer, status *handlers.SyncStatusResponse, now time.Time) error {
	if status.SchedulerStatus == nil {
		return fmt.Errorf("empty status")
	}
	s := status.SchedulerStatus

	state := green("idle")
	switch {
	case !s.Running:
		state = red("stopped")
	case s.Paused:
		state = gray("paused")
	case s.Busy:
		state = cyan("syncing")
	}

	lastFull := "never"
	if !s.LastFullSync.IsZero() {
		lastFull = humanize.RelTime(s.LastFullSync, now, "ago", "from now")
	}

	interval := "disabled"
	if s.FullSyncInterval > 0 && !s.DebugMode {
		interval = s.FullSyncInterval.String()
	}

	pending := "none"
	if len(s.PendingQuickSync) > 0 {
		pending = strings.Join(s.PendingQuickSync, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-16s %s\n", "state", state)
	fmt.Fprintf(&b, "%-16s %s\n", "last full sync", lastFull)
	fmt.Fprintf(&b, "%-16s %s\n", "interval", interval)
	fmt.Fprintf(&b, "%-16s %s\n", "pending quick", pending)
	if s.NeedFullSync {
		fmt.Fprintf(&b, "%-16s %s\n", "queued", "full sync")
	}
	if last := status.LastResult; last != nil {
		result := green("ok")
		if last.Code != "" {
			result = red(last.Code + " " + last.Message)
		}
		fmt.Fprintf(&b, "%-16s %s (%s)\n", "last result", result, humanize.RelTime(last.Time, now, "ago", "from now"))
	}

	_, err := io.WriteString(w, b.String())
	return err
}
