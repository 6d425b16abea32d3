package main

import (
	"fmt"

	"github.com/openmined/kbsync/internal/version"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newVersionCmd())
}

func newVersionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print KBSync version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// --short is meant for scripts comparing against a release tag
			if short {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), version.Version)
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\nuser agent: %s\n", version.DetailedWithApp(), version.UserAgent())
			return err
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "print the version number only")
	return cmd
}
