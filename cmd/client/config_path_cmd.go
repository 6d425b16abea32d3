package main

import (
	"fmt"

	"github.com/openmined/kbsync/internal/utils"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newConfigPathCmd())
}

// newConfigPathCmd prints the config file the daemon would load. With
// --verbose it also tells where the path came from and whether the file exists yet.
func newConfigPathCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "config-path",
		Short: "Print the config file the daemon loads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, source := resolveConfigPathSource(cmd)
			out := cmd.OutOrStdout()

			if !verbose {
				_, err := fmt.Fprintln(out, path)
				return err
			}

			state := "missing"
			if utils.FileExists(path) {
				state = "exists"
			}
			_, err := fmt.Fprintf(out, "%s\nsource: %s\nfile: %s\n", path, source, state)
			return err
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show where the path came from")
	return cmd
}
