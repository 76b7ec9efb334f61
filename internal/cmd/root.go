// Package cmd implements the userdir command-line interface.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/steveyegge/userdir/internal/style"
)

// Command groups shown in help output.
const (
	GroupDirectory = "directory"
	GroupConfig    = "config"
)

// rootDir is the --root flag: the settings directory.
var rootDir string

var rootCmd = &cobra.Command{
	Use:   "userdir",
	Short: "Manage a small directory of users",
	Long: `userdir keeps a registry of users keyed by numeric id, with a
"current user" pointer.

State is snapshotted to the configured store after every change, so each
invocation sees the previous one's edits.

Examples:
  userdir user list                 # Show all users
  userdir user add 7 Floki          # Add a user with id 7
  userdir user switch Ragnar        # Record a new current user
  userdir tui                       # Browse interactively`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: GroupDirectory, Title: "Directory Commands:"},
		&cobra.Group{ID: GroupConfig, Title: "Configuration Commands:"},
	)
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "Settings directory (default $USERDIR_ROOT or ~/.userdir)")
}

// requireSubcommand is the RunE for parent commands that only group others.
func requireSubcommand(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
	return fmt.Errorf("unknown command %q for %q", args[0], cmd.CommandPath())
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", style.ErrorPrefix, err)
		return 1
	}
	return 0
}
