package cmd

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/steveyegge/userdir/internal/style"
	"github.com/steveyegge/userdir/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:     "tui",
	GroupID: GroupDirectory,
	Short:   "Browse and edit the directory interactively",
	Long: `Open a full-screen view of the directory.

Keys:
  s   record a new current user
  a   add a user (enter "<id> <name>")
  e   rename the selected user
  d   remove the selected user
  c   clear the directory
  q   quit

Changes are saved when the view exits. Until then, other userdir
commands that change the directory cannot run.`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	if !style.IsTerminal(os.Stdout) || !style.IsTerminal(os.Stdin) {
		return fmt.Errorf("the interactive view needs a terminal; use 'userdir user list' instead")
	}

	ctx := cmd.Context()
	s, err := openSession(ctx, readWrite)
	if err != nil {
		return err
	}
	defer s.Close()

	dirty, err := tui.Run(s.dir, tea.WithAltScreen(), tea.WithContext(ctx))
	if err != nil {
		return err
	}
	if !dirty {
		return nil
	}
	if err := s.save(ctx); err != nil {
		return err
	}
	s.announce(ctx, "tui")
	fmt.Fprintf(cmd.OutOrStdout(), "%s Saved %d users\n", style.SuccessPrefix, s.dir.Count())
	return nil
}
