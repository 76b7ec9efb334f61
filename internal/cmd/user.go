package cmd

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/steveyegge/userdir/internal/slack"
	"github.com/steveyegge/userdir/internal/style"
	"github.com/steveyegge/userdir/internal/user"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

var userCmd = &cobra.Command{
	Use:     "user",
	GroupID: GroupDirectory,
	Short:   "Manage users in the directory",
	Long: `Manage the records in the user directory.

Each record is a numeric id and a display name. Names need not be unique.
One id is the "current user".

Examples:
  userdir user list              # Show all users
  userdir user whoami            # Show current user
  userdir user add 7 Floki       # Add a new user
  userdir user switch Ragnar     # Record Ragnar as a new current user`,
	RunE: requireSubcommand,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show all users in the directory",
	Long: `List all records in the directory, ordered by id.

The current user is marked with an asterisk (*).
Use --sort name for a locale-aware alphabetical listing.`,
	Args: cobra.NoArgs,
	RunE: runUserList,
}

var userNamesCmd = &cobra.Command{
	Use:   "names",
	Short: "Print every name, one per line",
	Long: `Print the name of every record, one per line, in storage order.

The order is unspecified and may differ between runs. Intended for scripts.`,
	Args: cobra.NoArgs,
	RunE: runUserNames,
}

var userGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show the name stored under an id",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserGet,
}

var userWhoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current user",
	Args:  cobra.NoArgs,
	RunE:  runUserWhoami,
}

var userCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Show the number of users",
	Args:  cobra.NoArgs,
	RunE:  runUserCount,
}

var userAddCmd = &cobra.Command{
	Use:   "add <id> <name>",
	Short: "Add a new user to the directory",
	Long: `Add a record with the given id and display name.

The id must not already be in use. Everything after the id is the name.

Examples:
  userdir user add 7 Floki
  userdir user add 8 Ivar the Boneless`,
	Args: cobra.MinimumNArgs(2),
	RunE: runUserAdd,
}

var userUpdateCmd = &cobra.Command{
	Use:   "update <id> <name>",
	Short: "Rename an existing user",
	Long: `Replace the display name stored under an id.

With update_policy = "strict" (the default) the id must exist.
With update_policy = "upsert" a missing id is created.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runUserUpdate,
}

var userRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a user from the directory",
	Long: `Remove the record with the given id.

Removing an id that is not present succeeds and changes nothing.`,
	Args: cobra.ExactArgs(1),
	RunE: runUserRemove,
}

var userExistsCmd = &cobra.Command{
	Use:   "exists [<id>]",
	Short: "Check whether a user exists",
	Long: `Report whether a record with the given id exists, or with --name,
whether any record has exactly that name.

Prints "true" or "false". Exits non-zero only on errors.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runUserExists,
}

var userSwitchCmd = &cobra.Command{
	Use:   "switch [name]",
	Short: "Record a new current user",
	Long: `Append a new record for the given name and make it the current user.

This never selects an existing record: the new record's id is the number of
records plus one, even when a user with the same name already exists.

With no name, the identity is detected from git config, the GitHub CLI or
the OS account.

Example:
  userdir user switch Ragnar`,
	RunE: runUserSwitch,
}

var userClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all users",
	Long: `Remove every record from the directory.

Requires --force when the directory is not empty.`,
	Args: cobra.NoArgs,
	RunE: runUserClear,
}

var (
	userListSort   string
	userExistsName string
	userClearForce bool
)

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userNamesCmd)
	userCmd.AddCommand(userGetCmd)
	userCmd.AddCommand(userWhoamiCmd)
	userCmd.AddCommand(userCountCmd)
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userUpdateCmd)
	userCmd.AddCommand(userRemoveCmd)
	userCmd.AddCommand(userExistsCmd)
	userCmd.AddCommand(userSwitchCmd)
	userCmd.AddCommand(userClearCmd)

	userListCmd.Flags().StringVar(&userListSort, "sort", "id", "Sort order: id or name")
	userExistsCmd.Flags().StringVar(&userExistsName, "name", "", "Check for a record with this exact name")
	userClearCmd.Flags().BoolVarP(&userClearForce, "force", "f", false, "Clear without confirmation")
}

// parseID parses a user id argument.
func parseID(arg string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: must be an integer", arg)
	}
	return id, nil
}

// userFacing rewrites directory errors into messages for the terminal.
func userFacing(err error, id int) error {
	switch {
	case errors.Is(err, user.ErrNotFound):
		return fmt.Errorf("user %d not found. Run 'userdir user list' to see available users", id)
	case errors.Is(err, user.ErrDuplicateKey):
		return fmt.Errorf("user %d already exists", id)
	default:
		return err
	}
}

func runUserList(cmd *cobra.Command, args []string) error {
	if userListSort != "id" && userListSort != "name" {
		return fmt.Errorf("invalid --sort %q: must be id or name", userListSort)
	}

	s, err := openSession(cmd.Context(), readOnly)
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	records := s.dir.Records()
	if len(records) == 0 {
		fmt.Fprintln(out, "No users registered. Run 'userdir user add <id> <name>' to add one.")
		return nil
	}

	if userListSort == "name" {
		sortByName(records)
	}

	currentID := s.dir.CurrentID()
	styled := out == os.Stdout && style.IsTerminal(os.Stdout)

	fmt.Fprintf(out, "Users in %s:\n", s.root)
	for _, r := range records {
		marker := "  "
		name := r.Name
		if r.ID == currentID {
			marker = "* "
			if styled {
				marker = style.CurrentMarker + " "
				name = style.Current.Render(name)
			}
		}
		fmt.Fprintf(out, "  %s%4d  %s\n", marker, r.ID, name)
	}
	return nil
}

// sortByName orders records alphabetically using the Unicode collation
// algorithm, breaking ties by id.
func sortByName(records []user.Record) {
	c := collate.New(language.Und, collate.IgnoreCase)
	slices.SortStableFunc(records, func(a, b user.Record) int {
		if n := c.CompareString(a.Name, b.Name); n != 0 {
			return n
		}
		return a.ID - b.ID
	})
}

func runUserNames(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context(), readOnly)
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	for name := range s.dir.Names() {
		fmt.Fprintln(out, name)
	}
	return nil
}

func runUserGet(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	s, err := openSession(cmd.Context(), readOnly)
	if err != nil {
		return err
	}
	defer s.Close()

	name, err := s.dir.Get(id)
	if err != nil {
		return userFacing(err, id)
	}
	fmt.Fprintln(cmd.OutOrStdout(), name)
	return nil
}

func runUserWhoami(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context(), readOnly)
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	id := s.dir.CurrentID()
	name, err := s.dir.Current()
	if errors.Is(err, user.ErrNotFound) {
		fmt.Fprintln(out, style.Dim.Render("No current user."))
		fmt.Fprintf(out, "The current user id %d has no record. Run 'userdir user switch <name>' to set one.\n", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("getting current user: %w", err)
	}

	fmt.Fprintf(out, "%s %s\n", style.Bold.Render("Current user:"), name)
	fmt.Fprintf(out, "  %s %s\n", style.Dim.Render("ID:"), style.Dim.Render(strconv.Itoa(id)))
	return nil
}

func runUserCount(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context(), readOnly)
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Fprintln(cmd.OutOrStdout(), s.dir.Count())
	return nil
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	name := strings.TrimSpace(strings.Join(args[1:], " "))
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	ctx := cmd.Context()
	s, err := openSession(ctx, readWrite)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.dir.Add(id, name); err != nil {
		return userFacing(err, id)
	}
	if err := s.save(ctx); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s Added user %d (%s)\n", style.SuccessPrefix, id, name)
	s.notify(ctx, slack.EventUserAdded, map[string]string{
		slack.FieldUserID:   strconv.Itoa(id),
		slack.FieldUserName: name,
	})
	return nil
}

func runUserUpdate(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	name := strings.TrimSpace(strings.Join(args[1:], " "))
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	ctx := cmd.Context()
	s, err := openSession(ctx, readWrite)
	if err != nil {
		return err
	}
	defer s.Close()

	previous, _ := s.dir.Get(id)
	if err := s.dir.Update(id, name); err != nil {
		return userFacing(err, id)
	}
	if err := s.save(ctx); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s Updated user %d (%s)\n", style.SuccessPrefix, id, name)
	s.notify(ctx, slack.EventUserUpdated, map[string]string{
		slack.FieldUserID:   strconv.Itoa(id),
		slack.FieldUserName: name,
		slack.FieldPrevious: previous,
	})
	return nil
}

func runUserRemove(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	s, err := openSession(ctx, readWrite)
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	name, err := s.dir.Get(id)
	if err != nil {
		// Removing a missing id is not an error.
		fmt.Fprintf(out, "%s User %d was not present\n", style.WarningPrefix, id)
		return nil
	}

	s.dir.Remove(id)
	if err := s.save(ctx); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s Removed user %d (%s)\n", style.SuccessPrefix, id, name)
	s.notify(ctx, slack.EventUserRemoved, map[string]string{
		slack.FieldUserID:   strconv.Itoa(id),
		slack.FieldUserName: name,
	})
	return nil
}

func runUserExists(cmd *cobra.Command, args []string) error {
	byName := cmd.Flags().Changed("name")
	if byName == (len(args) == 1) {
		return fmt.Errorf("give exactly one of <id> or --name")
	}

	var id int
	if !byName {
		var err error
		if id, err = parseID(args[0]); err != nil {
			return err
		}
	}

	s, err := openSession(cmd.Context(), readOnly)
	if err != nil {
		return err
	}
	defer s.Close()

	var exists bool
	if byName {
		exists = s.dir.NameExists(userExistsName)
	} else {
		exists = s.dir.Exists(id)
	}
	fmt.Fprintln(cmd.OutOrStdout(), exists)
	return nil
}

func runUserSwitch(cmd *cobra.Command, args []string) error {
	name := strings.TrimSpace(strings.Join(args, " "))

	ctx := cmd.Context()
	s, err := openSession(ctx, readWrite)
	if err != nil {
		return err
	}
	defer s.Close()

	source := "argument"
	if name == "" {
		wd, _ := os.Getwd()
		detected := user.Detect(wd)
		name = detected.Name
		source = detected.Source
	}

	id, err := s.switchCurrent(ctx, name, source)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s Current user: %s %s\n",
		style.SuccessPrefix, name, style.Dim.Render(fmt.Sprintf("(new record %d, from %s)", id, source)))
	return nil
}

func runUserClear(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, readWrite)
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	n := s.dir.Count()
	if n == 0 {
		fmt.Fprintln(out, "Directory is already empty.")
		return nil
	}
	if !userClearForce {
		return fmt.Errorf("refusing to remove %d users without --force", n)
	}

	s.dir.Clear()
	if err := s.save(ctx); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s Removed %d users\n", style.SuccessPrefix, n)
	s.notify(ctx, slack.EventDirectoryCleared, map[string]string{
		slack.FieldCount: strconv.Itoa(n),
	})
	return nil
}
