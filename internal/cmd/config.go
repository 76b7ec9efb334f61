package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"github.com/steveyegge/userdir/internal/config"
	"github.com/steveyegge/userdir/internal/style"
	"github.com/steveyegge/userdir/internal/user"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: GroupConfig,
	Short:   "Inspect or create the settings file",
	RunE:    requireSubcommand,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after applying the settings file and
USERDIR_* environment overrides.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default settings file",
	Long: `Write settings/userdir.toml under the settings root with default
values and the built-in seed records.

Refuses to overwrite an existing file unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configInitForce bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "Overwrite an existing settings file")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	root, err := resolveRoot()
	if err != nil {
		return err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n", style.Dim.Render("# file:"), style.Dim.Render(config.ConfigPath(root)))
	fmt.Fprintf(out, "%s %s\n", style.Dim.Render("# snapshot:"), style.Dim.Render(cfg.StorePath(root)))
	return toml.NewEncoder(out).Encode(redacted(cfg))
}

// redacted returns a copy of cfg with secrets masked for display.
func redacted(cfg *config.Config) *config.Config {
	out := *cfg
	out.Slack.WebhookURL = maskURL(cfg.Slack.WebhookURL)
	return &out
}

// maskURL keeps the scheme and host of a webhook URL and hides the path,
// which carries the token.
func maskURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "****"
	}
	return u.Scheme + "://" + u.Host + "/****"
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	root, err := resolveRoot()
	if err != nil {
		return err
	}

	path := config.ConfigPath(root)
	if _, err := os.Stat(path); err == nil && !configInitForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking %s: %w", path, err)
	}

	cfg := config.DefaultConfig()
	for _, r := range user.DefaultSeed() {
		cfg.Seed = append(cfg.Seed, config.SeedRecord{ID: r.ID, Name: r.Name})
	}
	if err := config.Save(root, cfg); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s Wrote %s\n", style.SuccessPrefix, path)
	return nil
}
