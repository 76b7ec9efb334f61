package user

import (
	"os/exec"
	"strings"
)

// Identity sources reported by Detect.
const (
	SourceGitConfig   = "git-config"
	SourceGitHubCLI   = "github-cli"
	SourceEnvironment = "environment"
)

// Identity is a display name detected from the local environment.
type Identity struct {
	// Name is the display name to record.
	Name string

	// Source indicates where the identity came from.
	Source string
}

// Detect attempts to detect the local user's identity.
// Priority order:
//  1. Git config (user.name)
//  2. GitHub CLI (gh api user)
//  3. Environment (whoami)
func Detect(workDir string) *Identity {
	if id := detectFromGitConfig(workDir); id != nil {
		return id
	}

	if id := detectFromGitHub(); id != nil {
		return id
	}

	return detectFromEnvironment()
}

// detectFromGitConfig reads user.name from git config.
func detectFromGitConfig(dir string) *Identity {
	cmd := exec.Command("git", "config", "user.name")
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.Output()
	if err != nil {
		return nil
	}
	name := strings.TrimSpace(string(out))
	if name == "" {
		return nil
	}

	return &Identity{Name: name, Source: SourceGitConfig}
}

// detectFromGitHub asks the GitHub CLI for the authenticated account.
func detectFromGitHub() *Identity {
	cmd := exec.Command("gh", "api", "user", "--jq", ".login + \"|\" + .name")
	out, err := cmd.Output()
	if err != nil {
		return nil
	}
	return parseGitHubUser(string(out))
}

// parseGitHubUser parses "login|name" as printed by detectFromGitHub.
func parseGitHubUser(out string) *Identity {
	login, name, _ := strings.Cut(strings.TrimSpace(out), "|")
	if login == "" {
		return nil
	}
	if name == "" {
		name = login
	}
	return &Identity{Name: name, Source: SourceGitHubCLI}
}

// detectFromEnvironment falls back to the OS account name.
func detectFromEnvironment() *Identity {
	out, err := exec.Command("whoami").Output()

	var name string
	if err == nil {
		name = strings.TrimSpace(string(out))
	}
	if name == "" {
		name = "user"
	}

	return &Identity{Name: name, Source: SourceEnvironment}
}
