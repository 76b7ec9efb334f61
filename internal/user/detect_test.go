package user

import (
	"testing"
)

func TestParseGitHubUser(t *testing.T) {
	tests := []struct {
		out      string
		wantNil  bool
		wantName string
	}{
		{out: "ragnar|Ragnar Lothbrok\n", wantName: "Ragnar Lothbrok"},
		{out: "floki|", wantName: "floki"},
		{out: "floki", wantName: "floki"},
		{out: "|Nameless", wantNil: true},
		{out: "", wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.out, func(t *testing.T) {
			got := parseGitHubUser(tt.out)
			if tt.wantNil {
				if got != nil {
					t.Errorf("parseGitHubUser(%q) = %+v, want nil", tt.out, got)
				}
				return
			}
			if got == nil {
				t.Fatalf("parseGitHubUser(%q) = nil", tt.out)
			}
			if got.Name != tt.wantName {
				t.Errorf("name = %q, want %q", got.Name, tt.wantName)
			}
			if got.Source != SourceGitHubCLI {
				t.Errorf("source = %q, want %q", got.Source, SourceGitHubCLI)
			}
		})
	}
}

func TestDetect_FallsBackToEnvironment(t *testing.T) {
	// Detect with a non-git directory should still produce an identity.
	id := Detect(t.TempDir())
	if id == nil {
		t.Fatal("Detect returned nil")
	}
	if id.Name == "" {
		t.Error("name should not be empty")
	}
	validSources := map[string]bool{
		SourceGitConfig:   true,
		SourceGitHubCLI:   true,
		SourceEnvironment: true,
	}
	if !validSources[id.Source] {
		t.Errorf("source = %q, want one of git-config, github-cli, environment", id.Source)
	}
}
