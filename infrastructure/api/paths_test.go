package api

import "testing"

func TestWithGitSuffix(t *testing.T) {
	tests := []struct {
		host, repo, want string
	}{
		{"github.com", "widgets", "widgets.git"},
		{"github.com", "widgets.git", "widgets.git"},
		{"git.sr.ht", "widgets", "widgets"},
		{"github.com", "", ""},
	}
	for _, tt := range tests {
		if got := withGitSuffix(tt.host, tt.repo); got != tt.want {
			t.Errorf("withGitSuffix(%q, %q) = %q, want %q", tt.host, tt.repo, got, tt.want)
		}
	}
}

func TestNormalizeBranch(t *testing.T) {
	tests := []struct {
		host, raw, want string
	}{
		{"github.com", "main", "main"},
		{"github.com", "/feature/x/", "feature/x"},
		{"codeberg.org", "branch/main", "main"},
		{"codeberg.org", "/branch/release/1.0/", "release/1.0"},
		{"github.com", "branch/main", "branch/main"},
		{"github.com", "", ""},
	}
	for _, tt := range tests {
		if got := normalizeBranch(tt.host, tt.raw); got != tt.want {
			t.Errorf("normalizeBranch(%q, %q) = %q, want %q", tt.host, tt.raw, got, tt.want)
		}
	}
}

func TestIsTerminalAgent(t *testing.T) {
	tests := []struct {
		agent string
		want  bool
	}{
		{"curl/8.5.0", true},
		{"Lynx/2.9.0 libwww-FM/2.14", true},
		{"w3m/0.5.3", true},
		{"Links (2.29; Linux)", true},
		{"Not mandatory", true},
		{"Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isTerminalAgent(tt.agent); got != tt.want {
			t.Errorf("isTerminalAgent(%q) = %v, want %v", tt.agent, got, tt.want)
		}
	}
}
