package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestNewAppConfig_Defaults(t *testing.T) {
	cfg := NewAppConfig()

	if cfg.Addr() != "0.0.0.0:8080" {
		t.Errorf("Addr() = %q, want 0.0.0.0:8080", cfg.Addr())
	}
	if cfg.CacheCapacity() != DefaultCacheCapacity {
		t.Errorf("CacheCapacity() = %d, want %d", cfg.CacheCapacity(), DefaultCacheCapacity)
	}
	if !cfg.TrackStatistics() {
		t.Error("TrackStatistics() should default to true")
	}
	if got := cfg.Analyzer().Args(); len(got) != 1 || got[0] != "--ci" {
		t.Errorf("Analyzer().Args() = %v, want [--ci]", got)
	}
}

func TestAppConfig_ApplyDoesNotMutate(t *testing.T) {
	base := NewAppConfig()
	changed := base.Apply(WithPort(9999), WithStreamInterval(time.Second))

	if base.Port() != DefaultPort {
		t.Errorf("base port changed to %d", base.Port())
	}
	if changed.Port() != 9999 || changed.StreamInterval() != time.Second {
		t.Errorf("Apply() did not apply options: %d %v", changed.Port(), changed.StreamInterval())
	}
}

func TestAppConfig_IgnoresNonPositiveDurations(t *testing.T) {
	cfg := NewAppConfigWithOptions(WithStreamInterval(0), WithRemoteCacheTTL(-time.Second))

	if cfg.StreamInterval() != DefaultStreamInterval {
		t.Errorf("StreamInterval() = %v, want default", cfg.StreamInterval())
	}
	if cfg.RemoteCacheTTL() != DefaultRemoteCacheTTL {
		t.Errorf("RemoteCacheTTL() = %v, want default", cfg.RemoteCacheTTL())
	}
}

func TestAppConfig_CopiesSlices(t *testing.T) {
	origins := []string{"https://a.example"}
	cfg := NewAppConfigWithOptions(WithCORSOrigins(origins))
	origins[0] = "mutated"

	if cfg.CORSOrigins()[0] != "https://a.example" {
		t.Error("CORSOrigins must be copied on set")
	}
	got := cfg.CORSOrigins()
	got[0] = "mutated"
	if cfg.CORSOrigins()[0] != "https://a.example" {
		t.Error("CORSOrigins must be copied on get")
	}
}

func TestAppConfig_MasksPostgresURL(t *testing.T) {
	cfg := NewAppConfigWithOptions(WithDBURL("postgres://user:secret@db/branchscope"))

	for _, attr := range cfg.LogAttrs() {
		if attr.Key == "db_url" && attr.Value.Kind() == slog.KindString {
			if attr.Value.String() != "postgres://***@***" {
				t.Errorf("db_url = %q, want masked", attr.Value.String())
			}
			return
		}
	}
	t.Error("db_url attribute missing")
}

func TestParseList(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"a, b ,,c", 3},
	}
	for _, tt := range tests {
		if got := ParseList(tt.in); len(got) != tt.want {
			t.Errorf("ParseList(%q) = %v, want %d items", tt.in, got, tt.want)
		}
	}
}
