package analysis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/helixml/branchscope/domain/branch"
)

func fakeAnalyzer(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "fake-scc")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write fake analyzer: %v", err)
	}
	return path
}

func TestAnalyzer_Analyze(t *testing.T) {
	bin := fakeAnalyzer(t, `echo "args: $@"`)
	a := New(WithBinary(bin))
	dir := t.TempDir()

	report, err := a.Analyze(context.Background(), "example.com/a/b", dir)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got, want := string(report), "args: --ci "+dir+"\n"; got != want {
		t.Errorf("report = %q, want %q", got, want)
	}
}

func TestAnalyzer_CustomArgs(t *testing.T) {
	bin := fakeAnalyzer(t, `echo "$@"`)
	a := New(WithBinary(bin), WithArgs("--format", "json"))

	report, err := a.Analyze(context.Background(), "r", "/tmp/x")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if strings.TrimSpace(string(report)) != "--format json /tmp/x" {
		t.Errorf("report = %q", report)
	}
}

func TestAnalyzer_Failure(t *testing.T) {
	bin := fakeAnalyzer(t, "echo 'unable to read directory' >&2\nexit 3")
	a := New(WithBinary(bin))

	_, err := a.Analyze(context.Background(), "example.com/a/b", t.TempDir())
	var subErr *branch.SubprocessError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected *SubprocessError, got %v", err)
	}
	if subErr.Operation != branch.OperationAnalyze {
		t.Errorf("Operation = %q, want analyze", subErr.Operation)
	}
	if subErr.Diagnostic != "unable to read directory" {
		t.Errorf("Diagnostic = %q", subErr.Diagnostic)
	}
	if !errors.Is(err, branch.ErrSubprocess) {
		t.Error("expected errors.Is(err, ErrSubprocess)")
	}
}

func TestDirSize(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "sub", "deeper"), 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]int{
		"a.txt":            10,
		"sub/b.txt":        200,
		"sub/deeper/c.bin": 3000,
	}
	for name, size := range files {
		if err := os.WriteFile(filepath.Join(dir, name), make([]byte, size), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := DirSize(dir)
	if err != nil {
		t.Fatalf("DirSize: %v", err)
	}
	if got != 3210 {
		t.Errorf("DirSize = %d, want 3210", got)
	}

	if _, err := DirSize(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing directory")
	}
}
