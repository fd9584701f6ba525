package git

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// gitPreamble drops the leading "-c key=value" pairs every command carries
// and answers the version probe made when the binary is first used.
const gitPreamble = `while [ "$1" = "-c" ]; do shift 2; done
case "$1" in
version|--version)
	echo "git version 2.43.0"
	exit 0
	;;
esac
`

// fakeBinary writes an executable shell script standing in for git.
func fakeBinary(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "fake-git")
	script := "#!/bin/sh\n" + gitPreamble + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake binary: %v", err)
	}
	return path
}
