package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// writeExtension writes an executable shell script named bt-<name> in a
// directory added to PATH.
func writeExtension(t *testing.T, name, script string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("extensions are shell scripts")
	}
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bt-"+name), []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("Failed to write extension: %v", err)
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = old })
	return &buf
}

func TestRunExtension(t *testing.T) {
	writeExtension(t, "hello", `echo "$1 $BT_CONFIG $BT_VERBOSE"`)
	out := captureStdout(t)

	oldConfig, oldVerbose := *configFile, *Verbose
	*configFile, *Verbose = "run.yaml", true
	defer func() { *configFile, *Verbose = oldConfig, oldVerbose }()

	found, code := RunExtension("hello", []string{"world"})
	if !found || code != 0 {
		t.Fatalf("RunExtension() = %v, %d, want true, 0", found, code)
	}
	if got, want := strings.TrimSpace(out.String()), "world run.yaml true"; got != want {
		t.Errorf("extension output = %q, want %q", got, want)
	}
}

func TestRunExtension_ExitCode(t *testing.T) {
	writeExtension(t, "fail", "exit 3\n")
	if found, code := RunExtension("fail", nil); !found || code != 3 {
		t.Errorf("RunExtension() = %v, %d, want true, 3", found, code)
	}
}

func TestRunExtension_NotFound(t *testing.T) {
	if found, _ := RunExtension("no-such-extension-for-sure", nil); found {
		t.Error("RunExtension() found a missing extension")
	}
}
