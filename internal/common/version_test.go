package common

import (
	"os"
	"path/filepath"
	"testing"
)

func resetVersionVars(t *testing.T) {
	t.Helper()
	origVersion, origBuild, origCommit := Version, Build, GitCommit
	t.Cleanup(func() {
		Version, Build, GitCommit = origVersion, origBuild, origCommit
	})
	Version, Build, GitCommit = "dev", "unknown", "unknown"
}

func writeVersionFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".version")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestApplyVersionFile(t *testing.T) {
	resetVersionVars(t)

	path := writeVersionFile(t, `
# release metadata
version: 1.2.3
build: 2026-08-30T10:00:00Z
commit: abc1234
`)
	applyVersionFile(path)

	if Version != "1.2.3" {
		t.Errorf("expected version 1.2.3, got %q", Version)
	}
	if Build != "2026-08-30T10:00:00Z" {
		t.Errorf("expected build timestamp, got %q", Build)
	}
	if GitCommit != "abc1234" {
		t.Errorf("expected commit abc1234, got %q", GitCommit)
	}
}

func TestApplyVersionFile_LdflagsWin(t *testing.T) {
	resetVersionVars(t)
	Version = "2.0.0" // as if set via ldflags

	applyVersionFile(writeVersionFile(t, "version: 1.2.3\nbuild: b1\n"))

	if Version != "2.0.0" {
		t.Errorf("file must not override an ldflags version, got %q", Version)
	}
	if Build != "b1" {
		t.Errorf("still-default build should be filled, got %q", Build)
	}
}

func TestApplyVersionFile_MissingOrMalformed(t *testing.T) {
	resetVersionVars(t)

	applyVersionFile(filepath.Join(t.TempDir(), "does-not-exist"))
	if Version != "dev" {
		t.Errorf("missing file must leave defaults, got %q", Version)
	}

	applyVersionFile(writeVersionFile(t, "no separator here\nunknown_key: x\n"))
	if Version != "dev" || Build != "unknown" {
		t.Errorf("malformed lines must be ignored, got %q/%q", Version, Build)
	}
}
