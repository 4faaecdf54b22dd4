package common

import (
	"os"
	"path/filepath"
	"strings"
)

// Version metadata injected at build time via ldflags. A .version file next
// to the binary acts as a fallback for unflagged builds.
var (
	Version   = "dev"
	Build     = "unknown"
	GitCommit = "unknown"
)

// LoadVersionFromFile fills any still-default version variable from the
// .version file in the binary's directory. Missing file is not an error.
func LoadVersionFromFile() {
	exe, err := os.Executable()
	if err != nil {
		return
	}
	applyVersionFile(filepath.Join(filepath.Dir(exe), ".version"))
}

// applyVersionFile parses "key: value" lines, skipping blanks and '#'
// comments. File values never override values already set via ldflags.
func applyVersionFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "version":
			if Version == "dev" {
				Version = value
			}
		case "build":
			if Build == "unknown" {
				Build = value
			}
		case "commit":
			if GitCommit == "unknown" {
				GitCommit = value
			}
		}
	}
}
