package infra

import (
	"os"
	"path/filepath"
)

// DefaultDataDir is used when no data directory is configured.
const DefaultDataDir = "data"

func ensureDir(path string) error { return os.MkdirAll(path, 0o755) }

// WorkflowsDir is the directory storing workflow JSON files.
func WorkflowsDir(base string) string { return filepath.Join(dataDir(base), "workflows") }

// RunsDir is the directory storing run record JSON files.
func RunsDir(base string) string { return filepath.Join(dataDir(base), "runs") }

// SQLitePath is the default database file under the data directory.
func SQLitePath(base string) string { return filepath.Join(dataDir(base), "canvasflow.db") }

func dataDir(base string) string {
	if base == "" {
		return DefaultDataDir
	}
	return base
}
