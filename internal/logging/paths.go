package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir is ~/.synapstor/logs, or a temp-dir equivalent when no
// home directory resolves.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".synapstor", "logs")
	}
	return filepath.Join(home, ".synapstor", "logs")
}

// DefaultLogPath is the log file commands write to when file logging
// is enabled.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "synapstor.log")
}
