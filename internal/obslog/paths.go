package obslog

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.vaultrag/logs/),
// falling back to a temp directory if the home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".vaultrag", "logs")
	}
	return filepath.Join(home, ".vaultrag", "logs")
}

// DefaultLogPath returns the default engine log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "vaultrag.log")
}

// FindLogFile resolves the log file to inspect, preferring an explicit
// path over the default location.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}
		return "", fmt.Errorf("log file not found: %s", explicit)
	}

	global := DefaultLogPath()
	if _, err := os.Stat(global); err == nil {
		return global, nil
	}

	return "", fmt.Errorf("no log file found; run with --debug first.\nExpected at: %s", global)
}

// EnsureLogDir creates the log directory if it does not already exist.
func EnsureLogDir() error {
	return os.MkdirAll(DefaultLogDir(), 0o755)
}
