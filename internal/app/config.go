package app

import (
	"os"
	"path/filepath"
)

// ConfigDir returns ~/.config/agentcore/ on all platforms.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "agentcore"), nil
}

// EnsureConfigDir creates the config directory and default config.yaml if missing.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	configFile := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return os.WriteFile(configFile, []byte(defaultConfig), 0600)
	}
	return nil
}

const defaultConfig = `# agentcore configuration
# Run: agentcore --help

# Optional: override the SQLite database location.
# Can also be set via AGENTCORE_DB_PATH or --db-path.
# db_path: ~/.config/agentcore/agentcore.db

# Optional: queue processing and maintenance tuning.
# queue_max_concurrency: 10
# stale_claim_grace_minutes: 10
# approval_default_ttl_hours: 24
# handoff_archive_days: 30
`
