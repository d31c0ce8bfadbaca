package app

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Settings represents configuration loaded from config.yaml.
// Field names match snake_case YAML keys.
type Settings struct {
	DBPath                  string `yaml:"db_path"`
	QueueMaxConcurrency     int    `yaml:"queue_max_concurrency"`
	StaleClaimGraceMinutes  int    `yaml:"stale_claim_grace_minutes"`
	ApprovalDefaultTTLHours int    `yaml:"approval_default_ttl_hours"`
	HandoffArchiveDays      int    `yaml:"handoff_archive_days"`
}

// CoordinationSettings are effective runtime values used by the queue
// processor and maintenance sweeps.
type CoordinationSettings struct {
	QueueMaxConcurrency     int `json:"queue_max_concurrency"`
	StaleClaimGraceMinutes  int `json:"stale_claim_grace_minutes"`
	ApprovalDefaultTTLHours int `json:"approval_default_ttl_hours"`
	HandoffArchiveDays      int `json:"handoff_archive_days"`
}

const (
	defaultQueueMaxConcurrency  = 10
	defaultStaleClaimGraceMin   = 10
	defaultApprovalTTLHours     = 24
	defaultHandoffArchiveDays   = 30
	maxQueueConcurrencySetting  = 100
	maxHandoffArchiveDaySetting = 3650
)

// EffectiveCoordinationSettings returns validated coordination settings with
// defaults. Invalid or missing config values fall back to safe defaults.
func EffectiveCoordinationSettings() CoordinationSettings {
	cfg := CoordinationSettings{
		QueueMaxConcurrency:     defaultQueueMaxConcurrency,
		StaleClaimGraceMinutes:  defaultStaleClaimGraceMin,
		ApprovalDefaultTTLHours: defaultApprovalTTLHours,
		HandoffArchiveDays:      defaultHandoffArchiveDays,
	}

	s, err := LoadSettings()
	if err != nil {
		return cfg
	}

	if s.QueueMaxConcurrency > 0 {
		cfg.QueueMaxConcurrency = s.QueueMaxConcurrency
	}
	if s.StaleClaimGraceMinutes > 0 {
		cfg.StaleClaimGraceMinutes = s.StaleClaimGraceMinutes
	}
	if s.ApprovalDefaultTTLHours > 0 {
		cfg.ApprovalDefaultTTLHours = s.ApprovalDefaultTTLHours
	}
	if s.HandoffArchiveDays > 0 {
		cfg.HandoffArchiveDays = s.HandoffArchiveDays
	}

	if cfg.QueueMaxConcurrency > maxQueueConcurrencySetting {
		cfg.QueueMaxConcurrency = maxQueueConcurrencySetting
	}
	if cfg.HandoffArchiveDays > maxHandoffArchiveDaySetting {
		cfg.HandoffArchiveDays = maxHandoffArchiveDaySetting
	}
	return cfg
}

// settingsOnce, settings, settingsErr implement the sync.Once lazy-load singleton for config.
// dbPathOverrideMu and dbPathOverride implement a mutex-protected process-wide override for CLI --db-path.
// These globals are required by the sync.Once pattern and the RWMutex pattern; they cannot be avoided.
//
//nolint:gochecknoglobals // sync.Once singleton + RWMutex override are intentional process-wide state
var (
	settingsOnce sync.Once
	settings     Settings
	settingsErr  error

	dbPathOverrideMu sync.RWMutex
	dbPathOverride   string
)

// SetDBPathOverride sets a process-wide database path override.
// Intended for CLI flag support (e.g. --db-path).
func SetDBPathOverride(path string) {
	dbPathOverrideMu.Lock()
	dbPathOverride = path
	dbPathOverrideMu.Unlock()
}

func getDBPathOverride() string {
	dbPathOverrideMu.RLock()
	v := dbPathOverride
	dbPathOverrideMu.RUnlock()
	return v
}

// LoadSettings loads configuration once using the documented lookup order.
// Lookup order (first found wins):
// 1) ~/.config/agentcore/config.yaml
// 2) /etc/agentcore/config.yaml
// 3) ./config.yaml (lowest priority; allows repo-local overrides if desired)
// Environment variables are handled separately.
func LoadSettings() (Settings, error) {
	settingsOnce.Do(func() {
		settings = Settings{}

		// 1) User config (~/.config/agentcore/config.yaml)
		dir, err := ConfigDir()
		if err != nil {
			settingsErr = err
			return
		}
		if s, err := loadSettingsFile(filepath.Join(dir, "config.yaml")); err == nil {
			settings = s
			return
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			settingsErr = err
			return
		}

		// 2) /etc
		if s, err := loadSettingsFile(filepath.Join(string(os.PathSeparator), "etc", "agentcore", "config.yaml")); err == nil {
			settings = s
			return
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			settingsErr = err
			return
		}

		// 3) Local ./config.yaml (lowest priority)
		if s, err := loadSettingsFile("config.yaml"); err == nil {
			settings = s
			return
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			settingsErr = err
			return
		}
	})

	return settings, settingsErr
}

func loadSettingsFile(path string) (Settings, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}

	var s Settings
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}
