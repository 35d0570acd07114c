package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// SettingsPrefix is the environment prefix of process settings.
const SettingsPrefix = "EKSGITOPS"

// Settings are process level settings read from the environment. Command
// line flags take precedence over them.
type Settings struct {
	ContextFile string `envconfig:"CONTEXT_FILE" default:"eks-gitops.yaml"`
	LookupFile  string `envconfig:"LOOKUP_FILE" default:"eks-gitops.lookups.yaml"`
	OutputDir   string `envconfig:"OUTPUT_DIR" default:"cdk.out"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"Console"`
	Debug       bool   `envconfig:"DEBUG" default:"false"`
}

// LoadSettings reads EKSGITOPS_* variables.
func LoadSettings() (Settings, error) {
	var s Settings
	if err := envconfig.Process(SettingsPrefix, &s); err != nil {
		return Settings{}, fmt.Errorf("reading %s_* settings: %w", SettingsPrefix, err)
	}
	return s, nil
}
