package config

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"
)

// ValidationError reports a missing or malformed context key.
type ValidationError struct {
	Key    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("context key %s: %s", e.Key, e.Reason)
}

var (
	accountPattern = regexp.MustCompile(`^\d{12}$`)
	regionPattern  = regexp.MustCompile(`^[a-z]{2}(-gov|-iso[a-z]*)?-[a-z]+-\d+$`)
	namePattern    = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9-]*$`)
)

// Validate checks the context once, before anything is synthesized. All
// problems are reported together.
func (c *Context) Validate() error {
	var errs []error
	add := func(key, reason string) {
		errs = append(errs, &ValidationError{Key: key, Reason: reason})
	}

	switch {
	case c.Common.LongContext == "":
		add("common.longContext", "is required")
	case !namePattern.MatchString(c.Common.LongContext):
		add("common.longContext", "must start with a letter and contain only letters, digits and hyphens")
	}
	if c.Common.RepositoryName == "" {
		add("common.repositoryName", "is required")
	}
	if c.Common.KubernetesVersion != "" {
		if _, err := semver.NewVersion(c.Common.KubernetesVersion); err != nil {
			add("common.kubernetesVersion", fmt.Sprintf("invalid version %q", c.Common.KubernetesVersion))
		}
	}
	if c.Common.GoVersion != "" {
		if _, err := semver.NewVersion(c.Common.GoVersion); err != nil {
			add("common.goVersion", fmt.Sprintf("invalid version %q", c.Common.GoVersion))
		}
	}
	switch c.Common.ContainerInsightsMode {
	case InsightsModeCharts, InsightsModeManifests:
	default:
		add("common.containerInsightsMode", fmt.Sprintf("must be %q or %q", InsightsModeCharts, InsightsModeManifests))
	}

	validateEnv := func(name string, env Environment, stage bool) {
		switch {
		case env.Account == "":
			add(name+".account", "is required")
		case !accountPattern.MatchString(env.Account):
			add(name+".account", fmt.Sprintf("%q is not a 12 digit account id", env.Account))
		}
		switch {
		case env.Region == "":
			add(name+".region", "is required")
		case !regionPattern.MatchString(env.Region):
			add(name+".region", fmt.Sprintf("%q is not a region name", env.Region))
		}
		if !stage {
			if env.EnvironmentTag == "" {
				add(name+".environmentTag", "is required")
			}
			return
		}
		switch {
		case env.ShortPrefix == "":
			add(name+".shortPrefix", "is required")
		case !namePattern.MatchString(env.ShortPrefix):
			add(name+".shortPrefix", "must start with a letter and contain only letters, digits and hyphens")
		}
	}

	validateEnv("tools", c.Tools, false)
	validateEnv("development", c.Development, true)
	if !c.Test.IsZero() {
		validateEnv("test", c.Test, true)
	}
	if !c.Production.IsZero() {
		validateEnv("production", c.Production, true)
	}

	return errors.Join(errs...)
}
