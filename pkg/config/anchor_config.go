package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TrustConfig holds the policy defaults and trust-anchor settings that don't
// belong in the environment: the set of publications files and certificates
// a deployment trusts, and which standard policy to apply by default.
type TrustConfig struct {
	Environment string `yaml:"environment"`

	DefaultPolicy string `yaml:"default_policy"`

	PublicationsFiles []TrustedPublicationsFile `yaml:"publications_files"`
	Certificates      []TrustedCertificate      `yaml:"certificates"`

	Extension ExtensionSettings `yaml:"extension"`
}

// TrustedPublicationsFile names a publications file location and the
// constraints under which it is trusted.
type TrustedPublicationsFile struct {
	URI             string   `yaml:"uri"`
	ConstraintsCN   []string `yaml:"cert_constraints_cn"`
	MaxAge          Duration `yaml:"max_age"`
}

// TrustedCertificate names a single PEM certificate file trusted directly,
// bypassing the publications file (used by the key-based policy).
type TrustedCertificate struct {
	Path string `yaml:"path"`
	ID   string `yaml:"id"`
}

// ExtensionSettings controls the extender-chain cache and request behavior.
type ExtensionSettings struct {
	CacheTTL      Duration `yaml:"cache_ttl"`
	AllowExtender bool     `yaml:"allow_extender"`
}

// Duration wraps time.Duration for YAML unmarshaling of "5m"-style strings.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR_NAME} or ${VAR_NAME:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 4 {
			defaultValue = groups[3]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// LoadTrustConfig loads a trust configuration from a YAML file, expanding
// ${VAR_NAME} references against the process environment first.
func LoadTrustConfig(path string) (*TrustConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trust config %s: %w", path, err)
	}

	expanded := substituteEnvVars(string(data))

	var cfg TrustConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse trust config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *TrustConfig) applyDefaults() {
	if c.DefaultPolicy == "" {
		c.DefaultPolicy = "general"
	}
	if c.Extension.CacheTTL == 0 {
		c.Extension.CacheTTL = Duration(10 * time.Minute)
	}
	for i := range c.PublicationsFiles {
		if c.PublicationsFiles[i].MaxAge == 0 {
			c.PublicationsFiles[i].MaxAge = Duration(7 * 24 * time.Hour)
		}
	}
}

// Validate checks that the trust configuration names at least one anchor and
// that the default policy is one this module knows about.
func (c *TrustConfig) Validate() error {
	var errs []string

	if len(c.PublicationsFiles) == 0 && len(c.Certificates) == 0 {
		errs = append(errs, "at least one publications_files or certificates entry is required")
	}

	switch c.DefaultPolicy {
	case "internal", "key-based", "publications-file", "user-publication", "calendar-based", "general":
	default:
		errs = append(errs, fmt.Sprintf("default_policy %q is not a known policy name", c.DefaultPolicy))
	}

	for i, pf := range c.PublicationsFiles {
		if pf.URI == "" {
			errs = append(errs, fmt.Sprintf("publications_files[%d].uri is required", i))
		}
	}
	for i, cert := range c.Certificates {
		if cert.Path == "" {
			errs = append(errs, fmt.Sprintf("certificates[%d].path is required", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("trust configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
