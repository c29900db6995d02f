package ufd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/jad-haddad/unused-function-detector/internal/script"
)

// ConfigFileName is the per-project configuration file looked up under the
// scan root.
const ConfigFileName = ".ufd.yaml"

// Duration wraps time.Duration so YAML values like "10s" decode.
type Duration time.Duration

// UnmarshalYAML decodes a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the YAML configuration surface. Zero values mean "use the
// default"; CLI flags override whatever the file sets.
type Config struct {
	// Ignore holds doublestar globs, relative to the root, excluded from
	// the walk.
	Ignore []string `yaml:"ignore"`

	// Exclude lists exact symbol names never reported.
	Exclude []string `yaml:"exclude"`

	// ExcludePatterns lists doublestar globs matched against symbol names.
	ExcludePatterns []string `yaml:"exclude_patterns"`

	IncludeTests   bool `yaml:"include_tests"`
	IncludePrivate bool `yaml:"include_private"`

	// Concurrency bounds in-flight requests per session.
	Concurrency int `yaml:"concurrency"`

	// Timeout is the per-request deadline (Go duration string, e.g. "10s").
	Timeout Duration `yaml:"timeout"`

	// Languages restricts the scan when non-empty.
	Languages []string `yaml:"languages"`

	// PolicyScript is a path (relative to the config file) to a Risor
	// exclusion policy.
	PolicyScript string `yaml:"policy_script"`

	dir string // directory the config was loaded from
}

// LoadConfig reads and validates a configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ufd: read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("ufd: parse config %s: %w", path, err)
	}
	cfg.dir = filepath.Dir(path)

	for _, pattern := range cfg.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("ufd: config %s: invalid ignore pattern %q", path, pattern)
		}
	}
	for _, pattern := range cfg.ExcludePatterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("ufd: config %s: invalid exclude pattern %q", path, pattern)
		}
	}
	return &cfg, nil
}

// FindConfig loads the configuration file under root, if present. Returns
// (nil, nil) when the file does not exist.
func FindConfig(root string) (*Config, error) {
	path := filepath.Join(root, ConfigFileName)
	cfg, err := LoadConfig(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return cfg, err
}

// Options converts the configuration into engine options, loading the
// policy script when one is configured.
func (c *Config) Options() ([]Option, error) {
	policy := Policy{
		IncludePrivate:  c.IncludePrivate,
		ExcludeNames:    c.Exclude,
		ExcludePatterns: c.ExcludePatterns,
	}
	if c.PolicyScript != "" {
		scriptPath := c.PolicyScript
		if !filepath.IsAbs(scriptPath) {
			scriptPath = filepath.Join(c.dir, scriptPath)
		}
		pol, err := script.Load(scriptPath)
		if err != nil {
			return nil, err
		}
		policy.Script = pol
	}

	opts := []Option{
		WithPolicy(policy),
		WithIncludeTests(c.IncludeTests),
	}
	if len(c.Ignore) > 0 {
		opts = append(opts, WithIgnorePatterns(c.Ignore...))
	}
	if c.Concurrency > 0 {
		opts = append(opts, WithConcurrency(c.Concurrency))
	}
	if c.Timeout > 0 {
		opts = append(opts, WithRequestTimeout(time.Duration(c.Timeout)))
	}
	if len(c.Languages) > 0 {
		opts = append(opts, WithLanguages(c.Languages...))
	}
	return opts, nil
}
