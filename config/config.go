// Package config loads the YAML settings file shared by the jobs and the
// origin server. Secrets never live in the file; they come from the
// environment.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can be written as "6m" or
// "15s".
type Duration time.Duration

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

// Std returns the plain time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Storage struct {
		// Backend is "localfs" or "memory".
		Backend string `yaml:"backend"`
		Root    string `yaml:"root"`
	} `yaml:"storage"`

	Distribution struct {
		SubmissionPrefix string   `yaml:"submissionPrefix"`
		LoadLimit        int      `yaml:"loadLimit"`
		MaxResults       int      `yaml:"maxResults"`
		Workers          int      `yaml:"workers"`
		LoadTimeout      Duration `yaml:"loadTimeout"`
		Offset           Duration `yaml:"offset"`
	} `yaml:"distribution"`

	Federation struct {
		BaseURL          string `yaml:"baseURL"`
		Region           string `yaml:"region"`
		UploadLimit      int    `yaml:"uploadLimit"`
		UploadMaxResults int    `yaml:"uploadMaxResults"`
		// AuthToken comes from FEDERATION_AUTH_TOKEN, never from the file.
		AuthToken string `yaml:"-"`
	} `yaml:"federation"`

	Signing struct {
		KeyID          string `yaml:"keyID"`
		PrivateKeyPath string `yaml:"privateKeyPath"`
	} `yaml:"signing"`
}

// Load reads path, applies defaults and environment overrides.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	cfg.Federation.AuthToken = os.Getenv("FEDERATION_AUTH_TOKEN")
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Storage.Backend == "" {
		c.Storage.Backend = "localfs"
	}
	if c.Distribution.LoadLimit == 0 {
		c.Distribution.LoadLimit = 20_000
	}
	if c.Distribution.MaxResults == 0 {
		c.Distribution.MaxResults = 25_000
	}
	if c.Distribution.Workers == 0 {
		c.Distribution.Workers = 12
	}
	if c.Distribution.LoadTimeout == 0 {
		c.Distribution.LoadTimeout = Duration(6 * time.Minute)
	}
	if c.Federation.UploadLimit == 0 {
		c.Federation.UploadLimit = 1_000
	}
	if c.Federation.UploadMaxResults == 0 {
		c.Federation.UploadMaxResults = 1_200
	}
}
