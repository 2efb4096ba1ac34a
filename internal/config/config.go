package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tradelab/fnoscan/internal/models"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Sources        Sources        `yaml:"sources"`
	Classification Classification `yaml:"classification"`
	Pipeline       Pipeline       `yaml:"pipeline"`
	Output         Output         `yaml:"output"`
	Server         Server         `yaml:"server"`
	Logging        Logging        `yaml:"logging"`
}

type Sources struct {
	Feeds []Feed `yaml:"feeds"`
}

type Feed struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

type Classification struct {
	Provider        string `yaml:"provider"`
	GroqModel       string `yaml:"groq_model"`
	GroqAPIKeyEnv   string `yaml:"groq_api_key_env"`
	GeminiModel     string `yaml:"gemini_model"`
	GeminiAPIKeyEnv string `yaml:"gemini_api_key_env"`
	MaxTokens       int    `yaml:"max_tokens"`
}

type Pipeline struct {
	MaxClassifications int      `yaml:"max_classifications"`
	MinConfidence      string   `yaml:"min_confidence"`
	LLMCallDelay       Duration `yaml:"llm_call_delay"`
	ClassifyWorkers    int      `yaml:"classify_workers"`
	ResearchWorkers    int      `yaml:"research_workers"`
	CacheSize          int      `yaml:"cache_size"`
}

// Duration wraps time.Duration so YAML values like "2s" parse directly.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigError marks a configuration the pipeline refuses to run with.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// ConfigDir returns the XDG config directory for fnoscan.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "fnoscan")
}

// DataDir returns the XDG data directory for fnoscan.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "fnoscan")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/fnoscan/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'fnoscan init' to create a default config",
		xdgConfig,
	)
}

// Load reads, parses, and validates a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults and validating.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Classification: Classification{
			Provider:        "groq",
			GroqModel:       "llama-3.3-70b-versatile",
			GroqAPIKeyEnv:   "GROQ_API_KEY",
			GeminiModel:     "gemini-2.0-flash",
			GeminiAPIKeyEnv: "GEMINI_API_KEY",
			MaxTokens:       512,
		},
		Pipeline: Pipeline{
			MaxClassifications: 20,
			MinConfidence:      "medium",
			LLMCallDelay:       Duration(2 * time.Second),
			ClassifyWorkers:    4,
			ResearchWorkers:    4,
			CacheSize:          256,
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects parameter combinations the pipeline must not run with.
func (c *Config) Validate() error {
	p := c.Pipeline
	if p.MaxClassifications <= 0 {
		return &ConfigError{Field: "pipeline.max_classifications", Reason: "must be positive"}
	}
	if !models.Confidence(p.MinConfidence).Valid() {
		return &ConfigError{
			Field:  "pipeline.min_confidence",
			Reason: fmt.Sprintf("unknown tier %q (want low, medium, or high)", p.MinConfidence),
		}
	}
	if p.LLMCallDelay < 0 {
		return &ConfigError{Field: "pipeline.llm_call_delay", Reason: "must not be negative"}
	}
	if p.ClassifyWorkers <= 0 {
		return &ConfigError{Field: "pipeline.classify_workers", Reason: "must be positive"}
	}
	if p.ResearchWorkers <= 0 {
		return &ConfigError{Field: "pipeline.research_workers", Reason: "must be positive"}
	}
	if p.CacheSize <= 0 {
		return &ConfigError{Field: "pipeline.cache_size", Reason: "must be positive"}
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
