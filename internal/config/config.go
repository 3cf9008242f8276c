package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Sources    Sources    `yaml:"sources"`
	Oracle     Oracle     `yaml:"oracle"`
	Extraction Extraction `yaml:"extraction"`
	Perception Perception `yaml:"perception"`
	Renderer   Renderer   `yaml:"renderer"`
	Output     Output     `yaml:"output"`
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
}

type Sources struct {
	Feeds []Feed `yaml:"feeds"`
}

// Feed is an exported competitor ad-library feed (RSS or Atom).
type Feed struct {
	URL        string `yaml:"url"`
	Project    string `yaml:"project"`
	Competitor string `yaml:"competitor"`
	Platform   string `yaml:"platform"`
}

type Oracle struct {
	Provider        string        `yaml:"provider"`
	Model           string        `yaml:"model"`
	OllamaURL       string        `yaml:"ollama_url"`
	OpenAIModel     string        `yaml:"openai_model"`
	APIKeyEnv       string        `yaml:"api_key_env"`
	GeminiModel     string        `yaml:"gemini_model"`
	GeminiAPIKeyEnv string        `yaml:"gemini_api_key_env"`
	MaxTokens       int           `yaml:"max_tokens"`
	Timeout         time.Duration `yaml:"timeout"`
}

type Extraction struct {
	MaxSamplesPerCompetitor int `yaml:"max_samples_per_competitor"`
	LandingPreviewChars     int `yaml:"landing_preview_chars"`
}

type Perception struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type Renderer struct {
	BrowserBin        string        `yaml:"browser_bin"`
	Format            string        `yaml:"format"`
	Quality           int           `yaml:"quality"`
	Timeout           time.Duration `yaml:"timeout"`
	DefaultDimensions string        `yaml:"default_dimensions"`
	Concurrency       int           `yaml:"concurrency"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for adcraft.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "adcraft")
}

// DataDir returns the XDG data directory for adcraft.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "adcraft")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/adcraft/config.yaml > ./config.yaml
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
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'adcraft init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg, err := parse(nil)
	if err != nil {
		panic(err)
	}
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Oracle: Oracle{
			Provider:        "ollama",
			Model:           "qwen2.5:7b",
			OllamaURL:       "http://localhost:11434",
			OpenAIModel:     "gpt-4o-mini",
			APIKeyEnv:       "OPENAI_API_KEY",
			GeminiModel:     "gemini-2.5-flash",
			GeminiAPIKeyEnv: "GEMINI_API_KEY",
			MaxTokens:       2048,
			Timeout:         90 * time.Second,
		},
		Extraction: Extraction{
			MaxSamplesPerCompetitor: 10,
			LandingPreviewChars:     300,
		},
		Perception: Perception{Timeout: 30 * time.Second},
		Renderer: Renderer{
			Format:            "jpeg",
			Quality:           90,
			Timeout:           45 * time.Second,
			DefaultDimensions: "1200x628",
			Concurrency:       2,
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// RenderDir is where rendered rasters are written.
func (c *Config) RenderDir() string {
	return filepath.Join(c.GetDataDir(), "renders")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
