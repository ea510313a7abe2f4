// Package config loads longform settings from an optional YAML file and the
// environment. Environment values win over the file; a .env file in the
// working directory is loaded first if present.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/spetersoncode/longform"
	"github.com/spetersoncode/longform/client"
	"github.com/spetersoncode/longform/search"
	"github.com/spetersoncode/longform/workflow"
)

// Config is the full runtime configuration.
type Config struct {
	// Provider serves chat: anthropic, openai or google.
	Provider  string `yaml:"provider"`
	ChatModel string `yaml:"chat_model"`
	MaxTokens int    `yaml:"max_tokens"`

	// ImageProvider serves ai-image illustrations. Empty disables them.
	ImageProvider string `yaml:"image_provider"`
	ImageModel    string `yaml:"image_model"`

	// APIKeys only come from the environment.
	APIKeys client.APIKeys `yaml:"-"`

	Workflow Workflow      `yaml:"workflow"`
	Search   search.Config `yaml:"search"`
	Output   Output        `yaml:"output"`
	Server   Server        `yaml:"server"`

	LogLevel string `yaml:"log_level"`
}

// Workflow holds the loop caps and step limits of a blog run.
type Workflow struct {
	workflow.Policy `yaml:",inline"`

	StepTimeout time.Duration `yaml:"step_timeout"`
	// CheckpointDir persists step checkpoints as files. Empty keeps them in
	// memory.
	CheckpointDir string `yaml:"checkpoint_dir"`
}

// Output says where finished articles go.
type Output struct {
	Dir string `yaml:"dir"`
	// Language of generated code examples.
	Language string `yaml:"language"`
}

// Server holds the HTTP server settings.
type Server struct {
	Port         string        `yaml:"port"`
	CORSOrigin   string        `yaml:"cors_origin"`
	CleanupDelay time.Duration `yaml:"cleanup_delay"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Provider: string(longform.ProviderAnthropic),
		Workflow: Workflow{
			Policy:      workflow.DefaultPolicy(),
			StepTimeout: 5 * time.Minute,
		},
		Search: search.DefaultConfig(),
		Output: Output{Language: "python"},
		Server: Server{
			Port:         "8000",
			CORSOrigin:   "*",
			CleanupDelay: 10 * time.Minute,
			PollInterval: time.Second,
		},
		LogLevel: "info",
	}
}

// Load reads path (if not empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.Provider = getEnvOrDefault("LONGFORM_PROVIDER", c.Provider)
	c.ChatModel = getEnvOrDefault("LONGFORM_MODEL", c.ChatModel)
	c.MaxTokens = getEnvIntOrDefault("LONGFORM_MAX_TOKENS", c.MaxTokens)
	c.ImageProvider = getEnvOrDefault("LONGFORM_IMAGE_PROVIDER", c.ImageProvider)
	c.ImageModel = getEnvOrDefault("LONGFORM_IMAGE_MODEL", c.ImageModel)

	c.APIKeys = client.APIKeys{
		Anthropic: os.Getenv("ANTHROPIC_API_KEY"),
		OpenAI:    os.Getenv("OPENAI_API_KEY"),
		Google:    os.Getenv("GOOGLE_API_KEY"),
	}

	c.Workflow.MaxQuestioningRounds = getEnvIntOrDefault("LONGFORM_MAX_QUESTIONING", c.Workflow.MaxQuestioningRounds)
	c.Workflow.MaxRevisionRounds = getEnvIntOrDefault("LONGFORM_MAX_REVISION", c.Workflow.MaxRevisionRounds)
	c.Workflow.StepTimeout = getEnvDurationOrDefault("LONGFORM_STEP_TIMEOUT", c.Workflow.StepTimeout)
	c.Workflow.CheckpointDir = getEnvOrDefault("LONGFORM_CHECKPOINT_DIR", c.Workflow.CheckpointDir)

	c.Search.APIKey = getEnvOrDefault("ZAI_SEARCH_API_KEY", c.Search.APIKey)
	c.Search.Endpoint = getEnvOrDefault("ZAI_SEARCH_API_BASE", c.Search.Endpoint)
	c.Search.Engine = getEnvOrDefault("ZAI_SEARCH_ENGINE", c.Search.Engine)
	c.Search.MaxResults = getEnvIntOrDefault("ZAI_SEARCH_MAX_RESULTS", c.Search.MaxResults)
	c.Search.ContentSize = getEnvOrDefault("ZAI_SEARCH_CONTENT_SIZE", c.Search.ContentSize)
	c.Search.RecencyFilter = getEnvOrDefault("ZAI_SEARCH_RECENCY_FILTER", c.Search.RecencyFilter)

	c.Output.Dir = getEnvOrDefault("LONGFORM_OUTPUT_DIR", c.Output.Dir)
	c.Output.Language = getEnvOrDefault("LONGFORM_LANGUAGE", c.Output.Language)

	c.Server.Port = getEnvOrDefault("LONGFORM_PORT", c.Server.Port)
	c.Server.CORSOrigin = getEnvOrDefault("LONGFORM_CORS_ORIGIN", c.Server.CORSOrigin)
	c.Server.CleanupDelay = getEnvDurationOrDefault("LONGFORM_TASK_CLEANUP", c.Server.CleanupDelay)

	c.LogLevel = getEnvOrDefault("LONGFORM_LOG_LEVEL", c.LogLevel)
	if getEnvBoolOrDefault("LONGFORM_DEBUG", false) {
		c.LogLevel = "debug"
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	p, err := longform.ParseProvider(c.Provider)
	if err != nil {
		return err
	}
	if c.APIKeys.Key(p) == "" {
		return fmt.Errorf("%s is required for %s provider", keyEnv(p), p)
	}

	if c.ImageProvider != "" {
		ip, err := longform.ParseProvider(c.ImageProvider)
		if err != nil {
			return fmt.Errorf("image provider: %w", err)
		}
		if !ip.SupportsImages() {
			return fmt.Errorf("image provider %s cannot generate images (use openai or google)", ip)
		}
		if c.APIKeys.Key(ip) == "" {
			return fmt.Errorf("%s is required for %s image provider", keyEnv(ip), ip)
		}
	}

	if c.Workflow.MaxQuestioningRounds < 0 || c.Workflow.MaxRevisionRounds < 0 {
		return errors.New("workflow loop caps must not be negative")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func keyEnv(p longform.Provider) string {
	switch p {
	case longform.ProviderOpenAI:
		return "OPENAI_API_KEY"
	case longform.ProviderGoogle:
		return "GOOGLE_API_KEY"
	default:
		return "ANTHROPIC_API_KEY"
	}
}

// ClientConfig returns the provider settings for client.New.
func (c *Config) ClientConfig() client.Config {
	return client.Config{
		Provider:      longform.Provider(c.Provider),
		ChatModel:     c.ChatModel,
		ImageProvider: longform.Provider(c.ImageProvider),
		ImageModel:    c.ImageModel,
		APIKeys:       c.APIKeys,
	}
}

// NewLogger returns a text logger at the configured level.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.LogLevel)
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level: %q (must be debug, info, warn, or error)", s)
}
