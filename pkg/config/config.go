package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for veridata-engine.
// Configuration can come from a YAML file (config.yaml) or environment
// variables; environment variables override YAML values. Secrets
// (connection URLs with passwords, API keys) must only come from
// environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8460"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Source and target database configuration. The connection URLs
	// carry credentials and are therefore env-only.
	SourceURL string `yaml:"-" env:"SOURCE_DATABASE_URL"`
	TargetURL string `yaml:"-" env:"TARGET_DATABASE_URL"`

	Source DatabaseConfig `yaml:"source"`
	Target DatabaseConfig `yaml:"target"`

	// LLM endpoint used for rule-to-test-case and SQL generation.
	LLM LLMConfig `yaml:"llm"`

	// Validation engine tuning.
	Validation ValidationConfig `yaml:"validation"`
}

// DatabaseConfig holds per-role (source/target) database settings.
// The dialect selects the datasource adapter; the connection URL comes
// from the matching env variable on Config.
type DatabaseConfig struct {
	// Dialect is one of: postgres, mysql, sqlserver.
	Dialect string `yaml:"dialect"`
	// URL is filled from SourceURL/TargetURL at load time.
	URL string `yaml:"-"`
	// MaxConnections bounds the connection pool for this role.
	MaxConnections int32 `yaml:"max_connections"`
	// MinConnections keeps warm connections in the pool (postgres only).
	MinConnections int32 `yaml:"min_connections"`
}

// LLMConfig holds settings for the generation endpoint.
type LLMConfig struct {
	// Provider is one of: openai, anthropic. "openai" covers any
	// OpenAI-compatible endpoint (vLLM, llama.cpp, etc.).
	Provider    string  `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	Endpoint    string  `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model       string  `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o"`
	APIKey      string  `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	Temperature float64 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0.1"`
}

// ValidationConfig tunes the orchestration engine.
type ValidationConfig struct {
	// Workers is the bounded concurrency for test case execution.
	Workers int `yaml:"workers" env:"VALIDATION_WORKERS" env-default:"8"`
	// QueryTimeoutSeconds is the per-query wall clock timeout.
	QueryTimeoutSeconds int `yaml:"query_timeout_seconds" env:"QUERY_TIMEOUT_SECONDS" env-default:"300"`
	// RunTimeoutSeconds bounds a whole validation run; 0 disables it.
	RunTimeoutSeconds int `yaml:"run_timeout_seconds" env:"RUN_TIMEOUT_SECONDS" env-default:"0"`
	// RowSampleCap bounds sample_rows kept per query result.
	RowSampleCap int `yaml:"row_sample_cap" env:"ROW_SAMPLE_CAP" env-default:"50"`
	// MaxTestCases caps how many generated test cases a run accepts.
	MaxTestCases int `yaml:"max_test_cases" env:"MAX_TEST_CASES" env-default:"50"`
}

// QueryTimeout returns the per-query timeout as a duration.
func (c *ValidationConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSeconds) * time.Second
}

// RunTimeout returns the run-level timeout, or 0 when disabled.
func (c *ValidationConfig) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutSeconds) * time.Second
}

// Load reads configuration from config.yaml with environment variable
// overrides. When config.yaml is absent, env variables alone are used.
// The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	cfg.applyDefaults()
	cfg.Source.URL = cfg.SourceURL
	cfg.Target.URL = cfg.TargetURL

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	for _, db := range []*DatabaseConfig{&c.Source, &c.Target} {
		if db.Dialect == "" {
			db.Dialect = "postgres"
		}
		if db.MaxConnections == 0 {
			db.MaxConnections = 10
		}
		if db.MinConnections == 0 {
			db.MinConnections = 1
		}
	}
}

func (c *Config) validate() error {
	for role, db := range map[string]*DatabaseConfig{"source": &c.Source, "target": &c.Target} {
		switch db.Dialect {
		case "postgres", "mysql", "sqlserver":
		default:
			return fmt.Errorf("unsupported %s dialect %q", role, db.Dialect)
		}
	}
	if c.Validation.Workers < 1 {
		return fmt.Errorf("validation workers must be at least 1, got %d", c.Validation.Workers)
	}
	return nil
}
