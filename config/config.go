// Package config loads meshgate settings from an optional YAML file and the
// environment, in that order, and validates them before anything starts.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hupe1980/meshgate/logging"
	"github.com/hupe1980/meshgate/tracing"
	"gopkg.in/yaml.v3"
)

// ErrMissingRequired marks a required setting that was not provided.
var ErrMissingRequired = errors.New("missing required configuration")

// Memory drivers.
const (
	MemorySQLite = "sqlite"
	MemoryInProc = "memory"
	MemoryNone   = "none"
)

// Config is the complete runtime configuration.
type Config struct {
	Twilio    TwilioConfig    `yaml:"twilio"`
	Server    ServerConfig    `yaml:"server" envPrefix:"MESHGATE_"`
	Memory    MemoryConfig    `yaml:"memory" envPrefix:"MESHGATE_MEMORY_"`
	Runtime   RuntimeConfig   `yaml:"runtime" envPrefix:"MESHGATE_"`
	Providers ProvidersConfig `yaml:"providers"`
	Logging   logging.Config  `yaml:"logging" envPrefix:"MESHGATE_"`
	Tracing   tracing.Config  `yaml:"tracing" envPrefix:"MESHGATE_"`
	// MainAgent names the entry agent; it must be declared in Agents.
	MainAgent string        `yaml:"main_agent" env:"MESHGATE_MAIN_AGENT"`
	Agents    []AgentConfig `yaml:"agents" envPrefix:"MESHGATE_AGENT_"`
}

// TwilioConfig holds the WhatsApp channel credentials.
type TwilioConfig struct {
	AccountSID string `yaml:"account_sid" env:"TWILIO_ACCOUNT_SID"`
	AuthToken  string `yaml:"auth_token" env:"TWILIO_AUTH_TOKEN"`
	FromNumber string `yaml:"from_number" env:"FROM_WHATSAPP_NUMBER"`
	// WebhookURL is the public webhook address; when set, inbound signatures are verified.
	WebhookURL string `yaml:"webhook_url" env:"TWILIO_WEBHOOK_URL"`
}

// ServerConfig configures the HTTP gateway.
type ServerConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Workers      int    `yaml:"workers" env:"WORKERS"`
	QueueSize    int    `yaml:"queue_size" env:"QUEUE_SIZE"`
	Sync         bool   `yaml:"sync" env:"SYNC"`
	RateLimit    int    `yaml:"rate_limit" env:"RATE_LIMIT"`
	RateBurst    int    `yaml:"rate_burst" env:"RATE_BURST"`
	TestThreadID string `yaml:"test_thread_id" env:"TEST_THREAD_ID"`
}

// MemoryConfig selects the conversation store.
type MemoryConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"`
	Path   string `yaml:"path" env:"PATH"`
}

// RuntimeConfig bounds agent execution.
type RuntimeConfig struct {
	MaxTurns       int           `yaml:"max_turns" env:"MAX_TURNS"`
	MaxDepth       int           `yaml:"max_depth" env:"MAX_DEPTH"`
	MaxHistory     int           `yaml:"max_history" env:"MAX_HISTORY"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	DefaultModel   string        `yaml:"default_model" env:"DEFAULT_MODEL"`
	// Strict rejects sub-agents that are referenced but not declared.
	Strict bool `yaml:"strict" env:"STRICT"`
}

// ProvidersConfig carries model provider credentials.
type ProvidersConfig struct {
	OpenAIAPIKey    string        `yaml:"openai_api_key" env:"OPENAI_API_KEY"`
	OpenAIBaseURL   string        `yaml:"openai_base_url" env:"OPENAI_BASE_URL"`
	AnthropicAPIKey string        `yaml:"anthropic_api_key" env:"ANTHROPIC_API_KEY"`
	MaxTokens       int64         `yaml:"max_tokens" env:"MESHGATE_MAX_TOKENS"`
	Breaker         bool          `yaml:"breaker" env:"MESHGATE_BREAKER"`
	BreakerFailures uint32        `yaml:"breaker_failures" env:"MESHGATE_BREAKER_FAILURES"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout" env:"MESHGATE_BREAKER_TIMEOUT"`
}

// AgentConfig declares one agent of the tree.
type AgentConfig struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	SystemPrompt string   `yaml:"system_prompt"`
	Model        string   `yaml:"model"`
	Temperature  float64  `yaml:"temperature"`
	SubAgents    []string `yaml:"sub_agents"`
	Tools        []string `yaml:"tools"`
	// Memory enables conversation history; nil means enabled.
	Memory *bool `yaml:"memory"`
	// Mock replaces the agent with a canned responder.
	Mock     bool `yaml:"mock"`
	MaxTurns int  `yaml:"max_turns"`
}

// MemoryEnabled reports whether the agent keeps history.
func (a AgentConfig) MemoryEnabled() bool { return a.Memory == nil || *a.Memory }

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":5000",
			Workers:      8,
			QueueSize:    64,
			RateLimit:    60,
			RateBurst:    10,
			TestThreadID: "test",
		},
		Memory: MemoryConfig{
			Driver: MemorySQLite,
			Path:   "db/checkpoints.sqlite",
		},
		Runtime: RuntimeConfig{
			MaxTurns:       10,
			MaxDepth:       5,
			MaxHistory:     50,
			RequestTimeout: 2 * time.Minute,
			DefaultModel:   "openai/gpt-4o-mini",
		},
		Providers: ProvidersConfig{
			MaxTokens:       4096,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Logging:   logging.DefaultConfig(),
		Tracing:   tracing.DefaultConfig(),
		MainAgent: "personal_assistant",
	}
}

// LoadOptions adjusts Load.
type LoadOptions struct {
	// SkipChannel skips the Twilio credential check (for CLI commands that
	// never talk to WhatsApp).
	SkipChannel bool
	// Environment overrides os.Environ for the env layer.
	Environment map[string]string
}

// Load applies defaults, the YAML file at path (skipped when path is empty or
// the file does not exist), then environment variables, and validates the
// result. The default agent tree is installed when none is declared.
func Load(path string, optFns ...func(o *LoadOptions)) (*Config, error) {
	var opts LoadOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	envOpts := env.Options{}
	if opts.Environment != nil {
		envOpts.Environment = opts.Environment
	}

	if err := env.ParseWithOptions(cfg, envOpts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if len(cfg.Agents) == 0 {
		cfg.Agents = DefaultAgents()
	}

	validate := cfg.Validate
	if opts.SkipChannel {
		validate = cfg.ValidateRuntime
	}

	if err := validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultAgents is the agent tree used when the configuration declares none.
func DefaultAgents() []AgentConfig {
	return []AgentConfig{
		{
			Name:        "personal_assistant",
			Description: "Personal assistant that talks to the user over WhatsApp and delegates to specialists.",
			SystemPrompt: "You are {{.agent_name}}, a personal assistant chatting with the user over WhatsApp.\n" +
				"Each message starts with the user's text followed by the current date and time.\n" +
				"{{if .sub_agents}}Delegate specialised work with the send_message tool to one of:\n{{.sub_agents}}\n{{end}}" +
				"Keep replies short and friendly.",
			SubAgents: []string{"calendar_agent", "email_agent"},
			Tools:     []string{"current_time"},
		},
		{
			Name:         "calendar_agent",
			Description:  "Manages the user's calendar: lists, creates and moves events.",
			SystemPrompt: "You are {{.agent_name}}. {{.description}} Answer with the outcome of the request.",
			Tools:        []string{"current_time"},
		},
		{
			Name:         "email_agent",
			Description:  "Reads, drafts and sends the user's email.",
			SystemPrompt: "You are {{.agent_name}}. {{.description}} Answer with the outcome of the request.",
		},
	}
}
