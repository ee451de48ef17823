// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Redis     RedisConfig     `mapstructure:"redis" yaml:"redis"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Network   NetworkConfig   `mapstructure:"network" yaml:"network"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	LLM       LLMConfig       `mapstructure:"llm" yaml:"llm"`
	WebShop   WebShopConfig   `mapstructure:"webshop" yaml:"webshop"`
	Search    SearchConfig    `mapstructure:"search" yaml:"search"`
	Laser     LaserConfig     `mapstructure:"laser" yaml:"laser"`
	KnowAgent KnowAgentConfig `mapstructure:"knowagent" yaml:"knowagent"`
	AgentQ    AgentQConfig    `mapstructure:"agentq" yaml:"agentq"`
	ShopSim   ShopSimConfig   `mapstructure:"shopsim" yaml:"shopsim"`
}

type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig points at the PostgreSQL instance used for run records.
// An empty URL disables persistence.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// RedisConfig configures the tool-response cache. An empty URL disables caching.
type RedisConfig struct {
	URL string        `mapstructure:"url" yaml:"url"`
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

type NetworkConfig struct {
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit" yaml:"rate_limit"` // requests per second per host, 0 = unlimited
	Burst     int           `mapstructure:"burst" yaml:"burst"`
	UserAgent string        `mapstructure:"user_agent" yaml:"user_agent"`
}

type BrowserConfig struct {
	Headless          bool           `mapstructure:"headless" yaml:"headless"`
	DebugPort         int            `mapstructure:"debug_port" yaml:"debug_port"`
	Args              []string       `mapstructure:"args" yaml:"args"`
	Viewport          map[string]int `mapstructure:"viewport" yaml:"viewport"`
	ActionTimeout     time.Duration  `mapstructure:"action_timeout" yaml:"action_timeout"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`

	// HumanTyping types one key at a time with a human rhythm instead of
	// sending the whole text at once.
	HumanTyping bool `mapstructure:"human_typing" yaml:"human_typing"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderOpenAI LLMProvider = "openai"
	ProviderOllama LLMProvider = "ollama"
	ProviderGemini LLMProvider = "gemini"
	ProviderMock   LLMProvider = "mock"
)

// LLMConfig selects a provider and carries per-provider connection settings.
type LLMConfig struct {
	Provider          LLMProvider    `mapstructure:"provider" yaml:"provider"`
	FastModel         string         `mapstructure:"fast_model" yaml:"fast_model"`
	RequestsPerSecond float64        `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int            `mapstructure:"burst" yaml:"burst"`
	MockResponse      string         `mapstructure:"mock_response" yaml:"mock_response"`
	OpenAI            LLMModelConfig `mapstructure:"openai" yaml:"openai"`
	Ollama            LLMModelConfig `mapstructure:"ollama" yaml:"ollama"`
	Gemini            LLMModelConfig `mapstructure:"gemini" yaml:"gemini"`
}

// LLMModelConfig defines the configuration for a single LLM.
type LLMModelConfig struct {
	Provider      LLMProvider       `mapstructure:"provider" yaml:"provider"`
	Model         string            `mapstructure:"model" yaml:"model"`
	APIKey        string            `mapstructure:"api_key" yaml:"api_key"`
	Endpoint      string            `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout    time.Duration     `mapstructure:"api_timeout" yaml:"api_timeout"`
	MaxTokens     int               `mapstructure:"max_tokens" yaml:"max_tokens"`
	MaxRetryTime  time.Duration     `mapstructure:"max_retry_time" yaml:"max_retry_time"`
	SafetyFilters map[string]string `mapstructure:"safety_filters" yaml:"safety_filters"`
}

// Active returns the model configuration of the selected provider.
func (c LLMConfig) Active() (LLMModelConfig, error) {
	var m LLMModelConfig
	switch c.Provider {
	case ProviderOpenAI:
		m = c.OpenAI
	case ProviderOllama:
		m = c.Ollama
	case ProviderGemini:
		m = c.Gemini
	case ProviderMock:
		m = LLMModelConfig{Model: "mock"}
	default:
		return LLMModelConfig{}, fmt.Errorf("unknown LLM provider '%s' (supported: openai, ollama, gemini, mock)", c.Provider)
	}
	m.Provider = c.Provider
	return m, nil
}

type WebShopConfig struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// SearchConfig drives the best-first tree search.
type SearchConfig struct {
	MaxSteps            int     `mapstructure:"max_steps" yaml:"max_steps"`
	Branching           int     `mapstructure:"branching" yaml:"branching"`
	Budget              int     `mapstructure:"budget" yaml:"budget"`
	ValueTemperature    float64 `mapstructure:"value_temperature" yaml:"value_temperature"`
	ProposalTemperature float64 `mapstructure:"proposal_temperature" yaml:"proposal_temperature"`
	ProposalTopP        float64 `mapstructure:"proposal_top_p" yaml:"proposal_top_p"`
	Concurrency         int     `mapstructure:"concurrency" yaml:"concurrency"`
	Record              bool    `mapstructure:"record" yaml:"record"`
	ReplayDir           string  `mapstructure:"replay_dir" yaml:"replay_dir"`
}

type LaserConfig struct {
	Mode           string  `mapstructure:"mode" yaml:"mode"` // "replay" or "real"
	MaxSteps       int     `mapstructure:"max_steps" yaml:"max_steps"`
	SessionID      int     `mapstructure:"session_id" yaml:"session_id"`
	DemoFile       string  `mapstructure:"demo_file" yaml:"demo_file"`
	EnableFeedback bool    `mapstructure:"enable_feedback" yaml:"enable_feedback"`
	MaxInnerSteps  int     `mapstructure:"max_inner_steps" yaml:"max_inner_steps"`
	MaxRethinks    int     `mapstructure:"max_rethinks" yaml:"max_rethinks"`
	Temperature    float64 `mapstructure:"temperature" yaml:"temperature"`
	ContextTokens  int     `mapstructure:"context_tokens" yaml:"context_tokens"`
}

type KnowAgentConfig struct {
	MaxSteps             int     `mapstructure:"max_steps" yaml:"max_steps"`
	ContextLen           int     `mapstructure:"context_len" yaml:"context_len"`
	AutoFinishStep       int     `mapstructure:"auto_finish_step" yaml:"auto_finish_step"`
	MaxConsecutiveSearch int     `mapstructure:"max_consecutive_search" yaml:"max_consecutive_search"`
	Temperature          float64 `mapstructure:"temperature" yaml:"temperature"`
	WikipediaSummaryURL  string  `mapstructure:"wikipedia_summary_url" yaml:"wikipedia_summary_url"`
	WikipediaAPIURL      string  `mapstructure:"wikipedia_api_url" yaml:"wikipedia_api_url"`
	BingEndpoint         string  `mapstructure:"bing_endpoint" yaml:"bing_endpoint"`
	BingAPIKey           string  `mapstructure:"bing_api_key" yaml:"bing_api_key"`
}

type AgentQConfig struct {
	MaxLoops          int     `mapstructure:"max_loops" yaml:"max_loops"`
	MinLoops          int     `mapstructure:"min_loops" yaml:"min_loops"`
	StartURL          string  `mapstructure:"start_url" yaml:"start_url"`
	CriticWeight      float64 `mapstructure:"critic_weight" yaml:"critic_weight"`
	ExplorationC      float64 `mapstructure:"exploration_c" yaml:"exploration_c"`
	NoProgressLimit   int     `mapstructure:"no_progress_limit" yaml:"no_progress_limit"`
	ScratchpadEntries int     `mapstructure:"scratchpad_entries" yaml:"scratchpad_entries"`
}

type ShopSimConfig struct {
	Addr        string `mapstructure:"addr" yaml:"addr"`
	CatalogFile string `mapstructure:"catalog_file" yaml:"catalog_file"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "webagents")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Storage --
	v.SetDefault("database.url", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.ttl", "24h")
	v.SetDefault("metrics.addr", "")

	// -- Network --
	v.SetDefault("network.timeout", "10s")
	v.SetDefault("network.rate_limit", 0.0)
	v.SetDefault("network.burst", 1)
	v.SetDefault("network.user_agent", "webagents/1.0")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.debug_port", 0)
	v.SetDefault("browser.action_timeout", "5s")
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.human_typing", false)
	v.SetDefault("browser.viewport", map[string]int{"width": 1280, "height": 900})

	// -- LLM --
	v.SetDefault("llm.provider", string(ProviderOllama))
	v.SetDefault("llm.fast_model", "")
	v.SetDefault("llm.requests_per_second", 0.0)
	v.SetDefault("llm.burst", 1)
	v.SetDefault("llm.mock_response", "Mock LLM response. 1. search['mock action'] 2. choose['mock choice']")
	v.SetDefault("llm.openai.model", "gpt-4o-mini")
	v.SetDefault("llm.openai.endpoint", "")
	v.SetDefault("llm.openai.api_timeout", "60s")
	v.SetDefault("llm.openai.max_tokens", 1000)
	v.SetDefault("llm.openai.max_retry_time", "2m")
	v.SetDefault("llm.ollama.model", "gemma3:4b")
	v.SetDefault("llm.ollama.endpoint", "http://localhost:11434")
	v.SetDefault("llm.ollama.api_timeout", "120s")
	v.SetDefault("llm.ollama.max_tokens", 1000)
	v.SetDefault("llm.ollama.max_retry_time", "1m")
	v.SetDefault("llm.gemini.model", "gemini-2.5-flash")
	v.SetDefault("llm.gemini.api_timeout", "60s")
	v.SetDefault("llm.gemini.max_tokens", 1000)
	v.SetDefault("llm.gemini.max_retry_time", "2m")

	// -- WebShop --
	v.SetDefault("webshop.base_url", "http://localhost:3000")
	v.SetDefault("webshop.timeout", "10s")

	// -- Tree search --
	v.SetDefault("search.max_steps", 3)
	v.SetDefault("search.branching", 2)
	v.SetDefault("search.budget", 5)
	v.SetDefault("search.value_temperature", 0.7)
	v.SetDefault("search.proposal_temperature", 1.0)
	v.SetDefault("search.proposal_top_p", 0.95)
	v.SetDefault("search.concurrency", 1)
	v.SetDefault("search.record", true)
	v.SetDefault("search.replay_dir", "./runs")

	// -- LASER --
	v.SetDefault("laser.mode", "replay")
	v.SetDefault("laser.max_steps", 15)
	v.SetDefault("laser.session_id", 3)
	v.SetDefault("laser.demo_file", "webshop_demonstrations_0-100.json")
	v.SetDefault("laser.enable_feedback", false)
	v.SetDefault("laser.max_inner_steps", 3)
	v.SetDefault("laser.max_rethinks", 2)
	v.SetDefault("laser.temperature", 0.0)
	v.SetDefault("laser.context_tokens", 16000)

	// -- KnowAgent --
	v.SetDefault("knowagent.max_steps", 12)
	v.SetDefault("knowagent.context_len", 2000)
	v.SetDefault("knowagent.auto_finish_step", 6)
	v.SetDefault("knowagent.max_consecutive_search", 3)
	v.SetDefault("knowagent.temperature", 0.0)
	v.SetDefault("knowagent.wikipedia_summary_url", "https://en.wikipedia.org/api/rest_v1/page/summary/")
	v.SetDefault("knowagent.wikipedia_api_url", "https://en.wikipedia.org/w/api.php")
	v.SetDefault("knowagent.bing_endpoint", "https://api.bing.microsoft.com/v7.0/search")
	v.SetDefault("knowagent.bing_api_key", "")

	// -- AgentQ --
	v.SetDefault("agentq.max_loops", 5)
	v.SetDefault("agentq.min_loops", 3)
	v.SetDefault("agentq.start_url", "")
	v.SetDefault("agentq.critic_weight", 0.7)
	v.SetDefault("agentq.exploration_c", 0.5)
	v.SetDefault("agentq.no_progress_limit", 3)
	v.SetDefault("agentq.scratchpad_entries", 10)

	// -- Shop simulator --
	v.SetDefault("shopsim.addr", ":3000")
	v.SetDefault("shopsim.catalog_file", "")
}

// BindEnvironment binds the conventional provider variables in addition to the
// WEBAGENTS_ prefixed ones, so existing .env files keep working.
func BindEnvironment(v *viper.Viper) {
	_ = v.BindEnv("llm.provider", "WEBAGENTS_LLM_PROVIDER", "LLM_PROVIDER")
	_ = v.BindEnv("llm.openai.api_key", "WEBAGENTS_LLM_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("llm.openai.model", "WEBAGENTS_LLM_OPENAI_MODEL", "OPENAI_MODEL")
	_ = v.BindEnv("llm.ollama.endpoint", "WEBAGENTS_LLM_OLLAMA_ENDPOINT", "OLLAMA_BASE_URL")
	_ = v.BindEnv("llm.ollama.model", "WEBAGENTS_LLM_OLLAMA_MODEL", "OLLAMA_MODEL")
	_ = v.BindEnv("llm.gemini.api_key", "WEBAGENTS_LLM_GEMINI_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("webshop.base_url", "WEBAGENTS_WEBSHOP_BASE_URL", "WEBSHOP_BASE_URL")
	_ = v.BindEnv("knowagent.bing_api_key", "WEBAGENTS_KNOWAGENT_BING_API_KEY", "BING_API_KEY")
	_ = v.BindEnv("database.url", "WEBAGENTS_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("redis.url", "WEBAGENTS_REDIS_URL", "REDIS_URL")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	BindEnvironment(v)

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading "~" in file system settings.
func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Logger.LogFile, &c.Search.ReplayDir, &c.Laser.DemoFile, &c.ShopSim.CatalogFile} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if _, err := c.LLM.Active(); err != nil {
		return fmt.Errorf("llm.provider: %w", err)
	}
	if c.LLM.Provider == ProviderOpenAI && c.LLM.OpenAI.APIKey == "" {
		return fmt.Errorf("llm.openai.api_key is required when llm.provider is 'openai' (OPENAI_API_KEY)")
	}
	if c.LLM.Provider == ProviderGemini && c.LLM.Gemini.APIKey == "" {
		return fmt.Errorf("llm.gemini.api_key is required when llm.provider is 'gemini' (GEMINI_API_KEY)")
	}
	if err := c.Search.Validate(); err != nil {
		return fmt.Errorf("search configuration invalid: %w", err)
	}
	if c.Laser.MaxSteps <= 0 {
		return fmt.Errorf("laser.max_steps must be a positive integer")
	}
	if c.Laser.Mode != "replay" && c.Laser.Mode != "real" {
		return fmt.Errorf("laser.mode must be 'replay' or 'real'")
	}
	if c.KnowAgent.MaxSteps <= 0 {
		return fmt.Errorf("knowagent.max_steps must be a positive integer")
	}
	if c.KnowAgent.ContextLen <= 0 {
		return fmt.Errorf("knowagent.context_len must be a positive integer")
	}
	if err := c.AgentQ.Validate(); err != nil {
		return fmt.Errorf("agentq configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the tree search limits.
func (s *SearchConfig) Validate() error {
	if s.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be a positive integer")
	}
	if s.Branching <= 0 {
		return fmt.Errorf("branching must be a positive integer")
	}
	if s.Budget <= 0 {
		return fmt.Errorf("budget must be a positive integer")
	}
	if s.ValueTemperature < 0 || s.ValueTemperature > 2 || s.ProposalTemperature < 0 || s.ProposalTemperature > 2 {
		return fmt.Errorf("temperatures must be between 0.0 and 2.0")
	}
	if s.ProposalTopP < 0 || s.ProposalTopP > 1 {
		return fmt.Errorf("proposal_top_p must be between 0.0 and 1.0")
	}
	return nil
}

// Validate checks the AgentQ loop and selection settings.
func (a *AgentQConfig) Validate() error {
	if a.MaxLoops <= 0 {
		return fmt.Errorf("max_loops must be a positive integer")
	}
	if a.MinLoops < 0 {
		return fmt.Errorf("min_loops must not be negative")
	}
	if a.CriticWeight < 0 || a.CriticWeight > 1 {
		return fmt.Errorf("critic_weight must be between 0.0 and 1.0")
	}
	if a.ExplorationC < 0 {
		return fmt.Errorf("exploration_c must not be negative")
	}
	return nil
}
