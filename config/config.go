package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the research service
type Config struct {
	General   GeneralConfig    `mapstructure:"general"`
	Server    ServerConfig     `mapstructure:"server"`
	LLM       LLMConfig        `mapstructure:"llm"`
	Search    SearchConfig     `mapstructure:"search"`
	Fetch     FetchConfig      `mapstructure:"fetch"`
	Agent     AgentConfig      `mapstructure:"agent"`
	Storage   StorageConfig    `mapstructure:"storage"`
	Telemetry TelemetryConfig  `mapstructure:"telemetry"`
	Schedules []ScheduleConfig `mapstructure:"schedules"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // console or json
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address        string        `mapstructure:"address"`
	JWTSecret      string        `mapstructure:"jwt_secret"`
	StaticDir      string        `mapstructure:"static_dir"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// LLMConfig selects the language model backend used for summaries and consolidation.
type LLMConfig struct {
	Provider               string        `mapstructure:"provider"` // gemini, openai, anthropic
	Model                  string        `mapstructure:"model"`
	GeminiAPIKey           string        `mapstructure:"gemini_api_key"`
	OpenAIAPIKey           string        `mapstructure:"openai_api_key"`
	OpenAIBaseURL          string        `mapstructure:"openai_base_url"`
	AnthropicAPIKey        string        `mapstructure:"anthropic_api_key"`
	SummaryMaxTokens       int           `mapstructure:"summary_max_tokens"`
	ConsolidateMaxTokens   int           `mapstructure:"consolidate_max_tokens"`
	SummaryTemperature     float64       `mapstructure:"summary_temperature"`
	ConsolidateTemperature float64       `mapstructure:"consolidate_temperature"`
	Timeout                time.Duration `mapstructure:"timeout"`
}

// APIKey returns the key matching the selected provider.
func (c LLMConfig) APIKey() string {
	switch strings.ToLower(c.Provider) {
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	default:
		return c.GeminiAPIKey
	}
}

func (c LLMConfig) Validate() error {
	switch strings.ToLower(c.Provider) {
	case "gemini", "openai", "anthropic":
	default:
		return fmt.Errorf("llm.provider %q is not supported", c.Provider)
	}
	if c.SummaryMaxTokens <= 0 {
		return fmt.Errorf("llm.summary_max_tokens must be > 0")
	}
	if c.ConsolidateMaxTokens <= 0 {
		return fmt.Errorf("llm.consolidate_max_tokens must be > 0")
	}
	return nil
}

// SearchConfig contains web search settings
type SearchConfig struct {
	Provider       string        `mapstructure:"provider"` // serpapi, serper, brave
	SerpAPIKey     string        `mapstructure:"serpapi_key"`
	SerperAPIKey   string        `mapstructure:"serper_api_key"`
	BraveAPIKey    string        `mapstructure:"brave_api_key"`
	Endpoint       string        `mapstructure:"endpoint"`
	MaxResults     int           `mapstructure:"max_results"`
	Country        string        `mapstructure:"gl"`
	Language       string        `mapstructure:"lr"`
	Timeout        time.Duration `mapstructure:"timeout"`
	BlockedDomains []string      `mapstructure:"blocked_domains"`
	Breaker        BreakerConfig `mapstructure:"breaker"`
}

// APIKey returns the key matching the selected provider.
func (c SearchConfig) APIKey() string {
	switch strings.ToLower(c.Provider) {
	case "serper":
		return c.SerperAPIKey
	case "brave":
		return c.BraveAPIKey
	default:
		return c.SerpAPIKey
	}
}

func (c SearchConfig) Validate() error {
	switch strings.ToLower(c.Provider) {
	case "serpapi", "serper", "brave":
	default:
		return fmt.Errorf("search.provider %q is not supported", c.Provider)
	}
	if c.MaxResults <= 0 {
		return fmt.Errorf("search.max_results must be > 0")
	}
	return nil
}

// BreakerConfig tunes the circuit breaker wrapped around the search provider.
type BreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
	MaxHalfOpen      uint32        `mapstructure:"max_half_open"`
}

// FetchConfig controls page retrieval.
type FetchConfig struct {
	Engine     string        `mapstructure:"engine"` // http or chromedp
	Timeout    time.Duration `mapstructure:"timeout"`
	Retries    int           `mapstructure:"retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	UserAgent  string        `mapstructure:"user_agent"`
	MaxChars   int           `mapstructure:"max_chars"`
}

func (c FetchConfig) Validate() error {
	switch strings.ToLower(c.Engine) {
	case "http", "chromedp":
	default:
		return fmt.Errorf("fetch.engine %q is not supported", c.Engine)
	}
	if c.Retries <= 0 {
		return fmt.Errorf("fetch.retries must be > 0")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}
	return nil
}

// AgentConfig contains the research pipeline settings
type AgentConfig struct {
	Workers         int           `mapstructure:"workers"`
	MinTextChars    int           `mapstructure:"min_text_chars"`
	SnippetChars    int           `mapstructure:"snippet_chars"`
	MaxSummaryChars int           `mapstructure:"max_summary_chars"`
	RunTimeout      time.Duration `mapstructure:"run_timeout"`
	Passages        PassageConfig `mapstructure:"passages"`
}

func (c AgentConfig) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("agent.workers must be > 0")
	}
	if c.MinTextChars < 0 {
		return fmt.Errorf("agent.min_text_chars cannot be negative")
	}
	if c.SnippetChars <= 0 {
		return fmt.Errorf("agent.snippet_chars must be > 0")
	}
	return c.Passages.Validate()
}

// PassageConfig controls query-relevant passage selection on long pages.
type PassageConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	ChunkSize int  `mapstructure:"chunk_size"`
	Overlap   int  `mapstructure:"overlap"`
	TopK      int  `mapstructure:"top_k"`
}

func (c PassageConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("agent.passages.chunk_size must be > 0")
	}
	if c.Overlap < 0 || c.Overlap >= c.ChunkSize {
		return fmt.Errorf("agent.passages.overlap must be in [0, chunk_size)")
	}
	if c.TopK <= 0 {
		return fmt.Errorf("agent.passages.top_k must be > 0")
	}
	return nil
}

// StorageConfig contains storage settings. Both backends are optional.
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// Enabled reports whether a redis host was configured.
func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Host) != "" }

// Addr returns host:port.
func (r RedisConfig) Addr() string { return fmt.Sprintf("%s:%s", r.Host, r.Port) }

func (r RedisConfig) Validate() error {
	if !r.Enabled() {
		return nil
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether history persistence was configured.
func (p PostgresConfig) Enabled() bool {
	return strings.TrimSpace(p.URL) != "" || strings.TrimSpace(p.Host) != ""
}

// DSN builds a connection string, preferring an explicit url.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

func (p PostgresConfig) Validate() error {
	if !p.Enabled() || strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// TelemetryConfig contains metrics and tracing settings
type TelemetryConfig struct {
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	ServiceName    string `mapstructure:"service_name"`
}

// ScheduleConfig declares a recurring research query.
type ScheduleConfig struct {
	Name       string `mapstructure:"name"`
	Query      string `mapstructure:"query"`
	Cron       string `mapstructure:"cron"`
	MaxResults int    `mapstructure:"max_results"`
}

func (s ScheduleConfig) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("schedules: name required")
	}
	if strings.TrimSpace(s.Query) == "" {
		return fmt.Errorf("schedules.%s: query required", s.Name)
	}
	if strings.TrimSpace(s.Cron) == "" {
		return fmt.Errorf("schedules.%s: cron required", s.Name)
	}
	return nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address required")
	}
	checks := []func() error{
		c.LLM.Validate,
		c.Search.Validate,
		c.Fetch.Validate,
		c.Agent.Validate,
		c.Storage.Redis.Validate,
		c.Storage.Postgres.Validate,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	seen := make(map[string]struct{}, len(c.Schedules))
	for _, s := range c.Schedules {
		if err := s.Validate(); err != nil {
			return err
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("schedules.%s: duplicate name", s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return nil
}

// Normalize fills keys from the conventional provider environment variables
// and cleans list values.
func (c *Config) Normalize() {
	envFallback(&c.LLM.GeminiAPIKey, "GEMINI_API_KEY")
	envFallback(&c.LLM.OpenAIAPIKey, "OPENAI_API_KEY")
	envFallback(&c.LLM.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envFallback(&c.Search.SerpAPIKey, "SERPAPI_KEY")
	envFallback(&c.Search.SerperAPIKey, "SERPER_API_KEY")
	envFallback(&c.Search.BraveAPIKey, "BRAVE_API_KEY")

	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	c.Search.Provider = strings.ToLower(strings.TrimSpace(c.Search.Provider))
	c.Fetch.Engine = strings.ToLower(strings.TrimSpace(c.Fetch.Engine))

	var blocked []string
	for _, d := range c.Search.BlockedDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			blocked = append(blocked, d)
		}
	}
	c.Search.BlockedDomains = blocked

	if c.Server.Address != "" && !strings.Contains(c.Server.Address, ":") {
		c.Server.Address = ":" + c.Server.Address
	}
}

func envFallback(dst *string, key string) {
	if strings.TrimSpace(*dst) != "" {
		return
	}
	*dst = os.Getenv(key)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.log_format", "console")

	v.SetDefault("server.address", ":5000")
	v.SetDefault("server.static_dir", "static")
	v.SetDefault("server.request_timeout", 3*time.Minute)
	v.SetDefault("server.jwt_secret", "")

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.summary_max_tokens", 250)
	v.SetDefault("llm.consolidate_max_tokens", 600)
	v.SetDefault("llm.summary_temperature", 0.0)
	v.SetDefault("llm.consolidate_temperature", 0.1)
	v.SetDefault("llm.timeout", 60*time.Second)
	// empty defaults register the keys so RESEARCHER_* env vars reach Unmarshal
	for _, key := range []string{"llm.model", "llm.gemini_api_key", "llm.openai_api_key", "llm.openai_base_url", "llm.anthropic_api_key",
		"search.serpapi_key", "search.serper_api_key", "search.brave_api_key", "search.endpoint",
		"storage.redis.host", "storage.redis.password", "storage.postgres.url", "storage.postgres.host",
		"storage.postgres.user", "storage.postgres.password", "storage.postgres.dbname", "telemetry.otlp_endpoint"} {
		v.SetDefault(key, "")
	}

	v.SetDefault("search.provider", "serpapi")
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.gl", "us")
	v.SetDefault("search.lr", "lang_en")
	v.SetDefault("search.timeout", 20*time.Second)
	v.SetDefault("search.blocked_domains", []string{"linkedin.com"})
	v.SetDefault("search.breaker.enabled", true)
	v.SetDefault("search.breaker.failure_threshold", 5)
	v.SetDefault("search.breaker.open_timeout", 30*time.Second)
	v.SetDefault("search.breaker.max_half_open", 1)

	v.SetDefault("fetch.engine", "http")
	v.SetDefault("fetch.timeout", 15*time.Second)
	v.SetDefault("fetch.retries", 2)
	v.SetDefault("fetch.retry_delay", time.Second)
	v.SetDefault("fetch.user_agent", DefaultUserAgent)
	v.SetDefault("fetch.max_chars", 0)

	v.SetDefault("agent.workers", 5)
	v.SetDefault("agent.min_text_chars", 100)
	v.SetDefault("agent.snippet_chars", 400)
	v.SetDefault("agent.max_summary_chars", 12000)
	v.SetDefault("agent.run_timeout", 2*time.Minute)
	v.SetDefault("agent.passages.enabled", true)
	v.SetDefault("agent.passages.chunk_size", 1000)
	v.SetDefault("agent.passages.overlap", 200)
	v.SetDefault("agent.passages.top_k", 6)

	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.timeout", 5*time.Second)
	v.SetDefault("storage.redis.cache_ttl", time.Hour)
	v.SetDefault("storage.postgres.timeout", 5*time.Second)

	v.SetDefault("telemetry.metrics_enabled", true)
	v.SetDefault("telemetry.service_name", "researcher")
}

// DefaultUserAgent mimics a desktop browser; many sites refuse bare clients.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// LoadConfig loads config from file, RESEARCHER_* environment variables and defaults.
// A missing config file is not an error when path is empty.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path == "" {
		v.SetConfigName("config")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			exeDir := filepath.Dir(exe)
			v.AddConfigPath(exeDir)
			v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("RESEARCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
