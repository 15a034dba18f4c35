// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures every knob for the API server, the pipelines, and the
// orchestrator. It is loaded once at process start and passed by value; no
// component mutates it afterwards.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	DB           DBConfig           `mapstructure:"db"`
	API          APIConfig          `mapstructure:"api"`
	Blog         BlogConfig         `mapstructure:"blog"`
	HTTP         HTTPConfig         `mapstructure:"http"`
	Scraper      ScraperConfig      `mapstructure:"scraper"`
	Search       SearchConfig       `mapstructure:"search"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Enhancer     EnhancerConfig     `mapstructure:"enhancer"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig controls the Article API HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
	// RequestTimeoutSeconds bounds in-flight request handling. The
	// run-automation endpoint blocks on a whole pipeline run, so this is
	// generous by default.
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// OrchestratorConfig controls the pipeline orchestration server.
type OrchestratorConfig struct {
	Port int `mapstructure:"port"`
	// Binary is the executable spawned for pipeline runs. Empty means the
	// current executable.
	Binary string `mapstructure:"binary"`
}

// DBConfig controls access to the Postgres articles table.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxConns     int32  `mapstructure:"max_conns"`
	MinConns     int32  `mapstructure:"min_conns"`
	ConnLifetime int    `mapstructure:"conn_lifetime_seconds"`
}

// APIConfig points the pipelines at the Article API.
type APIConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// BlogConfig identifies the scraped blog.
type BlogConfig struct {
	URL string `mapstructure:"url"`
}

// HTTPConfig configures outbound HTTP fetch behavior shared by both
// pipelines.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries"`
	RetryDelayMs   int    `mapstructure:"retry_delay_ms"`
	UserAgent      string `mapstructure:"user_agent"`
}

// ScraperConfig governs the ingestion pipeline.
type ScraperConfig struct {
	TargetCount     int `mapstructure:"target_count"`
	MinTitleChars   int `mapstructure:"min_title_chars"`
	MinContentChars int `mapstructure:"min_content_chars"`
	PageDelayMs     int `mapstructure:"page_delay_ms"`
	ArticleDelayMs  int `mapstructure:"article_delay_ms"`
}

// SearchConfig configures the external search API.
type SearchConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
	Results  int    `mapstructure:"results"`
}

// LLMConfig configures the generative text API.
type LLMConfig struct {
	APIKey          string  `mapstructure:"api_key"`
	Endpoint        string  `mapstructure:"endpoint"`
	Model           string  `mapstructure:"model"`
	Temperature     float64 `mapstructure:"temperature"`
	MaxOutputTokens int     `mapstructure:"max_output_tokens"`
	TimeoutSeconds  int     `mapstructure:"timeout_seconds"`
}

// EnhancerConfig governs the enhancement pipeline.
type EnhancerConfig struct {
	MaxCompetitors        int `mapstructure:"max_competitors"`
	OriginalPrefixChars   int `mapstructure:"original_prefix_chars"`
	CompetitorPrefixChars int `mapstructure:"competitor_prefix_chars"`
	CompetitorDelayMs     int `mapstructure:"competitor_delay_ms"`
	ArticleDelayMs        int `mapstructure:"article_delay_ms"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment. Environment variables use the
// ARTICLEFORGE_ prefix with dots replaced by underscores, e.g.
// ARTICLEFORGE_SEARCH_API_KEY.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARTICLEFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("orchestrator.port", 3001)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.conn_lifetime_seconds", 1800)
	v.SetDefault("api.base_url", "http://localhost:8000/api")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.retry_delay_ms", 2000)
	v.SetDefault("http.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	v.SetDefault("scraper.target_count", 5)
	v.SetDefault("scraper.min_title_chars", 10)
	v.SetDefault("scraper.min_content_chars", 100)
	v.SetDefault("scraper.page_delay_ms", 500)
	v.SetDefault("scraper.article_delay_ms", 1000)
	v.SetDefault("search.endpoint", "https://serpapi.com/search")
	v.SetDefault("search.results", 10)
	v.SetDefault("llm.endpoint", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("llm.model", "gemini-pro")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_output_tokens", 4000)
	v.SetDefault("llm.timeout_seconds", 120)
	v.SetDefault("enhancer.max_competitors", 2)
	v.SetDefault("enhancer.original_prefix_chars", 3000)
	v.SetDefault("enhancer.competitor_prefix_chars", 2000)
	v.SetDefault("enhancer.competitor_delay_ms", 2000)
	v.SetDefault("enhancer.article_delay_ms", 3000)
	v.SetDefault("logging.development", true)
}

// Validate checks knobs every subcommand depends on. Credential checks live
// in the Require* helpers because only some commands need them.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Orchestrator.Port <= 0 || c.Orchestrator.Port > 65535 {
		return fmt.Errorf("orchestrator.port %d out of range", c.Orchestrator.Port)
	}
	if c.HTTP.MaxRetries < 1 {
		return fmt.Errorf("http.max_retries must be at least 1")
	}
	if c.HTTP.TimeoutSeconds < 1 {
		return fmt.Errorf("http.timeout_seconds must be at least 1")
	}
	if c.Scraper.TargetCount < 1 {
		return fmt.Errorf("scraper.target_count must be at least 1")
	}
	return nil
}

// RequireServe verifies everything the API server needs at startup.
func (c Config) RequireServe() error {
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required to serve the article API")
	}
	return nil
}

// RequireScrape verifies everything the scraper pipeline needs at startup.
func (c Config) RequireScrape() error {
	if c.Blog.URL == "" {
		return fmt.Errorf("blog.url is required to run the scraper")
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required to run the scraper")
	}
	return nil
}

// RequireEnhance verifies everything the enhancement pipeline needs at
// startup. Missing credentials abort the process before any work starts.
func (c Config) RequireEnhance() error {
	if c.Search.APIKey == "" {
		return fmt.Errorf("search.api_key is required to run the enhancer")
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required to run the enhancer")
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required to run the enhancer")
	}
	return nil
}

// FetchTimeout returns the outbound HTTP timeout as a duration.
func (c HTTPConfig) FetchTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RetryDelay returns the base retry delay as a duration.
func (c HTTPConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}
