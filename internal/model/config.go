package model

import "time"

// Config is the complete archetype configuration.
// Precedence (highest first): CLI flags, ARCHETYPE_* env vars, config file, defaults.
type Config struct {
	Tables       TablesConfig       `yaml:"tables" mapstructure:"tables"`
	Engine       EngineConfig       `yaml:"engine" mapstructure:"engine"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Selection    SelectionConfig    `yaml:"selection" mapstructure:"selection"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Output       OutputConfig       `yaml:"output" mapstructure:"output"`
	LLM          LLMConfig          `yaml:"llm" mapstructure:"llm"`
}

// TablesConfig selects the reference tables document
type TablesConfig struct {
	// Path to a YAML, JSON or TOML tables document. Empty uses the embedded default set.
	Path string `yaml:"path" mapstructure:"path"`
}

// EngineConfig tunes the per-entity pipeline
type EngineConfig struct {
	// ConcurrentExtractors runs the signal extractors of one entity in parallel.
	// Results are identical either way.
	ConcurrentExtractors bool `yaml:"concurrent_extractors" mapstructure:"concurrent_extractors"`
}

// ConcurrencyConfig bounds batch parallelism
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// RateLimitingConfig throttles batch dispatch per ingestion source
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"` // 0 disables throttling
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`

	// Sources overrides the rate for facts whose source matches the key.
	// The config loader lowercases keys.
	Sources map[string]SourceRateConfig `yaml:"sources,omitempty" mapstructure:"sources"`
}

// SourceRateConfig is the dispatch rate of one ingestion source
type SourceRateConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"` // 0 disables throttling
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`                   // 0 uses the global burst
}

// SelectionConfig is the deterministic batch selection policy
type SelectionConfig struct {
	OrderBy string `yaml:"order_by" mapstructure:"order_by"` // input, id, birth_year
	Limit   int    `yaml:"limit" mapstructure:"limit"`       // 0 means no limit
}

// CacheConfig controls the result cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// StoreConfig selects the persistence collaborator
type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"` // "", memory, sqlite, postgres
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// OutputConfig controls rendering and logging
type OutputConfig struct {
	Verbose       bool `yaml:"verbose" mapstructure:"verbose"`
	IncludeFooter bool `yaml:"include_footer" mapstructure:"include_footer"`
	JSONLogs      bool `yaml:"json_logs" mapstructure:"json_logs"`
}

// LLMConfig configures the optional narrative provider
type LLMConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"` // openai, ollama, "" (disabled)
	Model     string `yaml:"model" mapstructure:"model"`
	APIKey    string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL   string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Proxy     string `yaml:"proxy,omitempty" mapstructure:"proxy"` // Overrides HTTP(S)_PROXY for provider requests
	Timeout   int    `yaml:"timeout" mapstructure:"timeout"`       // seconds
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Tables: TablesConfig{},
		Engine: EngineConfig{
			ConcurrentExtractors: false,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 0,
			BurstSize:         5,
		},
		Selection: SelectionConfig{
			OrderBy: "id",
		},
		Cache: CacheConfig{
			Enabled:   false,
			Dir:       ".archetype-cache",
			MemoryTTL: 10 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
		Store: StoreConfig{
			Driver: "",
		},
		Output: OutputConfig{
			IncludeFooter: true,
		},
		LLM: LLMConfig{
			Timeout:   30,
			MaxTokens: 400,
		},
	}
}
