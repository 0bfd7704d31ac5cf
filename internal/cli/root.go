package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ppiankov/archetype/internal/logging"
	"github.com/ppiankov/archetype/internal/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=..."
var Version = "dev"

var (
	cfgFile  string
	verbose  bool
	jsonLogs bool

	// cfg is the merged configuration, loaded before every command runs
	cfg *model.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "archetype",
	Short: "Archetype - explainable personality-type inference from sparse facts",
	Long:  `Archetype turns sparse facts about a creative individual (a biography,
an era or movement, a culture, a birth year, a status) into an 8-value
profile, a primary and optional secondary 4-letter type code, and a
confidence score.

Every number is traceable to a reference table entry or a keyword hit.
Archetype is a deterministic heuristic, not a learned classifier.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("verbose") {
			loaded.Output.Verbose = verbose
		}
		if cmd.Flags().Changed("json-logs") {
			loaded.Output.JSONLogs = jsonLogs
		}
		cfg = loaded
		return logging.Initialize(cfg.Output.JSONLogs, cfg.Output.Verbose)
	},
}

// Execute runs the root command
func Execute() error {
	defer logging.Cleanup()
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("archetype %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.archetype/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "write logs as JSON")

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		viper.AddConfigPath(filepath.Join(home, ".archetype"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// ARCHETYPE_CACHE_ENABLED maps to cache.enabled
	viper.SetEnvPrefix("ARCHETYPE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults(model.DefaultConfig())
}

// setDefaults registers every key so env vars can override keys absent from
// the config file
func setDefaults(d *model.Config) {
	viper.SetDefault("tables.path", d.Tables.Path)
	viper.SetDefault("engine.concurrent_extractors", d.Engine.ConcurrentExtractors)
	viper.SetDefault("concurrency.workers", d.Concurrency.Workers)
	viper.SetDefault("rate_limiting.requests_per_second", d.RateLimiting.RequestsPerSecond)
	viper.SetDefault("rate_limiting.burst_size", d.RateLimiting.BurstSize)
	viper.SetDefault("selection.order_by", d.Selection.OrderBy)
	viper.SetDefault("selection.limit", d.Selection.Limit)
	viper.SetDefault("cache.enabled", d.Cache.Enabled)
	viper.SetDefault("cache.dir", d.Cache.Dir)
	viper.SetDefault("cache.memory_ttl", d.Cache.MemoryTTL)
	viper.SetDefault("cache.disk_ttl", d.Cache.DiskTTL)
	viper.SetDefault("store.driver", d.Store.Driver)
	viper.SetDefault("store.dsn", d.Store.DSN)
	viper.SetDefault("output.verbose", d.Output.Verbose)
	viper.SetDefault("output.include_footer", d.Output.IncludeFooter)
	viper.SetDefault("output.json_logs", d.Output.JSONLogs)
	viper.SetDefault("llm.provider", d.LLM.Provider)
	viper.SetDefault("llm.model", d.LLM.Model)
	viper.SetDefault("llm.api_key", d.LLM.APIKey)
	viper.SetDefault("llm.base_url", d.LLM.BaseURL)
	viper.SetDefault("llm.proxy", d.LLM.Proxy)
	viper.SetDefault("llm.timeout", d.LLM.Timeout)
	viper.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
}

// loadConfig merges defaults, the config file and ARCHETYPE_* variables.
// Command flags are applied on top by each command.
func loadConfig() (*model.Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config")
		}
	}

	loaded := model.DefaultConfig()
	if err := viper.Unmarshal(loaded); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}

	// Provider credentials conventionally live in their own variables
	if loaded.LLM.APIKey == "" && strings.EqualFold(loaded.LLM.Provider, "openai") {
		loaded.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if loaded.LLM.BaseURL == "" && strings.EqualFold(loaded.LLM.Provider, "ollama") {
		loaded.LLM.BaseURL = os.Getenv("OLLAMA_BASE_URL")
	}

	return loaded, nil
}
