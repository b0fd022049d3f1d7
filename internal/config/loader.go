package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config file lookup and environment binding.
const (
	fileName  = ".crashdice"
	fileType  = "yaml"
	envPrefix = "CRASHDICE"
)

// Defaults applied before the config file and environment are read.
const (
	DefaultSanitizer      = SanitizerUBSan
	DefaultMaxDepth       = 256
	DefaultDDNum          = 1
	DefaultFormat         = "json"
	DefaultStashEnabled   = true
	DefaultStashMaxSize   = "64MB"
	DefaultCacheEntries   = 0
	DefaultLogLevel       = "info"
	DefaultSancov         = "sancov"
	DefaultPySancov       = "pysancov"
	DefaultLLVMSymbolizer = "llvm-symbolizer"
	DefaultShell          = "bash"
)

// Default returns the configuration used when no file or env var is present.
func Default() *Config {
	return &Config{
		Tools: ToolsConfig{
			Sancov:         DefaultSancov,
			PySancov:       DefaultPySancov,
			LLVMSymbolizer: DefaultLLVMSymbolizer,
			Shell:          DefaultShell,
		},
		Sanitizer: DefaultSanitizer,
		Ancestry:  AncestryConfig{MaxDepth: DefaultMaxDepth},
		Analysis:  AnalysisConfig{DDNum: DefaultDDNum},
		Output:    OutputConfig{Format: DefaultFormat},
		Stash:     StashConfig{Enabled: DefaultStashEnabled, MaxSize: DefaultStashMaxSize},
		Cache:     CacheConfig{MaxEntries: DefaultCacheEntries},
		Logging:   LoggingConfig{Level: DefaultLogLevel},
	}
}

// defaultKeys lists every key with its default. Keys without a default are
// still registered so that AutomaticEnv can bind them during Unmarshal.
func defaultKeys() map[string]any {
	d := Default()

	return map[string]any{
		"tools.bin":             d.Tools.Bin,
		"tools.sancov":          d.Tools.Sancov,
		"tools.pysancov":        d.Tools.PySancov,
		"tools.llvm_symbolizer": d.Tools.LLVMSymbolizer,
		"tools.shell":           d.Tools.Shell,
		"sanitizer":             d.Sanitizer,
		"sancov_bug":            d.SancovBug,
		"ancestry.max_depth":    d.Ancestry.MaxDepth,
		"analysis.dd_num":       d.Analysis.DDNum,
		"output.format":         d.Output.Format,
		"output.ledger":         d.Output.Ledger,
		"stash.enabled":         d.Stash.Enabled,
		"stash.max_size":        d.Stash.MaxSize,
		"cache.max_entries":     d.Cache.MaxEntries,
		"logging.level":         d.Logging.Level,
		"logging.json":          d.Logging.JSON,

		"telemetry.otlp_endpoint": d.Telemetry.OTLPEndpoint,
		"telemetry.otlp_insecure": d.Telemetry.OTLPInsecure,
		"telemetry.otlp_headers":  d.Telemetry.OTLPHeaders,
		"telemetry.sample_ratio":  d.Telemetry.SampleRatio,
		"telemetry.trace_verbose": d.Telemetry.TraceVerbose,
		"telemetry.metrics_addr":  d.Telemetry.MetricsAddr,
	}
}

// LoadConfig reads configPath, or .crashdice.yaml from the working directory
// or $HOME when configPath is empty, layers CRASHDICE_* environment variables
// over it and validates the result. A missing implicit file is not an error.
func LoadConfig(configPath string) (*Config, error) {
	v := newViper(configPath)

	err := v.ReadInConfig()
	if err != nil && !errors.As(err, new(viper.ConfigFileNotFoundError)) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config

	err = v.Unmarshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()

	for key, value := range defaultKeys() {
		v.SetDefault(key, value)
	}

	v.SetConfigType(fileType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)

		return v
	}

	v.SetConfigName(fileName)
	v.AddConfigPath(".")

	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}

	return v
}
