// Package config loads crashdice settings from an optional YAML file,
// CRASHDICE_* environment variables, and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"
)

// Config is the top-level configuration struct for crashdice.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	Tools     ToolsConfig     `mapstructure:"tools"`
	Sanitizer string          `mapstructure:"sanitizer"`
	SancovBug bool            `mapstructure:"sancov_bug"`
	Ancestry  AncestryConfig  `mapstructure:"ancestry"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Output    OutputConfig    `mapstructure:"output"`
	Stash     StashConfig     `mapstructure:"stash"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ToolsConfig names the external programs of the coverage toolchain.
type ToolsConfig struct {
	Bin            string `mapstructure:"bin"`
	Sancov         string `mapstructure:"sancov"`
	PySancov       string `mapstructure:"pysancov"`
	LLVMSymbolizer string `mapstructure:"llvm_symbolizer"`
	Shell          string `mapstructure:"shell"`
}

// AncestryConfig bounds the ancestor walk.
type AncestryConfig struct {
	MaxDepth int `mapstructure:"max_depth"`
}

// AnalysisConfig selects the localization mode.
type AnalysisConfig struct {
	DDNum int `mapstructure:"dd_num"`
}

// OutputConfig controls where reports go.
type OutputConfig struct {
	Format string `mapstructure:"format"`
	Ledger string `mapstructure:"ledger"`
}

// StashConfig controls the compressed copies of raw coverage artifacts.
type StashConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	MaxSize string `mapstructure:"max_size"`
}

// CacheConfig bounds the in-memory coverage cache. Zero disables it.
type CacheConfig struct {
	MaxEntries int `mapstructure:"max_entries"`
}

// LoggingConfig holds the slog defaults; -v overrides the level.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// TelemetryConfig holds OpenTelemetry and diagnostics settings.
type TelemetryConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
	OTLPHeaders  string  `mapstructure:"otlp_headers"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	TraceVerbose bool    `mapstructure:"trace_verbose"`
	MetricsAddr  string  `mapstructure:"metrics_addr"`
}

// Sanitizer names accepted in the sanitizer key.
const (
	SanitizerASan  = "asan"
	SanitizerUBSan = "ubsan"
)

// sampleRatioMax is the upper bound for the trace sampling ratio.
const sampleRatioMax = 1.0

// Sentinel errors for configuration validation.
var (
	// ErrInvalidSanitizer indicates an unsupported sanitizer name.
	ErrInvalidSanitizer = errors.New("sanitizer must be asan or ubsan")
	// ErrInvalidMaxDepth indicates the ancestry bound is not positive.
	ErrInvalidMaxDepth = errors.New("ancestry.max_depth must be positive")
	// ErrInvalidDDNum indicates the ancestor count is not positive.
	ErrInvalidDDNum = errors.New("analysis.dd_num must be positive")
	// ErrInvalidFormat indicates an unsupported report format.
	ErrInvalidFormat = errors.New("output.format must be json or yaml")
	// ErrInvalidStashSize indicates an unparsable stash size.
	ErrInvalidStashSize = errors.New("stash.max_size must be a byte size such as 64MB")
	// ErrInvalidCacheEntries indicates a negative cache bound.
	ErrInvalidCacheEntries = errors.New("cache.max_entries must not be negative")
	// ErrInvalidLogLevel indicates an unknown log level.
	ErrInvalidLogLevel = errors.New("logging.level must be debug, info, warn or error")
	// ErrInvalidSampleRatio indicates the sampling ratio is out of range.
	ErrInvalidSampleRatio = errors.New("telemetry.sample_ratio must be between 0 and 1")
)

// Validate checks Config invariants and returns the first error found.
func (c *Config) Validate() error {
	analysisErr := c.validateAnalysis()
	if analysisErr != nil {
		return analysisErr
	}

	return c.validateOutput()
}

func (c *Config) validateAnalysis() error {
	switch strings.ToLower(c.Sanitizer) {
	case SanitizerASan, SanitizerUBSan:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSanitizer, c.Sanitizer)
	}

	if c.Ancestry.MaxDepth <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxDepth, c.Ancestry.MaxDepth)
	}

	if c.Analysis.DDNum <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDDNum, c.Analysis.DDNum)
	}

	return nil
}

func (c *Config) validateOutput() error {
	switch strings.ToLower(c.Output.Format) {
	case "json", "yaml":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFormat, c.Output.Format)
	}

	_, sizeErr := c.StashMaxBytes()
	if sizeErr != nil {
		return sizeErr
	}

	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCacheEntries, c.Cache.MaxEntries)
	}

	_, levelErr := c.LogLevel()
	if levelErr != nil {
		return levelErr
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > sampleRatioMax {
		return fmt.Errorf("%w: %g", ErrInvalidSampleRatio, c.Telemetry.SampleRatio)
	}

	return nil
}

// StashMaxBytes parses stash.max_size. An empty value means unbounded (zero).
func (c *Config) StashMaxBytes() (uint64, error) {
	if c.Stash.MaxSize == "" {
		return 0, nil
	}

	n, err := humanize.ParseBytes(c.Stash.MaxSize)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidStashSize, c.Stash.MaxSize)
	}

	return n, nil
}

// LogLevel parses logging.level. An empty value means info.
func (c *Config) LogLevel() (slog.Level, error) {
	if c.Logging.Level == "" {
		return slog.LevelInfo, nil
	}

	var level slog.Level

	err := level.UnmarshalText([]byte(c.Logging.Level))
	if err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
	}

	return level, nil
}
