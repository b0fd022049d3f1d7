package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/crashdice/internal/config"
	"github.com/Sumatoshi-tech/crashdice/internal/extractor"
	"github.com/Sumatoshi-tech/crashdice/internal/localize"
	"github.com/Sumatoshi-tech/crashdice/internal/observability"
	"github.com/Sumatoshi-tech/crashdice/internal/report"
	"github.com/Sumatoshi-tech/crashdice/internal/workspace"
	"github.com/Sumatoshi-tech/crashdice/pkg/version"
)

var (
	// ErrMissingCoverageCmd is returned when --coverage-cmd is not set.
	ErrMissingCoverageCmd = errors.New("--coverage-cmd is required")
	// ErrMissingFuzzDir is returned when --afl-fuzzing-dir is not a directory.
	ErrMissingFuzzDir = errors.New("--afl-fuzzing-dir missing or not a directory")
	// ErrMissingCrashDir is returned when --crash-dir is not a directory.
	ErrMissingCrashDir = errors.New("--crash-dir missing or not a directory")
	// ErrMissingBinPath is returned when no instrumented binary is configured.
	ErrMissingBinPath = errors.New("--bin-path is required")
)

const diagnosticsCloseTimeout = 5 * time.Second

// runDeps holds the collaborators replaced in tests.
type runDeps struct {
	checkTools   func(opts extractor.Options) error
	newExtractor func(opts extractor.Options) (extractor.Extractor, error)
}

// RunCommand holds configuration and dependencies for the run command.
type RunCommand struct {
	configPath         string
	coverageCmd        string
	fuzzDir            string
	crashDir           string
	overwrite          bool
	disableRedirection bool

	bin         string
	sancov      string
	pysancov    string
	symbolizer  string
	sanitizer   string
	sancovBug   bool
	ddNum       int
	maxDepth    int
	format      string
	ledger      string
	noStash     bool
	cacheSize   int
	metricsAddr string

	deps runDeps
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	return newRunCommandWithDeps(runDeps{
		checkTools:   extractor.Options.Validate,
		newExtractor: newSancovExtractor,
	})
}

func newSancovExtractor(opts extractor.Options) (extractor.Extractor, error) {
	return extractor.NewSancovExtractor(opts)
}

func newRunCommandWithDeps(deps runDeps) *cobra.Command {
	rc := &RunCommand{deps: deps}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Localize the crashes of an AFL fuzzing directory",
		Long: `Reproduce every crash of --crash-dir, diff its sanitizer coverage against the
coverage of its non-crashing ancestors, and write one delta report per crash
into <afl-fuzzing-dir>/sancov/delta-diff.

Examples:
  crashdice run -d /fuzz -e "/build/target AFL_FILE" --bin-path /build/target --crash-dir /fuzz/unique
  crashdice run -d /fuzz -e "/build/target -f AFL_FILE" --bin-path /build/target --crash-dir /fuzz/unique --dd-num 5`,
		Args: cobra.NoArgs,
		RunE: rc.run,
	}

	cmd.Flags().StringVar(&rc.configPath, "config", "", "Config file (default: .crashdice.yaml in CWD or $HOME)")
	cmd.Flags().StringVarP(&rc.coverageCmd, "coverage-cmd", "e", "", "Command to execute, with "+extractor.Placeholder+" in place of the input")
	cmd.Flags().StringVarP(&rc.fuzzDir, "afl-fuzzing-dir", "d", "", "Top level AFL fuzzing directory")
	cmd.Flags().StringVar(&rc.crashDir, "crash-dir", "", "Directory of triaged crashes")
	cmd.Flags().BoolVarP(&rc.overwrite, "overwrite", "O", false, "Replace an existing sancov workspace")
	cmd.Flags().BoolVar(&rc.disableRedirection, "disable-cmd-redirection", false, "Pass target output through instead of discarding it")

	cmd.Flags().StringVar(&rc.bin, "bin-path", "", "Coverage-instrumented binary")
	cmd.Flags().StringVar(&rc.sancov, "sancov-path", config.DefaultSancov, "sancov binary")
	cmd.Flags().StringVar(&rc.pysancov, "pysancov-path", config.DefaultPySancov, "sancov.py script from compiler-rt")
	cmd.Flags().StringVar(&rc.symbolizer, "llvm-sym-path", config.DefaultLLVMSymbolizer, "llvm-symbolizer binary")
	cmd.Flags().StringVar(&rc.sanitizer, "sanitizer", config.DefaultSanitizer, "Sanitizer the binary is built with: asan or ubsan")
	cmd.Flags().BoolVar(&rc.sancovBug, "sancov-bug", false, "Collect artifacts from the working directory for runtimes that ignore coverage_dir")
	cmd.Flags().IntVar(&rc.ddNum, "dd-num", config.DefaultDDNum, "Ancestors to diff against (1 = parent only)")
	cmd.Flags().IntVar(&rc.maxDepth, "max-depth", config.DefaultMaxDepth, "Bound on parent lookups per crash")
	cmd.Flags().StringVar(&rc.format, "format", config.DefaultFormat, "Report format: json or yaml")
	cmd.Flags().StringVar(&rc.ledger, "ledger", "", "SQLite ledger to record reports into")
	cmd.Flags().BoolVar(&rc.noStash, "no-stash", false, "Do not keep compressed raw coverage artifacts")
	cmd.Flags().IntVar(&rc.cacheSize, "cache-entries", config.DefaultCacheEntries, "Inputs whose coverage is reused across comparisons (0 extracts afresh every time)")
	cmd.Flags().StringVar(&rc.metricsAddr, "metrics-addr", "", "Serve /healthz, /readyz and /metrics on this address")

	return cmd
}

func (rc *RunCommand) overrides(cmd *cobra.Command) config.Overrides {
	return config.Overrides{
		Bin:            changed(cmd, "bin-path", rc.bin),
		Sancov:         changed(cmd, "sancov-path", rc.sancov),
		PySancov:       changed(cmd, "pysancov-path", rc.pysancov),
		LLVMSymbolizer: changed(cmd, "llvm-sym-path", rc.symbolizer),
		Sanitizer:      changed(cmd, "sanitizer", rc.sanitizer),
		SancovBug:      changed(cmd, "sancov-bug", rc.sancovBug),
		MaxDepth:       changed(cmd, "max-depth", rc.maxDepth),
		DDNum:          changed(cmd, "dd-num", rc.ddNum),
		Format:         changed(cmd, "format", rc.format),
		Ledger:         changed(cmd, "ledger", rc.ledger),
		NoStash:        changed(cmd, "no-stash", rc.noStash),
		CacheEntries:   changed(cmd, "cache-entries", rc.cacheSize),
		MetricsAddr:    changed(cmd, "metrics-addr", rc.metricsAddr),
	}
}

func (rc *RunCommand) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(rc.configPath)
	if err != nil {
		return nil, err
	}

	err = cfg.Apply(rc.overrides(cmd))
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func (rc *RunCommand) validateArgs(cfg *config.Config) error {
	if rc.coverageCmd == "" {
		return ErrMissingCoverageCmd
	}

	if !isDir(rc.fuzzDir) {
		return fmt.Errorf("%w: %q", ErrMissingFuzzDir, rc.fuzzDir)
	}

	if !isDir(rc.crashDir) {
		return fmt.Errorf("%w: %q", ErrMissingCrashDir, rc.crashDir)
	}

	if cfg.Tools.Bin == "" {
		return ErrMissingBinPath
	}

	return nil
}

func isDir(path string) bool {
	if path == "" {
		return false
	}

	info, err := os.Stat(path)

	return err == nil && info.IsDir()
}

func (rc *RunCommand) extractorOptions(cmd *cobra.Command, cfg *config.Config, layout workspace.Layout) extractor.Options {
	var output io.Writer = io.Discard
	if rc.disableRedirection {
		output = cmd.ErrOrStderr()
	}

	return extractor.Options{
		Command:    rc.coverageCmd,
		BinPath:    cfg.Tools.Bin,
		Sancov:     cfg.Tools.Sancov,
		PySancov:   cfg.Tools.PySancov,
		Symbolizer: cfg.Tools.LLVMSymbolizer,
		Shell:      cfg.Tools.Shell,
		Sanitizer:  cfg.Sanitizer,
		SancovBug:  cfg.SancovBug,
		WorkDir:    layout.TempDir,
		Output:     output,
	}
}

func (rc *RunCommand) run(cmd *cobra.Command, _ []string) (err error) {
	cfg, err := rc.loadConfig(cmd)
	if err != nil {
		return err
	}

	err = rc.validateArgs(cfg)
	if err != nil {
		return err
	}

	layout := workspace.NewLayout(rc.fuzzDir)
	opts := rc.extractorOptions(cmd, cfg, layout)

	// Tools are checked before the workspace is touched.
	err = rc.deps.checkTools(opts)
	if err != nil {
		return err
	}

	err = layout.Prepare(rc.overwrite)
	if err != nil {
		return err
	}

	logFile, err := layout.OpenLog()
	if err != nil {
		return err
	}
	defer logFile.Close()

	runID := uuid.NewString()

	providers, err := rc.initObservability(cmd, cfg, logFile, runID)
	if err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, providers.Shutdown(context.Background()))
	}()

	logger := providers.Logger
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics, err := observability.NewLocalizeMetrics(providers.Meter)
	if err != nil {
		return err
	}

	if cfg.Telemetry.MetricsAddr != "" {
		workspaceReady := observability.ReadyCheck{Name: "workspace", Check: func(context.Context) error {
			_, statusErr := layout.ReadStatus()

			return statusErr
		}}

		diag, diagErr := observability.NewDiagnosticsServer(
			cfg.Telemetry.MetricsAddr, providers.MetricsHandler, logger, workspaceReady)
		if diagErr != nil {
			return diagErr
		}

		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), diagnosticsCloseTimeout)
			defer cancel()

			err = errors.Join(err, diag.Close(closeCtx))
		}()

		logger.InfoContext(ctx, "diagnostics server listening", "addr", diag.Addr())
	}

	err = layout.WriteStatus(&workspace.Status{
		PID:       os.Getpid(),
		Version:   version.Version,
		Command:   os.Args,
		FuzzDir:   rc.fuzzDir,
		CrashDir:  rc.crashDir,
		DDNum:     cfg.Analysis.DDNum,
		RunID:     runID,
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	opts.Logger = logger
	opts.Tracer = providers.Tracer
	opts.Stash = newStash(cfg, layout, logger)

	inner, err := rc.deps.newExtractor(opts)
	if err != nil {
		return err
	}

	ext := extractor.NewCached(inner, cfg.Cache.MaxEntries)

	sink, err := rc.openSinks(ctx, cfg, layout, runID, logger)
	if err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, sink.Close())
	}()

	engine := localize.NewEngine(localize.EngineConfig{
		Extractor: ext,
		FuzzRoot:  rc.fuzzDir,
		MaxDepth:  cfg.Ancestry.MaxDepth,
		Metrics:   metrics,
		Tracer:    providers.Tracer,
		Logger:    logger,
	})

	batch := localize.NewBatch(localize.BatchConfig{
		Engine:  engine,
		Sink:    sink,
		Filter:  layout,
		DDNum:   cfg.Analysis.DDNum,
		Metrics: metrics,
		Tracer:  providers.Tracer,
		Logger:  logger,
	})

	summary, err := batch.Run(ctx, rc.crashDir)

	recordCacheStats(ctx, logger, metrics, ext)
	rc.printSummary(cmd, summary, layout)

	return err
}

func recordCacheStats(
	ctx context.Context, logger *slog.Logger, metrics *observability.LocalizeMetrics, ext *extractor.Cached,
) {
	cov, verdicts := ext.Stats()
	if cov.MaxEntries == 0 {
		return
	}

	metrics.RecordCache(ctx, "coverage", cov.Hits, cov.Misses)
	metrics.RecordCache(ctx, "verdict", verdicts.Hits, verdicts.Misses)

	logger.Info("coverage cache",
		"coverage_hits", cov.Hits,
		"coverage_misses", cov.Misses,
		"coverage_hit_rate", cov.HitRate(),
		"verdict_hits", verdicts.Hits,
		"verdict_misses", verdicts.Misses,
	)
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}

	return context.Background()
}

func (rc *RunCommand) initObservability(
	cmd *cobra.Command, cfg *config.Config, logFile io.Writer, runID string,
) (observability.Providers, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return observability.Providers{}, err
	}

	logOutput := io.MultiWriter(cmd.ErrOrStderr(), logFile)
	if persistentBool(cmd, "quiet") {
		logOutput = logFile
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Mode = observability.ModeRun
	obsCfg.RunID = runID
	obsCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obsCfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(cfg.Telemetry.OTLPHeaders)
	obsCfg.SampleRatio = cfg.Telemetry.SampleRatio
	obsCfg.TraceVerbose = cfg.Telemetry.TraceVerbose
	obsCfg.Prometheus = cfg.Telemetry.MetricsAddr != ""
	obsCfg.LogLevel = observability.LevelFromVerbosity(persistentBool(cmd, "verbose"), level)
	obsCfg.LogJSON = cfg.Logging.JSON
	obsCfg.LogOutput = logOutput

	return observability.Init(obsCfg)
}

// newStash returns the raw artifact stash, or nil when stashing is off.
func newStash(cfg *config.Config, layout workspace.Layout, logger *slog.Logger) extractor.Stasher {
	if !cfg.Stash.Enabled {
		return nil
	}

	maxBytes, err := cfg.StashMaxBytes()
	if err != nil {
		logger.Warn("stash disabled", "error", err)

		return nil
	}

	return workspace.NewStash(layout.Raw, maxBytes, logger)
}

func (rc *RunCommand) openSinks(
	ctx context.Context, cfg *config.Config, layout workspace.Layout, runID string, logger *slog.Logger,
) (report.Sink, error) {
	fileSink, err := report.NewFileSink(layout.DeltaDiff, cfg.Output.Format)
	if err != nil {
		return nil, err
	}

	if cfg.Output.Ledger == "" {
		return fileSink, nil
	}

	ledgerSink, err := report.OpenLedgerSink(ctx, cfg.Output.Ledger, report.RunInfo{
		ID:       runID,
		FuzzDir:  rc.fuzzDir,
		CrashDir: rc.crashDir,
		DDNum:    cfg.Analysis.DDNum,
		Version:  version.Version,
	}, logger)
	if err != nil {
		return nil, err
	}

	return report.NewMultiSink(fileSink, ledgerSink), nil
}

func (rc *RunCommand) printSummary(cmd *cobra.Command, s localize.Summary, layout workspace.Layout) {
	progressf(cmd, "processed %d crash files: %d reported, %d filtered, %d failed",
		s.Processed, s.Reported, s.Filtered, s.Failed)

	if s.Shrink.Defined > 0 {
		progressf(cmd, "shrink: mean %.2f%%, median %.2f%%, min %.2f%%, max %.2f%%",
			s.Shrink.Mean, s.Shrink.Median, s.Shrink.Min, s.Shrink.Max)
	}

	progressf(cmd, "reports: %s", filepath.Clean(layout.DeltaDiff))
}
