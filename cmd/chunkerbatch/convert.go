package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chunkerbatch/chunkerbatch/internal/batch"
	"github.com/chunkerbatch/chunkerbatch/internal/config"
	"github.com/chunkerbatch/chunkerbatch/internal/domain"
	"github.com/chunkerbatch/chunkerbatch/internal/engine"
	"github.com/chunkerbatch/chunkerbatch/internal/formats"
	"github.com/chunkerbatch/chunkerbatch/internal/history"
	"github.com/chunkerbatch/chunkerbatch/internal/notify"
	"github.com/chunkerbatch/chunkerbatch/internal/watcher"
	"github.com/chunkerbatch/chunkerbatch/internal/worlds"
	"github.com/chunkerbatch/chunkerbatch/web/api"
)

var (
	convertFormat string
	convertOutput string
	convertJar    string
	convertJava   string
	convertSuffix bool
	convertNames  []string

	watchDebounce time.Duration
	watchServe    bool

	profilesPath  string
	scheduleServe bool
)

func init() {
	// convert command
	convertCmd := &cobra.Command{
		Use:   "convert [DIR]",
		Short: "Convert every world in a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runConvert,
	}
	convertCmd.Flags().StringVar(&convertFormat, "format", "", "target format token (defaults to config)")
	convertCmd.Flags().StringVar(&convertOutput, "output", "", "output root directory (defaults to config)")
	convertCmd.Flags().StringVar(&convertJar, "jar", "", "converter jar path (defaults to config/discovery)")
	convertCmd.Flags().StringVar(&convertJava, "java", "", "java executable (defaults to config)")
	convertCmd.Flags().BoolVar(&convertSuffix, "suffix", true, "append _<format> to output directory names")
	convertCmd.Flags().StringSliceVar(&convertNames, "worlds", nil, "convert only the named worlds")
	rootCmd.AddCommand(convertCmd)

	// watch command
	watchCmd := &cobra.Command{
		Use:   "watch [DIR]",
		Short: "Watch a directory and convert worlds as they arrive",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runWatch,
	}
	watchCmd.Flags().StringVar(&convertFormat, "format", "", "target format token (defaults to config)")
	watchCmd.Flags().StringVar(&convertOutput, "output", "", "output root directory (defaults to config)")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 0, "quiet period before a new directory is checked")
	watchCmd.Flags().BoolVar(&watchServe, "serve", false, "expose the status API while watching")
	rootCmd.AddCommand(watchCmd)

	// schedule command
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run conversion profiles on their cron schedules",
		RunE:  runSchedule,
	}
	scheduleCmd.Flags().StringVar(&profilesPath, "profiles", "", "profiles file path")
	scheduleCmd.Flags().BoolVar(&scheduleServe, "serve", false, "expose the status API while scheduling")
	rootCmd.AddCommand(scheduleCmd)
}

// batchEnv bundles the collaborators every batch run needs
type batchEnv struct {
	logger    *zap.Logger
	store     *history.Store
	notifier  notify.Notifier
	progress  bool // render a per-world progress bar
	broadcast func(domain.Event)

	mu      sync.Mutex
	current *engine.Runner
}

// setCurrent tracks the runner the status API should snapshot
func (e *batchEnv) setCurrent(r *engine.Runner) {
	e.mu.Lock()
	e.current = r
	e.mu.Unlock()
}

func (e *batchEnv) snapshot() *engine.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return nil
	}
	snap := e.current.Snapshot()
	return &snap
}

// serveStatus exposes the status API alongside a long-running command and
// relays engine events to its SSE clients.
func (e *batchEnv) serveStatus(cfg *config.Config) {
	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	server := api.NewServer(e.store, e.snapshot, addr)
	e.broadcast = func(ev domain.Event) {
		server.Broadcast(api.FromEngineEvent(ev))
	}
	go func() {
		if err := server.Start(); err != nil {
			e.logger.Error("status API failed", zap.Error(err))
		}
	}()
	e.logger.Info("status API listening", zap.String("addr", addr))
}

func newEnv(cfg *config.Config, progress bool) (*batchEnv, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	store, err := openHistory(cfg)
	if err != nil {
		return nil, err
	}

	return &batchEnv{
		logger: logger,
		store:  store,
		notifier: notify.NewMultiNotifier(
			notify.NewDesktopNotifier(cfg.Notifications.Desktop),
			notify.NewSlackNotifier(cfg.Notifications.SlackWebhook),
		),
		progress: progress,
	}, nil
}

func (e *batchEnv) close() {
	e.store.Close()
	e.logger.Sync()
}

// conversionConfig assembles the engine config from the config file and the
// convert/watch flag overrides.
func conversionConfig(cfg *config.Config) (domain.ConversionConfig, error) {
	conv := domain.ConversionConfig{
		JavaPath:   cfg.Converter.JavaPath,
		JarPath:    cfg.Converter.JarPath,
		OutputRoot: cfg.General.OutputRoot,
		Format:     cfg.Converter.Format,
		AddSuffix:  cfg.Converter.AddSuffix,
	}
	if convertJava != "" {
		conv.JavaPath = convertJava
	}
	if convertJar != "" {
		conv.JarPath = convertJar
	}
	if convertOutput != "" {
		conv.OutputRoot = convertOutput
	}
	if convertFormat != "" {
		conv.Format = convertFormat
	}

	if conv.OutputRoot == "" {
		return conv, fmt.Errorf("no output root given: set general.output_root or pass --output")
	}
	if conv.JarPath == "" {
		jar, err := resolveJar(cfg)
		if err != nil {
			return conv, err
		}
		conv.JarPath = jar
	}
	return conv, nil
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dir, err := inputDir(cfg, args)
	if err != nil {
		return err
	}

	conv, err := conversionConfig(cfg)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("suffix") {
		conv.AddSuffix = convertSuffix
	}

	entries, err := worlds.Scan(dir)
	if err != nil {
		return err
	}
	entries = filterWorlds(entries, convertNames)
	if len(entries) == 0 {
		return fmt.Errorf("no convertible worlds found in %s", dir)
	}

	env, err := newEnv(cfg, true)
	if err != nil {
		return err
	}
	defer env.close()

	if !formats.IsKnown(conv.Format) {
		env.logger.Warn("format token not in the catalog, passing through unchecked",
			zap.String("format", conv.Format))
	}

	runner, err := engine.New(conv, engine.WithGrace(cfg.Converter.Grace()))
	if err != nil {
		return err
	}

	// First interrupt cancels cooperatively, a second one gives up waiting.
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		<-sigs
		fmt.Fprintln(os.Stderr, "\nCancelling after the current world (interrupt again to quit now)")
		runner.Cancel()
		<-sigs
		os.Exit(130)
	}()

	result, err := executeBatch(cmd.Context(), env, runner, conv, entries)
	if err != nil {
		return err
	}

	switch {
	case result.Cancelled:
		fmt.Printf("Cancelled: %d/%d worlds converted\n", result.Succeeded, result.Total)
	case result.Succeeded == result.Total:
		fmt.Printf("Done: %d/%d worlds converted\n", result.Succeeded, result.Total)
	default:
		return fmt.Errorf("%d of %d conversions failed", result.Total-result.Succeeded, result.Total)
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dir, err := inputDir(cfg, args)
	if err != nil {
		return err
	}

	conv, err := conversionConfig(cfg)
	if err != nil {
		return err
	}

	env, err := newEnv(cfg, false)
	if err != nil {
		return err
	}
	defer env.close()

	var opts []watcher.Option
	if watchDebounce > 0 {
		opts = append(opts, watcher.WithDebounce(watchDebounce))
	}
	w, err := watcher.New(dir, opts...)
	if err != nil {
		return err
	}

	// Worlds already in the directory are the convert command's business;
	// watch only picks up arrivals.
	if existing, err := worlds.Scan(dir); err == nil {
		for _, e := range existing {
			w.MarkSeen(e.Path)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := w.Start(ctx); err != nil {
		return err
	}
	if watchServe {
		env.serveStatus(cfg)
	}

	env.logger.Info("watching for new worlds",
		zap.String("dir", dir),
		zap.String("format", conv.Format))

	for entry := range w.Worlds() {
		env.logger.Info("world arrived",
			zap.String("world", entry.Name),
			zap.String("kind", string(entry.Kind)))

		runner, err := engine.New(conv, engine.WithGrace(cfg.Converter.Grace()))
		if err != nil {
			return err
		}
		if _, err := executeBatch(ctx, env, runner, conv, []domain.WorldEntry{entry}); err != nil {
			env.logger.Error("batch failed", zap.String("world", entry.Name), zap.Error(err))
		}
		if ctx.Err() != nil {
			break
		}
	}

	return nil
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path := profilesPath
	if path == "" {
		path = config.ExpandPath("~/.config/chunkerbatch/profiles.toml")
	}

	profiles, err := batch.LoadProfiles(path)
	if err != nil {
		return err
	}
	if len(profiles.Profiles) == 0 {
		return fmt.Errorf("no profiles in %s", path)
	}

	env, err := newEnv(cfg, false)
	if err != nil {
		return err
	}
	defer env.close()

	sched, err := batch.NewScheduler(profiles.Profiles, env.logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		sched.Stop()
	}()

	if scheduleServe {
		env.serveStatus(cfg)
	}

	env.logger.Info("scheduler started",
		zap.String("profiles", path),
		zap.Int("count", len(profiles.Profiles)))

	// Due profiles are dispatched on their own goroutines; the converter is
	// single-instance-safe only, so batches themselves run one at a time.
	var runMu sync.Mutex
	sched.Start(func(p batch.Profile) error {
		runMu.Lock()
		defer runMu.Unlock()
		return runProfile(ctx, env, cfg, p)
	})

	return nil
}

// runProfile executes one scheduled profile: scan its input directory and
// convert whatever is there. Profile fields fall back to the global config.
func runProfile(ctx context.Context, env *batchEnv, cfg *config.Config, p batch.Profile) error {
	conv := domain.ConversionConfig{
		JavaPath:   cfg.Converter.JavaPath,
		JarPath:    cfg.Converter.JarPath,
		OutputRoot: p.OutputRoot,
		Format:     p.Format,
		AddSuffix:  p.SuffixEnabled(),
	}
	if conv.OutputRoot == "" {
		conv.OutputRoot = cfg.General.OutputRoot
	}
	if conv.Format == "" {
		conv.Format = cfg.Converter.Format
	}
	if conv.JarPath == "" {
		jar, err := resolveJar(cfg)
		if err != nil {
			return err
		}
		conv.JarPath = jar
	}

	entries, err := worlds.Scan(p.InputDir)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		env.logger.Info("profile has nothing to convert", zap.String("profile", p.Name))
		return nil
	}

	runner, err := engine.New(conv, engine.WithGrace(cfg.Converter.Grace()))
	if err != nil {
		return err
	}
	_, err = executeBatch(ctx, env, runner, conv, entries)
	return err
}

// executeBatch starts the runner and consumes its event stream: progress to
// the bar or log, outcomes to the history store, and the final result to the
// notifiers.
func executeBatch(ctx context.Context, env *batchEnv, runner *engine.Runner, conv domain.ConversionConfig, entries []domain.WorldEntry) (domain.BatchResult, error) {
	events, err := runner.Start(ctx, entries)
	if err != nil {
		return domain.BatchResult{}, err
	}
	env.setCurrent(runner)

	var bar *progressbar.ProgressBar
	var result domain.BatchResult

	for ev := range events {
		if env.broadcast != nil {
			env.broadcast(ev)
		}
		switch e := ev.(type) {
		case domain.BatchStarted:
			if err := env.store.RecordStart(e.RunID, time.Now(), e.Total, conv); err != nil {
				env.logger.Warn("recording run start", zap.Error(err))
			}

		case domain.WorldStarted:
			env.logger.Info("converting world",
				zap.String("world", e.World),
				zap.Int("index", e.Index+1),
				zap.Int("total", e.Total))
			if env.progress {
				bar = progressbar.NewOptions(100,
					progressbar.OptionSetDescription(fmt.Sprintf("[%d/%d] %s", e.Index+1, e.Total, e.World)),
					progressbar.OptionSetWidth(30),
					progressbar.OptionClearOnFinish(),
				)
			}

		case domain.Progress:
			if bar != nil {
				bar.Set(e.Percent)
			}

		case domain.Log:
			if e.Stream == domain.StreamStderr {
				env.logger.Warn("converter", zap.String("world", e.World), zap.String("line", e.Line))
			} else {
				env.logger.Debug("converter", zap.String("world", e.World), zap.String("line", e.Line))
			}

		case domain.WorldFinished:
			if bar != nil {
				bar.Finish()
				bar = nil
			}
			if e.Outcome.Success {
				env.logger.Info("world converted",
					zap.String("world", e.World),
					zap.String("message", e.Outcome.Message),
					zap.Duration("duration", e.Outcome.Duration))
			} else {
				env.logger.Error("world failed",
					zap.String("world", e.World),
					zap.String("message", e.Outcome.Message))
			}
			if err := env.store.RecordOutcome(runner.ID(), e.Index, e.Outcome); err != nil {
				env.logger.Warn("recording outcome", zap.Error(err))
			}

		case domain.BatchFinished:
			result = e.Result
			if err := env.store.RecordFinish(e.RunID, time.Now(), runner.Status(), e.Result); err != nil {
				env.logger.Warn("recording run finish", zap.Error(err))
			}
		}
	}

	// The batch may have been cancelled by an interrupt; give the
	// notification its own deadline instead of the dead context.
	nctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	n := notify.ForBatch(result)
	n.RunID = runner.ID()
	if err := env.notifier.Send(nctx, n); err != nil {
		env.logger.Warn("sending notification", zap.Error(err))
	}

	return result, nil
}

// filterWorlds keeps entries whose names were requested; an empty filter
// keeps everything.
func filterWorlds(entries []domain.WorldEntry, names []string) []domain.WorldEntry {
	if len(names) == 0 {
		return entries
	}
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}
	var kept []domain.WorldEntry
	for _, e := range entries {
		if _, ok := want[e.Name]; ok {
			kept = append(kept, e)
		}
	}
	return kept
}
