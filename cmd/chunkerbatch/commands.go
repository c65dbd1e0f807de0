package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/chunkerbatch/chunkerbatch/internal/artifact"
	"github.com/chunkerbatch/chunkerbatch/internal/config"
	"github.com/chunkerbatch/chunkerbatch/internal/formats"
	"github.com/chunkerbatch/chunkerbatch/internal/history"
	"github.com/chunkerbatch/chunkerbatch/internal/jvm"
	"github.com/chunkerbatch/chunkerbatch/internal/worlds"
	"github.com/chunkerbatch/chunkerbatch/web/api"
)

var (
	formatsFamily string
	historyLimit  int
	servePort     int
)

func init() {
	// scan command
	scanCmd := &cobra.Command{
		Use:   "scan [DIR]",
		Short: "List convertible worlds in a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScan,
	}
	rootCmd.AddCommand(scanCmd)

	// formats command
	formatsCmd := &cobra.Command{
		Use:   "formats",
		Short: "List known target format tokens",
		RunE:  runFormats,
	}
	formatsCmd.Flags().StringVar(&formatsFamily, "family", "", "restrict to one family (java or bedrock)")
	rootCmd.AddCommand(formatsCmd)

	// doctor command
	doctorCmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the Java runtime, converter jar, and output root",
		RunE:  runDoctor,
	}
	rootCmd.AddCommand(doctorCmd)

	// history command
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recent batch runs",
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum runs to list")

	historyShowCmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show one run with its per-world outcomes",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryShow,
	}
	historyCmd.AddCommand(historyShowCmd)
	rootCmd.AddCommand(historyCmd)

	// serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve run status and history over HTTP",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (defaults to config)")
	rootCmd.AddCommand(serveCmd)
}

// inputDir resolves the directory argument against the configured default
func inputDir(cfg *config.Config, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if cfg.General.InputDir != "" {
		return cfg.General.InputDir, nil
	}
	return "", fmt.Errorf("no input directory given and general.input_dir is not configured")
}

// resolveJar picks the converter jar: the configured path when set,
// otherwise the newest chunker-cli jar in the configured directory.
func resolveJar(cfg *config.Config) (string, error) {
	if cfg.Converter.JarPath != "" {
		if _, err := os.Stat(cfg.Converter.JarPath); err != nil {
			return "", fmt.Errorf("configured jar: %w", err)
		}
		return cfg.Converter.JarPath, nil
	}
	jar, err := artifact.Locate(cfg.Converter.JarDir)
	if err != nil {
		return "", err
	}
	return jar.Path, nil
}

// openHistory opens the run-history database, creating its directory
func openHistory(cfg *config.Config) (*history.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.General.DatabasePath), 0755); err != nil {
		return nil, err
	}
	return history.New(cfg.General.DatabasePath)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dir, err := inputDir(cfg, args)
	if err != nil {
		return err
	}

	entries, err := worlds.Scan(dir)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Printf("No convertible worlds found in %s\n", dir)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tSIZE")
	for _, e := range entries {
		size := worlds.DirSize(e.Path)
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.Name, e.Kind, humanize.Bytes(uint64(size)))
	}
	w.Flush()

	return nil
}

func runFormats(cmd *cobra.Command, args []string) error {
	families := formats.Families()
	if formatsFamily != "" {
		f, err := formats.ParseFamily(formatsFamily)
		if err != nil {
			return err
		}
		families = []formats.Family{f}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FAMILY\tTOKEN\t")
	for _, f := range families {
		tokens, err := formats.Tokens(f)
		if err != nil {
			return err
		}
		def, _ := formats.Default(f)
		// newest first for display
		for i := len(tokens) - 1; i >= 0; i-- {
			marker := ""
			if tokens[i] == def {
				marker = "(newest)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", f, tokens[i], marker)
		}
	}
	w.Flush()

	return nil
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	healthy := true
	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	version, err := jvm.Probe(ctx, cfg.Converter.JavaPath)
	switch {
	case err != nil:
		healthy = false
		fmt.Printf("✗ java: %v\n  %s\n", err, jvm.InstallHint())
	case !version.Meets(cfg.Converter.MinJavaMajor):
		healthy = false
		fmt.Printf("✗ java: %s found, but %d or newer is required\n  %s\n",
			version, cfg.Converter.MinJavaMajor, jvm.InstallHint())
	default:
		fmt.Printf("✓ java: %s\n", version)
	}

	jarPath, err := resolveJar(cfg)
	if err != nil {
		healthy = false
		fmt.Printf("✗ converter jar: %v\n", err)
	} else if v := artifact.ParseVersion(jarPath); v != "" {
		fmt.Printf("✓ converter jar: %s (version %s)\n", jarPath, v)
	} else {
		fmt.Printf("✓ converter jar: %s\n", jarPath)
	}

	if cfg.General.OutputRoot == "" {
		fmt.Println("- output root: not configured (pass --output to convert)")
	} else if err := checkWritable(cfg.General.OutputRoot); err != nil {
		healthy = false
		fmt.Printf("✗ output root: %v\n", err)
	} else {
		fmt.Printf("✓ output root: %s\n", cfg.General.OutputRoot)
	}

	if !healthy {
		return fmt.Errorf("environment is not ready")
	}
	return nil
}

// checkWritable proves the directory accepts writes by creating and
// removing a scratch file.
func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".chunkerbatch-*")
	if err != nil {
		return fmt.Errorf("%s is not writable: %w", dir, err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.RecentRuns(historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No recorded runs")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTARTED\tSTATUS\tWORLDS\tFORMAT")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\n",
			shortID(run.ID), humanize.Time(run.StartedAt), run.Status,
			run.Succeeded, run.Total, run.Format)
	}
	w.Flush()

	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.GetRun(args[0])
	if err != nil {
		return fmt.Errorf("run %s not found", args[0])
	}

	fmt.Printf("Run:      %s\n", run.ID)
	fmt.Printf("Started:  %s\n", run.StartedAt.Format(time.RFC3339))
	if run.FinishedAt != nil {
		fmt.Printf("Finished: %s\n", run.FinishedAt.Format(time.RFC3339))
	}
	fmt.Printf("Status:   %s\n", run.Status)
	fmt.Printf("Format:   %s\n", run.Format)
	if run.OutputRoot != "" {
		fmt.Printf("Output:   %s\n", run.OutputRoot)
	}
	fmt.Printf("Worlds:   %d/%d succeeded", run.Succeeded, run.Total)
	if run.Cancelled {
		fmt.Print(" (cancelled)")
	}
	fmt.Println()

	outcomes, err := store.RunOutcomes(run.ID)
	if err != nil {
		return err
	}
	if len(outcomes) == 0 {
		return nil
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tWORLD\tRESULT\tDURATION\tMESSAGE")
	for _, o := range outcomes {
		result := "ok"
		if !o.Success {
			result = "failed"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			o.Position+1, o.World, result, o.Duration.Round(time.Second), o.Message)
	}
	w.Flush()

	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openHistory(cfg)
	if err != nil {
		return err
	}

	port := servePort
	if port == 0 {
		port = cfg.Web.Port
	}

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, port)
	server := api.NewServer(store, nil, addr)

	fmt.Printf("Serving status API at http://%s\n", addr)
	return server.Start()
}

// shortID abbreviates a run UUID for table display
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
