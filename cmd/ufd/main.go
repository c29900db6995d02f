package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	ufd "github.com/jad-haddad/unused-function-detector"
	"github.com/jad-haddad/unused-function-detector/internal/store"
)

// version is overridden at build time via -ldflags.
var version = "0.2.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "ufd",
	Short:         "Find unused functions across a codebase using language servers",
	Long:          "ufd discovers function definitions via the Language Server Protocol and reports the ones never referenced anywhere else, for any language a server is configured for.",
	SilenceErrors: true,
	SilenceUsage:  true,
}

var (
	flagIncludeTests   bool
	flagIncludePrivate bool
	flagOutput         string
	flagOutputFile     string
	flagConcurrency    int
	flagTimeout        time.Duration
	flagLanguages      []string
	flagIgnore         []string
	flagSave           bool
	flagNoProgress     bool
	flagVerbose        bool
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	checkCmd.Flags().BoolVar(&flagIncludeTests, "include-tests", false, "include test directories in the scan")
	checkCmd.Flags().BoolVarP(&flagIncludePrivate, "include-private", "p", false, "include private (underscore-prefixed) functions")
	checkCmd.Flags().StringVarP(&flagOutput, "output", "o", "tree", "output format: tree|json|csv")
	checkCmd.Flags().StringVarP(&flagOutputFile, "output-file", "f", "", "write the rendering to a file instead of stdout")
	checkCmd.Flags().IntVar(&flagConcurrency, "concurrency", 0, "max in-flight requests per language server (default 8)")
	checkCmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "per-request timeout (default 10s)")
	checkCmd.Flags().StringSliceVar(&flagLanguages, "languages", nil, "restrict the scan to these languages")
	checkCmd.Flags().StringSliceVar(&flagIgnore, "ignore", nil, "extra ignore globs (relative to the root)")
	checkCmd.Flags().BoolVar(&flagSave, "save", false, "record the scan in the history database")
	checkCmd.Flags().BoolVar(&flagNoProgress, "no-progress", false, "disable the progress bar")

	historyCmd.Flags().IntVar(&flagHistoryLimit, "limit", 10, "number of scans to show")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(versionCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check [path]",
	Short: "Scan a codebase for unused functions",
	Long:  "Walks the target tree, asks each language server for every function-like symbol, queries its references, and reports symbols whose only reference is their own declaration.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	setupLogging()

	root := "."
	if len(args) == 1 {
		root = args[0]
	}

	if err := validateOutput(flagOutput); err != nil {
		return err
	}

	opts, err := buildOptions(root)
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	if !flagNoProgress {
		opts = append(opts, ufd.WithProgress(func(done, total int) {
			if bar == nil {
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionSetDescription("scanning"),
					progressbar.OptionClearOnFinish(),
				)
			}
			_ = bar.Set(done)
		}))
	}

	engine, err := ufd.New(root, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, scanErr := engine.Scan(ctx)
	if bar != nil {
		_ = bar.Finish()
	}

	// A cancelled run still renders whatever was accumulated.
	if report != nil {
		if err := render(report, flagOutput, flagOutputFile); err != nil {
			return err
		}
		if flagSave {
			if err := saveReport(engine.Root(), report); err != nil {
				return fmt.Errorf("saving scan: %w", err)
			}
		}
	}
	return scanErr
}

// buildOptions layers CLI flags over the project config file.
func buildOptions(root string) ([]ufd.Option, error) {
	var opts []ufd.Option

	cfg, err := ufd.FindConfig(root)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = &ufd.Config{}
	}

	// Flags override the file where both are set.
	if flagIncludeTests {
		cfg.IncludeTests = true
	}
	if flagIncludePrivate {
		cfg.IncludePrivate = true
	}
	if flagConcurrency > 0 {
		cfg.Concurrency = flagConcurrency
	}
	if flagTimeout > 0 {
		cfg.Timeout = ufd.Duration(flagTimeout)
	}
	if len(flagLanguages) > 0 {
		cfg.Languages = flagLanguages
	}
	cfg.Ignore = append(cfg.Ignore, flagIgnore...)

	cfgOpts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	return append(opts, cfgOpts...), nil
}

// historyDBPath is where scan history lives, relative to the scan root.
func historyDBPath(root string) string {
	return filepath.Join(root, ".ufd", "history.db")
}

func openStore(root string) (*store.Store, error) {
	dbPath := historyDBPath(root)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
	}
	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func saveReport(root string, report *ufd.Report) error {
	s, err := openStore(root)
	if err != nil {
		return err
	}
	defer s.Close()

	findings := make([]store.UnusedFunction, 0, len(report.Unused))
	for _, v := range report.Unused {
		findings = append(findings, store.UnusedFunction{
			Path:      v.Symbol.Path,
			Name:      v.Symbol.Name,
			Kind:      v.Symbol.Kind,
			Line:      v.Symbol.Line,
			Character: v.Symbol.Character,
		})
	}

	id, err := s.SaveScan(store.Scan{
		Root:           report.Root,
		StartedAt:      time.Now().Add(-report.Duration),
		Duration:       report.Duration,
		FilesScanned:   report.FilesScanned,
		TotalFunctions: report.TotalFunctions,
		UnusedCount:    report.UnusedCount(),
		FailedCount:    report.FailedFunctions,
		Partial:        report.Partial,
	}, findings)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Saved scan #%d to %s\n", id, historyDBPath(root))
	return nil
}

var flagHistoryLimit int

var historyCmd = &cobra.Command{
	Use:   "history [path]",
	Short: "Show recorded scans for a project",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := "."
		if len(args) == 1 {
			root = args[0]
		}
		abs, err := filepath.Abs(root)
		if err != nil {
			return err
		}

		if _, statErr := os.Stat(historyDBPath(root)); errors.Is(statErr, os.ErrNotExist) {
			fmt.Println("No recorded scans. Run `ufd check --save` first.")
			return nil
		}

		s, err := openStore(root)
		if err != nil {
			return err
		}
		defer s.Close()

		scans, err := s.RecentScans(abs, flagHistoryLimit)
		if err != nil {
			return err
		}
		renderHistory(os.Stdout, scans)
		return nil
	},
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check which language servers are installed",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := ufd.New(".")
		if err != nil {
			return err
		}
		renderDoctor(os.Stdout, engine.Registry())
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ufd version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ufd %s\n", version)
	},
}

func setupLogging() {
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
