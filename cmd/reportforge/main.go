package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"reportforge/internal/composer"
	"reportforge/internal/config"
	"reportforge/internal/generator"
	"reportforge/internal/store"
	"reportforge/internal/supervisor"
	"reportforge/internal/template"
	"reportforge/internal/validator"
)

var (
	// Global flags
	cfgPath  string
	verbose  bool
	outDir   string
	reportID string
	attempts int

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "reportforge",
	Short: "reportforge - LLM report chapter assembly pipeline",
	Long: `reportforge turns untrusted model-generated chapter JSON into a
renderer-safe document.

Chapters are generated one at a time from a markdown template, validated
against a closed block vocabulary, persisted with a per-run manifest, and
finally stitched into a single deterministic document.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if outDir != "" {
			cfg.Output.BaseDir = outDir
		}
		if attempts > 0 {
			cfg.Generation.MaxAttempts = attempts
		}

		zcfg := zap.NewProductionConfig()
		if cfg.Logging.Format == "console" {
			zcfg = zap.NewDevelopmentConfig()
		}
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		if cfg.Logging.File != "" {
			zcfg.OutputPaths = []string{cfg.Logging.File}
		}
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// generateCmd runs the full pipeline for one report.
var generateCmd = &cobra.Command{
	Use:   "generate [template.md]",
	Short: "Generate every chapter from a markdown template and compose the document",
	Long: `Slices the template into chapter plans, generates each chapter through
the bounded retry loop, persists results under the run directory, and writes
the composed document as document.json.

Example:
  reportforge generate template.md --context brief.txt --report-id q1-2026`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

// validateCmd checks a chapter payload against the contract.
var validateCmd = &cobra.Command{
	Use:   "validate [chapter.json]",
	Short: "Validate a chapter JSON file against the block contract",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

// composeCmd restitches an existing run into a document.
var composeCmd = &cobra.Command{
	Use:   "compose [report-id]",
	Short: "Compose the final document from an existing run's chapters",
	Args:  cobra.ExactArgs(1),
	RunE:  runCompose,
}

var contextPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "reportforge.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&outDir, "output", "", "override output base directory")

	generateCmd.Flags().StringVar(&reportID, "report-id", "", "report identifier (generated when empty)")
	generateCmd.Flags().IntVar(&attempts, "attempts", 0, "override per-chapter attempt ceiling")
	generateCmd.Flags().StringVar(&contextPath, "context", "", "file with shared report context for prompts")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(composeCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	templateMD, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read template: %w", err)
	}
	sharedContext := ""
	if contextPath != "" {
		data, err := os.ReadFile(contextPath)
		if err != nil {
			return fmt.Errorf("failed to read context file: %w", err)
		}
		sharedContext = string(data)
	}

	plans := template.Slice(string(templateMD))
	logger.Info("template sliced", zap.Int("chapters", len(plans)))

	client, err := generator.NewLLMClient(cmd.Context(), generator.Settings{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
	})
	if err != nil {
		return err
	}
	writer := generator.NewChapterWriter(client, cfg.GetLLMTimeout(), logger)

	st, err := store.New(cfg.Output.BaseDir, logger)
	if err != nil {
		return err
	}
	run, err := st.StartSession(reportID, map[string]any{"template": args[0]})
	if err != nil {
		return err
	}
	fmt.Printf("run: %s\n", run.Dir)

	notify := func(ev supervisor.Event) {
		switch ev.Status {
		case supervisor.StatusRunning:
			fmt.Printf("[%s] %s generating...\n", ev.ChapterID, ev.Title)
		case supervisor.StatusRetrying:
			fmt.Printf("[%s] attempt %d failed (%s), retrying\n", ev.ChapterID, ev.Attempt, ev.Reason)
		case supervisor.StatusCompleted:
			if ev.Warning != "" {
				fmt.Printf("[%s] done with warning: %s\n", ev.ChapterID, ev.Warning)
			} else {
				fmt.Printf("[%s] done (attempt %d)\n", ev.ChapterID, ev.Attempt)
			}
		case supervisor.StatusError:
			fmt.Printf("[%s] attempt %d error: %s\n", ev.ChapterID, ev.Attempt, ev.Error)
		}
	}

	sup := supervisor.New(writer, run, supervisor.Config{MaxAttempts: cfg.Generation.MaxAttempts}, notify, logger)

	var chapters []map[string]any
	for _, plan := range plans {
		payload, err := sup.GenerateChapter(cmd.Context(), plan, sharedContext)
		if err != nil {
			return fmt.Errorf("failed to generate report: %w", err)
		}
		chapters = append(chapters, payload)
	}

	doc := composer.New(logger).BuildDocument(run.ReportID, map[string]any{"template": args[0]}, chapters, nil)
	return writeDocument(run.Dir, doc)
}

func runValidate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read chapter file: %w", err)
	}
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("failed to parse chapter JSON: %w", err)
	}

	ok, issues := validator.Validate(payload)
	if ok {
		fmt.Println("chapter is valid")
		return nil
	}
	for _, issue := range issues {
		fmt.Println(issue)
	}
	return fmt.Errorf("chapter has %d validation issues", len(issues))
}

func runCompose(cmd *cobra.Command, args []string) error {
	st, err := store.New(cfg.Output.BaseDir, logger)
	if err != nil {
		return err
	}
	run, err := st.OpenRun(args[0])
	if err != nil {
		return err
	}
	chapters, err := run.LoadChapters()
	if err != nil {
		return err
	}
	if len(chapters) == 0 {
		return fmt.Errorf("run %s has no finalized chapters", args[0])
	}

	m := run.Manifest()
	doc := composer.New(logger).BuildDocument(run.ReportID, m.Metadata, chapters, nil)
	return writeDocument(run.Dir, doc)
}

func writeDocument(dir string, doc composer.Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	path := filepath.Join(dir, "document.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	fmt.Printf("document: %s (%d chapters)\n", path, len(doc.Chapters))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
