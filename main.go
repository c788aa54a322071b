// Command engclass runs the adaptive vocabulary classroom.
package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/engclass/internal/config"
	"github.com/example/engclass/internal/database"
	"github.com/example/engclass/internal/excel"
	"github.com/example/engclass/internal/logging"
	"github.com/example/engclass/internal/spaced_repetition"
)

var (
	// configPath is an optional YAML config file
	configPath string
	// studentID overrides the configured student
	studentID string

	importSheet  string
	importDryRun bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "engclass",
	Short: "Adaptive vocabulary classroom for one teacher and one student",
	Long: `engclass runs a live vocabulary session between a teacher chat and a student chat:
warm-up reviews, new word intake, drills, an acceptance gate and remediation of lapsed words.`,
	SilenceUsage: true,
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import catalog words from an .xlsx or .csv file",
	Long: `Import catalog words. The first row names the columns:
id, form, meaning, phonetic, syllables, audio, image, mnemonic, analogy,
contexts, confusables, distractors. Only form and meaning are required.

Examples:
  engclass import words.xlsx
  engclass import words.csv --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var dueCmd = &cobra.Command{
	Use:   "due",
	Short: "List words due for review",
	RunE:  runDue,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count words per mastery tier",
	RunE:  runStats,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.AddCommand(serveCmd, importCmd, dueCmd, statsCmd)

	importCmd.Flags().StringVar(&importSheet, "sheet", "", "Sheet to import (defaults to the first)")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Validate without saving")

	for _, c := range []*cobra.Command{dueCmd, statsCmd} {
		c.Flags().StringVar(&studentID, "student", "", "Student id (defaults to student_id from config)")
	}
}

// setup loads the config, builds the logger and opens the database
func setup() (*config.Config, *zap.Logger, *sqlx.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := database.Connect(database.Config{Type: cfg.DBType, DSN: cfg.DBDSN})
	if err != nil {
		return nil, nil, nil, err
	}
	if studentID != "" {
		cfg.StudentID = studentID
	}
	return cfg, logger, db, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	_, logger, db, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()
	defer logger.Sync()

	result, err := excel.ImportWords(cmd.Context(), excel.ImportConfig{
		FilePath:  args[0],
		SheetName: importSheet,
		DryRun:    importDryRun,
	}, database.NewWordRepository(db))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Processed %d rows: %d imported, %d skipped\n", result.TotalProcessed, result.Imported, result.Skipped)
	for _, e := range result.Errors {
		fmt.Fprintln(out, "  "+e)
	}
	logger.Info("catalog import finished",
		zap.String("file", args[0]),
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped))
	return nil
}

func runDue(cmd *cobra.Command, _ []string) error {
	cfg, logger, db, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()
	defer logger.Sync()

	ctx := cmd.Context()
	tracker := spaced_repetition.NewTracker(database.NewMasteryRepository(db, cfg.StudentID))
	due, err := tracker.DueWords(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	words := database.NewWordRepository(db)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WORD\tFORM\tREVIEWS\tDUE")
	for _, rec := range due {
		form := formOf(ctx, words, rec.WordID)
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", rec.WordID, form, rec.ReviewCount, rec.NextDueAt.Format(time.DateTime))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d due for %s\n", len(due), cfg.StudentID)
	return nil
}

func formOf(ctx context.Context, words *database.WordRepository, id string) string {
	w, err := words.GetWordByID(ctx, id)
	if err != nil || w == nil {
		return "?"
	}
	return w.Form
}

func runStats(cmd *cobra.Command, _ []string) error {
	cfg, logger, db, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()
	defer logger.Sync()

	tracker := spaced_repetition.NewTracker(database.NewMasteryRepository(db, cfg.StudentID))
	stats, err := tracker.Stats(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: pending %d, yellow %d, red %d, green %d\n",
		cfg.StudentID, stats.Pending, stats.Yellow, stats.Red, stats.Green)
	return nil
}
