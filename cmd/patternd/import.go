package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fairwayops/patternd/internal/config"
	"github.com/fairwayops/patternd/internal/conversation"
	"github.com/fairwayops/patternd/internal/importer"
	"github.com/fairwayops/patternd/internal/logging"
	"github.com/fairwayops/patternd/internal/store"
)

var importCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Import an SMS history CSV and learn patterns from it",
	Long: `Import parses a historical SMS export, groups messages into
conversations, extracts question/answer patterns, and stores them.

Examples:
  # Import an OpenPhone message export
  patternd import history.csv

  # With a custom config
  patternd import --config ./patternd.yaml history.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: "console",
	})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logging.Sync(logger) }()

	dbPath, err := config.ExpandPath(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("resolving store path: %w", err)
	}
	st, err := store.NewSQLiteStore(dbPath, logger.Named("store"))
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	engine, closeEngine, err := buildEngine(cfg, st, logger)
	if err != nil {
		return err
	}
	defer closeEngine()

	extractor, refiner, err := buildExtraction(cfg)
	if err != nil {
		return err
	}

	imp := importer.New(
		st,
		engine,
		conversation.NewGrouper(cfg.Conversation.GapWindow),
		extractor,
		refiner,
		nil,
		0,
		logger.Named("importer"),
	)
	defer imp.Close()

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening import file: %w", err)
	}
	defer f.Close()

	ctx := cmd.Context()
	job, err := imp.StartImport(ctx, args[0], f)
	if err != nil {
		return err
	}

	// Poll until the background job settles.
	for {
		job, err = imp.GetJob(ctx, job.ID)
		if err != nil {
			return err
		}
		if job.Status == store.JobCompleted || job.Status == store.JobFailed {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}

	logger.Info("import finished",
		zap.String("status", job.Status),
		zap.Int("conversations", job.ConversationsSeen),
		zap.Int("patterns_created", job.PatternsCreated),
		zap.Int("patterns_merged", job.PatternsMerged),
		zap.Int("skipped", job.Skipped),
		zap.Int("errors", job.ErrorCount),
	)

	fmt.Printf("Import %s: %d conversations, %d patterns created, %d merged, %d skipped, %d errors\n",
		job.Status, job.ConversationsSeen, job.PatternsCreated, job.PatternsMerged, job.Skipped, job.ErrorCount)
	if job.Status == store.JobFailed {
		return fmt.Errorf("import failed: %s", job.Error)
	}
	return nil
}
