package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/skuwatch/internal/config"
	"github.com/andresuchdata/skuwatch/internal/dataset"
	"github.com/andresuchdata/skuwatch/internal/export"
	"github.com/andresuchdata/skuwatch/internal/pipeline"
	"github.com/andresuchdata/skuwatch/internal/repository/postgres"
	"github.com/andresuchdata/skuwatch/pkg/logger"
)

const dateLayout = "2006-01-02"

func main() {
	if err := godotenv.Load(".env"); err != nil {
		logger.Log.Debug().Err(err).Msg("no .env file loaded")
	}

	app := &cli.App{
		Name:  "analyze",
		Usage: "Run inventory analytics over a weekly data snapshot",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (trace, debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			logger.SetLevel(c.String("log-level"))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Analyze a snapshot directory and export the results",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "data-dir",
						Usage:   "Directory containing the snapshot CSV files",
						Value:   "./data/input",
						EnvVars: []string{"DATA_DIR"},
					},
					&cli.StringFlag{
						Name:    "as-of",
						Usage:   "Analysis date (YYYY-MM-DD), defaults to the latest week in the data",
						EnvVars: []string{"ANALYSIS_DATE"},
					},
					&cli.StringFlag{
						Name:    "output-dir",
						Usage:   "Directory to write exported results to",
						EnvVars: []string{"EXPORT_OUTPUT_DIR"},
					},
					&cli.BoolFlag{
						Name:  "persist",
						Usage: "Save results to the configured PostgreSQL database",
					},
					&cli.BoolFlag{
						Name:  "upload",
						Usage: "Upload exported files to the configured S3 bucket",
					},
				},
				Action: runAnalysis,
			},
			{
				Name:  "export",
				Usage: "Upload previously exported result files to the configured S3 bucket",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output-dir",
						Usage:   "Directory holding the exported result files",
						EnvVars: []string{"EXPORT_OUTPUT_DIR"},
					},
					&cli.StringFlag{
						Name:  "date",
						Usage: "Analysis date of the run to upload (YYYY-MM-DD)",
					},
				},
				Action: uploadExports,
			},
			{
				Name:   "validate-config",
				Usage:  "Load and validate the configuration, then exit",
				Action: validateConfig,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("analyze failed")
	}
}

func runAnalysis(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	snap, err := dataset.LoadSnapshot(c.String("data-dir"))
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	if asOf := c.String("as-of"); asOf != "" {
		t, err := time.Parse(dateLayout, asOf)
		if err != nil {
			return fmt.Errorf("invalid --as-of date %q: %w", asOf, err)
		}
		snap.AnalysisDate = t
	}

	runner, err := pipeline.NewRunner(cfg)
	if err != nil {
		return fmt.Errorf("failed to build runner: %w", err)
	}

	result, err := runner.Run(c.Context, snap)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	outputDir := cfg.Export.OutputDir
	if dir := c.String("output-dir"); dir != "" {
		outputDir = dir
	}

	paths, err := export.NewWriter(outputDir).Write(result)
	if err != nil {
		return fmt.Errorf("failed to export results: %w", err)
	}

	if c.Bool("persist") {
		db, err := postgres.NewDB(&cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		repo := postgres.NewResultsRepository(db)
		if err := repo.SaveRun(c.Context, result); err != nil {
			return fmt.Errorf("failed to persist results: %w", err)
		}
	}

	if c.Bool("upload") || cfg.Export.S3.Enabled {
		uploader, err := export.NewUploader(cfg.Export.S3)
		if err != nil {
			return fmt.Errorf("failed to build uploader: %w", err)
		}
		prefix := result.AnalysisDate.Format(dateLayout)
		if err := uploader.Upload(c.Context, prefix, paths); err != nil {
			return fmt.Errorf("failed to upload exports: %w", err)
		}
	}

	logger.Log.Info().
		Str("analysis_date", result.AnalysisDate.Format(dateLayout)).
		Int("alerts", len(result.Alerts)).
		Msg("analysis complete")

	return nil
}

func uploadExports(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	date := c.String("date")
	if date != "" {
		if _, err := time.Parse(dateLayout, date); err != nil {
			return fmt.Errorf("invalid --date %q: %w", date, err)
		}
	}

	outputDir := cfg.Export.OutputDir
	if dir := c.String("output-dir"); dir != "" {
		outputDir = dir
	}

	pattern := filepath.Join(outputDir, "*")
	if date != "" {
		pattern = filepath.Join(outputDir, "*_"+date+".*")
	}
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return fmt.Errorf("failed to list exports: %w", err)
	}
	if len(paths) == 0 {
		return fmt.Errorf("no export files matching %s", pattern)
	}

	uploader, err := export.NewUploader(cfg.Export.S3)
	if err != nil {
		return fmt.Errorf("failed to build uploader: %w", err)
	}

	return uploader.Upload(c.Context, date, paths)
}

func validateConfig(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Log.Info().
		Int("workers", cfg.Pipeline.Workers).
		Str("fill_policy", cfg.Features.FillPolicy).
		Msg("configuration valid")
	return nil
}
