package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/dvloznov/cafe-etl/internal/config"
	"github.com/dvloznov/cafe-etl/internal/extract"
	"github.com/dvloznov/cafe-etl/internal/load"
	"github.com/dvloznov/cafe-etl/internal/logger"
	"github.com/dvloznov/cafe-etl/internal/pipeline"
	"github.com/dvloznov/cafe-etl/internal/store/postgres"
)

func main() {
	_ = godotenv.Load() // .env is optional

	configPath := flag.String("config", "", "path to config.json (defaults apply when absent)")
	dryRun := flag.Bool("dry-run", false, "run transform stages only, skip the database load")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fallback := logger.New("info")
		fallback.Fatal().Err(err).Msg("loading configuration failed")
	}
	log := logger.New(cfg.LogLevel)

	paths := flag.Args()
	if len(paths) == 0 {
		log.Fatal().Msg("no input files; pass CSV paths or gs:// URIs as arguments")
	}

	ctx := logger.WithContext(context.Background(), log)

	extractor := extract.New(cfg, logger.Component(log, "extract"))
	raw, err := extractor.ExtractBatch(ctx, paths)
	if err != nil {
		log.Fatal().Err(err).Msg("extraction failed")
	}
	if len(raw) == 0 {
		log.Warn().Msg("no data extracted from the selected files, nothing to do")
		return
	}
	log.Info().Int("rows", len(raw)).Int("files", len(paths)).Msg("starting ETL run")

	var recordLoader pipeline.RecordLoader
	if *dryRun {
		log.Info().Msg("dry run: skipping database load")
	} else {
		st, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			log.Fatal().Err(err).Msg("connecting to store failed")
		}
		defer st.Close()
		recordLoader = load.New(st, logger.Component(log, "load"))
	}

	summary, runErr := pipeline.NewETLPipeline(cfg, recordLoader, log).Run(ctx, raw)
	report(log, summary)

	if runErr != nil {
		log.Fatal().Err(runErr).Msg("ETL run aborted")
	}
	fmt.Println("ETL run completed successfully.")
}

func report(log zerolog.Logger, summary pipeline.Summary) {
	log.Info().
		Int("rows_read", summary.RowsRead).
		Int("duplicates_removed", summary.DuplicatesRemoved).
		Int("pii_fields_redacted", summary.PIIFieldsRedacted).
		Int("normalization_errors", summary.NormalizationErrors).
		Int("transactions_loaded", summary.TransactionsLoaded).
		Int("transactions_skipped_as_duplicate", summary.TransactionsSkipped).
		Int("load_errors", summary.LoadErrors).
		Msg("run summary")
	for _, reject := range summary.Rejects {
		log.Warn().
			Int("line", reject.Raw.Line).
			Str("source", reject.Raw.Source).
			Str("reason", string(reject.Reason)).
			Err(reject.Err).
			Msg("rejected record")
	}
}
