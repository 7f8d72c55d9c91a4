package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/prodexio/prodex/internal/clock"
	"github.com/prodexio/prodex/internal/config"
	"github.com/prodexio/prodex/internal/extract"
	"github.com/prodexio/prodex/internal/fetch"
	"github.com/prodexio/prodex/internal/geo"
	"github.com/prodexio/prodex/internal/logging"
	"github.com/prodexio/prodex/internal/ops"
	"github.com/prodexio/prodex/internal/partition"
	"github.com/prodexio/prodex/internal/stats"
	"github.com/prodexio/prodex/internal/stats/sinks"
	"github.com/prodexio/prodex/internal/store/postgres"
	"github.com/prodexio/prodex/internal/worker"
)

const (
	sourceHTML = "html"
	sourceAPI  = "api"

	shutdownTimeout = 30 * time.Second
)

func newCrawlCmd() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs one partitioned extraction run",
		Long: `Splits the configured listing index range across workers, walks the
selected source (the HTML site or its JSON API mirror), and upserts every
completed profile. Worker statistics are merged into a single run log entry
keyed by a fresh run identifier.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd.Context(), source)
		},
	}
	cmd.Flags().StringVar(&source, "source", sourceHTML, "extraction source: html or api")
	return cmd
}

func runCrawl(ctx context.Context, source string) error {
	if source != sourceHTML && source != sourceAPI {
		return fmt.Errorf("unknown source %q: want %q or %q", source, sourceHTML, sourceAPI)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	runID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate run id: %w", err)
	}

	parts, err := partition.Split(runID.String(), cfg.Run.StartFrom, cfg.Run.MaxCount, cfg.Run.Workers)
	if err != nil {
		return fmt.Errorf("partition run: %w", err)
	}

	reg := prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	runLogs := postgres.NewRunLogStore(pool)
	agg := stats.NewAggregator(
		stats.Config{BufferSize: len(parts), Logger: logger},
		sinks.NewStoreSink(runLogs, logger),
		promSink,
		sinks.NewLogSink(logger),
	)

	var opsSrv *ops.Server
	if cfg.Ops.Enabled {
		opsSrv = ops.NewServer(cfg.Ops.Port, reg, logger)
		go func() {
			if serveErr := opsSrv.Start(); serveErr != nil {
				logger.Error("ops server failed", zap.Error(serveErr))
			}
		}()
	}

	workers, err := buildWorkers(cfg, source, parts, postgres.NewProfileStore(pool), agg, logger)
	if err != nil {
		return err
	}

	logger.Info("run starting",
		zap.String("run_id", runID.String()),
		zap.String("source", source),
		zap.Int("workers", len(workers)),
		zap.Int("start_from", cfg.Run.StartFrom),
		zap.Int("max_count", cfg.Run.MaxCount),
	)

	runErr := worker.RunPool(ctx, workers)

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := agg.Close(closeCtx); err != nil {
		logger.Warn("stats aggregator close failed", zap.Error(err))
	}

	if entry, findErr := runLogs.Find(closeCtx, runID.String()); findErr == nil {
		logger.Info("run finished",
			zap.String("run_id", entry.RunID),
			zap.Int("profiles_added", entry.ProfilesAdded),
			zap.Int("profiles_total", entry.ProfilesTotal),
			zap.Int("errors", entry.ErrorCount),
			zap.Int("retries", entry.RetriesCount),
			zap.Float64("total_spent_seconds", entry.TotalSpentSeconds),
			zap.Float64("seconds_per_profile", entry.SecondsPerProfile()),
		)
	} else {
		logger.Warn("run log entry unavailable", zap.Error(findErr))
	}

	if opsSrv != nil {
		if err := opsSrv.Shutdown(closeCtx); err != nil {
			logger.Warn("ops server shutdown failed", zap.Error(err))
		}
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("run crawl: %w", runErr)
	}
	return nil
}

func buildWorkers(
	cfg config.Config,
	source string,
	parts []partition.Partition,
	profiles *postgres.ProfileStore,
	agg *stats.Aggregator,
	logger *zap.Logger,
) ([]*worker.Worker, error) {
	workers := make([]*worker.Worker, 0, len(parts))
	for _, part := range parts {
		fetcher, err := fetch.New(fetch.Config{
			UserAgent:  cfg.HTTP.UserAgent,
			ProxyAddr:  cfg.HTTP.ProxyAddr,
			Timeout:    cfg.FetchTimeout(),
			MaxRetries: cfg.HTTP.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("init fetcher: %w", err)
		}

		resolver := geo.NewResolver(geo.Config{
			Endpoint:      cfg.Geo.Endpoint,
			Bias:          cfg.Geo.Bias,
			Timeout:       cfg.GeoTimeout(),
			RatePerSecond: cfg.Geo.RatePerSecond,
		}, logger)

		var pipe extract.Pipeline
		switch source {
		case sourceAPI:
			pipe = extract.NewAPIPipeline(extract.APIConfig{
				BaseURL:   cfg.API.BaseURL,
				Version:   cfg.API.Version,
				PageSize:  cfg.Run.ItemsOnPage,
				Start:     part.Lower,
				Max:       part.Upper,
				SiteID:    cfg.API.SiteID,
				Locale:    cfg.API.Locale,
				AppAgent:  cfg.API.AppAgent,
				AppName:   cfg.API.AppName,
				UserAgent: cfg.API.UserAgent,
			}, fetcher, resolver, logger)
		default:
			pipe = extract.NewHTMLPipeline(extract.HTMLConfig{
				ListURL: listPageURL(cfg.Source.ListURL, part.Lower, cfg.Run.ItemsOnPage),
				Quota:   part.Width(),
			}, fetcher, resolver, logger)
		}

		workers = append(workers, &worker.Worker{
			Partition: part,
			Pipeline:  pipe,
			Sink:      profiles,
			Retries:   fetcher,
			Reporter:  agg,
			Clock:     clock.System{},
			Logger:    logger,
		})
	}
	return workers, nil
}

// listPageURL maps a partition's lower bound onto the listing's page offset
// so each worker starts on its own page.
func listPageURL(base string, lower, itemsOnPage int) string {
	if lower <= 0 || itemsOnPage <= 0 {
		return base
	}
	page := lower / itemsOnPage
	if page == 0 {
		return base
	}
	return fmt.Sprintf("%s?pg=%d", base, page+1)
}
