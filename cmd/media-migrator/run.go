package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	apiserver "github.com/flowbot/media-migrator/internal/api_server"
	"github.com/flowbot/media-migrator/internal/blob"
	"github.com/flowbot/media-migrator/internal/documents"
	"github.com/flowbot/media-migrator/internal/fetch"
	"github.com/flowbot/media-migrator/internal/migrator"
	"github.com/flowbot/media-migrator/internal/recorder"
	"github.com/flowbot/media-migrator/internal/registrar"
	"github.com/flowbot/media-migrator/internal/store"
	"github.com/flowbot/media-migrator/pkg/migrations"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	dryRun      bool
	concurrency int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Migrate every media url referenced by active flows",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, done, err := setup()
		if err != nil {
			return errors.Wrap(err, "reading configuration")
		}
		defer done()

		if concurrency > 0 {
			cfg.Pipeline.Concurrency = concurrency
		}

		// an unknown provider aborts the batch before anything is touched
		uploader, err := blob.NewFromConfig(cfg.Cloud)
		if err != nil {
			return errors.Wrap(err, "configuring blob storage")
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		zap.S().Info("initializing data store")
		db, err := store.InitDB(cfg)
		if err != nil {
			return errors.Wrap(err, "initializing data store")
		}
		if err := migrations.MigrateStore(db, cfg); err != nil {
			return errors.Wrap(err, "running migrations")
		}

		s := store.NewStore(db)
		defer s.Close()

		docs, err := documents.Connect(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = docs.Close(context.Background()) }()

		if cfg.Service.MetricsAddress != "" {
			listener, err := net.Listen("tcp", cfg.Service.MetricsAddress)
			if err != nil {
				return errors.Wrap(err, "creating metrics listener")
			}
			server := apiserver.NewMetricServer(cfg.Service.MetricsAddress, listener, cfg.Service.LogLevel)
			go func() {
				if err := server.Run(ctx); err != nil {
					zap.S().Named("metrics_server").Errorw("metrics server stopped", "error", err)
				}
			}()
		}

		httpClient := &http.Client{}
		pipeline := migrator.NewPipeline(
			fetch.NewValidator(httpClient, cfg.Pipeline.RequestTimeout),
			fetch.NewDownloader(httpClient, cfg.Pipeline.ChunkSize, cfg.Pipeline.DownloadTimeout),
			uploader,
			registrar.New(cfg.Registrar, registrar.WithRequestTimeout(cfg.Pipeline.RequestTimeout)),
			recorder.New(s.Mapping(), docs),
			migrator.WithStagingDir(cfg.Pipeline.StagingDir),
			migrator.WithDryRun(dryRun),
		)

		orchestrator := migrator.NewOrchestrator(docs, pipeline, migrator.NewBudget(cfg.Pipeline.Concurrency),
			migrator.WithBatchTimeout(cfg.Pipeline.BatchTimeout),
			migrator.WithVerify(!dryRun),
		)

		zap.S().Infow("starting batch", "provider", uploader.Type(), "dry_run", dryRun, "concurrency", cfg.Pipeline.Concurrency)
		report, err := orchestrator.Run(ctx)
		if err != nil {
			return err
		}

		if err := report.Render(cmd.OutOrStdout()); err != nil {
			return err
		}

		exitCode = report.ExitCode()
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Discover and validate urls without changing anything")
	runCmd.Flags().IntVar(&concurrency, "concurrency", 0, "Number of urls migrated at once (overrides MIGRATOR_CONCURRENCY)")
}
