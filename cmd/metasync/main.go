package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"contrib.go.opencensus.io/exporter/prometheus"
	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"
	"go.opencensus.io/stats/view"
	"golang.org/x/xerrors"

	"github.com/metasync/metasync/lib/synclog"
	"github.com/metasync/metasync/metrics"
	"github.com/metasync/metasync/node/config"
	"github.com/metasync/metasync/node/objstore"
	"github.com/metasync/metasync/node/replication"
	"github.com/metasync/metasync/node/syncqueue"
)

var log = logging.Logger("main")

// FlagConfigPath Flag
const FlagConfigPath = "config"

func main() {
	synclog.SetupLogLevels()

	app := &cli.App{
		Name:                 "metasync",
		Usage:                "Background bucket replication for file metadata objects",
		Version:              replication.Version,
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    FlagConfigPath,
				Aliases: []string{"c"},
				EnvVars: []string{"METASYNC_CONFIG"},
				Value:   "./metasync.toml",
				Usage:   "path to the toml config file",
			},
		},
		Commands: []*cli.Command{
			runCmd,
		},
	}
	app.Setup()

	if err := app.Run(os.Args); err != nil {
		log.Warnf("%+v", err)
		os.Exit(1)
	}
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "Start the replication service",
	Action: func(cctx *cli.Context) error {
		log.Info("starting metasync replication service")

		cfg, err := config.FromFile(cctx.String(FlagConfigPath))
		if err != nil {
			return err
		}
		if len(cfg.Policies) == 0 {
			return xerrors.New("no bucket policies configured")
		}

		ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		policy, err := replication.NewPolicy(cfg.Policies)
		if err != nil {
			return err
		}

		// the instance id is recorded as lock owner on claimed rows
		owner := uuid.NewString()
		log.Infof("replication instance id: %s", owner)

		queue, err := syncqueue.InitSQL(cfg.DatabaseAddress, owner, policy.DesiredCounts())
		if err != nil {
			return xerrors.Errorf("init sync queue store: %w", err)
		}

		store, err := objstore.NewS3Client(ctx, cfg.Buckets)
		if err != nil {
			return xerrors.Errorf("init object store client: %w", err)
		}

		stats, err := replication.NewStats(cfg.RedisAddress)
		if err != nil {
			return xerrors.Errorf("init stats recorder: %w", err)
		}

		ctrl := replication.NewController(queue, store, policy, stats, cfg.WorkerCount, cfg.WorkerURL)
		ctrl.StartReplication(ctx)

		if err := view.Register(metrics.DefaultViews...); err != nil {
			return xerrors.Errorf("register metric views: %w", err)
		}

		exporter, err := prometheus.NewExporter(prometheus.Options{Namespace: "metasync"})
		if err != nil {
			return xerrors.Errorf("create prometheus exporter: %w", err)
		}

		srv := &http.Server{
			Addr:              cfg.ListenAddress,
			Handler:           syncerHandler(ctrl, exporter),
			ReadHeaderTimeout: 30 * time.Second,
		}

		go func() {
			<-ctx.Done()
			log.Info("shutting down")

			sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				log.Errorf("shutting down server failed: %s", err)
			}
		}()

		log.Infof("admin api listening on %s", cfg.ListenAddress)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	},
}
