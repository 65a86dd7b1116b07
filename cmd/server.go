package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signal-radar/internal/api"
	"signal-radar/internal/config"
	"signal-radar/internal/engagement"
	"signal-radar/internal/gateway"
	"signal-radar/internal/logging"
	"signal-radar/internal/metrics"
	"signal-radar/internal/model"
	"signal-radar/internal/monitor"
	"signal-radar/internal/notifier"
	"signal-radar/internal/scheduler"
	"signal-radar/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

type schedulerRunner interface {
	Start(ctx context.Context) error
	RunOnce(ctx context.Context) (scheduler.Report, error)
}

type engagementRunner interface {
	Run(ctx context.Context, req engagement.Request) (*model.EngagementScan, []model.Lead, error)
	Shutdown(ctx context.Context) error
}

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// appDeps 装配好的运行时依赖。
type appDeps struct {
	sched   schedulerRunner
	engage  engagementRunner
	handler http.Handler
	logger  logrus.FieldLogger
}

type depsBuilder func(config.AppConfig) (appDeps, func(), error)

func main() {
	if err := newRootCmd(buildDeps).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(build depsBuilder) *cobra.Command {
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the scan scheduler and HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serveCmd(cmd.Context(), build)
		},
	}

	scan := &cobra.Command{
		Use:   "scan",
		Short: "Run one scan cycle and print the report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			report, err := runOnceManual(cmd.Context(), cfg, build)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "due=%d scanned=%d unmatched=%d failed=%d signals=%d\n",
				report.Due, report.Scanned, report.Unmatched, report.Failed, report.Signals)
			return nil
		},
	}

	var req engagement.Request
	engage := &cobra.Command{
		Use:   "engage <post-url>",
		Short: "Harvest and enrich the engagers of a post, writing CSV to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			req.PostURL = args[0]
			return runEngage(cmd.Context(), cfg, build, req, cmd.OutOrStdout())
		},
	}
	engage.Flags().StringSliceVar(&req.ReactionTypes, "reactions", nil, "reaction types to scrape, e.g. LIKE,PRAISE (default all)")
	engage.Flags().BoolVar(&req.IncludeComments, "comments", true, "also scrape comments")
	engage.Flags().IntVar(&req.LimitPerType, "limit", 0, "max engagers per type")

	root := &cobra.Command{
		Use:           "signal-radar",
		Short:         "Profile keyword signals and post engagement leads",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	root.AddCommand(serve, scan, engage)
	return root
}

func serveCmd(parent context.Context, build depsBuilder) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	deps, cleanup, err := build(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: deps.handler, ReadHeaderTimeout: 10 * time.Second}
	deps.logger.WithField("addr", cfg.Server.Addr).Info("listening")
	err = runServer(ctx, srv, deps.sched, shutdownTimeout)
	stop()
	return errors.Join(err, drainEngagements(deps.engage, deps.logger, shutdownTimeout))
}

// drainEngagements 取消进行中的互动扫描，并在 timeout 内等待它们写入终态。
func drainEngagements(engage engagementRunner, logger logrus.FieldLogger, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := engage.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("engagement scans still running at shutdown")
		return err
	}
	return nil
}

// buildDeps 按配置装配存储、网关、调度与 API。
func buildDeps(cfg config.AppConfig) (appDeps, func(), error) {
	logger := logging.New(cfg.Log.Level)
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	store, err := storage.NewStore(cfg.Database.Path)
	if err != nil {
		return appDeps{}, func() {}, fmt.Errorf("init store: %w", err)
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.WithError(err).Warn("close store failed")
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	gw := gateway.NewClient(cfg.Gateway, nil, logger, m)
	webhook := notifier.NewWebhookNotifier(cfg.Webhook, nil)
	sched := scheduler.NewScheduler(gw, store, webhook, notifier.NewLogNotifier(logger), cfg.Scheduler, logger, m)
	engage := engagement.NewService(engagement.NewPipeline(gw, cfg.Engagement, logger, m), store)

	handler := api.NewHandler(api.Deps{
		Signals:    store,
		Scheduler:  sched,
		Monitor:    monitor.NewService(store),
		Engagement: engage,
		Metrics:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:     logger,
	})

	return appDeps{sched: sched, engage: engage, handler: handler, logger: logger}, cleanup, nil
}

// runServer 同时运行调度器与 HTTP 服务，ctx 取消后优雅关闭。
func runServer(ctx context.Context, srv httpServer, sched schedulerRunner, timeout time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	schedDone := make(chan error, 1)
	go func() {
		schedDone <- sched.Start(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), timeout)
	defer stop()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil && err == nil {
		err = fmt.Errorf("shutdown: %w", shutdownErr)
	}

	select {
	case serr := <-schedDone:
		if serr != nil && !errors.Is(serr, context.Canceled) && err == nil {
			err = fmt.Errorf("scheduler: %w", serr)
		}
	case <-shutdownCtx.Done():
	}
	return err
}

// runOnceManual 装配依赖后执行一个扫描周期。
func runOnceManual(ctx context.Context, cfg config.AppConfig, build depsBuilder) (scheduler.Report, error) {
	deps, cleanup, err := build(cfg)
	if err != nil {
		return scheduler.Report{}, err
	}
	defer cleanup()
	return deps.sched.RunOnce(ctx)
}

// runEngage 同步执行一次互动扫描并把 CSV 写到 w。
func runEngage(ctx context.Context, cfg config.AppConfig, build depsBuilder, req engagement.Request, w io.Writer) error {
	deps, cleanup, err := build(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	scan, leads, err := deps.engage.Run(ctx, req)
	if err != nil {
		return err
	}
	deps.logger.WithFields(logrus.Fields{"scan_id": scan.ID, "leads": len(leads)}).Info("engagement scan finished")
	return engagement.WriteCSV(w, leads)
}
