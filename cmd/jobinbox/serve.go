package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/amishk599/jobinbox/internal/httpapi"
	"github.com/amishk599/jobinbox/internal/metrics"
	"github.com/amishk599/jobinbox/internal/scheduler"
	"github.com/amishk599/jobinbox/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and scheduled runs",
	Long:  "Start the HTTP API and, when schedule.cron is set, the run scheduler; blocks until SIGINT/SIGTERM.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg := mustLoadConfig(logger)

	logger.Info("config loaded",
		"sources", cfg.EnabledSources(),
		"owner", cfg.Owner,
		"addr", cfg.Server.Addr,
		"schedule", cfg.Schedule.Cron,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Database.URL)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	orch, err := newOrchestrator(ctx, cfg, st, m, logger)
	if err != nil {
		logger.Error("failed to build sources", "error", err)
		os.Exit(1)
	}

	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpapi.NewRouter(orch, st, httpapi.Options{
		Owner:       cfg.Owner,
		CORSOrigins: cfg.Server.CORSOrigins,
		Gatherer:    reg,
		Logger:      logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpapi.Serve(gctx, cfg.Server.Addr, router, logger)
	})

	if cfg.Schedule.Cron != "" {
		sched, err := scheduler.NewScheduler(orch, []scheduler.Entry{
			{Spec: cfg.Schedule.Cron, Request: cfg.Schedule.Request},
		}, cfg.Schedule.RunOnStart, logger)
		if err != nil {
			logger.Error("invalid schedule", "error", err)
			os.Exit(1)
		}
		g.Go(func() error { return sched.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		orch.Wait()
		os.Exit(1)
	}

	// Let a run in flight record its outcome before the store closes.
	orch.Wait()
	logger.Info("goodbye")
	return nil
}
