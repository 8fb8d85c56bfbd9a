package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/amishk599/jobinbox/internal/ingest"
	"github.com/amishk599/jobinbox/internal/model"
	"github.com/amishk599/jobinbox/internal/progress"
	"github.com/amishk599/jobinbox/internal/status"
	"github.com/amishk599/jobinbox/internal/store"
)

var (
	runDryRun      bool
	runSourceNames []string
	runWindow      string
	runManage      string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one ingestion in the foreground",
	Long:  "Fetches every selected source once, saves new listings and exits. With --dry-run nothing is written.",
	RunE:  runOnce,
}

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "fetch and filter without touching the database")
	runCmd.Flags().StringSliceVarP(&runSourceNames, "source", "s", nil, "sources to run (default: all enabled)")
	runCmd.Flags().StringVarP(&runWindow, "window", "w", "", `how far back to look, e.g. "24h" or "1 week"`)
	runCmd.Flags().StringVarP(&runManage, "manage", "m", "add", "inbox housekeeping before the run: add, archive or delete")
	rootCmd.AddCommand(runCmd)
}

func parseRunRequest() (model.RunRequest, error) {
	req := model.RunRequest{Management: model.Management(runManage)}
	for _, s := range runSourceNames {
		src, ok := model.ParseSource(s)
		if !ok {
			return req, fmt.Errorf("unknown source %q", s)
		}
		req.Sources = append(req.Sources, src)
	}
	if runWindow != "" {
		w, err := model.ParseWindow(runWindow)
		if err != nil {
			return req, err
		}
		req.Window = w
		req.WindowLabel = runWindow
	}
	return req, nil
}

func runOnce(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg := mustLoadConfig(logger)

	req, err := parseRunRequest()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var st ingest.Store
	if runDryRun {
		logger.Info("dry run: nothing will be written")
		st = store.NewNopStore()
	} else {
		db, err := store.Open(ctx, cfg.Database.URL)
		if err != nil {
			logger.Error("failed to open store", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		st = db
	}

	orch, err := newOrchestrator(ctx, cfg, st, nil, logger)
	if err != nil {
		logger.Error("failed to build sources", "error", err)
		os.Exit(1)
	}

	run := func(ctx context.Context) (status.Result, error) { return orch.Run(ctx, req) }

	var res status.Result
	if isatty.IsTerminal(os.Stdout.Fd()) && !debug {
		res, err = progress.Run(ctx, run, orch.Status)
	} else {
		res, err = progress.Plain(ctx, run, orch.Status, logger)
	}
	if err != nil {
		return err
	}
	if res.Status == model.RunFailed {
		return fmt.Errorf("run %s failed: %s", res.RunID, res.Error)
	}
	logger.Info("run complete", "run_id", res.RunID, "new", res.NewRecords)
	return nil
}
