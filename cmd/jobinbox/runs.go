package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/amishk599/jobinbox/internal/store"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show the run history",
	Long:  "Prints the most recent ingestion runs, newest first.",
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "number of runs to show")
	rootCmd.AddCommand(runsCmd)
}

// openStore loads the config and opens its database.
func openStore(ctx context.Context) (*store.Store, string, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, "", fmt.Errorf("load config: %w", err)
	}
	st, err := store.Open(ctx, cfg.Database.URL)
	if err != nil {
		return nil, "", err
	}
	return st, cfg.Owner, nil
}

func runRuns(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, owner, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(ctx, owner, runsLimit)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Run", "Started", "Took", "Sources", "Window", "New", "Status", "Error"})
	for _, r := range runs {
		took := "-"
		if r.FinishedAt != nil {
			took = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		t.AppendRow(table.Row{
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			took,
			r.SourceFilter,
			r.RequestedWindow,
			r.NewRecordCount,
			r.Status,
			r.Error,
		})
	}
	t.Render()
	return nil
}
