package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/amishk599/jobinbox/internal/config"
	"github.com/amishk599/jobinbox/internal/filter"
	"github.com/amishk599/jobinbox/internal/model"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured sources",
	Long:  "Reads the config and prints a table of every source with its lookback, request delay and filter rules.",
	RunE:  runSources,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

func runSources(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	enabled := make(map[model.Source]bool)
	for _, src := range cfg.EnabledSources() {
		enabled[src] = true
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Source", "Status", "Lookback", "Min Delay", "Detail", "Filters"})

	for _, src := range model.AllSources {
		state := "disabled"
		if enabled[src] {
			state = "enabled"
		}
		q := cfg.Query(src)
		t.AppendRow(table.Row{
			src,
			state,
			q.Lookback,
			cfg.RateLimit.MinDelayFor(src),
			sourceDetail(cfg, src),
			describeRules(cfg.FiltersFor(src)),
		})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d enabled", len(enabled))})
	t.Render()
	return nil
}

func sourceDetail(cfg *config.Config, src model.Source) string {
	switch src {
	case model.SourceLinkedIn:
		return fmt.Sprintf("%d searches, %d pages", len(cfg.Sources.LinkedIn.Searches), cfg.Sources.LinkedIn.Pages)
	case model.SourceIndeed:
		return cfg.Sources.Indeed.MasterCSV
	case model.SourceGreenhouse:
		return fmt.Sprintf("%d boards", len(cfg.Sources.Greenhouse.Boards))
	case model.SourceLever:
		return fmt.Sprintf("%d boards", len(cfg.Sources.Lever.Boards))
	}
	return ""
}

func describeRules(r filter.Rules) string {
	return fmt.Sprintf("title -%d +%d, desc -%d, company -%d, lang %d",
		len(r.TitleExclude), len(r.TitleInclude), len(r.DescExclude), len(r.CompanyExclude), len(r.Languages))
}
