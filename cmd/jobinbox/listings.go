package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/amishk599/jobinbox/internal/model"
	"github.com/amishk599/jobinbox/internal/store"
)

var (
	listStatus string
	listLimit  int
)

var listingsCmd = &cobra.Command{
	Use:   "listings",
	Short: "Browse and triage saved listings",
}

var listingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print saved listings, newest first",
	Args:  cobra.NoArgs,
	RunE:  runListingsList,
}

var listingsStatusCmd = &cobra.Command{
	Use:   "status <id> <status>",
	Short: "Move a listing to another status",
	Long:  "Moves a listing along its workflow. Moving to applied records today's date as the application date.",
	Args:  cobra.ExactArgs(2),
	RunE:  runListingsStatus,
}

var listingsResetDateCmd = &cobra.Command{
	Use:   "reset-date <id>",
	Short: "Clear a listing's application date",
	Args:  cobra.ExactArgs(1),
	RunE:  runListingsResetDate,
}

func init() {
	listingsListCmd.Flags().StringVar(&listStatus, "status", "", "only show listings with this status")
	listingsListCmd.Flags().IntVarP(&listLimit, "limit", "n", 50, "number of listings to show")
	listingsCmd.AddCommand(listingsListCmd, listingsStatusCmd, listingsResetDateCmd)
	rootCmd.AddCommand(listingsCmd)
}

func runListingsList(cmd *cobra.Command, args []string) error {
	f := store.ListFilter{Limit: listLimit}
	if listStatus != "" {
		s, err := model.ParseStatus(listStatus)
		if err != nil {
			return err
		}
		f.Status = s
	}

	ctx := cmd.Context()
	st, owner, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	listings, err := st.ListListings(ctx, owner, f)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Title", "Company", "Location", "Posted", "Source", "Status", "Applied"})
	for _, l := range listings {
		applied := ""
		if l.ApplicationDate != nil {
			applied = l.ApplicationDate.Format(time.DateOnly)
		}
		t.AppendRow(table.Row{l.ID, l.Title, l.Company, l.Location, l.PostedDate, l.Source, l.Status, applied})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d listings", len(listings))})
	t.Render()
	return nil
}

func runListingsStatus(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid listing id %q", args[0])
	}
	to, err := model.ParseStatus(args[1])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	st, owner, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	l, err := st.UpdateStatus(ctx, owner, id, to, time.Now())
	if err != nil {
		return err
	}
	fmt.Printf("%d %s @ %s -> %s\n", l.ID, l.Title, l.Company, l.Status)
	return nil
}

func runListingsResetDate(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid listing id %q", args[0])
	}

	ctx := cmd.Context()
	st, owner, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.ResetApplicationDate(ctx, owner, id); err != nil {
		return err
	}
	fmt.Printf("application date cleared for %d\n", id)
	return nil
}
