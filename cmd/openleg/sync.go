package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nysenate/openleg-sync/internal/openleg"
)

var (
	syncParams []string
	syncFrom   string
	syncTo     string
	syncSince  time.Duration
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Import items from the OpenLeg API",
}

var syncItemCmd = &cobra.Command{
	Use:   "item <processor> <resource>",
	Short: "Import a single item",
	Long: `Fetch one item and import it with the named processor.

Processors: bills, agendas, calendars, transcripts, hearings.

Examples:
  # Import every amendment version of S100 from the 2023 session
  openleg sync item bills 2023/S100

  # Import week 4 of the 2023 agendas
  openleg sync item agendas 2023/4`,
	Args: cobra.ExactArgs(2),
	RunE: runSyncItem,
}

var syncUpdatesCmd = &cobra.Command{
	Use:   "updates <processor>",
	Short: "Import every item updated in a time window",
	Long: `Page through the processor's update feed for a window and import each
referenced item. A failed item is counted and skipped.

Examples:
  # Everything updated in the last day
  openleg sync updates bills

  # A fixed window
  openleg sync updates calendars --from 2023-03-01T00:00:00 --to 2023-03-08T00:00:00`,
	Args: cobra.ExactArgs(1),
	RunE: runSyncUpdates,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.AddCommand(syncItemCmd, syncUpdatesCmd)

	syncItemCmd.Flags().StringArrayVarP(&syncParams, "param", "p", nil, "extra query parameter as key=value (repeatable)")
	syncUpdatesCmd.Flags().StringVar(&syncFrom, "from", "", "window start (defaults to --since before now)")
	syncUpdatesCmd.Flags().StringVar(&syncTo, "to", "", "window end (defaults to now)")
	syncUpdatesCmd.Flags().DurationVar(&syncSince, "since", 24*time.Hour, "window length when --from is not set")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runSyncItem(cmd *cobra.Command, args []string) error {
	params, err := parseParams(syncParams)
	if err != nil {
		return err
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	a.withRunner()
	stop := a.serveMetrics()
	defer stop()

	ctx, cancel := signalContext()
	defer cancel()

	out, err := a.runner.SyncItem(ctx, args[0], openleg.P(args[1]), params)
	if err != nil {
		return fmt.Errorf("fetching %s %s: %w", args[0], args[1], err)
	}
	if !out.Success {
		return fmt.Errorf("importing %s %s: %w", args[0], args[1], out.Err)
	}
	for _, rec := range out.Records {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", rec.Kind, rec.Title, rec.ID)
	}
	return nil
}

func runSyncUpdates(cmd *cobra.Command, args []string) error {
	to := time.Now()
	if syncTo != "" {
		t, err := openleg.ParseDateTime(syncTo, time.Local)
		if err != nil {
			return fmt.Errorf("--to: %w", err)
		}
		to = t
	}
	from := to.Add(-syncSince)
	if syncFrom != "" {
		t, err := openleg.ParseDateTime(syncFrom, time.Local)
		if err != nil {
			return fmt.Errorf("--from: %w", err)
		}
		from = t
	}
	if !from.Before(to) {
		return fmt.Errorf("window start %s is not before end %s", openleg.FormatDateTime(from), openleg.FormatDateTime(to))
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	a.withRunner()
	stop := a.serveMetrics()
	defer stop()

	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()
	stats, err := a.runner.SyncUpdates(ctx, args[0], from, to)
	if stats != nil {
		a.runner.LogSummary(args[0], stats, time.Since(start))
	}
	if err != nil {
		return err
	}
	if stats.Failed > 0 {
		return fmt.Errorf("%d of %d items failed", stats.Failed, stats.Total)
	}
	return nil
}

func parseParams(pairs []string) (map[string]string, error) {
	params := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --param %q, want key=value", pair)
		}
		params[k] = v
	}
	return params, nil
}
