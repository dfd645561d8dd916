package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nysenate/openleg-sync/internal/reference"
)

var refsCmd = &cobra.Command{
	Use:   "refs",
	Short: "Manage the committee and senator reference tables",
}

var refsLoadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "Upsert reference entries from a YAML or JSON file",
	Long: `Load reads a mapping of table name to {id, name} entries and upserts every
entry. Cached lookups for the touched tables are invalidated.

Example file:
  committee:
    - id: com-finance
      name: Finance
  senator:
    - id: sen-0001
      name: John Smith`,
	Args: cobra.ExactArgs(1),
	RunE: runRefsLoad,
}

func init() {
	rootCmd.AddCommand(refsCmd)
	refsCmd.AddCommand(refsLoadCmd)
}

func runRefsLoad(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	refs, err := reference.Parse(f)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.requireSQL(); err != nil {
		return err
	}

	ctx := cmd.Context()
	tables, err := reference.Load(ctx, a.sql, refs)
	if err != nil {
		return err
	}
	if a.cache != nil {
		for _, table := range tables {
			if err := a.cache.Invalidate(ctx, table); err != nil {
				a.logger.Warn("stale reference cache", "table", table, "error", err)
			}
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "loaded %d references into %d tables\n", len(refs), len(tables))
	return nil
}
