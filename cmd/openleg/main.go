package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "openleg",
	Short: "Synchronize OpenLeg legislative data into a local document store",
	Long: `openleg fetches bills, agendas, calendars, transcripts and public
hearings from the OpenLeg API and imports them into the configured document
store, one item at a time.

Configuration is read from the YAML file given by --config and then
overridden by OL_* environment variables.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/development.yaml", "path to config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
