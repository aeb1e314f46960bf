package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kilianp07/evhub/core/charging"
	"github.com/kilianp07/evhub/infra/hubspec"
	"github.com/kilianp07/evhub/infra/logger"
)

var hubsFile string

var hubsCmd = &cobra.Command{
	Use:   "hubs",
	Short: "Hub infrastructure commands",
}

var hubsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "Load the hub file and list hubs and skipped records",
	RunE:  runHubsLs,
}

func init() {
	hubsLsCmd.Flags().StringVar(&hubsFile, "file", "", "hub file, overrides hubs.file from the configuration")
	hubsCmd.AddCommand(hubsLsCmd)
	rootCmd.AddCommand(hubsCmd)
}

func runHubsLs(cmd *cobra.Command, args []string) error {
	path, strict := hubsFile, false
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path, strict = cfg.Hubs.File, cfg.Hubs.Strict
	}
	infra, err := hubspec.LoadHubs(path, logger.New("hubspec"))
	if err != nil {
		return err
	}
	reg, err := charging.NewRegistry(infra, charging.WithStrict(strict))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "HUB\tLINK\tCHARGERS\tPOWER_KW")
	for _, h := range reg.Hubs() {
		var power float64
		for _, c := range h.Chargers() {
			power += c.PowerW
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%.1f\n", h.ID(), h.LinkID(), h.Size(), power/1000)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	for _, issue := range reg.LoadIssues() {
		fmt.Fprintf(cmd.ErrOrStderr(), "skipped: %v\n", issue)
	}
	return nil
}
