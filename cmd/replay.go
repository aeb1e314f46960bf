package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/kilianp07/evhub/app"
	"github.com/kilianp07/evhub/core/stats"
	"github.com/kilianp07/evhub/infra/logger"
)

var replayStatsOnly bool

var replayCmd = &cobra.Command{
	Use:   "replay <events.jsonl>",
	Short: "Apply a recorded event stream and print the final state",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

func init() {
	replayCmd.Flags().BoolVar(&replayStatsOnly, "stats", false, "print only the utilization summary")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// Offline: no broker, no periodic publish, no listener.
	cfg.Events.Source = "none"
	cfg.Telemetry.Enabled = false
	cfg.API.Address = ""

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()

	n, err := svc.Replay(ctx, f)
	if err != nil {
		return fmt.Errorf("replay after %d events: %w", n, err)
	}
	applied, skipped := svc.Counts()
	fmt.Fprintf(cmd.ErrOrStderr(), "read %d events, applied %d, skipped %d\n", n, applied, skipped)

	snap := svc.Snapshot()
	out := any(stats.Summarize(snap))
	if !replayStatsOnly {
		out = struct {
			Stats    stats.Summary `json:"stats"`
			Snapshot any           `json:"snapshot"`
		}{stats.Summarize(snap), snap}
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
