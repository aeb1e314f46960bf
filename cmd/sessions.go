package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/evhub/core/sessionlog"
	"github.com/kilianp07/evhub/pkg/export"
)

var (
	exportFormat  string
	exportVehicle string
	exportHub     string
	exportSince   string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Session log commands",
}

var sessionsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export completed sessions as CSV or JSON",
	RunE:  runSessionsExport,
}

func init() {
	f := sessionsExportCmd.Flags()
	f.StringVar(&exportFormat, "format", "csv", "csv or json")
	f.StringVar(&exportVehicle, "vehicle", "", "only this vehicle")
	f.StringVar(&exportHub, "hub", "", "only this hub")
	f.StringVar(&exportSince, "since", "", "RFC3339 lower bound on the record timestamp")
	sessionsCmd.AddCommand(sessionsExportCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func runSessionsExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := sessionlog.Open(cfg.SessionLog)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("session log is disabled (session_log.backend is empty)")
	}
	defer store.Close()

	q := sessionlog.Query{VehicleID: exportVehicle, HubID: exportHub}
	if exportSince != "" {
		if q.Start, err = time.Parse(time.RFC3339, exportSince); err != nil {
			return fmt.Errorf("--since: %w", err)
		}
	}
	recs, err := store.Query(context.Background(), q)
	if err != nil {
		return err
	}
	switch exportFormat {
	case "csv":
		return export.WriteCSV(cmd.OutOrStdout(), recs)
	case "json":
		return export.WriteJSON(cmd.OutOrStdout(), recs)
	}
	return fmt.Errorf("unknown format %q", exportFormat)
}
