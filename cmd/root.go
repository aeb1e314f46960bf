package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/evhub/app"
	"github.com/kilianp07/evhub/config"
	"github.com/kilianp07/evhub/infra/logger"
)

var (
	cfgPath  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "evhub",
	Short: "Charging hub coordination engine",
	Long: `evhub matches vehicles arriving at a charging activity to a free
compatible charger on the same link, accounts delivered energy and
publishes change-tracked hub snapshots.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
	f.StringVar(&logLevel, "log-level", "", "overrides logging.level")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logger.SetLevel(cfg.Logging.Level)
	return cfg, nil
}

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	log := logger.New("main")
	defer func() {
		if err := svc.Close(); err != nil {
			log.Errorf("service close: %v", err)
		}
	}()
	log.Infow("evhub started", map[string]any{
		"hubs":     len(svc.Registry.Hubs()),
		"chargers": svc.Registry.ChargerCount(),
		"events":   cfg.Events.Source,
	})
	return svc.Run(ctx)
}
