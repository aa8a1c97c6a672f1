package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ewolf/brain/app"
	"github.com/ewolf/brain/config"
	"github.com/ewolf/brain/infra/logger"
)

var (
	cfgPath  string
	simulate bool
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:          "brain",
	Short:        "Vehicle message bus, driving-mode gate and lane keeping controller",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (yaml or json); defaults and BRAIN_ environment when empty")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")
	rootCmd.Flags().BoolVar(&simulate, "simulate", false, "drive the simulated vehicle instead of real perception")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	logger.New("main").Infow("starting", map[string]any{
		"config":    cfgPath,
		"mqtt":      cfg.MQTT.Enabled,
		"simulator": cfg.Simulator.Enabled,
		"sinks":     len(cfg.Metrics.Sinks),
	})
	return svc.Run(ctx)
}

// loadConfig reads the configuration and applies the command line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
		if err := cfg.Logging.Validate(); err != nil {
			return nil, fmt.Errorf("--log-level: %w", err)
		}
	}
	if simulate {
		cfg.Simulator.Enabled = true
		cfg.Simulator.SetDefaults()
	}
	return cfg, nil
}
