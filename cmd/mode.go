package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ewolf/brain/config"
	"github.com/ewolf/brain/core/statemachine"
	"github.com/ewolf/brain/infra/mqtt"
)

var modeCmd = &cobra.Command{
	Use:   "mode <MANUAL|AUTO|STOP>",
	Short: "Request a driving mode over MQTT",
	Args:  cobra.ExactArgs(1),
	RunE:  requestMode,
}

func init() {
	rootCmd.AddCommand(modeCmd)
}

func requestMode(cmd *cobra.Command, args []string) error {
	mode, err := statemachine.ParseMode(statemachine.NormalizeRequest(args[0]))
	if err != nil {
		return err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required to request a mode")
	}
	if err := mqtt.SendModeRequest(cfg.MQTT, mode.String()); err != nil {
		return fmt.Errorf("send mode request: %w", err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "requested %s on %s\n", mode, cfg.MQTT.ModeTopic)
	return err
}
