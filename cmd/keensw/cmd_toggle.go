package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lomovlad/vpn-keenetic-switcher-bot/internal/keenetic"
)

func init() {
	rootCmd.AddCommand(toggleCmd)
}

var toggleCmd = &cobra.Command{
	Use:   "toggle <mac>",
	Short: "Toggle a device's policy from the terminal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		registry, err := newRegistry(cmd, cfg)
		if err != nil {
			return err
		}

		mac := keenetic.NormalizeMAC(args[0])
		devices, err := registry.ListDevices(cmd.Context())
		if err != nil {
			return fmt.Errorf("list devices: %w", err)
		}

		current := keenetic.Unrestricted
		if dev, ok := devices[mac]; ok {
			current = dev.Policy
		}
		next := current.Toggle(cfg.Router.RestrictedPolicy)

		if err := registry.SetPolicy(cmd.Context(), mac, next); err != nil {
			return fmt.Errorf("set policy: %w", err)
		}
		fmt.Fprintf(os.Stdout, "%s: %s -> %s\n", mac, current, next)
		return nil
	},
}
