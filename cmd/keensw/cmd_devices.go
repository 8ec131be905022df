package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(devicesCmd)
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the router's full device inventory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		registry, err := newRegistry(cmd, cfg)
		if err != nil {
			return err
		}
		devices, err := registry.ListDevices(cmd.Context())
		if err != nil {
			return fmt.Errorf("list devices: %w", err)
		}

		macs := make([]string, 0, len(devices))
		for mac := range devices {
			macs = append(macs, mac)
		}
		sort.Strings(macs)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "MAC\tNAME\tPOLICY")
		for _, mac := range macs {
			dev := devices[mac]
			fmt.Fprintf(w, "%s\t%s\t%s\n", dev.MAC, dev.Name, dev.Policy)
		}
		return w.Flush()
	},
}
