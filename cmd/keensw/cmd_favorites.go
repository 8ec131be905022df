package main

import (
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"

	"github.com/lomovlad/vpn-keenetic-switcher-bot/internal/keenetic"
)

func init() {
	rootCmd.AddCommand(favoritesCmd)
	favoritesCmd.AddCommand(favoritesListCmd, favoritesAddCmd, favoritesRemoveCmd)
}

var favoritesCmd = &cobra.Command{
	Use:   "favorites",
	Short: "Manage the devices shown in the chat keyboard",
}

var favoritesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List favorite MAC addresses in keyboard order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		store, err := newStore(cfg)
		if err != nil {
			return err
		}
		macs, err := store.FavoriteMACs()
		if err != nil {
			return err
		}
		for _, mac := range macs {
			fmt.Fprintln(os.Stdout, mac)
		}
		return nil
	},
}

var favoritesAddCmd = &cobra.Command{
	Use:   "add <mac>",
	Short: "Add a device to the favorites",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mac := keenetic.NormalizeMAC(args[0])
		if _, err := net.ParseMAC(mac); err != nil {
			return fmt.Errorf("invalid MAC address %q", args[0])
		}

		cfg := loadConfig()
		store, err := newStore(cfg)
		if err != nil {
			return err
		}
		if err := store.AddFavorite(mac); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Added %s\n", mac)
		return nil
	},
}

var favoritesRemoveCmd = &cobra.Command{
	Use:   "remove <mac>",
	Short: "Remove a device from the favorites",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		store, err := newStore(cfg)
		if err != nil {
			return err
		}
		mac := keenetic.NormalizeMAC(args[0])
		if err := store.RemoveFavorite(mac); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Removed %s\n", mac)
		return nil
	},
}
