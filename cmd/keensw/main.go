package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lomovlad/vpn-keenetic-switcher-bot/internal/config"
	"github.com/lomovlad/vpn-keenetic-switcher-bot/internal/keenetic"
	"github.com/lomovlad/vpn-keenetic-switcher-bot/internal/state"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "keensw",
	Short: "Telegram bot toggling access policies on a Keenetic router",
	Long: `keensw bridges a Telegram chat to a Keenetic router's admin API:
favorite devices show up as inline buttons, and pressing one toggles the
device between the default policy and a restricted profile.`,
	SilenceUsage: true,
}

func init() {
	defaultPath := filepath.Join(os.Getenv("HOME"), ".keensw", "config.json")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", defaultPath, "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads the config file or exits; commands past flag parsing
// cannot do anything useful without it.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// newRegistry builds the authenticated router stack. Startup auth failure
// is reported but not fatal: the registry re-runs the handshake once per
// rejected request, so a router that is briefly away heals on its own.
func newRegistry(cmd *cobra.Command, cfg *config.Config) (*keenetic.Registry, error) {
	if cfg.Router.BaseURI == "" {
		return nil, fmt.Errorf("router.base_uri is not configured")
	}
	session, err := keenetic.NewSession(cfg.Router.BaseURI, cfg.Router.Login, cfg.Router.Password)
	if err != nil {
		return nil, fmt.Errorf("create router session: %w", err)
	}
	ok, err := session.Authenticate(cmd.Context())
	if err != nil {
		slog.Warn("initial router handshake failed", "error", err)
	} else if !ok {
		slog.Warn("router rejected credentials at startup")
	}
	return keenetic.NewRegistry(session), nil
}

func newStore(cfg *config.Config) (*state.FileStore, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return state.NewFileStore(filepath.Join(cfg.DataDir, "storage.json")), nil
}
