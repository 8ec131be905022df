package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lomovlad/vpn-keenetic-switcher-bot/internal/bot"
	"github.com/lomovlad/vpn-keenetic-switcher-bot/internal/webhook"
)

func init() {
	rootCmd.AddCommand(webhookCmd)
}

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Run the bot as an HTTP endpoint receiving pushed updates",
	Args:  cobra.NoArgs,
	RunE:  runWebhook,
}

func runWebhook(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	registry, err := newRegistry(cmd, cfg)
	if err != nil {
		return err
	}
	store, err := newStore(cfg)
	if err != nil {
		return err
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is not configured")
	}
	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return fmt.Errorf("create bot: %w", err)
	}

	dispatcher := bot.NewDispatcher(registry, store, bot.NewTelegramTransport(api), cfg.Router.RestrictedPolicy)
	server := &http.Server{
		Addr:    cfg.HTTP.Listen,
		Handler: webhook.NewServer(dispatcher.HandleUpdate),
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("webhook server started", "listen", cfg.HTTP.Listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
