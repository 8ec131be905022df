package bot

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Poller pulls updates over long polling and feeds them to the
// dispatcher one at a time. No two updates are ever processed
// concurrently; the Bot API offset cursor advances only after an update
// has been handed off.
type Poller struct {
	bot        *tgbotapi.BotAPI
	dispatcher *Dispatcher
}

// NewPoller creates a poller for the given bot and dispatcher.
func NewPoller(bot *tgbotapi.BotAPI, dispatcher *Dispatcher) *Poller {
	return &Poller{bot: bot, dispatcher: dispatcher}
}

// Run polls until ctx is canceled. It always returns nil after a clean
// shutdown so it can sit directly in an errgroup.
func (p *Poller) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := p.bot.GetUpdatesChan(u)
	slog.Info("long polling started", "bot", p.bot.Self.UserName)

	for {
		select {
		case update := <-updates:
			p.dispatcher.HandleUpdate(ctx, update)
		case <-ctx.Done():
			p.bot.StopReceivingUpdates()
			slog.Info("long polling stopped")
			return nil
		}
	}
}
