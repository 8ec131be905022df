// Package bot turns inbound Telegram updates into router policy changes
// and keeps the chat UI in sync.
package bot

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/lomovlad/vpn-keenetic-switcher-bot/internal/keenetic"
	"github.com/lomovlad/vpn-keenetic-switcher-bot/internal/state"
)

const (
	startCommand = "/start"
	choosePrompt = "Choose a device:"
	startPrompt  = "Send /start to get the device list."
)

// Devices is the slice of the router registry the dispatcher needs.
type Devices interface {
	ListDevices(ctx context.Context) (map[string]keenetic.Device, error)
	SetPolicy(ctx context.Context, mac string, policy keenetic.Policy) error
}

// Transport is the outbound chat surface. The production implementation
// wraps the Telegram Bot API; tests inject a fake.
type Transport interface {
	SendMessage(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (int, error)
	EditReplyMarkup(chatID int64, messageID int, keyboard tgbotapi.InlineKeyboardMarkup) error
	DeleteMessage(chatID int64, messageID int) error
	AnswerCallback(callbackID, text string, showAlert bool) error
}

// Dispatcher processes one inbound update at a time: button presses
// toggle a device's policy and re-render the keyboard in place, text
// messages replace the previous bot message with a fresh one.
type Dispatcher struct {
	devices   Devices
	store     state.Store
	transport Transport

	// restricted is the single router profile the toggle switches to;
	// the UI is a binary toggle even though the router supports more.
	restricted string
}

// NewDispatcher wires the dispatcher to its collaborators. restricted
// names the router profile used as the "blocked" side of the toggle.
func NewDispatcher(devices Devices, store state.Store, transport Transport, restricted string) *Dispatcher {
	return &Dispatcher{
		devices:    devices,
		store:      store,
		transport:  transport,
		restricted: restricted,
	}
}

// HandleUpdate dispatches a single update. Updates that are neither a
// usable callback query nor a text message are dropped silently: the
// transport may redeliver, and a malformed payload deserves no reply.
func (d *Dispatcher) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	log := slog.With("trace", uuid.NewString()[:8])

	switch {
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil:
		d.handleCallback(ctx, log, update.CallbackQuery)
	case update.Message != nil && update.Message.Text != "":
		d.handleMessage(ctx, log, update.Message)
	default:
		log.Debug("dropping update with no actionable payload", "update_id", update.UpdateID)
	}
}

// handleCallback toggles the pressed device's policy and re-renders the
// keyboard in place. The callback is always answered, success or not;
// leaving it pending shows the user an endless spinner.
func (d *Dispatcher) handleCallback(ctx context.Context, log *slog.Logger, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	messageID := cb.Message.MessageID
	mac := keenetic.NormalizeMAC(cb.Data)
	log = log.With("chat_id", chatID, "mac", mac)

	favorites, err := d.fetchFavorites(ctx)
	if err != nil {
		log.Error("inventory fetch failed", "error", err)
		d.answer(log, cb.ID, "Could not reach the router")
		return
	}

	// Unknown MAC is not an error: a device that left the inventory is
	// simply treated as unrestricted.
	current := keenetic.Unrestricted
	for _, dev := range favorites {
		if dev.MAC == mac {
			current = dev.Policy
			break
		}
	}
	newPolicy := current.Toggle(d.restricted)

	err = d.devices.SetPolicy(ctx, mac, newPolicy)
	if err != nil {
		log.Error("policy change failed", "policy", newPolicy, "error", err)
	} else {
		log.Info("policy changed", "policy", newPolicy.String())
	}

	// Render regardless of the outcome so the keyboard reflects our best
	// knowledge of the router state.
	keyboard := favoritesKeyboard(favorites, map[string]keenetic.Policy{mac: newPolicy})
	if editErr := d.transport.EditReplyMarkup(chatID, messageID, keyboard); editErr != nil {
		log.Warn("keyboard edit failed", "error", editErr)
	}

	text := fmt.Sprintf("Policy for %s is now %s", mac, newPolicy)
	if err != nil {
		text = "Failed to change the policy"
	}
	d.answer(log, cb.ID, text)
}

// handleMessage replaces the previous bot message in the conversation
// with either the device keyboard (/start) or a usage prompt.
func (d *Dispatcher) handleMessage(ctx context.Context, log *slog.Logger, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	log = log.With("chat_id", chatID)

	// Best effort: the old message may already be gone.
	if lastID, ok, err := d.store.LastMessageID(chatID); err != nil {
		log.Warn("last message lookup failed", "error", err)
	} else if ok {
		if err := d.transport.DeleteMessage(chatID, lastID); err != nil {
			log.Debug("previous message delete failed", "message_id", lastID, "error", err)
		}
	}

	var sentID int
	var err error
	if msg.Text == startCommand {
		sentID, err = d.sendDeviceList(ctx, log, chatID)
	} else {
		sentID, err = d.transport.SendMessage(chatID, startPrompt, nil)
	}
	if err != nil {
		log.Error("send failed", "error", err)
		return
	}

	if err := d.store.SetLastMessageID(chatID, sentID); err != nil {
		log.Error("message bookkeeping failed", "message_id", sentID, "error", err)
	}
}

func (d *Dispatcher) sendDeviceList(ctx context.Context, log *slog.Logger, chatID int64) (int, error) {
	favorites, err := d.fetchFavorites(ctx)
	if err != nil {
		log.Error("inventory fetch failed", "error", err)
		return d.transport.SendMessage(chatID, "Could not reach the router, try again later.", nil)
	}
	keyboard := favoritesKeyboard(favorites, nil)
	return d.transport.SendMessage(chatID, choosePrompt, &keyboard)
}

// fetchFavorites reads the favorite MACs and filters a fresh inventory
// down to them. No caching: the router is the source of truth.
func (d *Dispatcher) fetchFavorites(ctx context.Context) ([]keenetic.Device, error) {
	macs, err := d.store.FavoriteMACs()
	if err != nil {
		return nil, fmt.Errorf("favorite macs: %w", err)
	}
	inventory, err := d.devices.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return keenetic.Favorites(inventory, macs), nil
}

func (d *Dispatcher) answer(log *slog.Logger, callbackID, text string) {
	if err := d.transport.AnswerCallback(callbackID, text, true); err != nil {
		log.Warn("callback answer failed", "error", err)
	}
}
