package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/lomovlad/vpn-keenetic-switcher-bot/internal/keenetic"
)

// Two-state markers shown next to each device name.
const (
	markerRestricted   = "🟢"
	markerUnrestricted = "⚪"
)

// favoritesKeyboard builds the inline keyboard: one row per favorite
// device, labeled "Name (marker)", with the MAC as callback payload.
// overrides replaces the rendered policy for specific MACs, used to show
// a just-toggled device's new state without re-fetching the inventory.
func favoritesKeyboard(devices []keenetic.Device, overrides map[string]keenetic.Policy) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(devices))
	for _, dev := range devices {
		policy := dev.Policy
		if p, ok := overrides[dev.MAC]; ok {
			policy = p
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(buttonLabel(dev.Name, policy), dev.MAC),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func buttonLabel(name string, policy keenetic.Policy) string {
	marker := markerUnrestricted
	if policy.Restricted() {
		marker = markerRestricted
	}
	return fmt.Sprintf("%s (%s)", name, marker)
}
