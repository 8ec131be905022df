package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramTransport implements Transport on top of the Bot API client.
type TelegramTransport struct {
	bot *tgbotapi.BotAPI
}

var _ Transport = (*TelegramTransport)(nil)

// NewTelegramTransport wraps an authorized Bot API client.
func NewTelegramTransport(bot *tgbotapi.BotAPI) *TelegramTransport {
	return &TelegramTransport{bot: bot}
}

// SendMessage sends a message with an optional inline keyboard and
// returns the new message's id.
func (t *TelegramTransport) SendMessage(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if keyboard != nil {
		msg.ReplyMarkup = *keyboard
	}
	sent, err := t.bot.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("send message: %w", err)
	}
	return sent.MessageID, nil
}

// EditReplyMarkup replaces the inline keyboard of an existing message.
func (t *TelegramTransport) EditReplyMarkup(chatID int64, messageID int, keyboard tgbotapi.InlineKeyboardMarkup) error {
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, keyboard)
	if _, err := t.bot.Request(edit); err != nil {
		return fmt.Errorf("edit reply markup: %w", err)
	}
	return nil
}

// DeleteMessage removes a message.
func (t *TelegramTransport) DeleteMessage(chatID int64, messageID int) error {
	if _, err := t.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// AnswerCallback acknowledges a button press.
func (t *TelegramTransport) AnswerCallback(callbackID, text string, showAlert bool) error {
	cb := tgbotapi.NewCallback(callbackID, text)
	cb.ShowAlert = showAlert
	if _, err := t.bot.Request(cb); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}
