package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/minios-linux/ftlbot/i18n"
)

// notifier sends workflow status lines to one chat.
type notifier struct {
	api    API
	chatID int64
	log    *slog.Logger

	mu         sync.Mutex
	progressID int
}

func (n *notifier) Notify(_ context.Context, text string) error {
	n.mu.Lock()
	n.progressID = 0
	n.mu.Unlock()
	_, err := n.api.Send(tgbotapi.NewMessage(n.chatID, text))
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

func (n *notifier) AskConfirmation(_ context.Context, text string) error {
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(i18n.T("Yes"), CallbackConfirm),
			tgbotapi.NewInlineKeyboardButtonData(i18n.T("No"), CallbackCancel),
		),
	)
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("sending confirmation: %w", err)
	}
	return nil
}

// Progress keeps a single message up to date instead of posting one per
// file.
func (n *notifier) Progress(_ context.Context, done, total int) {
	text := fmt.Sprintf(i18n.T("Translating file %d of %d..."), done, total)

	n.mu.Lock()
	id := n.progressID
	n.mu.Unlock()

	if id != 0 {
		if _, err := n.api.Send(tgbotapi.NewEditMessageText(n.chatID, id, text)); err != nil {
			n.log.Debug("updating progress failed", "error", err)
		}
		return
	}
	m, err := n.api.Send(tgbotapi.NewMessage(n.chatID, text))
	if err != nil {
		n.log.Debug("sending progress failed", "error", err)
		return
	}
	n.mu.Lock()
	n.progressID = m.MessageID
	n.mu.Unlock()
}

// clearKeyboard removes the buttons of an answered confirmation.
func (n *notifier) clearKeyboard(messageID int) {
	if messageID == 0 {
		return
	}
	edit := tgbotapi.NewEditMessageReplyMarkup(n.chatID, messageID,
		tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
	if _, err := n.api.Request(edit); err != nil {
		n.log.Debug("removing keyboard failed", "error", err)
	}
}
