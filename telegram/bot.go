// Package telegram is the conversational front end: it maps Telegram
// updates onto workflow sessions, one session per chat.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/minios-linux/ftlbot/config"
	"github.com/minios-linux/ftlbot/i18n"
	"github.com/minios-linux/ftlbot/langmeta"
	"github.com/minios-linux/ftlbot/workflow"
)

// Callback data of the confirmation buttons.
const (
	CallbackConfirm = "confirm_translate"
	CallbackCancel  = "cancel"
)

// API is the part of *tgbotapi.BotAPI the bot uses.
type API interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Dial connects to the Bot API with the configured token and endpoint.
func Dial(cfg config.Telegram) (*tgbotapi.BotAPI, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram bot token is not set")
	}
	var (
		api *tgbotapi.BotAPI
		err error
	)
	if cfg.APIEndpoint != "" {
		api, err = tgbotapi.NewBotAPIWithAPIEndpoint(cfg.Token, cfg.APIEndpoint)
	} else {
		api, err = tgbotapi.NewBotAPI(cfg.Token)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to Telegram: %w", err)
	}
	api.Debug = cfg.Debug
	return api, nil
}

// Bot dispatches updates to per-chat sessions.
type Bot struct {
	api         API
	deps        workflow.Deps
	language    string
	pollTimeout int
	log         *slog.Logger

	mu    sync.Mutex
	chats map[int64]*chat
	wg    sync.WaitGroup
}

type chat struct {
	session  *workflow.Session
	notifier *notifier
}

// New returns a bot serving api with sessions built from deps.
func New(api API, deps workflow.Deps, pollTimeout int) *Bot {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Bot{
		api:         api,
		deps:        deps,
		language:    deps.Settings.Language,
		pollTimeout: pollTimeout,
		log:         log.With("module", "telegram"),
		chats:       make(map[int64]*chat),
	}
}

// Run polls for updates until ctx is done, then waits for running
// workflows and discards unconfirmed runs.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.pollTimeout
	updates := b.api.GetUpdatesChan(u)
	b.log.Info("bot started")

	defer b.shutdown()
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handle(ctx, update)
		}
	}
}

func (b *Bot) shutdown() {
	b.wg.Wait()
	b.mu.Lock()
	chats := make([]*chat, 0, len(b.chats))
	for _, c := range b.chats {
		chats = append(chats, c)
	}
	b.mu.Unlock()
	for _, c := range chats {
		c.session.Close()
	}
	b.log.Info("bot stopped")
}

func (b *Bot) chat(id int64) *chat {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.chats[id]
	if !ok {
		n := &notifier{api: b.api, chatID: id, log: b.log}
		c = &chat{session: workflow.NewSession(b.deps, n), notifier: n}
		b.chats[id] = c
	}
	return c
}

// handle dispatches one update. Workflow events run in their own
// goroutine so polling continues; the session rejects overlapping events.
func (b *Bot) handle(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		q := update.CallbackQuery
		if _, err := b.api.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
			b.log.Warn("answering callback failed", "error", err)
		}
		if q.Message == nil || q.Message.Chat == nil {
			return
		}
		var yes bool
		switch q.Data {
		case CallbackConfirm:
			yes = true
		case CallbackCancel:
		default:
			return
		}
		c := b.chat(q.Message.Chat.ID)
		c.notifier.clearKeyboard(q.Message.MessageID)
		b.async(func() {
			if err := c.session.Confirm(ctx, yes); err != nil {
				b.log.Info("confirmation ended with error", "chat", q.Message.Chat.ID, "error", err)
			}
		})

	case update.Message != nil && update.Message.Chat != nil:
		m := update.Message
		if m.IsCommand() {
			b.command(ctx, m)
			return
		}
		if strings.TrimSpace(m.Text) == "" {
			return
		}
		c := b.chat(m.Chat.ID)
		b.async(func() {
			if err := c.session.SubmitURL(ctx, m.Text); err != nil {
				b.log.Info("run ended with error", "chat", m.Chat.ID, "error", err)
			}
		})
	}
}

func (b *Bot) async(f func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		f()
	}()
}

func (b *Bot) command(ctx context.Context, m *tgbotapi.Message) {
	n := b.chat(m.Chat.ID).notifier
	switch m.Command() {
	case "start":
		name := ""
		if m.From != nil {
			name = m.From.FirstName
		}
		_ = n.Notify(ctx, fmt.Sprintf(i18n.T("Hi %s! Send me a link to a public GitHub repository with .ftl files to translate."), name))
	case "help":
		lang := langmeta.Resolve(b.language).English
		_ = n.Notify(ctx, fmt.Sprintf(i18n.T("Send me a link to a public GitHub repository with .ftl files. I'll translate the English text to %s and create a fork with the changes."), lang))
	}
}
