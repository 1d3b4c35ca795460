package telegram

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/minios-linux/ftlbot/config"
	"github.com/minios-linux/ftlbot/publish"
	"github.com/minios-linux/ftlbot/translate"
	"github.com/minios-linux/ftlbot/workcopy"
	"github.com/minios-linux/ftlbot/workflow"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

// fakeAPI records everything the bot sends.
type fakeAPI struct {
	updates chan tgbotapi.Update

	mu        sync.Mutex
	sent      []tgbotapi.Chattable
	requested []tgbotapi.Chattable
	nextID    int
	stopOnce  sync.Once
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update, 16)}
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.stopOnce.Do(func() { close(f.updates) })
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

// texts returns the text of every new message sent to chat.
func (f *fakeAPI) texts(chat int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok && m.ChatID == chat {
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeAPI) lastText(chat int64) string {
	t := f.texts(chat)
	if len(t) == 0 {
		return ""
	}
	return t[len(t)-1]
}

func (f *fakeAPI) keyboards() []tgbotapi.InlineKeyboardMarkup {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.InlineKeyboardMarkup
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			if kb, ok := m.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup); ok {
				out = append(out, kb)
			}
		}
	}
	return out
}

func (f *fakeAPI) callbacksAnswered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.requested {
		if _, ok := c.(tgbotapi.CallbackConfig); ok {
			n++
		}
	}
	return n
}

func command(chat int64, text, firstName string) tgbotapi.Update {
	name, _, _ := strings.Cut(text, " ")
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text: text,
		Chat: &tgbotapi.Chat{ID: chat},
		From: &tgbotapi.User{FirstName: firstName},
		Entities: []tgbotapi.MessageEntity{
			{Type: "bot_command", Offset: 0, Length: len(name)},
		},
	}}
}

func text(chat int64, s string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{Text: s, Chat: &tgbotapi.Chat{ID: chat}}}
}

func callback(chat int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "q-" + data,
		Data:    data,
		Message: &tgbotapi.Message{MessageID: 99, Chat: &tgbotapi.Chat{ID: chat}},
	}}
}

// repo is a working-copy provider producing a tiny translatable checkout.
type repo struct{}

type handle struct{ root string }

func (h handle) Root() string                                              { return h.root }
func (h handle) CommitAndPush(context.Context, workcopy.PushOptions) error { return nil }
func (h handle) Release() error                                            { return os.RemoveAll(h.root) }

func (repo) Acquire(_ context.Context, _ string, dest string) (workcopy.WorkingCopy, error) {
	dir := filepath.Join(dest, "Resources", "Locale", "ru-RU", "datasets")
	if err := os.MkdirAll(filepath.Join(dest, "Tools"), 0755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, "a.ftl"), []byte("a = Apple\n"), 0644); err != nil {
		return nil, err
	}
	return handle{root: dest}, nil
}

type noopHelper struct{}

func (noopHelper) Stage(string) error                { return nil }
func (noopHelper) Run(context.Context, string) error { return nil }
func (noopHelper) Remove(string) error               { return nil }

type forkURL string

func (u forkURL) Publish(context.Context, publish.Request) (string, error) {
	if u == "" {
		return "", errors.New("no fork")
	}
	return string(u), nil
}

func newBot(t *testing.T, api *fakeAPI) *Bot {
	t.Helper()
	namer, err := workflow.NewCounterNamer(t.TempDir())
	require.NoError(t, err)
	deps := workflow.Deps{
		Settings: workflow.SettingsFromConfig(config.Default()),
		Provider: repo{},
		Helper:   noopHelper{},
		Translator: translate.TranslatorFunc(func(_ context.Context, s, _ string) (string, error) {
			return "Яблоко", nil
		}),
		Publisher: forkURL("https://github.com/bot/r/tree/translation-bot-russian"),
		Namer:     namer,
	}
	return New(api, deps, 1)
}

func start(t *testing.T, b *Bot) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	return func() {
		cancel()
		require.NoError(t, <-done)
	}
}

func TestStartAndHelp(t *testing.T) {
	api := newFakeAPI()
	b := newBot(t, api)
	stop := start(t, b)
	defer stop()

	api.updates <- command(7, "/start", "Ann")
	api.updates <- command(7, "/help", "Ann")

	require.Eventually(t, func() bool { return len(api.texts(7)) == 2 }, waitFor, tick)
	msgs := api.texts(7)
	assert.Equal(t, "Hi Ann! Send me a link to a public GitHub repository with .ftl files to translate.", msgs[0])
	assert.Contains(t, msgs[1], "translate the English text to Russian")
}

func TestInvalidURLReply(t *testing.T) {
	api := newFakeAPI()
	stop := start(t, newBot(t, api))
	defer stop()

	api.updates <- text(3, "not a url")
	require.Eventually(t, func() bool {
		return api.lastText(3) == "Please provide a valid GitHub repository URL."
	}, waitFor, tick)
}

func TestCallbackWithoutPendingRun(t *testing.T) {
	api := newFakeAPI()
	stop := start(t, newBot(t, api))
	defer stop()

	api.updates <- callback(5, CallbackConfirm)
	require.Eventually(t, func() bool { return api.lastText(5) == "There is nothing to confirm." }, waitFor, tick)
	assert.Equal(t, 1, api.callbacksAnswered())
}

func TestConfirmFlow(t *testing.T) {
	api := newFakeAPI()
	stop := start(t, newBot(t, api))
	defer stop()

	api.updates <- text(1, "https://github.com/o/r")
	require.Eventually(t, func() bool { return len(api.keyboards()) == 1 }, waitFor, tick)

	kb := api.keyboards()[0]
	require.Len(t, kb.InlineKeyboard, 1)
	row := kb.InlineKeyboard[0]
	require.Len(t, row, 2)
	assert.Equal(t, CallbackConfirm, *row[0].CallbackData)
	assert.Equal(t, CallbackCancel, *row[1].CallbackData)
	assert.Equal(t, "Found 1 .ftl file. Translate all strings from English to Russian?", api.lastText(1))

	api.updates <- callback(1, CallbackConfirm)
	require.Eventually(t, func() bool {
		return strings.Contains(api.lastText(1), "https://github.com/bot/r/tree/translation-bot-russian")
	}, waitFor, tick)
	assert.Contains(t, api.texts(1), "Translating file 1 of 1...")
}

func TestChatsAreIndependent(t *testing.T) {
	api := newFakeAPI()
	b := newBot(t, api)
	stop := start(t, b)

	api.updates <- text(1, "https://github.com/o/one")
	api.updates <- text(2, "https://github.com/o/two")
	require.Eventually(t, func() bool { return len(api.keyboards()) == 2 }, waitFor, tick)

	api.updates <- callback(1, CallbackCancel)
	require.Eventually(t, func() bool { return api.lastText(1) == "Operation cancelled." }, waitFor, tick)

	b.mu.Lock()
	second := b.chats[2].session
	b.mu.Unlock()
	assert.Equal(t, workflow.AwaitingConfirmation, second.State())
	scratch := second.Scratch()
	assert.DirExists(t, scratch)

	// Shutdown discards the unconfirmed run of chat 2.
	stop()
	assert.Equal(t, workflow.Idle, second.State())
	assert.NoDirExists(t, scratch)
}
