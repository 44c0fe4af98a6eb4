package bot

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tgforge/tgforge/pkg/ai"
	"github.com/tgforge/tgforge/pkg/locale"
	"github.com/tgforge/tgforge/pkg/store"
)

const usersDDL = `
CREATE TABLE users (
    user_id    INTEGER PRIMARY KEY,
    username   VARCHAR(255),
    language   VARCHAR(10) NOT NULL DEFAULT 'en',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

const testCatalog = `
start.greeting: "Welcome to %s"
help.body: "Commands: /start /help /language /stats /support"
language.prompt: "Pick a language"
language.updated: "Language set to %s"
stats.body: "Known users: %d"
command.unknown: "Unknown command"
support.disabled: "Support is not available"
support.usage: "Usage: /support <message>"
support.sent: "Message forwarded"
support.failed: "Could not forward message"
media.unsupported: "Text only, sorry"
ai.disabled: "Chat replies are not enabled"
ai.rate_limited: "Too many requests, try again later"
ai.unavailable: "Assistant is unavailable"
error.generic: "Something went wrong"
`

// fakeAPI records outbound traffic and feeds a controllable update
// channel.
type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	updates  chan tgbotapi.Update
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update, 16)}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	close(f.updates)
}

func (f *fakeAPI) sentMessages(t *testing.T) []tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	var msgs []tgbotapi.MessageConfig
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			msgs = append(msgs, m)
		}
	}
	return msgs
}

func (f *fakeAPI) lastMessage(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	msgs := f.sentMessages(t)
	if len(msgs) == 0 {
		t.Fatal("no messages sent")
	}
	return msgs[len(msgs)-1]
}

type fakeEscalator struct {
	texts []string
	fail  bool
}

func (f *fakeEscalator) SendNotification(text string) bool {
	f.texts = append(f.texts, text)
	return !f.fail
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}
	if err := s.Setup(context.Background()); err != nil {
		t.Fatalf("store.Setup failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.DB().Exec(usersDDL).Error; err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return s
}

func newTestLocales(t *testing.T) *locale.Manager {
	t.Helper()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "en.yaml"), []byte(testCatalog), 0644); err != nil {
		t.Fatalf("failed to write catalog: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ru.yaml"), []byte("language.updated: \"Язык: %s\"\n"), 0644); err != nil {
		t.Fatalf("failed to write catalog: %v", err)
	}

	m, err := locale.New(dir, "en")
	if err != nil {
		t.Fatalf("locale.New failed: %v", err)
	}
	return m
}

// newTestBot builds an initialized bot over fakes. Mutate deps before
// calling if a test wants a provider or escalator.
func newTestBot(t *testing.T, deps *Dependencies) (*Bot, *fakeAPI) {
	t.Helper()

	if deps == nil {
		deps = &Dependencies{}
	}
	if deps.Store == nil {
		deps.Store = newTestStore(t)
	}
	if deps.Locales == nil {
		deps.Locales = newTestLocales(t)
	}

	b, err := New(Config{
		Token:              "123456:TEST",
		Name:               "testbot",
		SupportedLanguages: []string{"en", "ru"},
	}, *deps)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	api := newFakeAPI()
	b.connect = func(string) (telegramAPI, tgbotapi.User, error) {
		return api, tgbotapi.User{ID: 1, UserName: "testbot"}, nil
	}
	if err := b.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return b, api
}

func commandUpdate(userID int64, text string) tgbotapi.Update {
	entities := []tgbotapi.MessageEntity{}
	if text != "" && text[0] == '/' {
		cmdLen := len(text)
		for i, r := range text {
			if r == ' ' {
				cmdLen = i
				break
			}
		}
		entities = append(entities, tgbotapi.MessageEntity{Type: "bot_command", Offset: 0, Length: cmdLen})
	}
	return tgbotapi.Update{
		UpdateID: 1,
		Message: &tgbotapi.Message{
			MessageID: 10,
			From:      &tgbotapi.User{ID: userID, UserName: "alice"},
			Chat:      &tgbotapi.Chat{ID: userID},
			Text:      text,
			Entities:  entities,
		},
	}
}

func TestHandleCommands(t *testing.T) {
	t.Run("start greets and registers user", func(t *testing.T) {
		deps := &Dependencies{Store: newTestStore(t)}
		b, api := newTestBot(t, deps)

		b.handleUpdate(context.Background(), commandUpdate(100, "/start"))

		if got := api.lastMessage(t).Text; got != "Welcome to testbot" {
			t.Errorf("unexpected greeting: %q", got)
		}
		if _, err := deps.Store.GetUser(context.Background(), 100); err != nil {
			t.Errorf("expected user registered: %v", err)
		}
	})

	t.Run("help includes description", func(t *testing.T) {
		b, api := newTestBot(t, nil)
		b.config.Description = "A test bot"

		b.handleUpdate(context.Background(), commandUpdate(100, "/help"))

		got := api.lastMessage(t).Text
		if got != "A test bot\n\nCommands: /start /help /language /stats /support" {
			t.Errorf("unexpected help text: %q", got)
		}
	})

	t.Run("language sends keyboard", func(t *testing.T) {
		b, api := newTestBot(t, nil)

		b.handleUpdate(context.Background(), commandUpdate(100, "/language"))

		msg := api.lastMessage(t)
		kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
		if !ok {
			t.Fatalf("expected inline keyboard, got %T", msg.ReplyMarkup)
		}
		if len(kb.InlineKeyboard) != 2 {
			t.Errorf("expected 2 language rows, got %d", len(kb.InlineKeyboard))
		}
	})

	t.Run("stats reports user count", func(t *testing.T) {
		b, api := newTestBot(t, nil)

		b.handleUpdate(context.Background(), commandUpdate(100, "/start"))
		b.handleUpdate(context.Background(), commandUpdate(100, "/stats"))

		if got := api.lastMessage(t).Text; got != "Known users: 1" {
			t.Errorf("unexpected stats: %q", got)
		}
	})

	t.Run("unknown command", func(t *testing.T) {
		b, api := newTestBot(t, nil)

		b.handleUpdate(context.Background(), commandUpdate(100, "/frobnicate"))

		if got := api.lastMessage(t).Text; got != "Unknown command" {
			t.Errorf("unexpected reply: %q", got)
		}
	})
}

func TestHandleSupport(t *testing.T) {
	t.Run("forwards to escalator", func(t *testing.T) {
		esc := &fakeEscalator{}
		b, api := newTestBot(t, &Dependencies{Support: esc})

		b.handleUpdate(context.Background(), commandUpdate(100, "/support my bot is haunted"))

		if len(esc.texts) != 1 {
			t.Fatalf("expected 1 escalation, got %d", len(esc.texts))
		}
		if got := api.lastMessage(t).Text; got != "Message forwarded" {
			t.Errorf("unexpected reply: %q", got)
		}
	})

	t.Run("failed delivery reported", func(t *testing.T) {
		b, api := newTestBot(t, &Dependencies{Support: &fakeEscalator{fail: true}})

		b.handleUpdate(context.Background(), commandUpdate(100, "/support help"))

		if got := api.lastMessage(t).Text; got != "Could not forward message" {
			t.Errorf("unexpected reply: %q", got)
		}
	})

	t.Run("no escalator configured", func(t *testing.T) {
		b, api := newTestBot(t, nil)

		b.handleUpdate(context.Background(), commandUpdate(100, "/support help"))

		if got := api.lastMessage(t).Text; got != "Support is not available" {
			t.Errorf("unexpected reply: %q", got)
		}
	})

	t.Run("missing message shows usage", func(t *testing.T) {
		b, api := newTestBot(t, &Dependencies{Support: &fakeEscalator{}})

		b.handleUpdate(context.Background(), commandUpdate(100, "/support"))

		if got := api.lastMessage(t).Text; got != "Usage: /support <message>" {
			t.Errorf("unexpected reply: %q", got)
		}
	})
}

func TestHandleText(t *testing.T) {
	t.Run("ai reply", func(t *testing.T) {
		provider := &ai.MockProvider{Reply: "42"}
		b, api := newTestBot(t, &Dependencies{Provider: provider})

		b.handleUpdate(context.Background(), commandUpdate(100, "what is the answer"))

		if got := api.lastMessage(t).Text; got != "42" {
			t.Errorf("unexpected reply: %q", got)
		}
		if len(provider.Calls) != 1 {
			t.Errorf("expected 1 provider call, got %d", len(provider.Calls))
		}
	})

	t.Run("no provider configured", func(t *testing.T) {
		b, api := newTestBot(t, nil)

		b.handleUpdate(context.Background(), commandUpdate(100, "hello"))

		if got := api.lastMessage(t).Text; got != "Chat replies are not enabled" {
			t.Errorf("unexpected reply: %q", got)
		}
	})

	t.Run("rate limit maps to friendly reply", func(t *testing.T) {
		b, api := newTestBot(t, &Dependencies{Provider: &ai.MockProvider{Err: ai.ErrRateLimited}})

		b.handleUpdate(context.Background(), commandUpdate(100, "hello"))

		if got := api.lastMessage(t).Text; got != "Too many requests, try again later" {
			t.Errorf("unexpected reply: %q", got)
		}
	})

	t.Run("media message is acknowledged without provider call", func(t *testing.T) {
		provider := &ai.MockProvider{Reply: "42"}
		b, api := newTestBot(t, &Dependencies{Provider: provider})

		update := commandUpdate(100, "")
		update.Message.Sticker = &tgbotapi.Sticker{FileID: "sticker1"}
		b.handleUpdate(context.Background(), update)

		if got := api.lastMessage(t).Text; got != "Text only, sorry" {
			t.Errorf("unexpected reply: %q", got)
		}
		if len(provider.Calls) != 0 {
			t.Errorf("expected no provider calls, got %d", len(provider.Calls))
		}
	})
}

func TestHandleCallback(t *testing.T) {
	callbackUpdate := func(userID int64, data string) tgbotapi.Update {
		return tgbotapi.Update{
			UpdateID: 2,
			CallbackQuery: &tgbotapi.CallbackQuery{
				ID:   "cb1",
				From: &tgbotapi.User{ID: userID, UserName: "alice"},
				Data: data,
				Message: &tgbotapi.Message{
					MessageID: 20,
					Chat:      &tgbotapi.Chat{ID: userID},
				},
			},
		}
	}

	t.Run("language callback persists choice", func(t *testing.T) {
		deps := &Dependencies{Store: newTestStore(t)}
		b, api := newTestBot(t, deps)

		// User must exist before a language can be stored
		b.handleUpdate(context.Background(), commandUpdate(100, "/start"))
		b.handleUpdate(context.Background(), callbackUpdate(100, "lang:ru"))

		user, err := deps.Store.GetUser(context.Background(), 100)
		if err != nil {
			t.Fatalf("GetUser failed: %v", err)
		}
		if user.Language != "ru" {
			t.Errorf("expected language ru, got %s", user.Language)
		}
		if len(api.requests) == 0 {
			t.Error("expected callback answered")
		}
	})

	t.Run("unknown language rejected", func(t *testing.T) {
		deps := &Dependencies{Store: newTestStore(t)}
		b, _ := newTestBot(t, deps)

		b.handleUpdate(context.Background(), commandUpdate(100, "/start"))
		b.handleUpdate(context.Background(), callbackUpdate(100, "lang:xx"))

		user, err := deps.Store.GetUser(context.Background(), 100)
		if err != nil {
			t.Fatalf("GetUser failed: %v", err)
		}
		if user.Language != "en" {
			t.Errorf("expected language unchanged, got %s", user.Language)
		}
	})

	t.Run("garbage payload ignored", func(t *testing.T) {
		b, _ := newTestBot(t, nil)
		b.handleUpdate(context.Background(), callbackUpdate(100, "nonsense"))
	})
}

func TestHandleUpdatePanicRecovery(t *testing.T) {
	b, _ := newTestBot(t, nil)

	// A message without Chat panics inside the handler; the catch-all
	// boundary must absorb it.
	b.handleUpdate(context.Background(), tgbotapi.Update{
		UpdateID: 3,
		Message: &tgbotapi.Message{
			From: &tgbotapi.User{ID: 1, UserName: "x"},
			Text: "/start",
		},
	})
}

func TestLifecycle(t *testing.T) {
	t.Run("polling feeds processing loop", func(t *testing.T) {
		deps := &Dependencies{Store: newTestStore(t)}
		b, api := newTestBot(t, deps)
		ctx := context.Background()

		if err := b.Start(ctx); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		if err := b.StartPolling(ctx); err != nil {
			t.Fatalf("StartPolling failed: %v", err)
		}

		api.updates <- commandUpdate(100, "/start")

		deadline := time.After(2 * time.Second)
		for {
			if len(api.sentMessages(t)) > 0 {
				break
			}
			select {
			case <-deadline:
				t.Fatal("update never processed")
			case <-time.After(10 * time.Millisecond):
			}
		}

		b.StopPolling()
		b.Stop()
		b.Shutdown()
	})

	t.Run("teardown tolerates skipped startup", func(t *testing.T) {
		b, _ := newTestBot(t, nil)
		// Polling and processing never started
		b.StopPolling()
		b.Stop()
		b.Shutdown()
	})

	t.Run("stop is idempotent", func(t *testing.T) {
		b, _ := newTestBot(t, nil)
		if err := b.Start(context.Background()); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		b.Stop()
		b.Stop()
	})

	t.Run("start before initialize fails", func(t *testing.T) {
		b, err := New(Config{Token: "t"}, Dependencies{
			Store:   newTestStore(t),
			Locales: newTestLocales(t),
		})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if err := b.Start(context.Background()); err == nil {
			t.Error("expected error before Initialize")
		}
	})
}
