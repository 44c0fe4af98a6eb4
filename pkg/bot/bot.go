// Package bot implements the primary Telegram front-end: connection
// setup, the update polling/processing loops, and their ordered
// teardown.
package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tgforge/tgforge/internal/logger"
	"github.com/tgforge/tgforge/pkg/ai"
	"github.com/tgforge/tgforge/pkg/locale"
	"github.com/tgforge/tgforge/pkg/metrics"
	"github.com/tgforge/tgforge/pkg/store"
)

// telegramAPI is the slice of the Telegram client the bot uses.
// Kept as an interface so handler logic is testable without network.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Escalator forwards a user message to the support channel.
// SendNotification never raises; it reports delivery as a bool.
type Escalator interface {
	SendNotification(text string) bool
}

// Config configures the primary front-end.
type Config struct {
	Token              string
	Name               string
	Description        string
	PollTimeout        time.Duration
	DropPendingUpdates bool
	SupportedLanguages []string
}

// Dependencies are the collaborators the bot consumes. Store and
// Locales are required; Provider and Support are optional and their
// absence degrades the matching features instead of failing setup.
type Dependencies struct {
	Store    *store.Store
	Locales  *locale.Manager
	Provider ai.Provider
	Support  Escalator

	// Metrics may be nil; the recorder is nil-safe.
	Metrics *metrics.BotMetrics
}

// Bot is the primary front-end.
//
// Lifecycle contract, driven by the orchestrator in this order:
// Initialize (connect, verify token), Start (processing loop),
// StartPolling (update fetch loop), then StopPolling, Stop, Shutdown in
// reverse. Each teardown step is safe to call when the matching startup
// step never ran.
type Bot struct {
	config Config
	deps   Dependencies

	api  telegramAPI
	self tgbotapi.User

	queue     chan tgbotapi.Update
	stopCh    chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	mu      sync.Mutex
	polling bool

	// connect is swapped in tests to avoid the network
	connect func(token string) (telegramAPI, tgbotapi.User, error)
}

// New creates an unconnected bot.
func New(config Config, deps Dependencies) (*Bot, error) {
	if config.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("bot requires a store")
	}
	if deps.Locales == nil {
		return nil, fmt.Errorf("bot requires a locale manager")
	}
	if config.PollTimeout == 0 {
		config.PollTimeout = 30 * time.Second
	}

	return &Bot{
		config:  config,
		deps:    deps,
		queue:   make(chan tgbotapi.Update, 64),
		stopCh:  make(chan struct{}),
		connect: connectTelegram,
	}, nil
}

func connectTelegram(token string) (telegramAPI, tgbotapi.User, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, tgbotapi.User{}, err
	}
	return api, api.Self, nil
}

// Initialize connects to Telegram and verifies the token.
func (b *Bot) Initialize(ctx context.Context) error {
	if b.api != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	api, self, err := b.connect(b.config.Token)
	if err != nil {
		return fmt.Errorf("failed to connect to Telegram: %w", err)
	}
	b.api = api
	b.self = self

	logger.Info("Connected to Telegram", "username", self.UserName, "bot_id", self.ID)
	return nil
}

// Start launches the update processing loop. Idempotent.
func (b *Bot) Start(ctx context.Context) error {
	if b.api == nil {
		return fmt.Errorf("bot not initialized")
	}

	b.startOnce.Do(func() {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			for {
				select {
				case update := <-b.queue:
					b.handleUpdate(ctx, update)
				case <-b.stopCh:
					return
				}
			}
		}()
		logger.Info("Update processing loop started", "bot", b.config.Name)
	})
	return nil
}

// StartPolling begins fetching updates and feeding the processing loop.
// It returns once the fetch loop is running.
func (b *Bot) StartPolling(ctx context.Context) error {
	if b.api == nil {
		return fmt.Errorf("bot not initialized")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.polling {
		return nil
	}

	if b.config.DropPendingUpdates {
		// Discard the backlog accumulated while the bot was down
		if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: true}); err != nil {
			logger.Warn("Failed to drop pending updates", "error", err)
		}
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(b.config.PollTimeout.Seconds())
	updates := b.api.GetUpdatesChan(u)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		// Exits when StopReceivingUpdates closes the channel
		for update := range updates {
			select {
			case b.queue <- update:
			case <-b.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	b.polling = true
	logger.Info("Polling started", "timeout", b.config.PollTimeout)
	return nil
}

// StopPolling stops the update fetch loop. Safe when polling never started.
func (b *Bot) StopPolling() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.polling {
		return
	}

	b.api.StopReceivingUpdates()
	b.polling = false
	logger.Info("Polling stopped")
}

// Stop drains and stops the processing loop. Safe to call repeatedly
// and when Start never ran.
func (b *Bot) Stop() {
	b.StopPolling()

	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
	b.wg.Wait()
	logger.Info("Update processing loop stopped")
}

// Shutdown releases the connection. Last step of teardown.
func (b *Bot) Shutdown() {
	b.api = nil
	logger.Info("Bot shut down", "bot", b.config.Name)
}

// Username returns the connected bot account name.
func (b *Bot) Username() string {
	return b.self.UserName
}

// SendTo delivers a plain text message to a chat. Used for operator
// notifications routed through the primary connection.
func (b *Bot) SendTo(chatID int64, text string) error {
	if b.api == nil {
		return fmt.Errorf("bot not initialized")
	}
	_, err := b.api.Send(tgbotapi.NewMessage(chatID, text))
	return err
}
