// Package support implements the optional escalation channel: a second
// bot account that relays user reports into a staff chat and staff
// replies back out.
package support

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tgforge/tgforge/internal/logger"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Config configures the escalation channel.
type Config struct {
	Token       string
	ChatID      int64
	PollTimeout time.Duration
}

// Channel is the secondary front-end.
//
// Lifecycle contract: Setup (connect, verify token and chat), Start
// (reply relay loop), Stop. Stop is safe when Start never ran.
// SendNotification never raises; it reports delivery as a bool.
type Channel struct {
	config Config

	api  telegramAPI
	self tgbotapi.User

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup

	connect func(token string) (telegramAPI, tgbotapi.User, error)
}

// New creates an unconnected channel.
func New(config Config) (*Channel, error) {
	if config.Token == "" {
		return nil, fmt.Errorf("support token is required")
	}
	if config.ChatID == 0 {
		return nil, fmt.Errorf("support chat_id is required")
	}
	if config.PollTimeout == 0 {
		config.PollTimeout = 30 * time.Second
	}

	return &Channel{
		config:  config,
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

// Setup connects to Telegram and verifies the token.
func (c *Channel) Setup(ctx context.Context) error {
	if c.api != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	api, self, err := c.connect(c.config.Token)
	if err != nil {
		return fmt.Errorf("failed to connect support bot: %w", err)
	}
	c.api = api
	c.self = self

	logger.Info("Support channel connected", "username", self.UserName, "chat_id", c.config.ChatID)
	return nil
}

// Start launches the staff reply relay loop. Idempotent.
func (c *Channel) Start(ctx context.Context) error {
	if c.api == nil {
		return fmt.Errorf("support channel not set up")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(c.config.PollTimeout.Seconds())
	updates := c.api.GetUpdatesChan(u)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for update := range updates {
			c.handleUpdate(ctx, update)
		}
	}()

	c.running = true
	logger.Info("Support channel started")
	return nil
}

// Stop halts the relay loop. Safe when Start never ran; never raises.
func (c *Channel) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	c.api.StopReceivingUpdates()
	c.wg.Wait()
	logger.Info("Support channel stopped")
}

// IsRunning reports whether the relay loop is active.
func (c *Channel) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// SendNotification delivers text to the staff chat. Never raises;
// returns false on any failure.
func (c *Channel) SendNotification(text string) bool {
	if c.api == nil {
		logger.Warn("Support notification dropped, channel not set up")
		return false
	}

	if _, err := c.api.Send(tgbotapi.NewMessage(c.config.ChatID, text)); err != nil {
		logger.Warn("Failed to deliver support notification", "error", err)
		return false
	}
	return true
}

// handleUpdate relays a staff reply back to the original user.
//
// Staff reply by quoting the escalated message inside the staff chat;
// the user id is recovered from the quoted text's "(id)" marker written
// by the primary bot.
func (c *Channel) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in support relay", "update_id", update.UpdateID, "panic", r)
		}
	}()

	msg := update.Message
	if msg == nil || msg.Chat == nil || msg.Chat.ID != c.config.ChatID {
		return
	}
	if msg.ReplyToMessage == nil || msg.Text == "" {
		return
	}

	userID, ok := extractUserID(msg.ReplyToMessage.Text)
	if !ok {
		logger.Debug("Support reply without recognizable target", "update_id", update.UpdateID)
		return
	}

	if _, err := c.api.Send(tgbotapi.NewMessage(userID, msg.Text)); err != nil {
		logger.Warn("Failed to relay support reply", "user_id", userID, "error", err)
		return
	}
	logger.InfoCtx(ctx, "Relayed support reply", "user_id", userID)
}

// extractUserID pulls the user id out of an escalation header of the
// form "From @name (12345):".
func extractUserID(text string) (int64, bool) {
	open := strings.Index(text, "(")
	if open < 0 {
		return 0, false
	}
	end := strings.Index(text[open:], ")")
	if end < 0 {
		return 0, false
	}

	id, err := strconv.ParseInt(text[open+1:open+end], 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
