package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tgforge/tgforge/internal/logger"
	"github.com/tgforge/tgforge/pkg/ai"
	"github.com/tgforge/tgforge/pkg/bot/keyboard"
)

// handleUpdate routes one update. It is the catch-all boundary: a
// failure or panic here is logged with the update context and never
// terminates the process.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	start := time.Now()
	handler := "message"

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic while handling update", "update_id", update.UpdateID, "panic", r)
			b.deps.Metrics.ObserveError(handler)
		}
		b.deps.Metrics.ObserveUpdate(handler, time.Since(start))
	}()

	switch {
	case update.CallbackQuery != nil:
		handler = "callback"
		b.handleCallback(ctx, update)
	case update.Message != nil:
		if update.Message.IsCommand() {
			handler = update.Message.Command()
		} else {
			handler = "text"
		}
		b.handleMessage(ctx, update)
	}
}

func (b *Bot) handleMessage(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg.From == nil {
		return
	}

	lc := logger.NewLogContext(update.UpdateID).
		WithUser(msg.From.ID, msg.From.UserName).
		WithChat(msg.Chat.ID)
	ctx = logger.WithContext(ctx, lc)

	user, err := b.deps.Store.EnsureUser(ctx, msg.From.ID, msg.From.UserName)
	if err != nil {
		logger.ErrorCtx(ctx, "Failed to ensure user", "error", err)
		b.reply(ctx, msg.Chat.ID, b.deps.Locales.Get("en", "error.generic"))
		return
	}
	lang := user.Language

	if msg.IsCommand() {
		b.handleCommand(ctx, msg, lang)
		return
	}

	b.handleText(ctx, msg, lang)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, lang string) {
	command := msg.Command()
	ctx = logger.WithContext(ctx, logger.FromContext(ctx).WithHandler(command))
	logger.InfoCtx(ctx, "Handling command")

	switch command {
	case "start":
		greeting := b.deps.Locales.Format(lang, "start.greeting", b.config.Name)
		b.reply(ctx, msg.Chat.ID, greeting)

	case "help":
		body := b.deps.Locales.Get(lang, "help.body")
		if b.config.Description != "" {
			body = b.config.Description + "\n\n" + body
		}
		b.reply(ctx, msg.Chat.ID, body)

	case "language":
		prompt := tgbotapi.NewMessage(msg.Chat.ID, b.deps.Locales.Get(lang, "language.prompt"))
		prompt.ReplyMarkup = keyboard.LanguageSelector(b.config.SupportedLanguages, lang)
		b.send(ctx, prompt)

	case "stats":
		stats, err := b.deps.Store.GetStats(ctx)
		if err != nil {
			logger.ErrorCtx(ctx, "Failed to load stats", "error", err)
			b.reply(ctx, msg.Chat.ID, b.deps.Locales.Get(lang, "error.generic"))
			return
		}
		b.reply(ctx, msg.Chat.ID,
			b.deps.Locales.Format(lang, "stats.body", stats.TotalUsers))

	case "support":
		b.handleSupport(ctx, msg, lang)

	default:
		b.reply(ctx, msg.Chat.ID, b.deps.Locales.Get(lang, "command.unknown"))
	}
}

// handleSupport escalates the text after /support to the support channel.
func (b *Bot) handleSupport(ctx context.Context, msg *tgbotapi.Message, lang string) {
	if b.deps.Support == nil {
		b.reply(ctx, msg.Chat.ID, b.deps.Locales.Get(lang, "support.disabled"))
		return
	}

	text := strings.TrimSpace(msg.CommandArguments())
	if text == "" {
		b.reply(ctx, msg.Chat.ID, b.deps.Locales.Get(lang, "support.usage"))
		return
	}

	escalation := fmt.Sprintf("From @%s (%d):\n%s", msg.From.UserName, msg.From.ID, text)
	if b.deps.Support.SendNotification(escalation) {
		b.reply(ctx, msg.Chat.ID, b.deps.Locales.Get(lang, "support.sent"))
	} else {
		b.reply(ctx, msg.Chat.ID, b.deps.Locales.Get(lang, "support.failed"))
	}
}

// handleText answers free-form messages with the AI provider when one
// is configured.
func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message, lang string) {
	ctx = logger.WithContext(ctx, logger.FromContext(ctx).WithHandler("text"))

	// Stickers, photos, voice notes and the like carry no text
	if msg.Text == "" {
		b.reply(ctx, msg.Chat.ID, b.deps.Locales.Get(lang, "media.unsupported"))
		return
	}

	if b.deps.Provider == nil {
		b.reply(ctx, msg.Chat.ID, b.deps.Locales.Get(lang, "ai.disabled"))
		return
	}

	reply, err := b.deps.Provider.Complete(ctx, []ai.Message{
		{Role: "user", Content: msg.Text},
	})
	if err != nil {
		logger.ErrorCtx(ctx, "AI completion failed", "error", err)
		b.reply(ctx, msg.Chat.ID, b.aiErrorReply(lang, err))
		return
	}

	b.reply(ctx, msg.Chat.ID, reply)
}

// aiErrorReply picks the user-facing message for a provider failure.
func (b *Bot) aiErrorReply(lang string, err error) string {
	switch {
	case errors.Is(err, ai.ErrRateLimited):
		return b.deps.Locales.Get(lang, "ai.rate_limited")
	case errors.Is(err, ai.ErrInsufficientCredits), errors.Is(err, ai.ErrInvalidAPIKey):
		return b.deps.Locales.Get(lang, "ai.unavailable")
	default:
		return b.deps.Locales.Get(lang, "error.generic")
	}
}

func (b *Bot) handleCallback(ctx context.Context, update tgbotapi.Update) {
	cb := update.CallbackQuery

	lc := logger.NewLogContext(update.UpdateID).
		WithUser(cb.From.ID, cb.From.UserName).
		WithHandler("callback")
	ctx = logger.WithContext(ctx, lc)

	code, ok := keyboard.ParseLanguageCallback(cb.Data)
	if !ok {
		logger.WarnCtx(ctx, "Unknown callback payload", "data", cb.Data)
		return
	}

	if !b.deps.Locales.Has(code) {
		b.answerCallback(ctx, cb.ID, b.deps.Locales.Get("en", "error.generic"))
		return
	}

	if err := b.deps.Store.SetLanguage(ctx, cb.From.ID, code); err != nil {
		logger.ErrorCtx(ctx, "Failed to set language", "language", code, "error", err)
		b.answerCallback(ctx, cb.ID, b.deps.Locales.Get("en", "error.generic"))
		return
	}

	logger.InfoCtx(ctx, "Language updated", "language", code)
	b.answerCallback(ctx, cb.ID, "")

	if cb.Message != nil {
		confirmation := b.deps.Locales.Format(code, "language.updated", keyboard.LabelFor(code))
		edit := tgbotapi.NewEditMessageText(cb.Message.Chat.ID, cb.Message.MessageID, confirmation)
		b.send(ctx, edit)
	}
}

// reply sends a plain text message.
func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	b.send(ctx, tgbotapi.NewMessage(chatID, text))
}

// send delivers a chattable, logging failure. Outbound delivery is
// best-effort at this layer; Telegram retries are the client's concern.
func (b *Bot) send(ctx context.Context, c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		logger.ErrorCtx(ctx, "Failed to send message", "error", err)
	}
}

func (b *Bot) answerCallback(ctx context.Context, id, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, text)); err != nil {
		logger.WarnCtx(ctx, "Failed to answer callback", "error", err)
	}
}
