// Package notify delivers best-effort operator notifications.
package notify

import (
	"context"

	"github.com/tgforge/tgforge/internal/logger"
)

// Sink receives operator notifications (startup, shutdown, errors).
// Delivery is best-effort: implementations log failures and never
// return them, so notification problems cannot affect lifecycle flow.
type Sink interface {
	Send(ctx context.Context, text string)
}

// Messenger is the outbound slice of a front-end.
type Messenger interface {
	SendTo(chatID int64, text string) error
}

// FrontEndSink routes notifications to a fixed maintainer chat through
// the primary front-end's connection.
type FrontEndSink struct {
	messenger Messenger
	chatID    int64
}

// NewFrontEndSink creates a sink addressing the given chat.
func NewFrontEndSink(messenger Messenger, chatID int64) *FrontEndSink {
	return &FrontEndSink{messenger: messenger, chatID: chatID}
}

// Send implements Sink.
func (s *FrontEndSink) Send(ctx context.Context, text string) {
	if s.messenger == nil || s.chatID == 0 {
		return
	}
	if ctx.Err() != nil {
		logger.Debug("Skipping notification, context done", "chat_id", s.chatID)
		return
	}

	if err := s.messenger.SendTo(s.chatID, text); err != nil {
		logger.Warn("Failed to send maintainer notification",
			"chat_id", s.chatID, "error", err)
	}
}

// NopSink discards notifications. Used when no maintainer is configured.
type NopSink struct{}

// Send implements Sink.
func (NopSink) Send(context.Context, string) {}
