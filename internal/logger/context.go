package logger

import (
	"context"
	"time"
)

// Standard field keys for structured logging. Use these keys consistently
// across all log statements so update handling can be correlated and queried.
const (
	KeyUpdateID = "update_id" // Telegram update identifier
	KeyChatID   = "chat_id"   // Chat the update belongs to
	KeyUserID   = "user_id"   // Telegram user identifier
	KeyUsername = "username"  // Telegram username (may be empty)
	KeyHandler  = "handler"   // Handler that processed the update
	KeyCommand  = "command"   // Bot command name, without the leading slash
	KeyLanguage = "language"  // User's preferred language code
	KeyRevision = "revision"  // Schema revision identifier
	KeyPhase    = "phase"     // Orchestrator lifecycle phase
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds update-scoped logging context
type LogContext struct {
	UpdateID  int       // Telegram update ID
	ChatID    int64     // Chat the update belongs to
	UserID    int64     // Telegram user ID
	Username  string    // Telegram username
	Handler   string    // Handler name (start, help, text, ...)
	StartTime time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for the given update
func NewLogContext(updateID int) *LogContext {
	return &LogContext{
		UpdateID:  updateID,
		StartTime: time.Now(),
	}
}

// WithHandler returns a copy with the handler name set
func (lc *LogContext) WithHandler(handler string) *LogContext {
	clone := lc.clone()
	if clone != nil {
		clone.Handler = handler
	}
	return clone
}

// WithUser returns a copy with the user identity set
func (lc *LogContext) WithUser(userID int64, username string) *LogContext {
	clone := lc.clone()
	if clone != nil {
		clone.UserID = userID
		clone.Username = username
	}
	return clone
}

// WithChat returns a copy with the chat set
func (lc *LogContext) WithChat(chatID int64) *LogContext {
	clone := lc.clone()
	if clone != nil {
		clone.ChatID = chatID
	}
	return clone
}

func (lc *LogContext) clone() *LogContext {
	if lc == nil {
		return nil
	}
	c := *lc
	return &c
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}

// InfoCtx logs at info level with update context fields prepended
func InfoCtx(ctx context.Context, msg string, args ...any) {
	if LevelInfo < Level(currentLevel.Load()) {
		return
	}
	getLogger().Info(msg, appendContextFields(ctx, args)...)
}

// WarnCtx logs at warn level with update context fields prepended
func WarnCtx(ctx context.Context, msg string, args ...any) {
	if LevelWarn < Level(currentLevel.Load()) {
		return
	}
	getLogger().Warn(msg, appendContextFields(ctx, args)...)
}

// ErrorCtx logs at error level with update context fields prepended
func ErrorCtx(ctx context.Context, msg string, args ...any) {
	getLogger().Error(msg, appendContextFields(ctx, args)...)
}

// DebugCtx logs at debug level with update context fields prepended
func DebugCtx(ctx context.Context, msg string, args ...any) {
	if LevelDebug < Level(currentLevel.Load()) {
		return
	}
	getLogger().Debug(msg, appendContextFields(ctx, args)...)
}

// appendContextFields prepends LogContext fields so they appear first in output
func appendContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	ctxArgs := make([]any, 0, 10+len(args))

	if lc.UpdateID != 0 {
		ctxArgs = append(ctxArgs, KeyUpdateID, lc.UpdateID)
	}
	if lc.ChatID != 0 {
		ctxArgs = append(ctxArgs, KeyChatID, lc.ChatID)
	}
	if lc.UserID != 0 {
		ctxArgs = append(ctxArgs, KeyUserID, lc.UserID)
	}
	if lc.Username != "" {
		ctxArgs = append(ctxArgs, KeyUsername, lc.Username)
	}
	if lc.Handler != "" {
		ctxArgs = append(ctxArgs, KeyHandler, lc.Handler)
	}

	return append(ctxArgs, args...)
}
