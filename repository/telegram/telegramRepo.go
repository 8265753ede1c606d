package telegramrepo

import (
	"context"
	"log/slog"
)

// Notifier delivers one text message to the configured operator chat.
// Delivery is best-effort: callers log failures and move on.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

type noop struct{}

// NewNoop returns a Notifier that drops every message. Used when no bot
// token is configured, so local setups run without a Telegram bot.
func NewNoop() Notifier { return noop{} }

func (noop) Send(_ context.Context, text string) error {
	slog.Debug("telegram disabled, dropping notification", "text", text)
	return nil
}
