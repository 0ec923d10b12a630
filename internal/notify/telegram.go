package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram sends alerts to a single chat via the Bot API.
type Telegram struct {
	bot        *tgbotapi.BotAPI
	chatID     int64
	maxRetries int
	retryDelay time.Duration
}

// NewTelegram creates a Telegram notifier for the given bot token and
// numeric chat id.
func NewTelegram(botToken, chatID string) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat id: %w", err)
	}
	return &Telegram{
		bot:        bot,
		chatID:     id,
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

// Alert sends a plain-text message with linear-backoff retry.
func (t *Telegram) Alert(ctx context.Context, subject, body string) error {
	msg := tgbotapi.NewMessage(t.chatID, subject+"\n\n"+body)

	var lastErr error
	for i := 0; i < t.maxRetries; i++ {
		if _, err := t.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.retryDelay * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("telegram alert failed after %d retries: %w", t.maxRetries, lastErr)
}
