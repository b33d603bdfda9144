// Package telegram adapts the Telegram Bot API to the bot dispatcher and the permit notifier.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/permitbot/internal/bot"
	"github.com/MarkoPoloResearchLab/permitbot/pkg/permit"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	pollTimeoutSeconds = 30
	pollRetryDelay     = 3 * time.Second
)

// ErrSendFailed wraps every outbound delivery failure.
var ErrSendFailed = errors.New("telegram send failed")

// API is the subset of *tgbotapi.BotAPI used by Client.
type API interface {
	Send(chattable tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(chattable tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
}

// Handler consumes converted inbound messages.
type Handler interface {
	Handle(ctx context.Context, message bot.Message) error
}

// Client sends and receives chat messages.
type Client struct {
	api    API
	logger *zap.Logger
}

// NewBotAPI authenticates the bot token against Telegram.
func NewBotAPI(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: authorize bot: %w", err)
	}
	return api, nil
}

// NewClient wraps api.
func NewClient(api API, logger *zap.Logger) (*Client, error) {
	if api == nil {
		return nil, errors.New("telegram: api is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{api: api, logger: logger}, nil
}

// SendText delivers a plain text message.
func (client *Client) SendText(ctx context.Context, owner permit.OwnerID, text string) error {
	if _, err := client.api.Send(tgbotapi.NewMessage(owner.Int64(), text)); err != nil {
		return fmt.Errorf("%w: text to %s: %v", ErrSendFailed, owner, err)
	}
	return nil
}

// SendDocument uploads the file at path.
func (client *Client) SendDocument(ctx context.Context, owner permit.OwnerID, path string, caption string) error {
	document := tgbotapi.NewDocument(owner.Int64(), tgbotapi.FilePath(path))
	document.Caption = caption
	if _, err := client.api.Send(document); err != nil {
		return fmt.Errorf("%w: document %s to %s: %v", ErrSendFailed, path, owner, err)
	}
	return nil
}

// Notify implements permit.Notifier.
func (client *Client) Notify(ctx context.Context, owner permit.OwnerID, text string) error {
	return client.SendText(ctx, owner, text)
}

// SetWebhook registers url as the update endpoint.
func (client *Client) SetWebhook(url string) error {
	webhook, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("telegram: webhook url: %w", err)
	}
	if _, err := client.api.Request(webhook); err != nil {
		return fmt.Errorf("telegram: set webhook: %w", err)
	}
	client.logger.Info("webhook registered", zap.String("url", url))
	return nil
}

// DeleteWebhook switches the bot back to long polling.
func (client *Client) DeleteWebhook() error {
	if _, err := client.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("telegram: delete webhook: %w", err)
	}
	return nil
}

// Poll fetches updates until ctx is done.
func (client *Client) Poll(ctx context.Context, handler Handler) error {
	config := tgbotapi.NewUpdate(0)
	config.Timeout = pollTimeoutSeconds
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		updates, err := client.api.GetUpdates(config)
		if err != nil {
			client.logger.Warn("get updates", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pollRetryDelay):
			}
			continue
		}
		for _, update := range updates {
			if update.UpdateID >= config.Offset {
				config.Offset = update.UpdateID + 1
			}
			client.Dispatch(ctx, handler, update)
		}
	}
}

// Dispatch converts update and hands it to handler. Handler errors are logged.
func (client *Client) Dispatch(ctx context.Context, handler Handler, update tgbotapi.Update) {
	message, ok := ConvertUpdate(update)
	if !ok {
		return
	}
	if err := handler.Handle(ctx, message); err != nil {
		client.logger.Error("handle update",
			zap.Int("update_id", update.UpdateID),
			zap.Int64("owner", message.Owner.Int64()),
			zap.Error(err),
		)
	}
}
