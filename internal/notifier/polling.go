package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ExtremaSentinel/internal/logger"
)

// pollBackoff is the pause after a failed getUpdates call.
var pollBackoff = 5 * time.Second

// CommandHandler is called when a user command is received.
type CommandHandler func(ctx context.Context, command string) string

// telegramUpdate represents a Telegram update from long polling.
type telegramUpdate struct {
	UpdateID int `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

// StartPolling begins long-polling for Telegram commands. Blocks until ctx is
// cancelled. Messages from chats other than ChatID are ignored.
func (t *TelegramNotifier) StartPolling(ctx context.Context, handler CommandHandler) {
	log := logger.GetLogger().WithComponent("telegram-poller")
	offset := 0
	client := &http.Client{Timeout: 35 * time.Second, Transport: t.Client.Transport}

	for {
		select {
		case <-ctx.Done():
			log.Info("Telegram polling stopped")
			return
		default:
		}

		apiURL := fmt.Sprintf("%s?offset=%d&timeout=30", t.endpoint("getUpdates"), offset)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			log.WithError(err).Error("create polling request")
			sleepCtx(ctx, pollBackoff)
			continue
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Warn("polling request failed")
			sleepCtx(ctx, pollBackoff)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			log.WithError(err).Warn("read polling response")
			sleepCtx(ctx, pollBackoff)
			continue
		}

		var result struct {
			OK          bool             `json:"ok"`
			Description string           `json:"description"`
			Result      []telegramUpdate `json:"result"`
		}
		if err := json.Unmarshal(body, &result); err != nil {
			log.WithError(err).WithField("status", resp.StatusCode).Warn("decode polling response")
			sleepCtx(ctx, pollBackoff)
			continue
		}
		if resp.StatusCode != http.StatusOK || !result.OK {
			// 401 revoked token, 409 webhook set or a second poller running.
			log.WithFields(logger.Fields{
				"status":      resp.StatusCode,
				"description": result.Description,
			}).Error("getUpdates rejected")
			sleepCtx(ctx, pollBackoff)
			continue
		}

		for _, update := range result.Result {
			offset = update.UpdateID + 1
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			if fmt.Sprint(update.Message.Chat.ID) != t.ChatID {
				log.WithField("chat_id", update.Message.Chat.ID).Warn("ignoring command from unknown chat")
				continue
			}
			text := strings.TrimSpace(update.Message.Text)
			log.WithField("command", text).Info("received command")
			reply := handler(ctx, text)
			if reply != "" {
				if err := t.Notify(ctx, reply); err != nil {
					log.WithError(err).Error("send reply")
				}
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
