// Package notify delivers the rendered run report to an external chat
// sink. Delivery is best effort: a failed notification never fails a run.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/Lxi0707/Typecho-play/internal/config"
)

// Notifier accepts one formatted report string per run. Enabled lets the
// caller skip delivery entirely when the sink has no credentials.
type Notifier interface {
	Enabled() bool
	Notify(ctx context.Context, text string) error
}

// Telegram posts reports through the Bot API sendMessage endpoint.
type Telegram struct {
	client  *http.Client
	apiBase string
	token   string
	chatID  string
}

// NewTelegram builds a notifier from configuration, falling back to the
// TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID environment variables.
func NewTelegram(cfg config.TelegramConfig) *Telegram {
	token := cfg.Token
	if token == "" {
		token = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
	chatID := cfg.ChatID
	if chatID == "" {
		chatID = os.Getenv("TELEGRAM_CHAT_ID")
	}
	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = "https://api.telegram.org"
	}
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Telegram{
		client:  &http.Client{Timeout: timeout},
		apiBase: apiBase,
		token:   token,
		chatID:  chatID,
	}
}

// Enabled reports whether both credentials are present.
func (t *Telegram) Enabled() bool {
	return t != nil && t.token != "" && t.chatID != ""
}

// Notify sends the report text to the configured chat.
func (t *Telegram) Notify(ctx context.Context, text string) error {
	if !t.Enabled() {
		return fmt.Errorf("telegram notifier not configured")
	}

	payload, err := json.Marshal(map[string]any{
		"chat_id":                  t.chatID,
		"text":                     text,
		"disable_web_page_preview": true,
	})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram responded with HTTP %d", resp.StatusCode)
	}
	return nil
}
