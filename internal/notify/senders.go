package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"time"
)

const telegramAPI = "https://api.telegram.org"

// TelegramSender posts alerts through the Telegram Bot API.
type TelegramSender struct {
	baseURL string
	token   string
	chatID  string
	client  *http.Client
}

// NewTelegramSender creates a TelegramSender for a bot token and chat.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		baseURL: telegramAPI,
		token:   token,
		chatID:  chatID,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts the alert as HTML with the title in bold.
func (t *TelegramSender) Send(ctx context.Context, event, title, message string) error {
	text := fmt.Sprintf("<b>%s</b> <i>[%s]</i>\n%s",
		html.EscapeString(title), html.EscapeString(event), html.EscapeString(message))
	return postJSON(ctx, t.client, fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token), map[string]any{
		"chat_id":                  t.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}, "telegram")
}

func (t *TelegramSender) Name() string { return "telegram" }

// DiscordSender posts alerts to a Discord webhook as embeds.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for a webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

var embedColors = map[string]int{
	EventMarketCreated:   0x00f0ff,
	EventMarketResolved:  0xbd00ff,
	EventBridgeCompleted: 0x22c55e,
	EventError:           0xef4444,
}

// Send posts one embed coloured by event.
func (d *DiscordSender) Send(ctx context.Context, event, title, message string) error {
	return postJSON(ctx, d.client, d.webhookURL, map[string]any{
		"embeds": []map[string]any{{
			"title":       title,
			"description": message,
			"color":       embedColors[event],
			"footer":      map[string]string{"text": event},
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
		}},
	}, "discord")
}

func (d *DiscordSender) Name() string { return "discord" }

func postJSON(ctx context.Context, client *http.Client, url string, payload any, name string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: marshal payload: %w", name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: send request: %w", name, err)
	}
	defer resp.Body.Close()

	// Discord answers 204 on success.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s: unexpected status %d: %s", name, resp.StatusCode, string(respBody))
	}
	return nil
}
