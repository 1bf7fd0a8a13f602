// Package notify pushes high-severity alerts to an external channel. The
// dashboard shows every alert; this path exists for the ones that should not
// wait for someone to look at a screen.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"exec-feed-sync/internal/record"
)

// Notifier delivers one alert to an out-of-band channel.
type Notifier interface {
	Notify(ctx context.Context, alert record.Alert) error
}

// TelegramNotifier pushes alerts through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram pusher.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "notify_telegram").Logger(),
	}
}

// Notify posts the alert text via sendMessage.
func (n *TelegramNotifier) Notify(ctx context.Context, alert record.Alert) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(alert),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected telegram status: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().
		Str("alert", alert.ID).
		Str("severity", string(alert.Severity)).
		Msg("alert pushed to telegram")
	return nil
}

func renderMessage(alert record.Alert) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[tapewatch] %s alert\n", strings.ToUpper(string(alert.Severity))))
	if alert.Instrument != "" {
		builder.WriteString(fmt.Sprintf("Instrument: %s\n", alert.Instrument))
	}
	builder.WriteString(fmt.Sprintf("At: %s UTC\n", alert.CreatedAt.UTC().Format(time.RFC3339)))
	builder.WriteString(alert.Message)
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
