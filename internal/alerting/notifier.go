package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fuel-price-tracker/internal/analytics"
)

// Notification 封装一次价格变动告警。
type Notification struct {
	At            time.Time
	Changes       []analytics.PriceDelta
	AdditionalMsg string
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
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
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
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
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Time("at", note.At).
		Int("changes", len(note.Changes)).
		Msg("告警已发送 (Telegram)")
	return nil
}

// LogNotifier 仅把告警写入日志，用于未配置推送渠道的环境。
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier 构造日志告警器。
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify writes one log line per price change.
func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	for _, c := range note.Changes {
		evt := n.logger.Info().Time("at", note.At).
			Str("fuel_type", c.FuelType).
			Str("current", c.Current.StringFixed(3)).
			Bool("added", c.Added)
		if !c.Added {
			evt = evt.Str("previous", c.Previous.StringFixed(3)).Str("delta", c.Delta.StringFixed(3))
		}
		evt.Msg("fuel price changed")
	}
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[Fuel Price Alert]\n")
	builder.WriteString(fmt.Sprintf("Time: %s UTC\n", note.At.UTC().Format(time.RFC3339)))
	for _, c := range note.Changes {
		if c.Added {
			builder.WriteString(fmt.Sprintf("%s: %s EUR (new)\n", c.FuelType, c.Current.StringFixed(3)))
			continue
		}
		arrow := "▲"
		if c.Delta.IsNegative() {
			arrow = "▼"
		}
		line := fmt.Sprintf("%s: %s → %s EUR %s %s", c.FuelType, c.Previous.StringFixed(3), c.Current.StringFixed(3), arrow, c.Delta.Abs().StringFixed(3))
		if c.Percent.Valid {
			line += fmt.Sprintf(" (%s%%)", c.Percent.Decimal.StringFixed(2))
		}
		builder.WriteString(line + "\n")
	}
	if note.AdditionalMsg != "" {
		builder.WriteString(note.AdditionalMsg)
	}
	return builder.String()
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
)
