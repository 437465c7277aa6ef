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

	"spread-radar/internal/market"
)

const telegramMaxRows = 5

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
func (n *TelegramNotifier) Notify(ctx context.Context, alert Alert) error {
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

	n.logger.Info().Time("at", alert.At).
		Int("routes", len(alert.Rows)).
		Str("threshold_bps", alert.ThresholdBps.String()).
		Msg("告警已发送 (Telegram)")
	return nil
}

func renderMessage(alert Alert) string {
	builder := strings.Builder{}
	builder.WriteString("[Spread Radar Alert]\n")
	builder.WriteString(fmt.Sprintf("Time: %s UTC\n", alert.At.UTC().Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("Threshold: NET >= %s bps\n", FormatThreshold(alert.ThresholdBps)))
	if alert.RunID != "" {
		builder.WriteString(fmt.Sprintf("Run: %s\n", alert.RunID))
	}

	for i, row := range alert.Rows {
		if i == telegramMaxRows {
			builder.WriteString(fmt.Sprintf("... and %d more\n", len(alert.Rows)-telegramMaxRows))
			break
		}
		builder.WriteString(fmt.Sprintf("%s: buy %s @ %s, sell %s @ %s, net %s bps, pnl %s USD\n",
			row.Symbol,
			row.BuyVenue, market.FormatPrice(row.Ask),
			row.SellVenue, market.FormatPrice(row.Bid),
			market.FormatBps(row.Net),
			market.FormatUSD(row.PnLUSD, 4),
		))
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
