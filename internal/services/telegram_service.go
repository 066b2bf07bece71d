package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const telegramAPIURL = "https://api.telegram.org"

// TelegramService handles sending notifications to Telegram.
type TelegramService struct {
	botToken    string
	adminChatID string
	baseURL     string
	client      *http.Client
	log         *zap.Logger
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string, log *zap.Logger) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		baseURL:     telegramAPIURL,
		client:      &http.Client{Timeout: 10 * time.Second},
		log:         log,
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to specified chat.
func (s *TelegramService) SendMessage(ctx context.Context, chatID, text string) error {
	if s.botToken == "" {
		s.log.Debug("telegram bot token not configured")
		return nil
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.botToken)

	msg := telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	return nil
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(ctx context.Context, text string) error {
	if s.adminChatID == "" {
		s.log.Debug("telegram admin chat not configured")
		return nil
	}
	return s.SendMessage(ctx, s.adminChatID, text)
}

// Send implements Alerter.
func (s *TelegramService) Send(ctx context.Context, alert Alert) error {
	return s.SendToAdmin(ctx, formatTelegramAlert(alert))
}

func formatTelegramAlert(alert Alert) string {
	var b strings.Builder
	if alert.Severity == AlertError {
		b.WriteString("<b>⚠️ ")
	} else {
		b.WriteString("<b>✅ ")
	}
	b.WriteString(html.EscapeString(alert.Title))
	b.WriteString("</b>\n")
	fmt.Fprintf(&b, "<b>Order:</b> %s\n", html.EscapeString(alert.OrderID))
	if alert.TradeNo != "" {
		fmt.Fprintf(&b, "<b>Trade:</b> %s\n", html.EscapeString(alert.TradeNo))
	}
	fmt.Fprintf(&b, "<b>Amount:</b> ¥%s\n", alert.Amount.StringFixed(2))
	if alert.Severity == AlertError {
		fmt.Fprintf(&b, "<b>Reported:</b> ¥%s\n", alert.ReportedAmount.StringFixed(2))
	} else {
		fmt.Fprintf(&b, "<b>Points:</b> +%d (balance %d)\n", alert.Points, alert.Balance)
	}
	b.WriteString("━━━━━━━━━━━━━━━━━━")
	return b.String()
}
