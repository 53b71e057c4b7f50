package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tradeguard/internal/domain"
)

// NotificationService posts close notifications to a Telegram chat. It is a
// no-op when no bot token or chat is configured.
type NotificationService struct {
	bot      *tgbotapi.BotAPI
	chatID   int64
	enabled  bool
	location *time.Location
}

// NewNotificationService connects to the Bot API at endpoint (a format string
// like tgbotapi.APIEndpoint; empty means the default).
func NewNotificationService(botToken string, chatID int64, endpoint string, location *time.Location) (*NotificationService, error) {
	if location == nil {
		location = time.UTC
	}
	s := &NotificationService{chatID: chatID, location: location}
	if botToken == "" || chatID == 0 {
		return s, nil
	}

	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithClient(botToken, endpoint, &http.Client{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to connect telegram bot: %w", err)
	}

	s.bot = bot
	s.enabled = true
	return s, nil
}

// Enabled reports whether messages are actually sent.
func (s *NotificationService) Enabled() bool { return s.enabled }

// SendClosed sends a close report for one trade.
func (s *NotificationService) SendClosed(ctx context.Context, e domain.ClosedEvent) error {
	if !s.enabled {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(s.chatID, FormatClosed(e, s.location))
	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// FormatClosed renders the notification text.
func FormatClosed(e domain.ClosedEvent, loc *time.Location) string {
	statusEmoji := "🎯"
	if e.Trigger == domain.TriggerStopLoss {
		statusEmoji = "🛑"
	}

	profit := "n/a"
	if e.RealizedProfit != nil {
		profit = fmt.Sprintf("%.2f", *e.RealizedProfit)
	}
	entry := "n/a"
	if e.EntryPrice != nil {
		entry = fmt.Sprintf("%.2f", *e.EntryPrice)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s TRADE CLOSED: %s\n\n", statusEmoji, e.Trigger)
	fmt.Fprintf(&b, "Symbol: %s (%s)\n", e.Symbol, e.SecurityID)
	fmt.Fprintf(&b, "Direction: %s, %s %d\n", strings.ToUpper(e.Direction.String()), e.Direction.CloseSide(), e.Quantity)
	b.WriteString("━━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(&b, "Entry: %s\n", entry)
	fmt.Fprintf(&b, "Exit: %.2f\n", e.ExitPrice)
	fmt.Fprintf(&b, "Realized P&L: %s\n", profit)
	fmt.Fprintf(&b, "Order: %s\n", e.OrderID)
	fmt.Fprintf(&b, "Time: %s", e.ClosedAt.In(loc).Format("2006-01-02 15:04:05"))
	return b.String()
}

var _ domain.NotificationService = (*NotificationService)(nil)
