package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cryptoBiasBot/internal/ports"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

// sender is the narrow surface of the Telegram bot API used by the notifier.
// It exists so tests can substitute the real bot.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier implements the ports.Notifier interface by sending messages to a
// Telegram chat.
type Notifier struct {
	bot    sender
	chatID int64
	logger ports.Logger
}

// Config holds configuration for the Telegram notifier.
type Config struct {
	Token  string
	ChatID int64
	Logger ports.Logger
}

// New creates a Telegram notifier. It validates the token against the Telegram
// API before returning.
func New(cfg Config) (*Notifier, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Telegram notifier")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	if cfg.ChatID == 0 {
		return nil, fmt.Errorf("telegram chat ID is required")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	cfg.Logger.Info(context.Background(), "Telegram notifier initialized", map[string]interface{}{"botUsername": bot.Self.UserName})

	return &Notifier{bot: bot, chatID: cfg.ChatID, logger: cfg.Logger}, nil
}

// PositionClosed announces a terminal position transition.
func (n *Notifier) PositionClosed(ctx context.Context, event ports.PositionClosedEvent) error {
	var sb strings.Builder
	emoji := "✅"
	if event.FinalPnl < 0 {
		emoji = "🔻"
	}
	fmt.Fprintf(&sb, "%s *%s %s closed* (%s)\n", emoji, event.Symbol, event.Side, event.ClosedBy)
	fmt.Fprintf(&sb, "Entry: %.4f | Size: %.4f | Leverage: %dx\n", event.EntryPrice, event.Size, event.Leverage)
	if event.StopPrice > 0 {
		fmt.Fprintf(&sb, "Stop: %.4f\n", event.StopPrice)
	}
	for i, tp := range event.TakeProfits {
		state := "open"
		if tp.Filled {
			state = "filled"
		}
		fmt.Fprintf(&sb, "TP%d: %.4f (%.0f%%, %s)\n", i+1, tp.Price, tp.SizePct, state)
	}
	fmt.Fprintf(&sb, "Held: %s\n", event.ClosedAt.Sub(event.OpenedAt).Round(time.Minute))
	fmt.Fprintf(&sb, "PnL: %.4f", event.FinalPnl)

	return n.send(ctx, sb.String())
}

// Alert raises an operator-attention message.
func (n *Notifier) Alert(ctx context.Context, symbol, message string) error {
	return n.send(ctx, fmt.Sprintf("🚨 *%s*: %s", symbol, message))
}

func (n *Notifier) send(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Error(ctx, err, "Failed to send Telegram message", map[string]interface{}{"chatID": n.chatID})
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}
