package notify

import (
	"fmt"

	"ratesync/internal/config"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Notifier alerts operators about conditions that need a human: repeated sync
// failures, channels flipping to error.
type Notifier interface {
	SyncFailure(channelName, feature string, consecutive int, lastErr error)
	IngestRejected(channelName, otaBookingID, reason string)
}

// Sender is the slice of the Telegram bot API the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier fans messages out to the configured operator chats.
type TelegramNotifier struct {
	bot     Sender
	chatIDs []int64
	logger  *zerolog.Logger
}

func NewTelegramNotifier(cfg config.TelegramConfig, logger *zerolog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: bot, chatIDs: cfg.ChatIDs, logger: logger}, nil
}

// NewTelegramNotifierWithSender wires a prebuilt sender; tests use it.
func NewTelegramNotifierWithSender(bot Sender, chatIDs []int64, logger *zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, chatIDs: chatIDs, logger: logger}
}

func (n *TelegramNotifier) SyncFailure(channelName, feature string, consecutive int, lastErr error) {
	text := fmt.Sprintf("⚠️ Channel sync failing\nChannel: %s\nFeature: %s\nConsecutive failures: %d\nLast error: %v",
		channelName, feature, consecutive, lastErr)
	n.broadcast(text)
}

func (n *TelegramNotifier) IngestRejected(channelName, otaBookingID, reason string) {
	text := fmt.Sprintf("🚫 OTA booking rejected\nChannel: %s\nBooking: %s\nReason: %s",
		channelName, otaBookingID, reason)
	n.broadcast(text)
}

func (n *TelegramNotifier) broadcast(text string) {
	for _, chatID := range n.chatIDs {
		if _, err := n.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
			n.logger.Error().Err(err).Int64("chat_id", chatID).Msg("failed to send operator alert")
		}
	}
}

// Noop satisfies Notifier when Telegram is not configured.
type Noop struct{}

func (Noop) SyncFailure(string, string, int, error) {}
func (Noop) IngestRejected(string, string, string)  {}
