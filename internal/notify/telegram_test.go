package notify

import (
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakeSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, f.err
}

func TestSyncFailureBroadcastsToAllChats(t *testing.T) {
	logger := zerolog.New(zerolog.NewConsoleWriter())
	sender := &fakeSender{}
	n := NewTelegramNotifierWithSender(sender, []int64{100, 200}, &logger)

	n.SyncFailure("booking.com", "availability", 3, errors.New("http 503"))

	assert.Len(t, sender.sent, 2)
	assert.Equal(t, int64(100), sender.sent[0].ChatID)
	assert.Contains(t, sender.sent[0].Text, "booking.com")
	assert.Contains(t, sender.sent[0].Text, "http 503")
}

func TestIngestRejectedSendErrorIsLoggedNotFatal(t *testing.T) {
	logger := zerolog.New(zerolog.NewConsoleWriter())
	sender := &fakeSender{err: errors.New("chat not found")}
	n := NewTelegramNotifierWithSender(sender, []int64{100}, &logger)

	n.IngestRejected("expedia", "EXP-1", "room type unmapped")
	assert.Len(t, sender.sent, 1)
}
