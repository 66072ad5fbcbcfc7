package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

// Telegram rejects longer messages.
const maxChatText = 4096

// ChatResolver maps a user to their linked chat.
type ChatResolver interface {
	ResolveChatID(ctx context.Context, userID string) (chatID int64, ok bool, err error)
}

type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type ChatChannel struct {
	bot      botAPI
	resolver ChatResolver
}

const defaultChatTimeout = 30 * time.Second

// NewChatChannel connects to the Bot API. Every request, including the
// startup identity check, is bounded by timeout.
func NewChatChannel(token string, resolver ChatResolver, timeout time.Duration) (*ChatChannel, error) {
	return newChatChannel(token, tgbotapi.APIEndpoint, resolver, timeout)
}

func newChatChannel(token, endpoint string, resolver ChatResolver, timeout time.Duration) (*ChatChannel, error) {
	if timeout <= 0 {
		timeout = defaultChatTimeout
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return &ChatChannel{bot: bot, resolver: resolver}, nil
}

func (c *ChatChannel) Name() models.Channel {
	return models.ChannelChat
}

func (c *ChatChannel) Send(ctx context.Context, msg Message, r Recipient) (string, error) {
	chatID, ok, err := c.resolver.ResolveChatID(ctx, r.UserID)
	if err != nil {
		return "", fmt.Errorf("resolve chat id: %w", err)
	}
	if !ok {
		return "", Skip("no linked chat")
	}

	text := msg.Subject + "\n\n" + msg.Text
	if utf8.RuneCountInString(text) > maxChatText {
		runes := []rune(text)
		text = string(runes[:maxChatText-1]) + "…"
	}

	sent, err := c.bot.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return "", err
	}
	return strconv.Itoa(sent.MessageID), nil
}
