package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/dmvolsky/persona-telegram-bot/pkg/domain"
	"github.com/dmvolsky/persona-telegram-bot/pkg/logger"
)

// commandPrefixes mark messages that never enter the session history.
var commandPrefixes = []string{"/", "!", "."}

type client struct {
	bot       *tgbotapi.BotAPI
	updatesCh tgbotapi.UpdatesChannel
}

func NewClient(token string) (*client, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("creating bot api instance: %w", err)
	}

	slog.Info("authorized on telegram", "account", bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	return &client{
		bot:       bot,
		updatesCh: bot.GetUpdatesChan(u),
	}, nil
}

func (c *client) GetUpdates() tgbotapi.UpdatesChannel {
	return c.updatesCh
}

// ToInbound normalizes a platform update into the domain event. The second
// return is false for updates that carry no message.
func (c *client) ToInbound(update *tgbotapi.Update) (domain.Inbound, bool) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return domain.Inbound{}, false
	}

	key := domain.ConversationKey{Type: domain.ChatTypePrivate, ID: msg.Chat.ID}
	if msg.Chat.IsGroup() || msg.Chat.IsSuperGroup() {
		key.Type = domain.ChatTypeGroup
	}

	in := domain.Inbound{
		Key:        key,
		SenderID:   msg.From.ID,
		SenderName: senderName(msg.From),
		Timestamp:  msg.Time(),
		Mentioned:  c.isMentioned(msg),
	}

	in.Kind, in.Content = classify(msg)
	in.Command = parseCommand(msg)
	return in, true
}

func senderName(from *tgbotapi.User) string {
	if from.UserName != "" {
		return from.UserName
	}
	return strings.TrimSpace(from.FirstName + " " + from.LastName)
}

// classify maps the platform message shape onto the closed kind set.
func classify(msg *tgbotapi.Message) (domain.MessageKind, string) {
	switch {
	case msg.Sticker != nil:
		return domain.MessageKindMface, msg.Sticker.Emoji
	case len(msg.Photo) > 0:
		return domain.MessageKindImage, msg.Caption
	case msg.Text != "":
		return domain.MessageKindText, msg.Text
	default:
		return domain.MessageKindOther, msg.Caption
	}
}

func parseCommand(msg *tgbotapi.Message) string {
	if msg.IsCommand() {
		return msg.Command()
	}
	for _, p := range commandPrefixes {
		if strings.HasPrefix(msg.Text, p) {
			word, _, _ := strings.Cut(strings.TrimPrefix(msg.Text, p), " ")
			return word
		}
	}
	return ""
}

func (c *client) isMentioned(msg *tgbotapi.Message) bool {
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil &&
		msg.ReplyToMessage.From.ID == c.bot.Self.ID {
		return true
	}
	return strings.Contains(msg.Text, "@"+c.bot.Self.UserName)
}

func (c *client) SendResponse(ctx context.Context, response *domain.Response) {
	reply := tgbotapi.NewMessage(response.Key.ID, response.Text)
	if _, err := c.bot.Send(reply); err != nil {
		slog.ErrorContext(ctx, "Sending reply", logger.Err(err))
	}
}
