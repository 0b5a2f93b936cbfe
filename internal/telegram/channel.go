// Package telegram implements the notification channel over the Telegram
// Bot API: outbound messages with inline action buttons, message edits, and
// offset-based draining of button-press events.
package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"subwatch/internal/domain"
)

// Channel sends and edits messages in a single fixed chat and polls updates.
type Channel struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    *zap.Logger
}

// New wraps an initialized bot for the given chat.
func New(bot *tgbotapi.BotAPI, chatID int64, log *zap.Logger) *Channel {
	return &Channel{bot: bot, chatID: chatID, log: log}
}

// Send posts a message, optionally with one row of inline buttons.
// Returns the message ID for later edits.
func (c *Channel) Send(text string, actions []domain.Action) (int, error) {
	msg := tgbotapi.NewMessage(c.chatID, text)
	if len(actions) > 0 {
		var row []tgbotapi.InlineKeyboardButton
		for _, a := range actions {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(a.Label, a.Data))
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(row)
	}
	sent, err := c.bot.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// Edit replaces a message's text. Editing without reply markup also removes
// any inline buttons, which is exactly what every lifecycle edit wants.
func (c *Channel) Edit(messageID int, text string) error {
	if messageID == 0 {
		return nil // original send failed; nothing to edit
	}
	_, err := c.bot.Send(tgbotapi.NewEditMessageText(c.chatID, messageID, text))
	return err
}

// Poll drains pending updates non-blockingly, oldest first, and returns the
// next cursor to persist. Updates below the cursor are never redelivered.
func (c *Channel) Poll(cursor int) ([]domain.Event, int, error) {
	u := tgbotapi.NewUpdate(cursor)
	u.Timeout = 0 // return immediately; the daemon cycle is the clock

	updates, err := c.bot.GetUpdates(u)
	if err != nil {
		return nil, cursor, err
	}

	next := cursor
	var events []domain.Event
	for _, upd := range updates {
		if upd.UpdateID >= next {
			next = upd.UpdateID + 1
		}

		switch {
		case upd.CallbackQuery != nil:
			action, fp := ParseCallback(upd.CallbackQuery.Data)
			if action == "" {
				c.log.Warn("unrecognized callback data", zap.String("data", upd.CallbackQuery.Data))
				continue
			}
			events = append(events, domain.Event{ID: upd.CallbackQuery.ID, Action: action, Fingerprint: fp})

		case upd.Message != nil && upd.Message.Chat != nil && upd.Message.Chat.ID == c.chatID:
			if cmd := parseCommand(upd.Message.Text); cmd != "" {
				events = append(events, domain.Event{Action: cmd})
			}
		}
	}
	return events, next, nil
}

// Ack answers a callback query with a short toast. Commands (empty ID) need
// no acknowledgement.
func (c *Channel) Ack(eventID, toast string) error {
	if eventID == "" {
		return nil
	}
	_, err := c.bot.Request(tgbotapi.NewCallback(eventID, toast))
	return err
}

// ParseCallback splits callback data of the form "action:fingerprint".
// Returns empty action for anything unrecognized.
func ParseCallback(data string) (action, fingerprint string) {
	a, fp, ok := strings.Cut(data, ":")
	if !ok {
		return "", ""
	}
	switch a {
	case "book", "ignore":
		return a, fp
	}
	return "", ""
}

func parseCommand(text string) string {
	text = strings.TrimSpace(text)
	// Tolerate the @botname suffix Telegram appends in groups.
	if i := strings.IndexByte(text, '@'); i > 0 {
		text = text[:i]
	}
	switch text {
	case "/status":
		return "status"
	case "/pause":
		return "pause"
	case "/resume":
		return "resume"
	}
	return ""
}
