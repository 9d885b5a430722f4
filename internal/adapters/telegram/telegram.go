// Package telegram delivers plain-text messages through the Telegram Bot API.
package telegram

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	tele "gopkg.in/telebot.v4"

	logx "cronloop/pkg/logx"
)

type Config struct {
	Token string
	// URL overrides the Bot API endpoint (tests, self-hosted API servers).
	URL string
}

// Adapter is a send-only Telegram client. It never polls for updates.
type Adapter struct {
	log logx.Logger
	bot *tele.Bot
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	// Offline skips the getMe handshake; sends still go to the API.
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.URL,
		Offline: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "telegram bot")
	}
	return &Adapter{log: log, bot: b}, nil
}

// SendText posts text to a chat, optionally into a forum thread.
func (a *Adapter) SendText(ctx context.Context, chatID int64, threadID int, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opt := &tele.SendOptions{
		DisableWebPagePreview: true,
		ThreadID:              threadID,
	}
	if _, err := a.bot.Send(&tele.Chat{ID: chatID}, text, opt); err != nil {
		return errors.Wrapf(err, "telegram send to %d", chatID)
	}
	a.log.Trace("telegram message sent", logx.Int64("chat_id", chatID), logx.Int("thread_id", threadID))
	return nil
}
