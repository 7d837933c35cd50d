package transport

import (
	"context"
	"errors"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	logx "smsrelay/pkg/logx"
)

const telegramTextLimit = 4000

// Telegram delivers to a chat by numeric id. It only sends; no updates are
// polled. It also serves as the logx Telegram sink sender.
type Telegram struct {
	bot       *tele.Bot
	parseMode string
	log       logx.Logger
}

func NewTelegram(cfg TelegramConfig, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"),
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Telegram{bot: b, parseMode: cfg.ParseMode, log: log}, nil
}

func (t *Telegram) Deliver(ctx context.Context, destination, body string) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(destination), 10, 64)
	if err != nil {
		return &DeliveryError{Destination: destination, Err: errors.New("destination is not a telegram chat id")}
	}
	if err := t.SendText(ctx, chatID, body); err != nil {
		return &DeliveryError{Destination: destination, Err: err}
	}
	return nil
}

// SendText sends text split into Telegram-sized chunks.
func (t *Telegram) SendText(ctx context.Context, chatID int64, text string) error {
	chat := &tele.Chat{ID: chatID}
	for _, chunk := range splitText(text, telegramTextLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := t.bot.Send(chat, chunk, &tele.SendOptions{ParseMode: t.parseMode}); err != nil {
			return err
		}
	}
	return nil
}

// splitText splits s into chunks of at most limit runes, preferring newline
// boundaries that keep chunks above a third of the limit.
func splitText(s string, limit int) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
