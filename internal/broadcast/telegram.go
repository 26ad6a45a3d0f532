package broadcast

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

// TelegramOptions Telegram 投递配置。
type TelegramOptions struct {
	Token   string
	ChatIDs []int64
	// APIURL 为空时使用官方 Bot API 地址
	APIURL  string
	Timeout time.Duration
}

// Telegram 通过机器人把通知发送到一组会话。
type Telegram struct {
	bot     *tele.Bot
	chatIDs []int64
}

// NewTelegram 创建 Telegram 投递器。只发消息，不拉取更新。
func NewTelegram(opts TelegramOptions) (*Telegram, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("telegram token 为空")
	}
	if len(opts.ChatIDs) == 0 {
		return nil, errors.New("telegram chat_ids 为空")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     opts.APIURL,
		Token:   opts.Token,
		Offline: true,
		Client:  &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("创建 telegram 机器人失败: %w", err)
	}
	return &Telegram{bot: b, chatIDs: opts.ChatIDs}, nil
}

// Name 返回渠道名称。
func (t *Telegram) Name() string { return "telegram" }

// Publish 发送到所有会话，返回 "会话:消息" ID 列表。
func (t *Telegram) Publish(ctx context.Context, message string) (string, error) {
	var ids []string
	var errs []error
	for _, chatID := range t.chatIDs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		// bot.Send 不接受 ctx，取消只在两次发送之间生效，单次发送受 client 超时限制
		msg, err := t.bot.Send(&tele.Chat{ID: chatID}, message)
		if err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
			continue
		}
		ids = append(ids, fmt.Sprintf("%d:%d", chatID, msg.ID))
	}

	if len(errs) > 0 {
		return strings.Join(ids, ","), &PublishError{Target: t.Name(), Err: errors.Join(errs...)}
	}
	return strings.Join(ids, ","), nil
}
