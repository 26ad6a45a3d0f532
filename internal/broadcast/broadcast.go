// Package broadcast 将渲染好的通知文本投递到外部渠道。
//
// 每个渠道实现 Broadcaster。Multi 负责扇出，Limited 负责限速，
// FromConfig 按配置组装两者。投递不重试，失败由调用方记录。
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/iabetor/podnotify/internal/config"
	"github.com/iabetor/podnotify/internal/logger"
)

// Broadcaster 通知投递渠道。
type Broadcaster interface {
	Name() string
	// Publish 投递一条通知，返回渠道侧的投递 ID。
	Publish(ctx context.Context, message string) (string, error)
}

// PublishError 投递失败。
type PublishError struct {
	Target string
	Err    error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("%s 投递失败: %v", e.Target, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// Log 仅把通知写入日志。
type Log struct{}

// Name 返回渠道名称。
func (Log) Name() string { return "log" }

// Publish 写日志并返回随机 ID。
func (Log) Publish(ctx context.Context, message string) (string, error) {
	id := uuid.NewString()
	logger.Infof("[broadcast] 通知 %s:\n%s", id, message)
	return id, nil
}

// Multi 依次投递到所有渠道。
type Multi struct {
	targets []Broadcaster
}

// NewMulti 创建扇出投递器。
func NewMulti(targets ...Broadcaster) *Multi {
	return &Multi{targets: targets}
}

// Name 返回渠道名称。
func (m *Multi) Name() string {
	names := make([]string, 0, len(m.targets))
	for _, t := range m.targets {
		names = append(names, t.Name())
	}
	return strings.Join(names, "+")
}

// Publish 投递到所有渠道。返回成功渠道的 "名称:ID" 列表，
// 任一渠道失败时 error 非空，但不影响其他渠道。
func (m *Multi) Publish(ctx context.Context, message string) (string, error) {
	var ids []string
	var errs []error
	for _, t := range m.targets {
		if err := ctx.Err(); err != nil {
			errs = append(errs, &PublishError{Target: t.Name(), Err: err})
			continue
		}
		id, err := t.Publish(ctx, message)
		if err != nil {
			var pe *PublishError
			if !errors.As(err, &pe) {
				err = &PublishError{Target: t.Name(), Err: err}
			}
			errs = append(errs, err)
			continue
		}
		ids = append(ids, t.Name()+":"+id)
	}
	return strings.Join(ids, ","), errors.Join(errs...)
}

// Limited 在投递前等待令牌，限制投递速率。
type Limited struct {
	next    Broadcaster
	limiter *rate.Limiter
}

// NewLimited 创建限速投递器，perSec 为每秒允许的投递次数。
func NewLimited(next Broadcaster, perSec float64) *Limited {
	return &Limited{next: next, limiter: rate.NewLimiter(rate.Limit(perSec), 1)}
}

// Name 返回被包装渠道的名称。
func (l *Limited) Name() string { return l.next.Name() }

// Publish 等待令牌后投递。ctx 取消时直接返回。
func (l *Limited) Publish(ctx context.Context, message string) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", &PublishError{Target: l.next.Name(), Err: err}
	}
	return l.next.Publish(ctx, message)
}

// FromConfig 按配置组装投递器。没有配置任何渠道时退化为 Log。
func FromConfig(cfg config.BroadcastConfig) (Broadcaster, error) {
	var targets []Broadcaster
	if cfg.Log {
		targets = append(targets, Log{})
	}
	if cfg.Webhook.URL != "" {
		targets = append(targets, NewWebhook(cfg.Webhook.URL, cfg.Webhook.Headers))
	}
	if cfg.Telegram.Token != "" {
		tg, err := NewTelegram(TelegramOptions{Token: cfg.Telegram.Token, ChatIDs: cfg.Telegram.ChatIDs})
		if err != nil {
			return nil, err
		}
		targets = append(targets, tg)
	}
	if len(cfg.Relays) > 0 {
		relay, err := NewRelay(cfg.Relays, cfg.SecretKey, Profile{
			Name:        cfg.Profile.Name,
			DisplayName: cfg.Profile.DisplayName,
			About:       cfg.Profile.Description,
		})
		if err != nil {
			return nil, err
		}
		logger.Infof("[broadcast] relay 发布者公钥: %s", relay.PublicKey())
		targets = append(targets, relay)
	}

	var b Broadcaster
	switch len(targets) {
	case 0:
		logger.Warnf("[broadcast] 未配置任何投递渠道，通知只写入日志")
		b = Log{}
	case 1:
		b = targets[0]
	default:
		b = NewMulti(targets...)
	}

	if cfg.RatePerSec > 0 {
		b = NewLimited(b, cfg.RatePerSec)
	}
	return b, nil
}
