package broadcast

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/iabetor/podnotify/internal/config"
)

// fakeBroadcaster 记录收到的通知，可配置为失败。
type fakeBroadcaster struct {
	name     string
	err      error
	messages []string
}

func (f *fakeBroadcaster) Name() string { return f.name }

func (f *fakeBroadcaster) Publish(ctx context.Context, message string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.messages = append(f.messages, message)
	return "id-" + f.name, nil
}

func TestLogPublish(t *testing.T) {
	id, err := Log{}.Publish(context.Background(), "New episode: My Show uploaded 'Ep 1'")
	if err != nil {
		t.Fatalf("Publish 失败: %v", err)
	}
	if len(id) != 36 {
		t.Errorf("期望 uuid，得到 %q", id)
	}
}

func TestMultiPublish(t *testing.T) {
	a := &fakeBroadcaster{name: "a"}
	b := &fakeBroadcaster{name: "b"}
	m := NewMulti(a, b)

	if m.Name() != "a+b" {
		t.Errorf("名称不匹配: %s", m.Name())
	}
	id, err := m.Publish(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Publish 失败: %v", err)
	}
	if id != "a:id-a,b:id-b" {
		t.Errorf("ID 不匹配: %s", id)
	}
	if len(a.messages) != 1 || len(b.messages) != 1 {
		t.Errorf("每个渠道应收到 1 条通知: %v %v", a.messages, b.messages)
	}
}

func TestMultiPartialFailure(t *testing.T) {
	boom := errors.New("boom")
	bad := &fakeBroadcaster{name: "bad", err: boom}
	good := &fakeBroadcaster{name: "good"}

	id, err := NewMulti(bad, good).Publish(context.Background(), "hello")
	if err == nil {
		t.Fatal("期望部分失败返回错误")
	}
	var pe *PublishError
	if !errors.As(err, &pe) || pe.Target != "bad" {
		t.Errorf("期望 bad 渠道的 PublishError，得到 %v", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("错误链应包含原始错误: %v", err)
	}
	if id != "good:id-good" {
		t.Errorf("成功渠道的 ID 应保留: %s", id)
	}
	if len(good.messages) != 1 {
		t.Error("失败渠道不应影响其他渠道")
	}
}

func TestMultiCanceled(t *testing.T) {
	a := &fakeBroadcaster{name: "a"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMulti(a).Publish(ctx, "hello")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("期望 context.Canceled，得到 %v", err)
	}
	if len(a.messages) != 0 {
		t.Error("ctx 取消后不应投递")
	}
}

func TestLimited(t *testing.T) {
	inner := &fakeBroadcaster{name: "inner"}
	l := NewLimited(inner, 1000)
	if l.Name() != "inner" {
		t.Errorf("名称不匹配: %s", l.Name())
	}

	for i := 0; i < 3; i++ {
		if _, err := l.Publish(context.Background(), "hello"); err != nil {
			t.Fatalf("Publish 失败: %v", err)
		}
	}
	if len(inner.messages) != 3 {
		t.Errorf("期望 3 条通知，得到 %d", len(inner.messages))
	}
}

func TestLimitedWaitCanceled(t *testing.T) {
	inner := &fakeBroadcaster{name: "inner"}
	// 每小时一次：第一次消耗令牌，第二次必须等待
	l := NewLimited(inner, 1.0/3600)
	if _, err := l.Publish(context.Background(), "first"); err != nil {
		t.Fatalf("Publish 失败: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := l.Publish(ctx, "second"); err == nil {
		t.Fatal("期望等待令牌超时返回错误")
	}
	if len(inner.messages) != 1 {
		t.Errorf("超时的通知不应投递: %v", inner.messages)
	}
}

func TestFromConfig(t *testing.T) {
	b, err := FromConfig(config.BroadcastConfig{})
	if err != nil {
		t.Fatalf("FromConfig 失败: %v", err)
	}
	if b.Name() != "log" {
		t.Errorf("未配置渠道时应使用 log，得到 %s", b.Name())
	}

	b, err = FromConfig(config.BroadcastConfig{
		Log:        true,
		RatePerSec: 1,
		Webhook:    config.WebhookConfig{URL: "http://127.0.0.1:1/hook"},
		Telegram:   config.TelegramConfig{Token: "123:abc", ChatIDs: []int64{1}},
		Relays:     []string{"ws://127.0.0.1:1"},
		SecretKey:  nostr.GeneratePrivateKey(),
	})
	if err != nil {
		t.Fatalf("FromConfig 失败: %v", err)
	}
	if _, ok := b.(*Limited); !ok {
		t.Errorf("配置了 rate_per_sec 时应包装为 Limited，得到 %T", b)
	}
	if got := b.Name(); got != "log+webhook+telegram+relay" {
		t.Errorf("渠道顺序不匹配: %s", got)
	}

	if _, err := FromConfig(config.BroadcastConfig{Telegram: config.TelegramConfig{Token: "123:abc"}}); err == nil {
		t.Error("缺少 chat_ids 时应返回错误")
	}
	if _, err := FromConfig(config.BroadcastConfig{Relays: []string{"ws://127.0.0.1:1"}}); err == nil {
		t.Error("缺少 relay 私钥时应返回错误")
	}
}

func TestPublishErrorMessage(t *testing.T) {
	err := &PublishError{Target: "webhook", Err: errors.New("HTTP 500")}
	if !strings.Contains(err.Error(), "webhook") || !strings.Contains(err.Error(), "HTTP 500") {
		t.Errorf("错误信息不完整: %s", err)
	}
}
