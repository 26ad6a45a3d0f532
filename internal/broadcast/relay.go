package broadcast

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"

	"github.com/iabetor/podnotify/internal/logger"
)

const defaultRelayTimeout = 10 * time.Second

// Profile 连接 relay 后发布的资料（kind 0）。
type Profile struct {
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	About       string `json:"about,omitempty"`
}

func (p Profile) empty() bool {
	return p.Name == "" && p.DisplayName == "" && p.About == ""
}

// Relay 把通知签名为 nostr 文本消息（kind 1）发布到一组 relay。
// 至少一个 relay 回复 OK 即视为成功。
type Relay struct {
	urls      []string
	secretKey string
	pubKey    string
	profile   Profile
	timeout   time.Duration
}

// NewRelay 创建 relay 投递器。secretKey 接受 nsec 或 64 位十六进制私钥。
func NewRelay(urls []string, secretKey string, profile Profile) (*Relay, error) {
	if len(urls) == 0 {
		return nil, errors.New("relay 地址不能为空")
	}
	sk, err := parseSecretKey(secretKey)
	if err != nil {
		return nil, err
	}
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return nil, fmt.Errorf("无效的 relay 私钥: %w", err)
	}
	return &Relay{
		urls:      urls,
		secretKey: sk,
		pubKey:    pk,
		profile:   profile,
		timeout:   defaultRelayTimeout,
	}, nil
}

func parseSecretKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("缺少 relay 私钥")
	}
	if strings.HasPrefix(key, "nsec") {
		prefix, value, err := nip19.Decode(key)
		if err != nil {
			return "", fmt.Errorf("解析 nsec 失败: %w", err)
		}
		sk, ok := value.(string)
		if prefix != "nsec" || !ok {
			return "", fmt.Errorf("不是 nsec 私钥: %s", prefix)
		}
		return sk, nil
	}
	if b, err := hex.DecodeString(key); err != nil || len(b) != 32 {
		return "", errors.New("relay 私钥必须是 nsec 或 64 位十六进制")
	}
	return strings.ToLower(key), nil
}

// Name 返回渠道名称。
func (r *Relay) Name() string { return "relay" }

// PublicKey 返回发布者公钥（十六进制）。
func (r *Relay) PublicKey() string { return r.pubKey }

// Publish 依次发布到每个 relay，返回事件 ID。
func (r *Relay) Publish(ctx context.Context, message string) (string, error) {
	note := nostr.Event{
		CreatedAt: nostr.Now(),
		Kind:      nostr.KindTextNote,
		Tags:      nostr.Tags{},
		Content:   message,
	}
	if err := note.Sign(r.secretKey); err != nil {
		return "", &PublishError{Target: r.Name(), Err: err}
	}

	var metadata *nostr.Event
	if !r.profile.empty() {
		ev, err := r.metadataEvent()
		if err != nil {
			return "", &PublishError{Target: r.Name(), Err: err}
		}
		metadata = ev
	}

	var errs []error
	accepted := 0
	for _, url := range r.urls {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := r.publishOne(ctx, url, metadata, note); err != nil {
			logger.Warnf("[broadcast] relay %s 发布失败: %v", url, err)
			errs = append(errs, fmt.Errorf("%s: %w", url, err))
			continue
		}
		accepted++
	}

	if accepted == 0 {
		return "", &PublishError{Target: r.Name(), Err: errors.Join(errs...)}
	}
	return note.ID, nil
}

func (r *Relay) metadataEvent() (*nostr.Event, error) {
	content, err := json.Marshal(r.profile)
	if err != nil {
		return nil, err
	}
	ev := &nostr.Event{
		CreatedAt: nostr.Now(),
		Kind:      nostr.KindProfileMetadata,
		Tags:      nostr.Tags{},
		Content:   string(content),
	}
	if err := ev.Sign(r.secretKey); err != nil {
		return nil, err
	}
	return ev, nil
}

func (r *Relay) publishOne(ctx context.Context, url string, metadata *nostr.Event, note nostr.Event) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	relay, err := nostr.RelayConnect(ctx, url)
	if err != nil {
		return err
	}
	defer relay.Close()

	// 资料发布失败不影响通知
	if metadata != nil {
		if err := relay.Publish(ctx, *metadata); err != nil {
			logger.Warnf("[broadcast] relay %s 资料发布失败: %v", url, err)
		}
	}
	return relay.Publish(ctx, note)
}
