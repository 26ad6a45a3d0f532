package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath 默认配置文件路径。
const DefaultPath = "configs/podnotify.yaml"

// Config 是 podnotify 的顶层配置结构。
type Config struct {
	Feeds           []FeedConfig    `yaml:"feeds"`
	IntervalSeconds int             `yaml:"interval_seconds"`
	Fetch           FetchConfig     `yaml:"fetch"`
	Broadcast       BroadcastConfig `yaml:"broadcast"`
	Database        DatabaseConfig  `yaml:"database"`
	Log             LogConfig       `yaml:"log"`
}

// FeedConfig 单个被监控的订阅源。
type FeedConfig struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name,omitempty"`
}

// FetchConfig 订阅源抓取配置。
type FetchConfig struct {
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	UserAgent      string `yaml:"user_agent"`
}

// BroadcastConfig 通知投递配置。未配置任何目标时只写日志。
type BroadcastConfig struct {
	// RatePerSec 每秒最多投递的通知数，0 表示不限速。
	RatePerSec float64        `yaml:"rate_per_sec"`
	Log        bool           `yaml:"log"`
	Webhook    WebhookConfig  `yaml:"webhook"`
	Telegram   TelegramConfig `yaml:"telegram"`
	Relays     []string       `yaml:"relays"`
	// SecretKey relay 发布用的私钥，nsec 或十六进制。
	SecretKey string        `yaml:"secret_key"`
	Profile   ProfileConfig `yaml:"profile"`
}

// WebhookConfig HTTP 回调配置。
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// TelegramConfig Telegram 机器人配置。
type TelegramConfig struct {
	Token   string  `yaml:"token"`
	ChatIDs []int64 `yaml:"chat_ids"`
}

// ProfileConfig 连接 relay 时发布的资料。
type ProfileConfig struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"display_name"`
	Description string `yaml:"description"`
}

// DatabaseConfig 投递记录数据库配置。
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// Interval 返回轮询间隔。
func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// FetchTimeout 返回单次抓取超时。
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// FeedURLs 返回所有订阅源地址。
func (c *Config) FeedURLs() []string {
	urls := make([]string, 0, len(c.Feeds))
	for _, f := range c.Feeds {
		urls = append(urls, f.URL)
	}
	return urls
}

// Load 读取 YAML 配置文件并返回 Config。
// 支持 ${VAR_NAME} 形式的环境变量展开。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}

	// 展开环境变量，如 ${PODNOTIFY_TELEGRAM_TOKEN}
	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}

	setDefaults(cfg)
	return cfg, nil
}

// Validate 检查启动所需的配置项。
func (c *Config) Validate() error {
	var errs []error
	if len(c.Feeds) == 0 {
		errs = append(errs, errors.New("至少需要配置一个订阅源"))
	}
	seen := make(map[string]bool, len(c.Feeds))
	for i, f := range c.Feeds {
		if strings.TrimSpace(f.URL) == "" {
			errs = append(errs, fmt.Errorf("第 %d 个订阅源缺少 url", i+1))
			continue
		}
		if seen[f.URL] {
			errs = append(errs, fmt.Errorf("订阅源重复: %s", f.URL))
		}
		seen[f.URL] = true
	}
	if c.IntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("interval_seconds 必须大于 0，当前为 %d", c.IntervalSeconds))
	}
	if c.Broadcast.RatePerSec < 0 {
		errs = append(errs, errors.New("broadcast.rate_per_sec 不能为负数"))
	}
	if c.Broadcast.Telegram.Token != "" && len(c.Broadcast.Telegram.ChatIDs) == 0 {
		errs = append(errs, errors.New("已配置 telegram.token 但缺少 chat_ids"))
	}
	if len(c.Broadcast.Relays) > 0 && c.Broadcast.SecretKey == "" {
		errs = append(errs, errors.New("已配置 relays 但缺少 secret_key"))
	}
	return errors.Join(errs...)
}

// setDefaults 为未设置的配置项填充默认值。
func setDefaults(cfg *Config) {
	if cfg.IntervalSeconds == 0 {
		cfg.IntervalSeconds = 300
	}
	if cfg.Fetch.TimeoutSeconds == 0 {
		cfg.Fetch.TimeoutSeconds = 20
	}
	if cfg.Fetch.UserAgent == "" {
		cfg.Fetch.UserAgent = "podnotify/1.0"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	if cfg.Database.Path == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			cfg.Database.Path = filepath.Join(home, ".podnotify", "podnotify.db")
		} else {
			cfg.Database.Path = "./podnotify.db"
		}
	} else if strings.HasPrefix(cfg.Database.Path, "~/") {
		// Go 不会自动展开 ~，需要手动替换为用户主目录
		home, _ := os.UserHomeDir()
		if home != "" {
			cfg.Database.Path = home + cfg.Database.Path[1:]
		}
	}

	for i := range cfg.Feeds {
		cfg.Feeds[i].URL = strings.TrimSpace(cfg.Feeds[i].URL)
	}
	// 去除 token 两端可能的空白（环境变量展开后常见）
	cfg.Broadcast.Telegram.Token = strings.TrimSpace(cfg.Broadcast.Telegram.Token)
	cfg.Broadcast.SecretKey = strings.TrimSpace(cfg.Broadcast.SecretKey)
}
