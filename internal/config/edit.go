package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Edit 读取配置文件（不展开环境变量）、应用修改并写回。
// 文件不存在时从空配置开始。${VAR} 引用会原样保留。
func Edit(path string, fn func(*Config) error) error {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}

	if err := fn(cfg); err != nil {
		return err
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}
	// 配置中可能包含 token，仅对当前用户可读写
	return os.WriteFile(path, out, 0600)
}

// AddFeed 添加订阅源。URL 已存在时返回错误。
func (c *Config) AddFeed(url, name string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return errors.New("订阅源 url 不能为空")
	}
	for _, f := range c.Feeds {
		if f.URL == url {
			return fmt.Errorf("该订阅源已存在: %s", url)
		}
	}
	c.Feeds = append(c.Feeds, FeedConfig{URL: url, Name: strings.TrimSpace(name)})
	return nil
}

// RemoveFeed 按 URL 或名称删除订阅源，返回是否删除成功。
func (c *Config) RemoveFeed(urlOrName string) bool {
	lower := strings.ToLower(urlOrName)
	for i, f := range c.Feeds {
		if f.URL == urlOrName || (f.Name != "" && strings.ToLower(f.Name) == lower) {
			c.Feeds = append(c.Feeds[:i], c.Feeds[i+1:]...)
			return true
		}
	}
	return false
}

// SetInterval 设置轮询间隔（秒）。
func (c *Config) SetInterval(seconds int) error {
	if seconds <= 0 {
		return fmt.Errorf("轮询间隔必须大于 0，当前为 %d", seconds)
	}
	c.IntervalSeconds = seconds
	return nil
}

// AddRelay 添加 relay 地址，仅接受 ws:// 或 wss://。
func (c *Config) AddRelay(relay string) error {
	relay = strings.TrimSpace(relay)
	if !strings.HasPrefix(relay, "ws://") && !strings.HasPrefix(relay, "wss://") {
		return fmt.Errorf("relay 地址必须以 ws:// 或 wss:// 开头: %s", relay)
	}
	if slices.Contains(c.Broadcast.Relays, relay) {
		return fmt.Errorf("该 relay 已存在: %s", relay)
	}
	c.Broadcast.Relays = append(c.Broadcast.Relays, relay)
	return nil
}

// RemoveRelay 删除 relay 地址，返回是否删除成功。
func (c *Config) RemoveRelay(relay string) bool {
	i := slices.Index(c.Broadcast.Relays, strings.TrimSpace(relay))
	if i < 0 {
		return false
	}
	c.Broadcast.Relays = slices.Delete(c.Broadcast.Relays, i, i+1)
	return true
}
