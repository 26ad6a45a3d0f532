package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iabetor/podnotify/internal/broadcast"
	"github.com/iabetor/podnotify/internal/config"
	"github.com/iabetor/podnotify/internal/database"
	"github.com/iabetor/podnotify/internal/logger"
	"github.com/iabetor/podnotify/internal/monitor"
	"github.com/iabetor/podnotify/internal/podcast"
	"github.com/iabetor/podnotify/internal/rss"
)

// RunCmd 持续监控。
type RunCmd struct{}

func (c *RunCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig(true)
	if err != nil {
		return err
	}
	logger.Infof("[main] podnotify 启动中 (log_level=%s)", cfg.Log.Level)

	ctx, cancel := signalContext()
	defer cancel()

	m, db, err := newMonitor(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := m.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("监控运行出错: %w", err)
	}
	logger.Infof("[main] podnotify 已停止")
	return nil
}

// OnceCmd 单轮轮询。
type OnceCmd struct{}

func (c *OnceCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig(true)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	m, db, err := newMonitor(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	return m.RunOnce(ctx)
}

// newMonitor 组装抓取器、投递器和数据库。数据库同时作为投递记录和基线存储。
func newMonitor(cfg *config.Config) (*monitor.Monitor, *database.DB, error) {
	b, err := broadcast.FromConfig(cfg.Broadcast)
	if err != nil {
		return nil, nil, fmt.Errorf("创建投递渠道失败: %w", err)
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, nil, err
	}

	m, err := monitor.New(monitor.Options{
		Feeds:       cfg.FeedURLs(),
		Interval:    cfg.Interval(),
		Source:      rss.NewFetcher(cfg.FetchTimeout(), cfg.Fetch.UserAgent),
		Broadcaster: b,
		Recorder:    db,
		Store:       db,
	})
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return m, db, nil
}

func openDB(cfg *config.Config) (*database.DB, error) {
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// AddFeedCmd 添加订阅源。
type AddFeedCmd struct {
	URL  string `arg:"" help:"订阅源地址"`
	Name string `help:"显示名称" short:"n"`
}

func (c *AddFeedCmd) Run(g *Globals) error {
	if err := config.Edit(g.Config, func(cfg *config.Config) error {
		return cfg.AddFeed(c.URL, c.Name)
	}); err != nil {
		return err
	}
	g.printf("已添加订阅源: %s\n", c.URL)
	return nil
}

// RemoveFeedCmd 删除订阅源。
type RemoveFeedCmd struct {
	Feed string `arg:"" help:"订阅源地址或名称"`
}

func (c *RemoveFeedCmd) Run(g *Globals) error {
	if err := config.Edit(g.Config, func(cfg *config.Config) error {
		if !cfg.RemoveFeed(c.Feed) {
			return fmt.Errorf("未找到订阅源: %s", c.Feed)
		}
		return nil
	}); err != nil {
		return err
	}
	g.printf("已删除订阅源: %s\n", c.Feed)
	return nil
}

// IntervalCmd 设置轮询间隔。
type IntervalCmd struct {
	Seconds int `arg:"" help:"轮询间隔（秒）"`
}

func (c *IntervalCmd) Run(g *Globals) error {
	if err := config.Edit(g.Config, func(cfg *config.Config) error {
		return cfg.SetInterval(c.Seconds)
	}); err != nil {
		return err
	}
	g.printf("轮询间隔已设置为 %d 秒\n", c.Seconds)
	return nil
}

// AddRelayCmd 添加 relay。
type AddRelayCmd struct {
	URL string `arg:"" help:"relay 地址 (ws:// 或 wss://)"`
}

func (c *AddRelayCmd) Run(g *Globals) error {
	if err := config.Edit(g.Config, func(cfg *config.Config) error {
		return cfg.AddRelay(c.URL)
	}); err != nil {
		return err
	}
	g.printf("已添加 relay: %s\n", c.URL)
	return nil
}

// RemoveRelayCmd 删除 relay。
type RemoveRelayCmd struct {
	URL string `arg:"" help:"relay 地址"`
}

func (c *RemoveRelayCmd) Run(g *Globals) error {
	if err := config.Edit(g.Config, func(cfg *config.Config) error {
		if !cfg.RemoveRelay(c.URL) {
			return fmt.Errorf("未找到 relay: %s", c.URL)
		}
		return nil
	}); err != nil {
		return err
	}
	g.printf("已删除 relay: %s\n", c.URL)
	return nil
}

// ListCmd 列出配置。
type ListCmd struct{}

func (c *ListCmd) Run(g *Globals) error {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return err
	}

	g.printf("轮询间隔: %s\n", cfg.Interval())
	g.printf("订阅源 (%d):\n", len(cfg.Feeds))
	for _, f := range cfg.Feeds {
		if f.Name != "" {
			g.printf("  - %s (%s)\n", f.URL, f.Name)
		} else {
			g.printf("  - %s\n", f.URL)
		}
	}

	b := cfg.Broadcast
	g.printf("投递渠道:\n")
	if b.Log {
		g.printf("  - log\n")
	}
	if b.Webhook.URL != "" {
		g.printf("  - webhook: %s\n", b.Webhook.URL)
	}
	if b.Telegram.Token != "" {
		g.printf("  - telegram: %d 个会话\n", len(b.Telegram.ChatIDs))
	}
	for _, r := range b.Relays {
		g.printf("  - relay: %s\n", r)
	}
	if b.RatePerSec > 0 {
		g.printf("限速: 每秒 %g 条\n", b.RatePerSec)
	}
	return nil
}

// CheckCmd 抓取订阅源并打印快照，不投递也不修改基线。
type CheckCmd struct {
	URL string `arg:"" help:"订阅源地址"`
}

func (c *CheckCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig(false)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	f := rss.NewFetcher(cfg.FetchTimeout(), cfg.Fetch.UserAgent)
	raw, err := f.Fetch(ctx, c.URL)
	if err != nil {
		return err
	}
	feed, err := f.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", podcast.ErrMalformedFeed, err)
	}
	snap, warnings, err := podcast.Build(feed, c.URL)
	if err != nil {
		return err
	}

	g.printf("标题: %s\n", snap.Title)
	g.printf("单集 (%d):\n", len(snap.Episodes))
	for i, ep := range snap.Episodes {
		if i >= 5 {
			g.printf("  ... 另有 %d 集\n", len(snap.Episodes)-i)
			break
		}
		g.printf("  - %s %s\n", ep.Title, ep.Link)
	}
	g.printf("直播 (%d):\n", len(snap.LiveItems))
	for _, item := range snap.LiveItems {
		g.printf("  - [%s] %s %s\n", item.Status, item.StartTime, item.Link)
	}
	for _, w := range warnings {
		g.printf("警告: %s\n", w)
	}
	return nil
}

// HistoryCmd 查看投递记录。
type HistoryCmd struct {
	Limit int `help:"显示条数" short:"n" default:"20"`
}

func (c *HistoryCmd) Run(g *Globals) error {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	deliveries, err := db.RecentDeliveries(context.Background(), c.Limit)
	if err != nil {
		return err
	}
	g.printf("数据库: %s\n", db.Path())
	if len(deliveries) == 0 {
		g.printf("暂无投递记录\n")
		return nil
	}
	for _, d := range deliveries {
		status := "成功 " + d.DeliveryID
		if d.Error != "" {
			status = "失败 " + d.Error
		}
		g.printf("%s  %-19s  %s  %s\n", d.CreatedAt.Local().Format(time.DateTime), d.Kind, d.FeedURL, status)
	}
	return nil
}
