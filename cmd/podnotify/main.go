package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/iabetor/podnotify/internal/config"
	"github.com/iabetor/podnotify/internal/logger"
)

// Globals 所有子命令共享的参数。
type Globals struct {
	Config string `help:"配置文件路径" short:"c" default:"${config_path}" type:"path"`

	out io.Writer
}

// CLI 命令行结构。
type CLI struct {
	Globals

	Run         RunCmd         `cmd:"" default:"1" help:"持续监控所有订阅源（默认命令）"`
	Once        OnceCmd        `cmd:"" help:"轮询一轮后退出，基线保存在数据库中"`
	AddFeed     AddFeedCmd     `cmd:"" help:"添加订阅源"`
	RemoveFeed  RemoveFeedCmd  `cmd:"" help:"按 URL 或名称删除订阅源"`
	Interval    IntervalCmd    `cmd:"" help:"设置轮询间隔（秒）"`
	AddRelay    AddRelayCmd    `cmd:"" help:"添加 relay 地址"`
	RemoveRelay RemoveRelayCmd `cmd:"" help:"删除 relay 地址"`
	List        ListCmd        `cmd:"" help:"列出订阅源、轮询间隔和投递渠道"`
	Check       CheckCmd       `cmd:"" help:"抓取一个订阅源并打印快照"`
	History     HistoryCmd     `cmd:"" help:"查看最近的投递记录"`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("podnotify"),
		kong.Description("播客订阅源监控：新单集和直播状态变化时发送通知。"),
		kong.UsageOnError(),
		kong.Vars{"config_path": config.DefaultPath},
	)
	cli.Globals.out = os.Stdout

	err := kctx.Run(&cli.Globals)
	logger.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig 加载配置并初始化日志。validate 为 true 时做启动前校验。
func (g *Globals) loadConfig(validate bool) (*config.Config, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, err
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("配置无效: %w", err)
		}
	}
	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	}); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return cfg, nil
}

func (g *Globals) printf(format string, args ...interface{}) {
	fmt.Fprintf(g.out, format, args...)
}

// signalContext 返回收到 SIGINT/SIGTERM 时取消的 context。
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Infof("[main] 收到信号 %v，正在关闭...", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
