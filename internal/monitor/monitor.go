// Package monitor 周期性轮询订阅源，检测变化并投递通知。
//
// 每个订阅源由独立的 goroutine 跟踪，基线只属于该 goroutine。
// 首次成功轮询只建立基线，不做检测。
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/iabetor/podnotify/internal/broadcast"
	"github.com/iabetor/podnotify/internal/database"
	"github.com/iabetor/podnotify/internal/logger"
	"github.com/iabetor/podnotify/internal/podcast"
)

// FeedSource 抓取并解析订阅源。
type FeedSource interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
	Parse(raw []byte) (*gofeed.Feed, error)
}

// Recorder 记录投递结果。
type Recorder interface {
	RecordDelivery(ctx context.Context, d database.Delivery) error
}

// BaselineStore 持久化基线。
type BaselineStore interface {
	SaveBaseline(ctx context.Context, snap podcast.Snapshot) error
	LoadBaseline(ctx context.Context, feedURL string) (podcast.Snapshot, bool, error)
}

// Options 监控器参数。Recorder 和 Store 可为空。
type Options struct {
	Feeds       []string
	Interval    time.Duration
	Source      FeedSource
	Broadcaster broadcast.Broadcaster
	Recorder    Recorder
	Store       BaselineStore
}

// Monitor 管理所有订阅源的跟踪器。
type Monitor struct {
	opts Options
}

// New 创建监控器。
func New(opts Options) (*Monitor, error) {
	if len(opts.Feeds) == 0 {
		return nil, errors.New("没有需要监控的订阅源")
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("轮询间隔必须大于 0，当前为 %s", opts.Interval)
	}
	if opts.Source == nil || opts.Broadcaster == nil {
		return nil, errors.New("缺少订阅源抓取器或投递器")
	}
	return &Monitor{opts: opts}, nil
}

// Run 为每个订阅源启动跟踪器，阻塞到 ctx 取消且所有跟踪器退出。
// 基线会写入 Store，但启动时不读取：首次轮询总是只建立基线。
func (m *Monitor) Run(ctx context.Context) error {
	logger.Infof("[monitor] 开始监控 %d 个订阅源，间隔 %s，投递渠道 %s",
		len(m.opts.Feeds), m.opts.Interval, m.opts.Broadcaster.Name())

	var wg sync.WaitGroup
	for _, url := range m.opts.Feeds {
		t := m.newTracker(url)
		wg.Add(1)
		go func() {
			defer wg.Done()
			t.loop(ctx, m.opts.Interval)
		}()
	}
	wg.Wait()

	logger.Infof("[monitor] 所有跟踪器已退出")
	return ctx.Err()
}

// RunOnce 对每个订阅源执行一轮轮询后返回。
// 若配置了 Store，先从中恢复基线；没有基线的订阅源本轮只建立基线。
func (m *Monitor) RunOnce(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, url := range m.opts.Feeds {
		t := m.newTracker(url)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := t.restore(ctx); err != nil {
				t.log.Warnf("[monitor] 恢复基线失败，本轮只建立基线: %v", err)
			}
			if err := t.poll(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", url, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (m *Monitor) newTracker(url string) *tracker {
	return &tracker{
		url:   url,
		opts:  &m.opts,
		state: StateUninitialized,
		log:   logger.With("feed", url),
	}
}

// tracker 跟踪单个订阅源，只在自己的 goroutine 内使用。
type tracker struct {
	url      string
	opts     *Options
	state    State
	baseline podcast.Snapshot
	log      *zap.SugaredLogger
}

func (t *tracker) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		// 错误已在 poll 内记录，等待下一轮
		_ = t.poll(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// restore 从 Store 读取基线。
func (t *tracker) restore(ctx context.Context) error {
	if t.opts.Store == nil {
		return nil
	}
	snap, ok, err := t.opts.Store.LoadBaseline(ctx, t.url)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if snap.SourceID != t.url {
		return fmt.Errorf("%w: 存储的基线属于 %s", podcast.ErrMismatchedSource, snap.SourceID)
	}
	t.baseline = snap
	t.setState(StateBaselined)
	return nil
}

// poll 执行一轮：抓取、解析、构建快照，有基线时检测并投递，最后替换基线。
// 返回的错误已记录日志。
func (t *tracker) poll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	snap, err := t.snapshot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		t.log.Warnf("[monitor] 本轮跳过，保留原基线: %v", err)
		return err
	}

	if t.state == StateUninitialized {
		t.replaceBaseline(ctx, snap)
		t.setState(StateBaselined)
		t.log.Infof("[monitor] 已建立基线: %s (%d 集, %d 个直播)",
			snap.Title, len(snap.Episodes), len(snap.LiveItems))
		return nil
	}

	if snap.Equal(t.baseline) {
		t.log.Debugf("[monitor] 无变化")
		return nil
	}

	event, err := podcast.Detect(t.baseline, snap)
	if err != nil {
		t.log.Errorf("[monitor] 检测失败，保留原基线: %v", err)
		return err
	}

	if event != nil {
		if err := t.deliver(ctx, *event, snap.Title); err != nil {
			// 未投递成功就被取消：不替换基线，下次重新检测到这次变化
			t.log.Infof("[monitor] 投递被取消，保留原基线")
			return err
		}
	}

	t.replaceBaseline(ctx, snap)
	return nil
}

func (t *tracker) snapshot(ctx context.Context) (podcast.Snapshot, error) {
	raw, err := t.opts.Source.Fetch(ctx, t.url)
	if err != nil {
		return podcast.Snapshot{}, fmt.Errorf("抓取失败: %w", err)
	}
	feed, err := t.opts.Source.Parse(raw)
	if err != nil {
		return podcast.Snapshot{}, fmt.Errorf("%w: %v", podcast.ErrMalformedFeed, err)
	}
	snap, warnings, err := podcast.Build(feed, t.url)
	if err != nil {
		return podcast.Snapshot{}, err
	}
	for _, w := range warnings {
		t.log.Warnf("[monitor] %s", w)
	}
	return snap, nil
}

// deliver 渲染并投递通知。只有在没有任何渠道投递成功且 ctx 已取消时返回错误；
// 已送达的通知一定会被记录，普通的投递失败记录后视为已处理。
func (t *tracker) deliver(ctx context.Context, event podcast.ChangeEvent, title string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	message := podcast.Render(event, title)
	id, err := t.opts.Broadcaster.Publish(ctx, message)
	if err != nil && id == "" && ctx.Err() != nil {
		return ctx.Err()
	}

	d := database.Delivery{
		FeedURL:    t.url,
		Kind:       event.Kind.String(),
		Message:    message,
		DeliveryID: id,
	}
	if err != nil {
		d.Error = err.Error()
		t.log.Warnf("[monitor] 通知投递失败 (%s): %v", event.Kind, err)
	} else {
		t.log.Infof("[monitor] 通知已投递 (%s): %s", event.Kind, id)
	}

	if t.opts.Recorder != nil {
		// 关闭过程中也要写入记录
		if rerr := t.opts.Recorder.RecordDelivery(context.WithoutCancel(ctx), d); rerr != nil {
			t.log.Warnf("[monitor] 写入投递记录失败: %v", rerr)
		}
	}
	return nil
}

// replaceBaseline 替换基线。投递完成后 ctx 可能已取消，持久化不受其影响。
func (t *tracker) replaceBaseline(ctx context.Context, snap podcast.Snapshot) {
	t.baseline = snap
	if t.opts.Store == nil {
		return
	}
	if err := t.opts.Store.SaveBaseline(context.WithoutCancel(ctx), snap); err != nil {
		t.log.Warnf("[monitor] 保存基线失败: %v", err)
	}
}

func (t *tracker) setState(s State) {
	if t.state == s {
		return
	}
	t.log.Debugf("[monitor] 状态变化: %s -> %s", t.state, s)
	t.state = s
}
