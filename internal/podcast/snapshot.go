// Package podcast 提供播客订阅源快照模型、变更检测与通知文案渲染。
package podcast

import "errors"

var (
	// ErrMalformedFeed 订阅源缺少必需字段（如标题）。
	ErrMalformedFeed = errors.New("malformed feed")
	// ErrMismatchedSource 比较了来自不同订阅源的快照，属于调用方错误。
	ErrMismatchedSource = errors.New("mismatched snapshot source")
)

// LiveStatus 直播条目状态。
type LiveStatus int

const (
	// LiveEnded 直播已结束，同时是无法识别状态的兜底值。
	LiveEnded LiveStatus = iota
	// LivePending 直播已预告，尚未开始。
	LivePending
	// LiveLive 正在直播。
	LiveLive
)

var liveStatusNames = [...]string{
	"ended",
	"pending",
	"live",
}

func (s LiveStatus) String() string {
	if int(s) >= 0 && int(s) < len(liveStatusNames) {
		return liveStatusNames[s]
	}
	return "unknown"
}

// ParseLiveStatus 按大小写敏感方式解析 podcast 命名空间中的状态值。
// 无法识别的值返回 LiveEnded 和 false。
func ParseLiveStatus(s string) (LiveStatus, bool) {
	switch s {
	case "pending":
		return LivePending, true
	case "live":
		return LiveLive, true
	case "ended":
		return LiveEnded, true
	}
	return LiveEnded, false
}

// MarshalText 以 podcast 命名空间中的写法序列化状态。
func (s LiveStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText 解析状态，无法识别的值视为 LiveEnded。
func (s *LiveStatus) UnmarshalText(b []byte) error {
	*s, _ = ParseLiveStatus(string(b))
	return nil
}

// Episode 单集。
type Episode struct {
	Title string `json:"title"`
	Link  string `json:"link,omitempty"`
}

// LiveItem 直播条目，按在订阅源中的位置进行比较。
type LiveItem struct {
	Status    LiveStatus `json:"status"`
	StartTime string     `json:"start_time"`
	Link      string     `json:"link,omitempty"`
}

// Snapshot 某次轮询时订阅源的可比较状态。
type Snapshot struct {
	SourceID  string     `json:"source_id"`
	Title     string     `json:"title"`
	Episodes  []Episode  `json:"episodes"`   // 最新在前
	LiveItems []LiveItem `json:"live_items"` // 保持订阅源中的顺序
}

// Equal 判断两个快照在结构上是否相同。
func (s Snapshot) Equal(o Snapshot) bool {
	return s.SourceID == o.SourceID &&
		s.Title == o.Title &&
		episodesEqual(s.Episodes, o.Episodes) &&
		liveItemsEqual(s.LiveItems, o.LiveItems)
}

func episodesEqual(a, b []Episode) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func liveItemsEqual(a, b []LiveItem) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// EventKind 变更事件类型。
type EventKind int

const (
	// EventNewEpisode 发布了新单集。
	EventNewEpisode EventKind = iota + 1
	// EventLiveStatusChanged 直播条目状态发生变化。
	EventLiveStatusChanged
)

func (k EventKind) String() string {
	switch k {
	case EventNewEpisode:
		return "new_episode"
	case EventLiveStatusChanged:
		return "live_status_changed"
	}
	return "unknown"
}

// ChangeEvent 一次检测得出的唯一变更。Kind 决定 Episode 与 Live 中哪个字段有效。
type ChangeEvent struct {
	Kind    EventKind
	Episode Episode
	Live    LiveItem
}

// NewEpisodeEvent 构造新单集事件。
func NewEpisodeEvent(ep Episode) ChangeEvent {
	return ChangeEvent{Kind: EventNewEpisode, Episode: ep}
}

// LiveStatusChangedEvent 构造直播状态变化事件。
func LiveStatusChangedEvent(item LiveItem) ChangeEvent {
	return ChangeEvent{Kind: EventLiveStatusChanged, Live: item}
}
