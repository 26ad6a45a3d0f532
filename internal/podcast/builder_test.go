package podcast

import (
	"errors"
	"testing"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
)

const testPodcastFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:podcast="https://podcastindex.org/namespace/1.0">
  <channel>
    <title>My Show</title>
    <link>https://example.com</link>
    <podcast:liveItem status="pending" start="2026-10-20T10:00:00Z" end="2026-10-20T11:00:00Z">
      <title>Live Q&amp;A</title>
      <guid>live-1</guid>
      <link>https://example.com/live/1</link>
    </podcast:liveItem>
    <podcast:liveItem status="ended" start="2026-10-01T10:00:00Z">
      <title>Old stream</title>
      <podcast:contentLink href="https://example.com/live/0">Watch</podcast:contentLink>
    </podcast:liveItem>
    <item>
      <title>Ep 42</title>
      <link>https://example.com/ep/42</link>
    </item>
    <item>
      <title>   </title>
      <link>https://example.com/ep/broken</link>
    </item>
    <item>
      <title>Ep 41</title>
    </item>
  </channel>
</rss>`

const testPlainFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Plain Show</title>
    <item><title>Ep 2</title><link>https://example.com/2</link></item>
    <item><title>Ep 1</title><link>https://example.com/1</link></item>
  </channel>
</rss>`

const testUntitledFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <link>https://example.com</link>
    <item><title>Ep 1</title></item>
  </channel>
</rss>`

const testUnknownStatusFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:podcast="https://podcastindex.org/namespace/1.0">
  <channel>
    <title>My Show</title>
    <podcast:liveItem status="scheduled" start="10:00">
      <link>https://example.com/live/9</link>
    </podcast:liveItem>
    <podcast:liveItem status="LIVE" start="11:00">
      <link>https://example.com/live/10</link>
    </podcast:liveItem>
  </channel>
</rss>`

func parseFeed(t *testing.T, doc string) *gofeed.Feed {
	t.Helper()
	feed, err := gofeed.NewParser().ParseString(doc)
	if err != nil {
		t.Fatalf("解析测试 Feed 失败: %v", err)
	}
	return feed
}

func TestBuild(t *testing.T) {
	snap, warnings, err := Build(parseFeed(t, testPodcastFeed), "https://example.com/feed.xml")
	if err != nil {
		t.Fatalf("Build 失败: %v", err)
	}

	if snap.SourceID != "https://example.com/feed.xml" {
		t.Errorf("SourceID 不匹配: %s", snap.SourceID)
	}
	if snap.Title != "My Show" {
		t.Errorf("标题不匹配: %s", snap.Title)
	}

	wantEpisodes := []Episode{
		{Title: "Ep 42", Link: "https://example.com/ep/42"},
		{Title: "Ep 41"},
	}
	if !episodesEqual(snap.Episodes, wantEpisodes) {
		t.Errorf("单集不匹配: got %+v, want %+v", snap.Episodes, wantEpisodes)
	}

	wantLive := []LiveItem{
		{Status: LivePending, StartTime: "2026-10-20T10:00:00Z", Link: "https://example.com/live/1"},
		{Status: LiveEnded, StartTime: "2026-10-01T10:00:00Z", Link: "https://example.com/live/0"},
	}
	if !liveItemsEqual(snap.LiveItems, wantLive) {
		t.Errorf("直播条目不匹配: got %+v, want %+v", snap.LiveItems, wantLive)
	}

	// 无标题条目被丢弃并产生一条警告
	if len(warnings) != 1 {
		t.Errorf("期望 1 条警告，得到 %d 条: %v", len(warnings), warnings)
	}
}

func TestBuildWithoutLiveExtension(t *testing.T) {
	snap, warnings, err := Build(parseFeed(t, testPlainFeed), "plain")
	if err != nil {
		t.Fatalf("Build 失败: %v", err)
	}
	if snap.LiveItems == nil || len(snap.LiveItems) != 0 {
		t.Errorf("缺少扩展时应得到空直播列表，得到 %+v", snap.LiveItems)
	}
	if len(snap.Episodes) != 2 || snap.Episodes[0].Title != "Ep 2" {
		t.Errorf("单集顺序应与文档一致: %+v", snap.Episodes)
	}
	if len(warnings) != 0 {
		t.Errorf("不应有警告: %v", warnings)
	}
}

func TestBuildLiveItemUnderOtherPrefix(t *testing.T) {
	const doc = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:pi="https://podcastindex.org/namespace/1.0">
<channel>
<title>My Show</title>
<pi:liveItem status="live" start="2026-10-20T10:00:00Z"><link>https://example.com/live/1</link></pi:liveItem>
</channel>
</rss>`

	snap, _, err := Build(parseFeed(t, doc), "https://example.com/feed.xml")
	if err != nil {
		t.Fatalf("Build 失败: %v", err)
	}
	want := []LiveItem{{Status: LiveLive, StartTime: "2026-10-20T10:00:00Z", Link: "https://example.com/live/1"}}
	if !liveItemsEqual(snap.LiveItems, want) {
		t.Errorf("直播条目不匹配: got %+v, want %+v", snap.LiveItems, want)
	}
}

func TestLiveItemExtensionsPrefersPodcastPrefix(t *testing.T) {
	extensions := ext.Extensions{
		"aaa":     {"liveItem": {{Name: "liveItem", Attrs: map[string]string{"status": "ended"}}}},
		"podcast": {"liveItem": {{Name: "liveItem", Attrs: map[string]string{"status": "live"}}}},
	}
	items := liveItemExtensions(extensions)
	if len(items) != 1 || items[0].Attrs["status"] != "live" {
		t.Errorf("应优先使用 podcast 前缀: %+v", items)
	}
}

func TestBuildMissingTitle(t *testing.T) {
	_, _, err := Build(parseFeed(t, testUntitledFeed), "untitled")
	if !errors.Is(err, ErrMalformedFeed) {
		t.Fatalf("期望 ErrMalformedFeed，得到 %v", err)
	}

	_, _, err = Build(nil, "nil")
	if !errors.Is(err, ErrMalformedFeed) {
		t.Fatalf("nil 文档期望 ErrMalformedFeed，得到 %v", err)
	}
}

func TestBuildUnknownStatus(t *testing.T) {
	snap, warnings, err := Build(parseFeed(t, testUnknownStatusFeed), "unknown")
	if err != nil {
		t.Fatalf("Build 失败: %v", err)
	}
	if len(snap.LiveItems) != 2 {
		t.Fatalf("期望 2 个直播条目，得到 %d", len(snap.LiveItems))
	}
	// 大小写敏感："LIVE" 同样无法识别
	for i, item := range snap.LiveItems {
		if item.Status != LiveEnded {
			t.Errorf("第 %d 个条目应归一为 ended，得到 %s", i, item.Status)
		}
	}
	if len(warnings) != 2 {
		t.Errorf("期望 2 条警告，得到 %d 条: %v", len(warnings), warnings)
	}

	msg := Render(LiveStatusChangedEvent(snap.LiveItems[0]), "My Show")
	if msg != "Live stream: My Show stopped streaming" {
		t.Errorf("渲染结果不匹配: %q", msg)
	}
}

func TestBuildLiveItemWithoutLink(t *testing.T) {
	feed := &gofeed.Feed{Title: "My Show"}
	feed.Extensions = ext.Extensions{
		"podcast": {
			"liveItem": {
				{Name: "liveItem", Attrs: map[string]string{"status": "live", "start": "10:00"}},
			},
		},
	}
	snap, warnings, err := Build(feed, "nolink")
	if err != nil {
		t.Fatalf("Build 失败: %v", err)
	}
	if len(snap.LiveItems) != 1 || snap.LiveItems[0].Status != LiveLive {
		t.Fatalf("直播条目不匹配: %+v", snap.LiveItems)
	}
	if len(warnings) != 1 {
		t.Errorf("缺少链接的直播条目应产生警告: %v", warnings)
	}
}

func TestParseLiveStatus(t *testing.T) {
	tests := []struct {
		in   string
		want LiveStatus
		ok   bool
	}{
		{"pending", LivePending, true},
		{"live", LiveLive, true},
		{"ended", LiveEnded, true},
		{"Live", LiveEnded, false},
		{"scheduled", LiveEnded, false},
		{"", LiveEnded, false},
	}
	for _, tt := range tests {
		got, ok := ParseLiveStatus(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLiveStatus(%q) = (%s, %v), want (%s, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
