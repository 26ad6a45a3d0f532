package podcast

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
)

const (
	namespacePrefix = "podcast"
	liveItemElement = "liveItem"
)

// Build 将已解析的订阅源转换为快照。
// 返回的警告描述被丢弃或被降级处理的条目，由调用方决定如何记录。
func Build(feed *gofeed.Feed, sourceID string) (Snapshot, []string, error) {
	if feed == nil {
		return Snapshot{}, nil, fmt.Errorf("%s: %w: empty document", sourceID, ErrMalformedFeed)
	}
	title := strings.TrimSpace(feed.Title)
	if title == "" {
		return Snapshot{}, nil, fmt.Errorf("%s: %w: missing title", sourceID, ErrMalformedFeed)
	}

	var warnings []string
	episodes := make([]Episode, 0, len(feed.Items))
	for i, item := range feed.Items {
		if item == nil {
			continue
		}
		epTitle := strings.TrimSpace(item.Title)
		if epTitle == "" {
			warnings = append(warnings, fmt.Sprintf("第 %d 个条目缺少标题，已忽略", i))
			continue
		}
		episodes = append(episodes, Episode{
			Title: epTitle,
			Link:  strings.TrimSpace(item.Link),
		})
	}

	liveItems, liveWarnings := buildLiveItems(feed.Extensions)
	warnings = append(warnings, liveWarnings...)

	return Snapshot{
		SourceID:  sourceID,
		Title:     title,
		Episodes:  episodes,
		LiveItems: liveItems,
	}, warnings, nil
}

// buildLiveItems 从频道级扩展中提取 podcast:liveItem。
func buildLiveItems(extensions ext.Extensions) ([]LiveItem, []string) {
	raw := liveItemExtensions(extensions)
	items := make([]LiveItem, 0, len(raw))
	var warnings []string
	for i, e := range raw {
		rawStatus := e.Attrs["status"]
		status, ok := ParseLiveStatus(rawStatus)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("第 %d 个直播条目状态 %q 无法识别，按 ended 处理", i, rawStatus))
		}
		item := LiveItem{
			Status:    status,
			StartTime: e.Attrs["start"],
			Link:      liveItemLink(e),
		}
		if item.Link == "" && status != LiveEnded {
			warnings = append(warnings, fmt.Sprintf("第 %d 个直播条目（%s）缺少链接", i, status))
		}
		items = append(items, item)
	}
	return items, warnings
}

func liveItemExtensions(extensions ext.Extensions) []ext.Extension {
	if items := extensions[namespacePrefix][liveItemElement]; len(items) > 0 {
		return items
	}
	// gofeed 以文档声明的前缀作为键，命名空间可能绑定到其他前缀
	prefixes := make([]string, 0, len(extensions))
	for prefix := range extensions {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)
	for _, prefix := range prefixes {
		if items := extensions[prefix][liveItemElement]; len(items) > 0 {
			return items
		}
	}
	return nil
}

// liveItemLink 优先取 <link>，其次取 <podcast:contentLink href="...">。
func liveItemLink(e ext.Extension) string {
	if links := e.Children["link"]; len(links) > 0 {
		if v := strings.TrimSpace(links[0].Value); v != "" {
			return v
		}
		if v := strings.TrimSpace(links[0].Attrs["href"]); v != "" {
			return v
		}
	}
	if links := e.Children["contentLink"]; len(links) > 0 {
		return strings.TrimSpace(links[0].Attrs["href"])
	}
	return ""
}
