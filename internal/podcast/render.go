package podcast

import "fmt"

// Render 将变更事件渲染为通知文本。
func Render(event ChangeEvent, podcastTitle string) string {
	switch event.Kind {
	case EventNewEpisode:
		msg := fmt.Sprintf("New episode: %s uploaded '%s'", podcastTitle, event.Episode.Title)
		if event.Episode.Link != "" {
			msg += "\nWatch at " + event.Episode.Link
		}
		return msg
	case EventLiveStatusChanged:
		return renderLive(event.Live, podcastTitle)
	}
	return fmt.Sprintf("Update: %s changed", podcastTitle)
}

func renderLive(item LiveItem, podcastTitle string) string {
	switch item.Status {
	case LivePending:
		return fmt.Sprintf("Live stream: %s will be live at %s\nWatch at %s", podcastTitle, item.StartTime, item.Link)
	case LiveLive:
		return fmt.Sprintf("Live stream: %s is now live!\nWatch at %s", podcastTitle, item.Link)
	default:
		return fmt.Sprintf("Live stream: %s stopped streaming", podcastTitle)
	}
}
