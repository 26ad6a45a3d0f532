package podcast

import "fmt"

// Detect 比较前后两个快照，按优先级返回最多一个变更事件。
//
// 新单集优先于直播状态变化：单集数严格增加时返回 current.Episodes[0]，
// 数量持平或减少时才检查直播条目。直播条目仅在状态变化时产生事件，
// 开始时间或链接的变化不会触发通知。
func Detect(previous, current Snapshot) (*ChangeEvent, error) {
	if previous.SourceID != current.SourceID {
		return nil, fmt.Errorf("%w: %q != %q", ErrMismatchedSource, previous.SourceID, current.SourceID)
	}

	if len(current.Episodes) > len(previous.Episodes) {
		ev := NewEpisodeEvent(current.Episodes[0])
		return &ev, nil
	}

	if liveItemsEqual(previous.LiveItems, current.LiveItems) {
		return nil, nil
	}

	// 新出现的直播条目位于最前面
	if len(current.LiveItems) > len(previous.LiveItems) {
		ev := LiveStatusChangedEvent(current.LiveItems[0])
		return &ev, nil
	}

	for i := range current.LiveItems {
		if current.LiveItems[i].Status != previous.LiveItems[i].Status {
			ev := LiveStatusChangedEvent(current.LiveItems[i])
			return &ev, nil
		}
	}
	return nil, nil
}
