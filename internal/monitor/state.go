package monitor

// State 表示单个订阅源跟踪器的状态。
type State int

const (
	// StateUninitialized 尚未成功轮询过，没有基线。
	StateUninitialized State = iota
	// StateBaselined 已有基线，后续轮询会与之比较。
	StateBaselined
)

var stateNames = [...]string{
	"Uninitialized",
	"Baselined",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}
