package model

// PipelineState 是提交流水线的状态。
type PipelineState int

const (
	StateIdle PipelineState = iota
	StateValidating
	StateStaged
	StateCompleted
)

func (s PipelineState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateStaged:
		return "staged"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// MarshalText 让状态在 JSON 中以字符串形式出现。
func (s PipelineState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// PipelineStatus 是对外可观察的流水线状态。
type PipelineStatus struct {
	State        PipelineState `json:"state"`
	IsProcessing bool          `json:"isProcessing"`
	StatusText   string        `json:"statusText"`
	Stage        int           `json:"stage"` // 从 1 开始，非 Staged 时为 0
	StageName    string        `json:"stageName,omitempty"`
	TotalStages  int           `json:"totalStages"`
}

// Progress 返回 0-100 的完成百分比，按已开始的阶段计算。
func (s PipelineStatus) Progress() int {
	switch {
	case s.State == StateCompleted:
		return 100
	case s.TotalStages == 0 || s.Stage == 0:
		return 0
	default:
		return (s.Stage - 1) * 100 / s.TotalStages
	}
}
