package pipeline

import (
	"fmt"
	"time"

	"med-assist-go/internal/config"
)

// MinStages 是流水线要求的最少阶段数。
const MinStages = 3

// Stage 是一个按序执行的模拟处理阶段。
type Stage struct {
	Name     string
	Label    string
	Duration time.Duration
}

// DefaultStages 返回 文档处理 -> 问题分析 -> 生成回答 三个阶段。
func DefaultStages() []Stage {
	return []Stage{
		{Name: "document", Label: "Processing your document…", Duration: 1000 * time.Millisecond},
		{Name: "question", Label: "Analyzing your question…", Duration: 1500 * time.Millisecond},
		{Name: "answer", Label: "Generating answer…", Duration: 2000 * time.Millisecond},
	}
}

// StagesFromConfig 把配置文件中的阶段列表转换为 Stage。
func StagesFromConfig(cfg config.PipelineConfig) []Stage {
	stages := make([]Stage, 0, len(cfg.Stages))
	for _, s := range cfg.Stages {
		stages = append(stages, Stage{Name: s.Name, Label: s.Label, Duration: s.Duration()})
	}
	return stages
}

// ValidateStages 检查阶段数量和每个阶段的状态文案。
func ValidateStages(stages []Stage) error {
	if len(stages) < MinStages {
		return fmt.Errorf("pipeline requires at least %d stages, got %d", MinStages, len(stages))
	}
	for i, s := range stages {
		if s.Label == "" {
			return fmt.Errorf("pipeline stage %d has no status label", i+1)
		}
		if s.Duration < 0 {
			return fmt.Errorf("pipeline stage %d has negative duration", i+1)
		}
	}
	return nil
}
