package types

import (
	"math"

	"evcore/internal/pkg/mathutil"
)

// ProbabilityEstimate 持仓方向的延续/反转/横盘概率。
// 不变量：三者均 ∈[0,1] 且 continuation+reversal ≤ 1；flat 取余量。
type ProbabilityEstimate struct {
	Continuation  float64 `json:"continuation"`
	Reversal      float64 `json:"reversal"`
	Flat          float64 `json:"flat"`
	ThesisQuality float64 `json:"thesis_quality"`
}

// Normalize 夹取并重建 flat；越界时返回 true（供调用方记一条告警）。
func (p *ProbabilityEstimate) Normalize() bool {
	violated := false
	if p.Continuation < 0 || p.Continuation > 1 || p.Reversal < 0 || p.Reversal > 1 {
		violated = true
	}
	p.Continuation = mathutil.Clamp01(mathutil.Finite(p.Continuation, 0.5))
	p.Reversal = mathutil.Clamp01(mathutil.Finite(p.Reversal, 0.3))
	if sum := p.Continuation + p.Reversal; sum > 1 {
		violated = true
		p.Continuation /= sum
		p.Reversal /= sum
	}
	p.Flat = mathutil.Clamp01(1 - p.Continuation - p.Reversal)
	p.ThesisQuality = mathutil.Clamp01(mathutil.Finite(p.ThesisQuality, 0.5))
	return violated
}

// Uncertainty 模型犹豫程度：延续与反转越接近越不确定。
func (p ProbabilityEstimate) Uncertainty() float64 {
	return mathutil.Clamp01(1 - math.Abs(p.Continuation-p.Reversal))
}
