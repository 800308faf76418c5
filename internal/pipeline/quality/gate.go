package quality

// Decision 查重门控决策
type Decision string

const (
	// DecisionSkip 达标，跳过改写
	DecisionSkip Decision = "skip"
	// DecisionRewrite 未达标，触发一次改写循环
	DecisionRewrite Decision = "rewrite"
)

// Decide 根据查重得分与服务阈值判定是否需要改写
// 阈值是闭区间下界：score >= threshold 视为达标
func Decide(uniquenessScore, threshold float64) Decision {
	if uniquenessScore < threshold {
		return DecisionRewrite
	}
	return DecisionSkip
}
