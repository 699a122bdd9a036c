// elo.go

package elo

import (
	"math"
)

// Outcome 对局结果(从单方视角)
type Outcome string

const (
	// Win 胜
	Win Outcome = "win"
	// Loss 负
	Loss Outcome = "loss"
	// Draw 和
	Draw Outcome = "draw"
)

// DefaultKFactor 默认K系数
const DefaultKFactor = 32

// Update 根据对局结果计算新ELO分数和变化量
// 期望得分采用逻辑斯蒂模型，变化量向零取整。
// 双方应使用同一份赛前分数快照分别调用，避免先后顺序影响结果。
func Update(selfRating, opponentRating int, outcome Outcome, kFactor int) (newRating, delta int) {
	expected := 1.0 / (1.0 + math.Pow(10, float64(opponentRating-selfRating)/400.0))

	var actual float64
	switch outcome {
	case Win:
		actual = 1.0
	case Loss:
		actual = 0.0
	case Draw:
		actual = 0.5
	}

	delta = int(float64(kFactor) * (actual - expected))
	newRating = selfRating + delta
	return newRating, delta
}
