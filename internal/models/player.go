// player.go

package models

import (
	"time"
)

// Player 玩家模型
type Player struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// ELO与战绩统计
	EloRating     int `json:"elo_rating"`
	Wins          int `json:"wins"`
	Losses        int `json:"losses"`
	Draws         int `json:"draws"`
	CurrentStreak int `json:"current_streak"`
	BestStreak    int `json:"best_streak"`
}

// TotalGames 总对局数
func (p *Player) TotalGames() int {
	return p.Wins + p.Losses + p.Draws
}

// WinRate 胜率(百分比)
func (p *Player) WinRate() float64 {
	total := p.TotalGames()
	if total == 0 {
		return 0
	}
	return float64(p.Wins) / float64(total) * 100
}

// 注意：表结构定义已移至 pkg/db/schema.go 统一管理
