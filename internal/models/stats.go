// stats.go

package models

import (
	"time"
)

// LeaderboardEntry 排行榜条目
type LeaderboardEntry struct {
	Rank      int     `json:"rank"`
	PlayerID  int64   `json:"player_id"`
	Username  string  `json:"username"`
	EloRating int     `json:"elo_rating"`
	Wins      int     `json:"wins"`
	Losses    int     `json:"losses"`
	Draws     int     `json:"draws"`
	WinRate   float64 `json:"win_rate"`
}

// PlayerMatchRecord 玩家视角的对局记录
type PlayerMatchRecord struct {
	MatchID      string      `json:"match_id"`
	Mode         GameMode    `json:"mode"`
	OpponentName string      `json:"opponent_name,omitempty"`
	Result       MatchResult `json:"result,omitempty"`
	EloChange    int         `json:"elo_change"`
	CreatedAt    time.Time   `json:"created_at"`
}
