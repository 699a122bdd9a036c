// pairing.go

package models

import "time"

// 配对记录的Redis键布局
const (
	// MatchPairingKeyPrefix 配对记录键前缀
	MatchPairingKeyPrefix = "matchmaking:match:"

	// MatchPairingTTL 配对记录保留时间
	MatchPairingTTL = time.Hour
)

// PairedPlayer 配对记录中的单个玩家
type PairedPlayer struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Elo      int    `json:"elo"`
}

// MatchPairing 匹配服务写入Redis的配对记录
// 游戏服务器在首个玩家接入时据此创建对局。
type MatchPairing struct {
	MatchID   string          `json:"match_id"`
	Mode      GameMode        `json:"mode"`
	Players   [2]PairedPlayer `json:"players"`
	ServerID  string          `json:"server_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
