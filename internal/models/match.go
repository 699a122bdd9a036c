// match.go

package models

import (
	"time"

	"github.com/jacl-coder/Caro-Server/internal/board"
)

// GameMode 对局模式
type GameMode string

const (
	// ModeLocal 本地双人
	ModeLocal GameMode = "local"
	// ModeOnline 在线匹配
	ModeOnline GameMode = "online"
	// ModeAI 人机对战
	ModeAI GameMode = "ai"
)

// Valid 检查对局模式是否合法
func (m GameMode) Valid() bool {
	switch m {
	case ModeLocal, ModeOnline, ModeAI:
		return true
	default:
		return false
	}
}

// MatchStatus 对局状态
type MatchStatus string

const (
	// MatchWaiting 等待第二名玩家
	MatchWaiting MatchStatus = "waiting"
	// MatchInProgress 对局进行中
	MatchInProgress MatchStatus = "in_progress"
	// MatchCompleted 对局已结束
	MatchCompleted MatchStatus = "completed"
	// MatchAbandoned 对局被放弃
	MatchAbandoned MatchStatus = "abandoned"
)

// MatchResult 对局结果
type MatchResult string

const (
	// ResultNone 尚无结果
	ResultNone MatchResult = ""
	// ResultBlackWin 黑方胜
	ResultBlackWin MatchResult = "black_win"
	// ResultWhiteWin 白方胜
	ResultWhiteWin MatchResult = "white_win"
	// ResultDraw 和棋
	ResultDraw MatchResult = "draw"
)

// Move 对局中的一手棋
type Move struct {
	Row    int    `json:"row"`
	Col    int    `json:"col"`
	Player string `json:"player"` // 记号 X / O
	Seq    int    `json:"seq"`
}

// MatchRecord 对局持久化记录
type MatchRecord struct {
	ID             string        `json:"id"`
	Mode           GameMode      `json:"mode"`
	BlackPlayerID  int64         `json:"black_player_id,omitempty"`
	WhitePlayerID  int64         `json:"white_player_id,omitempty"`
	Status         MatchStatus   `json:"status"`
	Result         MatchResult   `json:"result,omitempty"`
	BoardState     [][]string    `json:"board_state"`
	MoveHistory    []Move        `json:"move_history"`
	CurrentTurn    string        `json:"current_turn"`
	WinningLine    []board.Coord `json:"winning_line,omitempty"`
	BlackEloBefore int           `json:"black_elo_before,omitempty"`
	WhiteEloBefore int           `json:"white_elo_before,omitempty"`
	BlackEloChange int           `json:"black_elo_change,omitempty"`
	WhiteEloChange int           `json:"white_elo_change,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// EloChange 单方的ELO变化载荷
type EloChange struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	OldElo   int    `json:"old_elo"`
	NewElo   int    `json:"new_elo"`
	Change   int    `json:"change"`
	OldRank  int    `json:"old_rank"`
	NewRank  int    `json:"new_rank"`
}
