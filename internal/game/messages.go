// messages.go

package game

import (
	"encoding/json"

	"github.com/jacl-coder/Caro-Server/internal/board"
	"github.com/jacl-coder/Caro-Server/internal/models"
)

// 对局协议采用封闭的消息类型集合，入站消息为带类型标签的信封，
// 每种类型对应一个确定的载荷结构，不使用自由格式的键值映射。

// 入站消息类型
const (
	// MsgMakeMove 落子请求
	MsgMakeMove = "make_move"
	// MsgForfeit 认输
	MsgForfeit = "forfeit"
	// MsgLeave 离开对局
	MsgLeave = "leave"
)

// 出站消息类型
const (
	// MsgGameState 对局状态快照
	MsgGameState = "game_state"
	// MsgMove 落子广播
	MsgMove = "move"
	// MsgGameOver 对局结束广播(认输等非落子结束)
	MsgGameOver = "game_over"
	// MsgPlayerDisconnected 玩家掉线广播
	MsgPlayerDisconnected = "player_disconnected"
	// MsgError 错误通知
	MsgError = "error"
)

// Message 入站消息信封
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MakeMovePayload 落子请求载荷
type MakeMovePayload struct {
	Row    int    `json:"row"`
	Col    int    `json:"col"`
	Player string `json:"player"` // 记号 X / O
}

// MoveResult 单次落子的结果
type MoveResult struct {
	Status      string             `json:"status"` // success | game_over
	Result      models.MatchResult `json:"result,omitempty"`
	WinningLine []board.Coord      `json:"winning_line,omitempty"`
	EloChanges  []models.EloChange `json:"elo_changes,omitempty"`
}

// MoveBroadcast 落子广播消息
type MoveBroadcast struct {
	Type   string     `json:"type"`
	Row    int        `json:"row"`
	Col    int        `json:"col"`
	Player string     `json:"player"`
	Result MoveResult `json:"result"`
}

// GameStateMessage 对局状态快照消息
type GameStateMessage struct {
	Type        string             `json:"type"`
	SessionID   string             `json:"session_id"`
	Board       [][]string         `json:"board"`
	CurrentTurn string             `json:"current_turn"`
	Status      models.MatchStatus `json:"status"`
	Result      models.MatchResult `json:"result,omitempty"`
}

// GameOverMessage 对局结束广播消息
type GameOverMessage struct {
	Type        string             `json:"type"`
	Result      models.MatchResult `json:"result"`
	WinningLine []board.Coord      `json:"winning_line,omitempty"`
	EloChanges  []models.EloChange `json:"elo_changes,omitempty"`
}

// DisconnectBroadcast 玩家掉线广播消息
type DisconnectBroadcast struct {
	Type               string             `json:"type"`
	DisconnectedUserID int64              `json:"disconnected_user_id"`
	Result             models.MatchResult `json:"result"`
	OpponentConnected  bool               `json:"opponent_connected"`
	EloChanges         []models.EloChange `json:"elo_changes,omitempty"`
}

// ErrorMessage 错误通知消息
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
