// session.go

package game

import (
	"errors"
	"sync"
	"time"

	"github.com/jacl-coder/Caro-Server/internal/ai"
	"github.com/jacl-coder/Caro-Server/internal/board"
	"github.com/jacl-coder/Caro-Server/internal/models"
)

var (
	// ErrNotYourTurn 未轮到该玩家行棋
	ErrNotYourTurn = errors.New("未轮到该玩家行棋")
	// ErrGameNotActive 对局不在进行中
	ErrGameNotActive = errors.New("对局不在进行中")
	// ErrSessionNotFound 对局不存在
	ErrSessionNotFound = errors.New("对局不存在")
	// ErrNotInSession 玩家不在该对局中
	ErrNotInSession = errors.New("玩家不在该对局中")
)

// Participant 对局参与方
// Rating在开局时快照，结算时双方都以快照值计算ELO，
// 避免同一玩家并发对局互相影响。
type Participant struct {
	PlayerID  int64
	Username  string
	Symbol    board.Symbol
	Rating    int
	Connected bool
	IsAI      bool
}

// AppliedMove 一次已生效的落子
type AppliedMove struct {
	Row    int
	Col    int
	Player string
	Result MoveResult
}

// MoveOutcome 一次落子请求产生的全部落子(人机模式含AI回手)
type MoveOutcome struct {
	Moves  []AppliedMove
	Finish *FinishReport
}

// FinishReport 对局终态快照，仅由唯一的结束者持有
// 状态迁移采用检查并置位：并发的结束路径(落子获胜、认输、掉线)
// 只有第一个把状态从in_progress改走的调用拿到非nil报告，
// 结算副作用(ELO、战绩、持久化)因此恰好执行一次。
type FinishReport struct {
	SessionID   string
	Mode        models.GameMode
	Status      models.MatchStatus
	Result      models.MatchResult
	WinningLine []board.Coord
	Board       [][]string
	History     []models.Move
	CurrentTurn string
	Black       Participant
	White       Participant
}

// MatchSession 单局对战的状态机，所有读写都在内部锁下进行
type MatchSession struct {
	ID   string
	Mode models.GameMode

	mu           sync.Mutex
	board        *board.Board
	status       models.MatchStatus
	result       models.MatchResult
	winningLine  []board.Coord
	currentTurn  board.Symbol
	history      []models.Move
	black        *Participant
	white        *Participant
	aiDifficulty ai.Difficulty
	engine       *ai.Engine
	createdAt    time.Time
	lastActivity time.Time
}

// NewOnlineSession 创建在线对局，双方均为真实玩家
// 双方都接入前对局停在waiting状态，此期间不接受落子。
func NewOnlineSession(id string, black, white *Participant, size, winLength int) *MatchSession {
	black.Symbol = board.Black
	white.Symbol = board.White
	status := models.MatchWaiting
	if black.Connected && white.Connected {
		status = models.MatchInProgress
	}
	now := time.Now()
	return &MatchSession{
		ID:           id,
		Mode:         models.ModeOnline,
		board:        board.New(size, winLength),
		status:       status,
		currentTurn:  board.Black,
		black:        black,
		white:        white,
		createdAt:    now,
		lastActivity: now,
	}
}

// NewAISession 创建人机对局，玩家执黑先手，AI执白
func NewAISession(id string, human *Participant, difficulty ai.Difficulty, size, winLength int) *MatchSession {
	human.Symbol = board.Black
	now := time.Now()
	return &MatchSession{
		ID:          id,
		Mode:        models.ModeAI,
		board:       board.New(size, winLength),
		status:      models.MatchInProgress,
		currentTurn: board.Black,
		black:       human,
		white: &Participant{
			Username:  "AI",
			Symbol:    board.White,
			Connected: true,
			IsAI:      true,
		},
		aiDifficulty: difficulty,
		engine:       ai.NewEngine(),
		createdAt:    now,
		lastActivity: now,
	}
}

// NewLocalSession 创建本地双人对局，两个记号由同一连接轮流操作
func NewLocalSession(id string, owner *Participant, size, winLength int) *MatchSession {
	owner.Symbol = board.Black
	now := time.Now()
	return &MatchSession{
		ID:           id,
		Mode:         models.ModeLocal,
		board:        board.New(size, winLength),
		status:       models.MatchInProgress,
		currentTurn:  board.Black,
		black:        owner,
		createdAt:    now,
		lastActivity: now,
	}
}

// MakeMove 处理一次落子请求
// 校验顺序：对局状态 > 行棋权 > 棋盘规则。人机模式下AI的回手
// 在同一次锁内完成，对外表现为单次调用产生两手棋。
func (s *MatchSession) MakeMove(playerID int64, row, col int, mark string) (*MoveOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != models.MatchInProgress {
		return nil, ErrGameNotActive
	}

	sym, err := s.moverSymbolLocked(playerID, mark)
	if err != nil {
		return nil, err
	}
	if sym != s.currentTurn {
		return nil, ErrNotYourTurn
	}

	outcome := &MoveOutcome{}
	applied, finish, err := s.applyMoveLocked(row, col, sym)
	if err != nil {
		return nil, err
	}
	outcome.Moves = append(outcome.Moves, applied)
	outcome.Finish = finish

	// AI回手
	if finish == nil && s.Mode == models.ModeAI && s.currentTurn == s.white.Symbol {
		aiRow, aiCol := s.engine.SelectMove(s.board, s.white.Symbol, s.aiDifficulty)
		aiApplied, aiFinish, err := s.applyMoveLocked(aiRow, aiCol, s.white.Symbol)
		if err != nil {
			return nil, err
		}
		outcome.Moves = append(outcome.Moves, aiApplied)
		outcome.Finish = aiFinish
	}

	return outcome, nil
}

// moverSymbolLocked 解析本次落子方
// 本地模式凭记号行棋，联机与人机模式凭玩家ID行棋。
func (s *MatchSession) moverSymbolLocked(playerID int64, mark string) (board.Symbol, error) {
	if s.Mode == models.ModeLocal {
		sym := board.ParseMark(mark)
		if sym == board.Empty {
			return board.Empty, ErrNotYourTurn
		}
		return sym, nil
	}

	p := s.participantLocked(playerID)
	if p == nil || p.IsAI {
		return board.Empty, ErrNotInSession
	}
	return p.Symbol, nil
}

// applyMoveLocked 落子并推进状态机，调用方必须持锁
func (s *MatchSession) applyMoveLocked(row, col int, sym board.Symbol) (AppliedMove, *FinishReport, error) {
	if err := s.board.ApplyMove(row, col, sym); err != nil {
		return AppliedMove{}, nil, err
	}

	s.history = append(s.history, models.Move{
		Row:    row,
		Col:    col,
		Player: sym.Mark(),
		Seq:    len(s.history) + 1,
	})
	s.lastActivity = time.Now()

	applied := AppliedMove{
		Row:    row,
		Col:    col,
		Player: sym.Mark(),
		Result: MoveResult{Status: "success"},
	}

	if line := s.board.CheckWin(row, col, sym); line != nil {
		result := models.ResultBlackWin
		if sym == board.White {
			result = models.ResultWhiteWin
		}
		finish := s.finishLocked(models.MatchCompleted, result, line)
		applied.Result = MoveResult{
			Status:      "game_over",
			Result:      result,
			WinningLine: line,
		}
		return applied, finish, nil
	}

	if s.board.IsFull() {
		finish := s.finishLocked(models.MatchCompleted, models.ResultDraw, nil)
		applied.Result = MoveResult{
			Status: "game_over",
			Result: models.ResultDraw,
		}
		return applied, finish, nil
	}

	s.currentTurn = sym.Opponent()
	return applied, nil, nil
}

// Forfeit 玩家主动认输，对方获胜
func (s *MatchSession) Forfeit(playerID int64) (*FinishReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != models.MatchInProgress {
		return nil, ErrGameNotActive
	}

	p := s.participantLocked(playerID)
	if p == nil || p.IsAI {
		return nil, ErrNotInSession
	}

	result := models.ResultBlackWin
	if p.Symbol == board.Black {
		result = models.ResultWhiteWin
	}
	return s.finishLocked(models.MatchCompleted, result, nil), nil
}

// Disconnect 玩家连接断开
// 对局已结束时为幂等空操作；进行中则判对方获胜并置为放弃状态。
func (s *MatchSession) Disconnect(playerID int64) (*FinishReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.participantLocked(playerID)
	if p == nil || p.IsAI {
		return nil, ErrNotInSession
	}
	p.Connected = false

	if s.status != models.MatchInProgress {
		return nil, nil
	}

	result := models.ResultBlackWin
	if p.Symbol == board.Black {
		result = models.ResultWhiteWin
	}
	if s.Mode == models.ModeLocal {
		// 本地对局无对手可判胜，直接作废
		result = models.ResultNone
	}
	return s.finishLocked(models.MatchAbandoned, result, nil), nil
}

// finishLocked 状态检查并置位，只有第一个结束者拿到非nil报告
func (s *MatchSession) finishLocked(status models.MatchStatus, result models.MatchResult, line []board.Coord) *FinishReport {
	if s.status != models.MatchInProgress {
		return nil
	}
	s.status = status
	s.result = result
	s.winningLine = line
	s.lastActivity = time.Now()

	report := &FinishReport{
		SessionID:   s.ID,
		Mode:        s.Mode,
		Status:      status,
		Result:      result,
		WinningLine: line,
		Board:       s.board.Snapshot(),
		History:     append([]models.Move(nil), s.history...),
		CurrentTurn: s.currentTurn.Mark(),
	}
	if s.black != nil {
		report.Black = *s.black
	}
	if s.white != nil {
		report.White = *s.white
	}
	return report
}

// participantLocked 按玩家ID查找参与方
func (s *MatchSession) participantLocked(playerID int64) *Participant {
	if s.black != nil && !s.black.IsAI && s.black.PlayerID == playerID {
		return s.black
	}
	if s.white != nil && !s.white.IsAI && s.white.PlayerID == playerID {
		return s.white
	}
	return nil
}

// Reconnect 标记玩家接入，返回是否找到该玩家
// 等待中的在线对局在双方都接入后开局。
func (s *MatchSession) Reconnect(playerID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.participantLocked(playerID)
	if p == nil {
		return false
	}
	p.Connected = true
	s.lastActivity = time.Now()

	if s.status == models.MatchWaiting &&
		s.black != nil && s.black.Connected &&
		s.white != nil && s.white.Connected {
		s.status = models.MatchInProgress
	}
	return true
}

// StateMessage 导出对局状态快照消息
func (s *MatchSession) StateMessage() GameStateMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	return GameStateMessage{
		Type:        MsgGameState,
		SessionID:   s.ID,
		Board:       s.board.Snapshot(),
		CurrentTurn: s.currentTurn.Mark(),
		Status:      s.status,
		Result:      s.result,
	}
}

// Record 导出当前状态的持久化记录
func (s *MatchSession) Record() *models.MatchRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := &models.MatchRecord{
		ID:          s.ID,
		Mode:        s.Mode,
		Status:      s.status,
		Result:      s.result,
		BoardState:  s.board.Snapshot(),
		MoveHistory: append([]models.Move(nil), s.history...),
		CurrentTurn: s.currentTurn.Mark(),
		WinningLine: s.winningLine,
		CreatedAt:   s.createdAt,
	}
	if s.black != nil && !s.black.IsAI {
		record.BlackPlayerID = s.black.PlayerID
		record.BlackEloBefore = s.black.Rating
	}
	if s.white != nil && !s.white.IsAI {
		record.WhitePlayerID = s.white.PlayerID
		record.WhiteEloBefore = s.white.Rating
	}
	return record
}

// Status 返回当前对局状态
func (s *MatchSession) Status() models.MatchStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastActivity 返回最近一次活动时间
func (s *MatchSession) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// OpponentOf 返回指定玩家的对手，没有则返回nil
func (s *MatchSession) OpponentOf(playerID int64) *Participant {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.black != nil && !s.black.IsAI && s.black.PlayerID == playerID {
		if s.white == nil {
			return nil
		}
		cp := *s.white
		return &cp
	}
	if s.white != nil && !s.white.IsAI && s.white.PlayerID == playerID {
		if s.black == nil {
			return nil
		}
		cp := *s.black
		return &cp
	}
	return nil
}
