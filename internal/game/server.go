// server.go

package game

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jacl-coder/Caro-Server/config"
	"github.com/jacl-coder/Caro-Server/internal/ai"
	"github.com/jacl-coder/Caro-Server/internal/board"
	"github.com/jacl-coder/Caro-Server/internal/elo"
	"github.com/jacl-coder/Caro-Server/internal/gateway"
	"github.com/jacl-coder/Caro-Server/internal/models"
	"github.com/jacl-coder/Caro-Server/internal/pool"
	"github.com/jacl-coder/Caro-Server/pkg/db"
)

// 已结束对局在内存中的保留时间，到期由清理协程移除
const finishedSessionTTL = 5 * time.Minute

// 无人连接的对局超时时间
const idleSessionTTL = 30 * time.Minute

// GameServer 游戏服务器
type GameServer struct {
	config   *config.Config
	serverID string

	sessions      map[string]*MatchSession
	sessionsMutex sync.RWMutex

	connections map[int64]*PlayerConnection
	connMutex   sync.RWMutex

	repo        *models.PlayerRepository
	leaderboard *models.RedisLeaderboard
	pool        *pool.Pool
	auth        *gateway.AuthHandler

	httpServer *http.Server

	// 关闭信号
	shutdown  chan struct{}
	isRunning bool
}

// PlayerConnection 玩家连接
type PlayerConnection struct {
	PlayerID   int64
	Username   string
	SessionID  string
	LastActive time.Time

	// 发送通道
	Send chan []byte

	// 连接状态
	IsAlive bool
}

// NewGameServer 创建新的游戏服务器
func NewGameServer(cfg *config.Config) *GameServer {
	return &GameServer{
		config:      cfg,
		serverID:    uuid.New().String(),
		sessions:    make(map[string]*MatchSession),
		connections: make(map[int64]*PlayerConnection),
		repo:        models.NewPlayerRepository(),
		leaderboard: models.NewRedisLeaderboard(),
		pool:        pool.NewPool(cfg),
		auth:        gateway.NewAuthHandler(),
		shutdown:    make(chan struct{}),
	}
}

// ServerID 返回本服务器在池中的标识
func (s *GameServer) ServerID() string {
	return s.serverID
}

// Start 启动游戏服务器
func (s *GameServer) Start() error {
	if s.isRunning {
		return fmt.Errorf("服务器已经在运行")
	}

	// 注册到服务器池
	info := &pool.ServerInfo{
		ID:       s.serverID,
		Host:     s.config.Server.Host,
		Port:     s.config.Server.GamePort,
		Region:   s.config.Pool.Region,
		MaxGames: s.config.Server.MaxSessions,
	}
	if err := s.pool.Register(info); err != nil {
		return fmt.Errorf("注册到服务器池失败: %w", err)
	}

	// 初始化HTTP服务器
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Server.GamePort),
		Handler: s.createHandler(),
	}

	// 启动HTTP服务器
	go func() {
		log.Printf("游戏服务器启动，监听端口: %d", s.config.Server.GamePort)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP服务器错误: %v", err)
		}
	}()

	// 启动心跳和对局清理
	go s.heartbeatLoop()
	go s.sessionManager()

	s.isRunning = true
	return nil
}

// Stop 停止游戏服务器
func (s *GameServer) Stop() error {
	if !s.isRunning {
		return nil
	}

	// 发送关闭信号
	close(s.shutdown)

	// 从服务器池注销
	if err := s.pool.Unregister(s.serverID); err != nil {
		log.Printf("从服务器池注销失败: %v", err)
	}

	// 关闭所有连接
	s.connMutex.Lock()
	for _, conn := range s.connections {
		close(conn.Send)
	}
	s.connections = make(map[int64]*PlayerConnection)
	s.connMutex.Unlock()

	// 关闭HTTP服务器
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP服务器关闭错误: %w", err)
	}

	s.isRunning = false
	log.Println("游戏服务器已停止")
	return nil
}

// createHandler 创建HTTP处理器
func (s *GameServer) createHandler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket 连接端点
	mux.HandleFunc("/ws", s.handleWSConnection)

	// 本地与人机对局创建端点
	mux.HandleFunc("/session/local", s.handleCreateLocal)
	mux.HandleFunc("/session/ai", s.handleCreateAI)

	// 健康检查端点
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return mux
}

// heartbeatLoop 向服务器池周期性上报心跳
func (s *GameServer) heartbeatLoop() {
	interval := time.Duration(s.config.Pool.HeartbeatTTL) * time.Second / 3
	if interval <= 0 {
		interval = 20 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics := &pool.HeartbeatMetrics{ActiveGames: s.activeSessionCount()}
			if err := s.pool.Heartbeat(s.serverID, metrics); err != nil {
				log.Printf("上报心跳失败: %v", err)
			}
		case <-s.shutdown:
			return
		}
	}
}

// activeSessionCount 统计本机进行中的对局数
func (s *GameServer) activeSessionCount() int {
	s.sessionsMutex.RLock()
	defer s.sessionsMutex.RUnlock()

	n := 0
	for _, session := range s.sessions {
		if session.Status() == models.MatchInProgress {
			n++
		}
	}
	return n
}

// sessionManager 对局清理器
func (s *GameServer) sessionManager() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanupSessions()
		case <-s.shutdown:
			return
		}
	}
}

// cleanupSessions 清理已结束和长期无活动的对局
func (s *GameServer) cleanupSessions() {
	s.sessionsMutex.Lock()
	defer s.sessionsMutex.Unlock()

	now := time.Now()
	for id, session := range s.sessions {
		status := session.Status()
		idle := now.Sub(session.LastActivity())

		if status != models.MatchInProgress && idle > finishedSessionTTL {
			log.Printf("清理已结束对局: %s", id)
			delete(s.sessions, id)
			continue
		}
		if status == models.MatchInProgress && idle > idleSessionTTL {
			log.Printf("清理无活动对局: %s", id)
			if report, _ := s.abandonSession(session); report != nil {
				s.reportFinished(report)
			}
			delete(s.sessions, id)
		}
	}
}

// abandonSession 将无活动对局置为放弃状态
func (s *GameServer) abandonSession(session *MatchSession) (*FinishReport, error) {
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.finishLocked(models.MatchAbandoned, models.ResultNone, nil), nil
}

// GetSession 获取对局
func (s *GameServer) GetSession(sessionID string) (*MatchSession, bool) {
	s.sessionsMutex.RLock()
	defer s.sessionsMutex.RUnlock()

	session, exists := s.sessions[sessionID]
	return session, exists
}

// addSession 注册对局并写入初始持久化记录
func (s *GameServer) addSession(session *MatchSession) error {
	s.sessionsMutex.Lock()
	s.sessions[session.ID] = session
	s.sessionsMutex.Unlock()

	record := session.Record()
	record.Status = models.MatchInProgress
	if err := s.repo.InsertMatch(record); err != nil {
		return fmt.Errorf("写入对局记录失败: %w", err)
	}

	if session.Mode == models.ModeOnline {
		if err := s.pool.Assign(s.serverID, session.ID); err != nil {
			log.Printf("记录对局承载失败: %v", err)
		}
	}

	log.Printf("创建对局: %s, 模式: %s", session.ID, session.Mode)
	return nil
}

// CreateOnlineSession 根据配对记录创建在线对局
// 首个接入的玩家触发创建；并发接入时只有一个创建成功，其余复用。
func (s *GameServer) CreateOnlineSession(pairing *models.MatchPairing) (*MatchSession, error) {
	s.sessionsMutex.Lock()
	if existing, ok := s.sessions[pairing.MatchID]; ok {
		s.sessionsMutex.Unlock()
		return existing, nil
	}
	s.sessionsMutex.Unlock()

	black := &Participant{
		PlayerID: pairing.Players[0].ID,
		Username: pairing.Players[0].Username,
		Rating:   pairing.Players[0].Elo,
	}
	white := &Participant{
		PlayerID: pairing.Players[1].ID,
		Username: pairing.Players[1].Username,
		Rating:   pairing.Players[1].Elo,
	}

	session := NewOnlineSession(pairing.MatchID, black, white,
		s.config.Game.BoardSize, s.config.Game.WinLength)

	s.sessionsMutex.Lock()
	if existing, ok := s.sessions[pairing.MatchID]; ok {
		s.sessionsMutex.Unlock()
		return existing, nil
	}
	s.sessions[pairing.MatchID] = session
	s.sessionsMutex.Unlock()

	record := session.Record()
	if err := s.repo.InsertMatch(record); err != nil {
		return nil, fmt.Errorf("写入对局记录失败: %w", err)
	}
	if err := s.pool.Assign(s.serverID, session.ID); err != nil {
		log.Printf("记录对局承载失败: %v", err)
	}

	log.Printf("创建在线对局: %s, 玩家: %d vs %d", session.ID, black.PlayerID, white.PlayerID)
	return session, nil
}

// loadPairing 从Redis读取匹配服务写入的配对记录
func (s *GameServer) loadPairing(matchID string) (*models.MatchPairing, error) {
	data, err := db.RedisClient.Get(db.Ctx, models.MatchPairingKeyPrefix+matchID).Result()
	if err != nil {
		return nil, fmt.Errorf("配对记录不存在: %w", err)
	}

	var pairing models.MatchPairing
	if err := json.Unmarshal([]byte(data), &pairing); err != nil {
		return nil, fmt.Errorf("配对记录损坏: %w", err)
	}
	return &pairing, nil
}

// reportFinished 执行对局结束的结算副作用
// 调用方持有唯一的FinishReport，整条链路恰好执行一次：
// ELO与战绩更新、排行榜刷新、终态落库、释放服务器承载。
func (s *GameServer) reportFinished(report *FinishReport) []models.EloChange {
	changes := s.settleRatings(report)

	record := &models.MatchRecord{
		ID:          report.SessionID,
		Mode:        report.Mode,
		Status:      report.Status,
		Result:      report.Result,
		BoardState:  report.Board,
		MoveHistory: report.History,
		CurrentTurn: report.CurrentTurn,
		WinningLine: report.WinningLine,
	}
	if !report.Black.IsAI {
		record.BlackPlayerID = report.Black.PlayerID
		record.BlackEloBefore = report.Black.Rating
	}
	if !report.White.IsAI {
		record.WhitePlayerID = report.White.PlayerID
		record.WhiteEloBefore = report.White.Rating
	}
	for _, change := range changes {
		if change.UserID == record.BlackPlayerID {
			record.BlackEloChange = change.Change
		} else if change.UserID == record.WhitePlayerID {
			record.WhiteEloChange = change.Change
		}
	}

	if err := s.repo.FinishMatch(record); err != nil {
		log.Printf("写入对局终态失败: %v", err)
	}

	if report.Mode == models.ModeOnline {
		if err := s.pool.Release(s.serverID, report.SessionID); err != nil {
			log.Printf("释放对局承载失败: %v", err)
		}
	}

	log.Printf("对局结束: %s, 结果: %s", report.SessionID, report.Result)
	return changes
}

// settleRatings 按对局模式结算ELO与战绩
// 在线对局双方都结算并计入连胜；人机对局只累计玩家胜负场次；
// 本地对局不产生任何结算。双方都以开局时的ELO快照计算，
// 保证增减对称。
func (s *GameServer) settleRatings(report *FinishReport) []models.EloChange {
	if report.Result == models.ResultNone {
		return nil
	}

	switch report.Mode {
	case models.ModeOnline:
		blackOutcome := outcomeFor(report.Result, board.Black)
		whiteOutcome := outcomeFor(report.Result, board.White)

		changes := make([]models.EloChange, 0, 2)
		if c := s.settlePlayer(&report.Black, report.White.Rating, blackOutcome); c != nil {
			changes = append(changes, *c)
		}
		if c := s.settlePlayer(&report.White, report.Black.Rating, whiteOutcome); c != nil {
			changes = append(changes, *c)
		}
		return changes

	case models.ModeAI:
		// 人机对局不影响ELO和连胜
		human := report.Black
		if human.IsAI {
			human = report.White
		}
		if human.IsAI || human.PlayerID == 0 {
			return nil
		}
		outcome := outcomeFor(report.Result, human.Symbol)
		if err := s.repo.ApplyOutcome(human.PlayerID, outcome, false); err != nil {
			log.Printf("更新玩家 %d 战绩失败: %v", human.PlayerID, err)
		}
		return nil

	default:
		return nil
	}
}

// settlePlayer 结算单个玩家的ELO、战绩和排行榜
func (s *GameServer) settlePlayer(p *Participant, opponentRating int, outcome elo.Outcome) *models.EloChange {
	if p.IsAI || p.PlayerID == 0 {
		return nil
	}

	oldRank, err := s.leaderboard.GetPlayerRank(p.PlayerID)
	if err != nil {
		log.Printf("查询玩家 %d 排名失败: %v", p.PlayerID, err)
		oldRank = -1
	}

	newRating, delta := elo.Update(p.Rating, opponentRating, outcome, s.config.Game.EloKFactor)

	if err := s.repo.UpdateRating(p.PlayerID, newRating); err != nil {
		log.Printf("更新玩家 %d 的ELO失败: %v", p.PlayerID, err)
	}
	if err := s.repo.ApplyOutcome(p.PlayerID, outcome, true); err != nil {
		log.Printf("更新玩家 %d 战绩失败: %v", p.PlayerID, err)
	}
	if err := s.leaderboard.UpdatePlayerRating(p.PlayerID, newRating); err != nil {
		log.Printf("更新玩家 %d 排行榜分数失败: %v", p.PlayerID, err)
	}

	newRank, err := s.leaderboard.GetPlayerRank(p.PlayerID)
	if err != nil {
		newRank = -1
	}

	return &models.EloChange{
		UserID:   p.PlayerID,
		Username: p.Username,
		OldElo:   p.Rating,
		NewElo:   newRating,
		Change:   delta,
		OldRank:  oldRank,
		NewRank:  newRank,
	}
}

// outcomeFor 从对局结果推导指定棋色的胜负
func outcomeFor(result models.MatchResult, sym board.Symbol) elo.Outcome {
	switch result {
	case models.ResultDraw:
		return elo.Draw
	case models.ResultBlackWin:
		if sym == board.Black {
			return elo.Win
		}
		return elo.Loss
	case models.ResultWhiteWin:
		if sym == board.White {
			return elo.Win
		}
		return elo.Loss
	default:
		return elo.Draw
	}
}

// 本地/人机对局创建请求与响应

type createSessionRequest struct {
	Difficulty string `json:"difficulty,omitempty"`
}

type createSessionResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// handleCreateLocal 创建本地双人对局
func (s *GameServer) handleCreateLocal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持POST方法", http.StatusMethodNotAllowed)
		return
	}

	playerID, username, err := s.authenticate(r)
	if err != nil {
		http.Error(w, "未授权", http.StatusUnauthorized)
		return
	}

	owner := &Participant{PlayerID: playerID, Username: username}
	session := NewLocalSession(uuid.New().String(), owner,
		s.config.Game.BoardSize, s.config.Game.WinLength)

	if err := s.addSession(session); err != nil {
		log.Printf("创建本地对局失败: %v", err)
		http.Error(w, "创建对局失败", http.StatusInternalServerError)
		return
	}

	writeJSON(w, createSessionResponse{Success: true, SessionID: session.ID})
}

// handleCreateAI 创建人机对局
func (s *GameServer) handleCreateAI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持POST方法", http.StatusMethodNotAllowed)
		return
	}

	playerID, username, err := s.authenticate(r)
	if err != nil {
		http.Error(w, "未授权", http.StatusUnauthorized)
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "无效的请求格式", http.StatusBadRequest)
		return
	}

	difficulty := ai.Difficulty(req.Difficulty)
	switch difficulty {
	case ai.Easy, ai.Medium, ai.Hard:
	case "":
		difficulty = ai.Medium
	default:
		http.Error(w, "无效的AI难度", http.StatusBadRequest)
		return
	}

	rating := s.config.Game.InitialRating
	if player, err := s.repo.GetPlayer(playerID); err == nil {
		rating = player.EloRating
	}

	human := &Participant{PlayerID: playerID, Username: username, Rating: rating}
	session := NewAISession(uuid.New().String(), human, difficulty,
		s.config.Game.BoardSize, s.config.Game.WinLength)

	if err := s.addSession(session); err != nil {
		log.Printf("创建人机对局失败: %v", err)
		http.Error(w, "创建对局失败", http.StatusInternalServerError)
		return
	}

	writeJSON(w, createSessionResponse{Success: true, SessionID: session.ID})
}

// writeJSON 写JSON响应
func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("编码响应失败: %v", err)
	}
}
