// websocket.go

package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jacl-coder/Caro-Server/internal/board"
	"github.com/jacl-coder/Caro-Server/internal/gateway"
	"github.com/jacl-coder/Caro-Server/internal/models"
)

const (
	// 写入超时时间
	writeWait = 10 * time.Second

	// 读取超时时间
	pongWait = 60 * time.Second

	// 发送 ping 的间隔时间
	pingPeriod = (pongWait * 9) / 10

	// 最大消息大小
	maxMessageSize = 64 * 1024 // 64KB
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 允许所有跨域请求
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// authenticate 从请求中提取并验证JWT令牌
func (s *GameServer) authenticate(r *http.Request) (int64, string, error) {
	token := gateway.TokenFromRequest(r)
	if token == "" {
		return 0, "", fmt.Errorf("未提供令牌")
	}

	claims, err := s.auth.ValidateToken(token)
	if err != nil {
		return 0, "", err
	}
	return claims.PlayerID, claims.Username, nil
}

// handleWSConnection 处理WebSocket连接
// 客户端以 /ws?token=...&session_id=... 接入。在线对局的会话
// 由首个接入方根据匹配服务写入的配对记录惰性创建。
func (s *GameServer) handleWSConnection(w http.ResponseWriter, r *http.Request) {
	playerID, username, err := s.authenticate(r)
	if err != nil {
		http.Error(w, "未授权", http.StatusUnauthorized)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "缺少session_id参数", http.StatusBadRequest)
		return
	}

	session, exists := s.GetSession(sessionID)
	if !exists {
		// 尝试按配对记录创建在线对局
		pairing, err := s.loadPairing(sessionID)
		if err != nil {
			http.Error(w, "对局不存在", http.StatusNotFound)
			return
		}
		session, err = s.CreateOnlineSession(pairing)
		if err != nil {
			log.Printf("创建在线对局失败: %v", err)
			http.Error(w, "创建对局失败", http.StatusInternalServerError)
			return
		}
	}

	statusBefore := session.Status()
	if !session.Reconnect(playerID) {
		http.Error(w, "玩家不在该对局中", http.StatusForbidden)
		return
	}

	// 升级HTTP连接为WebSocket
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket升级失败: %v", err)
		return
	}

	// 创建玩家连接，同一玩家重复接入时顶替旧连接
	playerConn := &PlayerConnection{
		PlayerID:   playerID,
		Username:   username,
		SessionID:  session.ID,
		LastActive: time.Now(),
		Send:       make(chan []byte, 256),
		IsAlive:    true,
	}

	s.connMutex.Lock()
	if old, ok := s.connections[playerID]; ok {
		close(old.Send)
	}
	s.connections[playerID] = playerConn
	s.connMutex.Unlock()

	log.Printf("玩家 %d 接入对局 %s", playerID, session.ID)

	// 启动读写协程
	go s.readPump(conn, playerConn)
	go s.writePump(conn, playerConn)

	// 下发当前对局状态；双方到齐开局时先接入的一方也收到通知
	if statusBefore == models.MatchWaiting && session.Status() == models.MatchInProgress {
		s.broadcastToSession(session, session.StateMessage())
		return
	}
	s.sendMessage(playerConn, session.StateMessage())
}

// readPump 从WebSocket读取数据
func (s *GameServer) readPump(conn *websocket.Conn, player *PlayerConnection) {
	defer func() {
		s.closeConnection(player)
		conn.Close()
	}()

	// 设置读取参数
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket错误: %v", err)
			}
			break
		}

		player.LastActive = time.Now()

		// 处理接收到的消息
		s.handleMessage(player, message)
	}
}

// writePump 向WebSocket写入数据
func (s *GameServer) writePump(conn *websocket.Conn, player *PlayerConnection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-player.Send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// 通道已关闭
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// closeConnection 关闭玩家连接
// 对局进行中的掉线会判对方获胜，并把结算结果广播给仍在线的一方。
func (s *GameServer) closeConnection(player *PlayerConnection) {
	s.connMutex.Lock()
	current, ok := s.connections[player.PlayerID]
	if !ok || current != player {
		// 已被新连接顶替或已关闭
		s.connMutex.Unlock()
		return
	}
	close(player.Send)
	delete(s.connections, player.PlayerID)
	s.connMutex.Unlock()

	log.Printf("玩家 %d 已断开连接", player.PlayerID)

	session, exists := s.GetSession(player.SessionID)
	if !exists {
		return
	}

	report, err := session.Disconnect(player.PlayerID)
	if err != nil || report == nil {
		return
	}

	changes := s.reportFinished(report)

	opponent := session.OpponentOf(player.PlayerID)
	broadcast := DisconnectBroadcast{
		Type:               MsgPlayerDisconnected,
		DisconnectedUserID: player.PlayerID,
		Result:             report.Result,
		OpponentConnected:  opponent != nil && opponent.Connected,
		EloChanges:         changes,
	}
	s.broadcastToSession(session, broadcast)
}

// handleMessage 处理接收到的消息
func (s *GameServer) handleMessage(player *PlayerConnection, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(player, "无效的消息格式")
		return
	}

	switch msg.Type {
	case MsgMakeMove:
		s.handleMakeMove(player, msg.Payload)
	case MsgForfeit:
		s.handleForfeit(player)
	case MsgLeave:
		s.handleLeave(player)
	default:
		s.sendError(player, fmt.Sprintf("未知消息类型: %s", msg.Type))
	}
}

// handleMakeMove 处理落子请求
func (s *GameServer) handleMakeMove(player *PlayerConnection, payload json.RawMessage) {
	var req MakeMovePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(player, "无效的落子请求")
		return
	}

	session, exists := s.GetSession(player.SessionID)
	if !exists {
		s.sendError(player, "对局不存在")
		return
	}

	outcome, err := session.MakeMove(player.PlayerID, req.Row, req.Col, req.Player)
	if err != nil {
		s.sendError(player, moveErrorMessage(err))
		return
	}

	var changes []models.EloChange
	if outcome.Finish != nil {
		changes = s.reportFinished(outcome.Finish)
	}

	for i, applied := range outcome.Moves {
		broadcast := MoveBroadcast{
			Type:   MsgMove,
			Row:    applied.Row,
			Col:    applied.Col,
			Player: applied.Player,
			Result: applied.Result,
		}
		// 结算信息挂在最后一手的广播上
		if i == len(outcome.Moves)-1 && changes != nil {
			broadcast.Result.EloChanges = changes
		}
		s.broadcastToSession(session, broadcast)
	}
}

// handleForfeit 处理认输请求
func (s *GameServer) handleForfeit(player *PlayerConnection) {
	session, exists := s.GetSession(player.SessionID)
	if !exists {
		s.sendError(player, "对局不存在")
		return
	}

	report, err := session.Forfeit(player.PlayerID)
	if err != nil {
		s.sendError(player, moveErrorMessage(err))
		return
	}
	if report == nil {
		return
	}

	changes := s.reportFinished(report)
	s.broadcastToSession(session, GameOverMessage{
		Type:       MsgGameOver,
		Result:     report.Result,
		EloChanges: changes,
	})
}

// handleLeave 处理离开对局请求
// 进行中的对局按掉线处理，对方获胜。
func (s *GameServer) handleLeave(player *PlayerConnection) {
	session, exists := s.GetSession(player.SessionID)
	if !exists {
		return
	}

	report, err := session.Disconnect(player.PlayerID)
	if err != nil || report == nil {
		return
	}

	changes := s.reportFinished(report)

	opponent := session.OpponentOf(player.PlayerID)
	s.broadcastToSession(session, DisconnectBroadcast{
		Type:               MsgPlayerDisconnected,
		DisconnectedUserID: player.PlayerID,
		Result:             report.Result,
		OpponentConnected:  opponent != nil && opponent.Connected,
		EloChanges:         changes,
	})
}

// moveErrorMessage 将对局错误转换为对外提示
func moveErrorMessage(err error) string {
	switch {
	case errors.Is(err, board.ErrCellOccupied):
		return "目标格已被占用"
	case errors.Is(err, board.ErrOutOfBounds):
		return "坐标超出棋盘范围"
	case errors.Is(err, ErrNotYourTurn):
		return "未轮到你行棋"
	case errors.Is(err, ErrGameNotActive):
		return "对局不在进行中"
	case errors.Is(err, ErrNotInSession):
		return "你不在该对局中"
	default:
		return "落子失败"
	}
}

// sendError 向玩家发送错误通知
func (s *GameServer) sendError(player *PlayerConnection, message string) {
	s.sendMessage(player, ErrorMessage{
		Type:    MsgError,
		Message: message,
	})
}

// sendMessage 向玩家发送消息
func (s *GameServer) sendMessage(player *PlayerConnection, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("序列化消息失败: %v", err)
		return
	}

	select {
	case player.Send <- data:
		// 消息已发送到通道
	default:
		// 通道已满，关闭连接
		s.closeConnection(player)
	}
}

// broadcastToSession 向对局双方广播消息
func (s *GameServer) broadcastToSession(session *MatchSession, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("序列化消息失败: %v", err)
		return
	}

	s.connMutex.RLock()
	defer s.connMutex.RUnlock()

	for _, player := range s.connections {
		if player.SessionID != session.ID {
			continue
		}
		select {
		case player.Send <- data:
			// 消息已发送到通道
		default:
			// 通道已满，关闭连接
			go s.closeConnection(player)
		}
	}
}
