// handler.go

package match

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/jacl-coder/Caro-Server/internal/gateway"
	"github.com/jacl-coder/Caro-Server/internal/models"
)

// MatchHandler 匹配处理器
type MatchHandler struct {
	service *MatchService
	auth    *gateway.AuthHandler
	repo    *models.PlayerRepository
}

// NewMatchHandler 创建匹配处理器
func NewMatchHandler(service *MatchService) *MatchHandler {
	return &MatchHandler{
		service: service,
		auth:    gateway.NewAuthHandler(),
		repo:    models.NewPlayerRepository(),
	}
}

// RegisterHandlers 注册HTTP处理器
func (h *MatchHandler) RegisterHandlers(mux *http.ServeMux) {
	// 健康检查端点
	mux.HandleFunc("/health", h.handleHealth)

	// 匹配相关端点
	mux.HandleFunc("/match/join", h.handleJoinQueue)
	mux.HandleFunc("/match/leave", h.handleLeaveQueue)
	mux.HandleFunc("/match/status", h.handleMatchStatus)
	mux.HandleFunc("/match/stats", h.handleQueueStats)
}

// 匹配响应
type matchResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// 匹配进度响应
type matchStatusResponse struct {
	Status        string        `json:"status"` // matched | searching | idle
	Match         *matchedInfo  `json:"match,omitempty"`
	Opponent      *opponentInfo `json:"opponent,omitempty"`
	QueuePosition int           `json:"queue_position,omitempty"`
	QueueSize     int           `json:"queue_size,omitempty"`
	EloRange      int           `json:"elo_range,omitempty"`
}

// 已匹配对局信息
type matchedInfo struct {
	MatchID  string          `json:"match_id"`
	Mode     models.GameMode `json:"mode"`
	ServerID string          `json:"server_id,omitempty"`
}

// 对手信息
type opponentInfo struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Elo      int    `json:"elo"`
}

// matchedStatusResponse 组装匹配成功的进度响应
func matchedStatusResponse(pairing *models.MatchPairing, playerID int64) matchStatusResponse {
	resp := matchStatusResponse{
		Status: "matched",
		Match: &matchedInfo{
			MatchID:  pairing.MatchID,
			Mode:     pairing.Mode,
			ServerID: pairing.ServerID,
		},
	}
	for _, p := range pairing.Players {
		if p.ID != playerID {
			resp.Opponent = &opponentInfo{
				ID:       p.ID,
				Username: p.Username,
				Elo:      p.Elo,
			}
		}
	}
	return resp
}

// authenticate 验证请求中的JWT令牌
func (h *MatchHandler) authenticate(r *http.Request) (*gateway.Claims, error) {
	return h.auth.ValidateToken(gateway.TokenFromRequest(r))
}

// handleHealth 处理健康检查请求
func (h *MatchHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持GET方法", http.StatusMethodNotAllowed)
		return
	}

	if h.service == nil {
		http.Error(w, "服务未初始化", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleJoinQueue 处理加入匹配队列请求
func (h *MatchHandler) handleJoinQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持POST方法", http.StatusMethodNotAllowed)
		return
	}

	claims, err := h.authenticate(r)
	if err != nil {
		http.Error(w, "未授权", http.StatusUnauthorized)
		return
	}

	// 以玩家当前ELO入队
	eloRating := h.service.config.Game.InitialRating
	if player, err := h.repo.GetPlayer(claims.PlayerID); err == nil {
		eloRating = player.EloRating
	}

	if err := h.service.queue.Join(claims.PlayerID, claims.Username, eloRating); err != nil {
		log.Printf("玩家 %d 加入队列失败: %v", claims.PlayerID, err)
		http.Error(w, "加入匹配队列失败", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, matchResponse{
		Success: true,
		Message: "已加入匹配队列",
	})
}

// handleLeaveQueue 处理离开匹配队列请求
func (h *MatchHandler) handleLeaveQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		http.Error(w, "仅支持POST或DELETE方法", http.StatusMethodNotAllowed)
		return
	}

	claims, err := h.authenticate(r)
	if err != nil {
		http.Error(w, "未授权", http.StatusUnauthorized)
		return
	}

	removed, err := h.service.queue.Leave(claims.PlayerID)
	if err != nil {
		log.Printf("玩家 %d 离开队列失败: %v", claims.PlayerID, err)
		http.Error(w, "离开匹配队列失败", http.StatusInternalServerError)
		return
	}

	resp := matchResponse{
		Success: removed,
		Message: "已离开匹配队列",
	}
	if !removed {
		resp.Message = "玩家不在匹配队列中"
	}
	h.writeJSON(w, resp)
}

// handleMatchStatus 处理匹配进度查询
// 已匹配成功返回对局与对手信息；仍在排队返回名次与当前搜索范围。
func (h *MatchHandler) handleMatchStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持GET方法", http.StatusMethodNotAllowed)
		return
	}

	claims, err := h.authenticate(r)
	if err != nil {
		http.Error(w, "未授权", http.StatusUnauthorized)
		return
	}

	// 先查是否已有配对结果
	pairing, err := h.service.queue.MatchedPairing(claims.PlayerID)
	if err != nil {
		log.Printf("查询玩家 %d 的配对记录失败: %v", claims.PlayerID, err)
	}
	if pairing != nil {
		h.writeJSON(w, matchedStatusResponse(pairing, claims.PlayerID))
		return
	}

	entry, err := h.service.queue.GetEntry(claims.PlayerID)
	if err != nil {
		h.writeJSON(w, matchStatusResponse{Status: "idle"})
		return
	}

	// 轮询即心跳，顺带尝试一次即时配对
	if err := h.service.queue.Heartbeat(claims.PlayerID); err != nil {
		log.Printf("刷新玩家 %d 队列心跳失败: %v", claims.PlayerID, err)
	}
	if pairing := h.service.queue.MatchNow(entry); pairing != nil {
		h.writeJSON(w, matchedStatusResponse(pairing, claims.PlayerID))
		return
	}

	position, _ := h.service.queue.Position(claims.PlayerID)
	size, _ := h.service.queue.Size()

	h.writeJSON(w, matchStatusResponse{
		Status:        "searching",
		QueuePosition: position,
		QueueSize:     size,
		EloRange:      h.service.queue.EloRange(entry.JoinedAt, time.Now()),
	})
}

// handleQueueStats 处理队列统计查询
func (h *MatchHandler) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持GET方法", http.StatusMethodNotAllowed)
		return
	}

	stats, err := h.service.queue.Stats()
	if err != nil {
		log.Printf("查询队列统计失败: %v", err)
		http.Error(w, "查询队列统计失败", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, stats)
}

// writeJSON 写JSON响应
func (h *MatchHandler) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("编码响应失败: %v", err)
	}
}
