// handler.go

package pool

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
)

// PoolHandler 服务器池HTTP处理器
type PoolHandler struct {
	pool *Pool
}

// NewPoolHandler 创建服务器池处理器
func NewPoolHandler(pool *Pool) *PoolHandler {
	return &PoolHandler{
		pool: pool,
	}
}

// RegisterHandlers 注册HTTP处理器
func (h *PoolHandler) RegisterHandlers(mux *http.ServeMux) {
	// 健康检查端点
	mux.HandleFunc("/health", h.handleHealth)

	// 服务器池管理端点
	mux.HandleFunc("/pool/register", h.handleRegister)
	mux.HandleFunc("/pool/unregister", h.handleUnregister)
	mux.HandleFunc("/pool/heartbeat", h.handleHeartbeat)
	mux.HandleFunc("/pool/servers", h.handleServers)
	mux.HandleFunc("/pool/stats", h.handleStats)
}

// 通用响应
type poolResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// 注销请求
type serverIDRequest struct {
	ServerID string `json:"server_id"`
}

// 心跳请求，负载指标可选
type heartbeatRequest struct {
	ServerID      string  `json:"server_id"`
	CPUPercent    float64 `json:"cpu_percent,omitempty"`
	MemoryPercent float64 `json:"memory_percent,omitempty"`
	ActiveGames   int     `json:"active_games,omitempty"`
}

// handleHealth 处理健康检查请求
func (h *PoolHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持GET方法", http.StatusMethodNotAllowed)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleRegister 处理服务器注册请求
func (h *PoolHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持POST方法", http.StatusMethodNotAllowed)
		return
	}

	var info ServerInfo
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
		http.Error(w, "无效的请求格式", http.StatusBadRequest)
		return
	}
	if info.ID == "" || info.Host == "" || info.Port <= 0 {
		http.Error(w, "缺少必要参数", http.StatusBadRequest)
		return
	}

	if err := h.pool.Register(&info); err != nil {
		log.Printf("注册服务器 %s 失败: %v", info.ID, err)
		http.Error(w, "注册服务器失败", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, poolResponse{Success: true, Message: "服务器已注册"})
}

// handleUnregister 处理服务器注销请求
func (h *PoolHandler) handleUnregister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持POST方法", http.StatusMethodNotAllowed)
		return
	}

	var req serverIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ServerID == "" {
		http.Error(w, "无效的请求格式", http.StatusBadRequest)
		return
	}

	if err := h.pool.Unregister(req.ServerID); err != nil {
		log.Printf("注销服务器 %s 失败: %v", req.ServerID, err)
		http.Error(w, "注销服务器失败", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, poolResponse{Success: true, Message: "服务器已注销"})
}

// handleHeartbeat 处理服务器心跳请求
func (h *PoolHandler) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持POST方法", http.StatusMethodNotAllowed)
		return
	}

	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ServerID == "" {
		http.Error(w, "无效的请求格式", http.StatusBadRequest)
		return
	}

	metrics := &HeartbeatMetrics{
		CPUPercent:    req.CPUPercent,
		MemoryPercent: req.MemoryPercent,
		ActiveGames:   req.ActiveGames,
	}
	if err := h.pool.Heartbeat(req.ServerID, metrics); err != nil {
		if errors.Is(err, ErrServerNotFound) {
			http.Error(w, "服务器未注册", http.StatusNotFound)
			return
		}
		log.Printf("服务器 %s 心跳失败: %v", req.ServerID, err)
		http.Error(w, "心跳失败", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, poolResponse{Success: true})
}

// handleServers 处理服务器列表查询
func (h *PoolHandler) handleServers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持GET方法", http.StatusMethodNotAllowed)
		return
	}

	servers, err := h.pool.List()
	if err != nil {
		log.Printf("查询服务器列表失败: %v", err)
		http.Error(w, "查询服务器列表失败", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, servers)
}

// handleStats 处理服务器池统计查询
func (h *PoolHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持GET方法", http.StatusMethodNotAllowed)
		return
	}

	stats, err := h.pool.Stats()
	if err != nil {
		log.Printf("查询服务器池统计失败: %v", err)
		http.Error(w, "查询服务器池统计失败", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, stats)
}

// writeJSON 写JSON响应
func (h *PoolHandler) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("编码响应失败: %v", err)
	}
}
