// profile.go

package gateway

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jacl-coder/Caro-Server/internal/models"
	"github.com/jacl-coder/Caro-Server/pkg/db"
)

// ProfileHandler 玩家资料处理器
type ProfileHandler struct {
	repo *models.PlayerRepository
}

// NewProfileHandler 创建玩家资料处理器
func NewProfileHandler() *ProfileHandler {
	return &ProfileHandler{
		repo: models.NewPlayerRepository(),
	}
}

// RegisterHandlers 注册HTTP处理器
func (h *ProfileHandler) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/players/", h.handlePlayerProfile)
}

// ProfileResponse 资料响应
type ProfileResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// UpdateProfileRequest 更新资料请求
type UpdateProfileRequest struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

// PlayerProfileInfo 玩家资料信息
type PlayerProfileInfo struct {
	*models.Player
	Rank       int     `json:"rank"`
	TotalGames int     `json:"total_games"`
	WinRate    float64 `json:"win_rate"`
}

// handlePlayerProfile 处理玩家资料相关请求
func (h *ProfileHandler) handlePlayerProfile(w http.ResponseWriter, r *http.Request) {
	// 解析URL路径
	path := strings.TrimPrefix(r.URL.Path, "/players/")
	parts := strings.Split(path, "/")

	if len(parts) < 2 {
		h.sendErrorResponse(w, "无效的请求路径", http.StatusBadRequest)
		return
	}

	playerID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		h.sendErrorResponse(w, "无效的玩家ID", http.StatusBadRequest)
		return
	}

	if parts[1] != "profile" {
		h.sendErrorResponse(w, "未知的请求路径", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.handleGetPlayerProfile(w, r, playerID)
	case http.MethodPut:
		h.handleUpdatePlayerProfile(w, r, playerID)
	default:
		h.sendErrorResponse(w, "仅支持GET和PUT方法", http.StatusMethodNotAllowed)
	}
}

// handleGetPlayerProfile 处理获取玩家资料
func (h *ProfileHandler) handleGetPlayerProfile(w http.ResponseWriter, r *http.Request, playerID int64) {
	player, err := h.repo.GetPlayer(playerID)
	if err != nil {
		if err == sql.ErrNoRows {
			h.sendErrorResponse(w, "玩家不存在", http.StatusNotFound)
			return
		}
		log.Printf("查询玩家信息失败: %v", err)
		h.sendErrorResponse(w, "查询玩家信息失败", http.StatusInternalServerError)
		return
	}

	rank, err := h.repo.GetRank(playerID)
	if err != nil {
		log.Printf("查询玩家排名失败: %v", err)
		rank = -1
	}

	profileInfo := &PlayerProfileInfo{
		Player:     player,
		Rank:       rank,
		TotalGames: player.TotalGames(),
		WinRate:    player.WinRate(),
	}

	h.sendSuccessResponse(w, "查询成功", profileInfo)
}

// handleUpdatePlayerProfile 处理更新玩家资料
func (h *ProfileHandler) handleUpdatePlayerProfile(w http.ResponseWriter, r *http.Request, playerID int64) {
	// 解析请求
	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendErrorResponse(w, "无效的请求格式", http.StatusBadRequest)
		return
	}

	if req.Username == "" && req.Email == "" {
		h.sendErrorResponse(w, "至少需要提供一个更新字段", http.StatusBadRequest)
		return
	}

	if _, err := h.repo.GetPlayer(playerID); err != nil {
		if err == sql.ErrNoRows {
			h.sendErrorResponse(w, "玩家不存在", http.StatusNotFound)
			return
		}
		log.Printf("检查玩家信息失败: %v", err)
		h.sendErrorResponse(w, "检查玩家信息失败", http.StatusInternalServerError)
		return
	}

	if err := h.updatePlayerProfile(playerID, &req); err != nil {
		log.Printf("更新玩家资料失败: %v", err)
		// 唯一约束冲突给出具体提示
		if strings.Contains(err.Error(), "duplicate key") {
			if strings.Contains(err.Error(), "username") {
				h.sendErrorResponse(w, "用户名已存在", http.StatusConflict)
			} else if strings.Contains(err.Error(), "email") {
				h.sendErrorResponse(w, "邮箱已存在", http.StatusConflict)
			} else {
				h.sendErrorResponse(w, "数据冲突", http.StatusConflict)
			}
			return
		}
		h.sendErrorResponse(w, "更新玩家资料失败", http.StatusInternalServerError)
		return
	}

	h.sendSuccessResponse(w, "更新成功", nil)
}

// updatePlayerProfile 更新玩家资料
func (h *ProfileHandler) updatePlayerProfile(playerID int64, req *UpdateProfileRequest) error {
	// 构建动态更新SQL
	setParts := []string{}
	args := []interface{}{}
	argIndex := 1

	if req.Username != "" {
		setParts = append(setParts, fmt.Sprintf("username = $%d", argIndex))
		args = append(args, req.Username)
		argIndex++
	}

	if req.Email != "" {
		setParts = append(setParts, fmt.Sprintf("email = $%d", argIndex))
		args = append(args, req.Email)
		argIndex++
	}

	setParts = append(setParts, fmt.Sprintf("updated_at = $%d", argIndex))
	args = append(args, time.Now())
	argIndex++

	args = append(args, playerID)

	query := fmt.Sprintf(`
		UPDATE players
		SET %s
		WHERE id = $%d
	`, strings.Join(setParts, ", "), argIndex)

	if _, err := db.DB.Exec(query, args...); err != nil {
		return fmt.Errorf("更新玩家资料失败: %w", err)
	}

	return nil
}

// sendSuccessResponse 发送成功响应
func (h *ProfileHandler) sendSuccessResponse(w http.ResponseWriter, message string, data interface{}) {
	resp := ProfileResponse{
		Success: true,
		Message: message,
		Data:    data,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("编码响应失败: %v", err)
	}
}

// sendErrorResponse 发送错误响应
func (h *ProfileHandler) sendErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	resp := ProfileResponse{
		Success: false,
		Message: message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("编码错误响应失败: %v", err)
	}
}
