// stats.go

package gateway

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/jacl-coder/Caro-Server/internal/models"
	"github.com/jacl-coder/Caro-Server/pkg/db"
)

// StatsHandler 战绩处理器
type StatsHandler struct {
	repo             *models.PlayerRepository
	redisLeaderboard *models.RedisLeaderboard
	useRedis         bool
}

// NewStatsHandler 创建战绩处理器
func NewStatsHandler() *StatsHandler {
	useRedis := db.RedisClient != nil
	var redisLeaderboard *models.RedisLeaderboard

	if useRedis {
		redisLeaderboard = models.NewRedisLeaderboard()
	}

	return &StatsHandler{
		repo:             models.NewPlayerRepository(),
		redisLeaderboard: redisLeaderboard,
		useRedis:         useRedis,
	}
}

// RegisterHandlers 注册HTTP处理器
func (h *StatsHandler) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/stats/player/", h.handlePlayerStats)
	mux.HandleFunc("/stats/matches/", h.handlePlayerMatches)
	mux.HandleFunc("/stats/leaderboard", h.handleLeaderboard)
	mux.HandleFunc("/stats/leaderboard/refresh", h.handleRefreshLeaderboard)
}

// StatsResponse 战绩响应
type StatsResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// PlayerStatsData 玩家战绩数据
type PlayerStatsData struct {
	PlayerID      int64   `json:"player_id"`
	Username      string  `json:"username"`
	EloRating     int     `json:"elo_rating"`
	Rank          int     `json:"rank"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	Draws         int     `json:"draws"`
	TotalGames    int     `json:"total_games"`
	WinRate       float64 `json:"win_rate"`
	CurrentStreak int     `json:"current_streak"`
	BestStreak    int     `json:"best_streak"`
}

// PlayerMatchesData 玩家对局历史数据
type PlayerMatchesData struct {
	Matches []models.PlayerMatchRecord `json:"matches"`
	Total   int                        `json:"total"`
	Page    int                        `json:"page"`
	Limit   int                        `json:"limit"`
}

// handlePlayerStats 处理玩家战绩查询
func (h *StatsHandler) handlePlayerStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendErrorResponse(w, "仅支持GET方法", http.StatusMethodNotAllowed)
		return
	}

	// 提取玩家ID
	path := strings.TrimPrefix(r.URL.Path, "/stats/player/")
	playerID, err := strconv.ParseInt(path, 10, 64)
	if err != nil {
		h.sendErrorResponse(w, "无效的玩家ID", http.StatusBadRequest)
		return
	}

	player, err := h.repo.GetPlayer(playerID)
	if err != nil {
		if err == sql.ErrNoRows {
			h.sendErrorResponse(w, "玩家不存在", http.StatusNotFound)
			return
		}
		log.Printf("查询玩家战绩失败: %v", err)
		h.sendErrorResponse(w, "查询玩家战绩失败", http.StatusInternalServerError)
		return
	}

	// 排名优先走Redis排行榜，不在榜上回退数据库统计
	rank := -1
	if h.useRedis {
		rank, _ = h.redisLeaderboard.GetPlayerRank(playerID)
	}
	if rank <= 0 {
		if dbRank, err := h.repo.GetRank(playerID); err == nil {
			rank = dbRank
		}
	}

	data := &PlayerStatsData{
		PlayerID:      player.ID,
		Username:      player.Username,
		EloRating:     player.EloRating,
		Rank:          rank,
		Wins:          player.Wins,
		Losses:        player.Losses,
		Draws:         player.Draws,
		TotalGames:    player.TotalGames(),
		WinRate:       player.WinRate(),
		CurrentStreak: player.CurrentStreak,
		BestStreak:    player.BestStreak,
	}

	h.sendSuccessResponse(w, "查询成功", data)
}

// handlePlayerMatches 处理玩家对局历史查询
func (h *StatsHandler) handlePlayerMatches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendErrorResponse(w, "仅支持GET方法", http.StatusMethodNotAllowed)
		return
	}

	// 提取玩家ID
	path := strings.TrimPrefix(r.URL.Path, "/stats/matches/")
	playerID, err := strconv.ParseInt(path, 10, 64)
	if err != nil {
		h.sendErrorResponse(w, "无效的玩家ID", http.StatusBadRequest)
		return
	}

	// 解析查询参数
	query := r.URL.Query()
	limit := 10 // 默认限制
	offset := 0 // 默认偏移

	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	matches, total, err := h.repo.GetPlayerMatches(playerID, limit, offset)
	if err != nil {
		log.Printf("查询玩家对局历史失败: %v", err)
		h.sendErrorResponse(w, "查询对局历史失败", http.StatusInternalServerError)
		return
	}

	data := &PlayerMatchesData{
		Matches: matches,
		Total:   total,
		Page:    offset/limit + 1,
		Limit:   limit,
	}

	h.sendSuccessResponse(w, "查询成功", data)
}

// handleLeaderboard 处理排行榜查询
func (h *StatsHandler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendErrorResponse(w, "仅支持GET方法", http.StatusMethodNotAllowed)
		return
	}

	limit := 50 // 默认限制
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	leaderboard, err := h.getLeaderboard(limit)
	if err != nil {
		log.Printf("查询排行榜失败: %v", err)
		h.sendErrorResponse(w, "查询排行榜失败", http.StatusInternalServerError)
		return
	}

	h.sendSuccessResponse(w, "查询成功", leaderboard)
}

// handleRefreshLeaderboard 处理排行榜刷新
func (h *StatsHandler) handleRefreshLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendErrorResponse(w, "仅支持POST方法", http.StatusMethodNotAllowed)
		return
	}

	if !h.useRedis {
		h.sendErrorResponse(w, "Redis未启用，无需刷新", http.StatusBadRequest)
		return
	}

	if err := h.redisLeaderboard.RefreshLeaderboard(); err != nil {
		log.Printf("刷新排行榜失败: %v", err)
		h.sendErrorResponse(w, "刷新排行榜失败", http.StatusInternalServerError)
		return
	}

	h.sendSuccessResponse(w, "排行榜刷新成功", nil)
}

// getLeaderboard 获取ELO排行榜
// 优先使用Redis，无数据时从数据库刷新后重试。
func (h *StatsHandler) getLeaderboard(limit int) ([]models.LeaderboardEntry, error) {
	if h.useRedis {
		entries, err := h.redisLeaderboard.GetLeaderboard(limit)
		if err == nil && len(entries) > 0 {
			return entries, nil
		}

		log.Printf("Redis排行榜查询失败或无数据，刷新排行榜: %v", err)
		if refreshErr := h.redisLeaderboard.RefreshLeaderboard(); refreshErr == nil {
			if entries, err := h.redisLeaderboard.GetLeaderboard(limit); err == nil {
				return entries, nil
			}
		}

		log.Printf("Redis排行榜刷新失败，回退到数据库查询")
	}

	return h.getLeaderboardFromDB(limit)
}

// getLeaderboardFromDB 从数据库获取ELO排行榜
func (h *StatsHandler) getLeaderboardFromDB(limit int) ([]models.LeaderboardEntry, error) {
	query := `
		SELECT
			p.id AS player_id,
			p.username,
			p.elo_rating,
			p.wins,
			p.losses,
			p.draws,
			CASE WHEN (p.wins + p.losses + p.draws) > 0
			     THEN (p.wins * 100.0 / (p.wins + p.losses + p.draws))
			     ELSE 0 END AS win_rate,
			ROW_NUMBER() OVER (ORDER BY p.elo_rating DESC) AS rank
		FROM players p
		ORDER BY p.elo_rating DESC
		LIMIT $1
	`

	rows, err := db.DB.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.LeaderboardEntry
	for rows.Next() {
		var entry models.LeaderboardEntry
		if err := rows.Scan(
			&entry.PlayerID, &entry.Username, &entry.EloRating,
			&entry.Wins, &entry.Losses, &entry.Draws, &entry.WinRate, &entry.Rank,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// sendSuccessResponse 发送成功响应
func (h *StatsHandler) sendSuccessResponse(w http.ResponseWriter, message string, data interface{}) {
	resp := StatsResponse{
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
func (h *StatsHandler) sendErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	resp := StatsResponse{
		Success: false,
		Message: message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("编码错误响应失败: %v", err)
	}
}
