// auth.go

package gateway

import (
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jacl-coder/Caro-Server/config"
	"github.com/jacl-coder/Caro-Server/pkg/db"
)

// tokenTTL 令牌有效期
const tokenTTL = 24 * time.Hour

// Claims JWT载荷
type Claims struct {
	PlayerID int64  `json:"player_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// AuthHandler 认证处理器，签发与验证JWT令牌
type AuthHandler struct {
	secret []byte
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

// AuthResponse 认证响应
type AuthResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Token    string `json:"token,omitempty"`
	PlayerID int64  `json:"player_id,omitempty"`
	Username string `json:"username,omitempty"`
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler() *AuthHandler {
	return &AuthHandler{
		secret: []byte(config.GlobalConfig.Server.JWTSecret),
	}
}

// RegisterHandlers 注册HTTP处理器
func (h *AuthHandler) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/auth/register", h.handleRegister)
	mux.HandleFunc("/auth/validate", h.handleValidate)
}

// handleLogin 处理登录请求
func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持POST方法", http.StatusMethodNotAllowed)
		return
	}

	// 解析请求
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "无效的请求格式", http.StatusBadRequest)
		return
	}

	// 验证用户名和密码
	playerID, err := h.validateCredentials(req.Username, req.Password)
	if err != nil {
		resp := AuthResponse{
			Success: false,
			Message: "用户名或密码错误",
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
		return
	}

	// 签发令牌
	token, err := h.IssueToken(playerID, req.Username)
	if err != nil {
		http.Error(w, "签发令牌失败", http.StatusInternalServerError)
		return
	}

	resp := AuthResponse{
		Success:  true,
		Message:  "登录成功",
		Token:    token,
		PlayerID: playerID,
		Username: req.Username,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleRegister 处理注册请求
func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持POST方法", http.StatusMethodNotAllowed)
		return
	}

	// 解析请求
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "无效的请求格式", http.StatusBadRequest)
		return
	}

	// 验证请求
	if req.Username == "" || req.Password == "" || req.Email == "" {
		http.Error(w, "缺少必要参数", http.StatusBadRequest)
		return
	}

	// 创建用户
	playerID, err := h.createUser(req.Username, req.Password, req.Email)
	if err != nil {
		resp := AuthResponse{
			Success: false,
			Message: fmt.Sprintf("注册失败: %v", err),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
		return
	}

	// 签发令牌
	token, err := h.IssueToken(playerID, req.Username)
	if err != nil {
		http.Error(w, "签发令牌失败", http.StatusInternalServerError)
		return
	}

	resp := AuthResponse{
		Success:  true,
		Message:  "注册成功",
		Token:    token,
		PlayerID: playerID,
		Username: req.Username,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleValidate 处理令牌验证请求
func (h *AuthHandler) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持GET方法", http.StatusMethodNotAllowed)
		return
	}

	token := TokenFromRequest(r)
	if token == "" {
		http.Error(w, "未提供令牌", http.StatusBadRequest)
		return
	}

	claims, err := h.ValidateToken(token)
	if err != nil {
		http.Error(w, "无效或已过期的令牌", http.StatusUnauthorized)
		return
	}

	resp := AuthResponse{
		Success:  true,
		Message:  "令牌有效",
		PlayerID: claims.PlayerID,
		Username: claims.Username,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// IssueToken 签发JWT令牌
func (h *AuthHandler) IssueToken(playerID int64, username string) (string, error) {
	now := time.Now()
	claims := Claims{
		PlayerID: playerID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.secret)
}

// ValidateToken 验证JWT令牌并返回载荷
func (h *AuthHandler) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(t *jwt.Token) (interface{}, error) {
			return h.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, fmt.Errorf("令牌验证失败: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("无效的令牌载荷")
	}
	return claims, nil
}

// TokenFromRequest 从请求中提取令牌
// 优先Authorization头(Bearer)，其次token查询参数。
func TokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// validateCredentials 验证用户凭据
func (h *AuthHandler) validateCredentials(username, password string) (int64, error) {
	hashedPassword := hashPassword(password)

	var playerID int64
	err := db.DB.QueryRow("SELECT id FROM players WHERE username = $1 AND password = $2", username, hashedPassword).Scan(&playerID)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("用户名或密码错误")
		}
		return 0, fmt.Errorf("数据库查询错误: %w", err)
	}

	return playerID, nil
}

// createUser 创建用户
func (h *AuthHandler) createUser(username, password, email string) (int64, error) {
	// 检查用户名是否已存在
	var count int
	err := db.DB.QueryRow("SELECT COUNT(*) FROM players WHERE username = $1", username).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("数据库查询错误: %w", err)
	}
	if count > 0 {
		return 0, fmt.Errorf("用户名已存在")
	}

	// 检查邮箱是否已存在
	err = db.DB.QueryRow("SELECT COUNT(*) FROM players WHERE email = $1", email).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("数据库查询错误: %w", err)
	}
	if count > 0 {
		return 0, fmt.Errorf("邮箱已被使用")
	}

	hashedPassword := hashPassword(password)

	var playerID int64
	err = db.DB.QueryRow(
		"INSERT INTO players (username, password, email, elo_rating, created_at, updated_at) VALUES ($1, $2, $3, $4, NOW(), NOW()) RETURNING id",
		username, hashedPassword, email, config.GlobalConfig.Game.InitialRating,
	).Scan(&playerID)
	if err != nil {
		return 0, fmt.Errorf("创建用户失败: %w", err)
	}

	return playerID, nil
}

// hashPassword 计算密码哈希
func hashPassword(password string) string {
	// 使用SHA-256哈希
	// 在实际应用中，应该使用更安全的哈希算法，如bcrypt
	hash := sha256.Sum256([]byte(password))
	return fmt.Sprintf("%x", hash)
}
