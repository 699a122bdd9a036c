// middleware.go

package gateway

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"
)

// RateLimiter 基于客户端IP的滑动窗口限流器
type RateLimiter struct {
	clients map[string]*clientWindow
	mutex   sync.Mutex

	// 配置
	RequestsPerMinute int
	BurstSize         int
	CleanupInterval   time.Duration
}

// clientWindow 单个客户端的请求窗口
type clientWindow struct {
	requests []time.Time
	lastSeen time.Time
}

// NewRateLimiter 创建限流器
func NewRateLimiter(requestsPerMinute, burstSize int) *RateLimiter {
	rl := &RateLimiter{
		clients:           make(map[string]*clientWindow),
		RequestsPerMinute: requestsPerMinute,
		BurstSize:         burstSize,
		CleanupInterval:   5 * time.Minute,
	}

	// 启动清理协程
	go rl.cleanup()

	return rl
}

// Middleware 限流中间件
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allowRequest(clientIP(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"message": fmt.Sprintf("请求过于频繁，每分钟最多允许 %d 次请求", rl.RequestsPerMinute),
				"code":    "RATE_LIMIT_EXCEEDED",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// allowRequest 检查是否允许请求
func (rl *RateLimiter) allowRequest(ip string) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := time.Now()
	client, exists := rl.clients[ip]
	if !exists {
		client = &clientWindow{}
		rl.clients[ip] = client
	}
	client.lastSeen = now

	// 丢弃一分钟窗口外的请求记录
	cutoff := now.Add(-time.Minute)
	valid := client.requests[:0]
	for _, t := range client.requests {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	client.requests = valid

	if len(client.requests) >= rl.RequestsPerMinute {
		return false
	}

	client.requests = append(client.requests, now)
	return true
}

// cleanup 清理长时间未访问的客户端窗口
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.CleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		rl.mutex.Lock()
		cutoff := time.Now().Add(-10 * time.Minute)
		for ip, client := range rl.clients {
			if client.lastSeen.Before(cutoff) {
				delete(rl.clients, ip)
			}
		}
		rl.mutex.Unlock()
	}
}

// clientIP 获取客户端IP
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// SecurityHeaders 安全头中间件
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Server", "Caro")

		next.ServeHTTP(w, r)
	})
}

// CORSMiddleware CORS中间件
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 生产环境应该限制具体域名
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		w.Header().Set("Access-Control-Max-Age", "86400")

		// 处理预检请求
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// LoggingMiddleware 访问日志中间件
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		recorder := &responseRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(recorder, r)

		log.Printf("%s %s %d %v", r.Method, r.URL.Path, recorder.statusCode, time.Since(start))
	})
}

// responseRecorder 响应状态码记录器
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader 记录状态码
func (rr *responseRecorder) WriteHeader(code int) {
	rr.statusCode = code
	rr.ResponseWriter.WriteHeader(code)
}
