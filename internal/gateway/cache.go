// cache.go

package gateway

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

// cacheEntry 缓存条目
type cacheEntry struct {
	data        []byte
	contentType string
	expiresAt   time.Time
}

// CacheMiddleware 读接口的进程内响应缓存
// 只缓存GET请求的成功响应，用于排行榜和玩家资料这类
// 读多写少且允许短暂陈旧的接口。
type CacheMiddleware struct {
	entries map[string]*cacheEntry
	mutex   sync.RWMutex

	// 可缓存路径与各自的TTL
	cacheTTL map[string]time.Duration
}

// NewCacheMiddleware 创建缓存中间件
func NewCacheMiddleware() *CacheMiddleware {
	cm := &CacheMiddleware{
		entries: make(map[string]*cacheEntry),
		cacheTTL: map[string]time.Duration{
			"/stats/leaderboard": 2 * time.Minute,
			"/stats/player/":     30 * time.Second,
			"/players/":          1 * time.Minute,
		},
	}

	// 启动清理协程
	go cm.cleanup()

	return cm
}

// Middleware 缓存中间件
func (cm *CacheMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		ttl, cacheable := cm.lookupTTL(r.URL.Path)
		if !cacheable {
			next.ServeHTTP(w, r)
			return
		}

		key := r.URL.Path
		if r.URL.RawQuery != "" {
			key += "?" + r.URL.RawQuery
		}

		if entry := cm.get(key); entry != nil {
			if entry.contentType != "" {
				w.Header().Set("Content-Type", entry.contentType)
			}
			w.Header().Set("X-Cache", "HIT")
			w.Write(entry.data)
			return
		}

		recorder := &cacheRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}
		next.ServeHTTP(recorder, r)

		if recorder.statusCode == http.StatusOK && len(recorder.body) > 0 {
			cm.set(key, &cacheEntry{
				data:        recorder.body,
				contentType: recorder.Header().Get("Content-Type"),
				expiresAt:   time.Now().Add(ttl),
			})
		}
	})
}

// lookupTTL 按路径前缀查找缓存TTL
func (cm *CacheMiddleware) lookupTTL(path string) (time.Duration, bool) {
	for prefix, ttl := range cm.cacheTTL {
		if strings.HasPrefix(path, prefix) {
			return ttl, true
		}
	}
	return 0, false
}

// get 读取未过期的缓存条目
func (cm *CacheMiddleware) get(key string) *cacheEntry {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	entry, ok := cm.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil
	}
	return entry
}

// set 写入缓存条目
func (cm *CacheMiddleware) set(key string, entry *cacheEntry) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.entries[key] = entry
}

// cleanup 周期性清理过期条目
func (cm *CacheMiddleware) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		cm.mutex.Lock()
		for key, entry := range cm.entries {
			if now.After(entry.expiresAt) {
				delete(cm.entries, key)
			}
		}
		cm.mutex.Unlock()
	}
}

// cacheRecorder 响应捕获器
type cacheRecorder struct {
	http.ResponseWriter
	statusCode int
	body       []byte
}

// WriteHeader 记录状态码
func (cr *cacheRecorder) WriteHeader(code int) {
	cr.statusCode = code
	cr.ResponseWriter.WriteHeader(code)
}

// Write 记录并透传响应体
func (cr *cacheRecorder) Write(data []byte) (int, error) {
	cr.body = append(cr.body, data...)
	return cr.ResponseWriter.Write(data)
}
