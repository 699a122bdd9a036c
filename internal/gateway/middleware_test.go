// middleware_test.go

package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRateLimiterBlocksAfterLimit(t *testing.T) {
	rl := NewRateLimiter(3, 1)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/stats/leaderboard", nil)
		r.RemoteAddr = "10.0.0.1:1234"
		handler.ServeHTTP(rec, r)
		if rec.Code != http.StatusOK {
			t.Fatalf("第%d次请求不应被限流: %d", i+1, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/stats/leaderboard", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	handler.ServeHTTP(rec, r)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("超限请求应返回429，得到: %d", rec.Code)
	}

	// 其他IP不受影响
	rec = httptest.NewRecorder()
	r = httptest.NewRequest("GET", "/stats/leaderboard", nil)
	r.RemoteAddr = "10.0.0.2:1234"
	handler.ServeHTTP(rec, r)
	if rec.Code != http.StatusOK {
		t.Fatalf("不同IP不应被限流: %d", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	if got := clientIP(r); got != "10.0.0.1" {
		t.Fatalf("期望10.0.0.1，得到: %s", got)
	}

	r.Header.Set("X-Real-IP", "10.0.0.2")
	if got := clientIP(r); got != "10.0.0.2" {
		t.Fatalf("期望10.0.0.2，得到: %s", got)
	}

	// X-Forwarded-For优先
	r.Header.Set("X-Forwarded-For", "10.0.0.3")
	if got := clientIP(r); got != "10.0.0.3" {
		t.Fatalf("期望10.0.0.3，得到: %s", got)
	}
}

func TestCORSPreflights(t *testing.T) {
	handler := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("预检请求不应到达下游处理器")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("OPTIONS", "/auth/login", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("预检请求应返回200，得到: %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatal("缺少CORS响应头")
	}
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("缺少X-Content-Type-Options头")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatal("缺少X-Frame-Options头")
	}
}

func TestCacheMiddlewareHitsOnSecondRequest(t *testing.T) {
	cm := NewCacheMiddleware()
	calls := 0
	handler := cm.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"success":true}`))
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/stats/leaderboard?limit=10", nil))
		if rec.Body.String() != `{"success":true}` {
			t.Fatalf("响应体错误: %s", rec.Body.String())
		}
	}
	if calls != 1 {
		t.Fatalf("第二次请求应命中缓存，下游调用次数: %d", calls)
	}

	// 不同查询参数是不同的缓存键
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/stats/leaderboard?limit=20", nil))
	if calls != 2 {
		t.Fatalf("不同参数不应命中缓存，下游调用次数: %d", calls)
	}
}

func TestCacheMiddlewareSkipsNonCacheable(t *testing.T) {
	cm := NewCacheMiddleware()
	calls := 0
	handler := cm.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("ok"))
	}))

	// 非缓存路径与非GET方法都直接透传
	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/match/join", nil))
	}
	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/stats/leaderboard/refresh", nil))
	}
	if calls != 4 {
		t.Fatalf("非缓存请求不应命中缓存，下游调用次数: %d", calls)
	}
}
