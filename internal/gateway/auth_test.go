// auth_test.go

package gateway

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jacl-coder/Caro-Server/config"
)

func newTestAuthHandler() *AuthHandler {
	config.GlobalConfig.Server.JWTSecret = "test-secret"
	return NewAuthHandler()
}

func TestTokenRoundTrip(t *testing.T) {
	h := newTestAuthHandler()

	token, err := h.IssueToken(42, "alice")
	if err != nil {
		t.Fatalf("签发令牌失败: %v", err)
	}

	claims, err := h.ValidateToken(token)
	if err != nil {
		t.Fatalf("验证令牌失败: %v", err)
	}
	if claims.PlayerID != 42 || claims.Username != "alice" {
		t.Fatalf("载荷内容错误: %+v", claims)
	}
}

func TestValidateTokenRejectsTampered(t *testing.T) {
	h := newTestAuthHandler()

	token, _ := h.IssueToken(42, "alice")
	if _, err := h.ValidateToken(token + "x"); err == nil {
		t.Fatal("被篡改的令牌应验证失败")
	}
	if _, err := h.ValidateToken("not-a-token"); err == nil {
		t.Fatal("非法令牌应验证失败")
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	h := newTestAuthHandler()

	other := &AuthHandler{secret: []byte("other-secret")}
	token, _ := other.IssueToken(42, "alice")

	if _, err := h.ValidateToken(token); err == nil {
		t.Fatal("不同密钥签发的令牌应验证失败")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	h := newTestAuthHandler()

	// 手工签发已过期的令牌
	now := time.Now()
	claims := Claims{
		PlayerID: 42,
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
	if err != nil {
		t.Fatalf("签发令牌失败: %v", err)
	}

	if _, err := h.ValidateToken(token); err == nil {
		t.Fatal("过期令牌应验证失败")
	}
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/auth/validate", nil)
	r.Header.Set("Authorization", "Bearer abc123")
	if got := TokenFromRequest(r); got != "abc123" {
		t.Fatalf("期望abc123，得到: %s", got)
	}

	r = httptest.NewRequest("GET", "/ws?token=query-token", nil)
	if got := TokenFromRequest(r); got != "query-token" {
		t.Fatalf("期望query-token，得到: %s", got)
	}

	// Authorization头优先于查询参数
	r = httptest.NewRequest("GET", "/ws?token=query-token", nil)
	r.Header.Set("Authorization", "Bearer header-token")
	if got := TokenFromRequest(r); got != "header-token" {
		t.Fatalf("期望header-token，得到: %s", got)
	}

	r = httptest.NewRequest("GET", "/ws", nil)
	if got := TokenFromRequest(r); got != "" {
		t.Fatalf("无令牌应返回空，得到: %s", got)
	}
}

func TestHashPasswordDeterministic(t *testing.T) {
	if hashPassword("secret") != hashPassword("secret") {
		t.Fatal("同一密码哈希应一致")
	}
	if hashPassword("secret") == hashPassword("other") {
		t.Fatal("不同密码哈希不应相同")
	}
	if len(hashPassword("secret")) != 64 {
		t.Fatal("SHA-256十六进制长度应为64")
	}
}
