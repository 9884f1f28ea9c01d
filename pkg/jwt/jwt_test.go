package jwt

import (
	"errors"
	"testing"
	"time"

	"github.com/ysxx86/ClassMaster/config"
)

func newTestManager(ttl time.Duration) *Manager {
	return NewManager(&config.AuthConfig{
		JWTSecret:      "test-secret-0123456789",
		AccessTokenTTL: ttl,
	})
}

func TestGenerateAndParse(t *testing.T) {
	m := newTestManager(time.Hour)

	token, jti, err := m.GenerateAccessToken(7, "teacher01")
	if err != nil {
		t.Fatalf("生成令牌失败: %v", err)
	}
	if jti == "" {
		t.Fatal("期望返回非空 JTI")
	}

	claims, err := m.ParseToken(token)
	if err != nil {
		t.Fatalf("解析令牌失败: %v", err)
	}
	if claims.UserID != 7 || claims.Username != "teacher01" {
		t.Errorf("声明不一致: %+v", claims)
	}
	if claims.ID != jti {
		t.Errorf("期望 JTI=%s，实际=%s", jti, claims.ID)
	}
}

func TestParseToken_Expired(t *testing.T) {
	m := newTestManager(-time.Minute)
	token, _, err := m.GenerateAccessToken(1, "admin")
	if err != nil {
		t.Fatalf("生成令牌失败: %v", err)
	}
	if _, err := m.ParseToken(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("期望 ErrTokenExpired，实际: %v", err)
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, _, _ := newTestManager(time.Hour).GenerateAccessToken(1, "admin")
	other := NewManager(&config.AuthConfig{JWTSecret: "another-secret-987654", AccessTokenTTL: time.Hour})
	if _, err := other.ParseToken(token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("期望 ErrTokenInvalid，实际: %v", err)
	}
}
