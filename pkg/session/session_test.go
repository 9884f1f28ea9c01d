package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ysxx86/ClassMaster/config"
)

func newTestStore() *Store {
	return NewStore(&config.AuthConfig{
		SessionSecret: "0123456789abcdef0123456789abcdef",
		SessionMaxAge: time.Hour,
	})
}

func TestLoginThenRead(t *testing.T) {
	s := newTestStore()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/login", nil)
	if err := s.Login(w, r, 42); err != nil {
		t.Fatalf("Login 失败: %v", err)
	}

	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("期望写入会话 Cookie")
	}

	next := httptest.NewRequest(http.MethodGet, "/api/students", nil)
	for _, c := range cookies {
		next.AddCookie(c)
	}
	id, ok := s.UserID(next)
	if !ok || id != 42 {
		t.Errorf("期望读取到 user_id=42，实际: %d, %v", id, ok)
	}
}

func TestUserID_NoCookie(t *testing.T) {
	s := newTestStore()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := s.UserID(r); ok {
		t.Error("无 Cookie 时不应识别出用户")
	}
}

func TestLogout_ExpiresCookie(t *testing.T) {
	s := newTestStore()
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/logout", nil)
	if err := s.Logout(w, r); err != nil {
		t.Fatalf("Logout 失败: %v", err)
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == cookieName && c.MaxAge >= 0 {
			t.Errorf("期望 Cookie 过期，实际 MaxAge=%d", c.MaxAge)
		}
	}
}

func TestUserID_ExpiredCookieRejected(t *testing.T) {
	s := NewStore(&config.AuthConfig{
		SessionSecret: "0123456789abcdef0123456789abcdef",
		SessionMaxAge: time.Second,
	})

	w := httptest.NewRecorder()
	if err := s.Login(w, httptest.NewRequest(http.MethodPost, "/login", nil), 7); err != nil {
		t.Fatalf("Login 失败: %v", err)
	}
	cookies := w.Result().Cookies()
	if len(cookies) == 0 || cookies[0].MaxAge != 1 {
		t.Fatalf("期望 Cookie MaxAge=1，实际: %v", cookies)
	}

	// 浏览器会丢弃过期 Cookie，这里模拟原样重放
	time.Sleep(3 * time.Second)
	r := httptest.NewRequest(http.MethodGet, "/api/students", nil)
	for _, c := range cookies {
		r.AddCookie(c)
	}
	if id, ok := s.UserID(r); ok {
		t.Errorf("过期会话不应被接受，实际 user_id=%d", id)
	}
}
