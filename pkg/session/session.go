package session

import (
	"net/http"

	"github.com/gorilla/sessions"

	"github.com/ysxx86/ClassMaster/config"
)

const (
	cookieName = "classmaster_session"
	keyUserID  = "user_id"
)

// Store 基于加密 Cookie 的浏览器会话
// 会话只保存用户主键，每次认证请求都会重新写回 Cookie 以顺延有效期
type Store struct {
	cookies *sessions.CookieStore
}

// NewStore 创建会话存储
func NewStore(cfg *config.AuthConfig) *Store {
	cs := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	cs.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	// 同时设置签名中的时间戳有效期，过期 Cookie 重放时解码失败
	cs.MaxAge(int(cfg.SessionMaxAge.Seconds()))
	return &Store{cookies: cs}
}

// Login 建立会话
func (s *Store) Login(w http.ResponseWriter, r *http.Request, userID uint) error {
	sess, _ := s.cookies.Get(r, cookieName)
	sess.Values[keyUserID] = userID
	return sess.Save(r, w)
}

// UserID 读取会话中的用户主键
func (s *Store) UserID(r *http.Request) (uint, bool) {
	sess, err := s.cookies.Get(r, cookieName)
	if err != nil {
		return 0, false
	}
	id, ok := sess.Values[keyUserID].(uint)
	if !ok || id == 0 {
		return 0, false
	}
	return id, true
}

// Touch 顺延会话有效期
func (s *Store) Touch(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.cookies.Get(r, cookieName)
	if err != nil || sess.IsNew {
		return err
	}
	return sess.Save(r, w)
}

// Logout 销毁会话
func (s *Store) Logout(w http.ResponseWriter, r *http.Request) error {
	sess, _ := s.cookies.Get(r, cookieName)
	delete(sess.Values, keyUserID)
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}
