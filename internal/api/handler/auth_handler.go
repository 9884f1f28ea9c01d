package handler

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ysxx86/ClassMaster/internal/dto"
	"github.com/ysxx86/ClassMaster/internal/service"
	"github.com/ysxx86/ClassMaster/pkg/jwt"
	"github.com/ysxx86/ClassMaster/pkg/response"
	"github.com/ysxx86/ClassMaster/pkg/session"
)

// AuthHandler 认证模块 HTTP 处理器
type AuthHandler struct {
	authSvc  service.AuthService
	jwtMgr   *jwt.Manager
	sessions *session.Store
	logger   *zap.Logger
}

// NewAuthHandler 创建 AuthHandler
func NewAuthHandler(authSvc service.AuthService, jwtMgr *jwt.Manager, sessions *session.Store, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{authSvc: authSvc, jwtMgr: jwtMgr, sessions: sessions, logger: logger}
}

// Login 用户登录，同时签发 Token 与会话 Cookie
// POST /login
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequest(c, "用户名和密码不能为空")
		return
	}

	result, err := h.authSvc.Login(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.Unauthorized(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}

	if err := h.sessions.Login(c.Writer, c.Request, result.User.ID); err != nil {
		response.InternalError(c, err)
		return
	}

	response.OK(c, "登录成功", gin.H{
		"access_token": result.AccessToken,
		"expires_in":   result.ExpiresIn,
		"user":         result.User,
	})
}

// Logout 退出登录：注销 Bearer Token 并清除会话
// POST /logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok {
		// 已过期的 Token 无需拉黑
		if claims, err := h.jwtMgr.ParseToken(token); err == nil && claims.ExpiresAt != nil {
			if err := h.authSvc.Logout(c.Request.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
				h.logger.Warn("注销 Token 失败", zap.Error(err))
			}
		}
	}

	if err := h.sessions.Logout(c.Writer, c.Request); err != nil {
		h.logger.Warn("清除会话失败", zap.Error(err))
	}

	response.OK(c, "已退出登录", nil)
}

// CurrentUser 获取当前登录用户
// GET /api/current-user
func (h *AuthHandler) CurrentUser(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	user, err := h.authSvc.CurrentUser(c.Request.Context(), caller.UserID)
	if err != nil {
		h.handleAuthError(c, err)
		return
	}

	response.OK(c, "", gin.H{"user": user})
}

// ChangePassword 修改密码
// POST /api/change-password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	var req dto.ChangePasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.authSvc.ChangePassword(c.Request.Context(), caller.UserID, &req); err != nil {
		h.handleAuthError(c, err)
		return
	}

	response.OK(c, "密码修改成功", nil)
}

// handleAuthError 统一处理认证模块业务错误
func (h *AuthHandler) handleAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrPasswordMismatch),
		errors.Is(err, service.ErrWrongPassword):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}
