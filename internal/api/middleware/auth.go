package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ysxx86/ClassMaster/internal/scope"
	"github.com/ysxx86/ClassMaster/pkg/jwt"
	"github.com/ysxx86/ClassMaster/pkg/response"
	"github.com/ysxx86/ClassMaster/pkg/session"
)

// 上下文键
const (
	CallerKey = "caller"
	ClaimsKey = "token_claims"
)

// CallerLoader 按用户主键加载访问身份（管理员标记、所带班级每次请求重新读取）
type CallerLoader func(ctx context.Context, userID uint) (*scope.Caller, error)

// Blacklist 已注销 Token 查询
type Blacklist interface {
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}

// Identity 认证中间件
//
// 优先读取 Authorization: Bearer <token>，否则使用会话 Cookie。
// 认证成功后将 scope.Caller 注入上下文，并顺延会话有效期。
// blacklist 为 nil 时不检查 Token 黑名单。
func Identity(jwtMgr *jwt.Manager, blacklist Blacklist, sessions *session.Store, load CallerLoader, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			userID  uint
			fromJWT bool
		)

		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				response.Unauthorized(c, "认证头格式无效")
				c.Abort()
				return
			}

			claims, err := jwtMgr.ParseToken(parts[1])
			if err != nil {
				response.Unauthorized(c, "Token 无效或已过期")
				c.Abort()
				return
			}

			if blacklist != nil {
				revoked, err := blacklist.IsBlacklisted(c.Request.Context(), claims.ID)
				if err != nil {
					// Redis 出错时降级放行
					logger.Warn("查询 Token 黑名单失败", zap.Error(err))
				} else if revoked {
					response.Unauthorized(c, "Token 已注销")
					c.Abort()
					return
				}
			}

			userID, fromJWT = claims.UserID, true
			c.Set(ClaimsKey, claims)
		} else {
			id, ok := sessions.UserID(c.Request)
			if !ok {
				response.Unauthorized(c, "请先登录")
				c.Abort()
				return
			}
			userID = id
		}

		caller, err := load(c.Request.Context(), userID)
		if err != nil {
			logger.Warn("加载登录用户失败", zap.Uint("user_id", userID), zap.Error(err))
			response.Unauthorized(c, "用户不存在或已被删除")
			c.Abort()
			return
		}
		c.Set(CallerKey, *caller)

		if !fromJWT {
			if err := sessions.Touch(c.Writer, c.Request); err != nil {
				logger.Warn("刷新会话失败", zap.Error(err))
			}
		}

		c.Next()
	}
}

// RequireAdmin 仅管理员可访问
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		v, exists := c.Get(CallerKey)
		caller, ok := v.(scope.Caller)
		if !exists || !ok {
			response.Unauthorized(c, "请先登录")
			c.Abort()
			return
		}
		if !caller.IsAdmin {
			response.Forbidden(c, "权限不足，仅管理员可执行此操作")
			c.Abort()
			return
		}
		c.Next()
	}
}
