package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/ysxx86/ClassMaster/config"
	"github.com/ysxx86/ClassMaster/internal/dto"
	"github.com/ysxx86/ClassMaster/internal/model"
	"github.com/ysxx86/ClassMaster/internal/repository"
	"github.com/ysxx86/ClassMaster/internal/scope"
	"github.com/ysxx86/ClassMaster/pkg/jwt"
)

// TokenBlacklist 注销 Token 的存储（Redis）
type TokenBlacklist interface {
	BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error
}

// AuthService 认证业务接口
type AuthService interface {
	Login(ctx context.Context, req *dto.LoginRequest) (*dto.LoginResponse, error)
	Logout(ctx context.Context, jti string, expiresAt time.Time) error
	LoadCaller(ctx context.Context, userID uint) (*scope.Caller, error)
	CurrentUser(ctx context.Context, userID uint) (*dto.UserResponse, error)
	ChangePassword(ctx context.Context, userID uint, req *dto.ChangePasswordRequest) error
	EnsureAdmin(ctx context.Context) (bool, error)
}

type authService struct {
	cfg       *config.Config
	repo      *repository.Repository
	jwtMgr    *jwt.Manager
	blacklist TokenBlacklist // 可为 nil，此时注销仅清除会话
	logger    *zap.Logger
}

// NewAuthService 创建 AuthService 实例
func NewAuthService(
	cfg *config.Config,
	repo *repository.Repository,
	jwtMgr *jwt.Manager,
	blacklist TokenBlacklist,
	logger *zap.Logger,
) AuthService {
	return &authService{
		cfg:       cfg,
		repo:      repo,
		jwtMgr:    jwtMgr,
		blacklist: blacklist,
		logger:    logger,
	}
}

func (s *authService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.LoginResponse, error) {
	// 1. 查询用户
	user, err := s.repo.User.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		s.logger.Error("查询用户失败", zap.Error(err))
		return nil, err
	}

	// 2. 验证密码 (bcrypt)
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	// 3. 记录最近一次已知密码，供管理员查看
	if s.cfg.Auth.RecordLoginPassword {
		if err := s.repo.User.UpdateFields(ctx, user.ID, map[string]any{"reset_password": req.Password}); err != nil {
			s.logger.Warn("记录登录密码失败", zap.Uint("user_id", user.ID), zap.Error(err))
		}
	}

	// 4. 生成 Access Token
	accessToken, _, err := s.jwtMgr.GenerateAccessToken(user.ID, user.Username)
	if err != nil {
		s.logger.Error("生成 AccessToken 失败", zap.Error(err))
		return nil, err
	}

	s.logger.Info("用户登录", zap.String("username", user.Username), zap.Bool("is_admin", user.IsAdmin))

	return &dto.LoginResponse{
		AccessToken: accessToken,
		ExpiresIn:   int(s.jwtMgr.TTL().Seconds()),
		User:        toUserResponse(user),
	}, nil
}

func (s *authService) Logout(ctx context.Context, jti string, expiresAt time.Time) error {
	if s.blacklist == nil || jti == "" {
		return nil
	}
	if err := s.blacklist.BlacklistToken(ctx, jti, time.Until(expiresAt)); err != nil {
		s.logger.Error("Token 加入黑名单失败", zap.Error(err))
		return err
	}
	return nil
}

// LoadCaller 按会话中的用户 ID 加载访问身份
func (s *authService) LoadCaller(ctx context.Context, userID uint) (*scope.Caller, error) {
	user, err := s.repo.User.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		s.logger.Error("加载用户失败", zap.Uint("user_id", userID), zap.Error(err))
		return nil, err
	}
	caller := callerOf(user)
	return &caller, nil
}

func (s *authService) CurrentUser(ctx context.Context, userID uint) (*dto.UserResponse, error) {
	user, err := s.repo.User.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		s.logger.Error("查询用户失败", zap.Uint("user_id", userID), zap.Error(err))
		return nil, err
	}
	resp := toUserResponse(user)
	return &resp, nil
}

func (s *authService) ChangePassword(ctx context.Context, userID uint, req *dto.ChangePasswordRequest) error {
	if req.NewPassword != req.ConfirmPassword {
		return ErrPasswordMismatch
	}

	user, err := s.repo.User.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		return ErrWrongPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("密码哈希失败", zap.Error(err))
		return err
	}

	fields := map[string]any{"password_hash": string(hash)}
	if s.cfg.Auth.RecordLoginPassword {
		fields["reset_password"] = req.NewPassword
	}
	if err := s.repo.User.UpdateFields(ctx, userID, fields); err != nil {
		s.logger.Error("修改密码失败", zap.Uint("user_id", userID), zap.Error(err))
		return err
	}
	return nil
}

// EnsureAdmin 首次启动时若不存在管理员则按配置创建，返回是否新建
func (s *authService) EnsureAdmin(ctx context.Context) (bool, error) {
	n, err := s.repo.User.CountAdmins(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	username := s.cfg.Bootstrap.AdminUsername
	if existing, err := s.repo.User.GetByUsername(ctx, username); err == nil {
		// 同名普通用户存在时提升为管理员
		if err := s.repo.User.UpdateFields(ctx, existing.ID, map[string]any{"is_admin": true, "class_id": nil}); err != nil {
			return false, err
		}
		s.logger.Warn("已将现有用户提升为管理员", zap.String("username", username))
		return true, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(s.cfg.Bootstrap.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return false, err
	}
	pwd := s.cfg.Bootstrap.AdminPassword
	admin := &model.User{
		Username:      username,
		PasswordHash:  string(hash),
		IsAdmin:       true,
		ResetPassword: &pwd,
	}
	if err := s.repo.User.Create(ctx, admin); err != nil {
		s.logger.Error("创建默认管理员失败", zap.Error(err))
		return false, err
	}

	s.logger.Warn("已创建默认管理员，请尽快修改密码", zap.String("username", username))
	return true, nil
}
