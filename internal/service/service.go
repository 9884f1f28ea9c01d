package service

import (
	"go.uber.org/zap"

	"github.com/ysxx86/ClassMaster/config"
	"github.com/ysxx86/ClassMaster/internal/repository"
	"github.com/ysxx86/ClassMaster/pkg/deepseek"
	"github.com/ysxx86/ClassMaster/pkg/jwt"
	"github.com/ysxx86/ClassMaster/pkg/redis"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Auth      AuthService
	User      UserService
	Class     ClassService
	Student   StudentService
	Grade     GradeService
	Deyu      DeyuService
	Comment   CommentService
	Dashboard DashboardService
	AI        AIService
	Uploads   *UploadStore
}

// NewService 创建 Service 聚合
// rdb 为 nil 时 Token 黑名单与导出取消不可用
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	jwtMgr *jwt.Manager,
	rdb *redis.Client,
	logger *zap.Logger,
) *Service {
	var (
		blacklist TokenBlacklist
		registry  ExportRegistry
	)
	if rdb != nil {
		blacklist = rdb
		registry = rdb
	}

	uploads := NewUploadStore(cfg.Storage.UploadDir, cfg.Storage.UploadTTL, logger)

	return &Service{
		Auth:      NewAuthService(cfg, repo, jwtMgr, blacklist, logger),
		User:      NewUserService(repo, uploads, logger),
		Class:     NewClassService(repo, logger),
		Student:   NewStudentService(repo, uploads, logger),
		Grade:     NewGradeService(repo, uploads, logger),
		Deyu:      NewDeyuService(repo, uploads, logger),
		Comment:   NewCommentService(repo, registry, cfg.Storage.ExportDir, cfg.Export, logger),
		Dashboard: NewDashboardService(repo, logger),
		AI:        NewAIService(repo, deepseek.NewClient(&cfg.AI, logger), cfg, logger),
		Uploads:   uploads,
	}
}
