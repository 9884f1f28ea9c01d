package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ysxx86/ClassMaster/config"
	"github.com/ysxx86/ClassMaster/internal/api/handler"
	"github.com/ysxx86/ClassMaster/internal/api/router"
	"github.com/ysxx86/ClassMaster/internal/repository"
	"github.com/ysxx86/ClassMaster/internal/service"
	"github.com/ysxx86/ClassMaster/pkg/database"
	"github.com/ysxx86/ClassMaster/pkg/jwt"
	applogger "github.com/ysxx86/ClassMaster/pkg/logger"
	"github.com/ysxx86/ClassMaster/pkg/redis"
	"github.com/ysxx86/ClassMaster/pkg/session"
)

// 预览上传文件的清理周期
const uploadCleanupInterval = time.Hour

func main() {
	configPath := flag.String("config", "", "配置文件路径")
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("db", cfg.Database.Path),
		zap.String("log_level", cfg.Log.Level),
	)

	// 3. 打开数据库
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}

	// 3.1 执行数据库迁移
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 4. 连接 Redis（可选：连接失败时降级运行，不中断启动）
	var rdb *redis.Client
	rdb, err = redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis 连接失败，Token 黑名单、登录限流与导出取消将不可用", zap.Error(err))
		rdb = nil
	}

	// 5. 初始化 JWT 与会话
	jwtMgr := jwt.NewManager(&cfg.Auth)
	sessions := session.NewStore(&cfg.Auth)

	// 6. 依赖注入: Repository → Service → Handler
	repo := repository.NewRepository(db)
	svc := service.NewService(cfg, repo, jwtMgr, rdb, logger)
	h := handler.NewHandler(svc, jwtMgr, sessions, logger)

	// 6.1 首次启动创建默认管理员
	created, err := svc.Auth.EnsureAdmin(context.Background())
	if err != nil {
		logger.Fatal("初始化管理员失败", zap.Error(err))
	}
	if created {
		logger.Warn("已创建默认管理员，请尽快修改密码", zap.String("username", cfg.Bootstrap.AdminUsername))
	}

	// 7. 初始化路由
	engine, err := router.Setup(router.Deps{
		Config:   cfg,
		Handler:  h,
		JWT:      jwtMgr,
		Sessions: sessions,
		Redis:    rdb,
		Loader:   svc.Auth.LoadCaller,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("初始化路由失败", zap.Error(err))
	}

	// 8. 定期清理过期的导入预览文件
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go cleanupUploads(ctx, svc.Uploads, logger)

	// 9. 启动 HTTP 服务器（优雅关闭）
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     engine,
		ReadTimeout: 30 * time.Second,
		// 报告导出可能耗时较长
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	// 10. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	sqlDB.Close()

	if rdb != nil {
		rdb.Close()
	}

	logger.Info("服务器已关闭")
}

func cleanupUploads(ctx context.Context, uploads *service.UploadStore, logger *zap.Logger) {
	ticker := time.NewTicker(uploadCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n, err := uploads.Cleanup(now); err != nil {
				logger.Warn("清理上传文件失败", zap.Error(err))
			} else if n > 0 {
				logger.Info("已清理过期上传文件", zap.Int("count", n))
			}
		}
	}
}
