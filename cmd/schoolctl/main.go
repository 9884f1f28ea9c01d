package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ysxx86/ClassMaster/config"
	"github.com/ysxx86/ClassMaster/pkg/database"
	applogger "github.com/ysxx86/ClassMaster/pkg/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "schoolctl",
	Short: "ClassMaster 运维工具",
	Long: `ClassMaster 运维工具：数据库迁移、旧库升级、备份、密码重置与上传清理。

示例:
  schoolctl migrate
  schoolctl upgrade all
  schoolctl backup
  schoolctl reset-password --username teacher1
  schoolctl cleanup`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "配置文件路径")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// env 子命令共享的运行环境
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB
}

func (e *env) close() {
	if sqlDB, err := e.db.DB(); err == nil {
		sqlDB.Close()
	}
	e.logger.Sync()
}

func (e *env) maintainer() (*database.Maintainer, error) {
	sqlDB, err := e.db.DB()
	if err != nil {
		return nil, err
	}
	return database.NewMaintainer(sqlDB, e.cfg.Database.BackupDir, e.logger), nil
}

// openEnv 加载配置并打开数据库；不执行迁移
func openEnv() (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	return &env{cfg: cfg, logger: logger, db: db}, nil
}
