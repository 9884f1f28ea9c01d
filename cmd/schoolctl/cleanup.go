package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ysxx86/ClassMaster/config"
	"github.com/ysxx86/ClassMaster/internal/service"
	applogger "github.com/ysxx86/ClassMaster/pkg/logger"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "清理过期的导入预览文件",
	Args:  cobra.NoArgs,
	RunE:  runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}

// 不需要数据库
func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer logger.Sync()

	uploads := service.NewUploadStore(cfg.Storage.UploadDir, cfg.Storage.UploadTTL, logger)
	n, err := uploads.Cleanup(time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "已清理 %d 个过期文件\n", n)
	return nil
}
