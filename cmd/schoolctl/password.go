package main

import (
	"fmt"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ysxx86/ClassMaster/internal/repository"
	"github.com/ysxx86/ClassMaster/internal/service"
)

// 测试中替换
var readPasswordFunc = term.ReadPassword

var (
	resetUsername string
	resetGenerate bool
)

var resetPasswordCmd = &cobra.Command{
	Use:   "reset-password",
	Short: "重置用户密码",
	Long: `交互式重置指定用户的密码；使用 --generate 时生成临时密码并输出。

示例:
  schoolctl reset-password --username teacher1
  schoolctl reset-password --username teacher1 --generate`,
	Args: cobra.NoArgs,
	RunE: runResetPassword,
}

func init() {
	resetPasswordCmd.Flags().StringVar(&resetUsername, "username", "", "用户名")
	resetPasswordCmd.Flags().BoolVar(&resetGenerate, "generate", false, "生成临时密码")
	resetPasswordCmd.MarkFlagRequired("username")
	rootCmd.AddCommand(resetPasswordCmd)
}

func runResetPassword(cmd *cobra.Command, args []string) error {
	var password string
	if !resetGenerate {
		var err error
		if password, err = promptPassword(cmd); err != nil {
			return err
		}
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	uploads := service.NewUploadStore(e.cfg.Storage.UploadDir, e.cfg.Storage.UploadTTL, e.logger)
	users := service.NewUserService(repository.NewRepository(e.db), uploads, e.logger)

	newPassword, err := users.SetPassword(cmd.Context(), resetUsername, password)
	if err != nil {
		return err
	}
	if resetGenerate {
		fmt.Fprintf(cmd.OutOrStdout(), "临时密码: %s\n", newPassword)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "密码已更新")
	}
	return nil
}

func promptPassword(cmd *cobra.Command) (string, error) {
	out := cmd.OutOrStdout()
	fmt.Fprint(out, "Enter password: ")
	first, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("读取密码失败: %w", err)
	}
	fmt.Fprint(out, "Confirm password: ")
	second, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("读取密码失败: %w", err)
	}

	if string(first) != string(second) {
		return "", fmt.Errorf("两次输入的密码不一致")
	}
	if len(first) < 6 {
		return "", fmt.Errorf("密码长度不能少于 6 位")
	}
	return string(first), nil
}
