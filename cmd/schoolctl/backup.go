package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	backupList  bool
	backupCheck bool
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "备份数据库",
	Long: `生成数据库一致性快照到备份目录。

示例:
  schoolctl backup
  schoolctl backup --list
  schoolctl backup --check`,
	Args: cobra.NoArgs,
	RunE: runBackup,
}

func init() {
	backupCmd.Flags().BoolVar(&backupList, "list", false, "仅列出已有备份")
	backupCmd.Flags().BoolVar(&backupCheck, "check", false, "备份前执行完整性检查")
	rootCmd.AddCommand(backupCmd)
}

func runBackup(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	m, err := e.maintainer()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if backupList {
		files, err := m.ListBackups()
		if err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Fprintln(out, "暂无备份")
		}
		for _, f := range files {
			fmt.Fprintf(out, "%s\t%d\n", f.Name, f.Size)
		}
		return nil
	}

	if backupCheck {
		problems, err := m.IntegrityCheck(cmd.Context())
		if err != nil {
			return err
		}
		if len(problems) > 0 {
			for _, p := range problems {
				fmt.Fprintln(out, p)
			}
			return fmt.Errorf("完整性检查未通过，共 %d 项", len(problems))
		}
		fmt.Fprintln(out, "完整性检查通过")
	}

	path, err := m.Backup(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "已备份数据库: %s\n", path)
	return nil
}
