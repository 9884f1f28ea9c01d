package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ysxx86/ClassMaster/pkg/database"
)

var upgradeNoBackup bool

var upgradeCmd = &cobra.Command{
	Use:   "upgrade <name|all>",
	Short: "升级旧版数据库结构",
	Long: fmt.Sprintf(`对旧版数据库执行一次性结构升级，可重复执行。

可选升级项: %s，或 all 按顺序执行全部。
升级前默认先备份数据库。`, strings.Join(database.UpgradeOrder, ", ")),
	Args: cobra.ExactArgs(1),
	RunE: runUpgrade,
}

func init() {
	upgradeCmd.Flags().BoolVar(&upgradeNoBackup, "no-backup", false, "升级前不备份数据库")
	rootCmd.AddCommand(upgradeCmd)
}

func runUpgrade(cmd *cobra.Command, args []string) error {
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
	ctx := cmd.Context()

	if !upgradeNoBackup {
		path, err := m.Backup(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "已备份数据库: %s\n", path)
	}

	var results []*database.UpgradeResult
	if args[0] == "all" {
		results, err = m.UpgradeAll(ctx)
	} else {
		var r *database.UpgradeResult
		r, err = m.Upgrade(ctx, args[0])
		if r != nil {
			results = append(results, r)
		}
	}
	printUpgradeResults(out, results)
	return err
}

func printUpgradeResults(out io.Writer, results []*database.UpgradeResult) {
	for _, r := range results {
		status := "跳过"
		if r.Applied {
			status = "完成"
		}
		fmt.Fprintf(out, "%-14s %s\n", r.Name, status)
		for _, v := range r.Violations {
			fmt.Fprintf(out, "  外键不一致: %s rowid=%d -> %s (fk=%d)\n", v.Table, v.RowID, v.Parent, v.FKID)
		}
	}
}
