package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ysxx86/ClassMaster/pkg/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "执行数据库迁移并输出当前版本",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	sqlDB, err := e.db.DB()
	if err != nil {
		return err
	}
	if err := database.RunMigrations(sqlDB, e.logger); err != nil {
		return err
	}

	version, dirty, err := database.MigrationVersion(sqlDB)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "当前迁移版本: %d (dirty=%t)\n", version, dirty)
	return nil
}
