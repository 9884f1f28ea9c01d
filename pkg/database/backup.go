package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// BackupFile 备份文件信息
type BackupFile struct {
	Name string
	Path string
	Size int64
}

// ListBackups 列出备份目录下的数据库快照，按文件名倒序（最新在前）
func (m *Maintainer) ListBackups() ([]BackupFile, error) {
	entries, err := os.ReadDir(m.backupDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取备份目录失败: %w", err)
	}

	var out []BackupFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "students_backup_") || !strings.HasSuffix(e.Name(), ".db") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, BackupFile{
			Name: e.Name(),
			Path: filepath.Join(m.backupDir, e.Name()),
			Size: info.Size(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name > out[j].Name })
	return out, nil
}

// IntegrityCheck 执行 PRAGMA integrity_check，返回非 "ok" 的结果行
func (m *Maintainer) IntegrityCheck(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, "PRAGMA integrity_check")
	if err != nil {
		return nil, fmt.Errorf("完整性检查失败: %w", err)
	}
	defer rows.Close()

	var problems []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, err
		}
		if line != "ok" {
			problems = append(problems, line)
		}
	}
	return problems, rows.Err()
}
