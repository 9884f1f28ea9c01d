package service

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UploadStore 导入文件暂存区
//
// 预览阶段保存上传文件并返回文件标识，确认阶段凭标识重新读取同一文件。
// 文件不会在确认后立即删除，由 Cleanup 按保留时长尽力清理。
type UploadStore struct {
	dir    string
	ttl    time.Duration
	logger *zap.Logger
}

var uploadNameRe = regexp.MustCompile(`^[a-z]+_[0-9a-f-]{36}\.xlsx$`)

// NewUploadStore 创建暂存区
func NewUploadStore(dir string, ttl time.Duration, logger *zap.Logger) *UploadStore {
	return &UploadStore{dir: dir, ttl: ttl, logger: logger}
}

// Save 保存上传文件，kind 标识用途（students / users / deyu / grades）
func (u *UploadStore) Save(kind, filename string, r io.Reader) (string, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".xlsx") {
		return "", ErrUploadInvalid
	}
	if err := os.MkdirAll(u.dir, 0o755); err != nil {
		return "", fmt.Errorf("创建上传目录失败: %w", err)
	}

	// 顺带清理过期文件，失败不影响本次上传
	if n, err := u.Cleanup(time.Now()); err != nil {
		u.logger.Warn("清理过期上传文件失败", zap.Error(err))
	} else if n > 0 {
		u.logger.Info("已清理过期上传文件", zap.Int("count", n))
	}

	name := fmt.Sprintf("%s_%s.xlsx", kind, uuid.NewString())
	f, err := os.Create(filepath.Join(u.dir, name))
	if err != nil {
		return "", fmt.Errorf("保存上传文件失败: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("保存上传文件失败: %w", err)
	}

	return name, nil
}

// Open 按文件标识打开暂存文件；标识必须由 Save 生成且与 kind 一致
func (u *UploadStore) Open(kind, name string) (*os.File, error) {
	if !uploadNameRe.MatchString(name) || !strings.HasPrefix(name, kind+"_") {
		return nil, ErrUploadNotFound
	}
	f, err := os.Open(filepath.Join(u.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrUploadNotFound
	}
	return f, err
}

// Cleanup 删除修改时间早于 now-ttl 的暂存文件，返回删除数量
func (u *UploadStore) Cleanup(now time.Time) (int, error) {
	if u.ttl <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(u.dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	cutoff := now.Add(-u.ttl)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !uploadNameRe.MatchString(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(u.dir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
