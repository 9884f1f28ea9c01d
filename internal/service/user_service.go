package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/ysxx86/ClassMaster/internal/dto"
	"github.com/ysxx86/ClassMaster/internal/model"
	"github.com/ysxx86/ClassMaster/internal/repository"
	"github.com/ysxx86/ClassMaster/internal/scope"
)

const (
	uploadKindUsers     = "users"
	resetPasswordLength = 6
	hiddenPassword      = "******"
)

// UserService 用户管理业务接口（仅管理员）
type UserService interface {
	List(ctx context.Context) ([]dto.UserAdminResponse, error)
	Create(ctx context.Context, caller scope.Caller, req *dto.CreateUserRequest) (*dto.UserResponse, error)
	BatchCreate(ctx context.Context, caller scope.Caller, req *dto.BatchCreateUsersRequest) (*dto.BatchCreateUsersResult, error)
	Update(ctx context.Context, caller scope.Caller, id uint, req *dto.UpdateUserRequest) (*dto.UserResponse, error)
	Delete(ctx context.Context, caller scope.Caller, id uint) error
	ResetPassword(ctx context.Context, caller scope.Caller, id uint) (*dto.ResetPasswordResponse, error)
	SetPassword(ctx context.Context, username, password string) (string, error)
	PreviewImport(ctx context.Context, filename string, r io.Reader) (*dto.ImportPreview, error)
	ConfirmImport(ctx context.Context, caller scope.Caller, filePath string) (*dto.UserImportResult, error)
	Template() (*bytes.Buffer, error)
	Export(ctx context.Context) (*bytes.Buffer, error)
}

type userService struct {
	repo     *repository.Repository
	uploads  *UploadStore
	activity activityLog
	logger   *zap.Logger
}

// NewUserService 创建 UserService 实例
func NewUserService(repo *repository.Repository, uploads *UploadStore, logger *zap.Logger) UserService {
	return &userService{
		repo:     repo,
		uploads:  uploads,
		activity: activityLog{repo: repo, logger: logger},
		logger:   logger,
	}
}

// ────────────────────── List ──────────────────────

func (s *userService) List(ctx context.Context) ([]dto.UserAdminResponse, error) {
	users, err := s.repo.User.List(ctx)
	if err != nil {
		s.logger.Error("列出用户失败", zap.Error(err))
		return nil, err
	}

	result := make([]dto.UserAdminResponse, 0, len(users))
	for i := range users {
		result = append(result, dto.UserAdminResponse{
			UserResponse:  toUserResponse(&users[i]),
			ResetPassword: derefString(users[i].ResetPassword),
		})
	}
	return result, nil
}

// ────────────────────── Create ──────────────────────

func (s *userService) Create(ctx context.Context, caller scope.Caller, req *dto.CreateUserRequest) (*dto.UserResponse, error) {
	user, err := s.create(ctx, req)
	if err != nil {
		return nil, err
	}
	s.activity.record(ctx, caller, "create_user", "user", fmt.Sprint(user.ID), user.ClassID, map[string]any{"username": user.Username})

	created, err := s.repo.User.GetByID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	resp := toUserResponse(created)
	return &resp, nil
}

func (s *userService) create(ctx context.Context, req *dto.CreateUserRequest) (*model.User, error) {
	username := strings.TrimSpace(req.Username)

	// 检查用户名唯一性
	if _, err := s.repo.User.GetByUsername(ctx, username); err == nil {
		return nil, ErrUsernameExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// 管理员不带班
	classID := req.ClassID.Value
	if req.IsAdmin {
		classID = nil
	}
	if classID != nil {
		if err := s.checkClass(ctx, *classID); err != nil {
			return nil, err
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("密码哈希失败", zap.Error(err))
		return nil, err
	}
	pwd := req.Password
	user := &model.User{
		Username:      username,
		PasswordHash:  string(hash),
		IsAdmin:       req.IsAdmin,
		ClassID:       classID,
		ResetPassword: &pwd,
	}

	// 一个班级同时只有一位班主任
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if classID != nil {
			if _, err := tx.User.ClearClass(ctx, *classID); err != nil {
				return err
			}
		}
		return tx.User.Create(ctx, user)
	})
	if err != nil {
		s.logger.Error("创建用户失败", zap.String("username", username), zap.Error(err))
		return nil, err
	}
	return user, nil
}

// ────────────────────── BatchCreate ──────────────────────

func (s *userService) BatchCreate(ctx context.Context, caller scope.Caller, req *dto.BatchCreateUsersRequest) (*dto.BatchCreateUsersResult, error) {
	result := &dto.BatchCreateUsersResult{
		Created: []dto.UserResponse{},
		Errors:  []dto.ImportRowError{},
	}

	for i := range req.Users {
		item := &req.Users[i]
		user, err := s.create(ctx, item)
		if err != nil {
			if !isUserInputError(err) {
				return nil, err
			}
			result.Errors = append(result.Errors, dto.ImportRowError{
				Row: i + 1, ID: item.Username, Reason: err.Error(),
			})
			continue
		}
		result.Created = append(result.Created, toUserResponse(user))
	}

	if len(result.Created) > 0 {
		s.activity.record(ctx, caller, "batch_create_users", "user", "", nil, map[string]any{"count": len(result.Created)})
	}
	return result, nil
}

// ────────────────────── Update ──────────────────────

func (s *userService) Update(ctx context.Context, caller scope.Caller, id uint, req *dto.UpdateUserRequest) (*dto.UserResponse, error) {
	user, err := s.repo.User.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		s.logger.Error("查询用户失败", zap.Uint("id", id), zap.Error(err))
		return nil, err
	}

	fields := map[string]any{}
	if req.Username != nil {
		name := strings.TrimSpace(*req.Username)
		if name != user.Username {
			if _, err := s.repo.User.GetByUsername(ctx, name); err == nil {
				return nil, ErrUsernameExists
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, err
			}
			fields["username"] = name
		}
	}
	if req.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			s.logger.Error("密码哈希失败", zap.Error(err))
			return nil, err
		}
		fields["password_hash"] = string(hash)
		fields["reset_password"] = *req.Password
	}

	isAdmin := user.IsAdmin
	if req.IsAdmin != nil {
		isAdmin = *req.IsAdmin
		fields["is_admin"] = isAdmin
	}

	var assign *uint
	switch {
	case isAdmin:
		if user.ClassID != nil || req.ClassID.Value != nil {
			fields["class_id"] = nil
		}
	case req.ClassID.Set:
		if req.ClassID.Value != nil {
			if err := s.checkClass(ctx, *req.ClassID.Value); err != nil {
				return nil, err
			}
			assign = req.ClassID.Value
		}
		fields["class_id"] = req.ClassID.Value
	}

	if len(fields) == 0 {
		return nil, ErrNoFieldsToUpdate
	}

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if assign != nil && (user.ClassID == nil || *user.ClassID != *assign) {
			if _, err := tx.User.ClearClass(ctx, *assign); err != nil {
				return err
			}
		}
		return tx.User.UpdateFields(ctx, id, fields)
	})
	if err != nil {
		s.logger.Error("更新用户失败", zap.Uint("id", id), zap.Error(err))
		return nil, err
	}

	s.activity.record(ctx, caller, "update_user", "user", fmt.Sprint(id), nil, nil)

	updated, err := s.repo.User.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toUserResponse(updated)
	return &resp, nil
}

// ────────────────────── Delete ──────────────────────

func (s *userService) Delete(ctx context.Context, caller scope.Caller, id uint) error {
	if caller.UserID == id {
		return ErrUserSelfDelete
	}
	if err := s.repo.User.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		s.logger.Error("删除用户失败", zap.Uint("id", id), zap.Error(err))
		return err
	}
	s.activity.record(ctx, caller, "delete_user", "user", fmt.Sprint(id), nil, nil)
	return nil
}

// ────────────────────── ResetPassword ──────────────────────

func (s *userService) ResetPassword(ctx context.Context, caller scope.Caller, id uint) (*dto.ResetPasswordResponse, error) {
	user, err := s.repo.User.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	pwd, err := generateTempPassword(resetPasswordLength)
	if err != nil {
		s.logger.Error("生成临时密码失败", zap.Error(err))
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("密码哈希失败", zap.Error(err))
		return nil, err
	}

	if err := s.repo.User.UpdateFields(ctx, id, map[string]any{
		"password_hash":  string(hash),
		"reset_password": pwd,
	}); err != nil {
		s.logger.Error("重置密码失败", zap.Uint("id", id), zap.Error(err))
		return nil, err
	}

	s.activity.record(ctx, caller, "reset_password", "user", fmt.Sprint(id), nil, nil)
	return &dto.ResetPasswordResponse{Username: user.Username, NewPassword: pwd}, nil
}

// SetPassword 按用户名设置密码（命令行维护用），password 为空时生成临时密码
func (s *userService) SetPassword(ctx context.Context, username, password string) (string, error) {
	user, err := s.repo.User.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrUserNotFound
		}
		return "", err
	}

	if password == "" {
		if password, err = generateTempPassword(resetPasswordLength); err != nil {
			return "", err
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	if err := s.repo.User.UpdateFields(ctx, user.ID, map[string]any{
		"password_hash":  string(hash),
		"reset_password": password,
	}); err != nil {
		return "", err
	}
	s.logger.Info("已重置用户密码", zap.String("username", user.Username))
	return password, nil
}

// ────────────────────── Import ──────────────────────

// userImportRow 通过校验、待写入的一行
type userImportRow struct {
	Row       int
	Username  string
	ClassID   *uint
	ClassName string
}

// planUserImport 预览与确认共用的校验逻辑，不写库
func (s *userService) planUserImport(ctx context.Context, r io.Reader) ([]userImportRow, []dto.ImportRowError, int, error) {
	rows, err := readSheet(r, "用户名")
	if err != nil {
		return nil, nil, 0, err
	}

	users, err := s.repo.User.List(ctx)
	if err != nil {
		return nil, nil, 0, err
	}
	taken := make(map[string]bool, len(users))
	for _, u := range users {
		taken[u.Username] = true
	}
	classes, err := s.repo.Class.List(ctx)
	if err != nil {
		return nil, nil, 0, err
	}
	classByName := make(map[string]uint, len(classes))
	for _, c := range classes {
		classByName[c.ClassName] = c.ID
	}

	var (
		valid []userImportRow
		errs  = []dto.ImportRowError{}
	)
	for _, row := range rows {
		username := row.Values["用户名"]
		if username == "" {
			errs = append(errs, dto.ImportRowError{Row: row.Row, Reason: "用户名为空"})
			continue
		}
		if taken[username] {
			errs = append(errs, dto.ImportRowError{Row: row.Row, ID: username, Reason: "用户名已存在"})
			continue
		}

		item := userImportRow{Row: row.Row, Username: username}
		if name := row.Values["班级"]; name != "" {
			id, ok := classByName[name]
			if !ok {
				errs = append(errs, dto.ImportRowError{Row: row.Row, ID: username, Reason: "班级不存在，请先创建班级"})
				continue
			}
			item.ClassID = &id
			item.ClassName = name
		}

		taken[username] = true
		valid = append(valid, item)
	}
	return valid, errs, len(rows), nil
}

func (s *userService) PreviewImport(ctx context.Context, filename string, r io.Reader) (*dto.ImportPreview, error) {
	name, err := s.uploads.Save(uploadKindUsers, filename, r)
	if err != nil {
		return nil, err
	}
	f, err := s.uploads.Open(uploadKindUsers, name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	valid, errs, total, err := s.planUserImport(ctx, f)
	if err != nil {
		return nil, err
	}

	preview := &dto.ImportPreview{
		FilePath: name,
		Total:    total,
		Added:    len(valid),
		Skipped:  len(errs),
		Errors:   errs,
		Rows:     make([]map[string]any, 0, len(valid)),
	}
	for _, v := range valid {
		preview.Rows = append(preview.Rows, map[string]any{
			"row":        v.Row,
			"username":   v.Username,
			"class_id":   v.ClassID,
			"class_name": v.ClassName,
		})
	}
	return preview, nil
}

func (s *userService) ConfirmImport(ctx context.Context, caller scope.Caller, filePath string) (*dto.UserImportResult, error) {
	f, err := s.uploads.Open(uploadKindUsers, filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	valid, errs, total, err := s.planUserImport(ctx, f)
	if err != nil {
		return nil, err
	}

	result := &dto.UserImportResult{
		ImportResult: dto.ImportResult{
			Total:  total,
			Failed: len(errs),
			Errors: errs,
		},
		Passwords: []dto.ImportedPassword{},
	}

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		for _, v := range valid {
			pwd, err := generateTempPassword(resetPasswordLength)
			if err != nil {
				return err
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			if v.ClassID != nil {
				if _, err := tx.User.ClearClass(ctx, *v.ClassID); err != nil {
					return err
				}
			}
			user := &model.User{
				Username:      v.Username,
				PasswordHash:  string(hash),
				ClassID:       v.ClassID,
				ResetPassword: &pwd,
			}
			if err := tx.User.Create(ctx, user); err != nil {
				return fmt.Errorf("第 %d 行写入数据库失败，已回滚全部导入: %w", v.Row, err)
			}
			result.Passwords = append(result.Passwords, dto.ImportedPassword{
				Username: v.Username, ClassName: v.ClassName, Password: pwd,
			})
		}
		return nil
	})
	if err != nil {
		s.logger.Error("导入用户失败，事务回滚", zap.Error(err))
		return nil, err
	}

	result.Added = len(result.Passwords)
	result.Success = result.Added
	s.activity.record(ctx, caller, "import_users", "user", "", nil, map[string]any{"count": result.Added})
	return result, nil
}

// ────────────────────── Template / Export ──────────────────────

func (s *userService) Template() (*bytes.Buffer, error) {
	return workbook("班主任导入模板", []string{"用户名", "班级"}, [][]any{
		{"zhangsan", "一年级1班"},
		{"lisi", ""},
	})
}

func (s *userService) Export(ctx context.Context) (*bytes.Buffer, error) {
	users, err := s.repo.User.List(ctx)
	if err != nil {
		s.logger.Error("导出用户失败", zap.Error(err))
		return nil, err
	}

	rows := make([][]any, 0, len(users))
	for _, u := range users {
		pwd := derefString(u.ResetPassword)
		if pwd == "" {
			pwd = hiddenPassword
		}
		role := "班主任"
		if u.IsAdmin {
			role = "管理员"
		}
		var classID any = ""
		className := ""
		if u.ClassID != nil {
			classID = *u.ClassID
		}
		if u.Class != nil {
			className = u.Class.ClassName
		}
		rows = append(rows, []any{u.ID, u.Username, pwd, role, classID, className})
	}
	return workbook("用户列表", []string{"ID", "用户名", "密码", "角色", "班级ID", "班级名称"}, rows)
}

// ── 内部辅助方法 ──

func (s *userService) checkClass(ctx context.Context, classID uint) error {
	if _, err := s.repo.Class.GetByID(ctx, classID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrClassNotFound
		}
		return err
	}
	return nil
}

// isUserInputError 可按行报告、不中断批量操作的错误
func isUserInputError(err error) bool {
	return errors.Is(err, ErrUsernameExists) || errors.Is(err, ErrClassNotFound)
}

// generateTempPassword 生成指定长度的随机密码（保证包含字母和数字）
func generateTempPassword(length int) (string, error) {
	const letters = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ"
	const digits = "23456789"
	const all = letters + digits

	if length < 4 {
		length = 6
	}

	result := make([]byte, length)

	// 保证至少1个字母+1个数字
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(letters))))
	if err != nil {
		return "", err
	}
	result[0] = letters[n.Int64()]

	n, err = rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
	if err != nil {
		return "", err
	}
	result[1] = digits[n.Int64()]

	for i := 2; i < length; i++ {
		n, err = rand.Int(rand.Reader, big.NewInt(int64(len(all))))
		if err != nil {
			return "", err
		}
		result[i] = all[n.Int64()]
	}

	// Fisher-Yates 洗牌
	for i := length - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		result[i], result[j.Int64()] = result[j.Int64()], result[i]
	}

	return string(result), nil
}
