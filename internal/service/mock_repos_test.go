package service

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ysxx86/ClassMaster/config"
	"github.com/ysxx86/ClassMaster/internal/model"
	"github.com/ysxx86/ClassMaster/internal/repository"
	"github.com/ysxx86/ClassMaster/internal/scope"
	"github.com/ysxx86/ClassMaster/pkg/database"
	"github.com/ysxx86/ClassMaster/pkg/redis"
)

// ── Mock UserRepository ──

type mockUserRepo struct {
	users  map[uint]*model.User
	nextID uint
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[uint]*model.User), nextID: 1}
}

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	for _, u := range m.users {
		if u.Username == user.Username {
			return gorm.ErrDuplicatedKey
		}
	}
	if user.ID == 0 {
		user.ID = m.nextID
	}
	m.nextID = user.ID + 1
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id uint) (*model.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) List(_ context.Context) ([]model.User, error) {
	var result []model.User
	for _, u := range m.users {
		result = append(result, *u)
	}
	return result, nil
}

func (m *mockUserRepo) ListTeachers(_ context.Context) ([]model.User, error) {
	var result []model.User
	for _, u := range m.users {
		if !u.IsAdmin {
			result = append(result, *u)
		}
	}
	return result, nil
}

func (m *mockUserRepo) ListByClass(_ context.Context, classID uint) ([]model.User, error) {
	var result []model.User
	for _, u := range m.users {
		if u.ClassID != nil && *u.ClassID == classID {
			result = append(result, *u)
		}
	}
	return result, nil
}

func (m *mockUserRepo) CountAdmins(_ context.Context) (int64, error) {
	var n int64
	for _, u := range m.users {
		if u.IsAdmin {
			n++
		}
	}
	return n, nil
}

func (m *mockUserRepo) UpdateFields(_ context.Context, id uint, fields map[string]any) error {
	u, ok := m.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for k, v := range fields {
		switch k {
		case "password_hash":
			u.PasswordHash = v.(string)
		case "reset_password":
			s := v.(string)
			u.ResetPassword = &s
		case "is_admin":
			u.IsAdmin = v.(bool)
		case "class_id":
			if id, ok := v.(*uint); ok {
				u.ClassID = id
			} else {
				u.ClassID = nil
			}
		case "username":
			u.Username = v.(string)
		}
	}
	return nil
}

func (m *mockUserRepo) ClearClass(_ context.Context, classID uint) (int64, error) {
	var n int64
	for _, u := range m.users {
		if u.ClassID != nil && *u.ClassID == classID {
			u.ClassID = nil
			n++
		}
	}
	return n, nil
}

func (m *mockUserRepo) Delete(_ context.Context, id uint) error {
	if _, ok := m.users[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.users, id)
	return nil
}

// ── Mock TokenBlacklist ──

type mockBlacklist struct {
	tokens map[string]time.Duration
	err    error
}

func newMockBlacklist() *mockBlacklist {
	return &mockBlacklist{tokens: make(map[string]time.Duration)}
}

func (m *mockBlacklist) BlacklistToken(_ context.Context, jti string, ttl time.Duration) error {
	if m.err != nil {
		return m.err
	}
	m.tokens[jti] = ttl
	return nil
}

// ── Fake ExportRegistry ──

// fakeRegistry 内存版导出取消标记；cancelAfter 次查询后自动视为已取消
type fakeRegistry struct {
	mu          sync.Mutex
	states      map[string]string
	checks      int
	cancelAfter int
	finished    []string
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{states: make(map[string]string)}
}

func (f *fakeRegistry) RegisterExport(_ context.Context, id string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[id] = "active"
	return nil
}

func (f *fakeRegistry) CancelExport(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.states[id]; !ok {
		return redis.ErrExportNotFound
	}
	f.states[id] = "cancelled"
	return nil
}

func (f *fakeRegistry) IsExportCancelled(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	if f.cancelAfter > 0 && f.checks >= f.cancelAfter {
		f.states[id] = "cancelled"
	}
	return f.states[id] == "cancelled", nil
}

func (f *fakeRegistry) FinishExport(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.states, id)
	f.finished = append(f.finished, id)
	return nil
}

// ═══════════════════════════════════════════════════════════
// SQLite 测试库
// ═══════════════════════════════════════════════════════════

func setupTestRepo(t *testing.T) *repository.Repository {
	t.Helper()
	cfg := &config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "students.db")}
	db, err := database.NewDB(cfg, "warn", zap.NewNop())
	if err != nil {
		t.Fatalf("打开数据库失败: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.RunMigrations(sqlDB, zap.NewNop()); err != nil {
		t.Fatalf("迁移失败: %v", err)
	}
	return repository.NewRepository(db)
}

func newTestUploads(t *testing.T) *UploadStore {
	t.Helper()
	return NewUploadStore(filepath.Join(t.TempDir(), "uploads"), time.Hour, zap.NewNop())
}

func seedClass(t *testing.T, repo *repository.Repository, name string) *model.Class {
	t.Helper()
	c := &model.Class{ClassName: name}
	if err := repo.Class.Create(context.Background(), c); err != nil {
		t.Fatalf("创建班级失败: %v", err)
	}
	return c
}

func seedStudent(t *testing.T, repo *repository.Repository, id, name string, classID uint) *model.Student {
	t.Helper()
	cid := classID
	s := &model.Student{ID: id, ClassID: &cid, Name: name, Gender: "男", Semester: model.DefaultSemester}
	if err := repo.Student.Create(context.Background(), s); err != nil {
		t.Fatalf("创建学生失败: %v", err)
	}
	return s
}

// seedUser 写入真实用户并返回其身份，供需要外键的场景使用
func seedUser(t *testing.T, repo *repository.Repository, username string, isAdmin bool, classID *uint) scope.Caller {
	t.Helper()
	u := &model.User{Username: username, PasswordHash: "x", IsAdmin: isAdmin, ClassID: classID}
	if err := repo.User.Create(context.Background(), u); err != nil {
		t.Fatalf("创建用户失败: %v", err)
	}
	return callerOf(u)
}

func adminCaller() scope.Caller {
	return scope.Caller{UserID: 1, Username: "admin", IsAdmin: true}
}

func teacherCaller(classID uint) scope.Caller {
	return scope.Caller{UserID: 2, Username: "teacher", ClassID: scope.Ptr(classID)}
}

// xlsxFile 生成测试用 Excel，首行为表头
func xlsxFile(t *testing.T, rows ...[]string) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for r, row := range rows {
		for c, v := range row {
			f.SetCellValue("Sheet1", cell(colName(c), r+1), v)
		}
	}
	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		t.Fatalf("生成 Excel 失败: %v", err)
	}
	return buf
}
