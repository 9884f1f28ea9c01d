package repository_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ysxx86/ClassMaster/config"
	"github.com/ysxx86/ClassMaster/internal/model"
	"github.com/ysxx86/ClassMaster/internal/repository"
	"github.com/ysxx86/ClassMaster/pkg/database"
)

// ═══════════════════════════════════════════════════════════
// Test Setup
// ═══════════════════════════════════════════════════════════

func setupRepo(t *testing.T) (*repository.Repository, *gorm.DB) {
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
	return repository.NewRepository(db), db
}

func createClass(t *testing.T, repo *repository.Repository, name string) *model.Class {
	t.Helper()
	c := &model.Class{ClassName: name}
	if err := repo.Class.Create(context.Background(), c); err != nil {
		t.Fatalf("创建班级失败: %v", err)
	}
	return c
}

func uptr(v uint) *uint { return &v }

// ═══════════════════════════════════════════════════════════
// Test: Composite Key
// ═══════════════════════════════════════════════════════════

func TestStudent_SameNumberInTwoClasses(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()
	c1 := createClass(t, repo, "三年1班")
	c2 := createClass(t, repo, "三年2班")

	for _, cid := range []uint{c1.ID, c2.ID} {
		s := &model.Student{ID: "42", ClassID: uptr(cid), Name: "张三", Gender: "男", Semester: model.DefaultSemester}
		if err := repo.Student.Create(ctx, s); err != nil {
			t.Fatalf("创建学生失败: %v", err)
		}
	}

	// 同班重复学号应违反主键
	dup := &model.Student{ID: "42", ClassID: uptr(c1.ID), Name: "张三", Gender: "男"}
	if err := repo.Student.Create(ctx, dup); err == nil {
		t.Error("期望同班重复学号创建失败")
	}

	rows, err := repo.Student.ListByNumber(ctx, "42")
	if err != nil || len(rows) != 2 {
		t.Fatalf("期望 2 行，实际: %d %v", len(rows), err)
	}
	if rows[0].ClassName() != "三年1班" {
		t.Errorf("期望预加载班级名，实际: %q", rows[0].ClassName())
	}

	n, err := repo.Student.UpdateFields(ctx, "42", uptr(c2.ID), map[string]any{"yuwen": "优"})
	if err != nil || n != 1 {
		t.Fatalf("期望更新 1 行，实际: %d %v", n, err)
	}
	s1, _ := repo.Student.Get(ctx, "42", uptr(c1.ID))
	s2, _ := repo.Student.Get(ctx, "42", uptr(c2.ID))
	if s1.Yuwen != "" || s2.Yuwen != "优" {
		t.Errorf("更新应只影响指定班级，实际: %q / %q", s1.Yuwen, s2.Yuwen)
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Class Delete
// ═══════════════════════════════════════════════════════════

func TestClassDelete_NullsDependents(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()
	c := createClass(t, repo, "三年1班")

	if err := repo.Student.Create(ctx, &model.Student{ID: "1", ClassID: uptr(c.ID), Name: "李四", Gender: "女"}); err != nil {
		t.Fatalf("创建学生失败: %v", err)
	}
	teacher := &model.User{Username: "t1", PasswordHash: "x", ClassID: uptr(c.ID)}
	if err := repo.User.Create(ctx, teacher); err != nil {
		t.Fatalf("创建用户失败: %v", err)
	}

	err := repo.Transaction(ctx, func(tx *repository.Repository) error {
		if _, err := tx.Student.ClearClass(ctx, c.ID); err != nil {
			return err
		}
		if _, err := tx.User.ClearClass(ctx, c.ID); err != nil {
			return err
		}
		return tx.Class.Delete(ctx, c.ID)
	})
	if err != nil {
		t.Fatalf("删除班级失败: %v", err)
	}

	s, err := repo.Student.Get(ctx, "1", nil)
	if err != nil {
		t.Fatalf("期望学生保留且未分班，实际: %v", err)
	}
	if s.ClassID != nil {
		t.Errorf("期望 class_id 为空，实际: %v", *s.ClassID)
	}
	u, _ := repo.User.GetByID(ctx, teacher.ID)
	if u.ClassID != nil {
		t.Errorf("期望班主任 class_id 为空，实际: %v", *u.ClassID)
	}
}

func TestTransaction_Rollback(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	sentinel := errors.New("boom")
	err := repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.Class.Create(ctx, &model.Class{ClassName: "回滚班"}); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("期望返回 fn 的错误，实际: %v", err)
	}
	if _, err := repo.Class.GetByName(ctx, "回滚班"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("期望回滚后查不到班级，实际: %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()
	createClass(t, repo, "一年级1班")

	err := repo.Class.Create(ctx, &model.Class{ClassName: "一年级1班"})
	if !repository.IsUniqueViolation(err) {
		t.Errorf("重复班级名应识别为唯一约束冲突，实际: %v", err)
	}
	if repository.IsUniqueViolation(nil) || repository.IsUniqueViolation(errors.New("boom")) {
		t.Error("非约束错误不应识别为冲突")
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Settings
// ═══════════════════════════════════════════════════════════

func TestSetting_Upsert(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	if _, ok, err := repo.Setting.Get(ctx, model.SettingDeepSeekAPIKey); err != nil || ok {
		t.Fatalf("未设置时应 ok=false，实际: %v %v", ok, err)
	}
	for _, v := range []string{"sk-1", "sk-2", ""} {
		if err := repo.Setting.Set(ctx, model.SettingDeepSeekAPIKey, v); err != nil {
			t.Fatalf("Set(%q) 失败: %v", v, err)
		}
		got, ok, err := repo.Setting.Get(ctx, model.SettingDeepSeekAPIKey)
		if err != nil || !ok || got != v {
			t.Errorf("期望 %q，实际: %q ok=%v err=%v", v, got, ok, err)
		}
	}
	all, _ := repo.Setting.All(ctx)
	if len(all) != 1 {
		t.Errorf("覆盖写入不应产生新行，实际: %v", all)
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Aggregates
// ═══════════════════════════════════════════════════════════

func TestStudent_Aggregates(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()
	c1 := createClass(t, repo, "一班")
	c2 := createClass(t, repo, "二班")

	students := []model.Student{
		{ID: "1", ClassID: uptr(c1.ID), Name: "a", Gender: "男", Yuwen: "优"},
		{ID: "2", ClassID: uptr(c1.ID), Name: "b", Gender: "女", Yuwen: "优"},
		{ID: "3", ClassID: uptr(c1.ID), Name: "c", Gender: "男", Yuwen: "良"},
		{ID: "4", ClassID: uptr(c2.ID), Name: "d", Gender: "女", Yuwen: "待及格"},
	}
	for i := range students {
		if err := repo.Student.Create(ctx, &students[i]); err != nil {
			t.Fatalf("创建学生失败: %v", err)
		}
	}

	counts, err := repo.Student.CountByClass(ctx)
	if err != nil || counts[c1.ID] != 3 || counts[c2.ID] != 1 {
		t.Errorf("期望 3/1，实际: %v %v", counts, err)
	}

	dist, err := repo.Student.GradeDistribution(ctx, uptr(c1.ID), "yuwen")
	if err != nil || dist["优"] != 2 || dist["良"] != 1 || dist["待及格"] != 0 {
		t.Errorf("成绩分布不符，实际: %v %v", dist, err)
	}
	if _, err := repo.Student.GradeDistribution(ctx, nil, "yuwen; DROP TABLE students"); err == nil {
		t.Error("期望非法学科被拒绝")
	}

	n, err := repo.Student.UpdateAll(ctx, uptr(c2.ID), map[string]any{"pinzhi": nil})
	if err != nil || n != 1 {
		t.Errorf("期望清空 1 行，实际: %d %v", n, err)
	}

	list, _ := repo.Student.List(ctx, repository.StudentFilter{ClassID: uptr(c1.ID)})
	if len(list) != 3 {
		t.Errorf("期望一班 3 人，实际: %d", len(list))
	}
}

func TestTodo_PendingFirst(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()
	c := createClass(t, repo, "一班")

	done := &model.Todo{Title: "done", Status: model.TodoCompleted, ClassID: uptr(c.ID)}
	open := &model.Todo{Title: "open", Status: model.TodoPending, ClassID: uptr(c.ID)}
	for _, td := range []*model.Todo{done, open} {
		if err := repo.Todo.Create(ctx, td); err != nil {
			t.Fatalf("创建待办失败: %v", err)
		}
	}

	todos, err := repo.Todo.List(ctx, uptr(c.ID), "")
	if err != nil || len(todos) != 2 || todos[0].Title != "open" {
		t.Errorf("期望未完成待办在前，实际: %+v %v", todos, err)
	}
	n, _ := repo.Todo.CountPending(ctx, uptr(c.ID))
	if n != 1 {
		t.Errorf("期望 1 个待办，实际: %d", n)
	}
}
