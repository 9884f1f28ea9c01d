package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ysxx86/ClassMaster/internal/model"
	"github.com/ysxx86/ClassMaster/internal/repository"
	"github.com/ysxx86/ClassMaster/internal/scope"
)

func setupTestClassService(t *testing.T) (ClassService, *repository.Repository) {
	t.Helper()
	repo := setupTestRepo(t)
	return NewClassService(repo, zap.NewNop()), repo
}

// ── Create / List ──

func TestClassService_Create(t *testing.T) {
	svc, _ := setupTestClassService(t)
	ctx := context.Background()

	resp, err := svc.Create(ctx, adminCaller(), "  一年级1班 ")
	if err != nil {
		t.Fatalf("Create 应成功: %v", err)
	}
	if resp.ClassName != "一年级1班" {
		t.Errorf("期望去除首尾空格，实际 %q", resp.ClassName)
	}
	if resp.TeacherName != teacherUnassigned {
		t.Errorf("期望 teacher_name=%s，实际 %s", teacherUnassigned, resp.TeacherName)
	}

	if _, err := svc.Create(ctx, adminCaller(), "一年级1班"); !errors.Is(err, ErrClassExists) {
		t.Errorf("期望 ErrClassExists，实际: %v", err)
	}
	if _, err := svc.Create(ctx, adminCaller(), "   "); !errors.Is(err, ErrClassNameEmpty) {
		t.Errorf("期望 ErrClassNameEmpty，实际: %v", err)
	}
}

// staleClassRepo 查重总是查不到，模拟两个请求同时通过查重
type staleClassRepo struct {
	repository.ClassRepository
}

func (staleClassRepo) GetByName(context.Context, string) (*model.Class, error) {
	return nil, gorm.ErrRecordNotFound
}

func TestClassService_Create_ConcurrentDuplicate(t *testing.T) {
	svc, repo := setupTestClassService(t)
	ctx := context.Background()
	seedClass(t, repo, "一年级1班")
	other := seedClass(t, repo, "一年级2班")
	repo.Class = staleClassRepo{ClassRepository: repo.Class}

	if _, err := svc.Create(ctx, adminCaller(), "一年级1班"); !errors.Is(err, ErrClassExists) {
		t.Errorf("唯一约束冲突应返回 ErrClassExists，实际: %v", err)
	}
	if _, err := svc.Rename(ctx, adminCaller(), other.ID, "一年级1班"); !errors.Is(err, ErrClassExists) {
		t.Errorf("改名冲突应返回 ErrClassExists，实际: %v", err)
	}
}

func TestClassService_List_CountsAndTeacher(t *testing.T) {
	svc, repo := setupTestClassService(t)
	ctx := context.Background()
	c := seedClass(t, repo, "一年级1班")
	seedStudent(t, repo, "1", "张三", c.ID)
	seedStudent(t, repo, "2", "李四", c.ID)
	seedUser(t, repo, "wang", false, scope.Ptr(c.ID))

	classes, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List 应成功: %v", err)
	}
	if len(classes) != 1 {
		t.Fatalf("期望 1 个班级，实际 %d", len(classes))
	}
	if classes[0].StudentCount != 2 {
		t.Errorf("期望 student_count=2，实际 %d", classes[0].StudentCount)
	}
	if classes[0].TeacherName != "wang" {
		t.Errorf("期望 teacher_name=wang，实际 %s", classes[0].TeacherName)
	}
}

// ── Delete ──

// 删除班级时学生与班主任的 class_id 置空
func TestClassService_Delete_NullsReferences(t *testing.T) {
	svc, repo := setupTestClassService(t)
	ctx := context.Background()
	c := seedClass(t, repo, "一年级1班")
	seedStudent(t, repo, "1", "张三", c.ID)
	teacher := seedUser(t, repo, "wang", false, scope.Ptr(c.ID))

	name, err := svc.Delete(ctx, adminCaller(), c.ID)
	if err != nil {
		t.Fatalf("Delete 应成功: %v", err)
	}
	if name != "一年级1班" {
		t.Errorf("期望返回班级名，实际 %s", name)
	}

	rows, _ := repo.Student.ListByNumber(ctx, "1")
	if len(rows) != 1 || rows[0].ClassID != nil {
		t.Errorf("期望学生保留且 class_id 为空，实际: %+v", rows)
	}
	u, _ := repo.User.GetByID(ctx, teacher.UserID)
	if u.ClassID != nil {
		t.Errorf("期望班主任 class_id 为空，实际 %v", *u.ClassID)
	}

	if _, err := svc.Delete(ctx, adminCaller(), c.ID); !errors.Is(err, ErrClassNotFound) {
		t.Errorf("期望 ErrClassNotFound，实际: %v", err)
	}
}

// ── Preview / BatchCreate ──

func TestClassService_PreviewAndBatchCreate(t *testing.T) {
	svc, repo := setupTestClassService(t)
	ctx := context.Background()
	seedClass(t, repo, "一年级1班")
	names := []string{"一年级1班", "一年级2班", "一年级2班", " ", "一年级3班"}

	preview, err := svc.Preview(ctx, names)
	if err != nil {
		t.Fatalf("Preview 应成功: %v", err)
	}
	if preview.Stats.Total != 3 || preview.Stats.New != 2 || preview.Stats.Existing != 1 {
		t.Errorf("预览统计不符: %+v", preview.Stats)
	}

	result, err := svc.BatchCreate(ctx, adminCaller(), names)
	if err != nil {
		t.Fatalf("BatchCreate 应成功: %v", err)
	}
	if len(result.Created) != 2 {
		t.Errorf("期望新建 2 个，实际 %d", len(result.Created))
	}
	if len(result.Skipped) != 1 || result.Skipped[0].Reason != classStatusExists {
		t.Errorf("期望跳过 1 个已存在班级，实际: %+v", result.Skipped)
	}
}

// ── AssignTeacher ──

func TestClassService_AssignTeacher(t *testing.T) {
	svc, repo := setupTestClassService(t)
	ctx := context.Background()
	c := seedClass(t, repo, "一年级1班")
	old := seedUser(t, repo, "old", false, scope.Ptr(c.ID))
	newer := seedUser(t, repo, "new", false, nil)

	result, err := svc.AssignTeacher(ctx, adminCaller(), c.ID, &newer.UserID)
	if err != nil {
		t.Fatalf("AssignTeacher 应成功: %v", err)
	}
	if result.TeacherName != "new" {
		t.Errorf("期望 teacher_name=new，实际 %s", result.TeacherName)
	}

	holders, _ := repo.User.ListByClass(ctx, c.ID)
	if len(holders) != 1 || holders[0].ID != newer.UserID {
		t.Errorf("期望班级仅有新班主任，实际: %+v", holders)
	}
	u, _ := repo.User.GetByID(ctx, old.UserID)
	if u.ClassID != nil {
		t.Error("期望原班主任被解除分配")
	}

	// 空 teacher_id 表示取消分配
	if _, err := svc.AssignTeacher(ctx, adminCaller(), c.ID, nil); err != nil {
		t.Fatalf("取消分配应成功: %v", err)
	}
	holders, _ = repo.User.ListByClass(ctx, c.ID)
	if len(holders) != 0 {
		t.Errorf("期望无班主任，实际 %d 个", len(holders))
	}
}

func TestClassService_AssignTeacher_Refusals(t *testing.T) {
	svc, repo := setupTestClassService(t)
	ctx := context.Background()
	c := seedClass(t, repo, "一年级1班")
	admin := seedUser(t, repo, "boss", true, nil)

	if _, err := svc.AssignTeacher(ctx, adminCaller(), c.ID, &admin.UserID); !errors.Is(err, ErrAdminAsTeacher) {
		t.Errorf("期望 ErrAdminAsTeacher，实际: %v", err)
	}
	missing := uint(999)
	if _, err := svc.AssignTeacher(ctx, adminCaller(), c.ID, &missing); !errors.Is(err, ErrTeacherNotFound) {
		t.Errorf("期望 ErrTeacherNotFound，实际: %v", err)
	}
	if _, err := svc.AssignTeacher(ctx, adminCaller(), 999, nil); !errors.Is(err, ErrClassNotFound) {
		t.Errorf("期望 ErrClassNotFound，实际: %v", err)
	}
}

func TestClassService_Teachers(t *testing.T) {
	svc, repo := setupTestClassService(t)
	ctx := context.Background()
	c := seedClass(t, repo, "一年级1班")
	seedUser(t, repo, "boss", true, nil)
	seedUser(t, repo, "wang", false, scope.Ptr(c.ID))
	seedUser(t, repo, "li", false, nil)

	teachers, err := svc.Teachers(ctx)
	if err != nil {
		t.Fatalf("Teachers 应成功: %v", err)
	}
	if len(teachers) != 2 {
		t.Fatalf("期望 2 位班主任（不含管理员），实际 %d", len(teachers))
	}
	status := map[string]string{}
	for _, tc := range teachers {
		status[tc.Username] = tc.Status
	}
	if status["wang"] != teacherAssigned || status["li"] != teacherUnassigned {
		t.Errorf("分配状态不符: %v", status)
	}
}
