package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/ysxx86/ClassMaster/internal/dto"
	"github.com/ysxx86/ClassMaster/internal/repository"
	"github.com/ysxx86/ClassMaster/internal/scope"
)

func setupTestStudentService(t *testing.T) (StudentService, *repository.Repository) {
	t.Helper()
	repo := setupTestRepo(t)
	return NewStudentService(repo, newTestUploads(t), zap.NewNop()), repo
}

// ── Create ──

func TestStudentService_Create_TeacherUsesOwnClass(t *testing.T) {
	svc, repo := setupTestStudentService(t)
	ctx := context.Background()
	c := seedClass(t, repo, "一年级1班")

	resp, err := svc.Create(ctx, teacherCaller(c.ID), &dto.CreateStudentRequest{ID: " 1001 ", Name: "张三", Gender: "男"})
	if err != nil {
		t.Fatalf("Create 应成功: %v", err)
	}
	if resp.ID != "1001" || resp.ClassID == nil || *resp.ClassID != c.ID {
		t.Errorf("期望学号 1001 且落在本班，实际: id=%s class=%v", resp.ID, resp.ClassID)
	}
	if resp.ClassName != "一年级1班" {
		t.Errorf("期望 class_name=一年级1班，实际 %s", resp.ClassName)
	}
}

func TestStudentService_Create_TeacherOtherClass(t *testing.T) {
	svc, repo := setupTestStudentService(t)
	c1 := seedClass(t, repo, "一年级1班")
	c2 := seedClass(t, repo, "一年级2班")

	_, err := svc.Create(context.Background(), teacherCaller(c1.ID), &dto.CreateStudentRequest{
		ID: "1001", Name: "张三", Gender: "男", ClassID: dto.ID(c2.ID),
	})
	if !errors.Is(err, ErrTeacherOwnClass) {
		t.Errorf("期望 ErrTeacherOwnClass，实际: %v", err)
	}
}

func TestStudentService_Create_AdminNeedsClass(t *testing.T) {
	svc, _ := setupTestStudentService(t)

	_, err := svc.Create(context.Background(), adminCaller(), &dto.CreateStudentRequest{ID: "1001", Name: "张三", Gender: "男"})
	if !errors.Is(err, scope.ErrClassRequired) {
		t.Errorf("期望 ErrClassRequired，实际: %v", err)
	}
}

// 学号在班级内唯一，不同班级可重复
func TestStudentService_Create_DuplicateInClass(t *testing.T) {
	svc, repo := setupTestStudentService(t)
	ctx := context.Background()
	c1 := seedClass(t, repo, "一年级1班")
	c2 := seedClass(t, repo, "一年级2班")
	seedStudent(t, repo, "1001", "张三", c1.ID)

	_, err := svc.Create(ctx, adminCaller(), &dto.CreateStudentRequest{ID: "1001", Name: "李四", Gender: "女", ClassID: dto.ID(c1.ID)})
	var exists *StudentExistsError
	if !errors.As(err, &exists) || exists.ID != "1001" {
		t.Fatalf("期望 StudentExistsError，实际: %v", err)
	}
	if !errors.Is(err, ErrStudentExists) {
		t.Error("StudentExistsError 应匹配 ErrStudentExists")
	}

	if _, err := svc.Create(ctx, adminCaller(), &dto.CreateStudentRequest{ID: "1001", Name: "李四", Gender: "女", ClassID: dto.ID(c2.ID)}); err != nil {
		t.Errorf("其他班级同学号应允许: %v", err)
	}
}

// ── List / Get ──

func TestStudentService_List_Scope(t *testing.T) {
	svc, repo := setupTestStudentService(t)
	ctx := context.Background()
	c1 := seedClass(t, repo, "一年级1班")
	c2 := seedClass(t, repo, "一年级2班")
	seedStudent(t, repo, "1", "张三", c1.ID)
	seedStudent(t, repo, "2", "李四", c2.ID)

	all, err := svc.List(ctx, adminCaller(), nil)
	if err != nil || len(all) != 2 {
		t.Fatalf("管理员期望看到 2 名学生，实际 %d: %v", len(all), err)
	}
	own, err := svc.List(ctx, teacherCaller(c1.ID), nil)
	if err != nil || len(own) != 1 || own[0].ID != "1" {
		t.Errorf("班主任只能看到本班学生，实际: %+v %v", own, err)
	}
	if _, err := svc.List(ctx, teacherCaller(c1.ID), scope.Ptr(c2.ID)); !errors.Is(err, scope.ErrClassMismatch) {
		t.Errorf("期望 ErrClassMismatch，实际: %v", err)
	}
}

func TestStudentService_List_NoClassAssigned(t *testing.T) {
	svc, _ := setupTestStudentService(t)

	_, err := svc.List(context.Background(), scope.Caller{UserID: 2, Username: "t"}, nil)
	if !errors.Is(err, scope.ErrNoClassAssigned) {
		t.Errorf("期望 ErrNoClassAssigned，实际: %v", err)
	}
}

func TestStudentService_Get_Ambiguous(t *testing.T) {
	svc, repo := setupTestStudentService(t)
	ctx := context.Background()
	c1 := seedClass(t, repo, "一年级1班")
	c2 := seedClass(t, repo, "一年级2班")
	seedStudent(t, repo, "1001", "张三", c1.ID)
	seedStudent(t, repo, "1001", "李四", c2.ID)

	if _, err := svc.Get(ctx, adminCaller(), "1001", nil); !errors.Is(err, scope.ErrStudentAmbiguous) {
		t.Errorf("期望 ErrStudentAmbiguous，实际: %v", err)
	}
	resp, err := svc.Get(ctx, adminCaller(), "1001", scope.Ptr(c2.ID))
	if err != nil || resp.Name != "李四" {
		t.Errorf("指定班级后应定位到李四: %+v %v", resp, err)
	}
	// 班主任无需指定班级
	resp, err = svc.Get(ctx, teacherCaller(c1.ID), "1001", nil)
	if err != nil || resp.Name != "张三" {
		t.Errorf("班主任应定位到本班张三: %+v %v", resp, err)
	}
}

// ── Update / Delete ──

func TestStudentService_Update(t *testing.T) {
	svc, repo := setupTestStudentService(t)
	ctx := context.Background()
	c := seedClass(t, repo, "一年级1班")
	seedStudent(t, repo, "1001", "张三", c.ID)

	height := 132.5
	resp, err := svc.Update(ctx, teacherCaller(c.ID), "1001", &dto.UpdateStudentRequest{Name: strPtr(" 张小三 "), Height: &height})
	if err != nil {
		t.Fatalf("Update 应成功: %v", err)
	}
	if resp.Name != "张小三" || resp.Height == nil || *resp.Height != height {
		t.Errorf("更新结果不符: %+v", resp.Student)
	}

	if _, err := svc.Update(ctx, teacherCaller(c.ID), "1001", &dto.UpdateStudentRequest{}); !errors.Is(err, ErrNoFieldsToUpdate) {
		t.Errorf("期望 ErrNoFieldsToUpdate，实际: %v", err)
	}
}

func TestStudentService_Delete_Forbidden(t *testing.T) {
	svc, repo := setupTestStudentService(t)
	ctx := context.Background()
	c1 := seedClass(t, repo, "一年级1班")
	c2 := seedClass(t, repo, "一年级2班")
	seedStudent(t, repo, "1001", "张三", c2.ID)

	if err := svc.Delete(ctx, teacherCaller(c1.ID), "1001", nil); !errors.Is(err, scope.ErrStudentForbidden) {
		t.Errorf("期望 ErrStudentForbidden，实际: %v", err)
	}
	if err := svc.Delete(ctx, adminCaller(), "1001", nil); err != nil {
		t.Fatalf("管理员删除应成功: %v", err)
	}
	if _, err := svc.Get(ctx, adminCaller(), "1001", nil); !errors.Is(err, scope.ErrStudentNotFound) {
		t.Errorf("期望 ErrStudentNotFound，实际: %v", err)
	}
}

// ── Import ──

func TestStudentService_Import_PreviewThenConfirm(t *testing.T) {
	svc, repo := setupTestStudentService(t)
	ctx := context.Background()
	c := seedClass(t, repo, "一年级1班")
	seedStudent(t, repo, "1001", "张三", c.ID)

	file := xlsxFile(t,
		[]string{"学号", "姓名", "班级", "性别", "身高"},
		[]string{"1001", "张三丰", "一年级1班", "男", "130"},
		[]string{"1002", "李四", "一年级1班", "女", "-"},
		[]string{"1003", "王五", "不存在的班", "男", ""},
		[]string{"", "赵六", "一年级1班", "男", ""},
	)

	preview, err := svc.PreviewImport(ctx, adminCaller(), nil, "students.xlsx", file)
	if err != nil {
		t.Fatalf("PreviewImport 应成功: %v", err)
	}
	if preview.Total != 4 || preview.Added != 1 || preview.Updated != 1 || preview.Skipped != 2 {
		t.Errorf("预览统计不符: %+v", preview)
	}

	result, err := svc.ConfirmImport(ctx, adminCaller(), &dto.ConfirmImportRequest{FilePath: preview.FilePath})
	if err != nil {
		t.Fatalf("ConfirmImport 应成功: %v", err)
	}
	if result.Added != 1 || result.Updated != 1 || result.Success != 2 || result.Total != preview.Total {
		t.Errorf("导入结果不符: %+v", result)
	}
	if result.Outcome() != "partial" {
		t.Errorf("期望 partial，实际 %s", result.Outcome())
	}

	st, err := svc.Get(ctx, adminCaller(), "1001", nil)
	if err != nil || st.Name != "张三丰" || st.Height == nil || *st.Height != 130 {
		t.Errorf("已有学生应被更新: %+v %v", st, err)
	}
	st, err = svc.Get(ctx, adminCaller(), "1002", nil)
	if err != nil || st.Height != nil {
		t.Errorf("\"-\" 应视为空值: %+v %v", st, err)
	}
}

// 班主任导入时忽略班级列，一律落在本班
func TestStudentService_Import_TeacherForcedClass(t *testing.T) {
	svc, repo := setupTestStudentService(t)
	ctx := context.Background()
	c1 := seedClass(t, repo, "一年级1班")
	seedClass(t, repo, "一年级2班")

	file := xlsxFile(t,
		[]string{"学号", "姓名", "班级"},
		[]string{"2001", "钱七", "一年级2班"},
	)
	preview, err := svc.PreviewImport(ctx, teacherCaller(c1.ID), nil, "students.xlsx", file)
	if err != nil {
		t.Fatalf("PreviewImport 应成功: %v", err)
	}
	if _, err := svc.ConfirmImport(ctx, teacherCaller(c1.ID), &dto.ConfirmImportRequest{FilePath: preview.FilePath}); err != nil {
		t.Fatalf("ConfirmImport 应成功: %v", err)
	}
	st, err := svc.Get(ctx, adminCaller(), "2001", nil)
	if err != nil || st.ClassID == nil || *st.ClassID != c1.ID {
		t.Errorf("期望学生落在班主任本班: %+v %v", st, err)
	}
}

func TestStudentService_Import_BadHeader(t *testing.T) {
	svc, _ := setupTestStudentService(t)

	file := xlsxFile(t, []string{"编号", "名字"}, []string{"1", "张三"})
	_, err := svc.PreviewImport(context.Background(), adminCaller(), nil, "students.xlsx", file)
	if !errors.Is(err, ErrImportBadHeader) {
		t.Errorf("期望 ErrImportBadHeader，实际: %v", err)
	}
}
