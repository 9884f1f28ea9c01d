package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ysxx86/ClassMaster/internal/dto"
	"github.com/ysxx86/ClassMaster/internal/repository"
)

// ── 测试辅助 ──

func setupTestUserService(t *testing.T) (UserService, *repository.Repository) {
	t.Helper()
	repo := setupTestRepo(t)
	return NewUserService(repo, newTestUploads(t), zap.NewNop()), repo
}

func strPtr(s string) *string { return &s }

// ── Create 测试 ──

func TestUserService_Create_Success(t *testing.T) {
	svc, repo := setupTestUserService(t)
	c := seedClass(t, repo, "一年级1班")

	resp, err := svc.Create(context.Background(), adminCaller(), &dto.CreateUserRequest{
		Username: "zhangsan",
		Password: "password123",
		ClassID:  dto.ID(c.ID),
	})
	if err != nil {
		t.Fatalf("Create 应成功: %v", err)
	}
	if resp.ClassName != "一年级1班" {
		t.Errorf("期望 ClassName=一年级1班，实际=%s", resp.ClassName)
	}

	user, _ := repo.User.GetByUsername(context.Background(), "zhangsan")
	if user.ResetPassword == nil || *user.ResetPassword != "password123" {
		t.Error("期望记录 reset_password")
	}
}

func TestUserService_Create_DuplicateUsername(t *testing.T) {
	svc, _ := setupTestUserService(t)
	req := &dto.CreateUserRequest{Username: "zhangsan", Password: "password123"}

	if _, err := svc.Create(context.Background(), adminCaller(), req); err != nil {
		t.Fatalf("首次创建应成功: %v", err)
	}
	if _, err := svc.Create(context.Background(), adminCaller(), req); !errors.Is(err, ErrUsernameExists) {
		t.Errorf("期望 ErrUsernameExists，实际: %v", err)
	}
}

func TestUserService_Create_UnknownClass(t *testing.T) {
	svc, _ := setupTestUserService(t)

	_, err := svc.Create(context.Background(), adminCaller(), &dto.CreateUserRequest{
		Username: "zhangsan", Password: "password123", ClassID: dto.ID(99),
	})
	if !errors.Is(err, ErrClassNotFound) {
		t.Errorf("期望 ErrClassNotFound，实际: %v", err)
	}
}

func TestUserService_Create_AdminHasNoClass(t *testing.T) {
	svc, repo := setupTestUserService(t)
	c := seedClass(t, repo, "一年级1班")

	resp, err := svc.Create(context.Background(), adminCaller(), &dto.CreateUserRequest{
		Username: "boss", Password: "password123", IsAdmin: true, ClassID: dto.ID(c.ID),
	})
	if err != nil {
		t.Fatalf("Create 应成功: %v", err)
	}
	if resp.ClassID != nil {
		t.Errorf("管理员不应带班，实际 class_id=%v", *resp.ClassID)
	}
}

// 同一班级只保留最后分配的班主任
func TestUserService_Create_ReplacesHomeroomTeacher(t *testing.T) {
	svc, repo := setupTestUserService(t)
	ctx := context.Background()
	c := seedClass(t, repo, "一年级1班")

	svc.Create(ctx, adminCaller(), &dto.CreateUserRequest{Username: "first", Password: "password123", ClassID: dto.ID(c.ID)})
	svc.Create(ctx, adminCaller(), &dto.CreateUserRequest{Username: "second", Password: "password123", ClassID: dto.ID(c.ID)})

	holders, _ := repo.User.ListByClass(ctx, c.ID)
	if len(holders) != 1 || holders[0].Username != "second" {
		t.Errorf("期望班主任仅为 second，实际: %+v", holders)
	}
}

// ── BatchCreate 测试 ──

func TestUserService_BatchCreate_PartialErrors(t *testing.T) {
	svc, _ := setupTestUserService(t)

	result, err := svc.BatchCreate(context.Background(), adminCaller(), &dto.BatchCreateUsersRequest{
		Users: []dto.CreateUserRequest{
			{Username: "a1", Password: "password123"},
			{Username: "a1", Password: "password123"},
			{Username: "a2", Password: "password123", ClassID: dto.ID(42)},
		},
	})
	if err != nil {
		t.Fatalf("BatchCreate 应成功: %v", err)
	}
	if len(result.Created) != 1 {
		t.Errorf("期望创建 1 个，实际 %d", len(result.Created))
	}
	if len(result.Errors) != 2 {
		t.Fatalf("期望 2 条错误，实际 %d", len(result.Errors))
	}
	if result.Errors[0].Row != 2 || result.Errors[1].Row != 3 {
		t.Errorf("错误行号不符: %+v", result.Errors)
	}
}

// ── Update / Delete 测试 ──

func TestUserService_Update_PromoteClearsClass(t *testing.T) {
	svc, repo := setupTestUserService(t)
	ctx := context.Background()
	c := seedClass(t, repo, "一年级1班")
	created, _ := svc.Create(ctx, adminCaller(), &dto.CreateUserRequest{Username: "t1", Password: "password123", ClassID: dto.ID(c.ID)})

	isAdmin := true
	resp, err := svc.Update(ctx, adminCaller(), created.ID, &dto.UpdateUserRequest{IsAdmin: &isAdmin})
	if err != nil {
		t.Fatalf("Update 应成功: %v", err)
	}
	if !resp.IsAdmin || resp.ClassID != nil {
		t.Errorf("期望提升为管理员并清空班级，实际: %+v", resp)
	}
}

func TestUserService_Update_PasswordAndShadow(t *testing.T) {
	svc, repo := setupTestUserService(t)
	ctx := context.Background()
	created, _ := svc.Create(ctx, adminCaller(), &dto.CreateUserRequest{Username: "t1", Password: "password123"})

	if _, err := svc.Update(ctx, adminCaller(), created.ID, &dto.UpdateUserRequest{Password: strPtr("changed99")}); err != nil {
		t.Fatalf("Update 应成功: %v", err)
	}
	user, _ := repo.User.GetByID(ctx, created.ID)
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("changed99")) != nil {
		t.Error("新密码未生效")
	}
	if derefString(user.ResetPassword) != "changed99" {
		t.Errorf("期望 reset_password=changed99，实际=%s", derefString(user.ResetPassword))
	}
}

func TestUserService_Update_NoFields(t *testing.T) {
	svc, _ := setupTestUserService(t)
	ctx := context.Background()
	created, _ := svc.Create(ctx, adminCaller(), &dto.CreateUserRequest{Username: "t1", Password: "password123"})

	if _, err := svc.Update(ctx, adminCaller(), created.ID, &dto.UpdateUserRequest{}); !errors.Is(err, ErrNoFieldsToUpdate) {
		t.Errorf("期望 ErrNoFieldsToUpdate，实际: %v", err)
	}
}

func TestUserService_Delete_Self(t *testing.T) {
	svc, _ := setupTestUserService(t)

	err := svc.Delete(context.Background(), adminCaller(), adminCaller().UserID)
	if !errors.Is(err, ErrUserSelfDelete) {
		t.Errorf("期望 ErrUserSelfDelete，实际: %v", err)
	}
}

func TestUserService_Delete_NotFound(t *testing.T) {
	svc, _ := setupTestUserService(t)

	if err := svc.Delete(context.Background(), adminCaller(), 999); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("期望 ErrUserNotFound，实际: %v", err)
	}
}

// ── ResetPassword 测试 ──

func TestUserService_ResetPassword(t *testing.T) {
	svc, repo := setupTestUserService(t)
	ctx := context.Background()
	created, _ := svc.Create(ctx, adminCaller(), &dto.CreateUserRequest{Username: "t1", Password: "password123"})

	resp, err := svc.ResetPassword(ctx, adminCaller(), created.ID)
	if err != nil {
		t.Fatalf("ResetPassword 应成功: %v", err)
	}
	if len(resp.NewPassword) != resetPasswordLength {
		t.Errorf("期望 %d 位密码，实际 %q", resetPasswordLength, resp.NewPassword)
	}
	user, _ := repo.User.GetByID(ctx, created.ID)
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(resp.NewPassword)) != nil {
		t.Error("重置后的密码未生效")
	}
}

func TestUserService_SetPassword(t *testing.T) {
	svc, repo := setupTestUserService(t)
	ctx := context.Background()
	seedUser(t, repo, "wang", false, nil)

	pwd, err := svc.SetPassword(ctx, " wang ", "newpass1")
	if err != nil || pwd != "newpass1" {
		t.Fatalf("SetPassword 应成功: %v", err)
	}
	user, _ := repo.User.GetByUsername(ctx, "wang")
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("newpass1")) != nil {
		t.Error("新密码未生效")
	}

	generated, err := svc.SetPassword(ctx, "wang", "")
	if err != nil || len(generated) != resetPasswordLength {
		t.Errorf("空密码应生成 %d 位临时密码，实际 %q, %v", resetPasswordLength, generated, err)
	}

	if _, err := svc.SetPassword(ctx, "nobody", "x"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("期望 ErrUserNotFound，实际: %v", err)
	}
}

// ── Import 测试 ──

func TestUserService_Import_PreviewThenConfirm(t *testing.T) {
	svc, repo := setupTestUserService(t)
	ctx := context.Background()
	seedClass(t, repo, "一年级1班")
	svc.Create(ctx, adminCaller(), &dto.CreateUserRequest{Username: "exists", Password: "password123"})

	file := xlsxFile(t,
		[]string{"用户名", "班级"},
		[]string{"new1", "一年级1班"},
		[]string{"exists", ""},
		[]string{"new2", "不存在的班"},
		[]string{"new3", ""},
	)

	preview, err := svc.PreviewImport(ctx, "users.xlsx", file)
	if err != nil {
		t.Fatalf("PreviewImport 应成功: %v", err)
	}
	if preview.Total != 4 || preview.Added != 2 || preview.Skipped != 2 {
		t.Errorf("预览统计不符: total=%d added=%d skipped=%d", preview.Total, preview.Added, preview.Skipped)
	}

	// 预览不写库
	if _, err := repo.User.GetByUsername(ctx, "new1"); err == nil {
		t.Fatal("预览阶段不应创建用户")
	}

	result, err := svc.ConfirmImport(ctx, adminCaller(), preview.FilePath)
	if err != nil {
		t.Fatalf("ConfirmImport 应成功: %v", err)
	}
	if result.Success != 2 || len(result.Passwords) != 2 {
		t.Errorf("期望导入 2 个用户，实际 success=%d passwords=%d", result.Success, len(result.Passwords))
	}
	if result.Outcome() != "partial" {
		t.Errorf("期望 partial，实际 %s", result.Outcome())
	}
	u, err := repo.User.GetByUsername(ctx, "new1")
	if err != nil || u.ClassID == nil {
		t.Errorf("期望 new1 已分配班级: %v", err)
	}
}

func TestUserService_ConfirmImport_UnknownFile(t *testing.T) {
	svc, _ := setupTestUserService(t)

	_, err := svc.ConfirmImport(context.Background(), adminCaller(), "users_00000000-0000-0000-0000-000000000000.xlsx")
	if !errors.Is(err, ErrUploadNotFound) {
		t.Errorf("期望 ErrUploadNotFound，实际: %v", err)
	}
}
