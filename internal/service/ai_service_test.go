package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ysxx86/ClassMaster/config"
	"github.com/ysxx86/ClassMaster/internal/dto"
	"github.com/ysxx86/ClassMaster/internal/model"
	"github.com/ysxx86/ClassMaster/internal/repository"
	"github.com/ysxx86/ClassMaster/internal/scope"
	"github.com/ysxx86/ClassMaster/pkg/deepseek"
)

// ── Mock ChatClient ──

type mockChat struct {
	reply   string
	err     error
	gotKey  string
	gotText string
}

func (m *mockChat) Chat(_ context.Context, apiKey, _, prompt string) (string, error) {
	m.gotKey, m.gotText = apiKey, prompt
	if apiKey == "" {
		return "", deepseek.ErrNoAPIKey
	}
	return m.reply, m.err
}

func (m *mockChat) Ping(_ context.Context, apiKey string) error {
	m.gotKey = apiKey
	return m.err
}

func setupTestAIService(t *testing.T, chat *mockChat, key string) (*aiService, *repository.Repository) {
	t.Helper()
	repo := setupTestRepo(t)
	cfg := &config.Config{
		Site: config.SiteConfig{SystemName: "班主任管理系统", SchoolName: "实验小学"},
		AI:   config.AIConfig{APIKey: key},
	}
	return NewAIService(repo, chat, cfg, zap.NewNop()).(*aiService), repo
}

func TestAIService_GenerateComment_BuildsPromptFromRecord(t *testing.T) {
	chat := &mockChat{reply: "你是一个勤奋的孩子。"}
	svc, repo := setupTestAIService(t, chat, "sk-config")
	ctx := context.Background()
	c := seedClass(t, repo, "三年1班")
	st := seedStudent(t, repo, "1001", "张三", c.ID)
	if _, err := repo.Student.UpdateFields(ctx, st.ID, st.ClassID, map[string]any{"yuwen": "优", "pinzhi": 28, "height": 135.5}); err != nil {
		t.Fatalf("更新学生失败: %v", err)
	}

	resp, err := svc.GenerateComment(ctx, teacherCaller(c.ID), &dto.GenerateCommentRequest{
		StudentIDAlt: "1001",
		Hobbies:      "画画",
		Style:        "幽默的",
	})
	if err != nil {
		t.Fatalf("GenerateComment 应成功: %v", err)
	}
	if resp.Comment != "你是一个勤奋的孩子。" || resp.StudentID != "1001" {
		t.Errorf("返回结果不符: %+v", resp)
	}
	if chat.gotKey != "sk-config" {
		t.Errorf("期望使用配置密钥，实际: %s", chat.gotKey)
	}
	for _, want := range []string{"张三", "语文优", "品质28/30", "身高135.5cm", "兴趣爱好：画画", "幽默的", "正式的", "260字"} {
		if !strings.Contains(chat.gotText, want) {
			t.Errorf("提示词应包含 %q，实际: %s", want, chat.gotText)
		}
	}
}

func TestAIService_GenerateComment_Errors(t *testing.T) {
	svc, repo := setupTestAIService(t, &mockChat{reply: "x"}, "sk-config")
	ctx := context.Background()
	c1 := seedClass(t, repo, "三年1班")
	c2 := seedClass(t, repo, "三年2班")
	seedStudent(t, repo, "1001", "张三", c2.ID)

	tests := []struct {
		name   string
		caller scope.Caller
		req    dto.GenerateCommentRequest
		want   error
	}{
		{"MissingID", teacherCaller(c1.ID), dto.GenerateCommentRequest{}, ErrStudentIDRequired},
		{"Foreign", teacherCaller(c1.ID), dto.GenerateCommentRequest{StudentID: "1001"}, scope.ErrStudentForbidden},
		{"NotFound", adminCaller(), dto.GenerateCommentRequest{StudentID: "9999"}, scope.ErrStudentNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.GenerateComment(ctx, tt.caller, &tt.req); !errors.Is(err, tt.want) {
				t.Errorf("期望 %v，实际: %v", tt.want, err)
			}
		})
	}
}

func TestAIService_GenerateComment_TruncatesToMaxLength(t *testing.T) {
	chat := &mockChat{reply: strings.Repeat("好", 120)}
	svc, repo := setupTestAIService(t, chat, "sk-config")
	c := seedClass(t, repo, "三年1班")
	seedStudent(t, repo, "1001", "张三", c.ID)

	resp, err := svc.GenerateComment(context.Background(), adminCaller(), &dto.GenerateCommentRequest{StudentID: "1001", MaxLength: 60})
	if err != nil {
		t.Fatalf("GenerateComment 应成功: %v", err)
	}
	if n := utf8.RuneCountInString(resp.Comment); n != 60 {
		t.Errorf("期望截断到 60 字，实际: %d", n)
	}
}

func TestAIService_SavedKeyOverridesConfig(t *testing.T) {
	chat := &mockChat{reply: "评语"}
	svc, repo := setupTestAIService(t, chat, "sk-config")
	ctx := context.Background()
	c := seedClass(t, repo, "三年1班")
	seedStudent(t, repo, "1001", "张三", c.ID)
	admin := seedUser(t, repo, "root", true, nil)

	enabled, err := svc.SaveDeepSeekKey(ctx, admin, " sk-saved-12345678 ")
	if err != nil || !enabled {
		t.Fatalf("保存密钥应成功并启用，实际: %v %v", enabled, err)
	}
	if _, err := svc.GenerateComment(ctx, admin, &dto.GenerateCommentRequest{StudentID: "1001"}); err != nil {
		t.Fatalf("GenerateComment 应成功: %v", err)
	}
	if chat.gotKey != "sk-saved-12345678" {
		t.Errorf("期望使用已保存密钥，实际: %s", chat.gotKey)
	}

	// 保存空串即停用，不回落到配置密钥
	if enabled, _ := svc.SaveDeepSeekKey(ctx, admin, ""); enabled {
		t.Error("空密钥应停用")
	}
	_, err = svc.GenerateComment(ctx, admin, &dto.GenerateCommentRequest{StudentID: "1001"})
	if !errors.Is(err, deepseek.ErrNoAPIKey) {
		t.Errorf("期望 ErrNoAPIKey，实际: %v", err)
	}
}

func TestAIService_Settings(t *testing.T) {
	svc, repo := setupTestAIService(t, &mockChat{}, "sk-config-abcdef")
	ctx := context.Background()
	if err := repo.Setting.Set(ctx, model.SettingSchoolName, "东海湾实验学校"); err != nil {
		t.Fatalf("写入设置失败: %v", err)
	}

	teacher, err := svc.Settings(ctx, teacherCaller(1))
	if err != nil {
		t.Fatalf("Settings 应成功: %v", err)
	}
	if teacher.SchoolName != "东海湾实验学校" || teacher.SystemName != "班主任管理系统" {
		t.Errorf("站点信息不符: %+v", teacher)
	}
	if teacher.DeepSeekAPIEnabled != nil || teacher.DeepSeekAPIKey != "" {
		t.Errorf("非管理员不应看到密钥信息: %+v", teacher)
	}

	admin, _ := svc.Settings(ctx, adminCaller())
	if admin.DeepSeekAPIEnabled == nil || !*admin.DeepSeekAPIEnabled {
		t.Error("管理员应看到已启用")
	}
	if admin.DeepSeekAPIKey != "sk-****cdef" {
		t.Errorf("期望脱敏密钥 sk-****cdef，实际: %s", admin.DeepSeekAPIKey)
	}
}

func TestAIService_TestDeepSeekKey(t *testing.T) {
	chat := &mockChat{}
	svc, _ := setupTestAIService(t, chat, "")
	if err := svc.TestDeepSeekKey(context.Background(), "  "); !errors.Is(err, ErrAPIKeyRequired) {
		t.Errorf("期望 ErrAPIKeyRequired，实际: %v", err)
	}
	if err := svc.TestDeepSeekKey(context.Background(), "sk-try"); err != nil || chat.gotKey != "sk-try" {
		t.Errorf("期望以传入密钥测试，实际: %v %s", err, chat.gotKey)
	}
}
