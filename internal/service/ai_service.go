package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ysxx86/ClassMaster/config"
	"github.com/ysxx86/ClassMaster/internal/dto"
	"github.com/ysxx86/ClassMaster/internal/model"
	"github.com/ysxx86/ClassMaster/internal/repository"
	"github.com/ysxx86/ClassMaster/internal/scope"
)

// 评语字数范围
const (
	defaultCommentLength = 260
	minCommentLength     = 50
	maxCommentLength     = 1000
)

// ChatClient 大模型对话客户端，由 pkg/deepseek 实现
type ChatClient interface {
	Chat(ctx context.Context, apiKey, system, prompt string) (string, error)
	Ping(ctx context.Context, apiKey string) error
}

// AIService AI 评语生成与系统设置接口
type AIService interface {
	GenerateComment(ctx context.Context, caller scope.Caller, req *dto.GenerateCommentRequest) (*dto.GenerateCommentResponse, error)
	Settings(ctx context.Context, caller scope.Caller) (*dto.SettingsResponse, error)
	SaveDeepSeekKey(ctx context.Context, caller scope.Caller, apiKey string) (bool, error)
	TestDeepSeekKey(ctx context.Context, apiKey string) error
}

type aiService struct {
	repo     *repository.Repository
	chat     ChatClient
	site     config.SiteConfig
	key      string // 配置文件中的密钥，settings 表有记录时以表为准
	activity activityLog
	logger   *zap.Logger
}

// NewAIService 创建 AIService 实例
func NewAIService(repo *repository.Repository, chat ChatClient, cfg *config.Config, logger *zap.Logger) AIService {
	return &aiService{
		repo:     repo,
		chat:     chat,
		site:     cfg.Site,
		key:      cfg.AI.APIKey,
		activity: activityLog{repo: repo, logger: logger},
		logger:   logger,
	}
}

// apiKey 当前生效的密钥
func (s *aiService) apiKey(ctx context.Context) (string, error) {
	v, ok, err := s.repo.Setting.Get(ctx, model.SettingDeepSeekAPIKey)
	if err != nil {
		return "", err
	}
	if ok {
		return v, nil
	}
	return s.key, nil
}

// ────────────────────── 生成评语 ──────────────────────

func (s *aiService) GenerateComment(ctx context.Context, caller scope.Caller, req *dto.GenerateCommentRequest) (*dto.GenerateCommentResponse, error) {
	id := req.ID()
	if id == "" {
		return nil, ErrStudentIDRequired
	}
	student, err := locateStudent(ctx, s.repo, caller, id, req.ClassID.Value)
	if err != nil {
		return nil, err
	}

	key, err := s.apiKey(ctx)
	if err != nil {
		return nil, err
	}

	maxLen := clampCommentLength(req.MaxLength)
	reply, err := s.chat.Chat(ctx, key, commentSystemPrompt, buildCommentPrompt(student, req, maxLen))
	if err != nil {
		s.logger.Warn("AI 生成评语失败", zap.String("student_id", id), zap.Error(err))
		return nil, err
	}

	s.activity.record(ctx, caller, "generate_comment", "student", student.ID, student.ClassID, nil)
	return &dto.GenerateCommentResponse{
		Comment:   truncateRunes(reply, maxLen),
		StudentID: student.ID,
		ClassID:   student.ClassID,
	}, nil
}

const commentSystemPrompt = "你是一名经验丰富的小学班主任，擅长为学生撰写期末评语。" +
	"评语以第二人称“你”称呼学生，语言真诚具体，先肯定优点再提出希望，不使用列表和标题。"

func clampCommentLength(n int) int {
	switch {
	case n <= 0:
		return defaultCommentLength
	case n < minCommentLength:
		return minCommentLength
	case n > maxCommentLength:
		return maxCommentLength
	}
	return n
}

// buildCommentPrompt 汇总学生档案（成绩、德育、体测）与教师补充信息
func buildCommentPrompt(st *model.Student, req *dto.GenerateCommentRequest, maxLen int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "请为学生%s（%s）写一段期末评语。\n", st.Name, st.Gender)

	var grades []string
	for _, sub := range model.Subjects {
		if g := st.GradeOf(sub.Key); g != "" {
			grades = append(grades, sub.Label+g)
		}
	}
	if len(grades) > 0 {
		fmt.Fprintf(&b, "学科成绩：%s。\n", strings.Join(grades, "，"))
	}

	var deyu []string
	for _, d := range model.DeyuDimensions {
		if v := st.DeyuOf(d.Key); v != nil {
			deyu = append(deyu, fmt.Sprintf("%s%d/%d", d.Label, *v, d.Ceiling))
		}
	}
	if len(deyu) > 0 {
		fmt.Fprintf(&b, "德育评分：%s，总分%d。\n", strings.Join(deyu, "，"), st.DeyuTotal())
	}

	var body []string
	if st.Height != nil {
		body = append(body, fmt.Sprintf("身高%.1fcm", *st.Height))
	}
	if st.Weight != nil {
		body = append(body, fmt.Sprintf("体重%.1fkg", *st.Weight))
	}
	if st.VisionLeft != nil && st.VisionRight != nil {
		body = append(body, fmt.Sprintf("视力左%.1f右%.1f", *st.VisionLeft, *st.VisionRight))
	}
	if v := derefString(st.PhysicalTestStatus); v != "" {
		body = append(body, "体测"+v)
	}
	if len(body) > 0 {
		fmt.Fprintf(&b, "体检情况：%s。\n", strings.Join(body, "，"))
	}

	for _, f := range []struct{ label, value string }{
		{"性格特点", req.Personality},
		{"学习表现", req.StudyPerformance},
		{"兴趣爱好", req.Hobbies},
		{"需要改进", req.Improvement},
		{"其他要求", req.AdditionalInstructions},
	} {
		if v := strings.TrimSpace(f.value); v != "" {
			fmt.Fprintf(&b, "%s：%s。\n", f.label, v)
		}
	}

	style := strings.TrimSpace(req.Style)
	if style == "" {
		style = "鼓励性的"
	}
	tone := strings.TrimSpace(req.Tone)
	if tone == "" {
		tone = "正式的"
	}
	fmt.Fprintf(&b, "评语风格：%s，语气：%s，字数不超过%d字。只输出评语正文。", style, tone, maxLen)
	return b.String()
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// ────────────────────── 系统设置 ──────────────────────

func (s *aiService) Settings(ctx context.Context, caller scope.Caller) (*dto.SettingsResponse, error) {
	stored, err := s.repo.Setting.All(ctx)
	if err != nil {
		s.logger.Error("读取系统设置失败", zap.Error(err))
		return nil, err
	}

	resp := &dto.SettingsResponse{SystemName: s.site.SystemName, SchoolName: s.site.SchoolName}
	if v, ok := stored[model.SettingSystemName]; ok && v != "" {
		resp.SystemName = v
	}
	if v, ok := stored[model.SettingSchoolName]; ok && v != "" {
		resp.SchoolName = v
	}
	if !caller.IsAdmin {
		return resp, nil
	}

	key := s.key
	if v, ok := stored[model.SettingDeepSeekAPIKey]; ok {
		key = v
	}
	enabled := key != ""
	resp.DeepSeekAPIEnabled = &enabled
	resp.DeepSeekAPIKey = maskKey(key)
	return resp, nil
}

// SaveDeepSeekKey 保存密钥，空串表示停用，返回是否启用
func (s *aiService) SaveDeepSeekKey(ctx context.Context, caller scope.Caller, apiKey string) (bool, error) {
	apiKey = strings.TrimSpace(apiKey)
	if err := s.repo.Setting.Set(ctx, model.SettingDeepSeekAPIKey, apiKey); err != nil {
		s.logger.Error("保存 DeepSeek 密钥失败", zap.Error(err))
		return false, err
	}
	enabled := apiKey != ""
	s.activity.record(ctx, caller, "update_settings", "settings", model.SettingDeepSeekAPIKey, nil, map[string]any{"enabled": enabled})
	s.logger.Info("DeepSeek 设置已更新", zap.Bool("enabled", enabled), zap.String("operator", caller.Username))
	return enabled, nil
}

func (s *aiService) TestDeepSeekKey(ctx context.Context, apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return ErrAPIKeyRequired
	}
	return s.chat.Ping(ctx, apiKey)
}

func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:3] + "****" + key[len(key)-4:]
}
