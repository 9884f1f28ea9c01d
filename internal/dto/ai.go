package dto

import "strings"

// ── AI 评语 / 系统设置 DTO ──

// GenerateCommentRequest AI 生成评语
// 学号兼容 student_id 与 studentId 两种写法
type GenerateCommentRequest struct {
	StudentID              string     `json:"student_id"`
	StudentIDAlt           string     `json:"studentId"`
	ClassID                OptionalID `json:"class_id"`
	Style                  string     `json:"style"`
	Tone                   string     `json:"tone"`
	MaxLength              int        `json:"max_length"`
	Personality            string     `json:"personality"`
	StudyPerformance       string     `json:"study_performance"`
	Hobbies                string     `json:"hobbies"`
	Improvement            string     `json:"improvement"`
	AdditionalInstructions string     `json:"additional_instructions"`
}

// ID 返回去除空白后的学号
func (r *GenerateCommentRequest) ID() string {
	if id := strings.TrimSpace(r.StudentID); id != "" {
		return id
	}
	return strings.TrimSpace(r.StudentIDAlt)
}

// GenerateCommentResponse AI 生成评语结果（不落库，由前端确认后保存）
type GenerateCommentResponse struct {
	Comment   string `json:"comment"`
	StudentID string `json:"student_id"`
	ClassID   *uint  `json:"class_id"`
}

// SettingsResponse 系统设置；DeepSeek 相关字段仅管理员可见
type SettingsResponse struct {
	SystemName         string `json:"system_name"`
	SchoolName         string `json:"school_name"`
	DeepSeekAPIEnabled *bool  `json:"deepseek_api_enabled,omitempty"`
	DeepSeekAPIKey     string `json:"deepseek_api_key,omitempty"` // 脱敏
}

// DeepSeekKeyRequest 保存或测试 DeepSeek 密钥
type DeepSeekKeyRequest struct {
	APIKey string `json:"apiKey"`
}
