package dto

import "github.com/ysxx86/ClassMaster/internal/model"

// ── 德育模块 DTO ──

// DeyuRecord 德育列表中的一行，空分数按 0 展示
type DeyuRecord struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Gender     string `json:"gender"`
	ClassID    *uint  `json:"class_id"`
	ClassName  string `json:"class_name"`
	Pinzhi     int    `json:"pinzhi"`
	Xuexi      int    `json:"xuexi"`
	Jiankang   int    `json:"jiankang"`
	Shenmei    int    `json:"shenmei"`
	Shijian    int    `json:"shijian"`
	Shenghuo   int    `json:"shenghuo"`
	TotalScore int    `json:"total_score"`
	Semester   string `json:"semester"`
}

// DeyuWarning 超出满分的提示
type DeyuWarning struct {
	StudentID string `json:"student_id,omitempty"`
	Dimension string `json:"dimension"`
	Label     string `json:"label"`
	Value     int    `json:"value"`
	Ceiling   int    `json:"ceiling"`
}

// DeyuSaveResult 保存德育分结果
type DeyuSaveResult struct {
	Record   DeyuRecord    `json:"student"`
	Warnings []DeyuWarning `json:"warnings"`
}

// BatchDeyuRequest 批量保存德育分
// Records 中每项为原始 JSON 对象，需包含 id，其余维度按单条保存规则转换
type BatchDeyuRequest struct {
	ClassID OptionalID       `json:"class_id"`
	Records []map[string]any `json:"records" binding:"required,min=1"`
}

// ClearDeyuRequest 清空德育分
type ClearDeyuRequest struct {
	ClassID OptionalID `json:"class_id"`
}

// BatchDeyuResult 批量保存结果
type BatchDeyuResult struct {
	Updated  int              `json:"updated"`
	Errors   []ImportRowError `json:"errors"`
	Warnings []DeyuWarning    `json:"warnings"`
}

// DeyuImportRequest 德育分导入确认
type DeyuImportRequest struct {
	FilePath string     `json:"file_path" binding:"required"`
	ClassID  OptionalID `json:"class_id"`
	Semester string     `json:"semester"`
}

// NewDeyuRecord 由模型构造德育行，空分数按 0 展示
func NewDeyuRecord(s *model.Student) DeyuRecord {
	score := func(key string) int {
		if v := s.DeyuOf(key); v != nil {
			return *v
		}
		return 0
	}
	return DeyuRecord{
		ID:         s.ID,
		Name:       s.Name,
		Gender:     s.Gender,
		ClassID:    s.ClassID,
		ClassName:  s.ClassName(),
		Pinzhi:     score("pinzhi"),
		Xuexi:      score("xuexi"),
		Jiankang:   score("jiankang"),
		Shenmei:    score("shenmei"),
		Shijian:    score("shijian"),
		Shenghuo:   score("shenghuo"),
		TotalScore: s.DeyuTotal(),
		Semester:   s.Semester,
	}
}
