package dto

import "github.com/ysxx86/ClassMaster/internal/model"

// ── 成绩模块 DTO ──

// SaveGradesRequest 保存学生成绩，Grades 为学科 → 等级，仅更新出现的学科
type SaveGradesRequest struct {
	ClassID  OptionalID        `json:"class_id"`
	Semester string            `json:"semester"`
	Grades   map[string]string `json:"grades" binding:"required,min=1,dive,keys,subject,endkeys,grade"`
}

// UpdateSubjectRequest 单科成绩更新
type UpdateSubjectRequest struct {
	ClassID OptionalID `json:"class_id"`
	Subject string     `json:"subject" binding:"required,subject"`
	Grade   string     `json:"grade"   binding:"grade"`
}

// BatchGradeRequest 批量设置同一学科成绩（预览与确认共用）
type BatchGradeRequest struct {
	ClassID    OptionalID `json:"class_id"`
	StudentIDs []string   `json:"student_ids" binding:"required,min=1"`
	Subject    string     `json:"subject"     binding:"required,subject"`
	Grade      string     `json:"grade"       binding:"grade"`
}

// GradeChange 批量成绩预览中的单项
type GradeChange struct {
	StudentID string `json:"student_id"`
	Name      string `json:"name"`
	ClassID   *uint  `json:"class_id"`
	Old       string `json:"old_grade"`
	New       string `json:"new_grade"`
	Reason    string `json:"reason,omitempty"` // 跳过原因
}

// BatchPreview 批量操作预览
type BatchPreview struct {
	Changes   []GradeChange `json:"changes"`
	Skipped   []GradeChange `json:"skipped"`
	Unchanged int           `json:"unchanged"`
}

// GradeRecord 学生成绩行
type GradeRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ClassID   *uint  `json:"class_id"`
	ClassName string `json:"class_name"`
	Semester  string `json:"semester"`
	Daof      string `json:"daof"`
	Yuwen     string `json:"yuwen"`
	Shuxue    string `json:"shuxue"`
	Yingyu    string `json:"yingyu"`
	Laodong   string `json:"laodong"`
	Tiyu      string `json:"tiyu"`
	Yinyue    string `json:"yinyue"`
	Meishu    string `json:"meishu"`
	Kexue     string `json:"kexue"`
	Zonghe    string `json:"zonghe"`
	Xinxi     string `json:"xinxi"`
	Shufa     string `json:"shufa"`
}

// NewGradeRecord 由模型构造成绩行
func NewGradeRecord(s *model.Student) GradeRecord {
	return GradeRecord{
		ID:        s.ID,
		Name:      s.Name,
		ClassID:   s.ClassID,
		ClassName: s.ClassName(),
		Semester:  s.Semester,
		Daof:      s.Daof,
		Yuwen:     s.Yuwen,
		Shuxue:    s.Shuxue,
		Yingyu:    s.Yingyu,
		Laodong:   s.Laodong,
		Tiyu:      s.Tiyu,
		Yinyue:    s.Yinyue,
		Meishu:    s.Meishu,
		Kexue:     s.Kexue,
		Zonghe:    s.Zonghe,
		Xinxi:     s.Xinxi,
		Shufa:     s.Shufa,
	}
}

// GradeImportRequest 成绩导入确认
type GradeImportRequest struct {
	FilePath string     `json:"file_path" binding:"required"`
	ClassID  OptionalID `json:"class_id"`
	Semester string     `json:"semester"`
}
