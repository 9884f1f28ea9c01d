package dto

// ── 班级模块 DTO ──

// ClassRequest 新建 / 重命名班级
type ClassRequest struct {
	ClassName string `json:"class_name" binding:"required,max=50"`
}

// ClassNamesRequest 批量班级名（预览与批量创建共用）
type ClassNamesRequest struct {
	ClassNames []string `json:"class_names" binding:"required,min=1"`
}

// AssignTeacherRequest 分配班主任，teacher_id 为空表示取消分配
type AssignTeacherRequest struct {
	TeacherID OptionalID `json:"teacher_id"`
}

// ClassResponse 班级信息
type ClassResponse struct {
	ID           uint   `json:"id"`
	ClassName    string `json:"class_name"`
	TeacherID    *uint  `json:"teacher_id"`
	TeacherName  string `json:"teacher_name"`
	StudentCount int64  `json:"student_count"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// ClassPreviewEntry 批量创建预览中的单项
type ClassPreviewEntry struct {
	ClassName string `json:"class_name"`
	Status    string `json:"status"` // 已存在 / 新建
}

// ClassPreviewStats 批量创建预览统计
type ClassPreviewStats struct {
	Total    int `json:"total"`
	New      int `json:"new"`
	Existing int `json:"existing"`
}

// ClassPreview 批量创建预览
type ClassPreview struct {
	Entries []ClassPreviewEntry `json:"preview"`
	Stats   ClassPreviewStats   `json:"stats"`
}

// SkippedClass 批量创建中被跳过的班级
type SkippedClass struct {
	ClassName string `json:"class_name"`
	Reason    string `json:"reason"`
}

// BatchCreateClassesResult 批量创建结果
type BatchCreateClassesResult struct {
	Created []ClassResponse `json:"created"`
	Skipped []SkippedClass  `json:"skipped"`
}

// TeacherResponse 可分配的班主任
type TeacherResponse struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	ClassID   *uint  `json:"class_id"`
	ClassName string `json:"class_name"`
	Status    string `json:"status"` // 已分配 / 未分配
}

// AssignTeacherResult 分配结果
type AssignTeacherResult struct {
	ClassID     uint   `json:"class_id"`
	ClassName   string `json:"class_name"`
	TeacherID   *uint  `json:"teacher_id"`
	TeacherName string `json:"teacher_name"`
}
