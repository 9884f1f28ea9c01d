package dto

// ── 评语模块 DTO ──

// SaveCommentRequest 保存评语
type SaveCommentRequest struct {
	StudentID  string     `json:"studentId"  binding:"required"`
	Content    string     `json:"content"`
	AppendMode bool       `json:"appendMode"`
	ClassID    OptionalID `json:"classId"`
}

// CommentHistory 评语历史记录
type CommentHistory struct {
	ID        uint   `json:"id"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// CommentResponse 单个学生的评语
type CommentResponse struct {
	StudentID   string           `json:"studentId"`
	StudentName string           `json:"studentName"`
	ClassID     *uint            `json:"classId"`
	Content     string           `json:"content"`
	History     []CommentHistory `json:"history"`
}

// SaveCommentResult 保存评语结果
type SaveCommentResult struct {
	UpdatedContent string `json:"updatedContent"`
	UpdateDate     string `json:"updateDate"`
}

// BatchCommentRequest 批量更新评语（预览与确认共用）
type BatchCommentRequest struct {
	Content    string     `json:"content"    binding:"required"`
	AppendMode *bool      `json:"appendMode"` // 缺省为追加
	StudentIDs []string   `json:"studentIds" binding:"required,min=1"`
	ClassID    OptionalID `json:"classId"`
}

// Append 是否追加模式
func (r *BatchCommentRequest) Append() bool {
	return r.AppendMode == nil || *r.AppendMode
}

// CommentChange 批量评语预览中的单项
type CommentChange struct {
	StudentID string `json:"student_id"`
	Name      string `json:"name"`
	Before    string `json:"before"`
	After     string `json:"after"`
	Reason    string `json:"reason,omitempty"`
}

// BatchCommentPreview 批量评语预览
type BatchCommentPreview struct {
	Changes []CommentChange `json:"changes"`
	Skipped []CommentChange `json:"skipped"`
}

// CommentTemplate 评语模板
type CommentTemplate struct {
	ID      int    `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Type    string `json:"type"`
}

// ReportSettings 学生报告导出设置
type ReportSettings struct {
	SchoolYear     string `json:"schoolYear"`
	Semester       string `json:"semester"`
	FileNameFormat string `json:"fileNameFormat" binding:"omitempty,oneof=id_name name_id id name"`
}

// ExportReportsRequest 导出学生报告
type ExportReportsRequest struct {
	StudentIDs []string       `json:"studentIds" binding:"required,min=1"`
	ClassID    OptionalID     `json:"classId"`
	Settings   ReportSettings `json:"settings"`
}

// ReportBundle 学生报告导出结果
// DownloadURL 非空时文件已保存在导出目录，否则由 Data 直接返回
type ReportBundle struct {
	Filename    string `json:"filename"`
	Count       int    `json:"count"`
	DownloadURL string `json:"download_url,omitempty"`
	Data        []byte `json:"-"`
}

// CancelExportRequest 取消导出
type CancelExportRequest struct {
	RequestID string `json:"requestId" binding:"required"`
}
