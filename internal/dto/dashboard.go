package dto

import "github.com/ysxx86/ClassMaster/internal/model"

// ── 首页 / 待办 DTO ──

// TodoRequest 新建或更新待办
type TodoRequest struct {
	Title       *string    `json:"title"       binding:"omitempty,min=1,max=200"`
	Description *string    `json:"description"`
	Deadline    *string    `json:"deadline"` // 2006-01-02 或 2006-01-02 15:04[:05]
	Status      *string    `json:"status"    binding:"omitempty,oneof=pending completed"`
	ClassID     OptionalID `json:"class_id"`
}

// DashboardStats 首页统计
type DashboardStats struct {
	StudentCount int64 `json:"student_count"`
	CommentCount int64 `json:"comment_count"`
	TodoCount    int64 `json:"todo_count"`
}

// DashboardUser 首页用户信息
type DashboardUser struct {
	ID           uint   `json:"id"`
	Username     string `json:"username"`
	IsAdmin      bool   `json:"is_admin"`
	CurrentClass string `json:"current_class"`
}

// DashboardInfo 首页数据
type DashboardInfo struct {
	User              DashboardUser               `json:"user"`
	Stats             DashboardStats              `json:"stats"`
	GradeDistribution map[string]map[string]int64 `json:"grade_distribution"`
	Activities        []model.Activity            `json:"activities"`
	Todos             []model.Todo                `json:"todos"`
	Comments          []model.Comment             `json:"comments"`
}
