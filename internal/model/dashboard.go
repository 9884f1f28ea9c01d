package model

import (
	"time"

	"gorm.io/datatypes"
)

// Comment 评语历史表，对应 comments
// 学生当前评语保存在 students.comments，此表保留每次保存的记录
type Comment struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	StudentID string `gorm:"not null;index"           json:"student_id"`
	ClassID   *uint  `json:"class_id"`
	Content   string `gorm:"not null"                 json:"content"`
	UserID    *uint  `json:"user_id"`
	Timestamps
}

// TableName 指定表名
func (Comment) TableName() string { return "comments" }

// 待办状态
const (
	TodoPending   = "pending"
	TodoCompleted = "completed"
)

// Todo 待办事项，对应 todos
type Todo struct {
	ID          uint       `gorm:"primaryKey;autoIncrement"     json:"id"`
	Title       string     `gorm:"not null"                     json:"title"`
	Description *string    `json:"description"`
	Deadline    *time.Time `json:"deadline"`
	Status      string     `gorm:"not null;default:'pending'"   json:"status"`
	UserID      *uint      `json:"user_id"`
	ClassID     *uint      `json:"class_id"`
	Timestamps
}

// TableName 指定表名
func (Todo) TableName() string { return "todos" }

// Activity 操作日志，对应 activities
type Activity struct {
	ID         uint           `gorm:"primaryKey;autoIncrement"           json:"id"`
	Action     string         `gorm:"not null"                           json:"action"`
	TargetType string         `json:"target_type"`
	TargetID   string         `json:"target_id"`
	UserID     *uint          `json:"user_id"`
	ClassID    *uint          `json:"class_id"`
	Details    datatypes.JSON `json:"details"`
	CreatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName 指定表名
func (Activity) TableName() string { return "activities" }
