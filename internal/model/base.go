package model

import "time"

// Timestamps 通用时间戳（所有业务模型嵌入）
type Timestamps struct {
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TimeLayout 对外展示的时间格式
const TimeLayout = "2006-01-02 15:04:05"
