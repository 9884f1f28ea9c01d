package model

import "time"

// Setting 系统设置表，对应 settings，键值存储
type Setting struct {
	Key       string    `gorm:"primaryKey"                          json:"key"`
	Value     string    `gorm:"not null;default:''"                 json:"value"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName 指定表名
func (Setting) TableName() string { return "settings" }

// 设置键
const (
	SettingSystemName     = "system_name"
	SettingSchoolName     = "school_name"
	SettingDeepSeekAPIKey = "deepseek_api_key"
)
