package model

// User 用户表，对应 users
// 非管理员用户即班主任，ClassID 为其所带班级
type User struct {
	ID            uint    `gorm:"primaryKey;autoIncrement"  json:"id"`
	Username      string  `gorm:"not null;uniqueIndex"      json:"username"`
	PasswordHash  string  `gorm:"column:password_hash;not null" json:"-"`
	IsAdmin       bool    `gorm:"not null;default:false"    json:"is_admin"`
	ClassID       *uint   `gorm:"index"                     json:"class_id"`
	ResetPassword *string `gorm:"column:reset_password"     json:"-"` // 最近一次已知明文密码，供管理员查看
	Timestamps

	// 关联
	Class *Class `gorm:"foreignKey:ClassID" json:"class,omitempty"`
}

// TableName 指定表名
func (User) TableName() string { return "users" }
