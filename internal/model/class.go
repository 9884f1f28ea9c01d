package model

// Class 班级表，对应 classes
type Class struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	ClassName string `gorm:"not null;uniqueIndex"     json:"class_name"`
	Timestamps
}

// TableName 指定表名
func (Class) TableName() string { return "classes" }
