package dto

import "github.com/ysxx86/ClassMaster/internal/model"

// ── 学生模块 DTO ──

// CreateStudentRequest 新增学生请求
type CreateStudentRequest struct {
	ID                 string     `json:"id"     binding:"required,max=32"`
	Name               string     `json:"name"   binding:"required,max=50"`
	Gender             string     `json:"gender" binding:"required"`
	ClassID            OptionalID `json:"class_id"`
	Height             *float64   `json:"height"`
	Weight             *float64   `json:"weight"`
	ChestCircumference *float64   `json:"chest_circumference"`
	VitalCapacity      *float64   `json:"vital_capacity"`
	DentalCaries       *string    `json:"dental_caries"`
	VisionLeft         *float64   `json:"vision_left"`
	VisionRight        *float64   `json:"vision_right"`
	PhysicalTestStatus *string    `json:"physical_test_status"`
	Comments           *string    `json:"comments"`
}

// UpdateStudentRequest 学生部分更新请求（仅更新非 nil 字段）
// ClassID 仅用于定位记录，调班不在此接口处理
type UpdateStudentRequest struct {
	ClassID            OptionalID `json:"class_id"`
	Name               *string    `json:"name"   binding:"omitempty,min=1,max=50"`
	Gender             *string    `json:"gender" binding:"omitempty,min=1"`
	Height             *float64   `json:"height"`
	Weight             *float64   `json:"weight"`
	ChestCircumference *float64   `json:"chest_circumference"`
	VitalCapacity      *float64   `json:"vital_capacity"`
	DentalCaries       *string    `json:"dental_caries"`
	VisionLeft         *float64   `json:"vision_left"`
	VisionRight        *float64   `json:"vision_right"`
	PhysicalTestStatus *string    `json:"physical_test_status"`
	Comments           *string    `json:"comments"`
}

// UpdateCommentsRequest 直接覆盖学生评语
type UpdateCommentsRequest struct {
	ClassID  OptionalID `json:"class_id"`
	Comments string     `json:"comments"`
}

// StudentResponse 学生信息，附带班级名称
type StudentResponse struct {
	model.Student
	ClassName string `json:"class_name"`
}

// NewStudentResponse 由模型构造响应
func NewStudentResponse(s *model.Student) StudentResponse {
	return StudentResponse{Student: *s, ClassName: s.ClassName()}
}
