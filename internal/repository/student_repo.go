package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ysxx86/ClassMaster/internal/model"
)

// StudentFilter 学生列表过滤条件
type StudentFilter struct {
	ClassID  *uint // nil 表示不限班级
	Semester string
	IDs      []string
	Limit    int
}

// StudentRepository 学生数据访问接口
// 学生以 (id, class_id) 定位，class_id 为 nil 表示未分班
type StudentRepository interface {
	Create(ctx context.Context, student *model.Student) error
	Get(ctx context.Context, id string, classID *uint) (*model.Student, error)
	ListByNumber(ctx context.Context, id string) ([]model.Student, error)
	List(ctx context.Context, filter StudentFilter) ([]model.Student, error)
	Count(ctx context.Context, classID *uint) (int64, error)
	CountByClass(ctx context.Context) (map[uint]int64, error)
	Exists(ctx context.Context, id string, classID *uint) (bool, error)
	UpdateFields(ctx context.Context, id string, classID *uint, fields map[string]any) (int64, error)
	UpdateAll(ctx context.Context, classID *uint, fields map[string]any) (int64, error)
	Delete(ctx context.Context, id string, classID *uint) error
	ClearClass(ctx context.Context, classID uint) (int64, error)
	GradeDistribution(ctx context.Context, classID *uint, subject string) (map[string]int64, error)
}

type studentRepo struct {
	db *gorm.DB
}

// NewStudentRepo 创建 StudentRepository 实例
func NewStudentRepo(db *gorm.DB) StudentRepository {
	return &studentRepo{db: db}
}

// byKey 按复合主键定位；class_id 为空时匹配 NULL
func byKey(id string, classID *uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if classID == nil {
			return db.Where("id = ? AND class_id IS NULL", id)
		}
		return db.Where("id = ? AND class_id = ?", id, *classID)
	}
}

func (r *studentRepo) Create(ctx context.Context, student *model.Student) error {
	return r.db.WithContext(ctx).Omit("Class").Create(student).Error
}

func (r *studentRepo) Get(ctx context.Context, id string, classID *uint) (*model.Student, error) {
	var s model.Student
	err := r.db.WithContext(ctx).
		Preload("Class").
		Scopes(byKey(id, classID)).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListByNumber 返回共享同一学号的所有行（跨班级）
func (r *studentRepo) ListByNumber(ctx context.Context, id string) ([]model.Student, error) {
	var students []model.Student
	err := r.db.WithContext(ctx).
		Preload("Class").
		Where("id = ?", id).
		Order("class_id ASC").
		Find(&students).Error
	return students, err
}

func (r *studentRepo) List(ctx context.Context, filter StudentFilter) ([]model.Student, error) {
	var students []model.Student
	db := r.db.WithContext(ctx).
		Preload("Class").
		Scopes(byClass(filter.ClassID))
	if filter.Semester != "" {
		db = db.Where("semester = ?", filter.Semester)
	}
	if len(filter.IDs) > 0 {
		db = db.Where("id IN ?", filter.IDs)
	}
	if filter.Limit > 0 {
		db = db.Limit(filter.Limit)
	}
	err := db.Order("class_id ASC, CAST(id AS INTEGER) ASC, id ASC").Find(&students).Error
	return students, err
}

func (r *studentRepo) Count(ctx context.Context, classID *uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Student{}).Scopes(byClass(classID)).Count(&n).Error
	return n, err
}

func (r *studentRepo) CountByClass(ctx context.Context) (map[uint]int64, error) {
	var rows []struct {
		ClassID uint
		N       int64
	}
	err := r.db.WithContext(ctx).Model(&model.Student{}).
		Select("class_id, COUNT(*) AS n").
		Where("class_id IS NOT NULL").
		Group("class_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uint]int64, len(rows))
	for _, row := range rows {
		out[row.ClassID] = row.N
	}
	return out, nil
}

func (r *studentRepo) Exists(ctx context.Context, id string, classID *uint) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Student{}).Scopes(byKey(id, classID)).Count(&n).Error
	return n > 0, err
}

func (r *studentRepo) UpdateFields(ctx context.Context, id string, classID *uint, fields map[string]any) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.Student{}).
		Scopes(byKey(id, classID)).
		Updates(fields)
	return result.RowsAffected, result.Error
}

// UpdateAll 批量更新某班（nil 为全部）学生
func (r *studentRepo) UpdateAll(ctx context.Context, classID *uint, fields map[string]any) (int64, error) {
	db := r.db.WithContext(ctx).Model(&model.Student{})
	if classID == nil {
		db = db.Where("1 = 1")
	} else {
		db = db.Scopes(byClass(classID))
	}
	result := db.Updates(fields)
	return result.RowsAffected, result.Error
}

func (r *studentRepo) Delete(ctx context.Context, id string, classID *uint) error {
	result := r.db.WithContext(ctx).Scopes(byKey(id, classID)).Delete(&model.Student{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ClearClass 删除班级前将其学生置为未分班
func (r *studentRepo) ClearClass(ctx context.Context, classID uint) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.Student{}).
		Where("class_id = ?", classID).
		Update("class_id", nil)
	return result.RowsAffected, result.Error
}

// GradeDistribution 统计某学科各等级人数，空成绩不计入
func (r *studentRepo) GradeDistribution(ctx context.Context, classID *uint, subject string) (map[string]int64, error) {
	if !model.IsSubject(subject) {
		return nil, gorm.ErrInvalidField
	}
	var rows []struct {
		Grade string
		N     int64
	}
	err := r.db.WithContext(ctx).Model(&model.Student{}).
		Select(subject + " AS grade, COUNT(*) AS n").
		Scopes(byClass(classID)).
		Where(subject + " <> ''").
		Group(subject).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Grade] = row.N
	}
	return out, nil
}
