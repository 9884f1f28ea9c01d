package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ysxx86/ClassMaster/internal/model"
)

// ── 评语历史 ──

// CommentRepository 评语历史数据访问接口
type CommentRepository interface {
	Create(ctx context.Context, c *model.Comment) error
	ListByStudent(ctx context.Context, studentID string, classID *uint) ([]model.Comment, error)
	Count(ctx context.Context, classID *uint) (int64, error)
	Latest(ctx context.Context, classID *uint, limit int) ([]model.Comment, error)
}

type commentRepo struct {
	db *gorm.DB
}

// NewCommentRepo 创建 CommentRepository 实例
func NewCommentRepo(db *gorm.DB) CommentRepository {
	return &commentRepo{db: db}
}

func (r *commentRepo) Create(ctx context.Context, c *model.Comment) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *commentRepo) ListByStudent(ctx context.Context, studentID string, classID *uint) ([]model.Comment, error) {
	var comments []model.Comment
	err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Scopes(byClass(classID)).
		Order("created_at DESC, id DESC").
		Find(&comments).Error
	return comments, err
}

func (r *commentRepo) Count(ctx context.Context, classID *uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Comment{}).Scopes(byClass(classID)).Count(&n).Error
	return n, err
}

func (r *commentRepo) Latest(ctx context.Context, classID *uint, limit int) ([]model.Comment, error) {
	var comments []model.Comment
	err := r.db.WithContext(ctx).
		Scopes(byClass(classID)).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&comments).Error
	return comments, err
}

// ── 待办 ──

// TodoRepository 待办数据访问接口
type TodoRepository interface {
	Create(ctx context.Context, t *model.Todo) error
	GetByID(ctx context.Context, id uint) (*model.Todo, error)
	List(ctx context.Context, classID *uint, status string) ([]model.Todo, error)
	CountPending(ctx context.Context, classID *uint) (int64, error)
	UpdateFields(ctx context.Context, id uint, fields map[string]any) error
	Delete(ctx context.Context, id uint) error
}

type todoRepo struct {
	db *gorm.DB
}

// NewTodoRepo 创建 TodoRepository 实例
func NewTodoRepo(db *gorm.DB) TodoRepository {
	return &todoRepo{db: db}
}

func (r *todoRepo) Create(ctx context.Context, t *model.Todo) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *todoRepo) GetByID(ctx context.Context, id uint) (*model.Todo, error) {
	var t model.Todo
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// List 未完成的排在前面，其次按截止时间
func (r *todoRepo) List(ctx context.Context, classID *uint, status string) ([]model.Todo, error) {
	var todos []model.Todo
	db := r.db.WithContext(ctx).Scopes(byClass(classID))
	if status != "" {
		db = db.Where("status = ?", status)
	}
	err := db.Order("CASE WHEN status = 'pending' THEN 0 ELSE 1 END, deadline IS NULL, deadline ASC, id DESC").
		Find(&todos).Error
	return todos, err
}

func (r *todoRepo) CountPending(ctx context.Context, classID *uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Todo{}).
		Scopes(byClass(classID)).
		Where("status = ?", model.TodoPending).
		Count(&n).Error
	return n, err
}

func (r *todoRepo) UpdateFields(ctx context.Context, id uint, fields map[string]any) error {
	result := r.db.WithContext(ctx).Model(&model.Todo{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *todoRepo) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Todo{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ── 操作日志 ──

// ActivityRepository 操作日志数据访问接口
type ActivityRepository interface {
	Create(ctx context.Context, a *model.Activity) error
	Latest(ctx context.Context, classID *uint, limit int) ([]model.Activity, error)
}

type activityRepo struct {
	db *gorm.DB
}

// NewActivityRepo 创建 ActivityRepository 实例
func NewActivityRepo(db *gorm.DB) ActivityRepository {
	return &activityRepo{db: db}
}

func (r *activityRepo) Create(ctx context.Context, a *model.Activity) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *activityRepo) Latest(ctx context.Context, classID *uint, limit int) ([]model.Activity, error) {
	var activities []model.Activity
	err := r.db.WithContext(ctx).
		Scopes(byClass(classID)).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&activities).Error
	return activities, err
}
