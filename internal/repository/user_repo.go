package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ysxx86/ClassMaster/internal/model"
)

// UserRepository 用户数据访问接口
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id uint) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	List(ctx context.Context) ([]model.User, error)
	ListTeachers(ctx context.Context) ([]model.User, error)
	ListByClass(ctx context.Context, classID uint) ([]model.User, error)
	CountAdmins(ctx context.Context) (int64, error)
	UpdateFields(ctx context.Context, id uint, fields map[string]any) error
	ClearClass(ctx context.Context, classID uint) (int64, error)
	Delete(ctx context.Context, id uint) error
}

// userRepo UserRepository 的 GORM 实现
type userRepo struct {
	db *gorm.DB
}

// NewUserRepo 创建 UserRepository 实例
func NewUserRepo(db *gorm.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepo) GetByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).
		Preload("Class").
		Where("id = ?", id).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).
		Preload("Class").
		Where("username = ?", username).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) List(ctx context.Context) ([]model.User, error) {
	var users []model.User
	err := r.db.WithContext(ctx).
		Preload("Class").
		Order("is_admin DESC, id ASC").
		Find(&users).Error
	return users, err
}

func (r *userRepo) ListTeachers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	err := r.db.WithContext(ctx).
		Preload("Class").
		Where("is_admin = ?", false).
		Order("username ASC").
		Find(&users).Error
	return users, err
}

func (r *userRepo) ListByClass(ctx context.Context, classID uint) ([]model.User, error) {
	var users []model.User
	err := r.db.WithContext(ctx).
		Where("class_id = ? AND is_admin = ?", classID, false).
		Order("id ASC").
		Find(&users).Error
	return users, err
}

func (r *userRepo) CountAdmins(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Where("is_admin = ?", true).Count(&n).Error
	return n, err
}

func (r *userRepo) UpdateFields(ctx context.Context, id uint, fields map[string]any) error {
	result := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *userRepo) ClearClass(ctx context.Context, classID uint) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.User{}).
		Where("class_id = ?", classID).
		Update("class_id", nil)
	return result.RowsAffected, result.Error
}

func (r *userRepo) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.User{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
