package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ysxx86/ClassMaster/internal/model"
)

// ClassRepository 班级数据访问接口
type ClassRepository interface {
	Create(ctx context.Context, class *model.Class) error
	GetByID(ctx context.Context, id uint) (*model.Class, error)
	GetByName(ctx context.Context, name string) (*model.Class, error)
	List(ctx context.Context) ([]model.Class, error)
	ExistingNames(ctx context.Context, names []string) (map[string]uint, error)
	Rename(ctx context.Context, id uint, name string) error
	Delete(ctx context.Context, id uint) error
}

type classRepo struct {
	db *gorm.DB
}

// NewClassRepo 创建 ClassRepository 实例
func NewClassRepo(db *gorm.DB) ClassRepository {
	return &classRepo{db: db}
}

func (r *classRepo) Create(ctx context.Context, class *model.Class) error {
	return r.db.WithContext(ctx).Create(class).Error
}

func (r *classRepo) GetByID(ctx context.Context, id uint) (*model.Class, error) {
	var class model.Class
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&class).Error; err != nil {
		return nil, err
	}
	return &class, nil
}

func (r *classRepo) GetByName(ctx context.Context, name string) (*model.Class, error) {
	var class model.Class
	if err := r.db.WithContext(ctx).Where("class_name = ?", name).First(&class).Error; err != nil {
		return nil, err
	}
	return &class, nil
}

func (r *classRepo) List(ctx context.Context) ([]model.Class, error) {
	var classes []model.Class
	err := r.db.WithContext(ctx).Order("class_name ASC").Find(&classes).Error
	return classes, err
}

// ExistingNames 返回 names 中已存在的班级名 → id
func (r *classRepo) ExistingNames(ctx context.Context, names []string) (map[string]uint, error) {
	out := make(map[string]uint)
	if len(names) == 0 {
		return out, nil
	}
	var classes []model.Class
	if err := r.db.WithContext(ctx).Where("class_name IN ?", names).Find(&classes).Error; err != nil {
		return nil, err
	}
	for _, c := range classes {
		out[c.ClassName] = c.ID
	}
	return out, nil
}

func (r *classRepo) Rename(ctx context.Context, id uint, name string) error {
	result := r.db.WithContext(ctx).Model(&model.Class{}).Where("id = ?", id).Update("class_name", name)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *classRepo) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Class{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
