package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Repository 所有 Repository 的聚合入口
type Repository struct {
	db *gorm.DB

	User     UserRepository
	Class    ClassRepository
	Student  StudentRepository
	Comment  CommentRepository
	Todo     TodoRepository
	Activity ActivityRepository
	Setting  SettingRepository
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db:       db,
		User:     NewUserRepo(db),
		Class:    NewClassRepo(db),
		Student:  NewStudentRepo(db),
		Comment:  NewCommentRepo(db),
		Todo:     NewTodoRepo(db),
		Activity: NewActivityRepo(db),
		Setting:  NewSettingRepo(db),
	}
}

// BeginTx 开启事务
func (r *Repository) BeginTx(ctx context.Context) (*gorm.DB, error) {
	tx := r.db.WithContext(ctx).Begin()
	return tx, tx.Error
}

// WithTx 返回绑定到事务的 Repository
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return NewRepository(tx)
}

// Transaction 在事务中执行 fn，fn 返回错误时回滚
func (r *Repository) Transaction(ctx context.Context, fn func(txRepo *Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepository(tx))
	})
}

// IsUniqueViolation 判断是否为唯一约束冲突
// modernc 驱动的错误不经 GORM 翻译，只能按 SQLite 错误文本识别
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// byClass 按班级过滤，nil 表示不限
func byClass(classID *uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if classID == nil {
			return db
		}
		return db.Where("class_id = ?", *classID)
	}
}
