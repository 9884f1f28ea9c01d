package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ysxx86/ClassMaster/internal/dto"
	"github.com/ysxx86/ClassMaster/internal/model"
	"github.com/ysxx86/ClassMaster/internal/repository"
	"github.com/ysxx86/ClassMaster/internal/scope"
)

const (
	teacherUnassigned = "未分配"
	teacherAssigned   = "已分配"
	classStatusExists = "已存在"
	classStatusNew    = "新建"
)

// ClassService 班级业务接口
type ClassService interface {
	List(ctx context.Context) ([]dto.ClassResponse, error)
	Get(ctx context.Context, id uint) (*dto.ClassResponse, error)
	Create(ctx context.Context, caller scope.Caller, name string) (*dto.ClassResponse, error)
	Rename(ctx context.Context, caller scope.Caller, id uint, name string) (*dto.ClassResponse, error)
	Delete(ctx context.Context, caller scope.Caller, id uint) (string, error)
	Preview(ctx context.Context, names []string) (*dto.ClassPreview, error)
	BatchCreate(ctx context.Context, caller scope.Caller, names []string) (*dto.BatchCreateClassesResult, error)
	Teachers(ctx context.Context) ([]dto.TeacherResponse, error)
	AssignTeacher(ctx context.Context, caller scope.Caller, classID uint, teacherID *uint) (*dto.AssignTeacherResult, error)
}

type classService struct {
	repo     *repository.Repository
	activity activityLog
	logger   *zap.Logger
}

// NewClassService 创建 ClassService 实例
func NewClassService(repo *repository.Repository, logger *zap.Logger) ClassService {
	return &classService{
		repo:     repo,
		activity: activityLog{repo: repo, logger: logger},
		logger:   logger,
	}
}

// ────────────────────── List / Get ──────────────────────

func (s *classService) List(ctx context.Context) ([]dto.ClassResponse, error) {
	classes, err := s.repo.Class.List(ctx)
	if err != nil {
		s.logger.Error("获取班级列表失败", zap.Error(err))
		return nil, err
	}
	counts, err := s.repo.Student.CountByClass(ctx)
	if err != nil {
		s.logger.Error("统计班级学生数失败", zap.Error(err))
		return nil, err
	}
	teachers, err := s.teacherByClass(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]dto.ClassResponse, 0, len(classes))
	for i := range classes {
		result = append(result, toClassResponse(&classes[i], teachers[classes[i].ID], counts[classes[i].ID]))
	}
	return result, nil
}

func (s *classService) Get(ctx context.Context, id uint) (*dto.ClassResponse, error) {
	class, err := s.getClass(ctx, id)
	if err != nil {
		return nil, err
	}
	n, err := s.repo.Student.Count(ctx, &id)
	if err != nil {
		return nil, err
	}
	var teacher *model.User
	if users, err := s.repo.User.ListByClass(ctx, id); err != nil {
		return nil, err
	} else if len(users) > 0 {
		teacher = &users[0]
	}
	resp := toClassResponse(class, teacher, n)
	return &resp, nil
}

// ────────────────────── Create / Rename / Delete ──────────────────────

func (s *classService) Create(ctx context.Context, caller scope.Caller, name string) (*dto.ClassResponse, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrClassNameEmpty
	}
	if _, err := s.repo.Class.GetByName(ctx, name); err == nil {
		return nil, ErrClassExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	class := &model.Class{ClassName: name}
	if err := s.repo.Class.Create(ctx, class); err != nil {
		// 并发请求可能在查重之后抢先写入
		if repository.IsUniqueViolation(err) {
			return nil, ErrClassExists
		}
		s.logger.Error("创建班级失败", zap.String("class_name", name), zap.Error(err))
		return nil, err
	}

	s.activity.record(ctx, caller, "create_class", "class", fmt.Sprint(class.ID), &class.ID, map[string]any{"class_name": name})
	resp := toClassResponse(class, nil, 0)
	return &resp, nil
}

func (s *classService) Rename(ctx context.Context, caller scope.Caller, id uint, name string) (*dto.ClassResponse, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrClassNameEmpty
	}
	if _, err := s.getClass(ctx, id); err != nil {
		return nil, err
	}
	if other, err := s.repo.Class.GetByName(ctx, name); err == nil && other.ID != id {
		return nil, ErrClassExists
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if err := s.repo.Class.Rename(ctx, id, name); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, ErrClassExists
		}
		s.logger.Error("更新班级失败", zap.Uint("id", id), zap.Error(err))
		return nil, err
	}
	s.activity.record(ctx, caller, "update_class", "class", fmt.Sprint(id), &id, map[string]any{"class_name": name})
	return s.Get(ctx, id)
}

// Delete 删除班级；学生与用户保留，class_id 置空。返回被删除的班级名
func (s *classService) Delete(ctx context.Context, caller scope.Caller, id uint) (string, error) {
	class, err := s.getClass(ctx, id)
	if err != nil {
		return "", err
	}

	var students, users int64
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		var err error
		if students, err = tx.Student.ClearClass(ctx, id); err != nil {
			return err
		}
		if users, err = tx.User.ClearClass(ctx, id); err != nil {
			return err
		}
		return tx.Class.Delete(ctx, id)
	})
	if err != nil {
		s.logger.Error("删除班级失败", zap.Uint("id", id), zap.Error(err))
		return "", err
	}

	s.logger.Info("删除班级",
		zap.Uint("id", id), zap.String("class_name", class.ClassName),
		zap.Int64("students", students), zap.Int64("users", users))
	s.activity.record(ctx, caller, "delete_class", "class", fmt.Sprint(id), nil, map[string]any{"class_name": class.ClassName})
	return class.ClassName, nil
}

// ────────────────────── Preview / BatchCreate ──────────────────────

func (s *classService) Preview(ctx context.Context, names []string) (*dto.ClassPreview, error) {
	names = uniqueNames(names)
	existing, err := s.repo.Class.ExistingNames(ctx, names)
	if err != nil {
		return nil, err
	}

	preview := &dto.ClassPreview{Entries: make([]dto.ClassPreviewEntry, 0, len(names))}
	for _, name := range names {
		status := classStatusNew
		if _, ok := existing[name]; ok {
			status = classStatusExists
			preview.Stats.Existing++
		} else {
			preview.Stats.New++
		}
		preview.Entries = append(preview.Entries, dto.ClassPreviewEntry{ClassName: name, Status: status})
	}
	preview.Stats.Total = len(names)
	return preview, nil
}

func (s *classService) BatchCreate(ctx context.Context, caller scope.Caller, names []string) (*dto.BatchCreateClassesResult, error) {
	names = uniqueNames(names)
	result := &dto.BatchCreateClassesResult{
		Created: []dto.ClassResponse{},
		Skipped: []dto.SkippedClass{},
	}

	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		existing, err := tx.Class.ExistingNames(ctx, names)
		if err != nil {
			return err
		}
		for _, name := range names {
			if _, ok := existing[name]; ok {
				result.Skipped = append(result.Skipped, dto.SkippedClass{ClassName: name, Reason: classStatusExists})
				continue
			}
			class := &model.Class{ClassName: name}
			if err := tx.Class.Create(ctx, class); err != nil {
				return err
			}
			result.Created = append(result.Created, toClassResponse(class, nil, 0))
		}
		return nil
	})
	if err != nil {
		s.logger.Error("批量创建班级失败", zap.Error(err))
		return nil, err
	}

	if len(result.Created) > 0 {
		s.activity.record(ctx, caller, "batch_create_classes", "class", "", nil, map[string]any{"count": len(result.Created)})
	}
	return result, nil
}

// ────────────────────── Teachers / AssignTeacher ──────────────────────

func (s *classService) Teachers(ctx context.Context) ([]dto.TeacherResponse, error) {
	users, err := s.repo.User.ListTeachers(ctx)
	if err != nil {
		s.logger.Error("获取班主任列表失败", zap.Error(err))
		return nil, err
	}
	result := make([]dto.TeacherResponse, 0, len(users))
	for _, u := range users {
		t := dto.TeacherResponse{
			ID:        u.ID,
			Username:  u.Username,
			ClassID:   u.ClassID,
			ClassName: teacherUnassigned,
			Status:    teacherUnassigned,
		}
		if u.ClassID != nil {
			t.Status = teacherAssigned
			if u.Class != nil {
				t.ClassName = u.Class.ClassName
			}
		}
		result = append(result, t)
	}
	return result, nil
}

// AssignTeacher 为班级指定班主任；teacherID 为 nil 时解除分配
// 班级原有班主任被解除，被分配教师原来所带班级随之改变
func (s *classService) AssignTeacher(ctx context.Context, caller scope.Caller, classID uint, teacherID *uint) (*dto.AssignTeacherResult, error) {
	class, err := s.getClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	result := &dto.AssignTeacherResult{ClassID: classID, ClassName: class.ClassName, TeacherName: "无"}

	if teacherID != nil {
		teacher, err := s.repo.User.GetByID(ctx, *teacherID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrTeacherNotFound
			}
			return nil, err
		}
		if teacher.IsAdmin {
			return nil, ErrAdminAsTeacher
		}
		if teacher.ClassID != nil && *teacher.ClassID != classID {
			s.logger.Info("教师原有班级分配将被解除",
				zap.String("teacher", teacher.Username), zap.Uint("previous_class_id", *teacher.ClassID))
		}
		result.TeacherID = teacherID
		result.TeacherName = teacher.Username
	}

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if _, err := tx.User.ClearClass(ctx, classID); err != nil {
			return err
		}
		if teacherID == nil {
			return nil
		}
		return tx.User.UpdateFields(ctx, *teacherID, map[string]any{"class_id": classID})
	})
	if err != nil {
		s.logger.Error("分配班主任失败", zap.Uint("class_id", classID), zap.Error(err))
		return nil, err
	}

	action := "assign_teacher"
	if teacherID == nil {
		action = "unassign_teacher"
	}
	s.activity.record(ctx, caller, action, "class", fmt.Sprint(classID), &classID, map[string]any{"teacher": result.TeacherName})
	return result, nil
}

// ── 内部辅助方法 ──

func (s *classService) getClass(ctx context.Context, id uint) (*model.Class, error) {
	class, err := s.repo.Class.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClassNotFound
		}
		s.logger.Error("查询班级失败", zap.Uint("id", id), zap.Error(err))
		return nil, err
	}
	return class, nil
}

// teacherByClass 班级 ID → 班主任
func (s *classService) teacherByClass(ctx context.Context) (map[uint]*model.User, error) {
	users, err := s.repo.User.ListTeachers(ctx)
	if err != nil {
		s.logger.Error("获取班主任列表失败", zap.Error(err))
		return nil, err
	}
	m := make(map[uint]*model.User, len(users))
	for i := range users {
		if users[i].ClassID != nil {
			m[*users[i].ClassID] = &users[i]
		}
	}
	return m, nil
}

func toClassResponse(c *model.Class, teacher *model.User, students int64) dto.ClassResponse {
	resp := dto.ClassResponse{
		ID:           c.ID,
		ClassName:    c.ClassName,
		TeacherName:  teacherUnassigned,
		StudentCount: students,
		CreatedAt:    c.CreatedAt.Format(model.TimeLayout),
		UpdatedAt:    c.UpdatedAt.Format(model.TimeLayout),
	}
	if teacher != nil {
		resp.TeacherID = &teacher.ID
		resp.TeacherName = teacher.Username
	}
	return resp
}

// uniqueNames 去除空白与批内重复，保持原顺序
func uniqueNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
