package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ysxx86/ClassMaster/internal/dto"
	"github.com/ysxx86/ClassMaster/internal/model"
	"github.com/ysxx86/ClassMaster/internal/repository"
	"github.com/ysxx86/ClassMaster/internal/scope"
)

const (
	dashboardLatest = 5
	noClassLabel    = "暂无班级"
)

// dashboardSubjects 首页展示成绩分布的学科
var dashboardSubjects = []string{"yuwen", "shuxue", "yingyu"}

// DashboardService 首页、待办与操作日志业务接口
// 所有数据按调用者班级限定，管理员未指定班级时为全校
type DashboardService interface {
	Info(ctx context.Context, caller scope.Caller) (*dto.DashboardInfo, error)
	Activities(ctx context.Context, caller scope.Caller, classID *uint, limit int) ([]model.Activity, error)

	ListTodos(ctx context.Context, caller scope.Caller, classID *uint, status string) ([]model.Todo, error)
	CreateTodo(ctx context.Context, caller scope.Caller, req *dto.TodoRequest) (*model.Todo, error)
	UpdateTodo(ctx context.Context, caller scope.Caller, id uint, req *dto.TodoRequest) (*model.Todo, error)
	DeleteTodo(ctx context.Context, caller scope.Caller, id uint) error
	Calendar(ctx context.Context, caller scope.Caller, classID *uint) (string, error)
	ImportCalendar(ctx context.Context, caller scope.Caller, classID *uint, r io.Reader) (*dto.ImportResult, error)
}

type dashboardService struct {
	repo     *repository.Repository
	activity activityLog
	logger   *zap.Logger
	loc      *time.Location
}

// NewDashboardService 创建 DashboardService 实例
func NewDashboardService(repo *repository.Repository, logger *zap.Logger) DashboardService {
	return &dashboardService{
		repo:     repo,
		activity: activityLog{repo: repo, logger: logger},
		logger:   logger,
		loc:      time.Local,
	}
}

// ────────────────────── Info ──────────────────────

func (s *dashboardService) Info(ctx context.Context, caller scope.Caller) (*dto.DashboardInfo, error) {
	info := &dto.DashboardInfo{
		User: dto.DashboardUser{
			ID:           caller.UserID,
			Username:     caller.Username,
			IsAdmin:      caller.IsAdmin,
			CurrentClass: noClassLabel,
		},
		GradeDistribution: map[string]map[string]int64{},
		Activities:        []model.Activity{},
		Todos:             []model.Todo{},
		Comments:          []model.Comment{},
	}

	// 班主任未分班时只返回用户信息
	classID, err := caller.Resolve(nil)
	if err != nil {
		if errors.Is(err, scope.ErrNoClassAssigned) {
			return info, nil
		}
		return nil, err
	}
	if classID != nil {
		if c, err := s.repo.Class.GetByID(ctx, *classID); err == nil {
			info.User.CurrentClass = c.ClassName
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if info.Stats.StudentCount, err = s.repo.Student.Count(ctx, classID); err != nil {
		return nil, s.fail("统计学生数失败", err)
	}
	if info.Stats.CommentCount, err = s.repo.Comment.Count(ctx, classID); err != nil {
		return nil, s.fail("统计评语数失败", err)
	}
	if info.Stats.TodoCount, err = s.repo.Todo.CountPending(ctx, classID); err != nil {
		return nil, s.fail("统计待办数失败", err)
	}

	for _, subject := range dashboardSubjects {
		dist, err := s.repo.Student.GradeDistribution(ctx, classID, subject)
		if err != nil {
			return nil, s.fail("统计成绩分布失败", err)
		}
		info.GradeDistribution[subject] = dist
	}

	if info.Activities, err = s.repo.Activity.Latest(ctx, classID, dashboardLatest); err != nil {
		return nil, s.fail("获取最近操作失败", err)
	}
	todos, err := s.repo.Todo.List(ctx, classID, model.TodoPending)
	if err != nil {
		return nil, s.fail("获取待办失败", err)
	}
	if len(todos) > dashboardLatest {
		todos = todos[:dashboardLatest]
	}
	info.Todos = todos
	if info.Comments, err = s.repo.Comment.Latest(ctx, classID, dashboardLatest); err != nil {
		return nil, s.fail("获取最近评语失败", err)
	}
	return info, nil
}

func (s *dashboardService) fail(msg string, err error) error {
	s.logger.Error(msg, zap.Error(err))
	return err
}

func (s *dashboardService) Activities(ctx context.Context, caller scope.Caller, classID *uint, limit int) ([]model.Activity, error) {
	effective, err := caller.Resolve(classID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.Activity.Latest(ctx, effective, limit)
}

// ────────────────────── Todos ──────────────────────

func (s *dashboardService) ListTodos(ctx context.Context, caller scope.Caller, classID *uint, status string) ([]model.Todo, error) {
	effective, err := caller.Resolve(classID)
	if err != nil {
		return nil, err
	}
	todos, err := s.repo.Todo.List(ctx, effective, status)
	if err != nil {
		s.logger.Error("获取待办列表失败", zap.Error(err))
		return nil, err
	}
	return todos, nil
}

func (s *dashboardService) CreateTodo(ctx context.Context, caller scope.Caller, req *dto.TodoRequest) (*model.Todo, error) {
	if req.Title == nil || strings.TrimSpace(*req.Title) == "" {
		return nil, ErrTodoTitleRequired
	}
	classID, err := caller.Resolve(req.ClassID.Value)
	if err != nil {
		return nil, err
	}
	deadline, err := s.parseDeadline(req.Deadline)
	if err != nil {
		return nil, err
	}

	todo := &model.Todo{
		Title:       strings.TrimSpace(*req.Title),
		Description: req.Description,
		Deadline:    deadline,
		Status:      model.TodoPending,
		ClassID:     classID,
	}
	if req.Status != nil {
		todo.Status = *req.Status
	}
	if caller.UserID != 0 {
		uid := caller.UserID
		todo.UserID = &uid
	}

	if err := s.repo.Todo.Create(ctx, todo); err != nil {
		s.logger.Error("创建待办失败", zap.Error(err))
		return nil, err
	}
	s.activity.record(ctx, caller, "create_todo", "todo", fmt.Sprint(todo.ID), classID, map[string]any{"title": todo.Title})
	return todo, nil
}

func (s *dashboardService) UpdateTodo(ctx context.Context, caller scope.Caller, id uint, req *dto.TodoRequest) (*model.Todo, error) {
	todo, err := s.getTodo(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, ErrTodoTitleRequired
		}
		fields["title"] = title
	}
	if req.Description != nil {
		fields["description"] = optString(strings.TrimSpace(*req.Description))
	}
	if req.Deadline != nil {
		deadline, err := s.parseDeadline(req.Deadline)
		if err != nil {
			return nil, err
		}
		fields["deadline"] = deadline
	}
	if req.Status != nil {
		fields["status"] = *req.Status
	}
	if req.ClassID.Set {
		classID, err := caller.Resolve(req.ClassID.Value)
		if err != nil {
			return nil, err
		}
		fields["class_id"] = classID
	}
	if len(fields) == 0 {
		return nil, ErrNoFieldsToUpdate
	}

	if err := s.repo.Todo.UpdateFields(ctx, todo.ID, fields); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTodoNotFound
		}
		s.logger.Error("更新待办失败", zap.Uint("id", id), zap.Error(err))
		return nil, err
	}
	s.activity.record(ctx, caller, "update_todo", "todo", fmt.Sprint(id), todo.ClassID, nil)
	return s.repo.Todo.GetByID(ctx, id)
}

func (s *dashboardService) DeleteTodo(ctx context.Context, caller scope.Caller, id uint) error {
	todo, err := s.getTodo(ctx, caller, id)
	if err != nil {
		return err
	}
	if err := s.repo.Todo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTodoNotFound
		}
		s.logger.Error("删除待办失败", zap.Uint("id", id), zap.Error(err))
		return err
	}
	s.activity.record(ctx, caller, "delete_todo", "todo", fmt.Sprint(id), todo.ClassID, map[string]any{"title": todo.Title})
	return nil
}

// getTodo 读取待办，其他班级的待办视为不存在
func (s *dashboardService) getTodo(ctx context.Context, caller scope.Caller, id uint) (*model.Todo, error) {
	todo, err := s.repo.Todo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTodoNotFound
		}
		return nil, err
	}
	if !caller.CanAccess(todo.ClassID) {
		return nil, ErrTodoNotFound
	}
	return todo, nil
}

var deadlineLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04",
	model.TimeLayout,
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
}

// parseDeadline 空串表示清除截止时间
func (s *dashboardService) parseDeadline(v *string) (*time.Time, error) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil, nil
	}
	raw := strings.TrimSpace(*v)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	for _, layout := range deadlineLayouts {
		if t, err := time.ParseInLocation(layout, raw, s.loc); err == nil {
			return &t, nil
		}
	}
	return nil, ErrInvalidDeadline
}

// ────────────────────── Calendar ──────────────────────

// Calendar 导出待办为 .ics
func (s *dashboardService) Calendar(ctx context.Context, caller scope.Caller, classID *uint) (string, error) {
	effective, err := caller.Resolve(classID)
	if err != nil {
		return "", err
	}
	todos, err := s.repo.Todo.List(ctx, effective, "")
	if err != nil {
		s.logger.Error("导出待办日历失败", zap.Error(err))
		return "", err
	}

	name := "待办事项"
	if effective != nil {
		if c, err := s.repo.Class.GetByID(ctx, *effective); err == nil {
			name = c.ClassName + " 待办事项"
		}
	}
	return BuildTodoCalendar(name, todos), nil
}

// ImportCalendar 从 .ics 导入待办；同班级中标题与截止时间都相同的视为重复
func (s *dashboardService) ImportCalendar(ctx context.Context, caller scope.Caller, classID *uint, r io.Reader) (*dto.ImportResult, error) {
	effective, err := caller.Resolve(classID)
	if err != nil {
		return nil, err
	}
	items, skipped, err := ParseTodoCalendar(r, s.loc)
	if err != nil {
		return nil, err
	}

	result := &dto.ImportResult{Total: len(items) + len(skipped), Errors: []dto.ImportRowError{}}
	for _, idx := range skipped {
		result.Skipped++
		result.Errors = append(result.Errors, dto.ImportRowError{Row: idx, Reason: "事件缺少标题"})
	}

	existing, err := s.repo.Todo.List(ctx, effective, "")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(existing))
	for _, t := range existing {
		seen[todoKey(t.Title, t.Deadline)] = true
	}

	var uid *uint
	if caller.UserID != 0 {
		id := caller.UserID
		uid = &id
	}

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		for _, it := range items {
			key := todoKey(it.Title, it.Deadline)
			if seen[key] {
				result.Skipped++
				result.Errors = append(result.Errors, dto.ImportRowError{Row: it.Index, Reason: fmt.Sprintf("待办 \"%s\" 已存在", it.Title)})
				continue
			}
			seen[key] = true

			todo := &model.Todo{
				Title:       it.Title,
				Description: optString(it.Description),
				Deadline:    it.Deadline,
				Status:      model.TodoPending,
				UserID:      uid,
				ClassID:     effective,
			}
			if it.Completed {
				todo.Status = model.TodoCompleted
			}
			if err := tx.Todo.Create(ctx, todo); err != nil {
				return err
			}
			result.Added++
			result.Success++
		}
		return nil
	})
	if err != nil {
		s.logger.Error("导入待办日历失败", zap.Error(err))
		return nil, err
	}

	s.activity.record(ctx, caller, "import_todos", "todo", "", effective, map[string]any{"count": result.Added})
	return result, nil
}

func todoKey(title string, deadline *time.Time) string {
	if deadline == nil {
		return title + "|"
	}
	return title + "|" + deadline.UTC().Format(time.RFC3339)
}
