package service

import (
	"bytes"
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ysxx86/ClassMaster/config"
	"github.com/ysxx86/ClassMaster/internal/dto"
	"github.com/ysxx86/ClassMaster/internal/model"
	"github.com/ysxx86/ClassMaster/internal/repository"
	"github.com/ysxx86/ClassMaster/internal/scope"
)

// CommentService 评语业务接口
//
// 学生当前评语保存在 students.comments，每次保存另写一条 comments 历史记录。
// 学生报告导出与取消见 export_service.go。
type CommentService interface {
	Get(ctx context.Context, caller scope.Caller, studentID string, classID *uint) (*dto.CommentResponse, error)
	Save(ctx context.Context, caller scope.Caller, req *dto.SaveCommentRequest) (*dto.SaveCommentResult, error)
	Templates() []dto.CommentTemplate
	BatchPreview(ctx context.Context, caller scope.Caller, req *dto.BatchCommentRequest) (*dto.BatchCommentPreview, error)
	BatchUpdate(ctx context.Context, caller scope.Caller, req *dto.BatchCommentRequest) (*dto.BatchCommentPreview, error)

	ExportReports(ctx context.Context, caller scope.Caller, requestID string, req *dto.ExportReportsRequest) (*dto.ReportBundle, error)
	CancelExport(ctx context.Context, requestID string) error
	ExportPath(caller scope.Caller, filename string) (string, error)
	Export(ctx context.Context, caller scope.Caller, classID *uint) (*bytes.Buffer, error)
}

// ExportRegistry 导出任务取消标记存储
type ExportRegistry interface {
	RegisterExport(ctx context.Context, requestID string, ttl time.Duration) error
	CancelExport(ctx context.Context, requestID string) error
	IsExportCancelled(ctx context.Context, requestID string) (bool, error)
	FinishExport(ctx context.Context, requestID string) error
}

type commentService struct {
	repo      *repository.Repository
	registry  ExportRegistry // nil 时导出不可取消
	exportDir string
	cfg       config.ExportConfig
	activity  activityLog
	logger    *zap.Logger
	now       func() time.Time
}

// NewCommentService 创建 CommentService 实例，registry 可为 nil
func NewCommentService(repo *repository.Repository, registry ExportRegistry, exportDir string, cfg config.ExportConfig, logger *zap.Logger) CommentService {
	return &commentService{
		repo:      repo,
		registry:  registry,
		exportDir: exportDir,
		cfg:       cfg,
		activity:  activityLog{repo: repo, logger: logger},
		logger:    logger,
		now:       time.Now,
	}
}

// ────────────────────── Get / Save ──────────────────────

func (s *commentService) Get(ctx context.Context, caller scope.Caller, studentID string, classID *uint) (*dto.CommentResponse, error) {
	student, err := locateStudent(ctx, s.repo, caller, studentID, classID)
	if err != nil {
		return nil, err
	}

	history, err := s.repo.Comment.ListByStudent(ctx, student.ID, student.ClassID)
	if err != nil {
		s.logger.Error("获取评语历史失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, err
	}

	resp := &dto.CommentResponse{
		StudentID:   student.ID,
		StudentName: student.Name,
		ClassID:     student.ClassID,
		Content:     derefString(student.Comments),
		History:     make([]dto.CommentHistory, 0, len(history)),
	}
	for _, h := range history {
		resp.History = append(resp.History, dto.CommentHistory{
			ID:        h.ID,
			Content:   h.Content,
			CreatedAt: h.CreatedAt.Format(model.TimeLayout),
		})
	}
	return resp, nil
}

// Save 保存评语；追加模式下以时间戳分隔新旧内容
func (s *commentService) Save(ctx context.Context, caller scope.Caller, req *dto.SaveCommentRequest) (*dto.SaveCommentResult, error) {
	id := strings.TrimSpace(req.StudentID)
	if id == "" {
		return nil, ErrStudentIDRequired
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, ErrCommentEmpty
	}

	student, err := locateStudent(ctx, s.repo, caller, id, req.ClassID.Value)
	if err != nil {
		return nil, err
	}

	now := s.now().Format(model.TimeLayout)
	updated := content
	if old := derefString(student.Comments); req.AppendMode && old != "" {
		updated = old + "\n\n--- " + now + " ---\n" + content
	}

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if _, err := tx.Student.UpdateFields(ctx, student.ID, student.ClassID, map[string]any{"comments": updated}); err != nil {
			return err
		}
		return tx.Comment.Create(ctx, s.historyOf(caller, student, content))
	})
	if err != nil {
		s.logger.Error("保存评语失败", zap.String("student_id", id), zap.Error(err))
		return nil, err
	}

	s.activity.record(ctx, caller, "save_comment", "student", student.ID, student.ClassID, map[string]any{"append": req.AppendMode})
	return &dto.SaveCommentResult{UpdatedContent: updated, UpdateDate: now}, nil
}

func (s *commentService) historyOf(caller scope.Caller, st *model.Student, content string) *model.Comment {
	c := &model.Comment{StudentID: st.ID, ClassID: st.ClassID, Content: content}
	if caller.UserID != 0 {
		uid := caller.UserID
		c.UserID = &uid
	}
	return c
}

// ────────────────────── Templates ──────────────────────

var commentTemplates = []dto.CommentTemplate{
	{ID: 1, Title: "品德优良", Content: "品德优良，尊敬师长，团结同学。", Type: "study"},
	{ID: 2, Title: "学习优秀", Content: "学习刻苦认真，上课认真听讲，作业按时完成。", Type: "study"},
	{ID: 3, Title: "学习积极", Content: "学习态度积极，能够主动思考，乐于探索新知识。", Type: "study"},
	{ID: 4, Title: "学习进步", Content: "近期学习有明显进步，在班级表现积极。", Type: "study"},
	{ID: 5, Title: "成绩优异", Content: "各科成绩优异，是班级的学习标兵。", Type: "study"},
	{ID: 6, Title: "身体健康", Content: "身体健康，积极参加体育活动。", Type: "physical"},
	{ID: 7, Title: "运动技能", Content: "运动能力强，在体育活动中表现出色。", Type: "physical"},
	{ID: 8, Title: "体育精神", Content: "在体育活动中展现了团队合作精神和拼搏精神。", Type: "physical"},
	{ID: 9, Title: "全面发展", Content: "德智体美劳全面发展，综合素质优秀。", Type: "behavior"},
	{ID: 10, Title: "行为规范", Content: "行为规范，能够严格遵守校规校纪。", Type: "behavior"},
	{ID: 11, Title: "积极参与", Content: "积极参与班级和学校活动，热心为集体服务。", Type: "behavior"},
	{ID: 12, Title: "有进步空间", Content: "在学习上有进步空间，希望能更加努力。", Type: "behavior"},
}

// Templates 返回固定的评语模板（副本）
func (s *commentService) Templates() []dto.CommentTemplate {
	out := make([]dto.CommentTemplate, len(commentTemplates))
	copy(out, commentTemplates)
	return out
}

// ────────────────────── Batch ──────────────────────

type commentChange struct {
	student *model.Student
	after   string
}

// planComments 计算批量评语的变更；不可访问的学生记入 skipped
func (s *commentService) planComments(ctx context.Context, repo *repository.Repository, caller scope.Caller, req *dto.BatchCommentRequest) ([]commentChange, *dto.BatchCommentPreview, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, nil, ErrCommentEmpty
	}
	if _, err := caller.Resolve(req.ClassID.Value); err != nil {
		return nil, nil, err
	}

	preview := &dto.BatchCommentPreview{Changes: []dto.CommentChange{}, Skipped: []dto.CommentChange{}}
	var changes []commentChange
	for _, id := range dedupe(req.StudentIDs) {
		student, err := locateStudent(ctx, repo, caller, id, req.ClassID.Value)
		if err != nil {
			if !isScopeError(err) {
				return nil, nil, err
			}
			preview.Skipped = append(preview.Skipped, dto.CommentChange{StudentID: id, Reason: err.Error()})
			continue
		}

		before := derefString(student.Comments)
		after := content
		if req.Append() && strings.TrimSpace(before) != "" {
			after = strings.TrimSpace(before) + "\n\n" + content
		}
		changes = append(changes, commentChange{student: student, after: after})
		preview.Changes = append(preview.Changes, dto.CommentChange{
			StudentID: student.ID,
			Name:      student.Name,
			Before:    before,
			After:     after,
		})
	}
	return changes, preview, nil
}

// BatchPreview 预览批量评语，不写库
func (s *commentService) BatchPreview(ctx context.Context, caller scope.Caller, req *dto.BatchCommentRequest) (*dto.BatchCommentPreview, error) {
	_, preview, err := s.planComments(ctx, s.repo, caller, req)
	return preview, err
}

func (s *commentService) BatchUpdate(ctx context.Context, caller scope.Caller, req *dto.BatchCommentRequest) (*dto.BatchCommentPreview, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, ErrCommentEmpty
	}

	var preview *dto.BatchCommentPreview
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		changes, p, err := s.planComments(ctx, tx, caller, req)
		if err != nil {
			return err
		}
		for _, c := range changes {
			if _, err := tx.Student.UpdateFields(ctx, c.student.ID, c.student.ClassID, map[string]any{"comments": c.after}); err != nil {
				return err
			}
			if err := tx.Comment.Create(ctx, s.historyOf(caller, c.student, content)); err != nil {
				return err
			}
		}
		preview = p
		return nil
	})
	if err != nil {
		s.logger.Error("批量更新评语失败", zap.Error(err))
		return nil, err
	}

	s.activity.record(ctx, caller, "batch_update_comments", "student", "", req.ClassID.Value, map[string]any{
		"count":   len(preview.Changes),
		"skipped": len(preview.Skipped),
	})
	return preview, nil
}
