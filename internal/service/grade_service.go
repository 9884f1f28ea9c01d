package service

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/ysxx86/ClassMaster/internal/dto"
	"github.com/ysxx86/ClassMaster/internal/model"
	"github.com/ysxx86/ClassMaster/internal/repository"
	"github.com/ysxx86/ClassMaster/internal/scope"
)

const uploadKindGrades = "grades"

// GradeService 成绩业务接口
type GradeService interface {
	List(ctx context.Context, caller scope.Caller, classID *uint, semester string) ([]dto.GradeRecord, error)
	Get(ctx context.Context, caller scope.Caller, id string, classID *uint) (*dto.GradeRecord, error)
	Save(ctx context.Context, caller scope.Caller, id string, req *dto.SaveGradesRequest) (*dto.GradeRecord, error)
	Clear(ctx context.Context, caller scope.Caller, id string, classID *uint) error
	UpdateSubject(ctx context.Context, caller scope.Caller, id string, req *dto.UpdateSubjectRequest) error
	BatchPreview(ctx context.Context, caller scope.Caller, req *dto.BatchGradeRequest) (*dto.BatchPreview, error)
	BatchUpdate(ctx context.Context, caller scope.Caller, req *dto.BatchGradeRequest) (*dto.BatchPreview, error)
	PreviewImport(ctx context.Context, caller scope.Caller, classID *uint, filename string, r io.Reader) (*dto.ImportPreview, error)
	ConfirmImport(ctx context.Context, caller scope.Caller, req *dto.GradeImportRequest) (*dto.ImportResult, error)
	Template(ctx context.Context, caller scope.Caller, classID *uint) (*bytes.Buffer, error)
}

type gradeService struct {
	repo     *repository.Repository
	uploads  *UploadStore
	activity activityLog
	logger   *zap.Logger
}

// NewGradeService 创建 GradeService 实例
func NewGradeService(repo *repository.Repository, uploads *UploadStore, logger *zap.Logger) GradeService {
	return &gradeService{
		repo:     repo,
		uploads:  uploads,
		activity: activityLog{repo: repo, logger: logger},
		logger:   logger,
	}
}

// ────────────────────── List / Get ──────────────────────

func (s *gradeService) List(ctx context.Context, caller scope.Caller, classID *uint, semester string) ([]dto.GradeRecord, error) {
	effective, err := caller.Resolve(classID)
	if err != nil {
		return nil, err
	}
	students, err := s.repo.Student.List(ctx, repository.StudentFilter{ClassID: effective, Semester: semester})
	if err != nil {
		s.logger.Error("获取学生成绩失败", zap.Error(err))
		return nil, err
	}
	result := make([]dto.GradeRecord, 0, len(students))
	for i := range students {
		result = append(result, dto.NewGradeRecord(&students[i]))
	}
	return result, nil
}

func (s *gradeService) Get(ctx context.Context, caller scope.Caller, id string, classID *uint) (*dto.GradeRecord, error) {
	student, err := locateStudent(ctx, s.repo, caller, id, classID)
	if err != nil {
		return nil, err
	}
	rec := dto.NewGradeRecord(student)
	return &rec, nil
}

// ────────────────────── Save / Clear ──────────────────────

func (s *gradeService) Save(ctx context.Context, caller scope.Caller, id string, req *dto.SaveGradesRequest) (*dto.GradeRecord, error) {
	fields := make(map[string]any, len(req.Grades)+1)
	for subject, grade := range req.Grades {
		if !model.IsSubject(subject) {
			return nil, ErrInvalidSubject
		}
		if !model.IsGrade(grade) {
			return nil, ErrInvalidGrade
		}
		fields[subject] = grade
	}
	if len(fields) == 0 {
		return nil, ErrNoFieldsToUpdate
	}

	student, err := locateStudent(ctx, s.repo, caller, id, req.ClassID.Value)
	if err != nil {
		return nil, err
	}
	semester := req.Semester
	if semester == "" {
		semester = model.DefaultSemester
	}
	fields["semester"] = semester

	if _, err := s.repo.Student.UpdateFields(ctx, student.ID, student.ClassID, fields); err != nil {
		s.logger.Error("保存学生成绩失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	s.activity.record(ctx, caller, "save_grades", "student", id, student.ClassID, map[string]any{"subjects": len(req.Grades)})

	updated, err := s.repo.Student.Get(ctx, student.ID, student.ClassID)
	if err != nil {
		return nil, err
	}
	rec := dto.NewGradeRecord(updated)
	return &rec, nil
}

// Clear 清空十二门学科成绩
func (s *gradeService) Clear(ctx context.Context, caller scope.Caller, id string, classID *uint) error {
	student, err := locateStudent(ctx, s.repo, caller, id, classID)
	if err != nil {
		return err
	}
	fields := make(map[string]any, len(model.Subjects))
	for _, sub := range model.Subjects {
		fields[sub.Key] = ""
	}
	if _, err := s.repo.Student.UpdateFields(ctx, student.ID, student.ClassID, fields); err != nil {
		s.logger.Error("删除学生成绩失败", zap.String("id", id), zap.Error(err))
		return err
	}
	s.activity.record(ctx, caller, "clear_grades", "student", id, student.ClassID, nil)
	return nil
}

func (s *gradeService) UpdateSubject(ctx context.Context, caller scope.Caller, id string, req *dto.UpdateSubjectRequest) error {
	if !model.IsSubject(req.Subject) {
		return ErrInvalidSubject
	}
	if !model.IsGrade(req.Grade) {
		return ErrInvalidGrade
	}
	student, err := locateStudent(ctx, s.repo, caller, id, req.ClassID.Value)
	if err != nil {
		return err
	}
	n, err := s.repo.Student.UpdateFields(ctx, student.ID, student.ClassID, map[string]any{req.Subject: req.Grade})
	if err != nil {
		s.logger.Error("更新学科成绩失败", zap.String("id", id), zap.String("subject", req.Subject), zap.Error(err))
		return err
	}
	if n == 0 {
		return ErrNothingUpdated
	}
	return nil
}

// ────────────────────── Batch ──────────────────────

type gradeChange struct {
	change  dto.GradeChange
	classID *uint
}

// planBatch 逐个定位学生，越权或不存在的记入 Skipped
func (s *gradeService) planBatch(ctx context.Context, caller scope.Caller, req *dto.BatchGradeRequest) (*dto.BatchPreview, []gradeChange, error) {
	if !model.IsSubject(req.Subject) {
		return nil, nil, ErrInvalidSubject
	}
	if !model.IsGrade(req.Grade) {
		return nil, nil, ErrInvalidGrade
	}
	if _, err := caller.Resolve(req.ClassID.Value); err != nil {
		return nil, nil, err
	}

	preview := &dto.BatchPreview{Changes: []dto.GradeChange{}, Skipped: []dto.GradeChange{}}
	var changes []gradeChange
	for _, id := range dedupe(req.StudentIDs) {
		student, err := locateStudent(ctx, s.repo, caller, id, req.ClassID.Value)
		if err != nil {
			if !isScopeError(err) {
				return nil, nil, err
			}
			preview.Skipped = append(preview.Skipped, dto.GradeChange{StudentID: id, New: req.Grade, Reason: err.Error()})
			continue
		}
		old := student.GradeOf(req.Subject)
		if old == req.Grade {
			preview.Unchanged++
			continue
		}
		c := dto.GradeChange{
			StudentID: student.ID,
			Name:      student.Name,
			ClassID:   student.ClassID,
			Old:       old,
			New:       req.Grade,
		}
		preview.Changes = append(preview.Changes, c)
		changes = append(changes, gradeChange{change: c, classID: student.ClassID})
	}
	return preview, changes, nil
}

func (s *gradeService) BatchPreview(ctx context.Context, caller scope.Caller, req *dto.BatchGradeRequest) (*dto.BatchPreview, error) {
	preview, _, err := s.planBatch(ctx, caller, req)
	return preview, err
}

func (s *gradeService) BatchUpdate(ctx context.Context, caller scope.Caller, req *dto.BatchGradeRequest) (*dto.BatchPreview, error) {
	preview, changes, err := s.planBatch(ctx, caller, req)
	if err != nil {
		return nil, err
	}

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		for _, c := range changes {
			if _, err := tx.Student.UpdateFields(ctx, c.change.StudentID, c.classID, map[string]any{req.Subject: req.Grade}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("批量更新成绩失败", zap.String("subject", req.Subject), zap.Error(err))
		return nil, err
	}

	s.activity.record(ctx, caller, "batch_update_grades", "student", "", req.ClassID.Value, map[string]any{
		"subject": req.Subject, "grade": req.Grade, "count": len(changes),
	})
	return preview, nil
}

// ────────────────────── Import / Template ──────────────────────

type gradeImportRow struct {
	Row     int
	ID      string
	ClassID uint
	Fields  map[string]any
}

// subjectHeader 学科在表头中的可选写法
func subjectHeader(values map[string]string, sub model.Subject) (string, bool) {
	aliases := []string{sub.Label, sub.Key}
	if sub.Key == "xinxi" {
		aliases = append(aliases, "信息技术")
	}
	return lookupAlias(values, aliases)
}

func (s *gradeService) planGradeImport(ctx context.Context, caller scope.Caller, requested *uint, semester string, r io.Reader) ([]gradeImportRow, []dto.ImportRowError, error) {
	classID, err := caller.Require(requested)
	if err != nil {
		return nil, nil, err
	}
	rows, err := readSheet(r, "学号")
	if err != nil {
		return nil, nil, err
	}

	students, err := s.repo.Student.List(ctx, repository.StudentFilter{ClassID: &classID})
	if err != nil {
		return nil, nil, err
	}
	inClass := make(map[string]bool, len(students))
	for _, st := range students {
		inClass[st.ID] = true
	}

	var (
		valid []gradeImportRow
		errs  = []dto.ImportRowError{}
	)
next:
	for _, row := range rows {
		id := row.Values["学号"]
		if id == "" {
			errs = append(errs, dto.ImportRowError{Row: row.Row, Reason: "学号为空"})
			continue
		}
		if !inClass[id] {
			errs = append(errs, dto.ImportRowError{Row: row.Row, ID: id, Reason: fmt.Sprintf("学号 %s 不在该班级", id)})
			continue
		}

		item := gradeImportRow{Row: row.Row, ID: id, ClassID: classID, Fields: map[string]any{}}
		for _, sub := range model.Subjects {
			v, ok := subjectHeader(row.Values, sub)
			if !ok || v == "" {
				continue
			}
			if !model.IsGrade(v) {
				errs = append(errs, dto.ImportRowError{Row: row.Row, ID: id, Reason: fmt.Sprintf("%s成绩\"%s\"无效", sub.Label, v)})
				continue next
			}
			item.Fields[sub.Key] = v
		}
		if len(item.Fields) == 0 {
			errs = append(errs, dto.ImportRowError{Row: row.Row, ID: id, Reason: "没有可导入的成绩"})
			continue
		}
		if semester != "" {
			item.Fields["semester"] = semester
		}
		valid = append(valid, item)
	}
	return valid, errs, nil
}

func (s *gradeService) PreviewImport(ctx context.Context, caller scope.Caller, classID *uint, filename string, r io.Reader) (*dto.ImportPreview, error) {
	if _, err := caller.Require(classID); err != nil {
		return nil, err
	}
	name, err := s.uploads.Save(uploadKindGrades, filename, r)
	if err != nil {
		return nil, err
	}
	f, err := s.uploads.Open(uploadKindGrades, name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	valid, errs, err := s.planGradeImport(ctx, caller, classID, "", f)
	if err != nil {
		return nil, err
	}

	preview := &dto.ImportPreview{
		FilePath: name,
		Total:    len(valid) + len(errs),
		Updated:  len(valid),
		Skipped:  len(errs),
		Errors:   errs,
		Rows:     make([]map[string]any, 0, len(valid)),
	}
	for _, v := range valid {
		row := map[string]any{"row": v.Row, "id": v.ID, "class_id": v.ClassID}
		for k, val := range v.Fields {
			row[k] = val
		}
		preview.Rows = append(preview.Rows, row)
	}
	return preview, nil
}

func (s *gradeService) ConfirmImport(ctx context.Context, caller scope.Caller, req *dto.GradeImportRequest) (*dto.ImportResult, error) {
	f, err := s.uploads.Open(uploadKindGrades, req.FilePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	semester := req.Semester
	if semester == "" {
		semester = model.DefaultSemester
	}
	valid, errs, err := s.planGradeImport(ctx, caller, req.ClassID.Value, semester, f)
	if err != nil {
		return nil, err
	}

	result := &dto.ImportResult{Total: len(valid) + len(errs), Skipped: len(errs), Errors: errs}
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		for _, v := range valid {
			classID := v.ClassID
			if _, err := tx.Student.UpdateFields(ctx, v.ID, &classID, v.Fields); err != nil {
				return fmt.Errorf("第 %d 行写入数据库失败，已回滚全部导入: %w", v.Row, err)
			}
			result.Updated++
		}
		return nil
	})
	if err != nil {
		s.logger.Error("导入成绩失败", zap.Error(err))
		return nil, err
	}

	result.Success = result.Updated
	s.activity.record(ctx, caller, "import_grades", "student", "", req.ClassID.Value, map[string]any{"updated": result.Updated})
	return result, nil
}

// Template 生成成绩导入模板；指定班级时预填学号与姓名
func (s *gradeService) Template(ctx context.Context, caller scope.Caller, classID *uint) (*bytes.Buffer, error) {
	headers := []string{"学号", "姓名"}
	for _, sub := range model.Subjects {
		headers = append(headers, sub.Label)
	}

	effective, err := caller.Resolve(classID)
	if err != nil {
		return nil, err
	}
	var rows [][]any
	if effective != nil {
		students, err := s.repo.Student.List(ctx, repository.StudentFilter{ClassID: effective})
		if err != nil {
			return nil, err
		}
		for i := range students {
			row := []any{students[i].ID, students[i].Name}
			for _, sub := range model.Subjects {
				row = append(row, students[i].GradeOf(sub.Key))
			}
			rows = append(rows, row)
		}
	}
	return workbook("成绩导入模板", headers, rows)
}

// ── 内部辅助 ──

// isScopeError 单个学生的定位失败，批量操作中按跳过处理
func isScopeError(err error) bool {
	switch err {
	case scope.ErrStudentNotFound, scope.ErrStudentForbidden, scope.ErrStudentAmbiguous:
		return true
	}
	return false
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
