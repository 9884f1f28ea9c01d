package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ysxx86/ClassMaster/internal/dto"
	"github.com/ysxx86/ClassMaster/internal/model"
	"github.com/ysxx86/ClassMaster/internal/repository"
	"github.com/ysxx86/ClassMaster/internal/scope"
)

const uploadKindDeyu = "deyu"

// DeyuService 德育维度业务接口
// 各维度满分只用于提示，超出不拒绝
type DeyuService interface {
	List(ctx context.Context, caller scope.Caller, classID *uint) ([]dto.DeyuRecord, error)
	Get(ctx context.Context, caller scope.Caller, id string, classID *uint) (*dto.DeyuRecord, error)
	Save(ctx context.Context, caller scope.Caller, id string, raw map[string]any) (*dto.DeyuSaveResult, error)
	Clear(ctx context.Context, caller scope.Caller, id string, classID *uint) error
	BatchSave(ctx context.Context, caller scope.Caller, req *dto.BatchDeyuRequest) (*dto.BatchDeyuResult, error)
	ClearAll(ctx context.Context, caller scope.Caller, classID *uint) (int64, error)
	PreviewImport(ctx context.Context, caller scope.Caller, classID *uint, filename string, r io.Reader) (*dto.ImportPreview, error)
	ConfirmImport(ctx context.Context, caller scope.Caller, req *dto.DeyuImportRequest) (*dto.ImportResult, error)
	Template(ctx context.Context, caller scope.Caller, classID *uint) (*bytes.Buffer, error)
	Export(ctx context.Context, caller scope.Caller, classID *uint) (*bytes.Buffer, error)
}

type deyuService struct {
	repo     *repository.Repository
	uploads  *UploadStore
	activity activityLog
	logger   *zap.Logger
}

// NewDeyuService 创建 DeyuService 实例
func NewDeyuService(repo *repository.Repository, uploads *UploadStore, logger *zap.Logger) DeyuService {
	return &deyuService{
		repo:     repo,
		uploads:  uploads,
		activity: activityLog{repo: repo, logger: logger},
		logger:   logger,
	}
}

// ────────────────────── List / Get ──────────────────────

func (s *deyuService) List(ctx context.Context, caller scope.Caller, classID *uint) ([]dto.DeyuRecord, error) {
	effective, err := caller.Resolve(classID)
	if err != nil {
		return nil, err
	}
	students, err := s.repo.Student.List(ctx, repository.StudentFilter{ClassID: effective})
	if err != nil {
		s.logger.Error("获取德育维度失败", zap.Error(err))
		return nil, err
	}
	result := make([]dto.DeyuRecord, 0, len(students))
	for i := range students {
		result = append(result, dto.NewDeyuRecord(&students[i]))
	}
	return result, nil
}

func (s *deyuService) Get(ctx context.Context, caller scope.Caller, id string, classID *uint) (*dto.DeyuRecord, error) {
	student, err := locateStudent(ctx, s.repo, caller, id, classID)
	if err != nil {
		return nil, err
	}
	rec := dto.NewDeyuRecord(student)
	return &rec, nil
}

// ────────────────────── Save ──────────────────────

// Save 保存六个维度；缺失或非数字的维度按 0 保存
func (s *deyuService) Save(ctx context.Context, caller scope.Caller, id string, raw map[string]any) (*dto.DeyuSaveResult, error) {
	student, err := locateStudent(ctx, s.repo, caller, id, anyToID(raw["class_id"]))
	if err != nil {
		return nil, err
	}

	fields, warnings := deyuFields(raw)
	if _, err := s.repo.Student.UpdateFields(ctx, student.ID, student.ClassID, fields); err != nil {
		s.logger.Error("保存德育维度失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	if len(warnings) > 0 {
		s.logger.Warn("德育维度超出满分", zap.String("id", id), zap.Int("count", len(warnings)))
	}
	s.activity.record(ctx, caller, "save_deyu", "student", id, student.ClassID, nil)

	updated, err := s.repo.Student.Get(ctx, student.ID, student.ClassID)
	if err != nil {
		return nil, err
	}
	return &dto.DeyuSaveResult{Record: dto.NewDeyuRecord(updated), Warnings: warnings}, nil
}

// Clear 将单个学生的六个维度置空
func (s *deyuService) Clear(ctx context.Context, caller scope.Caller, id string, classID *uint) error {
	student, err := locateStudent(ctx, s.repo, caller, id, classID)
	if err != nil {
		return err
	}
	if _, err := s.repo.Student.UpdateFields(ctx, student.ID, student.ClassID, nullDeyuFields()); err != nil {
		s.logger.Error("删除德育维度失败", zap.String("id", id), zap.Error(err))
		return err
	}
	s.activity.record(ctx, caller, "clear_deyu", "student", id, student.ClassID, nil)
	return nil
}

func (s *deyuService) BatchSave(ctx context.Context, caller scope.Caller, req *dto.BatchDeyuRequest) (*dto.BatchDeyuResult, error) {
	if _, err := caller.Resolve(req.ClassID.Value); err != nil {
		return nil, err
	}
	result := &dto.BatchDeyuResult{Errors: []dto.ImportRowError{}, Warnings: []dto.DeyuWarning{}}

	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		for i, rec := range req.Records {
			id := strings.TrimSpace(fmt.Sprint(rec["id"]))
			if rec["id"] == nil || id == "" {
				result.Errors = append(result.Errors, dto.ImportRowError{Row: i + 1, Reason: "缺少学生学号"})
				continue
			}
			requested := req.ClassID.Value
			if cid := anyToID(rec["class_id"]); cid != nil {
				requested = cid
			}
			student, err := locateStudent(ctx, tx, caller, id, requested)
			if err != nil {
				if !isScopeError(err) {
					return err
				}
				result.Errors = append(result.Errors, dto.ImportRowError{Row: i + 1, ID: id, Reason: err.Error()})
				continue
			}

			fields, warnings := deyuFields(rec)
			if _, err := tx.Student.UpdateFields(ctx, student.ID, student.ClassID, fields); err != nil {
				return err
			}
			for _, w := range warnings {
				w.StudentID = student.ID
				result.Warnings = append(result.Warnings, w)
			}
			result.Updated++
		}
		return nil
	})
	if err != nil {
		s.logger.Error("批量保存德育维度失败", zap.Error(err))
		return nil, err
	}

	s.activity.record(ctx, caller, "batch_update_deyu", "student", "", req.ClassID.Value, map[string]any{"count": result.Updated})
	return result, nil
}

// ClearAll 清空本班（管理员未指定班级时为全部）学生的德育维度
func (s *deyuService) ClearAll(ctx context.Context, caller scope.Caller, classID *uint) (int64, error) {
	effective, err := caller.Resolve(classID)
	if err != nil {
		return 0, err
	}
	n, err := s.repo.Student.UpdateAll(ctx, effective, nullDeyuFields())
	if err != nil {
		s.logger.Error("清空德育维度失败", zap.Error(err))
		return 0, err
	}
	s.activity.record(ctx, caller, "clear_all_deyu", "student", "", effective, map[string]any{"count": n})
	return n, nil
}

// ────────────────────── Import / Template / Export ──────────────────────

type deyuImportRow struct {
	Row      int
	ID       string
	ClassID  uint
	Fields   map[string]any
	Warnings []dto.DeyuWarning
}

func (s *deyuService) planDeyuImport(ctx context.Context, caller scope.Caller, requested *uint, semester string, r io.Reader) ([]deyuImportRow, []dto.ImportRowError, error) {
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
		valid []deyuImportRow
		errs  = []dto.ImportRowError{}
	)
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

		raw := map[string]any{}
		for _, d := range model.DeyuDimensions {
			if v, ok := lookupAlias(row.Values, []string{d.Label, d.Key}); ok && v != "" {
				raw[d.Key] = v
			}
		}
		if len(raw) == 0 {
			errs = append(errs, dto.ImportRowError{Row: row.Row, ID: id, Reason: "没有可导入的德育维度"})
			continue
		}
		fields, warnings := coerceDeyu(raw, false)
		if semester != "" {
			fields["semester"] = semester
		}
		for i := range warnings {
			warnings[i].StudentID = id
		}
		valid = append(valid, deyuImportRow{Row: row.Row, ID: id, ClassID: classID, Fields: fields, Warnings: warnings})
	}
	return valid, errs, nil
}

func (s *deyuService) PreviewImport(ctx context.Context, caller scope.Caller, classID *uint, filename string, r io.Reader) (*dto.ImportPreview, error) {
	if _, err := caller.Require(classID); err != nil {
		return nil, err
	}
	name, err := s.uploads.Save(uploadKindDeyu, filename, r)
	if err != nil {
		return nil, err
	}
	f, err := s.uploads.Open(uploadKindDeyu, name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	valid, errs, err := s.planDeyuImport(ctx, caller, classID, "", f)
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
		row := map[string]any{"row": v.Row, "id": v.ID, "class_id": v.ClassID, "warnings": v.Warnings}
		for k, val := range v.Fields {
			row[k] = val
		}
		preview.Rows = append(preview.Rows, row)
	}
	return preview, nil
}

func (s *deyuService) ConfirmImport(ctx context.Context, caller scope.Caller, req *dto.DeyuImportRequest) (*dto.ImportResult, error) {
	f, err := s.uploads.Open(uploadKindDeyu, req.FilePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	semester := req.Semester
	if semester == "" {
		semester = model.DefaultSemester
	}
	valid, errs, err := s.planDeyuImport(ctx, caller, req.ClassID.Value, semester, f)
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
		s.logger.Error("导入德育维度失败", zap.Error(err))
		return nil, err
	}
	result.Success = result.Updated
	s.activity.record(ctx, caller, "import_deyu", "student", "", req.ClassID.Value, map[string]any{"updated": result.Updated})
	return result, nil
}

func deyuHeaders(prefix ...string) []string {
	headers := append([]string{}, prefix...)
	for _, d := range model.DeyuDimensions {
		headers = append(headers, d.Label)
	}
	return headers
}

func (s *deyuService) Template(ctx context.Context, caller scope.Caller, classID *uint) (*bytes.Buffer, error) {
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
			for _, d := range model.DeyuDimensions {
				if v := students[i].DeyuOf(d.Key); v != nil {
					row = append(row, *v)
				} else {
					row = append(row, "")
				}
			}
			rows = append(rows, row)
		}
	}
	return workbook("德育维度导入模板", deyuHeaders("学号", "姓名"), rows)
}

func (s *deyuService) Export(ctx context.Context, caller scope.Caller, classID *uint) (*bytes.Buffer, error) {
	records, err := s.List(ctx, caller, classID)
	if err != nil {
		return nil, err
	}
	headers := append(deyuHeaders("学号", "姓名", "班级"), "总分", "学期")
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, []any{
			r.ID, r.Name, r.ClassName,
			r.Pinzhi, r.Xuexi, r.Jiankang, r.Shenmei, r.Shijian, r.Shenghuo,
			r.TotalScore, r.Semester,
		})
	}
	return workbook("德育维度", headers, rows)
}

// ── 内部辅助 ──

// deyuFields 单条保存：六个维度全部写入，缺失按 0
func deyuFields(raw map[string]any) (map[string]any, []dto.DeyuWarning) {
	fields, warnings := coerceDeyu(raw, true)
	semester := model.DefaultSemester
	if v, ok := raw["semester"].(string); ok && strings.TrimSpace(v) != "" {
		semester = strings.TrimSpace(v)
	}
	fields["semester"] = semester
	return fields, warnings
}

// coerceDeyu 将原始值转换为整数分数；all 为 true 时缺失维度也写 0
func coerceDeyu(raw map[string]any, all bool) (map[string]any, []dto.DeyuWarning) {
	fields := make(map[string]any, len(model.DeyuDimensions)+1)
	var warnings []dto.DeyuWarning
	for _, d := range model.DeyuDimensions {
		v, ok := raw[d.Key]
		if !ok && !all {
			continue
		}
		score := toScore(v)
		fields[d.Key] = score
		if score > d.Ceiling {
			warnings = append(warnings, dto.DeyuWarning{
				Dimension: d.Key, Label: d.Label, Value: score, Ceiling: d.Ceiling,
			})
		}
	}
	return fields, warnings
}

// toScore 数字按整数截断，数字字符串按整数解析，其余一律为 0
func toScore(v any) int {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0
		}
		return int(x)
	case int:
		return x
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

func nullDeyuFields() map[string]any {
	fields := make(map[string]any, len(model.DeyuDimensions))
	for _, d := range model.DeyuDimensions {
		fields[d.Key] = nil
	}
	return fields
}

// anyToID 兼容数字、数字字符串与空值的 class_id
func anyToID(v any) *uint {
	switch x := v.(type) {
	case float64:
		if x > 0 && x == math.Trunc(x) {
			id := uint(x)
			return &id
		}
	case string:
		n, err := strconv.ParseUint(strings.TrimSpace(x), 10, 64)
		if err == nil && n > 0 {
			id := uint(n)
			return &id
		}
	}
	return nil
}
