package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ysxx86/ClassMaster/internal/dto"
	"github.com/ysxx86/ClassMaster/internal/model"
	"github.com/ysxx86/ClassMaster/internal/repository"
	"github.com/ysxx86/ClassMaster/internal/scope"
)

const uploadKindStudents = "students"

// StudentService 学生业务接口
type StudentService interface {
	List(ctx context.Context, caller scope.Caller, classID *uint) ([]dto.StudentResponse, error)
	Get(ctx context.Context, caller scope.Caller, id string, classID *uint) (*dto.StudentResponse, error)
	Create(ctx context.Context, caller scope.Caller, req *dto.CreateStudentRequest) (*dto.StudentResponse, error)
	Update(ctx context.Context, caller scope.Caller, id string, req *dto.UpdateStudentRequest) (*dto.StudentResponse, error)
	UpdateComments(ctx context.Context, caller scope.Caller, id string, req *dto.UpdateCommentsRequest) error
	Delete(ctx context.Context, caller scope.Caller, id string, classID *uint) error
	PreviewImport(ctx context.Context, caller scope.Caller, classID *uint, filename string, r io.Reader) (*dto.ImportPreview, error)
	ConfirmImport(ctx context.Context, caller scope.Caller, req *dto.ConfirmImportRequest) (*dto.ImportResult, error)
	Template() (*bytes.Buffer, error)
	Export(ctx context.Context, caller scope.Caller, classID *uint) (*bytes.Buffer, error)
}

type studentService struct {
	repo     *repository.Repository
	uploads  *UploadStore
	activity activityLog
	logger   *zap.Logger
}

// NewStudentService 创建 StudentService 实例
func NewStudentService(repo *repository.Repository, uploads *UploadStore, logger *zap.Logger) StudentService {
	return &studentService{
		repo:     repo,
		uploads:  uploads,
		activity: activityLog{repo: repo, logger: logger},
		logger:   logger,
	}
}

// locateStudent 按学号定位调用者可访问的学生行
// 同一学号可能存在于多个班级，requested 用于消除歧义
func locateStudent(ctx context.Context, repo *repository.Repository, caller scope.Caller, id string, requested *uint) (*model.Student, error) {
	rows, err := repo.Student.ListByNumber(ctx, id)
	if err != nil {
		return nil, err
	}
	classIDs := make([]*uint, len(rows))
	for i := range rows {
		classIDs[i] = rows[i].ClassID
	}
	idx, err := caller.PickStudent(classIDs, requested)
	if err != nil {
		return nil, err
	}
	return &rows[idx], nil
}

// ────────────────────── List / Get ──────────────────────

func (s *studentService) List(ctx context.Context, caller scope.Caller, classID *uint) ([]dto.StudentResponse, error) {
	effective, err := caller.Resolve(classID)
	if err != nil {
		return nil, err
	}
	students, err := s.repo.Student.List(ctx, repository.StudentFilter{ClassID: effective})
	if err != nil {
		s.logger.Error("获取学生列表失败", zap.Error(err))
		return nil, err
	}
	result := make([]dto.StudentResponse, 0, len(students))
	for i := range students {
		result = append(result, dto.NewStudentResponse(&students[i]))
	}
	return result, nil
}

func (s *studentService) Get(ctx context.Context, caller scope.Caller, id string, classID *uint) (*dto.StudentResponse, error) {
	student, err := locateStudent(ctx, s.repo, caller, id, classID)
	if err != nil {
		return nil, err
	}
	resp := dto.NewStudentResponse(student)
	return &resp, nil
}

// ────────────────────── Create ──────────────────────

func (s *studentService) Create(ctx context.Context, caller scope.Caller, req *dto.CreateStudentRequest) (*dto.StudentResponse, error) {
	classID, err := caller.Require(req.ClassID.Value)
	if err != nil {
		if errors.Is(err, scope.ErrClassMismatch) {
			return nil, ErrTeacherOwnClass
		}
		return nil, err
	}
	if _, err := s.repo.Class.GetByID(ctx, classID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClassNotFound
		}
		return nil, err
	}

	id := strings.TrimSpace(req.ID)
	exists, err := s.repo.Student.Exists(ctx, id, &classID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, &StudentExistsError{ID: id}
	}

	student := &model.Student{
		ID:                 id,
		ClassID:            &classID,
		Name:               strings.TrimSpace(req.Name),
		Gender:             req.Gender,
		Height:             req.Height,
		Weight:             req.Weight,
		ChestCircumference: req.ChestCircumference,
		VitalCapacity:      req.VitalCapacity,
		DentalCaries:       req.DentalCaries,
		VisionLeft:         req.VisionLeft,
		VisionRight:        req.VisionRight,
		PhysicalTestStatus: req.PhysicalTestStatus,
		Comments:           req.Comments,
		Semester:           model.DefaultSemester,
	}
	if err := s.repo.Student.Create(ctx, student); err != nil {
		s.logger.Error("添加学生失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	s.activity.record(ctx, caller, "create_student", "student", id, &classID, map[string]any{"name": student.Name})

	created, err := s.repo.Student.Get(ctx, id, &classID)
	if err != nil {
		return nil, err
	}
	resp := dto.NewStudentResponse(created)
	return &resp, nil
}

// ────────────────────── Update ──────────────────────

func (s *studentService) Update(ctx context.Context, caller scope.Caller, id string, req *dto.UpdateStudentRequest) (*dto.StudentResponse, error) {
	student, err := locateStudent(ctx, s.repo, caller, id, req.ClassID.Value)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if req.Name != nil {
		fields["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Gender != nil {
		fields["gender"] = *req.Gender
	}
	if req.Height != nil {
		fields["height"] = *req.Height
	}
	if req.Weight != nil {
		fields["weight"] = *req.Weight
	}
	if req.ChestCircumference != nil {
		fields["chest_circumference"] = *req.ChestCircumference
	}
	if req.VitalCapacity != nil {
		fields["vital_capacity"] = *req.VitalCapacity
	}
	if req.DentalCaries != nil {
		fields["dental_caries"] = *req.DentalCaries
	}
	if req.VisionLeft != nil {
		fields["vision_left"] = *req.VisionLeft
	}
	if req.VisionRight != nil {
		fields["vision_right"] = *req.VisionRight
	}
	if req.PhysicalTestStatus != nil {
		fields["physical_test_status"] = *req.PhysicalTestStatus
	}
	if req.Comments != nil {
		fields["comments"] = *req.Comments
	}
	if len(fields) == 0 {
		return nil, ErrNoFieldsToUpdate
	}

	if _, err := s.repo.Student.UpdateFields(ctx, student.ID, student.ClassID, fields); err != nil {
		s.logger.Error("更新学生失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	s.activity.record(ctx, caller, "update_student", "student", id, student.ClassID, nil)

	updated, err := s.repo.Student.Get(ctx, student.ID, student.ClassID)
	if err != nil {
		return nil, err
	}
	resp := dto.NewStudentResponse(updated)
	return &resp, nil
}

func (s *studentService) UpdateComments(ctx context.Context, caller scope.Caller, id string, req *dto.UpdateCommentsRequest) error {
	student, err := locateStudent(ctx, s.repo, caller, id, req.ClassID.Value)
	if err != nil {
		return err
	}
	if _, err := s.repo.Student.UpdateFields(ctx, student.ID, student.ClassID, map[string]any{"comments": req.Comments}); err != nil {
		s.logger.Error("更新学生评语失败", zap.String("id", id), zap.Error(err))
		return err
	}
	return nil
}

// ────────────────────── Delete ──────────────────────

func (s *studentService) Delete(ctx context.Context, caller scope.Caller, id string, classID *uint) error {
	student, err := locateStudent(ctx, s.repo, caller, id, classID)
	if err != nil {
		return err
	}
	if err := s.repo.Student.Delete(ctx, student.ID, student.ClassID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return scope.ErrStudentNotFound
		}
		s.logger.Error("删除学生失败", zap.String("id", id), zap.Error(err))
		return err
	}
	s.activity.record(ctx, caller, "delete_student", "student", id, student.ClassID, map[string]any{"name": student.Name})
	return nil
}

// ────────────────────── Import ──────────────────────

// studentColumn 导入导出列定义，Aliases[0] 为标准表头
type studentColumn struct {
	Aliases []string
	Field   string
	Numeric bool
}

var studentColumns = []studentColumn{
	{[]string{"性别"}, "gender", false},
	{[]string{"身高(cm)", "身高"}, "height", true},
	{[]string{"体重(kg)", "体重"}, "weight", true},
	{[]string{"胸围(cm)", "胸围"}, "chest_circumference", true},
	{[]string{"肺活量(ml)", "肺活量"}, "vital_capacity", true},
	{[]string{"龋齿(个)", "龋齿"}, "dental_caries", false},
	{[]string{"视力左"}, "vision_left", true},
	{[]string{"视力右"}, "vision_right", true},
	{[]string{"体测情况"}, "physical_test_status", false},
}

// studentImportRow 通过校验、待写入的一行
type studentImportRow struct {
	Row     int
	ID      string
	Name    string
	ClassID uint
	Exists  bool
	Fields  map[string]any // 表格中出现的列
}

// planStudentImport 预览与确认共用的校验逻辑，不写库
func (s *studentService) planStudentImport(ctx context.Context, caller scope.Caller, defaultClass *uint, r io.Reader) ([]studentImportRow, []dto.ImportRowError, error) {
	// 班主任未分班不能导入；管理员可不指定默认班级
	forced, err := caller.Resolve(defaultClass)
	if err != nil {
		return nil, nil, err
	}
	if !caller.IsAdmin {
		defaultClass = forced
	}

	rows, err := readSheet(r, "学号", "姓名")
	if err != nil {
		return nil, nil, err
	}

	var classByName map[string]uint
	if caller.IsAdmin {
		classes, err := s.repo.Class.List(ctx)
		if err != nil {
			return nil, nil, err
		}
		classByName = make(map[string]uint, len(classes))
		for _, c := range classes {
			classByName[c.ClassName] = c.ID
		}
	}

	var (
		valid []studentImportRow
		errs  = []dto.ImportRowError{}
		seen  = make(map[string]bool)
	)
	for _, row := range rows {
		id, name := row.Values["学号"], row.Values["姓名"]
		if id == "" || name == "" {
			errs = append(errs, dto.ImportRowError{Row: row.Row, ID: id, Reason: "学号或姓名为空"})
			continue
		}

		var classID uint
		switch className := row.Values["班级"]; {
		case !caller.IsAdmin:
			classID = *defaultClass
		case className != "":
			cid, ok := classByName[className]
			if !ok {
				errs = append(errs, dto.ImportRowError{Row: row.Row, ID: id, Reason: fmt.Sprintf("班级 \"%s\" 不存在", className)})
				continue
			}
			classID = cid
		case defaultClass != nil:
			classID = *defaultClass
		default:
			errs = append(errs, dto.ImportRowError{Row: row.Row, ID: id, Reason: "班级信息缺失"})
			continue
		}

		item := studentImportRow{
			Row:     row.Row,
			ID:      id,
			Name:    name,
			ClassID: classID,
			Fields:  map[string]any{"name": name},
		}
		for _, col := range studentColumns {
			raw, ok := lookupAlias(row.Values, col.Aliases)
			if !ok {
				continue
			}
			if raw == "-" {
				raw = ""
			}
			if col.Numeric {
				item.Fields[col.Field] = parseFloat(raw)
			} else {
				item.Fields[col.Field] = optString(raw)
			}
		}
		// gender 非空约束
		if g, ok := item.Fields["gender"].(*string); !ok || g == nil {
			item.Fields["gender"] = ""
		} else {
			item.Fields["gender"] = *g
		}

		// 表内重复的学号按后出现的行更新
		key := fmt.Sprintf("%s/%d", id, classID)
		exists := seen[key]
		if !exists {
			if exists, err = s.repo.Student.Exists(ctx, id, &classID); err != nil {
				return nil, nil, err
			}
		}
		seen[key] = true
		item.Exists = exists
		valid = append(valid, item)
	}
	return valid, errs, nil
}

func (s *studentService) PreviewImport(ctx context.Context, caller scope.Caller, classID *uint, filename string, r io.Reader) (*dto.ImportPreview, error) {
	if _, err := caller.Resolve(classID); err != nil {
		return nil, err
	}
	name, err := s.uploads.Save(uploadKindStudents, filename, r)
	if err != nil {
		return nil, err
	}
	f, err := s.uploads.Open(uploadKindStudents, name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	valid, errs, err := s.planStudentImport(ctx, caller, classID, f)
	if err != nil {
		return nil, err
	}

	preview := &dto.ImportPreview{
		FilePath: name,
		Total:    len(valid) + len(errs), // 全部数据行，与确认结果一致
		Skipped:  len(errs),
		Errors:   errs,
		Rows:     make([]map[string]any, 0, len(valid)),
	}
	for _, v := range valid {
		if v.Exists {
			preview.Updated++
		} else {
			preview.Added++
		}
		row := map[string]any{"row": v.Row, "id": v.ID, "class_id": v.ClassID, "exists": v.Exists}
		for k, val := range v.Fields {
			row[k] = val
		}
		preview.Rows = append(preview.Rows, row)
	}
	return preview, nil
}

func (s *studentService) ConfirmImport(ctx context.Context, caller scope.Caller, req *dto.ConfirmImportRequest) (*dto.ImportResult, error) {
	f, err := s.uploads.Open(uploadKindStudents, req.FilePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	valid, errs, err := s.planStudentImport(ctx, caller, req.ClassID.Value, f)
	if err != nil {
		return nil, err
	}

	result := &dto.ImportResult{
		Total:   len(valid) + len(errs),
		Skipped: len(errs),
		Errors:  errs,
	}

	// 单行写入失败只记入错误，不影响其他行
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		for _, v := range valid {
			classID := v.ClassID
			var werr error
			if v.Exists {
				_, werr = tx.Student.UpdateFields(ctx, v.ID, &classID, v.Fields)
			} else {
				werr = tx.Student.Create(ctx, newImportedStudent(v))
			}
			if werr != nil {
				s.logger.Warn("导入学生失败", zap.String("id", v.ID), zap.Error(werr))
				result.Failed++
				result.Errors = append(result.Errors, dto.ImportRowError{
					Row: v.Row, ID: v.ID, Reason: fmt.Sprintf("学生 %s 导入失败: %v", v.Name, werr),
				})
				continue
			}
			if v.Exists {
				result.Updated++
			} else {
				result.Added++
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("确认导入学生失败", zap.Error(err))
		return nil, err
	}

	result.Success = result.Added + result.Updated
	s.logger.Info("学生导入完成",
		zap.Int("inserted", result.Added), zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped), zap.Int("failed", result.Failed))
	s.activity.record(ctx, caller, "import_students", "student", "", caller.ClassID, map[string]any{
		"inserted": result.Added, "updated": result.Updated,
	})
	return result, nil
}

func newImportedStudent(v studentImportRow) *model.Student {
	classID := v.ClassID
	st := &model.Student{ID: v.ID, ClassID: &classID, Name: v.Name, Semester: model.DefaultSemester}
	st.Gender, _ = v.Fields["gender"].(string)
	st.Height, _ = v.Fields["height"].(*float64)
	st.Weight, _ = v.Fields["weight"].(*float64)
	st.ChestCircumference, _ = v.Fields["chest_circumference"].(*float64)
	st.VitalCapacity, _ = v.Fields["vital_capacity"].(*float64)
	st.DentalCaries, _ = v.Fields["dental_caries"].(*string)
	st.VisionLeft, _ = v.Fields["vision_left"].(*float64)
	st.VisionRight, _ = v.Fields["vision_right"].(*float64)
	st.PhysicalTestStatus, _ = v.Fields["physical_test_status"].(*string)
	return st
}

func lookupAlias(values map[string]string, aliases []string) (string, bool) {
	for _, a := range aliases {
		if v, ok := values[a]; ok {
			return v, true
		}
	}
	return "", false
}

// ────────────────────── Template / Export ──────────────────────

var studentHeaders = []string{"学号", "姓名", "性别", "班级", "身高(cm)", "体重(kg)", "胸围(cm)", "肺活量(ml)", "龋齿(个)", "视力左", "视力右", "体测情况"}

func (s *studentService) Template() (*bytes.Buffer, error) {
	return workbook("学生信息", studentHeaders, [][]any{
		{"1", "张三", "男", "三年级一班", 135, 32, 65, 1500, "0", 5.0, 5.0, "良好"},
	})
}

func (s *studentService) Export(ctx context.Context, caller scope.Caller, classID *uint) (*bytes.Buffer, error) {
	effective, err := caller.Resolve(classID)
	if err != nil {
		return nil, err
	}
	students, err := s.repo.Student.List(ctx, repository.StudentFilter{ClassID: effective})
	if err != nil {
		s.logger.Error("导出学生失败", zap.Error(err))
		return nil, err
	}

	rows := make([][]any, 0, len(students))
	for i := range students {
		st := &students[i]
		rows = append(rows, []any{
			st.ID, st.Name, st.Gender, st.ClassName(),
			derefFloat(st.Height), derefFloat(st.Weight), derefFloat(st.ChestCircumference),
			derefFloat(st.VitalCapacity), derefString(st.DentalCaries),
			derefFloat(st.VisionLeft), derefFloat(st.VisionRight), derefString(st.PhysicalTestStatus),
		})
	}
	return workbook("学生信息", studentHeaders, rows)
}
