package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/ysxx86/ClassMaster/internal/dto"
	"github.com/ysxx86/ClassMaster/internal/model"
	"github.com/ysxx86/ClassMaster/internal/repository"
	"github.com/ysxx86/ClassMaster/internal/scope"
	"github.com/ysxx86/ClassMaster/pkg/redis"
)

const reportSheet = "综合素质报告"

// ═══════════════════════════════════════════════════════════
// ExportReports 导出学生综合素质报告
// ═══════════════════════════════════════════════════════════
//
// 输出格式：
//   - 每名学生一个 .xlsx，打包为 student_reports_<时间>.zip
//   - 报告内容：基本信息、身体状况、学科成绩、德育维度、教师评语
//   - 携带请求ID时登记取消标记，每生成一个文件前检查一次
//
// 配置 export.direct_download 为真时直接返回压缩包，否则保存到导出目录

func (s *commentService) ExportReports(ctx context.Context, caller scope.Caller, requestID string, req *dto.ExportReportsRequest) (*dto.ReportBundle, error) {
	// 1. 登记取消标记
	if requestID != "" && s.registry != nil {
		if err := s.registry.RegisterExport(ctx, requestID, s.cfg.CancelTTL); err != nil {
			s.logger.Warn("登记导出请求失败，本次导出不可取消", zap.String("request_id", requestID), zap.Error(err))
		}
		defer func() {
			if err := s.registry.FinishExport(context.WithoutCancel(ctx), requestID); err != nil {
				s.logger.Warn("移除导出标记失败", zap.String("request_id", requestID), zap.Error(err))
			}
		}()
	}

	// 2. 定位学生，无权访问的静默跳过
	if _, err := caller.Resolve(req.ClassID.Value); err != nil {
		return nil, err
	}
	var students []*model.Student
	for _, id := range dedupe(req.StudentIDs) {
		st, err := locateStudent(ctx, s.repo, caller, id, req.ClassID.Value)
		if err != nil {
			if isScopeError(err) {
				continue
			}
			return nil, err
		}
		students = append(students, st)
	}
	if len(students) == 0 {
		return nil, ErrNoReportStudents
	}

	settings := s.reportSettings(req.Settings)

	// 3. 逐个生成并写入压缩包
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	used := make(map[string]int, len(students))
	for _, st := range students {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.cancelled(ctx, requestID) {
			s.logger.Info("导出请求已取消", zap.String("request_id", requestID))
			return nil, ErrExportCancelled
		}

		data, err := buildReport(st, settings)
		if err != nil {
			s.logger.Error("生成学生报告失败", zap.String("student_id", st.ID), zap.Error(err))
			return nil, err
		}
		w, err := zw.Create(uniqueEntry(used, reportFileName(st, settings.FileNameFormat)))
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("写入压缩包失败: %w", err)
	}
	if s.cancelled(ctx, requestID) {
		return nil, ErrExportCancelled
	}

	bundle := &dto.ReportBundle{
		Filename: "student_reports_" + s.now().Format("20060102_150405") + ".zip",
		Count:    len(students),
	}
	s.activity.record(ctx, caller, "export_reports", "student", "", req.ClassID.Value, map[string]any{"count": len(students)})

	// 4. 直接返回或落盘
	if s.cfg.DirectDownload {
		bundle.Data = buf.Bytes()
		return bundle, nil
	}
	if err := os.MkdirAll(s.exportDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建导出目录失败: %w", err)
	}
	bundle.Filename = savedExportName(caller.UserID, s.now())
	if err := os.WriteFile(filepath.Join(s.exportDir, bundle.Filename), buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("保存导出文件失败: %w", err)
	}
	bundle.DownloadURL = "/download/exports/" + bundle.Filename
	return bundle, nil
}

// cancelled 查询取消标记，存储不可用时视为未取消
func (s *commentService) cancelled(ctx context.Context, requestID string) bool {
	if requestID == "" || s.registry == nil {
		return false
	}
	ok, err := s.registry.IsExportCancelled(ctx, requestID)
	if err != nil {
		s.logger.Warn("查询导出取消标记失败", zap.String("request_id", requestID), zap.Error(err))
		return false
	}
	return ok
}

// reportSettings 补全缺省设置
func (s *commentService) reportSettings(in dto.ReportSettings) dto.ReportSettings {
	if in.SchoolYear == "" {
		in.SchoolYear = schoolYear(s.now())
	}
	if in.Semester == "" {
		in.Semester = "1"
	}
	if in.FileNameFormat == "" {
		in.FileNameFormat = "id_name"
	}
	return in
}

// schoolYear 九月起算新学年
func schoolYear(t time.Time) string {
	y := t.Year()
	if t.Month() < time.September {
		y--
	}
	return fmt.Sprintf("%d-%d", y, y+1)
}

func semesterLabel(v string) string {
	switch v {
	case "1":
		return "第一学期"
	case "2":
		return "第二学期"
	}
	return v
}

var fileNameReplacer = strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_")

func reportFileName(st *model.Student, format string) string {
	var base string
	switch format {
	case "name_id":
		base = st.Name + "_" + st.ID
	case "id":
		base = st.ID
	case "name":
		base = st.Name
	default:
		base = st.ID + "_" + st.Name
	}
	return fileNameReplacer.Replace(base) + ".xlsx"
}

// uniqueEntry 同名文件追加序号
func uniqueEntry(used map[string]int, name string) string {
	n := used[name]
	used[name] = n + 1
	if n == 0 {
		return name
	}
	ext := filepath.Ext(name)
	return fmt.Sprintf("%s(%d)%s", strings.TrimSuffix(name, ext), n+1, ext)
}

// ────────────────────── 报告单 ──────────────────────

type reportWriter struct {
	f      *excelize.File
	row    int
	title  int
	label  int
	value  int
	block  int
	ending int
}

func buildReport(st *model.Student, settings dto.ReportSettings) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		return nil, err
	}

	w := &reportWriter{f: f}
	if err := w.initStyles(); err != nil {
		return nil, err
	}
	f.SetColWidth(reportSheet, "A", "F", 14)

	w.merged("学生综合素质发展报告单", w.title)
	w.merged(fmt.Sprintf("%s学年 %s", settings.SchoolYear, semesterLabel(settings.Semester)), w.value)

	w.merged("基本信息", w.block)
	w.pairs([][2]any{
		{"学号", st.ID}, {"姓名", st.Name}, {"性别", st.Gender},
		{"班级", st.ClassName()}, {"学期", st.Semester}, {"", ""},
	})

	w.merged("身体状况", w.block)
	w.pairs([][2]any{
		{"身高(cm)", derefFloat(st.Height)}, {"体重(kg)", derefFloat(st.Weight)}, {"胸围(cm)", derefFloat(st.ChestCircumference)},
		{"肺活量(ml)", derefFloat(st.VitalCapacity)}, {"龋齿(个)", derefString(st.DentalCaries)}, {"视力(左/右)", fmt.Sprintf("%v / %v", derefFloat(st.VisionLeft), derefFloat(st.VisionRight))},
	})
	w.labelled("体测情况", derefString(st.PhysicalTestStatus))

	w.merged("学业成绩", w.block)
	grades := make([][2]any, 0, len(model.Subjects))
	for _, sub := range model.Subjects {
		grades = append(grades, [2]any{sub.Label, st.GradeOf(sub.Key)})
	}
	w.pairs(grades)

	w.merged("德育评价", w.block)
	deyu := make([][2]any, 0, len(model.DeyuDimensions))
	for _, d := range model.DeyuDimensions {
		v := 0
		if p := st.DeyuOf(d.Key); p != nil {
			v = *p
		}
		deyu = append(deyu, [2]any{fmt.Sprintf("%s(%d)", d.Label, d.Ceiling), v})
	}
	w.pairs(deyu)
	w.labelled("总分", st.DeyuTotal())

	w.merged("教师评语", w.block)
	w.merged(derefString(st.Comments), w.ending)
	f.SetRowHeight(reportSheet, w.row, 150)

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("写入 Excel 失败: %w", err)
	}
	return buf.Bytes(), nil
}

func (w *reportWriter) initStyles() error {
	border := []excelize.Border{
		{Type: "left", Color: "#999999", Style: 1},
		{Type: "right", Color: "#999999", Style: 1},
		{Type: "top", Color: "#999999", Style: 1},
		{Type: "bottom", Color: "#999999", Style: 1},
	}
	center := &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true}

	var err error
	if w.title, err = w.f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 16},
		Alignment: center,
	}); err != nil {
		return err
	}
	if w.block, err = w.f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 12},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Border:    border,
		Alignment: center,
	}); err != nil {
		return err
	}
	if w.label, err = w.f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Border:    border,
		Alignment: center,
	}); err != nil {
		return err
	}
	if w.value, err = w.f.NewStyle(&excelize.Style{Border: border, Alignment: center}); err != nil {
		return err
	}
	w.ending, err = w.f.NewStyle(&excelize.Style{
		Border:    border,
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "top", WrapText: true},
	})
	return err
}

// merged 整行合并单元格
func (w *reportWriter) merged(text string, style int) {
	w.row++
	first, last := cell("A", w.row), cell("F", w.row)
	w.f.MergeCell(reportSheet, first, last)
	w.f.SetCellValue(reportSheet, first, text)
	w.f.SetCellStyle(reportSheet, first, last, style)
}

// pairs 每行三组“标签 / 值”
func (w *reportWriter) pairs(items [][2]any) {
	for i, it := range items {
		if i%3 == 0 {
			w.row++
		}
		col := (i % 3) * 2
		lc, vc := cell(colName(col), w.row), cell(colName(col+1), w.row)
		w.f.SetCellValue(reportSheet, lc, it[0])
		w.f.SetCellValue(reportSheet, vc, it[1])
		w.f.SetCellStyle(reportSheet, lc, lc, w.label)
		w.f.SetCellStyle(reportSheet, vc, vc, w.value)
	}
}

// labelled 标签占一格，值合并其余五格
func (w *reportWriter) labelled(label string, value any) {
	w.row++
	lc, first, last := cell("A", w.row), cell("B", w.row), cell("F", w.row)
	w.f.SetCellValue(reportSheet, lc, label)
	w.f.SetCellStyle(reportSheet, lc, lc, w.label)
	w.f.MergeCell(reportSheet, first, last)
	w.f.SetCellValue(reportSheet, first, value)
	w.f.SetCellStyle(reportSheet, first, last, w.value)
}

// ────────────────────── Cancel / Download ──────────────────────

func (s *commentService) CancelExport(ctx context.Context, requestID string) error {
	if s.registry == nil {
		return ErrExportUnavailable
	}
	if err := s.registry.CancelExport(ctx, requestID); err != nil {
		if errors.Is(err, redis.ErrExportNotFound) {
			s.logger.Warn("未找到要取消的导出请求", zap.String("request_id", requestID))
			return ErrExportNotFound
		}
		s.logger.Error("取消导出失败", zap.String("request_id", requestID), zap.Error(err))
		return err
	}
	s.logger.Info("已标记导出请求为取消", zap.String("request_id", requestID))
	return nil
}

// 落盘的导出文件名：student_reports_<导出人ID>_<时间>_<uuid>.zip
var savedExportRe = regexp.MustCompile(`^student_reports_(\d+)_\d{8}_\d{6}_[0-9a-f-]{36}\.zip$`)

func savedExportName(userID uint, now time.Time) string {
	return fmt.Sprintf("student_reports_%d_%s_%s.zip", userID, now.Format("20060102_150405"), uuid.NewString())
}

// ExportPath 返回导出目录中文件的完整路径
// 只接受 savedExportName 生成的文件名；非管理员只能下载自己导出的文件
func (s *commentService) ExportPath(caller scope.Caller, filename string) (string, error) {
	m := savedExportRe.FindStringSubmatch(filename)
	if m == nil {
		return "", ErrExportFileNotFound
	}
	if !caller.IsAdmin && m[1] != strconv.FormatUint(uint64(caller.UserID), 10) {
		s.logger.Warn("拒绝下载他人导出文件", zap.Uint("user_id", caller.UserID), zap.String("file", filename))
		return "", ErrExportFileNotFound
	}
	p := filepath.Join(s.exportDir, filename)
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return "", ErrExportFileNotFound
	}
	return p, nil
}

// ────────────────────── 评语 Excel ──────────────────────

// Export 导出评语；未限定班级时学生数不得超过 export.max_students
func (s *commentService) Export(ctx context.Context, caller scope.Caller, classID *uint) (*bytes.Buffer, error) {
	effective, err := caller.Resolve(classID)
	if err != nil {
		return nil, err
	}
	if effective == nil && s.cfg.MaxStudents > 0 {
		n, err := s.repo.Student.Count(ctx, nil)
		if err != nil {
			return nil, err
		}
		if n > int64(s.cfg.MaxStudents) {
			return nil, ErrTooManyStudents
		}
	}

	students, err := s.repo.Student.List(ctx, repository.StudentFilter{ClassID: effective})
	if err != nil {
		s.logger.Error("导出评语失败", zap.Error(err))
		return nil, err
	}
	rows := make([][]any, 0, len(students))
	for _, st := range students {
		rows = append(rows, []any{st.ID, st.Name, st.ClassName(), derefString(st.Comments), st.UpdatedAt.Format(model.TimeLayout)})
	}
	return workbook("评语", []string{"学号", "姓名", "班级", "评语", "更新时间"}, rows)
}
