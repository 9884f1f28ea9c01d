package handler

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/ysxx86/ClassMaster/internal/dto"
	"github.com/ysxx86/ClassMaster/internal/service"
	"github.com/ysxx86/ClassMaster/pkg/response"
)

// GradeHandler 成绩模块 HTTP 处理器
type GradeHandler struct {
	gradeSvc service.GradeService
}

// NewGradeHandler 创建 GradeHandler
func NewGradeHandler(gradeSvc service.GradeService) *GradeHandler {
	return &GradeHandler{gradeSvc: gradeSvc}
}

// ListGrades 成绩列表
// GET /api/grades?class_id=&semester=
func (h *GradeHandler) ListGrades(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	classID, ok := queryClassID(c)
	if !ok {
		return
	}

	grades, err := h.gradeSvc.List(c.Request.Context(), caller, classID, c.Query("semester"))
	if err != nil {
		if softDeny(c, err, "grades") {
			return
		}
		h.handleGradeError(c, err)
		return
	}
	response.OK(c, "", gin.H{"grades": grades})
}

// GetGrades 单个学生成绩
// GET /api/grades/:id?class_id=
func (h *GradeHandler) GetGrades(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	id, ok := paramStudentID(c, "id")
	if !ok {
		return
	}
	classID, ok := queryClassID(c)
	if !ok {
		return
	}

	record, err := h.gradeSvc.Get(c.Request.Context(), caller, id, classID)
	if err != nil {
		h.handleGradeError(c, err)
		return
	}
	response.OK(c, "", gin.H{"grades": record})
}

// SaveGrades 保存学生成绩（仅更新出现的学科）
// POST /api/grades/:id
func (h *GradeHandler) SaveGrades(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	id, ok := paramStudentID(c, "id")
	if !ok {
		return
	}
	var req dto.SaveGradesRequest
	if !bindJSON(c, &req) {
		return
	}

	record, err := h.gradeSvc.Save(c.Request.Context(), caller, id, &req)
	if err != nil {
		h.handleGradeError(c, err)
		return
	}
	response.OK(c, "成绩保存成功", gin.H{"grades": record})
}

// ClearGrades 清空学生全部成绩
// DELETE /api/grades/:id?class_id=
func (h *GradeHandler) ClearGrades(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	id, ok := paramStudentID(c, "id")
	if !ok {
		return
	}
	classID, ok := queryClassID(c)
	if !ok {
		return
	}

	if err := h.gradeSvc.Clear(c.Request.Context(), caller, id, classID); err != nil {
		h.handleGradeError(c, err)
		return
	}
	response.OK(c, "成绩已清空", nil)
}

// UpdateSubject 单科成绩更新
// POST /api/students/:id/update-subject
func (h *GradeHandler) UpdateSubject(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	id, ok := paramStudentID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateSubjectRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.gradeSvc.UpdateSubject(c.Request.Context(), caller, id, &req); err != nil {
		if errors.Is(err, service.ErrNothingUpdated) {
			response.Warning(c, err.Error(), nil)
			return
		}
		h.handleGradeError(c, err)
		return
	}
	response.OK(c, "成绩更新成功", gin.H{"subject": req.Subject, "grade": req.Grade})
}

// BatchPreview 批量成绩预览
// POST /api/grades/batch-preview
func (h *GradeHandler) BatchPreview(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	var req dto.BatchGradeRequest
	if !bindJSON(c, &req) {
		return
	}

	preview, err := h.gradeSvc.BatchPreview(c.Request.Context(), caller, &req)
	if err != nil {
		h.handleGradeError(c, err)
		return
	}
	response.OK(c, "", batchPayload(preview))
}

// BatchUpdate 批量设置成绩
// POST /api/grades/batch-update
func (h *GradeHandler) BatchUpdate(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	var req dto.BatchGradeRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.gradeSvc.BatchUpdate(c.Request.Context(), caller, &req)
	if err != nil {
		h.handleGradeError(c, err)
		return
	}
	if len(result.Changes) == 0 {
		response.Warning(c, service.ErrNothingUpdated.Error(), batchPayload(result))
		return
	}
	response.OK(c, fmt.Sprintf("成功更新 %d 名学生的成绩", len(result.Changes)), batchPayload(result))
}

// PreviewImport 成绩导入预览
// POST /api/grades/preview-import
func (h *GradeHandler) PreviewImport(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	classID, ok := formClassID(c)
	if !ok {
		return
	}
	fh, f, ok := uploadedFile(c)
	if !ok {
		return
	}
	defer f.Close()

	preview, err := h.gradeSvc.PreviewImport(c.Request.Context(), caller, classID, fh.Filename, f)
	if err != nil {
		h.handleGradeError(c, err)
		return
	}
	respondPreview(c, preview)
}

// ConfirmImport 确认导入成绩
// POST /api/grades/confirm-import
func (h *GradeHandler) ConfirmImport(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	var req dto.GradeImportRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.gradeSvc.ConfirmImport(c.Request.Context(), caller, &req)
	if err != nil {
		h.handleGradeError(c, err)
		return
	}
	respondImport(c, result, nil)
}

// Template 下载成绩导入模板（含本班学生名单）
// GET /api/grades/template?class_id=
func (h *GradeHandler) Template(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	classID, ok := queryClassID(c)
	if !ok {
		return
	}

	buf, err := h.gradeSvc.Template(c.Request.Context(), caller, classID)
	if err != nil {
		h.handleGradeError(c, err)
		return
	}
	sendXLSX(c, "成绩导入模板.xlsx", buf)
}

func batchPayload(p *dto.BatchPreview) gin.H {
	return gin.H{"changes": p.Changes, "skipped": p.Skipped, "unchanged": p.Unchanged}
}

// handleGradeError 统一处理成绩模块业务错误
func (h *GradeHandler) handleGradeError(c *gin.Context, err error) {
	if handleImportError(c, err) {
		return
	}
	switch {
	case errors.Is(err, service.ErrInvalidSubject),
		errors.Is(err, service.ErrInvalidGrade),
		errors.Is(err, service.ErrNoFieldsToUpdate):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}
