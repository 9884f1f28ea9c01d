package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/ysxx86/ClassMaster/internal/dto"
	"github.com/ysxx86/ClassMaster/internal/service"
	"github.com/ysxx86/ClassMaster/pkg/response"
)

// StudentHandler 学生模块 HTTP 处理器
type StudentHandler struct {
	studentSvc service.StudentService
}

// NewStudentHandler 创建 StudentHandler
func NewStudentHandler(studentSvc service.StudentService) *StudentHandler {
	return &StudentHandler{studentSvc: studentSvc}
}

// ListStudents 学生列表
// GET /api/students?class_id=
func (h *StudentHandler) ListStudents(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	classID, ok := queryClassID(c)
	if !ok {
		return
	}

	students, err := h.studentSvc.List(c.Request.Context(), caller, classID)
	if err != nil {
		if softDeny(c, err, "students") {
			return
		}
		h.handleStudentError(c, err)
		return
	}
	response.OK(c, "", gin.H{"students": students})
}

// GetStudent 学生详情
// GET /api/students/:id?class_id=
func (h *StudentHandler) GetStudent(c *gin.Context) {
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

	student, err := h.studentSvc.Get(c.Request.Context(), caller, id, classID)
	if err != nil {
		h.handleStudentError(c, err)
		return
	}
	response.OK(c, "", gin.H{"student": student})
}

// CreateStudent 新增学生
// POST /api/students
func (h *StudentHandler) CreateStudent(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	var req dto.CreateStudentRequest
	if !bindJSON(c, &req) {
		return
	}

	student, err := h.studentSvc.Create(c.Request.Context(), caller, &req)
	if err != nil {
		h.handleStudentError(c, err)
		return
	}
	response.OK(c, "学生添加成功", gin.H{"student": student})
}

// UpdateStudent 部分更新学生信息
// PUT /api/students/:id
func (h *StudentHandler) UpdateStudent(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	id, ok := paramStudentID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateStudentRequest
	if !bindJSON(c, &req) {
		return
	}
	if !req.ClassID.Set {
		if req.ClassID.Value, ok = queryClassID(c); !ok {
			return
		}
	}

	student, err := h.studentSvc.Update(c.Request.Context(), caller, id, &req)
	if err != nil {
		h.handleStudentError(c, err)
		return
	}
	response.OK(c, "学生信息更新成功", gin.H{"student": student})
}

// UpdateComments 覆盖学生评语
// PUT /api/students/:id/comments
func (h *StudentHandler) UpdateComments(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	id, ok := paramStudentID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateCommentsRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.studentSvc.UpdateComments(c.Request.Context(), caller, id, &req); err != nil {
		h.handleStudentError(c, err)
		return
	}
	response.OK(c, "评语更新成功", nil)
}

// DeleteStudent 删除学生
// DELETE /api/students/:id?class_id=
func (h *StudentHandler) DeleteStudent(c *gin.Context) {
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

	if err := h.studentSvc.Delete(c.Request.Context(), caller, id, classID); err != nil {
		h.handleStudentError(c, err)
		return
	}
	response.OK(c, "学生已删除", nil)
}

// PreviewImport 学生导入预览
// POST /api/students/preview-import
func (h *StudentHandler) PreviewImport(c *gin.Context) {
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

	preview, err := h.studentSvc.PreviewImport(c.Request.Context(), caller, classID, fh.Filename, f)
	if err != nil {
		h.handleStudentError(c, err)
		return
	}
	respondPreview(c, preview)
}

// ConfirmImport 确认导入学生
// POST /api/students/confirm-import
func (h *StudentHandler) ConfirmImport(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	var req dto.ConfirmImportRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.studentSvc.ConfirmImport(c.Request.Context(), caller, &req)
	if err != nil {
		h.handleStudentError(c, err)
		return
	}
	respondImport(c, result, nil)
}

// Template 下载学生导入模板
// GET /api/students/template
func (h *StudentHandler) Template(c *gin.Context) {
	buf, err := h.studentSvc.Template()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	sendXLSX(c, "学生导入模板.xlsx", buf)
}

// Export 导出学生信息
// GET /api/students/export?class_id=
func (h *StudentHandler) Export(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	classID, ok := queryClassID(c)
	if !ok {
		return
	}

	buf, err := h.studentSvc.Export(c.Request.Context(), caller, classID)
	if err != nil {
		h.handleStudentError(c, err)
		return
	}
	sendXLSX(c, xlsxName("students"), buf)
}

// handleStudentError 统一处理学生模块业务错误
func (h *StudentHandler) handleStudentError(c *gin.Context, err error) {
	if handleImportError(c, err) {
		return
	}
	switch {
	case errors.Is(err, service.ErrTeacherOwnClass):
		response.Forbidden(c, err.Error())
	case errors.Is(err, service.ErrClassNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrStudentExists),
		errors.Is(err, service.ErrNoFieldsToUpdate):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}
