package handler

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/ysxx86/ClassMaster/internal/dto"
	"github.com/ysxx86/ClassMaster/internal/service"
	"github.com/ysxx86/ClassMaster/pkg/response"
)

// ClassHandler 班级模块 HTTP 处理器
type ClassHandler struct {
	classSvc service.ClassService
}

// NewClassHandler 创建 ClassHandler
func NewClassHandler(classSvc service.ClassService) *ClassHandler {
	return &ClassHandler{classSvc: classSvc}
}

// ListClasses 班级列表
// GET /api/classes
func (h *ClassHandler) ListClasses(c *gin.Context) {
	classes, err := h.classSvc.List(c.Request.Context())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, "", gin.H{"classes": classes})
}

// GetClass 班级详情
// GET /api/classes/:id
func (h *ClassHandler) GetClass(c *gin.Context) {
	id, ok := paramUint(c, "id", "班级ID")
	if !ok {
		return
	}

	class, err := h.classSvc.Get(c.Request.Context(), id)
	if err != nil {
		h.handleClassError(c, err)
		return
	}
	response.OK(c, "", gin.H{"class": class})
}

// CreateClass 新建班级
// POST /api/classes
func (h *ClassHandler) CreateClass(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	var req dto.ClassRequest
	if !bindJSON(c, &req) {
		return
	}

	class, err := h.classSvc.Create(c.Request.Context(), caller, req.ClassName)
	if err != nil {
		h.handleClassError(c, err)
		return
	}
	response.OK(c, "班级创建成功", gin.H{"class": class})
}

// RenameClass 修改班级名称
// PUT /api/classes/:id
func (h *ClassHandler) RenameClass(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	id, ok := paramUint(c, "id", "班级ID")
	if !ok {
		return
	}
	var req dto.ClassRequest
	if !bindJSON(c, &req) {
		return
	}

	class, err := h.classSvc.Rename(c.Request.Context(), caller, id, req.ClassName)
	if err != nil {
		h.handleClassError(c, err)
		return
	}
	response.OK(c, "班级更新成功", gin.H{"class": class})
}

// DeleteClass 删除班级，学生与班主任的归属随之清空
// DELETE /api/classes/:id
func (h *ClassHandler) DeleteClass(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	id, ok := paramUint(c, "id", "班级ID")
	if !ok {
		return
	}

	name, err := h.classSvc.Delete(c.Request.Context(), caller, id)
	if err != nil {
		h.handleClassError(c, err)
		return
	}
	response.OK(c, fmt.Sprintf("班级 %s 已删除", name), nil)
}

// PreviewClasses 批量创建预览
// POST /api/classes/preview
func (h *ClassHandler) PreviewClasses(c *gin.Context) {
	var req dto.ClassNamesRequest
	if !bindJSON(c, &req) {
		return
	}

	preview, err := h.classSvc.Preview(c.Request.Context(), req.ClassNames)
	if err != nil {
		h.handleClassError(c, err)
		return
	}
	response.OK(c, "", gin.H{"preview": preview.Entries, "stats": preview.Stats})
}

// BatchCreateClasses 批量创建班级
// POST /api/classes/batch-create
func (h *ClassHandler) BatchCreateClasses(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	var req dto.ClassNamesRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.classSvc.BatchCreate(c.Request.Context(), caller, req.ClassNames)
	if err != nil {
		h.handleClassError(c, err)
		return
	}
	response.OK(c, fmt.Sprintf("成功创建 %d 个班级，跳过 %d 个", len(result.Created), len(result.Skipped)), gin.H{
		"created": result.Created,
		"skipped": result.Skipped,
	})
}

// ListTeachers 可分配的班主任
// GET /api/teachers
func (h *ClassHandler) ListTeachers(c *gin.Context) {
	teachers, err := h.classSvc.Teachers(c.Request.Context())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, "", gin.H{"teachers": teachers})
}

// AssignTeacher 分配或取消班主任
// POST /api/classes/:id/assign-teacher
func (h *ClassHandler) AssignTeacher(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	id, ok := paramUint(c, "id", "班级ID")
	if !ok {
		return
	}
	var req dto.AssignTeacherRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.classSvc.AssignTeacher(c.Request.Context(), caller, id, req.TeacherID.Value)
	if err != nil {
		h.handleClassError(c, err)
		return
	}

	msg := "已取消班主任分配"
	if result.TeacherID != nil {
		msg = fmt.Sprintf("已将 %s 设为 %s 班主任", result.TeacherName, result.ClassName)
	}
	response.OK(c, msg, gin.H{"assignment": result})
}

// handleClassError 统一处理班级模块业务错误
func (h *ClassHandler) handleClassError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrClassNotFound),
		errors.Is(err, service.ErrTeacherNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrClassExists),
		errors.Is(err, service.ErrClassNameEmpty),
		errors.Is(err, service.ErrAdminAsTeacher):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}
