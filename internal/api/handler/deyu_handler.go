package handler

import (
	"errors"
	"fmt"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/ysxx86/ClassMaster/internal/dto"
	"github.com/ysxx86/ClassMaster/internal/service"
	"github.com/ysxx86/ClassMaster/pkg/response"
)

// DeyuHandler 德育模块 HTTP 处理器
type DeyuHandler struct {
	deyuSvc service.DeyuService
}

// NewDeyuHandler 创建 DeyuHandler
func NewDeyuHandler(deyuSvc service.DeyuService) *DeyuHandler {
	return &DeyuHandler{deyuSvc: deyuSvc}
}

// ListDeyu 德育列表，空分数按 0 展示
// GET /api/deyu?class_id=
func (h *DeyuHandler) ListDeyu(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	classID, ok := queryClassID(c)
	if !ok {
		return
	}

	records, err := h.deyuSvc.List(c.Request.Context(), caller, classID)
	if err != nil {
		if softDeny(c, err, "students") {
			return
		}
		h.handleDeyuError(c, err)
		return
	}
	response.OK(c, "", gin.H{"students": records})
}

// GetDeyu 单个学生德育分
// GET /api/deyu/:id?class_id=
func (h *DeyuHandler) GetDeyu(c *gin.Context) {
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

	record, err := h.deyuSvc.Get(c.Request.Context(), caller, id, classID)
	if err != nil {
		h.handleDeyuError(c, err)
		return
	}
	response.OK(c, "", gin.H{"student": record})
}

// SaveDeyu 保存德育分，非数字按 0 处理，超出满分仅提示
// POST /api/deyu/:id
func (h *DeyuHandler) SaveDeyu(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	id, ok := paramStudentID(c, "id")
	if !ok {
		return
	}

	raw := map[string]any{}
	if err := c.ShouldBindJSON(&raw); err != nil {
		response.BadRequest(c, "请求参数格式错误")
		return
	}
	if _, exists := raw["class_id"]; !exists {
		if q := c.Query("class_id"); q != "" {
			raw["class_id"] = q
		}
	}

	result, err := h.deyuSvc.Save(c.Request.Context(), caller, id, raw)
	if err != nil {
		h.handleDeyuError(c, err)
		return
	}
	response.OK(c, "德育分保存成功", gin.H{
		"student":     result.Record,
		"total_score": result.Record.TotalScore,
		"warnings":    result.Warnings,
	})
}

// ClearDeyu 清空学生德育分
// DELETE /api/deyu/:id?class_id=
func (h *DeyuHandler) ClearDeyu(c *gin.Context) {
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

	if err := h.deyuSvc.Clear(c.Request.Context(), caller, id, classID); err != nil {
		h.handleDeyuError(c, err)
		return
	}
	response.OK(c, "德育分已清空", nil)
}

// BatchSave 批量保存德育分
// POST /api/deyu/batch-update
func (h *DeyuHandler) BatchSave(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	var req dto.BatchDeyuRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.deyuSvc.BatchSave(c.Request.Context(), caller, &req)
	if err != nil {
		h.handleDeyuError(c, err)
		return
	}

	payload := gin.H{"updated": result.Updated, "errors": result.Errors, "warnings": result.Warnings}
	msg := fmt.Sprintf("成功更新 %d 名学生的德育分", result.Updated)
	switch {
	case len(result.Errors) == 0:
		response.OK(c, msg, payload)
	case result.Updated > 0:
		response.Partial(c, msg, payload)
	default:
		response.Warning(c, "没有学生记录被更新", payload)
	}
}

// ClearAll 清空班级全部德育分
// POST /api/deyu/clear-all
func (h *DeyuHandler) ClearAll(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	var req dto.ClearDeyuRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, dto.ValidationMessage(err))
		return
	}
	if !req.ClassID.Set {
		if req.ClassID.Value, ok = queryClassID(c); !ok {
			return
		}
	}

	n, err := h.deyuSvc.ClearAll(c.Request.Context(), caller, req.ClassID.Value)
	if err != nil {
		h.handleDeyuError(c, err)
		return
	}
	response.OK(c, fmt.Sprintf("已清空 %d 名学生的德育分", n), gin.H{"cleared": n})
}

// PreviewImport 德育分导入预览
// POST /api/deyu/preview-import
func (h *DeyuHandler) PreviewImport(c *gin.Context) {
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

	preview, err := h.deyuSvc.PreviewImport(c.Request.Context(), caller, classID, fh.Filename, f)
	if err != nil {
		h.handleDeyuError(c, err)
		return
	}
	respondPreview(c, preview)
}

// ConfirmImport 确认导入德育分
// POST /api/deyu/confirm-import
func (h *DeyuHandler) ConfirmImport(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	var req dto.DeyuImportRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.deyuSvc.ConfirmImport(c.Request.Context(), caller, &req)
	if err != nil {
		h.handleDeyuError(c, err)
		return
	}
	respondImport(c, result, nil)
}

// Template 下载德育导入模板
// GET /api/deyu/template?class_id=
func (h *DeyuHandler) Template(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	classID, ok := queryClassID(c)
	if !ok {
		return
	}

	buf, err := h.deyuSvc.Template(c.Request.Context(), caller, classID)
	if err != nil {
		h.handleDeyuError(c, err)
		return
	}
	sendXLSX(c, "德育导入模板.xlsx", buf)
}

// Export 导出德育分
// GET /api/deyu/export?class_id=
func (h *DeyuHandler) Export(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	classID, ok := queryClassID(c)
	if !ok {
		return
	}

	buf, err := h.deyuSvc.Export(c.Request.Context(), caller, classID)
	if err != nil {
		h.handleDeyuError(c, err)
		return
	}
	sendXLSX(c, xlsxName("deyu"), buf)
}

// handleDeyuError 统一处理德育模块业务错误
func (h *DeyuHandler) handleDeyuError(c *gin.Context, err error) {
	if handleImportError(c, err) {
		return
	}
	switch {
	case errors.Is(err, service.ErrStudentIDRequired):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}
