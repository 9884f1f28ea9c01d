package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ysxx86/ClassMaster/internal/dto"
	"github.com/ysxx86/ClassMaster/internal/service"
	"github.com/ysxx86/ClassMaster/pkg/response"
)

// ExportRequestHeader 前端为每次报告导出生成的请求标识
const ExportRequestHeader = "X-Export-Request-ID"

// CommentHandler 评语与报告导出 HTTP 处理器
type CommentHandler struct {
	commentSvc service.CommentService
	logger     *zap.Logger
}

// NewCommentHandler 创建 CommentHandler
func NewCommentHandler(commentSvc service.CommentService, logger *zap.Logger) *CommentHandler {
	return &CommentHandler{commentSvc: commentSvc, logger: logger}
}

// GetComment 学生评语及历史
// GET /api/comments/:studentId?class_id=
func (h *CommentHandler) GetComment(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	id, ok := paramStudentID(c, "studentId")
	if !ok {
		return
	}
	classID, ok := queryClassID(c)
	if !ok {
		return
	}

	comment, err := h.commentSvc.Get(c.Request.Context(), caller, id, classID)
	if err != nil {
		h.handleCommentError(c, err)
		return
	}
	response.OK(c, "", gin.H{"comment": comment})
}

// SaveComment 保存评语（覆盖或追加）
// POST /api/comments
func (h *CommentHandler) SaveComment(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	var req dto.SaveCommentRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.commentSvc.Save(c.Request.Context(), caller, &req)
	if err != nil {
		h.handleCommentError(c, err)
		return
	}
	response.OK(c, "评语保存成功", gin.H{
		"updatedContent": result.UpdatedContent,
		"updateDate":     result.UpdateDate,
	})
}

// Templates 评语模板
// GET /api/comment-templates
func (h *CommentHandler) Templates(c *gin.Context) {
	response.OK(c, "", gin.H{"templates": h.commentSvc.Templates()})
}

// BatchPreview 批量评语预览
// POST /api/comments/batch-preview
func (h *CommentHandler) BatchPreview(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	var req dto.BatchCommentRequest
	if !bindJSON(c, &req) {
		return
	}

	preview, err := h.commentSvc.BatchPreview(c.Request.Context(), caller, &req)
	if err != nil {
		h.handleCommentError(c, err)
		return
	}
	response.OK(c, "", gin.H{"changes": preview.Changes, "skipped": preview.Skipped})
}

// BatchUpdate 批量更新评语
// POST /api/batch-update-comments
func (h *CommentHandler) BatchUpdate(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	var req dto.BatchCommentRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.commentSvc.BatchUpdate(c.Request.Context(), caller, &req)
	if err != nil {
		h.handleCommentError(c, err)
		return
	}

	payload := gin.H{"updated": len(result.Changes), "changes": result.Changes, "skipped": result.Skipped}
	if len(result.Changes) == 0 {
		response.Warning(c, "没有学生评语被更新", payload)
		return
	}
	response.OK(c, fmt.Sprintf("成功更新 %d 名学生的评语", len(result.Changes)), payload)
}

// ExportReports 导出学生报告（zip）
// POST /api/export-reports
func (h *CommentHandler) ExportReports(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	var req dto.ExportReportsRequest
	if !bindJSON(c, &req) {
		return
	}
	requestID := c.GetHeader(ExportRequestHeader)

	bundle, err := h.commentSvc.ExportReports(c.Request.Context(), caller, requestID, &req)
	if err != nil {
		if errors.Is(err, service.ErrExportCancelled) {
			h.logger.Info("报告导出已取消", zap.String("request_id", requestID))
			response.Warning(c, err.Error(), gin.H{"cancelled": true})
			return
		}
		h.handleCommentError(c, err)
		return
	}

	if bundle.Data != nil {
		response.Attachment(c, bundle.Filename, response.ContentTypeZip, bundle.Data)
		return
	}
	response.OK(c, fmt.Sprintf("成功导出 %d 份学生报告", bundle.Count), gin.H{
		"filename":     bundle.Filename,
		"count":        bundle.Count,
		"download_url": bundle.DownloadURL,
	})
}

// CancelExport 取消进行中的报告导出
// POST /api/cancel-export
func (h *CommentHandler) CancelExport(c *gin.Context) {
	var req dto.CancelExportRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.commentSvc.CancelExport(c.Request.Context(), req.RequestID); err != nil {
		if errors.Is(err, service.ErrExportNotFound) {
			response.Warning(c, err.Error(), nil)
			return
		}
		h.handleCommentError(c, err)
		return
	}
	response.OK(c, "已发送取消请求", gin.H{"requestId": req.RequestID})
}

// Download 下载已保存的导出文件
// GET /download/exports/:filename
func (h *CommentHandler) Download(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	path, err := h.commentSvc.ExportPath(caller, c.Param("filename"))
	if err != nil {
		h.handleCommentError(c, err)
		return
	}
	c.FileAttachment(path, c.Param("filename"))
}

// Export 导出评语表
// GET /api/comments/export?class_id=
func (h *CommentHandler) Export(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	classID, ok := queryClassID(c)
	if !ok {
		return
	}

	buf, err := h.commentSvc.Export(c.Request.Context(), caller, classID)
	if err != nil {
		h.handleCommentError(c, err)
		return
	}
	sendXLSX(c, xlsxName("comments"), buf)
}

// handleCommentError 统一处理评语模块业务错误
func (h *CommentHandler) handleCommentError(c *gin.Context, err error) {
	if handleScopeError(c, err) {
		return
	}
	switch {
	case errors.Is(err, service.ErrExportFileNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrExportUnavailable):
		response.Error(c, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, service.ErrCommentEmpty),
		errors.Is(err, service.ErrStudentIDRequired),
		errors.Is(err, service.ErrNoReportStudents),
		errors.Is(err, service.ErrTooManyStudents):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}
