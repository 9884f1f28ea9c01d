package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ysxx86/ClassMaster/internal/dto"
	"github.com/ysxx86/ClassMaster/internal/service"
	"github.com/ysxx86/ClassMaster/pkg/deepseek"
	"github.com/ysxx86/ClassMaster/pkg/response"
)

// AIHandler AI 评语与系统设置 HTTP 处理器
type AIHandler struct {
	aiSvc service.AIService
}

// NewAIHandler 创建 AIHandler
func NewAIHandler(aiSvc service.AIService) *AIHandler {
	return &AIHandler{aiSvc: aiSvc}
}

// GenerateComment AI 生成评语，结果不落库
// POST /api/generate-comment
func (h *AIHandler) GenerateComment(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	var req dto.GenerateCommentRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.aiSvc.GenerateComment(c.Request.Context(), caller, &req)
	if err != nil {
		h.handleAIError(c, err)
		return
	}
	response.OK(c, "评语生成成功", gin.H{
		"comment":    resp.Comment,
		"student_id": resp.StudentID,
		"class_id":   resp.ClassID,
	})
}

// Settings 系统设置
// GET /api/settings
func (h *AIHandler) Settings(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	settings, err := h.aiSvc.Settings(c.Request.Context(), caller)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, "", gin.H{"settings": settings})
}

// SaveDeepSeek 保存 DeepSeek 密钥，空串停用
// POST /api/settings/deepseek
func (h *AIHandler) SaveDeepSeek(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	var req dto.DeepSeekKeyRequest
	if !bindJSON(c, &req) {
		return
	}

	enabled, err := h.aiSvc.SaveDeepSeekKey(c.Request.Context(), caller, req.APIKey)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	msg := "DeepSeek API 已停用"
	if enabled {
		msg = "DeepSeek API 密钥已保存"
	}
	response.OK(c, msg, gin.H{"api_enabled": enabled})
}

// TestDeepSeek 测试密钥是否可用
// POST /api/test-deepseek
func (h *AIHandler) TestDeepSeek(c *gin.Context) {
	var req dto.DeepSeekKeyRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.aiSvc.TestDeepSeekKey(c.Request.Context(), req.APIKey); err != nil {
		h.handleAIError(c, err)
		return
	}
	response.OK(c, "DeepSeek API 连接成功", nil)
}

func (h *AIHandler) handleAIError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, deepseek.ErrNoAPIKey):
		response.Error(c, http.StatusServiceUnavailable, "未配置 DeepSeek API 密钥，请联系管理员")
	case errors.Is(err, deepseek.ErrInvalidAPIKey),
		errors.Is(err, service.ErrAPIKeyRequired),
		errors.Is(err, service.ErrStudentIDRequired):
		response.BadRequest(c, err.Error())
	case handleScopeError(c, err):
	case errors.Is(err, deepseek.ErrEmptyReply):
		response.Error(c, http.StatusBadGateway, err.Error())
	default:
		response.InternalError(c, err)
	}
}
