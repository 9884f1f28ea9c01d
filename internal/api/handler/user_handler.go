package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ysxx86/ClassMaster/internal/dto"
	"github.com/ysxx86/ClassMaster/internal/service"
	"github.com/ysxx86/ClassMaster/pkg/response"
)

// UserHandler 用户管理 HTTP 处理器（仅管理员）
type UserHandler struct {
	userSvc service.UserService
}

// NewUserHandler 创建 UserHandler
func NewUserHandler(userSvc service.UserService) *UserHandler {
	return &UserHandler{userSvc: userSvc}
}

// ListUsers 用户列表
// GET /api/users
func (h *UserHandler) ListUsers(c *gin.Context) {
	users, err := h.userSvc.List(c.Request.Context())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, "", gin.H{"users": users})
}

// CreateUser 新建用户
// POST /api/users
func (h *UserHandler) CreateUser(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	var req dto.CreateUserRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.userSvc.Create(c.Request.Context(), caller, &req)
	if err != nil {
		h.handleUserError(c, err)
		return
	}
	response.OK(c, "用户创建成功", gin.H{"user": user})
}

// BatchCreateUsers 批量新建用户
// POST /api/users/batch
func (h *UserHandler) BatchCreateUsers(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	var req dto.BatchCreateUsersRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.userSvc.BatchCreate(c.Request.Context(), caller, &req)
	if err != nil {
		h.handleUserError(c, err)
		return
	}

	payload := gin.H{"created": result.Created, "errors": result.Errors}
	msg := fmt.Sprintf("成功创建 %d 个用户", len(result.Created))
	switch {
	case len(result.Errors) == 0:
		response.OK(c, msg, payload)
	case len(result.Created) > 0:
		response.Partial(c, msg, payload)
	default:
		response.ErrorWithPayload(c, http.StatusBadRequest, "没有用户被创建", payload)
	}
}

// UpdateUser 更新用户
// PUT /api/users/:id
func (h *UserHandler) UpdateUser(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	id, ok := paramUint(c, "id", "用户ID")
	if !ok {
		return
	}
	var req dto.UpdateUserRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.userSvc.Update(c.Request.Context(), caller, id, &req)
	if err != nil {
		h.handleUserError(c, err)
		return
	}
	response.OK(c, "用户更新成功", gin.H{"user": user})
}

// DeleteUser 删除用户
// DELETE /api/users/:id
func (h *UserHandler) DeleteUser(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	id, ok := paramUint(c, "id", "用户ID")
	if !ok {
		return
	}

	if err := h.userSvc.Delete(c.Request.Context(), caller, id); err != nil {
		h.handleUserError(c, err)
		return
	}
	response.OK(c, "用户已删除", nil)
}

// ResetPassword 重置用户密码
// POST /api/users/:id/reset-password
func (h *UserHandler) ResetPassword(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	id, ok := paramUint(c, "id", "用户ID")
	if !ok {
		return
	}

	result, err := h.userSvc.ResetPassword(c.Request.Context(), caller, id)
	if err != nil {
		h.handleUserError(c, err)
		return
	}
	response.OK(c, "密码已重置", gin.H{"username": result.Username, "new_password": result.NewPassword})
}

// PreviewImport 用户导入预览
// POST /api/users/preview-import
func (h *UserHandler) PreviewImport(c *gin.Context) {
	fh, f, ok := uploadedFile(c)
	if !ok {
		return
	}
	defer f.Close()

	preview, err := h.userSvc.PreviewImport(c.Request.Context(), fh.Filename, f)
	if err != nil {
		h.handleUserError(c, err)
		return
	}
	respondPreview(c, preview)
}

// ConfirmImport 确认导入用户
// POST /api/users/confirm-import
func (h *UserHandler) ConfirmImport(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	var req dto.ConfirmImportRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.userSvc.ConfirmImport(c.Request.Context(), caller, req.FilePath)
	if err != nil {
		h.handleUserError(c, err)
		return
	}
	respondImport(c, &result.ImportResult, gin.H{"passwords": result.Passwords})
}

// Template 下载用户导入模板
// GET /api/users/template
func (h *UserHandler) Template(c *gin.Context) {
	buf, err := h.userSvc.Template()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	sendXLSX(c, "用户导入模板.xlsx", buf)
}

// Export 导出用户
// GET /api/users/export
func (h *UserHandler) Export(c *gin.Context) {
	buf, err := h.userSvc.Export(c.Request.Context())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	sendXLSX(c, xlsxName("users"), buf)
}

// handleUserError 统一处理用户模块业务错误
func (h *UserHandler) handleUserError(c *gin.Context, err error) {
	if handleImportError(c, err) {
		return
	}
	switch {
	case errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrClassNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrUsernameExists),
		errors.Is(err, service.ErrUserSelfDelete),
		errors.Is(err, service.ErrNoFieldsToUpdate):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}
