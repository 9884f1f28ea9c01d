package handler

import (
	"bytes"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ysxx86/ClassMaster/internal/api/middleware"
	"github.com/ysxx86/ClassMaster/internal/dto"
	"github.com/ysxx86/ClassMaster/internal/scope"
	"github.com/ysxx86/ClassMaster/internal/service"
	"github.com/ysxx86/ClassMaster/pkg/response"
)

// MustGetCaller 从 Gin 上下文中安全提取当前身份。
// Identity 中间件未注入时写入 401 响应并返回 false，调用方应直接 return。
func MustGetCaller(c *gin.Context) (scope.Caller, bool) {
	v, exists := c.Get(middleware.CallerKey)
	if !exists {
		response.Unauthorized(c, "请先登录")
		return scope.Caller{}, false
	}
	caller, ok := v.(scope.Caller)
	if !ok {
		response.Unauthorized(c, "请先登录")
		return scope.Caller{}, false
	}
	return caller, true
}

// parseClassID 解析前端传入的班级 ID，空串、null、undefined、0 均视为未指定
func parseClassID(raw string) (*uint, error) {
	raw = strings.TrimSpace(raw)
	switch raw {
	case "", "null", "undefined", "0":
		return nil, nil
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("无效的班级ID: %s", raw)
	}
	v := uint(n)
	return &v, nil
}

// queryClassID 读取 ?class_id=，格式错误时写入 400
func queryClassID(c *gin.Context) (*uint, bool) {
	id, err := parseClassID(c.Query("class_id"))
	if err != nil {
		response.BadRequest(c, err.Error())
		return nil, false
	}
	return id, true
}

// formClassID 读取表单中的 class_id，缺省时回退到查询参数
func formClassID(c *gin.Context) (*uint, bool) {
	raw, ok := c.GetPostForm("class_id")
	if !ok {
		raw = c.Query("class_id")
	}
	id, err := parseClassID(raw)
	if err != nil {
		response.BadRequest(c, err.Error())
		return nil, false
	}
	return id, true
}

// paramUint 读取数字路径参数
func paramUint(c *gin.Context, name, label string) (uint, bool) {
	n, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || n == 0 {
		response.BadRequest(c, label+"无效")
		return 0, false
	}
	return uint(n), true
}

// paramStudentID 读取学号路径参数
func paramStudentID(c *gin.Context, name string) (string, bool) {
	id := strings.TrimSpace(c.Param(name))
	if id == "" {
		response.BadRequest(c, "学号不能为空")
		return "", false
	}
	return id, true
}

// bindJSON 绑定 JSON 请求体，失败时写入 400
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.BadRequest(c, dto.ValidationMessage(err))
		return false
	}
	return true
}

// uploadedFile 读取 multipart 字段 file
func uploadedFile(c *gin.Context) (*multipart.FileHeader, multipart.File, bool) {
	fh, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "请选择要上传的文件")
		return nil, nil, false
	}
	f, err := fh.Open()
	if err != nil {
		response.BadRequest(c, "读取上传文件失败")
		return nil, nil, false
	}
	return fh, f, true
}

// softDeny 未分配班级的班主任访问列表接口时返回 200 + 空列表 + 提示
func softDeny(c *gin.Context, err error, key string) bool {
	if !errors.Is(err, scope.ErrNoClassAssigned) {
		return false
	}
	response.OK(c, err.Error(), gin.H{key: []any{}})
	return true
}

// handleScopeError 处理访问范围错误，返回 true 表示已写入响应
func handleScopeError(c *gin.Context, err error) bool {
	switch {
	case errors.Is(err, scope.ErrNoClassAssigned),
		errors.Is(err, scope.ErrClassMismatch),
		errors.Is(err, scope.ErrStudentForbidden):
		response.Forbidden(c, err.Error())
	case errors.Is(err, scope.ErrStudentNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, scope.ErrClassRequired),
		errors.Is(err, scope.ErrStudentAmbiguous):
		response.BadRequest(c, err.Error())
	default:
		return false
	}
	return true
}

// handleImportError 处理上传与导入文件错误，返回 true 表示已写入响应
func handleImportError(c *gin.Context, err error) bool {
	switch {
	case errors.Is(err, service.ErrUploadNotFound),
		errors.Is(err, service.ErrUploadInvalid),
		errors.Is(err, service.ErrImportNoData),
		errors.Is(err, service.ErrImportBadHeader),
		errors.Is(err, service.ErrICSInvalid):
		response.BadRequest(c, err.Error())
		return true
	}
	return handleScopeError(c, err)
}

// importPayload 导入结果平铺到响应体，字段与预览一致（total 为全部数据行，added 即 inserted）
func importPayload(r *dto.ImportResult, extra gin.H) gin.H {
	body := gin.H{
		"total":       r.Total,
		"success":     r.Success,
		"added":       r.Added,
		"inserted":    r.Added,
		"updated":     r.Updated,
		"skipped":     r.Skipped,
		"error_count": r.Failed,
		"errors":      r.Errors,
	}
	for k, v := range extra {
		body[k] = v
	}
	return body
}

// respondImport 按导入结果写入 ok / partial / error 响应
func respondImport(c *gin.Context, r *dto.ImportResult, extra gin.H) {
	payload := importPayload(r, extra)
	switch r.Outcome() {
	case response.StatusOK:
		response.OK(c, fmt.Sprintf("成功导入 %d 条记录", r.Success), payload)
	case response.StatusPartial:
		response.Partial(c, fmt.Sprintf("部分导入成功：成功 %d 条，失败 %d 条", r.Success, r.Failed+r.Skipped), payload)
	default:
		response.ErrorWithPayload(c, http.StatusBadRequest, "导入失败，没有记录被导入", payload)
	}
}

// xlsxName 带时间戳的下载文件名
func xlsxName(prefix string) string {
	return prefix + "_" + time.Now().Format("20060102_150405") + ".xlsx"
}

// sendXLSX 以附件返回 Excel
func sendXLSX(c *gin.Context, filename string, buf *bytes.Buffer) {
	response.Attachment(c, filename, response.ContentTypeXLSX, buf.Bytes())
}

// respondPreview 导入预览结果平铺到响应体
func respondPreview(c *gin.Context, p *dto.ImportPreview) {
	response.OK(c, fmt.Sprintf("共 %d 条记录，新增 %d 条，更新 %d 条，跳过 %d 条", p.Total, p.Added, p.Updated, p.Skipped), gin.H{
		"file_path": p.FilePath,
		"total":     p.Total,
		"added":     p.Added,
		"updated":   p.Updated,
		"skipped":   p.Skipped,
		"errors":    p.Errors,
		"preview":   p.Rows,
	})
}
