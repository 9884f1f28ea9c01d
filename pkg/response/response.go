package response

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
)

// 响应状态取值（前端以 status 字段判断结果，而非 HTTP 状态码）
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusWarning = "warning"
	StatusPartial = "partial"
)

// Envelope 统一响应外壳：status + message，业务字段平铺在同一层
type Envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// write 组装响应体，payload 中的 status/message 会被外壳覆盖
func write(c *gin.Context, httpStatus int, status, message string, payload gin.H) {
	body := gin.H{}
	for k, v := range payload {
		body[k] = v
	}
	body["status"] = status
	if message != "" {
		body["message"] = message
	}
	c.JSON(httpStatus, body)
}

// ── 成功响应 ──

// OK 200 成功
func OK(c *gin.Context, message string, payload gin.H) {
	write(c, http.StatusOK, StatusOK, message, payload)
}

// Warning 200 带警告（如无数据被更新、导出被取消）
func Warning(c *gin.Context, message string, payload gin.H) {
	write(c, http.StatusOK, StatusWarning, message, payload)
}

// Partial 200 部分成功（批量导入中部分行失败）
func Partial(c *gin.Context, message string, payload gin.H) {
	write(c, http.StatusOK, StatusPartial, message, payload)
}

// ── 错误响应 ──

// Error 通用错误响应
func Error(c *gin.Context, httpStatus int, message string) {
	write(c, httpStatus, StatusError, message, nil)
}

// ErrorWithPayload 带附加字段的错误响应
func ErrorWithPayload(c *gin.Context, httpStatus int, message string, payload gin.H) {
	write(c, httpStatus, StatusError, message, payload)
}

// BadRequest 400
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

// Unauthorized 401
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message)
}

// Forbidden 403
func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, message)
}

// NotFound 404
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message)
}

// InternalError 500，错误信息原样回显给调用方
func InternalError(c *gin.Context, err error) {
	msg := "服务器内部错误"
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	Error(c, http.StatusInternalServerError, msg)
}

// ── 文件下载 ──

// Attachment 以附件形式返回文件内容
func Attachment(c *gin.Context, filename, contentType string, data []byte) {
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(filename))
	c.Data(http.StatusOK, contentType, data)
}

// ContentTypeXLSX Excel 2007+ MIME
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ContentTypeZip zip 压缩包 MIME
const ContentTypeZip = "application/zip"
