package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ysxx86/ClassMaster/internal/dto"
	"github.com/ysxx86/ClassMaster/internal/service"
	"github.com/ysxx86/ClassMaster/pkg/response"
)

const (
	defaultActivityLimit = 20
	maxActivityLimit     = 100
)

// DashboardHandler 首页与待办 HTTP 处理器
type DashboardHandler struct {
	dashSvc service.DashboardService
	// fetch 拉取远程日历，测试中可替换
	fetch func(rawURL string) (io.ReadCloser, error)
}

// NewDashboardHandler 创建 DashboardHandler
func NewDashboardHandler(dashSvc service.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashSvc: dashSvc, fetch: service.FetchICSContent}
}

// Info 首页数据
// GET /api/dashboard/info
func (h *DashboardHandler) Info(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	info, err := h.dashSvc.Info(c.Request.Context(), caller)
	if err != nil {
		h.handleDashboardError(c, err)
		return
	}
	response.OK(c, "", gin.H{
		"user":               info.User,
		"stats":              info.Stats,
		"grade_distribution": info.GradeDistribution,
		"activities":         info.Activities,
		"todos":              info.Todos,
		"comments":           info.Comments,
	})
}

// Activities 最近操作记录
// GET /api/activities?class_id=&limit=
func (h *DashboardHandler) Activities(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	classID, ok := queryClassID(c)
	if !ok {
		return
	}
	limit := defaultActivityLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.BadRequest(c, "limit 参数无效")
			return
		}
		limit = min(n, maxActivityLimit)
	}

	activities, err := h.dashSvc.Activities(c.Request.Context(), caller, classID, limit)
	if err != nil {
		if softDeny(c, err, "activities") {
			return
		}
		h.handleDashboardError(c, err)
		return
	}
	response.OK(c, "", gin.H{"activities": activities})
}

// ListTodos 待办列表
// GET /api/todos?class_id=&status=
func (h *DashboardHandler) ListTodos(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	classID, ok := queryClassID(c)
	if !ok {
		return
	}

	todos, err := h.dashSvc.ListTodos(c.Request.Context(), caller, classID, c.Query("status"))
	if err != nil {
		if softDeny(c, err, "todos") {
			return
		}
		h.handleDashboardError(c, err)
		return
	}
	response.OK(c, "", gin.H{"todos": todos})
}

// CreateTodo 新建待办
// POST /api/todos
func (h *DashboardHandler) CreateTodo(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	var req dto.TodoRequest
	if !bindJSON(c, &req) {
		return
	}

	todo, err := h.dashSvc.CreateTodo(c.Request.Context(), caller, &req)
	if err != nil {
		h.handleDashboardError(c, err)
		return
	}
	response.OK(c, "待办创建成功", gin.H{"todo": todo})
}

// UpdateTodo 更新待办
// PUT /api/todos/:id
func (h *DashboardHandler) UpdateTodo(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	id, ok := paramUint(c, "id", "待办ID")
	if !ok {
		return
	}
	var req dto.TodoRequest
	if !bindJSON(c, &req) {
		return
	}

	todo, err := h.dashSvc.UpdateTodo(c.Request.Context(), caller, id, &req)
	if err != nil {
		h.handleDashboardError(c, err)
		return
	}
	response.OK(c, "待办更新成功", gin.H{"todo": todo})
}

// DeleteTodo 删除待办
// DELETE /api/todos/:id
func (h *DashboardHandler) DeleteTodo(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	id, ok := paramUint(c, "id", "待办ID")
	if !ok {
		return
	}

	if err := h.dashSvc.DeleteTodo(c.Request.Context(), caller, id); err != nil {
		h.handleDashboardError(c, err)
		return
	}
	response.OK(c, "待办已删除", nil)
}

// Calendar 以 iCalendar 格式导出待办
// GET /api/todos/calendar.ics?class_id=
func (h *DashboardHandler) Calendar(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}
	classID, ok := queryClassID(c)
	if !ok {
		return
	}

	cal, err := h.dashSvc.Calendar(c.Request.Context(), caller, classID)
	if err != nil {
		h.handleDashboardError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="todos.ics"`)
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(cal))
}

// importCalendarRequest 通过 URL 导入日历
type importCalendarRequest struct {
	URL     string         `json:"url"      binding:"required"`
	ClassID dto.OptionalID `json:"class_id"`
}

// ImportCalendar 导入日历为待办，支持上传文件或订阅地址
// POST /api/todos/import-ics
func (h *DashboardHandler) ImportCalendar(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	var (
		body    io.ReadCloser
		classID *uint
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if classID, ok = formClassID(c); !ok {
			return
		}
		_, f, ok := uploadedFile(c)
		if !ok {
			return
		}
		body = f
	} else {
		var req importCalendarRequest
		if !bindJSON(c, &req) {
			return
		}
		rc, err := h.fetch(req.URL)
		if err != nil {
			response.BadRequest(c, "获取日历失败: "+err.Error())
			return
		}
		body, classID = rc, req.ClassID.Value
	}
	defer body.Close()

	result, err := h.dashSvc.ImportCalendar(c.Request.Context(), caller, classID, body)
	if err != nil {
		h.handleDashboardError(c, err)
		return
	}
	respondImport(c, result, nil)
}

// handleDashboardError 统一处理首页与待办业务错误
func (h *DashboardHandler) handleDashboardError(c *gin.Context, err error) {
	if handleImportError(c, err) {
		return
	}
	switch {
	case errors.Is(err, service.ErrTodoNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrTodoTitleRequired),
		errors.Is(err, service.ErrInvalidDeadline),
		errors.Is(err, service.ErrNoFieldsToUpdate):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}
