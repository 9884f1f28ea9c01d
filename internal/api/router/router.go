package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ysxx86/ClassMaster/config"
	"github.com/ysxx86/ClassMaster/internal/api/handler"
	"github.com/ysxx86/ClassMaster/internal/api/middleware"
	"github.com/ysxx86/ClassMaster/internal/dto"
	"github.com/ysxx86/ClassMaster/pkg/jwt"
	"github.com/ysxx86/ClassMaster/pkg/redis"
	"github.com/ysxx86/ClassMaster/pkg/session"
)

// 登录限流：每个 IP 每分钟 10 次
const (
	loginRateLimit  = 10
	loginRateWindow = time.Minute
)

// Deps 路由依赖
type Deps struct {
	Config   *config.Config
	Handler  *handler.Handler
	JWT      *jwt.Manager
	Sessions *session.Store
	Redis    *redis.Client // 可为 nil
	Loader   middleware.CallerLoader
	Registry *prometheus.Registry // nil 时使用默认注册表
	Logger   *zap.Logger
}

// Setup 初始化并返回 Gin 路由引擎
func Setup(d Deps) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		if err := dto.RegisterValidators(v); err != nil {
			return nil, err
		}
	}

	// Redis 不可用时降级：不检查 Token 黑名单，不限流
	var (
		blacklist middleware.Blacklist
		limiter   middleware.RateLimiter
	)
	if d.Redis != nil {
		blacklist = d.Redis
		limiter = d.Redis
	}

	h := d.Handler
	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(d.Config.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(int64(d.Config.Server.BodyLimitMB) << 20))

	var (
		reg     prometheus.Registerer = prometheus.DefaultRegisterer
		metrics                       = promhttp.Handler()
	)
	if d.Registry != nil {
		reg = d.Registry
		metrics = promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})
	}
	r.Use(middleware.NewMetrics(reg).Handler())

	// ── 健康检查与指标 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics))

	// ── 认证（无需登录）──
	r.POST("/login", middleware.RateLimit(limiter, loginRateLimit, loginRateWindow), h.Auth.Login)
	r.POST("/logout", h.Auth.Logout)

	identity := middleware.Identity(d.JWT, blacklist, d.Sessions, d.Loader, d.Logger)
	admin := middleware.RequireAdmin()

	// 导出文件下载
	r.GET("/download/exports/:filename", identity, h.Comment.Download)

	api := r.Group("/api")
	api.Use(identity)
	{
		api.GET("/current-user", h.Auth.CurrentUser)
		api.POST("/change-password", h.Auth.ChangePassword)

		// 学生模块
		students := api.Group("/students")
		{
			students.GET("", h.Student.ListStudents)
			students.POST("", h.Student.CreateStudent)
			students.GET("/template", h.Student.Template)
			students.GET("/export", h.Student.Export)
			students.POST("/preview-import", h.Student.PreviewImport)
			students.POST("/confirm-import", h.Student.ConfirmImport)
			students.GET("/:id", h.Student.GetStudent)
			students.PUT("/:id", h.Student.UpdateStudent)
			students.DELETE("/:id", h.Student.DeleteStudent)
			students.PUT("/:id/comments", h.Student.UpdateComments)
			students.POST("/:id/update-subject", h.Grade.UpdateSubject)
		}

		// 成绩模块
		grades := api.Group("/grades")
		{
			grades.GET("", h.Grade.ListGrades)
			grades.GET("/template", h.Grade.Template)
			grades.POST("/batch-preview", h.Grade.BatchPreview)
			grades.POST("/batch-update", h.Grade.BatchUpdate)
			grades.POST("/preview-import", h.Grade.PreviewImport)
			grades.POST("/confirm-import", h.Grade.ConfirmImport)
			grades.GET("/:id", h.Grade.GetGrades)
			grades.POST("/:id", h.Grade.SaveGrades)
			grades.DELETE("/:id", h.Grade.ClearGrades)
		}

		// 德育模块
		deyu := api.Group("/deyu")
		{
			deyu.GET("", h.Deyu.ListDeyu)
			deyu.GET("/template", h.Deyu.Template)
			deyu.GET("/export", h.Deyu.Export)
			deyu.POST("/batch-update", h.Deyu.BatchSave)
			deyu.POST("/clear-all", h.Deyu.ClearAll)
			deyu.POST("/preview-import", h.Deyu.PreviewImport)
			deyu.POST("/confirm-import", h.Deyu.ConfirmImport)
			deyu.GET("/:id", h.Deyu.GetDeyu)
			deyu.POST("/:id", h.Deyu.SaveDeyu)
			deyu.DELETE("/:id", h.Deyu.ClearDeyu)
		}

		// 评语与报告导出
		comments := api.Group("/comments")
		{
			comments.POST("", h.Comment.SaveComment)
			comments.GET("/export", h.Comment.Export)
			comments.POST("/batch-preview", h.Comment.BatchPreview)
			comments.GET("/:studentId", h.Comment.GetComment)
		}
		api.GET("/comment-templates", h.Comment.Templates)
		api.POST("/batch-update-comments", h.Comment.BatchUpdate)
		api.POST("/export-reports", h.Comment.ExportReports)
		api.POST("/cancel-export", h.Comment.CancelExport)

		// AI 评语与系统设置
		api.POST("/generate-comment", h.AI.GenerateComment)
		api.GET("/settings", h.AI.Settings)
		api.POST("/settings/deepseek", admin, h.AI.SaveDeepSeek)
		api.POST("/test-deepseek", admin, h.AI.TestDeepSeek)

		// 班级模块（列表对所有登录用户开放）
		classes := api.Group("/classes")
		{
			classes.GET("", h.Class.ListClasses)
			classes.POST("", admin, h.Class.CreateClass)
			classes.POST("/preview", admin, h.Class.PreviewClasses)
			classes.POST("/batch-create", admin, h.Class.BatchCreateClasses)
			classes.GET("/:id", admin, h.Class.GetClass)
			classes.PUT("/:id", admin, h.Class.RenameClass)
			classes.DELETE("/:id", admin, h.Class.DeleteClass)
			classes.POST("/:id/assign-teacher", admin, h.Class.AssignTeacher)
		}
		api.GET("/teachers", admin, h.Class.ListTeachers)

		// 用户管理（仅管理员）
		users := api.Group("/users")
		users.Use(admin)
		{
			users.GET("", h.User.ListUsers)
			users.POST("", h.User.CreateUser)
			users.POST("/batch", h.User.BatchCreateUsers)
			users.GET("/template", h.User.Template)
			users.GET("/export", h.User.Export)
			users.POST("/preview-import", h.User.PreviewImport)
			users.POST("/confirm-import", h.User.ConfirmImport)
			users.PUT("/:id", h.User.UpdateUser)
			users.DELETE("/:id", h.User.DeleteUser)
			users.POST("/:id/reset-password", h.User.ResetPassword)
		}

		// 首页与待办
		api.GET("/dashboard/info", h.Dashboard.Info)
		api.GET("/activities", h.Dashboard.Activities)
		todos := api.Group("/todos")
		{
			todos.GET("", h.Dashboard.ListTodos)
			todos.POST("", h.Dashboard.CreateTodo)
			todos.GET("/calendar.ics", h.Dashboard.Calendar)
			todos.POST("/import-ics", h.Dashboard.ImportCalendar)
			todos.PUT("/:id", h.Dashboard.UpdateTodo)
			todos.DELETE("/:id", h.Dashboard.DeleteTodo)
		}
	}

	return r, nil
}
