package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ysxx86/ClassMaster/config"
	"github.com/ysxx86/ClassMaster/internal/api/handler"
	"github.com/ysxx86/ClassMaster/internal/repository"
	"github.com/ysxx86/ClassMaster/internal/service"
	"github.com/ysxx86/ClassMaster/pkg/database"
	"github.com/ysxx86/ClassMaster/pkg/jwt"
	"github.com/ysxx86/ClassMaster/pkg/session"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		Server:   config.ServerConfig{Port: 8080, BodyLimitMB: 10},
		Database: config.DatabaseConfig{Path: filepath.Join(dir, "students.db")},
		Auth: config.AuthConfig{
			JWTSecret:      "0123456789abcdef",
			AccessTokenTTL: time.Hour,
			SessionSecret:  "0123456789abcdef0123456789abcdef",
			SessionMaxAge:  time.Hour,
		},
		Storage: config.StorageConfig{
			UploadDir: filepath.Join(dir, "uploads"),
			ExportDir: filepath.Join(dir, "exports"),
			UploadTTL: time.Hour,
		},
		Export:    config.ExportConfig{CancelTTL: time.Minute, MaxStudents: 200},
		Bootstrap: config.BootstrapConfig{AdminUsername: "admin", AdminPassword: "admin123"},
	}
}

// setupApp 以真实 SQLite 组装完整应用（不连接 Redis）
func setupApp(t *testing.T) *gin.Engine {
	t.Helper()
	cfg := testConfig(t)
	logger := zap.NewNop()

	db, err := database.NewDB(&cfg.Database, "warn", logger)
	if err != nil {
		t.Fatalf("打开数据库失败: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { sqlDB.Close() })
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		t.Fatalf("迁移失败: %v", err)
	}

	jwtMgr := jwt.NewManager(&cfg.Auth)
	sessions := session.NewStore(&cfg.Auth)
	svc := service.NewService(cfg, repository.NewRepository(db), jwtMgr, nil, logger)
	if _, err := svc.Auth.EnsureAdmin(context.Background()); err != nil {
		t.Fatalf("创建管理员失败: %v", err)
	}

	engine, err := Setup(Deps{
		Config:   cfg,
		Handler:  handler.NewHandler(svc, jwtMgr, sessions, logger),
		JWT:      jwtMgr,
		Sessions: sessions,
		Loader:   svc.Auth.LoadCaller,
		Registry: prometheus.NewRegistry(),
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("初始化路由失败: %v", err)
	}
	return engine
}

type client struct {
	t      *testing.T
	engine *gin.Engine
	token  string
}

func (c *client) do(method, target string, body any) (*httptest.ResponseRecorder, map[string]any) {
	c.t.Helper()
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	w := httptest.NewRecorder()
	c.engine.ServeHTTP(w, req)

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func login(t *testing.T, engine *gin.Engine, username, password string) *client {
	t.Helper()
	c := &client{t: t, engine: engine}
	w, resp := c.do(http.MethodPost, "/login", map[string]string{"username": username, "password": password})
	if w.Code != http.StatusOK {
		t.Fatalf("%s 登录失败: %d %s", username, w.Code, w.Body.String())
	}
	c.token, _ = resp["access_token"].(string)
	return c
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	engine := setupApp(t)
	c := &client{t: t, engine: engine}

	if w, _ := c.do(http.MethodGet, "/health", nil); w.Code != http.StatusOK {
		t.Errorf("health 期望 200，实际: %d", w.Code)
	}
	w, _ := c.do(http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("classmaster_http_requests_total")) {
		t.Errorf("metrics 应包含请求计数: %d", w.Code)
	}
}

func TestRouter_Unauthenticated(t *testing.T) {
	engine := setupApp(t)
	c := &client{t: t, engine: engine}

	if w, _ := c.do(http.MethodGet, "/api/students", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("期望 401，实际: %d", w.Code)
	}
	w, _ := c.do(http.MethodPost, "/login", map[string]string{"username": "admin", "password": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("错误密码期望 401，实际: %d", w.Code)
	}
}

// 管理员建班、建教师、分配班主任；教师只能看到本班
func TestRouter_AdminAndTeacherFlow(t *testing.T) {
	engine := setupApp(t)
	admin := login(t, engine, "admin", "admin123")

	w, resp := admin.do(http.MethodPost, "/api/classes", map[string]string{"class_name": "一年级1班"})
	if w.Code != http.StatusOK {
		t.Fatalf("建班失败: %d %s", w.Code, w.Body.String())
	}
	classID := resp["class"].(map[string]any)["id"].(float64)

	w, resp = admin.do(http.MethodPost, "/api/users", map[string]any{"username": "wang", "password": "123456"})
	if w.Code != http.StatusOK {
		t.Fatalf("建用户失败: %d %s", w.Code, w.Body.String())
	}
	teacherID := resp["user"].(map[string]any)["id"].(float64)

	// 未分配班级：软拒绝
	teacher := login(t, engine, "wang", "123456")
	w, resp = teacher.do(http.MethodGet, "/api/students", nil)
	if w.Code != http.StatusOK || len(resp["students"].([]any)) != 0 {
		t.Errorf("未分班教师期望 200 + 空列表，实际: %d %v", w.Code, resp)
	}

	w, _ = admin.do(http.MethodPost, "/api/classes/"+ftoa(classID)+"/assign-teacher", map[string]any{"teacher_id": teacherID})
	if w.Code != http.StatusOK {
		t.Fatalf("分配班主任失败: %d %s", w.Code, w.Body.String())
	}

	w, _ = teacher.do(http.MethodPost, "/api/students", map[string]any{"id": "1001", "name": "张三", "gender": "男"})
	if w.Code != http.StatusOK {
		t.Fatalf("教师添加学生失败: %d %s", w.Code, w.Body.String())
	}
	w, resp = teacher.do(http.MethodGet, "/api/students", nil)
	if w.Code != http.StatusOK || len(resp["students"].([]any)) != 1 {
		t.Errorf("期望看到 1 名学生，实际: %v", resp)
	}

	// 成绩与德育
	w, _ = teacher.do(http.MethodPost, "/api/students/1001/update-subject", map[string]string{"subject": "yuwen", "grade": "优"})
	if w.Code != http.StatusOK {
		t.Errorf("单科成绩更新失败: %d %s", w.Code, w.Body.String())
	}
	w, _ = teacher.do(http.MethodPost, "/api/students/1001/update-subject", map[string]string{"subject": "lishi", "grade": "优"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("无效学科期望 400，实际: %d", w.Code)
	}
	w, resp = teacher.do(http.MethodPost, "/api/deyu/1001", map[string]any{"pinzhi": 25, "xuexi": "abc"})
	if w.Code != http.StatusOK || resp["total_score"].(float64) != 25 {
		t.Errorf("德育保存不符: %d %v", w.Code, resp)
	}

	// 教师不可访问用户管理与外班数据
	if w, _ := teacher.do(http.MethodGet, "/api/users", nil); w.Code != http.StatusForbidden {
		t.Errorf("教师访问用户管理期望 403，实际: %d", w.Code)
	}
	if w, _ := teacher.do(http.MethodGet, "/api/students?class_id=999", nil); w.Code != http.StatusForbidden {
		t.Errorf("教师访问外班期望 403，实际: %d", w.Code)
	}

	// 待办与日历
	w, _ = teacher.do(http.MethodPost, "/api/todos", map[string]string{"title": "家长会", "deadline": "2026-04-01 14:30"})
	if w.Code != http.StatusOK {
		t.Fatalf("创建待办失败: %d %s", w.Code, w.Body.String())
	}
	w, _ = teacher.do(http.MethodGet, "/api/todos/calendar.ics", nil)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("BEGIN:VEVENT")) {
		t.Errorf("日历导出不符: %d", w.Code)
	}
	w, resp = teacher.do(http.MethodGet, "/api/dashboard/info", nil)
	if w.Code != http.StatusOK {
		t.Errorf("首页数据失败: %d", w.Code)
	}
	if stats := resp["stats"].(map[string]any); stats["student_count"].(float64) != 1 {
		t.Errorf("首页学生数不符: %v", stats)
	}
}

func TestRouter_LogoutClearsSession(t *testing.T) {
	engine := setupApp(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewBufferString(`{"username":"admin","password":"admin123"}`))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)
	cookies := w.Result().Cookies()

	// 会话 Cookie 可直接访问接口
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/current-user", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	engine.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("会话访问期望 200，实际: %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/logout", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	engine.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("退出期望 200，实际: %d", w.Code)
	}

	w2 := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/current-user", nil)
	for _, c := range w.Result().Cookies() {
		req.AddCookie(c)
	}
	engine.ServeHTTP(w2, req)
	if w2.Code != http.StatusUnauthorized {
		t.Errorf("退出后期望 401，实际: %d", w2.Code)
	}
}

func ftoa(f float64) string {
	return strconv.FormatInt(int64(f), 10)
}
