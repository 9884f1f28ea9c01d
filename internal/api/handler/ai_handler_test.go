package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/ysxx86/ClassMaster/internal/dto"
	"github.com/ysxx86/ClassMaster/internal/scope"
	"github.com/ysxx86/ClassMaster/internal/service"
	"github.com/ysxx86/ClassMaster/pkg/deepseek"
	"github.com/ysxx86/ClassMaster/pkg/response"
)

// ── Mock AIService ──

type mockAIService struct {
	service.AIService
	genErr  error
	testErr error
	gotID   string
	gotKey  string
}

func (m *mockAIService) GenerateComment(_ context.Context, _ scope.Caller, req *dto.GenerateCommentRequest) (*dto.GenerateCommentResponse, error) {
	m.gotID = req.ID()
	if m.genErr != nil {
		return nil, m.genErr
	}
	return &dto.GenerateCommentResponse{Comment: "你是一个好孩子。", StudentID: req.ID()}, nil
}
func (m *mockAIService) Settings(_ context.Context, caller scope.Caller) (*dto.SettingsResponse, error) {
	resp := &dto.SettingsResponse{SystemName: "班主任管理系统"}
	if caller.IsAdmin {
		enabled := true
		resp.DeepSeekAPIEnabled = &enabled
	}
	return resp, nil
}
func (m *mockAIService) SaveDeepSeekKey(_ context.Context, _ scope.Caller, apiKey string) (bool, error) {
	m.gotKey = apiKey
	return apiKey != "", nil
}
func (m *mockAIService) TestDeepSeekKey(_ context.Context, apiKey string) error {
	m.gotKey = apiKey
	return m.testErr
}

func TestAIHandler_GenerateComment(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"OK", nil, 200},
		{"NoKey", deepseek.ErrNoAPIKey, 503},
		{"InvalidKey", deepseek.ErrInvalidAPIKey, 400},
		{"Forbidden", scope.ErrStudentForbidden, 403},
		{"NotFound", scope.ErrStudentNotFound, 404},
		{"EmptyReply", deepseek.ErrEmptyReply, 502},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockAIService{genErr: tt.err}
			r := gin.New()
			r.POST("/api/generate-comment", withCaller(teacherCaller(1)), NewAIHandler(mock).GenerateComment)

			w := serve(r, http.MethodPost, "/api/generate-comment", jsonBody(map[string]any{"studentId": "1001"}))
			if w.Code != tt.wantCode {
				t.Fatalf("期望 %d，实际: %d %s", tt.wantCode, w.Code, w.Body.String())
			}
			if mock.gotID != "1001" {
				t.Errorf("期望 studentId 透传为 1001，实际: %s", mock.gotID)
			}
			resp := parseResponse(t, w)
			if tt.err == nil && resp["comment"] != "你是一个好孩子。" {
				t.Errorf("期望返回评语，实际: %v", resp)
			}
		})
	}
}

func TestAIHandler_Settings_AdminOnlyFields(t *testing.T) {
	h := NewAIHandler(&mockAIService{})
	for _, tt := range []struct {
		name    string
		caller  scope.Caller
		wantKey bool
	}{
		{"Teacher", teacherCaller(1), false},
		{"Admin", adminCaller(), true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/api/settings", withCaller(tt.caller), h.Settings)
			resp := parseResponse(t, serve(r, http.MethodGet, "/api/settings", nil))
			settings, _ := resp["settings"].(map[string]any)
			if _, ok := settings["deepseek_api_enabled"]; ok != tt.wantKey {
				t.Errorf("deepseek_api_enabled 可见性期望 %t，实际: %v", tt.wantKey, settings)
			}
		})
	}
}

func TestAIHandler_SaveDeepSeek(t *testing.T) {
	mock := &mockAIService{}
	r := gin.New()
	r.POST("/api/settings/deepseek", withCaller(adminCaller()), NewAIHandler(mock).SaveDeepSeek)

	resp := parseResponse(t, serve(r, http.MethodPost, "/api/settings/deepseek", jsonBody(map[string]any{"apiKey": "sk-abc"})))
	if resp["api_enabled"] != true || mock.gotKey != "sk-abc" {
		t.Errorf("期望启用并保存 sk-abc，实际: %v key=%s", resp, mock.gotKey)
	}
	resp = parseResponse(t, serve(r, http.MethodPost, "/api/settings/deepseek", jsonBody(map[string]any{"apiKey": ""})))
	if resp["api_enabled"] != false {
		t.Errorf("空密钥应停用，实际: %v", resp)
	}
}

func TestAIHandler_TestDeepSeek(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   int
		wantStatus string
	}{
		{"OK", nil, 200, response.StatusOK},
		{"EmptyKey", service.ErrAPIKeyRequired, 400, response.StatusError},
		{"Rejected", deepseek.ErrInvalidAPIKey, 400, response.StatusError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.POST("/api/test-deepseek", withCaller(adminCaller()), NewAIHandler(&mockAIService{testErr: tt.err}).TestDeepSeek)
			w := serve(r, http.MethodPost, "/api/test-deepseek", jsonBody(map[string]any{"apiKey": "sk-x"}))
			if w.Code != tt.wantCode {
				t.Errorf("期望 %d，实际: %d", tt.wantCode, w.Code)
			}
			if resp := parseResponse(t, w); resp["status"] != tt.wantStatus {
				t.Errorf("期望 status=%s，实际: %v", tt.wantStatus, resp["status"])
			}
		})
	}
}
