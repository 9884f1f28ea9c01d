package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("响应不是合法 JSON: %v", err)
	}
	return m
}

func TestOK_FlattensPayload(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	OK(c, "成功", gin.H{"students": []int{1, 2}, "status": "hijack"})

	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际: %d", w.Code)
	}
	m := decode(t, w)
	if m["status"] != StatusOK {
		t.Errorf("payload 不应覆盖 status，实际: %v", m["status"])
	}
	if m["message"] != "成功" {
		t.Errorf("期望 message=成功，实际: %v", m["message"])
	}
	if _, ok := m["students"]; !ok {
		t.Error("期望 students 字段平铺在顶层")
	}
}

func TestInternalError_EchoesMessage(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	InternalError(c, errors.New("database is locked"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("期望 500，实际: %d", w.Code)
	}
	m := decode(t, w)
	if m["status"] != StatusError {
		t.Errorf("期望 status=error，实际: %v", m["status"])
	}
	if !strings.Contains(m["message"].(string), "database is locked") {
		t.Errorf("期望错误信息被回显，实际: %v", m["message"])
	}
}

func TestAttachment_Header(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Attachment(c, "学生名单.xlsx", ContentTypeXLSX, []byte("x"))

	cd := w.Header().Get("Content-Disposition")
	if !strings.HasPrefix(cd, "attachment; filename*=UTF-8''") {
		t.Errorf("Content-Disposition 格式不正确: %s", cd)
	}
	if w.Header().Get("Content-Type") != ContentTypeXLSX {
		t.Errorf("期望 xlsx MIME，实际: %s", w.Header().Get("Content-Type"))
	}
}
