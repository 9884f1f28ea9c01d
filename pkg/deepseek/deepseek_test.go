package deepseek

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ysxx86/ClassMaster/config"
)

// fakeServer 模拟 OpenAI 兼容的 /chat/completions 接口
func fakeServer(t *testing.T, reply string, status int) (*httptest.Server, *map[string]any) {
	t.Helper()
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("期望请求 /chat/completions，实际: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"message":"invalid key","type":"authentication_error"}}`))
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   "deepseek-chat",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": reply},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func newTestClient(baseURL string) *Client {
	return NewClient(&config.AIConfig{BaseURL: baseURL, Model: "deepseek-chat", Timeout: 5 * time.Second, MaxTokens: 100}, zap.NewNop())
}

func TestChat_Success(t *testing.T) {
	srv, got := fakeServer(t, "  该生表现优秀。 ", http.StatusOK)
	c := newTestClient(srv.URL)

	reply, err := c.Chat(context.Background(), "sk-test", "系统提示", "用户提示")
	if err != nil {
		t.Fatalf("Chat 应成功: %v", err)
	}
	if reply != "该生表现优秀。" {
		t.Errorf("期望去除首尾空白，实际: %q", reply)
	}
	if (*got)["model"] != "deepseek-chat" {
		t.Errorf("期望模型 deepseek-chat，实际: %v", (*got)["model"])
	}
	msgs, _ := (*got)["messages"].([]any)
	if len(msgs) != 2 {
		t.Errorf("期望 2 条消息，实际: %d", len(msgs))
	}
}

func TestChat_Errors(t *testing.T) {
	srv, _ := fakeServer(t, "", http.StatusOK)
	c := newTestClient(srv.URL)

	tests := []struct {
		name string
		key  string
		want error
	}{
		{"NoKey", "", ErrNoAPIKey},
		{"InvalidKey", "sk-wrong", ErrInvalidAPIKey},
		{"EmptyReply", "sk-test", ErrEmptyReply},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Chat(context.Background(), tt.key, "s", "p")
			if !errors.Is(err, tt.want) {
				t.Errorf("期望 %v，实际: %v", tt.want, err)
			}
		})
	}
}
