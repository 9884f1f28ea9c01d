package deepseek

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ysxx86/ClassMaster/config"
)

var (
	ErrNoAPIKey      = errors.New("未配置 DeepSeek API 密钥")
	ErrInvalidAPIKey = errors.New("DeepSeek API 密钥无效")
	ErrEmptyReply    = errors.New("AI 未返回内容")
)

// Client DeepSeek 对话接口客户端（OpenAI 兼容协议）
// 密钥按次传入，管理员在界面修改密钥后无需重建客户端
type Client struct {
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient 创建客户端
func NewClient(cfg *config.AIConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *Client) api(apiKey string) *openai.Client {
	oc := openai.DefaultConfig(apiKey)
	if c.baseURL != "" {
		oc.BaseURL = c.baseURL
	}
	oc.HTTPClient = c.httpClient
	return openai.NewClientWithConfig(oc)
}

// Chat 发送一轮对话并返回回复文本
func (c *Client) Chat(ctx context.Context, apiKey, system, prompt string) (string, error) {
	if apiKey == "" {
		return "", ErrNoAPIKey
	}

	start := time.Now()
	resp, err := c.api(apiKey).CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   c.maxTokens,
		Temperature: 0.7,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusUnauthorized {
			return "", ErrInvalidAPIKey
		}
		c.logger.Error("调用 DeepSeek 失败", zap.String("model", c.model), zap.Error(err))
		return "", fmt.Errorf("调用 DeepSeek 失败: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", ErrEmptyReply
	}

	c.logger.Info("DeepSeek 调用完成",
		zap.String("model", c.model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("latency", time.Since(start)),
	)
	return reply, nil
}

// Ping 用最小请求验证密钥可用
func (c *Client) Ping(ctx context.Context, apiKey string) error {
	_, err := c.Chat(ctx, apiKey, "你是一个测试助手。", "请回复：ok")
	return err
}
