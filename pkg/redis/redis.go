package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ysxx86/ClassMaster/config"
)

// Client Redis 客户端封装
// 用于 Token 黑名单、接口限流与导出任务取消标记
type Client struct {
	rdb    goredis.UniversalClient
	logger *zap.Logger
}

// NewClient 创建 Redis 连接并执行 Ping 健康检查
func NewClient(cfg *config.RedisConfig, logger *zap.Logger) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("Redis 连接失败: %w", err)
	}

	logger.Info("Redis 连接成功", zap.String("addr", cfg.Addr))

	return &Client{rdb: rdb, logger: logger}, nil
}

// Wrap 以现有 go-redis 客户端构造 Client
func Wrap(rdb goredis.UniversalClient, logger *zap.Logger) *Client {
	return &Client{rdb: rdb, logger: logger}
}

// Close 关闭 Redis 连接
func (c *Client) Close() error {
	return c.rdb.Close()
}

// ── Token 黑名单 ──

const blacklistPrefix = "token:blacklist:"

// BlacklistToken 将 JWT ID 加入黑名单，TTL 与 Token 剩余有效期一致
func (c *Client) BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return c.rdb.Set(ctx, blacklistPrefix+jti, "1", ttl).Err()
}

// IsBlacklisted 检查 JWT ID 是否在黑名单中
func (c *Client) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	n, err := c.rdb.Exists(ctx, blacklistPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ── 限流 ──

// CheckRateLimit 滑动窗口限流：窗口内请求数未超过 limit 时返回 true
func (c *Client) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	member := strconv.FormatInt(now.UnixNano(), 10) + ":" + uuid.NewString()[:8]
	minScore := strconv.FormatInt(now.Add(-window).UnixNano(), 10)

	pipe := c.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", minScore)
	pipe.ZAdd(ctx, key, goredis.Z{Score: float64(now.UnixNano()), Member: member})
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	return card.Val() <= int64(limit), nil
}

// ── 导出任务取消标记 ──

const exportPrefix = "export:request:"

const (
	exportActive    = "active"
	exportCancelled = "cancelled"
)

// ErrExportNotFound 请求ID未登记或已过期
var ErrExportNotFound = errors.New("导出请求不存在或已过期")

// RegisterExport 登记一个进行中的导出请求
func (c *Client) RegisterExport(ctx context.Context, requestID string, ttl time.Duration) error {
	return c.rdb.Set(ctx, exportPrefix+requestID, exportActive, ttl).Err()
}

// CancelExport 将导出请求标记为已取消，保留原有过期时间
func (c *Client) CancelExport(ctx context.Context, requestID string) error {
	ok, err := c.rdb.SetXX(ctx, exportPrefix+requestID, exportCancelled, goredis.KeepTTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrExportNotFound
	}
	return nil
}

// IsExportCancelled 检查导出请求是否已被取消
func (c *Client) IsExportCancelled(ctx context.Context, requestID string) (bool, error) {
	v, err := c.rdb.Get(ctx, exportPrefix+requestID).Result()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == exportCancelled, nil
}

// FinishExport 导出结束后移除标记
func (c *Client) FinishExport(ctx context.Context, requestID string) error {
	return c.rdb.Del(ctx, exportPrefix+requestID).Err()
}
