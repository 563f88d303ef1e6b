package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig 聚合运行时配置，尽量通过环境变量注入，避免硬编码。
type AppConfig struct {
	HTTPAddr string
	DBPath   string

	RedisAddr string
	RedisDB   int

	// 订单 stream 与消费组（同组多实例时 Consumer 必须唯一）
	OrderStream   string
	OrderGroup    string
	OrderConsumer string

	// Kafka 订单事件广播（可选：brokers 为空则关闭）
	KafkaBrokers []string
	KafkaTopic   string

	// 秒杀接口限流
	SeckillRateLimit  int
	SeckillRateWindow time.Duration

	// 缓存策略
	VoucherCacheTTL   time.Duration // 券信息，穿透策略
	ShopCacheTTL      time.Duration // 店铺，穿透策略
	HotShopLogicalTTL time.Duration // 热点店铺，逻辑过期
	CacheNullTTL      time.Duration // 空值占位
	RebuildWorkers    int           // 后台重建协程数

	// 登录态滑动过期
	SessionTTL time.Duration

	// 预热接口的简单管理员令牌（demo 级别保护）
	AdminToken string
}

// Load 读取并校验配置，缺失时使用默认值。
func Load() (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		DBPath:            getEnv("DB_PATH", "comment_app.db"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:           0,
		OrderStream:       getEnv("ORDER_STREAM", "stream.orders"),
		OrderGroup:        getEnv("ORDER_GROUP", "order-group"),
		OrderConsumer:     getEnv("ORDER_CONSUMER", "order-consumer-1"),
		KafkaBrokers:      splitCSV(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:        getEnv("KAFKA_TOPIC", "voucher-order-events"),
		SeckillRateLimit:  200,
		SeckillRateWindow: time.Second,
		VoucherCacheTTL:   30 * time.Minute,
		ShopCacheTTL:      30 * time.Minute,
		HotShopLogicalTTL: 20 * time.Second,
		CacheNullTTL:      2 * time.Minute,
		RebuildWorkers:    10,
		SessionTTL:        30 * time.Minute,
		AdminToken:        getEnv("ADMIN_TOKEN", "dev-admin-token"),
	}

	redisDB, err := getEnvInt("REDIS_DB", cfg.RedisDB)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.RedisDB = redisDB

	rateLimit, err := getEnvInt("SECKILL_RATE_LIMIT", cfg.SeckillRateLimit)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid SECKILL_RATE_LIMIT: %w", err)
	}
	if rateLimit <= 0 {
		return AppConfig{}, fmt.Errorf("SECKILL_RATE_LIMIT must be > 0")
	}
	cfg.SeckillRateLimit = rateLimit

	rateWindowSec, err := getEnvInt("SECKILL_RATE_WINDOW_SEC", int(cfg.SeckillRateWindow.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid SECKILL_RATE_WINDOW_SEC: %w", err)
	}
	if rateWindowSec <= 0 {
		return AppConfig{}, fmt.Errorf("SECKILL_RATE_WINDOW_SEC must be > 0")
	}
	cfg.SeckillRateWindow = time.Duration(rateWindowSec) * time.Second

	nullTTLSec, err := getEnvInt("CACHE_NULL_TTL_SEC", int(cfg.CacheNullTTL.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid CACHE_NULL_TTL_SEC: %w", err)
	}
	if nullTTLSec <= 0 {
		return AppConfig{}, fmt.Errorf("CACHE_NULL_TTL_SEC must be > 0")
	}
	cfg.CacheNullTTL = time.Duration(nullTTLSec) * time.Second

	logicalTTLSec, err := getEnvInt("HOT_SHOP_LOGICAL_TTL_SEC", int(cfg.HotShopLogicalTTL.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid HOT_SHOP_LOGICAL_TTL_SEC: %w", err)
	}
	if logicalTTLSec <= 0 {
		return AppConfig{}, fmt.Errorf("HOT_SHOP_LOGICAL_TTL_SEC must be > 0")
	}
	cfg.HotShopLogicalTTL = time.Duration(logicalTTLSec) * time.Second

	workers, err := getEnvInt("CACHE_REBUILD_WORKERS", cfg.RebuildWorkers)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid CACHE_REBUILD_WORKERS: %w", err)
	}
	if workers <= 0 {
		return AppConfig{}, fmt.Errorf("CACHE_REBUILD_WORKERS must be > 0")
	}
	cfg.RebuildWorkers = workers

	if cfg.OrderStream == "" {
		return AppConfig{}, fmt.Errorf("ORDER_STREAM must not be empty")
	}
	if cfg.OrderGroup == "" {
		return AppConfig{}, fmt.Errorf("ORDER_GROUP must not be empty")
	}
	if cfg.OrderConsumer == "" {
		return AppConfig{}, fmt.Errorf("ORDER_CONSUMER must not be empty")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_TOPIC must not be empty when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// getEnv 读取字符串环境变量，若为空则返回默认值。
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt 读取整数环境变量，若为空则返回默认值。
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

// splitCSV 将逗号分隔字符串解析为字符串切片。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
