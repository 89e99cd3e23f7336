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

	// 支付网关（黑盒 REST，Basic Auth）
	GatewayBaseURL       string
	GatewayKeyID         string
	GatewayKeySecret     string
	GatewayWebhookSecret string

	// 金额统一用最小货币单位（paise）
	Currency      string
	MinOrderPaise int64
	// 网关 notes 单字段长度上限，超长字段截断后写入
	NoteValueLimit int

	// pending 意向的有效期与后台轮询参数
	PendingTTL      time.Duration
	PollInterval    time.Duration
	PollMaxAttempts int

	// 身份找回的扫描窗口（有界，见 recovery 包）
	RecoverOrderScan   int
	RecoverPaymentScan int

	// Kafka 集群地址（逗号分隔）、Topic、消费者组
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// Redis Stream outbox（确认成功原子入流，Relay 异步转 Kafka）
	CaptureEventStream   string
	CaptureEventGroup    string
	CaptureEventConsumer string

	// 下单与找回接口限流
	IntentRateLimit   int
	IntentRateWindow  time.Duration
	RecoverRateLimit  int
	RecoverRateWindow time.Duration

	// 通知投递
	OperatorEmail  string
	MailFrom       string
	ResendAPIKey   string
	ResendBaseURL  string
	SendgridAPIKey string
}

// Load 读取并校验配置，缺失时使用默认值。
func Load() (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddr:             getEnv("HTTP_ADDR", ":8080"),
		DBPath:               getEnv("DB_PATH", "order_recon.db"),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:              0,
		GatewayBaseURL:       getEnv("GATEWAY_BASE_URL", "https://api.razorpay.com"),
		GatewayKeyID:         getEnv("GATEWAY_KEY_ID", ""),
		GatewayKeySecret:     getEnv("GATEWAY_KEY_SECRET", ""),
		GatewayWebhookSecret: getEnv("GATEWAY_WEBHOOK_SECRET", ""),
		Currency:             getEnv("CURRENCY", "INR"),
		MinOrderPaise:        2000,
		NoteValueLimit:       255,
		PendingTTL:           24 * time.Hour,
		PollInterval:         15 * time.Second,
		PollMaxAttempts:      20,
		RecoverOrderScan:     100,
		RecoverPaymentScan:   50,
		KafkaBrokers:         splitCSV(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:           getEnv("KAFKA_TOPIC", "order-recon-captures"),
		KafkaGroupID:         getEnv("KAFKA_GROUP_ID", "order-recon-fulfilment"),
		CaptureEventStream:   getEnv("CAPTURE_EVENT_STREAM", "order_recon:capture_events"),
		CaptureEventGroup:    getEnv("CAPTURE_EVENT_GROUP", "order-recon-relay-group"),
		CaptureEventConsumer: getEnv("CAPTURE_EVENT_CONSUMER", "order-recon-relay-1"),
		IntentRateLimit:      30,
		IntentRateWindow:     time.Minute,
		RecoverRateLimit:     5,
		RecoverRateWindow:    time.Minute,
		OperatorEmail:        getEnv("OPERATOR_EMAIL", ""),
		MailFrom:             getEnv("MAIL_FROM", "orders@localhost"),
		ResendAPIKey:         getEnv("RESEND_API_KEY", ""),
		ResendBaseURL:        getEnv("RESEND_BASE_URL", "https://api.resend.com"),
		SendgridAPIKey:       getEnv("SENDGRID_API_KEY", ""),
	}

	redisDB, err := getEnvInt("REDIS_DB", cfg.RedisDB)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.RedisDB = redisDB

	minOrder, err := getEnvInt("MIN_ORDER_PAISE", int(cfg.MinOrderPaise))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid MIN_ORDER_PAISE: %w", err)
	}
	if minOrder <= 0 {
		return AppConfig{}, fmt.Errorf("MIN_ORDER_PAISE must be > 0")
	}
	cfg.MinOrderPaise = int64(minOrder)

	noteLimit, err := getEnvInt("NOTE_VALUE_LIMIT", cfg.NoteValueLimit)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid NOTE_VALUE_LIMIT: %w", err)
	}
	if noteLimit <= 0 {
		return AppConfig{}, fmt.Errorf("NOTE_VALUE_LIMIT must be > 0")
	}
	cfg.NoteValueLimit = noteLimit

	ttlHour, err := getEnvInt("PENDING_TTL_HOUR", int(cfg.PendingTTL.Hours()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid PENDING_TTL_HOUR: %w", err)
	}
	if ttlHour <= 0 {
		return AppConfig{}, fmt.Errorf("PENDING_TTL_HOUR must be > 0")
	}
	cfg.PendingTTL = time.Duration(ttlHour) * time.Hour

	pollSec, err := getEnvInt("POLL_INTERVAL_SEC", int(cfg.PollInterval.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid POLL_INTERVAL_SEC: %w", err)
	}
	if pollSec <= 0 {
		return AppConfig{}, fmt.Errorf("POLL_INTERVAL_SEC must be > 0")
	}
	cfg.PollInterval = time.Duration(pollSec) * time.Second

	pollMax, err := getEnvInt("POLL_MAX_ATTEMPTS", cfg.PollMaxAttempts)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid POLL_MAX_ATTEMPTS: %w", err)
	}
	if pollMax <= 0 {
		return AppConfig{}, fmt.Errorf("POLL_MAX_ATTEMPTS must be > 0")
	}
	cfg.PollMaxAttempts = pollMax

	orderScan, err := getEnvInt("RECOVER_ORDER_SCAN", cfg.RecoverOrderScan)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid RECOVER_ORDER_SCAN: %w", err)
	}
	if orderScan <= 0 {
		return AppConfig{}, fmt.Errorf("RECOVER_ORDER_SCAN must be > 0")
	}
	cfg.RecoverOrderScan = orderScan

	paymentScan, err := getEnvInt("RECOVER_PAYMENT_SCAN", cfg.RecoverPaymentScan)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid RECOVER_PAYMENT_SCAN: %w", err)
	}
	if paymentScan <= 0 {
		return AppConfig{}, fmt.Errorf("RECOVER_PAYMENT_SCAN must be > 0")
	}
	cfg.RecoverPaymentScan = paymentScan

	intentLimit, err := getEnvInt("INTENT_RATE_LIMIT", cfg.IntentRateLimit)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid INTENT_RATE_LIMIT: %w", err)
	}
	if intentLimit <= 0 {
		return AppConfig{}, fmt.Errorf("INTENT_RATE_LIMIT must be > 0")
	}
	cfg.IntentRateLimit = intentLimit

	intentWindowSec, err := getEnvInt("INTENT_RATE_WINDOW_SEC", int(cfg.IntentRateWindow.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid INTENT_RATE_WINDOW_SEC: %w", err)
	}
	if intentWindowSec <= 0 {
		return AppConfig{}, fmt.Errorf("INTENT_RATE_WINDOW_SEC must be > 0")
	}
	cfg.IntentRateWindow = time.Duration(intentWindowSec) * time.Second

	recoverLimit, err := getEnvInt("RECOVER_RATE_LIMIT", cfg.RecoverRateLimit)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid RECOVER_RATE_LIMIT: %w", err)
	}
	if recoverLimit <= 0 {
		return AppConfig{}, fmt.Errorf("RECOVER_RATE_LIMIT must be > 0")
	}
	cfg.RecoverRateLimit = recoverLimit

	recoverWindowSec, err := getEnvInt("RECOVER_RATE_WINDOW_SEC", int(cfg.RecoverRateWindow.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid RECOVER_RATE_WINDOW_SEC: %w", err)
	}
	if recoverWindowSec <= 0 {
		return AppConfig{}, fmt.Errorf("RECOVER_RATE_WINDOW_SEC must be > 0")
	}
	cfg.RecoverRateWindow = time.Duration(recoverWindowSec) * time.Second

	if len(cfg.KafkaBrokers) == 0 {
		return AppConfig{}, fmt.Errorf("KAFKA_BROKERS must not be empty")
	}
	if cfg.KafkaTopic == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_TOPIC must not be empty")
	}
	if cfg.KafkaGroupID == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_GROUP_ID must not be empty")
	}
	if cfg.CaptureEventStream == "" {
		return AppConfig{}, fmt.Errorf("CAPTURE_EVENT_STREAM must not be empty")
	}
	if cfg.CaptureEventGroup == "" {
		return AppConfig{}, fmt.Errorf("CAPTURE_EVENT_GROUP must not be empty")
	}
	if cfg.CaptureEventConsumer == "" {
		return AppConfig{}, fmt.Errorf("CAPTURE_EVENT_CONSUMER must not be empty")
	}
	if cfg.Currency == "" {
		return AppConfig{}, fmt.Errorf("CURRENCY must not be empty")
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
