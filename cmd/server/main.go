package main

import (
	"context"
	"os/signal"
	"syscall"

	"order_recon/internal/catalog"
	"order_recon/internal/config"
	"order_recon/internal/confirm"
	"order_recon/internal/gateway"
	"order_recon/internal/intent"
	"order_recon/internal/ledger"
	"order_recon/internal/notify"
	"order_recon/internal/queue"
	"order_recon/internal/recovery"
	"order_recon/internal/router"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	rd "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	// .env 不存在不算错误
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// 1. SQLite 台账，自动建表 + 目录种子数据
	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{})
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	if err := ledger.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	if err := catalog.Seed(db); err != nil {
		log.Fatalf("catalog seed: %v", err)
	}
	store := ledger.New(db)
	cat := catalog.New(db)

	// 2. Redis：轮询状态、限流、outbox 流
	rdb := rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})

	// 3. 支付网关客户端
	gw := gateway.NewHTTPClient(cfg.GatewayBaseURL, cfg.GatewayKeyID, cfg.GatewayKeySecret)

	// 4. 通知：运营侧 Resend 优先、Sendgrid 兜底；客户确认走 Sendgrid
	var operatorChain []notify.Provider
	if cfg.ResendAPIKey != "" {
		operatorChain = append(operatorChain, notify.NewResendProvider(cfg.ResendBaseURL, cfg.ResendAPIKey, cfg.MailFrom))
	}
	var customerProv notify.Provider
	if cfg.SendgridAPIKey != "" {
		sg := notify.NewSendgridProvider(cfg.SendgridAPIKey, cfg.MailFrom)
		operatorChain = append(operatorChain, sg)
		customerProv = sg
	}
	notifier := notify.NewDispatcher(operatorChain, customerProv, cfg.OperatorEmail, log)

	// 5. 捕获事件链路：outbox 流 → Relay → Kafka → Consumer → 履约任务
	outbox := queue.NewOutbox(rdb, cfg.CaptureEventStream)
	producer := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer producer.Close()
	relay := queue.NewRelay(rdb, producer, cfg.CaptureEventStream, cfg.CaptureEventGroup, cfg.CaptureEventConsumer, log)
	consumer := queue.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, store, log)
	defer consumer.Close()

	// 6. 确认引擎 + 后台轮询
	polls := confirm.NewRedisPollStore(rdb, cfg.PendingTTL)
	eng := confirm.NewEngine(gw, store, notifier, outbox, polls, confirm.Config{
		KeySecret:       cfg.GatewayKeySecret,
		WebhookSecret:   cfg.GatewayWebhookSecret,
		PendingTTL:      cfg.PendingTTL,
		MaxPollAttempts: cfg.PollMaxAttempts,
	}, log)
	poller := confirm.NewPoller(eng, cfg.PollInterval, cfg.PollMaxAttempts, log)

	mgr := intent.NewManager(gw, store, cat, cfg.Currency, cfg.MinOrderPaise,
		cfg.NoteValueLimit, cfg.GatewayKeyID, log)
	rec := recovery.New(gw, store, cfg.RecoverOrderScan, cfg.RecoverPaymentScan, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go poller.Run(ctx)
	go relay.Run(ctx)
	go consumer.Run(ctx)

	r := gin.Default()
	router.Setup(r, store, cat, mgr, eng, rec, rdb, cfg, log)

	go func() {
		if err := r.Run(cfg.HTTPAddr); err != nil {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
}
