package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	rd "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/wwsz-2002/comment-app/internal/cache"
	"github.com/wwsz-2002/comment-app/internal/config"
	"github.com/wwsz-2002/comment-app/internal/idgen"
	"github.com/wwsz-2002/comment-app/internal/model"
	"github.com/wwsz-2002/comment-app/internal/router"
	"github.com/wwsz-2002/comment-app/internal/seckill"
	"github.com/wwsz-2002/comment-app/internal/session"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	// .env 仅本地开发使用，不存在不算错误
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// SQLite + 自动建表
	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{})
	if err != nil {
		log.WithError(err).Fatal("db open")
	}
	if err := db.AutoMigrate(&model.Shop{}, &model.SeckillVoucher{}, &model.VoucherOrder{}); err != nil {
		log.WithError(err).Fatal("db migrate")
	}

	rdb := rd.NewClient(&rd.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.WithError(err).Fatal("redis ping")
	}
	defer rdb.Close()

	cacheClient := cache.NewClient(rdb, log, cache.Options{
		NullTTL:        cfg.CacheNullTTL,
		RebuildWorkers: cfg.RebuildWorkers,
	})
	defer cacheClient.Close()

	gen := idgen.New(rdb)
	resolver := session.NewResolver(rdb, cfg.SessionTTL)
	svc := seckill.NewService(rdb, db, cacheClient, gen, log, cfg.OrderStream, cfg.VoucherCacheTTL)

	// Kafka 事件广播可选，未配置 broker 则不发
	var producer *seckill.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = seckill.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
	}

	worker := seckill.NewWorker(rdb, db, log, producer, seckill.WorkerConfig{
		Stream:   cfg.OrderStream,
		Group:    cfg.OrderGroup,
		Consumer: cfg.OrderConsumer,
	})
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(ctx)
	}()

	r := gin.Default()
	router.Setup(r, db, rdb, cacheClient, svc, resolver, cfg)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("http server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http serve")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}

	// 消费循环随 ctx 退出；等它把手头消息处理完
	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		log.Warn("order worker did not stop in time")
	}
}
