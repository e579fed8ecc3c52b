package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/Ajie-upup/ajie-comment/pkg/cache"
	"github.com/Ajie-upup/ajie-comment/pkg/config"
	"github.com/Ajie-upup/ajie-comment/pkg/httpapi"
	"github.com/Ajie-upup/ajie-comment/pkg/idworker"
	"github.com/Ajie-upup/ajie-comment/pkg/model"
	"github.com/Ajie-upup/ajie-comment/pkg/repository"
	"github.com/Ajie-upup/ajie-comment/pkg/service"
	"github.com/Ajie-upup/ajie-comment/pkg/worker"
)

var log *logrus.Logger

func init() {
	log = logrus.New()
	log.Formatter = &logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "severity",
			logrus.FieldKeyMsg:   "message",
		},
		TimestampFormat: time.RFC3339Nano,
	}
	log.Out = os.Stdout
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wg := &sync.WaitGroup{}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db := initMySQL(cfg)
	rdb := initRedis(cfg)

	orderRepo := repository.NewOrderRepo(db)
	voucherRepo := repository.NewVoucherRepo(db)
	shopRepo := repository.NewShopRepo(db)

	idWorker := idworker.New(rdb)
	cacheClient := cache.NewClient(ctx, rdb, log, cfg.CacheRebuilds, wg)

	seckillSvc := service.NewSeckillService(rdb, idWorker, voucherRepo, cfg.OrderStreamKey, log)
	shopSvc := service.NewShopService(shopRepo, cacheClient, log)
	voucherSvc := service.NewVoucherService(rdb, voucherRepo, cacheClient, log)

	// 订单物化器：持续消费订单流，崩溃后由 pending 重放和认领协程兜底
	orderWorker := worker.NewOrderWorker(rdb, orderRepo, cfg.OrderStreamKey, cfg.OrderGroup, cfg.OrderConsumers, cfg.OrderLockTTL, cfg.ReclaimIdle, log)
	orderWorker.Start(ctx, wg)

	srv := httpapi.NewServer(seckillSvc, shopSvc, voucherSvc, log)
	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Router}

	go func() {
		log.Infof("HTTP server started on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info("Gracefully shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warnf("http shutdown: %v", err)
	}

	// 通知 worker 停止并等待清理完成
	cancel()
	wg.Wait()
}

func initMySQL(cfg *config.Config) *gorm.DB {
	db, err := gorm.Open(mysql.Open(cfg.MySQLAddr), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect to mysql: %v", err)
	}
	if err := db.AutoMigrate(&model.SeckillVoucher{}, &model.VoucherOrder{}, &model.Shop{}, &model.FailedOrder{}); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}
	log.Info("connected to mysql")
	return db
}

func initRedis(cfg *config.Config) *redis.Client {
	var rdb *redis.Client

	if cfg.RedisSentinelAddrs != "" {
		// 哨兵模式（生产环境/K8s）
		log.Infof("Initializing Redis in Sentinel Mode. Sentinels: %s", cfg.RedisSentinelAddrs)
		rdb = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    cfg.RedisMasterName,
			SentinelAddrs: strings.Split(cfg.RedisSentinelAddrs, ","),
			DB:            0,
		})
	} else {
		// 单机模式（本地开发）
		log.Infof("Initializing Redis in Single Node Mode. Addr: %s", cfg.RedisAddr)
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warnf("failed to connect to redis: %v", err)
	} else {
		log.Info("connected to redis")
	}
	return rdb
}
