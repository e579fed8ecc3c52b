package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/Ajie-upup/ajie-comment/pkg/lock"
	"github.com/Ajie-upup/ajie-comment/pkg/model"
	"github.com/Ajie-upup/ajie-comment/pkg/repository"
)

const (
	// DRAIN_NEW 状态的阻塞读上限
	blockInterval = 2 * time.Second
	// RECOVER 状态逐条失败后的退避，避免空转又保住至少一次投递
	recoverRetryDelay = 20 * time.Millisecond
)

// OrderWorker 订单物化器：从订单流中取出已放行的预订，在持有买家锁的事务里落库
type OrderWorker struct {
	rdb       *redis.Client
	repo      repository.OrderRepo
	log       *logrus.Logger
	meter     metric.Meter
	streamKey string
	group     string
	consumer  string
	consumers int
	lockTTL   time.Duration

	reclaimIdle     time.Duration
	reclaimInterval time.Duration

	materializedTotal uint64
	droppedTotal      uint64
	ackFailTotal      uint64
	reclaimedTotal    uint64
}

func NewOrderWorker(rdb *redis.Client, repo repository.OrderRepo, streamKey, group string, consumers int, lockTTL, reclaimIdle time.Duration, log *logrus.Logger) *OrderWorker {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "pod-unknown"
	}
	if consumers <= 0 {
		consumers = 1
	}

	w := &OrderWorker{
		rdb:             rdb,
		repo:            repo,
		log:             log,
		meter:           otel.GetMeterProvider().Meter("ajie-comment.order_worker"),
		streamKey:       streamKey,
		group:           group,
		consumer:        hostname,
		consumers:       consumers,
		lockTTL:         lockTTL,
		reclaimIdle:     reclaimIdle,
		reclaimInterval: reclaimIdle,
	}
	w.registerMetrics()
	return w
}

func (w *OrderWorker) registerMetrics() {
	gauges := []struct {
		name    string
		counter *uint64
	}{
		{"order_materialized_total", &w.materializedTotal},
		{"order_dropped_total", &w.droppedTotal},
		{"order_ack_fail_total", &w.ackFailTotal},
		{"order_reclaimed_total", &w.reclaimedTotal},
	}
	for _, g := range gauges {
		counter := g.counter
		_, err := w.meter.Int64ObservableGauge(
			g.name,
			metric.WithUnit("{orders}"),
			metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
				obs.Observe(int64(atomic.LoadUint64(counter)))
				return nil
			}),
		)
		if err != nil {
			w.log.Warnf("[OrderWorker] failed to register metric %s: %v", g.name, err)
		}
	}
}

// Start 建组并启动消费者协程和僵死消息认领协程
func (w *OrderWorker) Start(ctx context.Context, wg *sync.WaitGroup) {
	if err := w.rdb.XGroupCreateMkStream(ctx, w.streamKey, w.group, "0").Err(); err != nil {
		// BUSYGROUP 表示组已存在，属于正常重启
		w.log.Warnf("[OrderWorker] create group: %v", err)
	}

	for i := 0; i < w.consumers; i++ {
		name := fmt.Sprintf("%s-%d", w.consumer, i)
		wg.Add(1)
		go w.runLoop(ctx, name, wg)
	}

	wg.Add(1)
	go w.runReclaim(ctx, wg)
}

// runLoop 单消费者状态机：DRAIN_NEW 阻塞读新消息，任何处理异常转入 RECOVER
func (w *OrderWorker) runLoop(ctx context.Context, consumer string, wg *sync.WaitGroup) {
	defer wg.Done()
	w.log.Infof("[OrderWorker - %s] started on stream %s", consumer, w.streamKey)

	for {
		select {
		case <-ctx.Done():
			w.log.Infof("[OrderWorker - %s] shutting down", consumer)
			return
		default:
			entries, err := w.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    w.group,
				Consumer: consumer,
				Streams:  []string{w.streamKey, ">"},
				Count:    1,
				Block:    blockInterval,
			}).Result()

			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Errorf("[OrderWorker - %s] read stream failed: %v", consumer, err)
				}
				continue
			}
			if len(entries) == 0 || len(entries[0].Messages) == 0 {
				continue
			}

			if err := w.handleMessage(ctx, consumer, entries[0].Messages[0]); err != nil {
				w.log.Errorf("[OrderWorker - %s] handle order failed: %v", consumer, err)
				w.drainPending(ctx, consumer)
			}
		}
	}
}

// drainPending RECOVER 状态：从头非阻塞重放本消费者未确认的积压
// 单条失败时小睡后重试同一积压，不前进，直到清空为止
func (w *OrderWorker) drainPending(ctx context.Context, consumer string) {
	for {
		if ctx.Err() != nil {
			return
		}

		entries, err := w.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    w.group,
			Consumer: consumer,
			Streams:  []string{w.streamKey, "0"},
			Count:    1,
		}).Result()

		if err != nil {
			if err == redis.Nil {
				return
			}
			w.log.Errorf("[OrderWorker - %s] read pending failed: %v", consumer, err)
			time.Sleep(recoverRetryDelay)
			continue
		}
		if len(entries) == 0 || len(entries[0].Messages) == 0 {
			// 积压清空，回到 DRAIN_NEW
			return
		}

		if err := w.handleMessage(ctx, consumer, entries[0].Messages[0]); err != nil {
			w.log.Errorf("[OrderWorker - %s] replay pending order failed: %v", consumer, err)
			time.Sleep(recoverRetryDelay)
		}
	}
}

// runReclaim 认领同组内其它消费者崩溃后滞留的 pending 消息
func (w *OrderWorker) runReclaim(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	ticker := time.NewTicker(w.reclaimInterval)
	defer ticker.Stop()

	consumer := w.consumer + "-reclaim"

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pendings, err := w.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
				Stream: w.streamKey,
				Group:  w.group,
				Idle:   w.reclaimIdle,
				Start:  "-",
				End:    "+",
				Count:  50,
			}).Result()
			if err != nil || len(pendings) == 0 {
				continue
			}

			ids := make([]string, 0, len(pendings))
			for _, p := range pendings {
				ids = append(ids, p.ID)
			}

			claimed, err := w.rdb.XClaim(ctx, &redis.XClaimArgs{
				Stream:   w.streamKey,
				Group:    w.group,
				Consumer: consumer,
				MinIdle:  w.reclaimIdle,
				Messages: ids,
			}).Result()
			if err != nil {
				w.log.Errorf("[OrderWorker] claim pending failed: %v", err)
				continue
			}

			for _, msg := range claimed {
				if err := w.handleMessage(ctx, consumer, msg); err != nil {
					w.log.Errorf("[OrderWorker] reclaimed order failed (will retry next tick): %v", err)
					continue
				}
				atomic.AddUint64(&w.reclaimedTotal, 1)
			}
		}
	}
}

// handleMessage 解析、物化、确认
// 解析失败的毒消息落表后确认，避免永远堵住 pending
func (w *OrderWorker) handleMessage(ctx context.Context, consumer string, msg redis.XMessage) error {
	order, err := parseOrder(msg.Values)
	if err != nil {
		w.log.Errorf("[OrderWorker - %s] unparseable message %s: %v", consumer, msg.ID, err)
		w.quarantine(ctx, msg, err)
		w.ack(ctx, msg.ID)
		return nil
	}

	if err := w.materialize(ctx, order); err != nil {
		return err
	}
	w.ack(ctx, msg.ID)
	return nil
}

func (w *OrderWorker) ack(ctx context.Context, msgID string) {
	if err := w.rdb.XAck(ctx, w.streamKey, w.group, msgID).Err(); err != nil {
		w.log.Errorf("[OrderWorker] ack %s failed: %v", msgID, err)
		atomic.AddUint64(&w.ackFailTotal, 1)
	}
}

// materialize 持有买家锁执行权威落库
// 拿不到锁说明另一个物化器正在处理该买家，放行决定早已在脚本里做出，直接丢弃
func (w *OrderWorker) materialize(ctx context.Context, order *model.VoucherOrder) error {
	mu := lock.New(w.rdb, fmt.Sprintf("order:%d", order.UserID))
	ok, err := mu.TryLock(ctx, w.lockTTL)
	if err != nil {
		return errors.Wrap(err, "acquire buyer lock")
	}
	if !ok {
		w.log.Warnf("[OrderWorker] buyer %d locked by another materializer, dropping entry", order.UserID)
		atomic.AddUint64(&w.droppedTotal, 1)
		return nil
	}
	defer func() {
		if unlockErr := mu.Unlock(ctx); unlockErr != nil {
			w.log.Warnf("[OrderWorker] unlock buyer %d failed: %v", order.UserID, unlockErr)
		}
	}()

	err = w.repo.CreateVoucherOrder(ctx, order)
	switch {
	case errors.Is(err, repository.ErrOrderExists):
		w.log.Warnf("[OrderWorker] order for user %d voucher %d already exists (idempotent replay)", order.UserID, order.VoucherID)
		return nil
	case errors.Is(err, repository.ErrStockNotEnough):
		w.log.Warnf("[OrderWorker] authoritative stock exhausted for voucher %d, dropping order %d", order.VoucherID, order.ID)
		return nil
	case err != nil:
		return err
	}

	atomic.AddUint64(&w.materializedTotal, 1)
	return nil
}

// quarantine 毒消息进死信表
func (w *OrderWorker) quarantine(ctx context.Context, msg redis.XMessage, cause error) {
	raw, _ := json.Marshal(msg.Values)
	failed := &model.FailedOrder{
		MsgID:        msg.ID,
		OriginalJSON: string(raw),
		ErrorReason:  cause.Error(),
	}
	if err := w.repo.InsertFailedOrder(ctx, failed); err != nil {
		w.log.Errorf("CRITICAL: failed to quarantine message %s: %v", msg.ID, err)
	}
}

func parseOrder(values map[string]interface{}) (*model.VoucherOrder, error) {
	id, err := parseInt64Field(values, "id")
	if err != nil {
		return nil, err
	}
	userID, err := parseInt64Field(values, "userId")
	if err != nil {
		return nil, err
	}
	voucherID, err := parseInt64Field(values, "voucherId")
	if err != nil {
		return nil, err
	}
	return &model.VoucherOrder{ID: id, UserID: userID, VoucherID: voucherID}, nil
}

func parseInt64Field(values map[string]interface{}, field string) (int64, error) {
	raw, ok := values[field].(string)
	if !ok {
		return 0, errors.Errorf("missing or non-string field %q", field)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse field %q", field)
	}
	return v, nil
}
