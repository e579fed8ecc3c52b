package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/Ajie-upup/ajie-comment/pkg/idworker"
	"github.com/Ajie-upup/ajie-comment/pkg/repository"
)

// 预期内的下单被拒原因，同步返回给调用方，不作为错误日志
var (
	ErrOutOfStock     = errors.New("seckill: stock not enough")
	ErrDuplicateOrder = errors.New("seckill: duplicate order for this user")
)

// 库存校验、一人一单校验、扣减、订单消息入流，对同一 voucher 的并发调用整体原子
// 返回: 0=抢购成功 1=库存不足 2=重复下单 -1=库存未预热
const seckillScript = `
	-- KEYS: [stockKey, orderSetKey, streamKey]
	-- ARGV: [userId, voucherId, orderId]

	local stock = redis.call('get', KEYS[1])
	if stock == false then
		return -1
	end
	if tonumber(stock) <= 0 then
		return 1
	end

	if redis.call('sismember', KEYS[2], ARGV[1]) == 1 then
		return 2
	end

	redis.call('incrby', KEYS[1], -1)
	redis.call('sadd', KEYS[2], ARGV[1])
	redis.call('xadd', KEYS[3], '*', 'userId', ARGV[1], 'voucherId', ARGV[2], 'id', ARGV[3])

	return 0
`

// SeckillService 秒杀下单准入：一次脚本往返决定是否放行，落库交给异步物化
type SeckillService struct {
	rdb         *redis.Client
	idWorker    *idworker.IDWorker
	voucherRepo repository.VoucherRepo
	script      *redis.Script
	sf          singleflight.Group
	log         *logrus.Logger
	streamKey   string
}

func NewSeckillService(rdb *redis.Client, idWorker *idworker.IDWorker, voucherRepo repository.VoucherRepo, streamKey string, log *logrus.Logger) *SeckillService {
	return &SeckillService{
		rdb:         rdb,
		idWorker:    idWorker,
		voucherRepo: voucherRepo,
		script:      redis.NewScript(seckillScript),
		log:         log,
		streamKey:   streamKey,
	}
}

func stockKey(voucherID int64) string {
	return fmt.Sprintf("seckill:stock:%d", voucherID)
}

func orderSetKey(voucherID int64) string {
	return fmt.Sprintf("seckill:order:%d", voucherID)
}

// SeckillVoucher 抢购准入
// 成功时订单已写入流并立即返回订单号，此刻订单行还不存在
func (s *SeckillService) SeckillVoucher(ctx context.Context, voucherID, userID int64) (int64, error) {
	orderID, err := s.idWorker.NextID(ctx, "order")
	if err != nil {
		return 0, err
	}

	keys := []string{stockKey(voucherID), orderSetKey(voucherID), s.streamKey}
	args := []interface{}{
		strconv.FormatInt(userID, 10),
		strconv.FormatInt(voucherID, 10),
		strconv.FormatInt(orderID, 10),
	}

	// 库存未预热时从数据库补种后重试一次
	for attempt := 0; attempt < 2; attempt++ {
		res, err := s.script.Run(ctx, s.rdb, keys, args...).Result()
		if err != nil {
			return 0, errors.Wrap(err, "seckill: run admission script")
		}
		code, ok := res.(int64)
		if !ok {
			return 0, errors.Errorf("seckill: unexpected script result %v", res)
		}

		switch code {
		case 0:
			return orderID, nil
		case 1:
			return 0, ErrOutOfStock
		case 2:
			return 0, ErrDuplicateOrder
		case -1:
			if err := s.preloadStock(ctx, voucherID); err != nil {
				return 0, err
			}
		default:
			return 0, errors.Errorf("seckill: unexpected script code %d", code)
		}
	}

	return 0, errors.New("seckill: stock not initialized")
}

// 从权威库存回填 Redis 计数，singleflight 合并同进程并发，SetNX 防并发覆盖
func (s *SeckillService) preloadStock(ctx context.Context, voucherID int64) error {
	_, err, _ := s.sf.Do(stockKey(voucherID), func() (interface{}, error) {
		key := stockKey(voucherID)
		if s.rdb.Exists(ctx, key).Val() > 0 {
			return nil, nil
		}

		voucher, err := s.voucherRepo.GetVoucher(ctx, voucherID)
		if err != nil {
			return nil, errors.Wrapf(err, "seckill: load voucher %d", voucherID)
		}

		if err := s.rdb.SetNX(ctx, key, voucher.Stock, 24*time.Hour).Err(); err != nil {
			s.log.Warnf("[Seckill] SetNX stock for voucher %d failed (maybe race): %v", voucherID, err)
		}
		return nil, nil
	})
	return err
}
