package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ajie-upup/ajie-comment/pkg/cache"
	"github.com/Ajie-upup/ajie-comment/pkg/model"
)

func newVoucherFixture(t *testing.T) (*VoucherService, redismock.ClientMock, *fakeVoucherRepo) {
	t.Helper()
	db, mock := redismock.NewClientMock()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cacheClient := cache.NewClient(ctx, db, testLogger(), 2, &sync.WaitGroup{})
	repo := &fakeVoucherRepo{}
	return NewVoucherService(db, repo, cacheClient, testLogger()), mock, repo
}

func TestAddSeckillVoucherSeedsStockCounter(t *testing.T) {
	svc, mock, repo := newVoucherFixture(t)

	mock.CustomMatch(ignoreArgs).
		ExpectSet("seckill:stock:5", 100, 0).SetVal("OK")

	voucher := &model.SeckillVoucher{VoucherID: 5, Title: "100元代金券", Stock: 100}
	require.NoError(t, svc.AddSeckillVoucher(context.Background(), voucher))
	// 先落库再种计数，快速路径校验才有权威来源
	assert.Equal(t, voucher, repo.voucher)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryVoucherCacheHit(t *testing.T) {
	svc, mock, repo := newVoucherFixture(t)

	cached, err := json.Marshal(&model.SeckillVoucher{VoucherID: 5, Title: "100元代金券", Stock: 100})
	require.NoError(t, err)
	mock.ExpectGet("cache:voucher:5").SetVal(string(cached))

	voucher, err := svc.QueryVoucher(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), voucher.VoucherID)
	assert.Equal(t, int32(100), voucher.Stock)
	// 命中时不回源
	assert.Equal(t, 0, repo.getCalls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryVoucherMissingCachesNull(t *testing.T) {
	svc, mock, repo := newVoucherFixture(t)

	mock.ExpectGet("cache:voucher:404").RedisNil()
	mock.CustomMatch(ignoreArgs).
		ExpectSetNX("lock:cache:voucher:404", "", 0).SetVal(true)
	mock.CustomMatch(ignoreArgs).
		ExpectSet("cache:voucher:404", "", 0).SetVal("OK")
	mock.CustomMatch(ignoreArgs).
		ExpectEvalSha("", []string{"lock:cache:voucher:404"}, "").SetVal(int64(1))

	_, err := svc.QueryVoucher(context.Background(), 404)
	assert.ErrorIs(t, err, cache.ErrNotFound)
	assert.Equal(t, 1, repo.getCalls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryVoucherMutexRebuild(t *testing.T) {
	svc, mock, repo := newVoucherFixture(t)
	repo.voucher = &model.SeckillVoucher{VoucherID: 5, Title: "100元代金券", Stock: 100}

	mock.ExpectGet("cache:voucher:5").RedisNil()
	mock.CustomMatch(ignoreArgs).
		ExpectSetNX("lock:cache:voucher:5", "", 0).SetVal(true)
	mock.CustomMatch(ignoreArgs).
		ExpectSet("cache:voucher:5", "", 0).SetVal("OK")
	mock.CustomMatch(ignoreArgs).
		ExpectEvalSha("", []string{"lock:cache:voucher:5"}, "").SetVal(int64(1))

	voucher, err := svc.QueryVoucher(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "100元代金券", voucher.Title)
	assert.Equal(t, 1, repo.getCalls)
	require.NoError(t, mock.ExpectationsWereMet())
}
