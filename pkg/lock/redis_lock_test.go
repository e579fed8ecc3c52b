package lock

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryLockAcquiresWithTTL(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := &RedisLock{rdb: db, key: "lock:order:7", token: "tok-1"}

	mock.ExpectSetNX("lock:order:7", "tok-1", 10*time.Second).SetVal(true)

	ok, err := l.TryLock(context.Background(), 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTryLockReturnsFalseWhenHeld(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := &RedisLock{rdb: db, key: "lock:order:7", token: "tok-1"}

	mock.ExpectSetNX("lock:order:7", "tok-1", 10*time.Second).SetVal(false)

	ok, err := l.TryLock(context.Background(), 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnlockOnlyDeletesOwnToken(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := &RedisLock{rdb: db, key: "lock:order:7", token: "tok-1"}

	// 脚本里 token 不匹配时返回 0 而不是删除，这里只验证以本方 token 调用
	mock.ExpectEvalSha(unlockScript.Hash(), []string{"lock:order:7"}, "tok-1").SetVal(int64(1))

	require.NoError(t, l.Unlock(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnlockIdempotentWhenExpired(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := &RedisLock{rdb: db, key: "lock:order:7", token: "tok-1"}

	// 锁已过期被他人持有，脚本返回 0，调用方不报错
	mock.ExpectEvalSha(unlockScript.Hash(), []string{"lock:order:7"}, "tok-1").SetVal(int64(0))

	require.NoError(t, l.Unlock(context.Background()))
}

func TestNewGeneratesDistinctTokens(t *testing.T) {
	db, _ := redismock.NewClientMock()
	a := New(db, "order:1")
	b := New(db, "order:1")

	assert.Equal(t, "lock:order:1", a.key)
	assert.NotEqual(t, a.token, b.token)
}
