package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/opd-token-allocation/internal/lock"
)

func newTestLocker(t *testing.T, wait time.Duration) (*redisProviderLocker, redismock.ClientMock) {
	t.Helper()
	rdb, mock := redismock.NewClientMock()
	l := NewRedisProviderLocker(rdb, 5*time.Second, wait).(*redisProviderLocker)
	l.retryInterval = time.Millisecond
	l.newToken = func() string { return "lock-token" }
	return l, mock
}

func TestRedisProviderLocker_AcquireAndRelease(t *testing.T) {
	l, mock := newTestLocker(t, 0)
	providerID := uuid.New()
	key := providerKey(providerID)

	mock.ExpectSetNX(key, "lock-token", 5*time.Second).SetVal(true)
	mock.ExpectEvalSha(unlockScript.Hash(), []string{key}, "lock-token").SetVal(int64(1))

	called := false
	err := l.WithProviderLock(context.Background(), providerID, func(ctx context.Context) error {
		called = true
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return nil
	})

	require.NoError(t, err)
	assert.True(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisProviderLocker_NotAcquired(t *testing.T) {
	l, mock := newTestLocker(t, 0)
	providerID := uuid.New()

	mock.ExpectSetNX(providerKey(providerID), "lock-token", 5*time.Second).SetVal(false)

	err := l.WithProviderLock(context.Background(), providerID, func(ctx context.Context) error {
		t.Fatal("critical section must not run")
		return nil
	})

	assert.ErrorIs(t, err, lock.ErrLockNotAcquired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisProviderLocker_RetriesUntilFree(t *testing.T) {
	l, mock := newTestLocker(t, time.Second)
	providerID := uuid.New()
	key := providerKey(providerID)

	mock.ExpectSetNX(key, "lock-token", 5*time.Second).SetVal(false)
	mock.ExpectSetNX(key, "lock-token", 5*time.Second).SetVal(true)
	mock.ExpectEvalSha(unlockScript.Hash(), []string{key}, "lock-token").SetVal(int64(1))

	err := l.WithProviderLock(context.Background(), providerID, func(ctx context.Context) error {
		return nil
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisProviderLocker_SetNXError(t *testing.T) {
	l, mock := newTestLocker(t, 0)
	providerID := uuid.New()

	mock.ExpectSetNX(providerKey(providerID), "lock-token", 5*time.Second).SetErr(errors.New("connection refused"))

	err := l.WithProviderLock(context.Background(), providerID, func(ctx context.Context) error {
		return nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "acquire provider lock")
	assert.NoError(t, mock.ExpectationsWereMet())
}
