package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type leaseStore struct {
	values map[string]string
	err    error
}

func newLeaseStore() *leaseStore { return &leaseStore{values: map[string]string{}} }

func (s *leaseStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if _, ok := s.values[key]; ok {
		return false, nil
	}
	s.values[key] = value.(string)
	return true, nil
}

func (s *leaseStore) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if s.values[key] != expected {
		return false, nil
	}
	delete(s.values, key)
	return true, nil
}

func TestRedisLockIsExclusive(t *testing.T) {
	store := newLeaseStore()
	ctx := context.Background()
	first, err := NewRedisLock(store, "fp:cron:lock:test", time.Minute)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "fp:cron:lock:test", time.Minute)
	require.NoError(t, err)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, second.Release(ctx))
	require.Contains(t, store.values, "fp:cron:lock:test")

	require.NoError(t, first.Release(ctx))
	require.NotContains(t, store.values, "fp:cron:lock:test")

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisLockDoesNotFreeTakenOverLease(t *testing.T) {
	store := newLeaseStore()
	ctx := context.Background()
	lock, err := NewRedisLock(store, "k", time.Minute)
	require.NoError(t, err)

	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// Lease expired and another instance took it.
	store.values["k"] = "someone-else"
	require.NoError(t, lock.Release(ctx))
	require.Equal(t, "someone-else", store.values["k"])
}

func TestRedisLockSurfacesStoreErrors(t *testing.T) {
	store := newLeaseStore()
	store.err = errors.New("redis down")
	lock, err := NewRedisLock(store, "k", 0)
	require.NoError(t, err)
	require.Equal(t, defaultLockTTL, lock.ttl)

	_, err = lock.Acquire(context.Background())
	require.ErrorContains(t, err, "redis down")

	_, err = NewRedisLock(nil, "k", time.Minute)
	require.Error(t, err)
	_, err = NewRedisLock(store, "", time.Minute)
	require.Error(t, err)
}
