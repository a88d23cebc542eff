/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package redlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocker_Lock_Success(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "faucet:funding:0xabc", "owner-1")

	mock.ExpectSetNX("faucet:funding:0xabc", "owner-1", 5*time.Second).SetVal(true)

	err := locker.Lock(context.Background(), 5*time.Second)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_Lock_Failure(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "faucet:funding:0xabc", "owner-1")

	mock.ExpectSetNX("faucet:funding:0xabc", "owner-1", 5*time.Second).SetVal(false)

	err := locker.Lock(context.Background(), 5*time.Second)
	assert.ErrorIs(t, err, ErrLockHeld)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_Unlock_Success(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "faucet:funding:0xabc", "owner-1")

	// Simulate a successful unlock
	script := "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"
	mock.ExpectEval(script, []string{"faucet:funding:0xabc"}, "owner-1").SetVal(int64(1))

	err := locker.Unlock(context.Background())
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_Unlock_Failure(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "faucet:funding:0xabc", "owner-1")

	// Simulate a failed unlock (either lock expired or not the lock holder)
	script := "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"
	mock.ExpectEval(script, []string{"faucet:funding:0xabc"}, "owner-1").SetVal(int64(0))

	err := locker.Unlock(context.Background())
	assert.EqualError(t, err, "unlock failed, either lock expired or you're not the lock holder for key faucet:funding:0xabc")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_ExtendLock_Success(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "faucet:funding:0xabc", "owner-1")

	// Simulate successful lock extension
	script := "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('pexpire', KEYS[1], ARGV[2]) else return 0 end"
	mock.ExpectEval(script, []string{"faucet:funding:0xabc"}, "owner-1", "5000").SetVal(int64(1))

	err := locker.ExtendLock(context.Background(), 5*time.Second)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_ExtendLock_Failure(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "faucet:funding:0xabc", "owner-1")

	// Simulate failed lock extension (either lock expired or not the holder)
	script := "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('pexpire', KEYS[1], ARGV[2]) else return 0 end"
	mock.ExpectEval(script, []string{"faucet:funding:0xabc"}, "owner-1", "5000").SetVal(int64(0))

	err := locker.ExtendLock(context.Background(), 5*time.Second)
	assert.EqualError(t, err, "lock extension failed for key faucet:funding:0xabc, either lock expired or you're not the holder")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFundingLockKey(t *testing.T) {
	assert.Equal(t, "faucet:funding:0xabc", FundingLockKey("0xABC"))
}

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestHold_ExcludesSecondOwner(t *testing.T) {
	mr, client := newMiniredisClient(t)
	ctx := context.Background()
	key := FundingLockKey("0xabc")

	lease, err := NewLocker(client, key, "owner-1").Hold(ctx, 3*time.Second)
	require.NoError(t, err)

	_, err = NewLocker(client, key, "owner-2").Hold(ctx, 3*time.Second)
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, lease.Release(ctx))
	assert.False(t, mr.Exists(key))

	other, err := NewLocker(client, key, "owner-2").Hold(ctx, 3*time.Second)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))
}

func TestHold_ExtendsWhileHeld(t *testing.T) {
	mr, client := newMiniredisClient(t)
	key := FundingLockKey("0xabc")

	lease, err := NewLocker(client, key, "owner-1").Hold(context.Background(), 300*time.Millisecond)
	require.NoError(t, err)
	defer lease.Release(context.Background())

	time.Sleep(250 * time.Millisecond)
	assert.True(t, mr.Exists(key))
	assert.Greater(t, mr.TTL(key), 200*time.Millisecond)

	select {
	case <-lease.Lost():
		t.Fatal("lease lost while the key was present")
	default:
	}
}

func TestHold_ReportsLostLease(t *testing.T) {
	mr, client := newMiniredisClient(t)
	key := FundingLockKey("0xabc")

	lease, err := NewLocker(client, key, "owner-1").Hold(context.Background(), 300*time.Millisecond)
	require.NoError(t, err)

	mr.Del(key)

	select {
	case <-lease.Lost():
	case <-time.After(2 * time.Second):
		t.Fatal("lease was not reported lost")
	}
	assert.NoError(t, lease.Release(context.Background()))
}
