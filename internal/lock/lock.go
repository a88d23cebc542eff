package redlock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	unlockScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"
	extendScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('pexpire', KEYS[1], ARGV[2]) else return 0 end"
)

// ErrLockHeld is returned when another owner holds the lock.
var ErrLockHeld = errors.New("lock is held by another owner")

// FundingLockKey is the lock a faucet process holds for the funding account it signs for.
// Sequence numbers are allocated in-process, so only one process may serve an account.
func FundingLockKey(account string) string {
	return "faucet:funding:" + strings.ToLower(account)
}

type Locker struct {
	client redis.UniversalClient
	key    string
	value  string // Used for ensuring that only the lock holder can unlock or renew the lock
}

func NewLocker(client redis.UniversalClient, key, value string) *Locker {
	return &Locker{
		client: client,
		key:    key,
		value:  value,
	}
}

func (l *Locker) Lock(ctx context.Context, timeout time.Duration) error {
	success, err := l.client.SetNX(ctx, l.key, l.value, timeout).Result()
	if err != nil {
		return err
	}
	if !success {
		return fmt.Errorf("%w: %s", ErrLockHeld, l.key)
	}
	return nil
}

func (l *Locker) Unlock(ctx context.Context) error {
	result, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return fmt.Errorf("unlock failed, either lock expired or you're not the lock holder for key %s", l.key)
	}
	return nil
}

func (l *Locker) ExtendLock(ctx context.Context, extension time.Duration) error {
	result, err := l.client.Eval(ctx, extendScript, []string{l.key}, l.value, fmt.Sprintf("%d", extension.Milliseconds())).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return fmt.Errorf("lock extension failed for key %s, either lock expired or you're not the holder", l.key)
	}
	return nil
}

// Lease is a lock kept alive in the background until it is released or lost.
type Lease struct {
	locker *Locker
	stop   chan struct{}
	lost   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// Hold takes the lock and extends it every third of ttl. If an extension fails the
// lease is reported lost through Lost and the owner must stop using what it guards.
func (l *Locker) Hold(ctx context.Context, ttl time.Duration) (*Lease, error) {
	if err := l.Lock(ctx, ttl); err != nil {
		return nil, err
	}

	lease := &Lease{
		locker: l,
		stop:   make(chan struct{}),
		lost:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go lease.keepAlive(ttl)
	return lease, nil
}

func (s *Lease) keepAlive(ttl time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), ttl/3)
			err := s.locker.ExtendLock(ctx, ttl)
			cancel()
			if err != nil {
				logrus.WithError(err).WithField("key", s.locker.key).Error("lost lock")
				close(s.lost)
				return
			}
		}
	}
}

// Lost is closed when the lease could not be extended.
func (s *Lease) Lost() <-chan struct{} {
	return s.lost
}

// Release stops extending the lease and deletes the lock if it is still ours.
func (s *Lease) Release(ctx context.Context) error {
	s.once.Do(func() { close(s.stop) })
	<-s.done

	select {
	case <-s.lost:
		return nil
	default:
	}
	return s.locker.Unlock(ctx)
}
