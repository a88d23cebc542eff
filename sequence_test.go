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

package faucet

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSequenceSource struct {
	mu    sync.Mutex
	next  uint64
	err   error
	calls int
	delay time.Duration
}

func (s *stubSequenceSource) NextSequence(ctx context.Context, _ string) (uint64, error) {
	s.mu.Lock()
	s.calls++
	next, err, delay := s.next, s.err, s.delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return next, err
}

func (s *stubSequenceSource) set(next uint64, err error) {
	s.mu.Lock()
	s.next, s.err = next, err
	s.mu.Unlock()
}

func (s *stubSequenceSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestSequenceAllocator_ConcurrentAllocationsAreContiguous(t *testing.T) {
	source := &stubSequenceSource{next: 7, delay: 20 * time.Millisecond}
	allocator := NewSequenceAllocator(source, "0xfunding")
	defer allocator.Close()

	const callers = 100
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		got []uint64
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq, err := allocator.Allocate(context.Background())
			assert.NoError(t, err)
			mu.Lock()
			got = append(got, seq)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	require.Len(t, got, callers)
	for i, seq := range got {
		assert.Equal(t, uint64(7+i), seq)
	}
	// the authoritative value is fetched once, by the first caller
	assert.Equal(t, 1, source.callCount())
}

func TestSequenceAllocator_FetchFailureLeavesCounterUninitialized(t *testing.T) {
	source := &stubSequenceSource{err: errors.New("node unavailable")}
	allocator := NewSequenceAllocator(source, "0xfunding")
	defer allocator.Close()

	_, err := allocator.Allocate(context.Background())
	assert.ErrorContains(t, err, "node unavailable")

	source.set(42, nil)
	seq, err := allocator.Allocate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), seq)
	assert.Equal(t, 2, source.callCount())
}

func TestSequenceAllocator_CancelledCallerConsumesNothing(t *testing.T) {
	source := &stubSequenceSource{next: 3}
	allocator := NewSequenceAllocator(source, "0xfunding")
	defer allocator.Close()

	seq, err := allocator.Allocate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), seq)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = allocator.Allocate(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	seq, err = allocator.Allocate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(4), seq)
}

func TestSequenceAllocator_FetchUsesCallerContext(t *testing.T) {
	source := &stubSequenceSource{next: 9, delay: time.Second}
	allocator := NewSequenceAllocator(source, "0xfunding")
	defer allocator.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := allocator.Allocate(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	source.mu.Lock()
	source.delay = 0
	source.mu.Unlock()

	seq, err := allocator.Allocate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(9), seq)
}

func TestSequenceAllocator_Resync(t *testing.T) {
	source := &stubSequenceSource{next: 10}
	allocator := NewSequenceAllocator(source, "0xfunding")
	defer allocator.Close()

	for want := uint64(10); want < 13; want++ {
		seq, err := allocator.Allocate(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, seq)
	}

	// the ledger only consumed 10 and 11
	source.set(12, nil)
	require.NoError(t, allocator.Resync(context.Background()))

	seq, err := allocator.Allocate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(12), seq)
	assert.Equal(t, 2, source.callCount())
}

func TestSequenceAllocator_Close(t *testing.T) {
	source := &stubSequenceSource{next: 1}
	allocator := NewSequenceAllocator(source, "0xfunding")

	_, err := allocator.Allocate(context.Background())
	require.NoError(t, err)

	allocator.Close()
	allocator.Close()

	_, err = allocator.Allocate(context.Background())
	assert.ErrorIs(t, err, ErrAllocatorClosed)
	assert.ErrorIs(t, allocator.Resync(context.Background()), ErrAllocatorClosed)
}
