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
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrAllocatorClosed is returned to callers once the allocator has been closed.
var ErrAllocatorClosed = errors.New("sequence allocator closed")

// SequenceSource returns the authoritative next sequence of an account.
type SequenceSource interface {
	NextSequence(ctx context.Context, account string) (uint64, error)
}

type allocationResult struct {
	sequence uint64
	err      error
}

type allocation struct {
	ctx    context.Context
	resync bool
	reply  chan allocationResult
}

// SequenceAllocator hands out sequence numbers for one funding account. Requests are
// served one at a time by a single goroutine in arrival order, so no two callers ever
// receive the same number between resyncs and no number is skipped.
type SequenceAllocator struct {
	source  SequenceSource
	account string

	requests chan allocation
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once

	// owned by the consumer goroutine
	initialized bool
	next        uint64
}

func NewSequenceAllocator(source SequenceSource, account string) *SequenceAllocator {
	a := &SequenceAllocator{
		source:   source,
		account:  account,
		requests: make(chan allocation),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go a.run()
	return a
}

// Allocate returns the next sequence number. The first call, and the first call after a
// Resync, asks the settlement node for the authoritative value using ctx.
func (a *SequenceAllocator) Allocate(ctx context.Context) (uint64, error) {
	result, err := a.enqueue(ctx, false)
	if err != nil {
		return 0, err
	}
	return result.sequence, result.err
}

// Resync makes the next allocation fetch the authoritative value again. It is ordered
// with allocations, so numbers handed out before it are unaffected.
//
// Numbers already handed out but not yet consumed by the ledger can be issued again
// after a resync. The later submission then fails with a stale sequence and resyncs in
// turn; a transfer is never sent twice with the same number.
func (a *SequenceAllocator) Resync(ctx context.Context) error {
	result, err := a.enqueue(ctx, true)
	if err != nil {
		return err
	}
	return result.err
}

func (a *SequenceAllocator) enqueue(ctx context.Context, resync bool) (allocationResult, error) {
	req := allocation{ctx: ctx, resync: resync, reply: make(chan allocationResult, 1)}

	select {
	case a.requests <- req:
	case <-a.stop:
		return allocationResult{}, ErrAllocatorClosed
	case <-ctx.Done():
		return allocationResult{}, ctx.Err()
	}

	// The consumer always answers an admitted request.
	return <-req.reply, nil
}

func (a *SequenceAllocator) run() {
	defer close(a.done)
	for {
		select {
		case <-a.stop:
			return
		case req := <-a.requests:
			req.reply <- a.serve(req)
		}
	}
}

func (a *SequenceAllocator) serve(req allocation) allocationResult {
	if req.resync {
		a.initialized = false
		logrus.WithField("account", a.account).Info("sequence counter reset, next allocation refetches")
		return allocationResult{}
	}

	if err := req.ctx.Err(); err != nil {
		return allocationResult{err: err}
	}

	if !a.initialized {
		next, err := a.source.NextSequence(req.ctx, a.account)
		if err != nil {
			return allocationResult{err: fmt.Errorf("failed to fetch next sequence: %w", err)}
		}
		a.next = next
		a.initialized = true
		logrus.WithFields(logrus.Fields{"account": a.account, "sequence": next}).Info("sequence counter initialized")
	}

	seq := a.next
	a.next++
	return allocationResult{sequence: seq}
}

// Close stops the allocator. Pending and later callers get ErrAllocatorClosed.
func (a *SequenceAllocator) Close() {
	a.once.Do(func() { close(a.stop) })
	<-a.done
}
