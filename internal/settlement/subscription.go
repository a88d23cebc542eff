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

package settlement

import "sync"

const subscriptionBuffer = 16

// Subscription streams the status events of one submitted transfer.
// At most one terminal event is ever delivered; anything pushed after it is discarded.
type Subscription struct {
	txHash      string
	events      chan StatusEvent
	done        chan struct{}
	mu          sync.Mutex
	finished    bool
	closeOnce   sync.Once
	unsubscribe func()
}

// NewSubscription creates a subscription. unsubscribe, if set, runs once on Close.
func NewSubscription(unsubscribe func()) *Subscription {
	return &Subscription{
		events:      make(chan StatusEvent, subscriptionBuffer),
		done:        make(chan struct{}),
		unsubscribe: unsubscribe,
	}
}

// TxHash is the reference of the watched transfer, if known.
func (s *Subscription) TxHash() string {
	return s.txHash
}

// Events returns the channel the updates arrive on. It is never closed; stop reading
// after a terminal event or after Close.
func (s *Subscription) Events() <-chan StatusEvent {
	return s.events
}

// Done is closed once the subscription is closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Push delivers an event. It returns false when the event was discarded because the
// subscription is closed or already saw its terminal event.
func (s *Subscription) Push(ev StatusEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.events <- ev:
	case <-s.done:
		return false
	}
	if ev.Kind.IsTerminal() {
		s.finished = true
	}
	return true
}

// Close stops delivery and releases the watch on the node. It is safe to call repeatedly.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		fn := s.unsubscribe
		s.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
}

func (s *Subscription) setUnsubscribe(fn func()) {
	s.mu.Lock()
	s.unsubscribe = fn
	s.mu.Unlock()
}
