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

import (
	"context"
	"errors"
	"fmt"
	"math/big"
)

// EventKind is a status transition reported by the ledger for a submitted transfer.
type EventKind string

const (
	EventReady           EventKind = "ready"
	EventIncluded        EventKind = "included"
	EventFinalized       EventKind = "finalized"
	EventExtrinsicFailed EventKind = "extrinsic_failed"
	EventDropped         EventKind = "dropped"
	EventInvalid         EventKind = "invalid"
	// EventUnknown ends a watch whose outcome cannot be observed, such as a finality
	// timeout or a lost connection. The transfer may still have been included.
	EventUnknown EventKind = "unknown"
)

// IsTerminal reports whether no further events follow this one.
func (k EventKind) IsTerminal() bool {
	switch k {
	case EventFinalized, EventExtrinsicFailed, EventDropped, EventInvalid, EventUnknown:
		return true
	}
	return false
}

// RejectedBeforeInclusion reports whether the ledger turned the transfer away without
// placing it in a block, so its sequence number was not consumed.
func (k EventKind) RejectedBeforeInclusion() bool {
	return k == EventDropped || k == EventInvalid
}

// StatusEvent is one update delivered on a Subscription.
type StatusEvent struct {
	Kind      EventKind `json:"kind"`
	TxHash    string    `json:"tx_hash,omitempty"`
	BlockHash string    `json:"block_hash,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// Transfer is an unsigned single-recipient transfer from the funding account.
type Transfer struct {
	From     string
	To       string
	Amount   *big.Int
	Sequence uint64
}

// SignedTransfer is a Transfer ready to be submitted. Extrinsic is the hex encoded
// payload the node accepts and Hash is the reference the ledger reports it under.
type SignedTransfer struct {
	Transfer
	Signature string
	Extrinsic string
	Hash      string
}

// Client is the contract the dispatch core needs from the ledger.
type Client interface {
	NextSequence(ctx context.Context, account string) (uint64, error)
	Submit(ctx context.Context, transfer *SignedTransfer) (*Subscription, error)
	Ready() bool
}

var (
	ErrNotConnected = errors.New("settlement client is not connected")
	ErrClosed       = errors.New("settlement client is closed")
)

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}
