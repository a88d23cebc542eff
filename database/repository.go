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

package database

import (
	"context"
	"math/big"
	"time"

	"github.com/blnkfinance/faucet/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	airdrop // Interface for the attempt ledger
	health  // Interface for readiness checks
}

// airdrop defines the attempt-ledger operations. Uniqueness per recipient key is enforced
// by the store, never by an in-process lock.
type airdrop interface {
	ReserveAirdrop(ctx context.Context, airdrop *model.Airdrop) (bool, error)                                                          // Inserts a zero-amount row unless one exists
	GetAirdrop(ctx context.Context, recipientKey string) (*model.Airdrop, error)                                                       // Retrieves the row for a recipient key
	ReclaimStaleAirdrop(ctx context.Context, recipientKey string, staleBefore, now time.Time) (bool, error)                            // Claims a stale reservation for one retry
	RecordSubmission(ctx context.Context, recipientKey string, sequence uint64) error                                                  // Stores the sequence used by the in-flight submission
	FinalizeAirdrop(ctx context.Context, recipientKey string, amount *big.Int, txHash, blockHash string, geo model.GeoInfo) error // Moves a reserved row to settled
}

type health interface {
	Ping(ctx context.Context) error
}
