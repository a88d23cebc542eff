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

package model

import (
	"math/big"
	"time"
)

type AirdropStatus string

const (
	AirdropReserved      AirdropStatus = "reserved"
	AirdropSettled       AirdropStatus = "settled"
	AirdropStaleReserved AirdropStatus = "stale-reserved"
)

// GeoInfo is the audit metadata attached to an airdrop. It takes no part in any invariant.
type GeoInfo struct {
	CountryCode string  `json:"country_code"`
	Country     string  `json:"country"`
	Region      string  `json:"region"`
	City        string  `json:"city"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// Airdrop is the single attempt-ledger row for a recipient.
// An Amount of zero marks a reservation that has not settled yet.
type Airdrop struct {
	RecipientKey string     `json:"recipient_key"`
	Recipient    string     `json:"recipient"`
	Amount       *big.Int   `json:"amount"`
	TxHash       string     `json:"tx_hash,omitempty"`
	BlockHash    string     `json:"block_hash,omitempty"`
	Sequence     *uint64    `json:"sequence,omitempty"`
	Attempts     int        `json:"attempts"`
	IP           string     `json:"ip"`
	Geo          GeoInfo    `json:"geo"`
	CreatedAt    time.Time  `json:"created_at"`
	SettledAt    *time.Time `json:"settled_at,omitempty"`
}

// IsSettled reports whether a positive amount has been recorded for the row.
func (a Airdrop) IsSettled() bool {
	return a.Amount != nil && a.Amount.Sign() > 0
}

// Status derives the lifecycle state of the row at now.
func (a Airdrop) Status(now time.Time, freshness time.Duration) AirdropStatus {
	if a.IsSettled() {
		return AirdropSettled
	}
	if now.Sub(a.CreatedAt) >= freshness {
		return AirdropStaleReserved
	}
	return AirdropReserved
}
