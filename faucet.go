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
	"embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blnkfinance/faucet/config"
	"github.com/blnkfinance/faucet/database"
	"github.com/blnkfinance/faucet/internal/settlement"
	"github.com/blnkfinance/faucet/model"
)

//go:embed sql/*.sql
var SQLFiles embed.FS

// GeoLocator resolves a client address to a location. A nil result means unknown.
type GeoLocator interface {
	Lookup(ctx context.Context, ip string) (*model.GeoInfo, error)
}

// Notifier tells operators about conditions they have to act on.
type Notifier interface {
	NotifyFundsExhausted(account, reason string)
	NotifyError(err error)
}

type noopNotifier struct{}

func (noopNotifier) NotifyFundsExhausted(string, string) {}
func (noopNotifier) NotifyError(error)                   {}

// Faucet dispatches airdrops from a single funding account.
type Faucet struct {
	datasource database.IDataSource
	settlement settlement.Client
	signer     *settlement.Signer
	sequences  *SequenceAllocator
	prices     *PriceTable
	geo        GeoLocator
	notifier   Notifier

	freshness          time.Duration
	settlementTimeout  time.Duration
	lateWindow         time.Duration
	finalizeTimeout    time.Duration
	confirmOnInclusion bool
	resyncOnRejection  bool
	now                func() time.Time

	// recipient keys whose submission is still being watched by this process
	pending  sync.Map
	watchers sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

type Option func(*Faucet)

func WithGeoLocator(geo GeoLocator) Option {
	return func(f *Faucet) { f.geo = geo }
}

func WithNotifier(n Notifier) Option {
	return func(f *Faucet) { f.notifier = n }
}

// WithClock replaces the wall clock used for reservation timestamps.
func WithClock(now func() time.Time) Option {
	return func(f *Faucet) { f.now = now }
}

// NewFaucet builds a faucet from the loaded configuration. Without a secret seed the
// faucet still serves prices and health, but every airdrop is refused.
func NewFaucet(db database.IDataSource, client settlement.Client, opts ...Option) (*Faucet, error) {
	cnf, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	prices, err := NewPriceTable(cnf.Airdrop)
	if err != nil {
		return nil, err
	}

	f := &Faucet{
		datasource:         db,
		settlement:         client,
		prices:             prices,
		notifier:           noopNotifier{},
		freshness:          cnf.FreshnessWindow(),
		settlementTimeout:  cnf.SettlementTimeout(),
		lateWindow:         cnf.LateSettlementWindow(),
		finalizeTimeout:    defaultFinalizeTimeout,
		confirmOnInclusion: cnf.Settlement.Confirmation == config.ConfirmationIncluded,
		resyncOnRejection:  cnf.Settlement.ResyncOnRejection == nil || *cnf.Settlement.ResyncOnRejection,
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}

	if cnf.Airdrop.SecretSeed != "" {
		signer, err := settlement.NewSigner(cnf.Airdrop.SecretSeed)
		if err != nil {
			return nil, fmt.Errorf("invalid airdrop secret seed: %w", err)
		}
		f.signer = signer
		f.sequences = NewSequenceAllocator(client, signer.Address())
	}

	f.ctx, f.cancel = context.WithCancel(context.Background())
	return f, nil
}

// FundingAccount is the address airdrops are paid from, empty without a secret seed.
func (f *Faucet) FundingAccount() string {
	if f.signer == nil {
		return ""
	}
	return f.signer.Address()
}

func (f *Faucet) Prices() *PriceTable {
	return f.prices
}

func (f *Faucet) SettlementReady() bool {
	return f.settlement.Ready()
}

// Ready reports whether airdrops can currently be dispatched.
func (f *Faucet) Ready(ctx context.Context) error {
	if !f.settlement.Ready() {
		return settlement.ErrNotConnected
	}
	if err := f.datasource.Ping(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	if f.signer == nil {
		return errors.New("airdrop secret seed is not set")
	}
	return nil
}

// Close stops late settlement watchers and the sequence allocator.
func (f *Faucet) Close() {
	f.cancel()
	f.watchers.Wait()
	if f.sequences != nil {
		f.sequences.Close()
	}
}
