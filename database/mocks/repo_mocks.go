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
package mocks

import (
	"context"
	"math/big"
	"time"

	"github.com/blnkfinance/faucet/model"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Airdrop methods

func (m *MockDataSource) ReserveAirdrop(ctx context.Context, airdrop *model.Airdrop) (bool, error) {
	args := m.Called(ctx, airdrop)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) GetAirdrop(ctx context.Context, recipientKey string) (*model.Airdrop, error) {
	args := m.Called(ctx, recipientKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Airdrop), args.Error(1)
}

func (m *MockDataSource) ReclaimStaleAirdrop(ctx context.Context, recipientKey string, staleBefore, now time.Time) (bool, error) {
	args := m.Called(ctx, recipientKey, staleBefore, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) RecordSubmission(ctx context.Context, recipientKey string, sequence uint64) error {
	args := m.Called(ctx, recipientKey, sequence)
	return args.Error(0)
}

func (m *MockDataSource) FinalizeAirdrop(ctx context.Context, recipientKey string, amount *big.Int, txHash, blockHash string, geo model.GeoInfo) error {
	args := m.Called(ctx, recipientKey, amount, txHash, blockHash, geo)
	return args.Error(0)
}

// Health methods

func (m *MockDataSource) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
