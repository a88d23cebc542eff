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

package apierror_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/blnkfinance/faucet/internal/apierror"
	"github.com/stretchr/testify/assert"
)

func TestNewAPIError(t *testing.T) {
	details := "Some internal error details"
	apiErr := apierror.NewAPIError(apierror.ErrAirdrop, "Something went wrong", details)

	assert.Equal(t, apierror.ErrAirdrop, apiErr.Code)
	assert.Equal(t, "Something went wrong", apiErr.Message)
	assert.Equal(t, details, apiErr.Details)
	assert.Equal(t, "AIRDROP_ERROR: Something went wrong", apiErr.Error())
}

func TestCodeOf(t *testing.T) {
	dup := apierror.NewAPIError(apierror.ErrDuplicatedAirdrop, "already dropped", nil)
	wrapped := fmt.Errorf("dispatch: %w", dup)

	assert.Equal(t, apierror.ErrDuplicatedAirdrop, apierror.CodeOf(dup))
	assert.Equal(t, apierror.ErrDuplicatedAirdrop, apierror.CodeOf(wrapped))
	assert.Equal(t, apierror.ErrAirdrop, apierror.CodeOf(errors.New("boom")))
	assert.True(t, apierror.Is(wrapped, apierror.ErrDuplicatedAirdrop))
	assert.False(t, apierror.Is(wrapped, apierror.ErrNotFound))
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name:     "Invalid account",
			err:      apierror.NewAPIError(apierror.ErrInvalidAccount, "bad address", nil),
			expected: http.StatusBadRequest,
		},
		{
			name:     "Duplicated airdrop",
			err:      apierror.NewAPIError(apierror.ErrDuplicatedAirdrop, "already dropped", nil),
			expected: http.StatusConflict,
		},
		{
			name:     "Wrong auth token",
			err:      apierror.NewAPIError(apierror.ErrWrongAuthToken, "wrong token", nil),
			expected: http.StatusUnauthorized,
		},
		{
			name:     "Not enough funds",
			err:      apierror.NewAPIError(apierror.ErrNotEnoughFunds, "refill", nil),
			expected: http.StatusServiceUnavailable,
		},
		{
			name:     "Transaction failed",
			err:      apierror.NewAPIError(apierror.ErrTransactionFailed, "rejected", nil),
			expected: http.StatusBadGateway,
		},
		{
			name:     "Airdrop error",
			err:      apierror.NewAPIError(apierror.ErrAirdrop, "db down", nil),
			expected: http.StatusInternalServerError,
		},
		{
			name:     "Non-API Error",
			err:      errors.New("some other error"),
			expected: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, apierror.MapErrorToHTTPStatus(tt.err))
		})
	}
}
