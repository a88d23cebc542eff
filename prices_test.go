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
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/faucet/config"
)

func testAirdropConfig() config.AirdropConfig {
	return config.AirdropConfig{
		FreshnessWindowSec: config.DEFAULT_FRESHNESS_WINDOW_SEC,
		TokenDecimals:      12,
		ReferenceCountry:   config.DEFAULT_REFERENCE_COUNTRY,
		ReferenceAmount:    config.DEFAULT_AIRDROP_AMOUNT,
		DiplomaPrice:       config.DEFAULT_DIPLOMA_PRICE,
		WarrantyAmount:     config.DEFAULT_WARRANTY_AMOUNT,
		ValidityDays:       config.DEFAULT_VALIDITY_DAYS,
	}
}

func newTestPriceTable(t *testing.T) *PriceTable {
	table, err := NewPriceTable(testAirdropConfig())
	require.NoError(t, err)
	return table
}

func TestPriceTable_ReferenceCountry(t *testing.T) {
	table := newTestPriceTable(t)

	assert.Equal(t, "10116", table.AirdropAmount("US").String())
	assert.Equal(t, "10116000000000000", table.ToUnits(table.AirdropAmount("US")).String())
	assert.Equal(t, "512000000000000", table.ToUnits(table.DiplomaPrice("US")).String())
	assert.Equal(t, "256", table.WarrantyAmount("US").String())
	assert.Equal(t, config.DEFAULT_VALIDITY_DAYS, table.Validity())

	// an airdrop buys about twenty diplomas everywhere
	count := table.AirdropAmount("US").Div(table.DiplomaPrice("US")).Round(0)
	assert.True(t, count.GreaterThan(decimal.NewFromInt(19)))
}

func TestPriceTable_ReimbursementIsTwentyPercentAboveDiploma(t *testing.T) {
	table := newTestPriceTable(t)

	ratio := table.ReimbursementAmount("US").Div(table.DiplomaPrice("US"))
	assert.InDelta(t, 1.2, ratio.InexactFloat64(), 0.01)
	assert.Equal(t, "614", table.ReimbursementAmount("US").String())
}

func TestPriceTable_ScalesWithGDP(t *testing.T) {
	table := newTestPriceTable(t)

	assert.Equal(t, "371", table.AirdropAmount("NG").String())
	assert.True(t, table.AirdropAmount("LU").GreaterThan(table.AirdropAmount("US")))
	assert.True(t, table.AirdropAmount("BI").LessThan(table.AirdropAmount("NG")))
	assert.Equal(t, table.AirdropAmount("ng"), table.AirdropAmount("NG"))
}

func TestPriceTable_UnknownCountriesPriceAsReference(t *testing.T) {
	table := newTestPriceTable(t)

	for _, code := range []string{"LO", "ZZ", ""} {
		assert.Equal(t, table.AirdropAmount("US"), table.AirdropAmount(code), code)
		assert.Equal(t, table.DiplomaPrice("US"), table.DiplomaPrice(code), code)
	}
}

func TestPriceTable_IsDeterministic(t *testing.T) {
	a := newTestPriceTable(t)
	b := newTestPriceTable(t)

	for code := range gdpPerCapita {
		assert.True(t, a.AirdropAmount(code).Equal(b.AirdropAmount(code)), code)
		assert.True(t, a.AirdropAmount(code).Equal(a.AirdropAmount(code)), code)
		assert.True(t, a.AirdropAmount(code).IsPositive(), code)
	}
}

func TestPriceTable_CountryOverrides(t *testing.T) {
	cfg := testAirdropConfig()
	cfg.CountryAmounts = map[string]string{"ng ": "500"}

	table, err := NewPriceTable(cfg)
	require.NoError(t, err)

	assert.Equal(t, "500", table.AirdropAmount("NG").String())
	assert.Equal(t, "10116", table.AirdropAmount("US").String())
	// overrides only move the airdrop, not the rest of the schedule
	assert.Equal(t, newTestPriceTable(t).DiplomaPrice("NG"), table.DiplomaPrice("NG"))
}

func TestPriceTable_InvalidConfig(t *testing.T) {
	cfg := testAirdropConfig()
	cfg.ReferenceCountry = "XX"
	_, err := NewPriceTable(cfg)
	assert.Error(t, err)

	cfg = testAirdropConfig()
	cfg.ReferenceAmount = "-5"
	_, err = NewPriceTable(cfg)
	assert.Error(t, err)

	cfg = testAirdropConfig()
	cfg.CountryAmounts = map[string]string{"NG": "lots"}
	_, err = NewPriceTable(cfg)
	assert.Error(t, err)
}

func TestPriceTable_Schedule(t *testing.T) {
	table := newTestPriceTable(t)

	schedule := table.Schedule("us")
	assert.Equal(t, "US", schedule.CountryCode)
	assert.Equal(t, "10116", schedule.Airdrop.String())
	assert.Equal(t, "512", schedule.Diploma.String())
	assert.Equal(t, "614", schedule.Reimbursement.String())
	assert.Equal(t, "256", schedule.Warranty.String())
	assert.Equal(t, 730, schedule.ValidityDays)

	assert.Equal(t, "US", table.Schedule("").CountryCode)
}

func TestPriceTable_ToUnitsTruncatesFractions(t *testing.T) {
	table := newTestPriceTable(t)

	units := table.ToUnits(decimal.RequireFromString("1.0000000000009"))
	assert.Equal(t, 0, units.Cmp(big.NewInt(1000000000000)))
}
