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
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/blnkfinance/faucet/config"
)

// gdpPerCapita is the GDP per capita in USD by ISO 3166-1 alpha-2 code. Prices scale
// with it so that an airdrop buys roughly the same in every country.
var gdpPerCapita = map[string]int64{
	"LU": 106343, "IE": 91648, "CH": 89556, "KY": 81412, "NO": 78912, "US": 65875,
	"SG": 65422, "QA": 65111, "AU": 61584, "DK": 61296, "MO": 59602, "IS": 59096,
	"SE": 54450, "NL": 51306, "GB": 47323, "AT": 46339, "FI": 45589, "BE": 44731,
	"CA": 44469, "DE": 44337, "HK": 43573, "IL": 42853, "AE": 42508, "NZ": 41767,
	"AD": 40227, "FR": 39117, "JP": 36990, "KR": 34121, "IT": 34088, "MT": 33001,
	"CY": 32341, "BS": 31054, "PR": 30123, "BN": 28725, "ES": 28570, "SI": 25709,
	"BH": 25077, "KW": 24155, "SA": 23332, "GY": 23103, "PT": 22292, "KN": 21506,
	"GR": 21139, "CZ": 20246, "EE": 20123, "BB": 19734, "SK": 19239, "LT": 18686,
	"UY": 18296, "OM": 18099, "AG": 18091, "PL": 17391, "HR": 17147, "PA": 16873,
	"SC": 16715, "LV": 16704, "HU": 16283, "TT": 16062, "TR": 14714, "CR": 14319,
	"CL": 14227, "AR": 12933, "RO": 12399, "PW": 12380, "CN": 12175, "MV": 11486,
	"KZ": 11453, "LC": 11440, "MY": 11430, "MU": 11319, "RU": 10421, "MX": 10242,
	"BG": 9820, "GD": 9728, "VC": 9386, "BR": 9258, "DO": 8857, "ME": 8403,
	"DM": 8400, "RS": 8211, "TM": 7880, "LY": 7633, "CU": 7450, "BW": 7236,
	"SR": 7195, "CO": 6819, "PE": 6553, "GA": 6542, "BA": 6507, "BY": 6483,
	"PY": 6432, "TH": 6394, "MK": 6394, "EC": 6238, "BZ": 6212, "GE": 6181,
	"LB": 5909, "ZA": 5747, "FJ": 5737, "IR": 5668, "AZ": 5651, "MH": 5470,
	"AL": 5420, "JM": 5329, "AM": 5151, "GQ": 5118, "XK": 4889, "DZ": 4660,
	"SV": 4481, "GT": 4471, "MN": 4457, "CV": 4196, "ID": 4193, "EG": 4178,
	"IQ": 4176, "WS": 4003, "LK": 3969, "NA": 3965, "TN": 3959, "JO": 3950,
	"VN": 3760, "PH": 3746, "MD": 3729, "SZ": 3726, "UZ": 3726, "MA": 3403,
	"BT": 3336, "BO": 3226, "FM": 2986, "PS": 2863, "LA": 2649, "VU": 2628,
	"HN": 2527, "PG": 2497, "NG": 2416, "AO": 2333, "CI": 2303, "NI": 2257,
	"IN": 2236, "UA": 2160, "GH": 2087, "KH": 2084, "KI": 2003, "SB": 1945,
	"BD": 1885, "KE": 1808, "CG": 1677, "PK": 1664, "MR": 1630, "CM": 1467,
	"SN": 1463, "ZW": 1411, "TJ": 1407, "KM": 1383, "ST": 1381, "ZM": 1331,
	"BJ": 1300, "TL": 1278, "KG": 1264, "HT": 1219, "MM": 1178, "NP": 1136,
	"SL": 1102, "TZ": 1093, "GN": 1028, "RW": 1004, "LS": 974, "UG": 956,
	"TG": 922, "ET": 875, "YE": 859, "SD": 767, "ML": 763, "GW": 752,
	"BF": 739, "GM": 728, "LR": 653, "MZ": 610, "TD": 567, "MW": 557,
	"NE": 541, "CD": 537, "MG": 448, "CF": 398, "AF": 380, "BI": 254,
}

var reimbursementRate = decimal.RequireFromString("1.2")

// Schedule is the full price list for one country, in whole tokens.
type Schedule struct {
	CountryCode   string
	Airdrop       decimal.Decimal
	Diploma       decimal.Decimal
	Reimbursement decimal.Decimal
	Warranty      decimal.Decimal
	ValidityDays  int
}

// PriceTable derives geography-adjusted prices from the reference country's prices.
// All methods are pure functions of the country code.
type PriceTable struct {
	referenceCountry string
	referenceGDP     decimal.Decimal
	airdrop          decimal.Decimal
	diploma          decimal.Decimal
	warranty         decimal.Decimal
	validityDays     int
	decimals         int32
	overrides        map[string]decimal.Decimal
}

// NewPriceTable builds the table from the airdrop configuration.
func NewPriceTable(cfg config.AirdropConfig) (*PriceTable, error) {
	reference := strings.ToUpper(cfg.ReferenceCountry)
	gdp, ok := gdpPerCapita[reference]
	if !ok {
		return nil, fmt.Errorf("reference country %q has no GDP per capita entry", cfg.ReferenceCountry)
	}

	parse := func(name, value string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid %s %q: %w", name, value, err)
		}
		if !d.IsPositive() {
			return decimal.Zero, fmt.Errorf("%s must be positive, got %s", name, value)
		}
		return d, nil
	}

	airdrop, err := parse("reference airdrop amount", cfg.ReferenceAmount)
	if err != nil {
		return nil, err
	}
	diploma, err := parse("diploma price", cfg.DiplomaPrice)
	if err != nil {
		return nil, err
	}
	warranty, err := parse("warranty amount", cfg.WarrantyAmount)
	if err != nil {
		return nil, err
	}

	overrides := make(map[string]decimal.Decimal, len(cfg.CountryAmounts))
	for country, amount := range cfg.CountryAmounts {
		d, err := parse("airdrop amount for "+country, amount)
		if err != nil {
			return nil, err
		}
		overrides[strings.ToUpper(strings.TrimSpace(country))] = d
	}

	return &PriceTable{
		referenceCountry: reference,
		referenceGDP:     decimal.NewFromInt(gdp),
		airdrop:          airdrop,
		diploma:          diploma,
		warranty:         warranty,
		validityDays:     cfg.ValidityDays,
		decimals:         cfg.TokenDecimals,
		overrides:        overrides,
	}, nil
}

// ratio is gdp(country)/gdp(reference). Unknown countries, including the local
// placeholder, price as the reference country.
func (p *PriceTable) ratio(countryCode string) decimal.Decimal {
	gdp, ok := gdpPerCapita[strings.ToUpper(countryCode)]
	if !ok {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(gdp).Div(p.referenceGDP)
}

func (p *PriceTable) scale(base decimal.Decimal, countryCode string) decimal.Decimal {
	return base.Mul(p.ratio(countryCode)).Floor()
}

// AirdropAmount is the payout for a recipient in countryCode, in whole tokens.
func (p *PriceTable) AirdropAmount(countryCode string) decimal.Decimal {
	if amount, ok := p.overrides[strings.ToUpper(countryCode)]; ok {
		return amount
	}
	return p.scale(p.airdrop, countryCode)
}

func (p *PriceTable) DiplomaPrice(countryCode string) decimal.Decimal {
	return p.scale(p.diploma, countryCode)
}

// ReimbursementAmount is what a diploma holder is refunded, 1.2 times the diploma price.
func (p *PriceTable) ReimbursementAmount(countryCode string) decimal.Decimal {
	return p.DiplomaPrice(countryCode).Mul(reimbursementRate).Floor()
}

func (p *PriceTable) WarrantyAmount(countryCode string) decimal.Decimal {
	return p.scale(p.warranty, countryCode)
}

// Validity is how many days a diploma stays valid.
func (p *PriceTable) Validity() int {
	return p.validityDays
}

func (p *PriceTable) Decimals() int32 {
	return p.decimals
}

// ToUnits converts whole tokens to the smallest unit of the asset.
func (p *PriceTable) ToUnits(amount decimal.Decimal) *big.Int {
	return amount.Shift(p.decimals).Floor().BigInt()
}

func (p *PriceTable) Schedule(countryCode string) Schedule {
	code := strings.ToUpper(countryCode)
	if code == "" {
		code = p.referenceCountry
	}
	return Schedule{
		CountryCode:   code,
		Airdrop:       p.AirdropAmount(code),
		Diploma:       p.DiplomaPrice(code),
		Reimbursement: p.ReimbursementAmount(code),
		Warranty:      p.WarrantyAmount(code),
		ValidityDays:  p.validityDays,
	}
}
