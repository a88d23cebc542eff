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
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/blnkfinance/faucet/model"
)

// AirdropQuery is the query string of GET /airdrop.
type AirdropQuery struct {
	To   string `form:"to"`
	Auth string `form:"auth"`
}

func (q *AirdropQuery) ValidateAirdropQuery() error {
	return validation.ValidateStruct(q,
		validation.Field(&q.To, validation.Required, validation.By(func(value interface{}) error {
			to, _ := value.(string)
			if !model.IsValidAccount(to) {
				return errors.New("must be a 20-byte hex account")
			}
			return nil
		})),
	)
}

type AirdropResponse struct {
	Success bool   `json:"success"`
	Amount  string `json:"amount,omitempty"`
	TxHash  string `json:"tx_hash,omitempty"`
	Error   string `json:"error,omitempty"`
}

// PricesResponse lists the caller's price schedule. Amounts are in the smallest unit.
type PricesResponse struct {
	Success       bool   `json:"success"`
	CountryCode   string `json:"country_code"`
	Airdrop       string `json:"airdrop"`
	Diploma       string `json:"diploma"`
	Reimbursement string `json:"reimbursement"`
	Warranty      string `json:"warranty"`
	Validity      string `json:"validity"`
	Decimals      int32  `json:"decimals"`
}

type HealthResponse struct {
	Success        bool   `json:"success"`
	Settlement     bool   `json:"settlement"`
	FundingAccount string `json:"funding_account,omitempty"`
	Error          string `json:"error,omitempty"`
}
