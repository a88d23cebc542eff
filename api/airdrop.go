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

package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/blnkfinance/faucet"
	model2 "github.com/blnkfinance/faucet/api/model"
	"github.com/blnkfinance/faucet/internal/apierror"
)

// clientIP is the caller address. X-Forwarded-For is only honoured when the request
// comes through one of the configured trusted proxies.
func clientIP(c *gin.Context) string {
	return c.ClientIP()
}

func respondError(c *gin.Context, err error) {
	c.JSON(apierror.MapErrorToHTTPStatus(err), model2.AirdropResponse{
		Success: false,
		Error:   string(apierror.CodeOf(err)),
	})
}

// Airdrop handles GET /airdrop?to=<account>&auth=<token>.
func (a Api) Airdrop(c *gin.Context) {
	var query model2.AirdropQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondError(c, apierror.NewAPIError(apierror.ErrInvalidAccount, err.Error(), nil))
		return
	}
	if err := query.ValidateAirdropQuery(); err != nil {
		respondError(c, apierror.NewAPIError(apierror.ErrInvalidAccount, err.Error(), nil))
		return
	}

	result, err := a.faucet.Airdrop(c.Request.Context(), faucet.AirdropRequest{
		Recipient: query.To,
		IP:        clientIP(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model2.AirdropResponse{
		Success: true,
		Amount:  result.Amount.String(),
		TxHash:  result.TxHash,
	})
}

// Prices handles GET /prices for the caller's inferred country.
func (a Api) Prices(c *gin.Context) {
	prices := a.faucet.Prices()
	schedule := prices.Schedule(a.faucet.CountryOf(c.Request.Context(), clientIP(c)))

	c.JSON(http.StatusOK, model2.PricesResponse{
		Success:       true,
		CountryCode:   schedule.CountryCode,
		Airdrop:       prices.ToUnits(schedule.Airdrop).String(),
		Diploma:       prices.ToUnits(schedule.Diploma).String(),
		Reimbursement: prices.ToUnits(schedule.Reimbursement).String(),
		Warranty:      prices.ToUnits(schedule.Warranty).String(),
		Validity:      strconv.Itoa(schedule.ValidityDays),
		Decimals:      prices.Decimals(),
	})
}

func (a Api) Health(c *gin.Context) {
	resp := model2.HealthResponse{
		Success:        true,
		Settlement:     true,
		FundingAccount: a.faucet.FundingAccount(),
	}
	if err := a.faucet.Ready(c.Request.Context()); err != nil {
		resp.Success = false
		resp.Error = err.Error()
		resp.Settlement = a.faucet.SettlementReady()
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}
