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

package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/faucet/config"
)

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/airdrop", AirdropAuthMiddleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})
	return router
}

func TestAirdropAuthMiddleware(t *testing.T) {
	tests := []struct {
		name         string
		authToken    string
		query        string
		expectedCode int
		expectedErr  string
	}{
		{
			name:         "Token not configured",
			authToken:    "",
			query:        "?auth=anything",
			expectedCode: http.StatusServiceUnavailable,
			expectedErr:  "AUTH_TOKEN_NOT_SET",
		},
		{
			name:         "Missing token",
			authToken:    "s3cret",
			query:        "",
			expectedCode: http.StatusUnauthorized,
			expectedErr:  "WRONG_AUTH_TOKEN",
		},
		{
			name:         "Wrong token",
			authToken:    "s3cret",
			query:        "?auth=s3cre",
			expectedCode: http.StatusUnauthorized,
			expectedErr:  "WRONG_AUTH_TOKEN",
		},
		{
			name:         "Valid token",
			authToken:    "s3cret",
			query:        "?auth=s3cret",
			expectedCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config.MockConfig(&config.Configuration{Server: config.ServerConfig{AuthToken: tt.authToken}})
			router := newAuthRouter()

			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/airdrop"+tt.query, nil))

			assert.Equal(t, tt.expectedCode, resp.Code)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
			if tt.expectedErr != "" {
				assert.Equal(t, false, body["success"])
				assert.Equal(t, tt.expectedErr, body["error"])
			} else {
				assert.Equal(t, true, body["success"])
			}
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rps := 1.0
	burst := 1
	cleanup := 60
	conf := &config.Configuration{RateLimit: config.RateLimitConfig{RequestsPerSecond: &rps, Burst: &burst, CleanupIntervalSec: &cleanup}}

	router := gin.New()
	router.Use(RateLimitMiddleware(conf))
	router.GET("/prices", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/prices", nil)
		req.RemoteAddr = "203.0.113.7:4000"
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		codes = append(codes, resp.Code)
	}
	assert.Equal(t, http.StatusOK, codes[0])
	assert.Contains(t, codes[1:], http.StatusTooManyRequests)
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(&config.Configuration{}))
	router.GET("/prices", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 5; i++ {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/prices", nil))
		assert.Equal(t, http.StatusOK, resp.Code)
	}
}

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CORSMiddleware())
	router.GET("/prices", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/prices", nil)
	req.Header.Set("Origin", "https://app.example.org")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "*", resp.Header().Get("Access-Control-Allow-Origin"))
}
