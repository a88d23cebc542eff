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

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5001"

	DEFAULT_FRESHNESS_WINDOW_SEC    = 30
	DEFAULT_SETTLEMENT_TIMEOUT_SEC  = 60
	DEFAULT_LATE_SETTLEMENT_SEC     = 300
	DEFAULT_RECONNECT_MAX_SEC       = 30
	DEFAULT_TOKEN_DECIMALS          = 12
	DEFAULT_GEO_CACHE_TTL_SEC       = 86400
	DEFAULT_FUNDING_LOCK_TTL_SEC    = 30
	DEFAULT_GEO_URL                 = "http://ip-api.com/json"
	DEFAULT_REFERENCE_COUNTRY       = "US"
	DEFAULT_AIRDROP_AMOUNT          = "10116"
	DEFAULT_DIPLOMA_PRICE           = "512"
	DEFAULT_WARRANTY_AMOUNT         = "256"
	DEFAULT_VALIDITY_DAYS           = 730
	ConfirmationFinalized           = "finalized"
	ConfirmationIncluded            = "included"
	DEFAULT_SETTLEMENT_CONFIRMATION = ConfirmationFinalized
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"FAUCET_SERVER_SSL"`
	AuthToken string `json:"auth_token" envconfig:"FAUCET_SERVER_AUTH_TOKEN"`
	Domain    string `json:"domain" envconfig:"FAUCET_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"FAUCET_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"FAUCET_SERVER_PORT"`

	// Addresses or CIDRs of proxies allowed to set X-Forwarded-For. Empty trusts none.
	TrustedProxies []string `json:"trusted_proxies" envconfig:"FAUCET_SERVER_TRUSTED_PROXIES"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"FAUCET_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"FAUCET_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"FAUCET_REDIS_SKIP_TLS_VERIFY"`
}

// SettlementConfig points the faucet at the ledger node it submits transfers to.
type SettlementConfig struct {
	Url                string `json:"url" envconfig:"FAUCET_SETTLEMENT_URL"`
	Confirmation       string `json:"confirmation" envconfig:"FAUCET_SETTLEMENT_CONFIRMATION"`
	TimeoutSec         int    `json:"timeout_sec" envconfig:"FAUCET_SETTLEMENT_TIMEOUT_SEC"`
	LateWindowSec      int    `json:"late_window_sec" envconfig:"FAUCET_SETTLEMENT_LATE_WINDOW_SEC"`
	ReconnectMaxSec    int    `json:"reconnect_max_sec" envconfig:"FAUCET_SETTLEMENT_RECONNECT_MAX_SEC"`
	FundingLockTTLSec  int    `json:"funding_lock_ttl_sec" envconfig:"FAUCET_SETTLEMENT_FUNDING_LOCK_TTL_SEC"`
	DisableFundingLock bool   `json:"disable_funding_lock" envconfig:"FAUCET_SETTLEMENT_DISABLE_FUNDING_LOCK"`
	ResyncOnRejection  *bool  `json:"resync_on_rejection" envconfig:"FAUCET_SETTLEMENT_RESYNC_ON_REJECTION"`
}

// AirdropConfig holds the funding seed and the price schedule. Amounts are in whole
// tokens for the reference country and scale with GDP per capita elsewhere.
type AirdropConfig struct {
	SecretSeed         string            `json:"secret_seed" envconfig:"FAUCET_AIRDROP_SECRET_SEED"`
	FreshnessWindowSec int               `json:"freshness_window_sec" envconfig:"FAUCET_AIRDROP_FRESHNESS_WINDOW_SEC"`
	TokenDecimals      int32             `json:"token_decimals" envconfig:"FAUCET_AIRDROP_TOKEN_DECIMALS"`
	ReferenceCountry   string            `json:"reference_country" envconfig:"FAUCET_AIRDROP_REFERENCE_COUNTRY"`
	ReferenceAmount    string            `json:"reference_amount" envconfig:"FAUCET_AIRDROP_REFERENCE_AMOUNT"`
	DiplomaPrice       string            `json:"diploma_price" envconfig:"FAUCET_AIRDROP_DIPLOMA_PRICE"`
	WarrantyAmount     string            `json:"warranty_amount" envconfig:"FAUCET_AIRDROP_WARRANTY_AMOUNT"`
	ValidityDays       int               `json:"validity_days" envconfig:"FAUCET_AIRDROP_VALIDITY_DAYS"`
	CountryAmounts     map[string]string `json:"country_amounts" envconfig:"FAUCET_AIRDROP_COUNTRY_AMOUNTS"`
}

type GeoConfig struct {
	Url         string `json:"url" envconfig:"FAUCET_GEO_URL"`
	CacheTTLSec int    `json:"cache_ttl_sec" envconfig:"FAUCET_GEO_CACHE_TTL_SEC"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"FAUCET_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"FAUCET_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"FAUCET_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"FAUCET_SLACK_WEBHOOK_URL"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type Configuration struct {
	ProjectName     string           `json:"project_name" envconfig:"FAUCET_PROJECT_NAME"`
	EnableTelemetry bool             `json:"enable_telemetry" envconfig:"FAUCET_ENABLE_TELEMETRY"`
	Server          ServerConfig     `json:"server"`
	DataSource      DataSourceConfig `json:"data_source"`
	Redis           RedisConfig      `json:"redis"`
	Settlement      SettlementConfig `json:"settlement"`
	Airdrop         AirdropConfig    `json:"airdrop"`
	Geo             GeoConfig        `json:"geo"`
	Notification    Notification     `json:"notification"`
	RateLimit       RateLimitConfig  `json:"rate_limit"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("faucet", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called faucet.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Faucet"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	if cnf.Settlement.Url == "" {
		log.Println("Error: Settlement URL is empty. It's a required field.")
		return errors.New("settlement URL is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Settlement.Url = strings.TrimSpace(cnf.Settlement.Url)
	cnf.Airdrop.SecretSeed = strings.TrimSpace(cnf.Airdrop.SecretSeed)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Server.AuthToken == "" {
		log.Println("Warning: Auth token is empty. Airdrop requests will be refused.")
	}

	if cnf.Airdrop.SecretSeed == "" {
		log.Println("Warning: Airdrop secret seed is empty. Airdrop requests will be refused.")
	}

	cnf.Settlement.Confirmation = strings.ToLower(strings.TrimSpace(cnf.Settlement.Confirmation))
	switch cnf.Settlement.Confirmation {
	case "":
		cnf.Settlement.Confirmation = DEFAULT_SETTLEMENT_CONFIRMATION
	case ConfirmationFinalized, ConfirmationIncluded:
	default:
		return fmt.Errorf("settlement confirmation must be %q or %q, got %q", ConfirmationFinalized, ConfirmationIncluded, cnf.Settlement.Confirmation)
	}

	if cnf.Settlement.TimeoutSec <= 0 {
		cnf.Settlement.TimeoutSec = DEFAULT_SETTLEMENT_TIMEOUT_SEC
	}
	if cnf.Settlement.LateWindowSec <= 0 {
		cnf.Settlement.LateWindowSec = DEFAULT_LATE_SETTLEMENT_SEC
	}
	if cnf.Settlement.ReconnectMaxSec <= 0 {
		cnf.Settlement.ReconnectMaxSec = DEFAULT_RECONNECT_MAX_SEC
	}
	if cnf.Settlement.FundingLockTTLSec <= 0 {
		cnf.Settlement.FundingLockTTLSec = DEFAULT_FUNDING_LOCK_TTL_SEC
	}
	if cnf.Settlement.ResyncOnRejection == nil {
		resync := true
		cnf.Settlement.ResyncOnRejection = &resync
	}

	if cnf.Airdrop.FreshnessWindowSec <= 0 {
		cnf.Airdrop.FreshnessWindowSec = DEFAULT_FRESHNESS_WINDOW_SEC
	}
	if cnf.Airdrop.TokenDecimals <= 0 {
		cnf.Airdrop.TokenDecimals = DEFAULT_TOKEN_DECIMALS
	}
	cnf.Airdrop.ReferenceCountry = strings.ToUpper(strings.TrimSpace(cnf.Airdrop.ReferenceCountry))
	if cnf.Airdrop.ReferenceCountry == "" {
		cnf.Airdrop.ReferenceCountry = DEFAULT_REFERENCE_COUNTRY
	}
	if cnf.Airdrop.ReferenceAmount == "" {
		cnf.Airdrop.ReferenceAmount = DEFAULT_AIRDROP_AMOUNT
		log.Printf("Warning: Reference airdrop amount not specified. Setting default value: %s", DEFAULT_AIRDROP_AMOUNT)
	}
	if cnf.Airdrop.DiplomaPrice == "" {
		cnf.Airdrop.DiplomaPrice = DEFAULT_DIPLOMA_PRICE
	}
	if cnf.Airdrop.WarrantyAmount == "" {
		cnf.Airdrop.WarrantyAmount = DEFAULT_WARRANTY_AMOUNT
	}
	if cnf.Airdrop.ValidityDays <= 0 {
		cnf.Airdrop.ValidityDays = DEFAULT_VALIDITY_DAYS
	}

	if cnf.Geo.Url == "" {
		cnf.Geo.Url = DEFAULT_GEO_URL
	}
	if cnf.Geo.CacheTTLSec <= 0 {
		cnf.Geo.CacheTTLSec = DEFAULT_GEO_CACHE_TTL_SEC
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

// FreshnessWindow is how long an unsettled reservation blocks its recipient.
func (cnf *Configuration) FreshnessWindow() time.Duration {
	return time.Duration(cnf.Airdrop.FreshnessWindowSec) * time.Second
}

func (cnf *Configuration) SettlementTimeout() time.Duration {
	return time.Duration(cnf.Settlement.TimeoutSec) * time.Second
}

func (cnf *Configuration) LateSettlementWindow() time.Duration {
	return time.Duration(cnf.Settlement.LateWindowSec) * time.Second
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
