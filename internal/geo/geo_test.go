package geo

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jarcoal/httpmock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/faucet/internal/cache"
)

const geoURL = "http://ip-api.test/json"

func TestLookup_LocalAddressesSkipNetwork(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	locator := NewLocator(geoURL, nil, time.Minute)

	for _, ip := range []string{"127.0.0.1", "192.168.1.20", "10.0.0.4", "::1", "172.16.0.1", "0.0.0.0"} {
		info, err := locator.Lookup(context.Background(), ip)
		require.NoError(t, err, ip)
		assert.Equal(t, LocalCountryCode, info.CountryCode, ip)
	}
	assert.Equal(t, 0, httpmock.GetTotalCallCount())
}

func TestLookup_Success(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodGet, geoURL+"/8.8.8.8",
		httpmock.NewStringResponder(200, `{"status":"success","country":"United States","countryCode":"US","regionName":"California","city":"Mountain View","lat":37.4,"lon":-122.1}`))

	locator := NewLocator(geoURL+"/", nil, time.Minute)
	info, err := locator.Lookup(context.Background(), "8.8.8.8, 10.0.0.1")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "US", info.CountryCode)
	assert.Equal(t, "California", info.Region)
	assert.Equal(t, 37.4, info.Latitude)
}

func TestLookup_FailedStatusIsUnknown(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodGet, geoURL+"/203.0.113.9",
		httpmock.NewStringResponder(200, `{"status":"fail","message":"reserved range"}`))

	locator := NewLocator(geoURL, nil, time.Minute)
	info, err := locator.Lookup(context.Background(), "203.0.113.9")
	assert.NoError(t, err)
	assert.Nil(t, info)
}

func TestLookup_HTTPError(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodGet, geoURL+"/203.0.113.9",
		httpmock.NewStringResponder(429, `too many requests`))

	locator := NewLocator(geoURL, nil, time.Minute)
	info, err := locator.Lookup(context.Background(), "203.0.113.9")
	assert.Error(t, err)
	assert.Nil(t, info)
}

func TestLookup_UnparsableAddress(t *testing.T) {
	locator := NewLocator(geoURL, nil, time.Minute)
	info, err := locator.Lookup(context.Background(), "unknown")
	assert.NoError(t, err)
	assert.Nil(t, info)
}

func TestLookup_UsesCache(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodGet, geoURL+"/1.1.1.1",
		httpmock.NewStringResponder(200, `{"status":"success","country":"Australia","countryCode":"AU","city":"Sydney"}`))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	locator := NewLocator(geoURL, cache.NewCache(client), time.Hour)

	for i := 0; i < 3; i++ {
		info, err := locator.Lookup(context.Background(), "1.1.1.1")
		require.NoError(t, err)
		assert.Equal(t, "AU", info.CountryCode)
	}
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
	assert.True(t, mr.Exists("geo:1.1.1.1"))
}
