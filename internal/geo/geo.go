package geo

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/blnkfinance/faucet/internal/cache"
	"github.com/blnkfinance/faucet/internal/request"
	"github.com/blnkfinance/faucet/model"
)

// LocalCountryCode marks requests from private or loopback addresses.
const LocalCountryCode = "LO"

var tracer = otel.Tracer("faucet.geo")

// Local is the placeholder returned for addresses that cannot be located publicly.
func Local() *model.GeoInfo {
	return &model.GeoInfo{CountryCode: LocalCountryCode, Country: "Local", City: "Local"}
}

type ipAPIResponse struct {
	Status      string  `json:"status"`
	Message     string  `json:"message"`
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	RegionName  string  `json:"regionName"`
	City        string  `json:"city"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
}

// Locator resolves client addresses to a coarse location through an ip-api style
// HTTP service, remembering answers in the cache when one is configured.
type Locator struct {
	baseURL string
	cache   cache.Cache
	ttl     time.Duration
}

func NewLocator(baseURL string, c cache.Cache, ttl time.Duration) *Locator {
	return &Locator{baseURL: strings.TrimRight(baseURL, "/"), cache: c, ttl: ttl}
}

// Lookup locates rawIP. A nil result without error means the location is unknown.
func (l *Locator) Lookup(ctx context.Context, rawIP string) (*model.GeoInfo, error) {
	ctx, span := tracer.Start(ctx, "Geo lookup")
	defer span.End()

	ip := model.CleanIP(rawIP)
	if ip == "" {
		return nil, nil
	}
	if isLocal(net.ParseIP(ip)) {
		return Local(), nil
	}

	key := "geo:" + ip
	if l.cache != nil {
		var cached model.GeoInfo
		found, err := l.cache.Get(ctx, key, &cached)
		if err != nil {
			logrus.WithError(err).WithField("ip", ip).Warn("geo cache read failed")
		} else if found {
			return &cached, nil
		}
	}

	var response ipAPIResponse
	if _, err := request.Get(ctx, fmt.Sprintf("%s/%s", l.baseURL, ip), &response); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("geo lookup for %s failed: %w", ip, err)
	}
	if response.Status != "success" {
		logrus.WithFields(logrus.Fields{"ip": ip, "message": response.Message}).Debug("geo lookup returned no location")
		return nil, nil
	}

	info := &model.GeoInfo{
		CountryCode: strings.ToUpper(response.CountryCode),
		Country:     response.Country,
		Region:      response.RegionName,
		City:        response.City,
		Latitude:    response.Lat,
		Longitude:   response.Lon,
	}

	if l.cache != nil {
		if err := l.cache.Set(ctx, key, info, l.ttl); err != nil {
			logrus.WithError(err).WithField("ip", ip).Warn("geo cache write failed")
		}
	}
	return info, nil
}

func isLocal(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}
