// Package pricefeed supplies spot prices and live ticks from the external
// oracle. Everything returned here is still validated by the core before it
// touches volatility state.
package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	domrepo "github.com/duke524-dev/synth-subnet/internal/domain/repository"
	"github.com/duke524-dev/synth-subnet/pkg/cache"
	xhttp "github.com/duke524-dev/synth-subnet/pkg/http"
	"github.com/duke524-dev/synth-subnet/pkg/logger"
)

// ErrPriceUnavailable is returned when neither the oracle nor the
// last-known-good cache can produce a usable price.
var ErrPriceUnavailable = errors.New("spot price unavailable")

// Pyth price feed identifiers per asset.
var pythFeedIDs = map[string]string{
	"BTC": "e62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43",
	"ETH": "ff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace",
	"XAU": "765d2ba906dbc32ca17cc11f5310a89e9ee1f6420508c63861f2f8ba4ee34bb2",
	"SOL": "ef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d",
}

// cachedMaxAge bounds how stale a last-known-good price may be before the
// fetch fails instead of serving it.
const cachedMaxAge = 180 * time.Second

// SpotClient fetches latest oracle prices over HTTP with a cache fallback.
// Implements repository.SpotSource.
type SpotClient struct {
	baseURL string
	http    *xhttp.Client
	cache   cache.Service
	log     *logger.Logger
}

// NewSpotClient creates the client. cache may be nil to disable the
// last-known-good fallback.
func NewSpotClient(baseURL string, timeout time.Duration, cacheSvc cache.Service, log *logger.Logger) *SpotClient {
	return &SpotClient{
		baseURL: baseURL,
		http:    xhttp.NewClient(xhttp.WithTimeout(timeout)),
		cache:   cacheSvc,
		log:     log,
	}
}

type cachedPrice struct {
	Price float64   `json:"price"`
	TS    time.Time `json:"ts"`
}

// Spot returns the latest price for an asset, falling back to the cached
// last-known-good value when the oracle fails and the cache entry is fresh
// enough.
func (c *SpotClient) Spot(ctx context.Context, asset string) (domrepo.PricePoint, error) {
	pt, err := c.fetch(ctx, asset)
	if err == nil {
		c.remember(ctx, asset, pt)
		return pt, nil
	}
	c.log.Warn("oracle fetch failed, trying last known good",
		logger.String("asset", asset), logger.Error(err))

	if cached, ok := c.lastKnownGood(ctx, asset); ok {
		return cached, nil
	}
	return domrepo.PricePoint{}, fmt.Errorf("%w: %s: %v", ErrPriceUnavailable, asset, err)
}

func (c *SpotClient) fetch(ctx context.Context, asset string) (domrepo.PricePoint, error) {
	feedID, ok := pythFeedIDs[asset]
	if !ok {
		return domrepo.PricePoint{}, fmt.Errorf("no oracle feed for asset %q", asset)
	}

	var body struct {
		Parsed []struct {
			Price struct {
				Price       string `json:"price"`
				Expo        int    `json:"expo"`
				PublishTime int64  `json:"publish_time"`
			} `json:"price"`
		} `json:"parsed"`
	}
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.baseURL,
		QueryParams: map[string][]string{"ids[]": {feedID}},
	}, &body)
	if err != nil {
		return domrepo.PricePoint{}, fmt.Errorf("oracle request: %w", err)
	}
	if len(body.Parsed) == 0 {
		return domrepo.PricePoint{}, fmt.Errorf("oracle returned no data for %s", asset)
	}

	raw := body.Parsed[0].Price
	mantissa, err := strconv.ParseInt(raw.Price, 10, 64)
	if err != nil {
		return domrepo.PricePoint{}, fmt.Errorf("parse oracle price %q: %w", raw.Price, err)
	}
	price := float64(mantissa) * math.Pow10(raw.Expo)
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return domrepo.PricePoint{}, fmt.Errorf("oracle price %v for %s", price, asset)
	}

	ts := time.Unix(raw.PublishTime, 0).UTC()
	if raw.PublishTime == 0 {
		ts = time.Now().UTC()
	}
	return domrepo.PricePoint{TS: ts, Price: price}, nil
}

func (c *SpotClient) remember(ctx context.Context, asset string, pt domrepo.PricePoint) {
	if c.cache == nil {
		return
	}
	entry := cachedPrice{Price: pt.Price, TS: pt.TS}
	if err := c.cache.Set(ctx, spotCacheKey(asset), entry, cachedMaxAge); err != nil {
		c.log.Debug("spot cache write failed", logger.String("asset", asset), logger.Error(err))
	}
}

func (c *SpotClient) lastKnownGood(ctx context.Context, asset string) (domrepo.PricePoint, bool) {
	if c.cache == nil {
		return domrepo.PricePoint{}, false
	}
	var entry cachedPrice
	if err := c.cache.Get(ctx, spotCacheKey(asset), &entry); err != nil {
		return domrepo.PricePoint{}, false
	}
	if age := time.Since(entry.TS); age > cachedMaxAge {
		c.log.Warn("cached spot price too stale",
			logger.String("asset", asset), logger.Duration("age", age))
		return domrepo.PricePoint{}, false
	}
	return domrepo.PricePoint{TS: entry.TS, Price: entry.Price}, true
}

func spotCacheKey(asset string) string {
	return "spot:last_good:" + asset
}
