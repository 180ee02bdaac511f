// Package forex supplies the USD/BTC exchange rate used to enforce the
// channel value ceiling. Rates are cached so a burst of channel updates does
// not hammer the upstream ticker.
package forex

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/surfswift213us/coinblesk-server/errors"
	"github.com/surfswift213us/coinblesk-server/settings"
	"github.com/surfswift213us/coinblesk-server/ulogger"
	"github.com/surfswift213us/coinblesk-server/util/retry"
)

const rateCacheKey = "USD_BTC"

// RateSource is what the validator consumes.
type RateSource interface {
	// USDPerBitcoin returns the current exchange rate.
	USDPerBitcoin(ctx context.Context) (float64, error)
}

// FetchFunc retrieves a fresh rate from an upstream source.
type FetchFunc func(ctx context.Context) (float64, error)

type Service struct {
	logger  ulogger.Logger
	fetch   FetchFunc
	cache   *ttlcache.Cache[string, float64]
	retries int

	// retryBackoff is the linear backoff unit between fetch attempts,
	// shortened in tests.
	retryBackoff time.Duration
}

func New(logger ulogger.Logger, tSettings *settings.Settings, fetch FetchFunc) *Service {
	cache := ttlcache.New[string, float64](
		ttlcache.WithTTL[string, float64](tSettings.Forex.CacheTTL),
		ttlcache.WithDisableTouchOnHit[string, float64](),
	)

	retries := tSettings.Forex.FetchRetries
	if retries < 1 {
		retries = 1
	}

	return &Service{
		logger:       logger,
		fetch:        fetch,
		cache:        cache,
		retries:      retries,
		retryBackoff: time.Second,
	}
}

func (s *Service) USDPerBitcoin(ctx context.Context) (float64, error) {
	if item := s.cache.Get(rateCacheKey); item != nil {
		return item.Value(), nil
	}

	rate, err := retry.Retry(ctx, s.logger, func() (float64, error) {
		return s.fetch(ctx)
	}, s.retries, s.retryBackoff, "fetching exchange rate")
	if err != nil {
		return 0, errors.NewProcessingError("failed to fetch exchange rate", err)
	}

	if rate <= 0 {
		return 0, errors.NewProcessingError("upstream returned non-positive rate %f", rate)
	}

	s.cache.Set(rateCacheKey, rate, ttlcache.DefaultTTL)
	s.logger.Debugf("refreshed USD/BTC rate: %f", rate)

	return rate, nil
}

// SatoshisForUSD converts a USD amount to satoshis at the current rate,
// rounding down.
func (s *Service) SatoshisForUSD(ctx context.Context, usd int64) (int64, error) {
	rate, err := s.USDPerBitcoin(ctx)
	if err != nil {
		return 0, err
	}

	return int64(float64(usd) / rate * 1e8), nil
}

// BitstampFetcher queries the Bitstamp ticker for the BTC/USD last price.
func BitstampFetcher(client *http.Client) FetchFunc {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return func(ctx context.Context) (float64, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://www.bitstamp.net/api/v2/ticker/btcusd/", nil)
		if err != nil {
			return 0, err
		}

		resp, err := client.Do(req)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return 0, errors.NewProcessingError("ticker returned status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return 0, err
		}

		var ticker struct {
			Last string `json:"last"`
		}

		if err = json.Unmarshal(body, &ticker); err != nil {
			return 0, err
		}

		return strconv.ParseFloat(ticker.Last, 64)
	}
}

// StaticRate returns a FetchFunc pinned to one rate, for tests and offline
// use.
func StaticRate(rate float64) FetchFunc {
	return func(context.Context) (float64, error) {
		return rate, nil
	}
}
