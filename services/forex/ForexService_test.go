package forex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surfswift213us/coinblesk-server/settings"
	"github.com/surfswift213us/coinblesk-server/ulogger"
)

func forexSettings(ttl time.Duration) *settings.Settings {
	return &settings.Settings{Forex: settings.ForexSettings{CacheTTL: ttl}}
}

func TestUSDPerBitcoinCaches(t *testing.T) {
	calls := 0
	fetch := func(context.Context) (float64, error) {
		calls++
		return 50000, nil
	}

	svc := New(ulogger.TestLogger{}, forexSettings(time.Minute), fetch)
	ctx := context.Background()

	rate, err := svc.USDPerBitcoin(ctx)
	require.NoError(t, err)
	assert.Equal(t, float64(50000), rate)

	_, err = svc.USDPerBitcoin(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "second call served from cache")
}

func TestUSDPerBitcoinRetriesTransientFailures(t *testing.T) {
	calls := 0
	fetch := func(context.Context) (float64, error) {
		calls++
		if calls < 3 {
			return 0, context.DeadlineExceeded
		}

		return 50000, nil
	}

	tSettings := forexSettings(time.Minute)
	tSettings.Forex.FetchRetries = 3

	svc := New(ulogger.TestLogger{}, tSettings, fetch)
	svc.retryBackoff = time.Millisecond

	rate, err := svc.USDPerBitcoin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(50000), rate)
	assert.Equal(t, 3, calls)
}

func TestUSDPerBitcoinGivesUpAfterRetries(t *testing.T) {
	calls := 0
	fetch := func(context.Context) (float64, error) {
		calls++
		return 0, context.DeadlineExceeded
	}

	tSettings := forexSettings(time.Minute)
	tSettings.Forex.FetchRetries = 2

	svc := New(ulogger.TestLogger{}, tSettings, fetch)
	svc.retryBackoff = time.Millisecond

	_, err := svc.USDPerBitcoin(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestUSDPerBitcoinRejectsBadRate(t *testing.T) {
	svc := New(ulogger.TestLogger{}, forexSettings(time.Minute), StaticRate(0))

	_, err := svc.USDPerBitcoin(context.Background())
	require.Error(t, err)
}

func TestSatoshisForUSD(t *testing.T) {
	svc := New(ulogger.TestLogger{}, forexSettings(time.Minute), StaticRate(50000))

	// 100 USD at 50000 USD/BTC is 0.002 BTC.
	sats, err := svc.SatoshisForUSD(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(200000), sats)
}
