package settings

import (
	"net/url"
	"time"

	"github.com/bsv-blockchain/go-chaincfg"
)

// ChannelSettings groups everything that governs validation and lifecycle of
// micropayment channels.
type ChannelSettings struct {
	// MinimumLockDuration is how long a time-locked input must remain locked
	// for the server to accept it in a channel transaction. The same window
	// triggers the forced-close sweep.
	MinimumLockDuration time.Duration

	// MinLockTimeSeconds / MaxLockTimeDays bound the lock time of newly
	// created time-locked addresses, relative to now.
	MinLockTimeSeconds int
	MaxLockTimeDays    int

	// FeePerByte is the minimum fee rate a channel transaction must pay.
	FeePerByte uint64

	// MaxChannelValueUSD caps the total value committed into the server pot
	// over a channel's life.
	MaxChannelValueUSD int64

	// CloseConfirmations is the confirmation depth at which a broadcast
	// channel transaction is considered settled and the account unlocked.
	CloseConfirmations uint32

	CloseSweepInterval time.Duration
	BroadcastTimeout   time.Duration

	// TxRetryAttempts bounds retries of serializable store transactions on
	// conflict.
	TxRetryAttempts int

	ListenerPoolSize  int
	ListenerQueueSize int
}

type PotSettings struct {
	// PrivateKeyWif is the WIF-encoded key controlling the server pot output.
	PrivateKeyWif string

	// MinConfirmations a pot UTXO needs before it counts towards the pot
	// value or may be spent in a payout.
	MinConfirmations uint32

	// SolvencyCheckEnabled turns the periodic pot-vs-ledger solvency check
	// on or off.
	SolvencyCheckEnabled bool

	SolvencyCheckInterval time.Duration
}

type ForexSettings struct {
	CacheTTL time.Duration

	// FetchRetries bounds attempts against the upstream ticker before a rate
	// refresh is reported as failed.
	FetchRetries int
}

type Settings struct {
	ClientName      string
	Network         string
	ChainCfgParams  *chaincfg.Params
	AccountStoreURL *url.URL

	// DataFolder holds file-backed sqlite databases.
	DataFolder string

	Channel ChannelSettings
	Pot     PotSettings
	Forex   ForexSettings
}
