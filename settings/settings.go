package settings

import (
	"time"

	"github.com/bsv-blockchain/go-chaincfg"
)

func NewSettings() *Settings {
	params, err := chaincfg.GetChainParams(getString("network", "mainnet"))
	if err != nil {
		panic(err)
	}

	return &Settings{
		ClientName:      getString("clientName", "coinblesk"),
		Network:         getString("network", "mainnet"),
		ChainCfgParams:  params,
		AccountStoreURL: getURL("account_store", "sqlitememory:///accounts"),
		DataFolder:      getString("dataFolder", "data"),
		Channel: ChannelSettings{
			MinimumLockDuration: getDuration("channel_minimumLockDuration", 24*time.Hour),
			MinLockTimeSeconds:  getInt("channel_minLockTimeSeconds", 7200),
			MaxLockTimeDays:     getInt("channel_maxLockTimeDays", 365),
			FeePerByte:          uint64(getInt("channel_feePerByte", 1)),
			MaxChannelValueUSD:  int64(getInt("channel_maxChannelValueUSD", 100)),
			CloseConfirmations:  uint32(getInt("channel_closeConfirmations", 1)),
			CloseSweepInterval:  getDuration("channel_closeSweepInterval", 5*time.Minute),
			BroadcastTimeout:    getDuration("channel_broadcastTimeout", 10*time.Second),
			TxRetryAttempts:     getInt("channel_txRetryAttempts", 5),
			ListenerPoolSize:    getInt("channel_listenerPoolSize", 4),
			ListenerQueueSize:   getInt("channel_listenerQueueSize", 10000),
		},
		Pot: PotSettings{
			PrivateKeyWif:         getString("pot_privateKeyWif", ""),
			MinConfirmations:      uint32(getInt("pot_minConfirmations", 1)),
			SolvencyCheckEnabled:  getBool("pot_solvencyCheckEnabled", true),
			SolvencyCheckInterval: getDuration("pot_solvencyCheckInterval", time.Minute),
		},
		Forex: ForexSettings{
			CacheTTL:     getDuration("forex_cacheTTL", time.Minute),
			FetchRetries: getInt("forex_fetchRetries", 3),
		},
	}
}
