package settings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSettingsDefaults(t *testing.T) {
	tSettings := NewSettings()
	require.NotNil(t, tSettings.ChainCfgParams)

	assert.Equal(t, 24*time.Hour, tSettings.Channel.MinimumLockDuration)
	assert.Equal(t, 5, tSettings.Channel.TxRetryAttempts)
	assert.Equal(t, 10*time.Second, tSettings.Channel.BroadcastTimeout)
	assert.Equal(t, uint32(1), tSettings.Channel.CloseConfirmations)
	assert.NotZero(t, tSettings.Channel.ListenerQueueSize)
	assert.NotNil(t, tSettings.AccountStoreURL)
}
