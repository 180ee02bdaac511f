package model

import (
	"testing"

	bec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountStateDerivation(t *testing.T) {
	account := &Account{}
	assert.Equal(t, ChannelStateOpen, account.State())

	account.ChannelTransaction = []byte{0x01}
	assert.Equal(t, ChannelStatePending, account.State())

	account.Locked = true
	assert.Equal(t, ChannelStateClosing, account.State())

	// After a confirmed close the transaction is cleared and the lock
	// released, which reads as open again.
	account.Locked = false
	account.ChannelTransaction = nil
	assert.Equal(t, ChannelStateOpen, account.State())
}

func TestAccountServerKeyPair(t *testing.T) {
	privKey, err := bec.NewPrivateKey()
	require.NoError(t, err)

	account := &Account{
		ServerPrivateKey: privKey.Serialize(),
		ServerPublicKey:  privKey.PubKey().Compressed(),
	}

	gotPriv, gotPub := account.ServerKeyPair()
	assert.Equal(t, privKey.Serialize(), gotPriv.Serialize())
	assert.Equal(t, account.ServerPublicKey, gotPub.Compressed())
}

func TestAccountEquals(t *testing.T) {
	a := &Account{ClientPublicKey: []byte{0x01}, VirtualBalance: 10}
	b := &Account{ClientPublicKey: []byte{0x01}, VirtualBalance: 99}
	c := &Account{ClientPublicKey: []byte{0x02}}

	assert.True(t, a.Equals(b))
	assert.False(t, a.Equals(c))
	assert.False(t, a.Equals(nil))
}

func TestChannelStateString(t *testing.T) {
	assert.Equal(t, "OPEN", ChannelStateOpen.String())
	assert.Equal(t, "PENDING", ChannelStatePending.String())
	assert.Equal(t, "CLOSING", ChannelStateClosing.String())
	assert.Equal(t, "CLOSED", ChannelStateClosed.String())
	assert.Equal(t, "UNKNOWN", ChannelState(99).String())
}
