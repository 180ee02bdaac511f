// Package model holds the domain entities of the micropayment channel layer:
// accounts, time-locked addresses, signed payment requests and the states a
// channel moves through.
package model

import (
	"bytes"

	bec "github.com/bsv-blockchain/go-sdk/primitives/ec"

	"github.com/surfswift213us/coinblesk-server/util"
)

// PublicKeyHash returns HASH160 of a serialized public key, the payload of a
// standard pay-to-key-hash output.
func PublicKeyHash(publicKey []byte) []byte {
	return util.Hash160(publicKey)
}

// Account is the server-side record for one client, keyed by the client's
// public key. The server key pair is unique per account and forms the
// server's half of every 2-of-2 time-locked address the client creates.
//
// VirtualBalance is off-chain credit in satoshis and never goes negative.
// Nonce is the ordinal of the last accepted request; requests with a nonce
// not strictly greater are replays. While Locked is true a forced close is in
// flight and no channel update or transfer may touch the account.
type Account struct {
	ClientPublicKey  []byte
	ServerPrivateKey []byte
	ServerPublicKey  []byte
	VirtualBalance   int64
	Nonce            int64
	Locked           bool

	// ChannelTransaction is the raw bytes of the latest co-signed, not yet
	// broadcast channel transaction, empty when no channel is open.
	ChannelTransaction []byte

	// BroadcastBefore is the unix time by which ChannelTransaction must reach
	// the chain, i.e. the earliest lock time over its inputs. Zero when unset.
	BroadcastBefore int64

	TimeCreated int64
}

// ServerKeyPair reconstructs the account's server key pair from the stored
// private key bytes.
func (a *Account) ServerKeyPair() (*bec.PrivateKey, *bec.PublicKey) {
	return bec.PrivateKeyFromBytes(a.ServerPrivateKey)
}

// Equals compares accounts by client public key, their immutable identity.
func (a *Account) Equals(other *Account) bool {
	if a == nil || other == nil {
		return a == other
	}

	return bytes.Equal(a.ClientPublicKey, other.ClientPublicKey)
}

// State derives the channel state from the account fields. A closed channel
// has its transaction cleared again, so it reports ChannelStateOpen.
func (a *Account) State() ChannelState {
	switch {
	case a.Locked:
		return ChannelStateClosing
	case len(a.ChannelTransaction) > 0:
		return ChannelStatePending
	default:
		return ChannelStateOpen
	}
}
