// Package chainwallet is the seam between the channel server and the Bitcoin
// network: UTXO lookups for validation, transaction broadcast and
// confirmation events for settlement tracking.
package chainwallet

import (
	"context"

	"github.com/bsv-blockchain/go-bt/v2/bscript"
)

// UTXO is one spendable or spent output as the wallet sees it. TxID is in
// transaction-serialization byte order, matching bt.Input.PreviousTxID().
type UTXO struct {
	TxID          []byte
	Vout          uint32
	Satoshis      uint64
	LockingScript *bscript.Script
	Confirmations uint32
	Spent         bool
}

// Confirmation reports that a watched transaction reached a new confirmation
// depth. RawTx is the transaction as seen on the network, which may differ
// from the broadcast bytes in its signatures but never in its tracking hash.
type Confirmation struct {
	RawTx         []byte
	Confirmations uint32
}

// Wallet abstracts the connected Bitcoin wallet or node.
type Wallet interface {
	// FindOutput looks up one transaction output, spent or not.
	// Returns ErrNotFound when the wallet has never seen it.
	FindOutput(ctx context.Context, txID []byte, vout uint32) (*UTXO, error)

	// UTXOsForScript returns the unspent outputs paying lockingScript.
	UTXOsForScript(ctx context.Context, lockingScript *bscript.Script) ([]*UTXO, error)

	// WatchScript adds a locking script to the wallet's watch set so its
	// outputs appear in FindOutput and UTXOsForScript.
	WatchScript(ctx context.Context, lockingScript *bscript.Script) error

	// Broadcast submits a raw transaction to the network. A nil return means
	// the transaction was accepted; its confirmations arrive via Subscribe.
	Broadcast(ctx context.Context, rawTx []byte) error

	// Subscribe returns a channel of confirmation events for watched and
	// broadcast transactions. The channel closes when ctx is done.
	Subscribe(ctx context.Context) <-chan Confirmation

	Health(ctx context.Context) error
}
