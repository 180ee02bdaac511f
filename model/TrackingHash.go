package model

import (
	"github.com/bsv-blockchain/go-bt/v2"

	"github.com/surfswift213us/coinblesk-server/errors"
	"github.com/surfswift213us/coinblesk-server/util"
)

// TrackingHash identifies a channel transaction across signature malleation.
// It is the double sha256 of the transaction with every unlocking script
// stripped, so a miner rewriting a signature cannot change it. Broadcast
// transactions are matched against confirmations by this hash, never by txid.
func TrackingHash(tx *bt.Tx) []byte {
	clone := tx.Clone()
	for _, input := range clone.Inputs {
		input.UnlockingScript = nil
	}

	return util.Sha256d(clone.Bytes())
}

// TrackingHashFromBytes parses raw transaction bytes and returns their
// tracking hash.
func TrackingHashFromBytes(rawTx []byte) ([]byte, error) {
	tx, err := bt.NewTxFromBytes(rawTx)
	if err != nil {
		return nil, errors.NewTxInvalidError("failed to parse transaction for tracking hash", err)
	}

	return TrackingHash(tx), nil
}
