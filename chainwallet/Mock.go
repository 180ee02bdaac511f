package chainwallet

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript"

	"github.com/surfswift213us/coinblesk-server/errors"
)

// Mock is an in-process wallet for tests and local development. It tracks a
// synthetic UTXO set, applies broadcast transactions to it and lets tests
// drive confirmation events by hand.
type Mock struct {
	mu            sync.Mutex
	utxos         map[string]*UTXO
	watched       []*bscript.Script
	broadcasts    [][]byte
	subscribers   []chan Confirmation
	broadcastErr  error
	confirmations map[string]uint32
}

var _ Wallet = (*Mock)(nil)

func NewMock() *Mock {
	return &Mock{
		utxos:         make(map[string]*UTXO),
		confirmations: make(map[string]uint32),
	}
}

func outpointKey(txID []byte, vout uint32) string {
	return fmt.Sprintf("%s:%d", hex.EncodeToString(txID), vout)
}

// AddUTXO seeds the synthetic UTXO set.
func (m *Mock) AddUTXO(u *UTXO) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.utxos[outpointKey(u.TxID, u.Vout)] = u
}

// SetBroadcastError makes subsequent Broadcast calls fail with err.
func (m *Mock) SetBroadcastError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.broadcastErr = err
}

// Broadcasts returns the raw transactions broadcast so far.
func (m *Mock) Broadcasts() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([][]byte, len(m.broadcasts))
	copy(out, m.broadcasts)

	return out
}

func (m *Mock) FindOutput(_ context.Context, txID []byte, vout uint32) (*UTXO, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.utxos[outpointKey(txID, vout)]
	if !ok {
		return nil, errors.NewNotFoundError("output not known to wallet")
	}

	clone := *u

	return &clone, nil
}

func (m *Mock) UTXOsForScript(_ context.Context, lockingScript *bscript.Script) ([]*UTXO, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*UTXO

	for _, u := range m.utxos {
		if !u.Spent && u.LockingScript != nil && bytes.Equal(*u.LockingScript, *lockingScript) {
			clone := *u
			out = append(out, &clone)
		}
	}

	return out, nil
}

func (m *Mock) WatchScript(_ context.Context, lockingScript *bscript.Script) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.watched = append(m.watched, lockingScript)

	return nil
}

// Broadcast applies the transaction to the synthetic UTXO set: its inputs
// become spent and its outputs appear with zero confirmations.
func (m *Mock) Broadcast(_ context.Context, rawTx []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.broadcastErr != nil {
		return m.broadcastErr
	}

	tx, err := bt.NewTxFromBytes(rawTx)
	if err != nil {
		return errors.NewTxInvalidError("broadcast of unparseable transaction", err)
	}

	for _, input := range tx.Inputs {
		if u, ok := m.utxos[outpointKey(input.PreviousTxID(), input.PreviousTxOutIndex)]; ok {
			u.Spent = true
		}
	}

	txIDBytes := tx.TxIDChainHash().CloneBytes()

	for i, output := range tx.Outputs {
		m.utxos[outpointKey(txIDBytes, uint32(i))] = &UTXO{
			TxID:          txIDBytes,
			Vout:          uint32(i),
			Satoshis:      output.Satoshis,
			LockingScript: output.LockingScript,
		}
	}

	m.broadcasts = append(m.broadcasts, rawTx)

	return nil
}

func (m *Mock) Subscribe(ctx context.Context) <-chan Confirmation {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan Confirmation, 16)
	m.subscribers = append(m.subscribers, ch)

	go func() {
		<-ctx.Done()

		m.mu.Lock()
		defer m.mu.Unlock()

		for i, sub := range m.subscribers {
			if sub == ch {
				m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
				close(ch)

				break
			}
		}
	}()

	return ch
}

// Confirm raises the confirmation count of a transaction's outputs and fans
// the event out to all subscribers.
func (m *Mock) Confirm(rawTx []byte, confirmations uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, err := bt.NewTxFromBytes(rawTx)
	if err != nil {
		return errors.NewTxInvalidError("confirm of unparseable transaction", err)
	}

	txIDBytes := tx.TxIDChainHash().CloneBytes()
	m.confirmations[hex.EncodeToString(txIDBytes)] = confirmations

	for i := range tx.Outputs {
		if u, ok := m.utxos[outpointKey(txIDBytes, uint32(i))]; ok {
			u.Confirmations = confirmations
		}
	}

	for _, sub := range m.subscribers {
		sub <- Confirmation{RawTx: rawTx, Confirmations: confirmations}
	}

	return nil
}

func (m *Mock) Health(_ context.Context) error { return nil }
