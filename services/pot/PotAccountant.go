// Package pot accounts for the on-chain funds backing the virtual ledger: the
// central pot key plus the per-account server outputs of settled channels.
// Payouts hand a client's virtual balance back on chain.
package pot

import (
	"context"
	"time"

	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-bt/v2/unlocker"
	bec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/google/uuid"

	"github.com/surfswift213us/coinblesk-server/chainwallet"
	"github.com/surfswift213us/coinblesk-server/errors"
	"github.com/surfswift213us/coinblesk-server/services/validator"
	"github.com/surfswift213us/coinblesk-server/settings"
	storeaccount "github.com/surfswift213us/coinblesk-server/stores/account"
	"github.com/surfswift213us/coinblesk-server/ulogger"
)

// inputSizeEstimate and outputSizeEstimate are the worst-case serialized
// sizes of a P2PKH input and output, used to price a payout before signing.
const (
	inputSizeEstimate  = 148
	outputSizeEstimate = 34
	txOverheadEstimate = 10
)

// PayoutResult reports a completed payout.
type PayoutResult struct {
	// Amount actually paid to the destination, the virtual balance minus fee.
	Amount int64
	Fee    uint64
	RawTx  []byte
}

// Solvency compares the confirmed on-chain pot against the sum of all virtual
// balances.
type Solvency struct {
	PotValue            int64
	TotalVirtualBalance int64
}

func (s Solvency) Solvent() bool {
	return s.PotValue >= s.TotalVirtualBalance
}

// Accountant values the pot and executes payouts from the central pot key.
type Accountant struct {
	logger   ulogger.Logger
	settings *settings.Settings
	store    storeaccount.Store
	wallet   chainwallet.Wallet

	potKey    *bec.PrivateKey
	potScript *bscript.Script
}

func New(logger ulogger.Logger, tSettings *settings.Settings, store storeaccount.Store, wallet chainwallet.Wallet) (*Accountant, error) {
	initPrometheusMetrics()

	potKey, err := bec.PrivateKeyFromWif(tSettings.Pot.PrivateKeyWif)
	if err != nil {
		return nil, errors.NewConfigurationError("pot private key is not valid WIF", err)
	}

	potScript, err := bscript.NewP2PKHFromPubKeyBytes(potKey.PubKey().Compressed())
	if err != nil {
		return nil, errors.NewConfigurationError("failed to derive pot locking script", err)
	}

	return &Accountant{
		logger:    logger,
		settings:  tSettings,
		store:     store,
		wallet:    wallet,
		potKey:    potKey,
		potScript: potScript,
	}, nil
}

// PotScript returns the locking script of the central pot key.
func (a *Accountant) PotScript() *bscript.Script {
	return a.potScript
}

// PotValue sums the confirmed unspent outputs held by the central pot key and
// by every account's server key. Outputs below the configured confirmation
// depth do not count, an unconfirmed pot cannot honor a payout.
func (a *Accountant) PotValue(ctx context.Context) (int64, error) {
	start := time.Now()
	defer func() {
		prometheusPotValue.Observe(float64(time.Since(start).Microseconds()) / 1_000_000)
	}()

	total, err := a.confirmedValue(ctx, a.potScript)
	if err != nil {
		return 0, err
	}

	accounts, err := a.store.AllAccounts(ctx)
	if err != nil {
		return 0, err
	}

	for _, acc := range accounts {
		script, err := validator.PotScript(acc)
		if err != nil {
			return 0, err
		}

		value, err := a.confirmedValue(ctx, script)
		if err != nil {
			return 0, err
		}

		total += value
	}

	return total, nil
}

func (a *Accountant) confirmedValue(ctx context.Context, script *bscript.Script) (int64, error) {
	utxos, err := a.wallet.UTXOsForScript(ctx, script)
	if err != nil {
		return 0, err
	}

	var total int64

	for _, u := range utxos {
		if u.Spent || u.Confirmations < a.settings.Pot.MinConfirmations {
			continue
		}

		total += int64(u.Satoshis)
	}

	return total, nil
}

// CheckSolvency compares pot value and total virtual balance and logs when
// the pot no longer covers what the ledger owes.
func (a *Accountant) CheckSolvency(ctx context.Context) (*Solvency, error) {
	potValue, err := a.PotValue(ctx)
	if err != nil {
		return nil, err
	}

	accounts, err := a.store.AllAccounts(ctx)
	if err != nil {
		return nil, err
	}

	var totalVirtual int64
	for _, acc := range accounts {
		totalVirtual += acc.VirtualBalance
	}

	s := &Solvency{PotValue: potValue, TotalVirtualBalance: totalVirtual}
	if !s.Solvent() {
		a.logger.Errorf("[CheckSolvency] pot %d does not cover virtual balances %d, shortfall %d",
			s.PotValue, s.TotalVirtualBalance, s.TotalVirtualBalance-s.PotValue)
	}

	return s, nil
}

// PayOut sends an account's entire virtual balance, minus the network fee, to
// destinationAddress and zeroes the balance. The balance is zeroed and the
// payout logged before the broadcast: crashing after the commit leaves an
// audit trail pointing at a signed transaction instead of a balance that
// could be paid twice.
func (a *Accountant) PayOut(ctx context.Context, clientPublicKey []byte, destinationAddress string) (*PayoutResult, error) {
	start := time.Now()
	defer func() {
		prometheusPayout.Observe(float64(time.Since(start).Microseconds()) / 1_000_000)
	}()

	acc, err := a.store.GetAccount(ctx, clientPublicKey)
	if err != nil {
		return nil, err
	}

	if acc.Locked {
		return nil, errors.NewChannelLockedError("Channel is locked")
	}

	balance := acc.VirtualBalance
	if balance <= 0 {
		return nil, errors.NewNonPositiveAmountError("Can't send zero or negative amount")
	}

	tx, fee, err := a.buildPayoutTx(ctx, balance, destinationAddress)
	if err != nil {
		return nil, err
	}

	if err = tx.FillAllInputs(ctx, &unlocker.Getter{PrivateKey: a.potKey}); err != nil {
		return nil, errors.NewProcessingError("failed to sign payout transaction", err)
	}

	rawTx := tx.Bytes()
	paid := balance - int64(fee)

	err = a.store.WithTx(ctx, func(q storeaccount.Queries) error {
		current, err := q.GetAccount(ctx, clientPublicKey)
		if err != nil {
			return err
		}

		if current.Locked {
			return errors.NewChannelLockedError("Channel is locked")
		}

		if current.VirtualBalance != balance {
			return errors.NewStorageConflictError("balance changed during payout")
		}

		current.VirtualBalance = 0
		if err = q.UpdateAccount(ctx, current); err != nil {
			return err
		}

		return q.AppendEvent(ctx, &storeaccount.Event{
			ID:              uuid.New().String(),
			ClientPublicKey: clientPublicKey,
			Type:            storeaccount.EventPayout,
			Detail:          destinationAddress,
			Amount:          paid,
			Timestamp:       time.Now(),
		})
	})
	if err != nil {
		return nil, err
	}

	bctx, cancel := context.WithTimeout(ctx, a.settings.Channel.BroadcastTimeout)
	defer cancel()

	if err = a.wallet.Broadcast(bctx, rawTx); err != nil {
		a.logger.Errorf("[PayOut] broadcast for account %x failed: %v", clientPublicKey, err)

		if eventErr := a.store.AppendEvent(ctx, &storeaccount.Event{
			ID:              uuid.New().String(),
			ClientPublicKey: clientPublicKey,
			Type:            storeaccount.EventBroadcastError,
			Detail:          err.Error(),
			Timestamp:       time.Now(),
		}); eventErr != nil {
			a.logger.Errorf("[PayOut] failed to record broadcast error for account %x: %v", clientPublicKey, eventErr)
		}

		return nil, errors.NewBroadcastFailedError("failed to broadcast payout for account %x", clientPublicKey, err)
	}

	a.logger.Infof("[PayOut] paid %d to %s for account %x, fee %d", paid, destinationAddress, clientPublicKey, fee)

	return &PayoutResult{Amount: paid, Fee: fee, RawTx: rawTx}, nil
}

// buildPayoutTx selects confirmed pot outputs covering balance, pays
// balance minus fee to destinationAddress and returns remaining value to
// the pot.
func (a *Accountant) buildPayoutTx(ctx context.Context, balance int64, destinationAddress string) (*bt.Tx, uint64, error) {
	utxos, err := a.wallet.UTXOsForScript(ctx, a.potScript)
	if err != nil {
		return nil, 0, err
	}

	tx := bt.NewTx()

	var selected int64

	for _, u := range utxos {
		if u.Spent || u.Confirmations < a.settings.Pot.MinConfirmations {
			continue
		}

		txIDHash, err := chainhash.NewHash(u.TxID)
		if err != nil {
			return nil, 0, errors.NewProcessingError("pot UTXO has invalid txid", err)
		}

		if err = tx.FromUTXOs(&bt.UTXO{
			TxIDHash:      txIDHash,
			Vout:          u.Vout,
			LockingScript: u.LockingScript,
			Satoshis:      u.Satoshis,
		}); err != nil {
			return nil, 0, err
		}

		selected += int64(u.Satoshis)
		if selected >= balance {
			break
		}
	}

	if selected < balance {
		a.logger.Errorf("[PayOut] pot holds %d confirmed but owes %d, payout declined", selected, balance)
		return nil, 0, errors.NewInsufficientFundsError("pot does not cover the requested payout")
	}

	fee := uint64(len(tx.Inputs)*inputSizeEstimate+2*outputSizeEstimate+txOverheadEstimate) * a.settings.Channel.FeePerByte
	if balance <= int64(fee) {
		return nil, 0, errors.NewNonPositiveAmountError("balance %d does not cover the payout fee %d", balance, fee)
	}

	if err = tx.AddP2PKHOutputFromAddress(destinationAddress, uint64(balance)-fee); err != nil {
		return nil, 0, errors.NewInvalidArgumentError("destination address is not valid", err)
	}

	if change := selected - balance; change > 0 {
		tx.AddOutput(&bt.Output{Satoshis: uint64(change), LockingScript: a.potScript})
	}

	return tx, fee, nil
}
