// Package validator implements channel transaction validation and co-signing.
// The whole check sequence is side-effect free: it either returns a fully
// signed transaction with its forced-settlement deadline, or an error with
// nothing mutated, so callers can safely retry.
package validator

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript"
	"github.com/bsv-blockchain/go-bt/v2/bscript/interpreter"
	"github.com/bsv-blockchain/go-bt/v2/sighash"

	"github.com/surfswift213us/coinblesk-server/chainwallet"
	"github.com/surfswift213us/coinblesk-server/errors"
	"github.com/surfswift213us/coinblesk-server/model"
	"github.com/surfswift213us/coinblesk-server/services/forex"
	"github.com/surfswift213us/coinblesk-server/settings"
	storeaccount "github.com/surfswift213us/coinblesk-server/stores/account"
	"github.com/surfswift213us/coinblesk-server/ulogger"
)

// Result carries everything the ledger needs to commit a validated channel
// update.
type Result struct {
	// SignedTx is the candidate transaction with every input's full 2-of-2
	// unlocking script assembled.
	SignedTx *bt.Tx

	// EarliestDeadline is the lowest input lock time, the moment by which the
	// transaction must be on chain.
	EarliestDeadline int64

	// PotDelta is how much more this transaction pays into the pot than the
	// account's previous channel transaction.
	PotDelta int64

	// PotOutputValue is the total satoshis this transaction pays to the pot,
	// i.e. the channel's lifetime committed value.
	PotOutputValue uint64
}

type ChannelValidator struct {
	logger   ulogger.Logger
	settings *settings.Settings
	wallet   chainwallet.Wallet
	rates    forex.RateSource
}

func New(logger ulogger.Logger, tSettings *settings.Settings, wallet chainwallet.Wallet, rates forex.RateSource) *ChannelValidator {
	initPrometheusMetrics()

	return &ChannelValidator{
		logger:   logger,
		settings: tSettings,
		wallet:   wallet,
		rates:    rates,
	}
}

// ValidateChannelTransaction runs the full check sequence against rawTx on
// behalf of acc, the claimed sender. requireAmount distinguishes a payment
// update (claimed amount must match the pot delta exactly) from a pure
// funding or forced-close transaction (amount checks skipped).
//
// q supplies address lookups; passing the ledger's transaction-scoped Queries
// keeps validation and the subsequent commit on one consistent snapshot.
func (v *ChannelValidator) ValidateChannelTransaction(
	ctx context.Context,
	q storeaccount.Queries,
	acc *model.Account,
	rawTx []byte,
	claimedAmount int64,
	requireAmount bool,
) (*Result, error) {
	start := time.Now()
	defer func() {
		prometheusValidateChannelTx.Observe(time.Since(start).Seconds())
	}()

	tx, err := bt.NewTxFromBytes(rawTx)
	if err != nil {
		return nil, errors.NewTxInvalidError("transaction does not parse", err)
	}

	if len(tx.Inputs) == 0 || len(tx.Outputs) == 0 {
		return nil, errors.NewTxInvalidError("Transaction had no inputs or no outputs")
	}

	addresses, earliestDeadline, err := v.checkInputs(ctx, q, acc, tx)
	if err != nil {
		return nil, err
	}

	if err = v.signInputs(tx, acc, addresses); err != nil {
		return nil, err
	}

	if err = v.checkFee(tx); err != nil {
		return nil, err
	}

	potValue, err := v.checkOutputs(ctx, q, acc, tx)
	if err != nil {
		return nil, err
	}

	potDelta, err := v.checkAmount(ctx, acc, potValue, claimedAmount, requireAmount)
	if err != nil {
		return nil, err
	}

	return &Result{
		SignedTx:         tx,
		EarliestDeadline: earliestDeadline,
		PotDelta:         potDelta,
		PotOutputValue:   potValue,
	}, nil
}

// checkInputs resolves every input to a known, unspent, mined, time-locked
// output of the sender's account and enriches the inputs with their previous
// output data. Returns the resolved address record per input and the lowest
// lock time.
func (v *ChannelValidator) checkInputs(
	ctx context.Context,
	q storeaccount.Queries,
	acc *model.Account,
	tx *bt.Tx,
) ([]*storeaccount.AddressRecord, int64, error) {
	minLockTime := time.Now().Add(v.settings.Channel.MinimumLockDuration).Unix()

	addresses := make([]*storeaccount.AddressRecord, len(tx.Inputs))
	seenOutpoints := make(map[string]struct{}, len(tx.Inputs))

	var (
		ownerKey         []byte
		earliestDeadline int64
	)

	for i, input := range tx.Inputs {
		// The same outpoint twice would resolve to the same unspent UTXO on
		// every pass and can never be mined.
		outpoint := fmt.Sprintf("%x:%d", input.PreviousTxID(), input.PreviousTxOutIndex)
		if _, ok := seenOutpoints[outpoint]; ok {
			return nil, 0, errors.NewTxInvalidError("Transaction had duplicated outpoint")
		}

		seenOutpoints[outpoint] = struct{}{}

		utxo, err := v.wallet.FindOutput(ctx, input.PreviousTxID(), input.PreviousTxOutIndex)
		if err != nil {
			return nil, 0, errors.NewUnknownUTXOError("Transaction spends unknown UTXOs", err)
		}

		if utxo.Spent {
			return nil, 0, errors.NewAlreadySpentError("Input is already spent")
		}

		if utxo.Confirmations < 1 {
			return nil, 0, errors.NewNotMinedError("UTXO must be mined")
		}

		input.PreviousTxSatoshis = utxo.Satoshis
		input.PreviousTxScript = utxo.LockingScript

		if !utxo.LockingScript.IsP2SH() {
			return nil, 0, errors.NewNotP2SHError("Transaction must spent P2SH addresses")
		}

		// P2SH locking script is OP_HASH160 <20 bytes> OP_EQUAL.
		addressHash := (*utxo.LockingScript)[2:22]

		rec, err := q.GetAddressByHash(ctx, addressHash)
		if err != nil {
			return nil, 0, errors.NewUnknownTLAError("Used TLA inputs are not known to server", err)
		}

		if ownerKey == nil {
			ownerKey = rec.ClientPublicKey
		} else if !bytes.Equal(ownerKey, rec.ClientPublicKey) {
			return nil, 0, errors.NewMultipleAccountsError("Inputs must be from one account")
		}

		addresses[i] = rec
	}

	if !bytes.Equal(ownerKey, acc.ClientPublicKey) {
		return nil, 0, errors.NewWrongSignerError("Inputs must be from sender account")
	}

	for _, rec := range addresses {
		if rec.LockTime < minLockTime {
			return nil, 0, errors.NewLockTooSoonError("Inputs must be locked at least until %s", time.Unix(minLockTime, 0).UTC().Format(time.RFC3339))
		}

		if earliestDeadline == 0 || rec.LockTime < earliestDeadline {
			earliestDeadline = rec.LockTime
		}
	}

	return addresses, earliestDeadline, nil
}

// signInputs completes each input's unlocking script. The client's partial
// signature arrives as a single push; the server signature is computed
// against the redeem script, then the assembled script is executed against
// the spent output to prove the spend before anything is persisted.
func (v *ChannelValidator) signInputs(tx *bt.Tx, acc *model.Account, addresses []*storeaccount.AddressRecord) error {
	serverKey, _ := acc.ServerKeyPair()

	for i, input := range tx.Inputs {
		clientSig, ok := singlePushData(input.UnlockingScript)
		if !ok {
			return errors.NewBadSignatureFormatError("input %d must carry exactly one signature push", i)
		}

		redeemScript := bscript.NewFromBytes(addresses[i].RedeemScript)

		// The fork-id sighash commits to the script being executed, which for
		// a P2SH spend is the redeem script, not the outer locking script.
		p2shScript := input.PreviousTxScript
		input.PreviousTxScript = redeemScript

		sigHash, err := tx.CalcInputSignatureHash(uint32(i), sighash.AllForkID)

		input.PreviousTxScript = p2shScript

		if err != nil {
			return errors.NewProcessingError("failed to calculate signature hash for input %d", i, err)
		}

		signature, err := serverKey.Sign(sigHash)
		if err != nil {
			return errors.NewProcessingError("failed to sign input %d", i, err)
		}

		serverSigBytes := append(signature.Serialize(), byte(sighash.AllForkID))

		unlockingScript := &bscript.Script{}
		if err = unlockingScript.AppendPushData(clientSig); err != nil {
			return errors.NewProcessingError("failed to build unlocking script", err)
		}

		if err = unlockingScript.AppendPushData(serverSigBytes); err != nil {
			return errors.NewProcessingError("failed to build unlocking script", err)
		}

		if err = unlockingScript.AppendOpcodes(bscript.OpTRUE); err != nil {
			return errors.NewProcessingError("failed to build unlocking script", err)
		}

		if err = unlockingScript.AppendPushData(addresses[i].RedeemScript); err != nil {
			return errors.NewProcessingError("failed to build unlocking script", err)
		}

		input.UnlockingScript = unlockingScript

		prevOut := &bt.Output{
			Satoshis:      input.PreviousTxSatoshis,
			LockingScript: input.PreviousTxScript,
		}

		if err = interpreter.NewEngine().Execute(
			interpreter.WithTx(tx, i, prevOut),
			interpreter.WithForkID(),
			interpreter.WithP2SH(),
		); err != nil {
			return errors.NewScriptInvalidError("input %d does not satisfy its locking script", i, err)
		}
	}

	return nil
}

func (v *ChannelValidator) checkFee(tx *bt.Tx) error {
	var totalIn uint64
	for _, input := range tx.Inputs {
		totalIn += input.PreviousTxSatoshis
	}

	totalOut := tx.TotalOutputSatoshis()
	if totalOut > totalIn {
		return errors.NewInsufficientFeeError("Insufficient transaction fee")
	}

	required := v.settings.Channel.FeePerByte * uint64(len(tx.Bytes()))
	if totalIn-totalOut < required {
		return errors.NewInsufficientFeeError("Insufficient transaction fee")
	}

	return nil
}

// checkOutputs enforces the output shape: exactly one pot output for the
// sender's server key, at most one change output back to the account's
// latest time-locked address, nothing else. Returns the pot output value.
func (v *ChannelValidator) checkOutputs(ctx context.Context, q storeaccount.Queries, acc *model.Account, tx *bt.Tx) (uint64, error) {
	potScript, err := serverPotScript(acc)
	if err != nil {
		return 0, err
	}

	addresses, err := q.GetAddresses(ctx, acc.ClientPublicKey)
	if err != nil {
		return 0, err
	}

	var (
		changeScript   *bscript.Script
		changeLockTime int64
	)

	if len(addresses) > 0 {
		latest := model.NewTimeLockedAddress(acc.ClientPublicKey, acc.ServerPublicKey, addresses[0].LockTime)

		changeScript, err = latest.LockingScript()
		if err != nil {
			return 0, err
		}

		changeLockTime = addresses[0].LockTime
	}

	minLockTime := time.Now().Add(v.settings.Channel.MinimumLockDuration).Unix()

	var (
		potOutputs    int
		potValue      uint64
		changeOutputs int
	)

	for _, output := range tx.Outputs {
		switch {
		case bytes.Equal(*output.LockingScript, *potScript):
			potOutputs++
			potValue = output.Satoshis

		case changeScript != nil && bytes.Equal(*output.LockingScript, *changeScript):
			changeOutputs++
			if changeOutputs > 1 {
				return 0, errors.NewUnsupportedExternalOutputError("Sending to external addresses is not yet supported")
			}

			if changeLockTime < minLockTime {
				return 0, errors.NewChangeLockTooSoonError("change must stay locked at least until %s", time.Unix(minLockTime, 0).UTC().Format(time.RFC3339))
			}

		default:
			return 0, errors.NewUnsupportedExternalOutputError("Sending to external addresses is not yet supported")
		}
	}

	if potOutputs == 0 {
		return 0, errors.NewMissingServerOutputError("Transaction must have exactly one output for server")
	}

	if potOutputs > 1 {
		return 0, errors.NewMultipleServerOutputsError("Transaction must have exactly one output for server")
	}

	return potValue, nil
}

// checkAmount compares the pot delta against the claimed amount and enforces
// the USD-denominated channel ceiling.
func (v *ChannelValidator) checkAmount(ctx context.Context, acc *model.Account, potValue uint64, claimedAmount int64, requireAmount bool) (int64, error) {
	var previousPotValue uint64

	if len(acc.ChannelTransaction) > 0 {
		previousTx, err := bt.NewTxFromBytes(acc.ChannelTransaction)
		if err != nil {
			return 0, errors.NewProcessingError("stored channel transaction does not parse", err)
		}

		potScript, err := serverPotScript(acc)
		if err != nil {
			return 0, err
		}

		for _, output := range previousTx.Outputs {
			if bytes.Equal(*output.LockingScript, *potScript) {
				previousPotValue = output.Satoshis
				break
			}
		}
	}

	potDelta := int64(potValue) - int64(previousPotValue)

	if requireAmount {
		if claimedAmount <= 0 {
			return 0, errors.NewNonPositiveAmountError("Can't send zero or negative amount")
		}

		if claimedAmount != potDelta {
			return 0, errors.NewAmountMismatchError("Invalid amount. %d requested but %d given", claimedAmount, potDelta)
		}
	}

	rate, err := v.rates.USDPerBitcoin(ctx)
	if err != nil {
		return 0, err
	}

	ceilingSatoshis := int64(float64(v.settings.Channel.MaxChannelValueUSD) / rate * 1e8)
	if int64(potValue) > ceilingSatoshis {
		return 0, errors.NewChannelCeilingExceededError("Maximum channel value reached")
	}

	return potDelta, nil
}

// serverPotScript is the P2PKH locking script paying the account's server
// key, the canonical pot output for this channel.
func serverPotScript(acc *model.Account) (*bscript.Script, error) {
	pubKeyHash := model.PublicKeyHash(acc.ServerPublicKey)

	s := &bscript.Script{}

	if err := s.AppendOpcodes(bscript.OpDUP, bscript.OpHASH160); err != nil {
		return nil, errors.NewProcessingError("failed to build pot script", err)
	}

	if err := s.AppendPushData(pubKeyHash); err != nil {
		return nil, errors.NewProcessingError("failed to build pot script", err)
	}

	if err := s.AppendOpcodes(bscript.OpEQUALVERIFY, bscript.OpCHECKSIG); err != nil {
		return nil, errors.NewProcessingError("failed to build pot script", err)
	}

	return s, nil
}

// PotScript exposes the pot locking script for an account, used by the
// ledger and pot services.
func PotScript(acc *model.Account) (*bscript.Script, error) {
	return serverPotScript(acc)
}

// singlePushData returns the data of a script consisting of exactly one
// direct push, which is the only shape a client's partial signature may take.
func singlePushData(s *bscript.Script) ([]byte, bool) {
	if s == nil || len(*s) < 2 {
		return nil, false
	}

	b := []byte(*s)

	length := int(b[0])
	if length < 1 || length > 75 || len(b) != 1+length {
		return nil, false
	}

	return b[1:], true
}
