package validator

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-bt/v2/sighash"
	bec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surfswift213us/coinblesk-server/chainwallet"
	"github.com/surfswift213us/coinblesk-server/errors"
	"github.com/surfswift213us/coinblesk-server/model"
	"github.com/surfswift213us/coinblesk-server/services/forex"
	"github.com/surfswift213us/coinblesk-server/settings"
	storeaccount "github.com/surfswift213us/coinblesk-server/stores/account"
	"github.com/surfswift213us/coinblesk-server/stores/account/memory"
	"github.com/surfswift213us/coinblesk-server/ulogger"
)

type harness struct {
	validator *ChannelValidator
	store     *memory.Memory
	wallet    *chainwallet.Mock
	forex     *forex.Service

	clientKey *bec.PrivateKey
	account   *model.Account
	tla       *model.TimeLockedAddress
	utxo      *chainwallet.UTXO
}

func validatorSettings() *settings.Settings {
	return &settings.Settings{
		Channel: settings.ChannelSettings{
			MinimumLockDuration: 24 * time.Hour,
			FeePerByte:          1,
			MaxChannelValueUSD:  100,
		},
		Forex: settings.ForexSettings{CacheTTL: time.Minute},
	}
}

// newHarness sets up a funded account: one time-locked address holding a
// confirmed UTXO of the given value, locked 90 days out.
func newHarness(t *testing.T, satoshis uint64) *harness {
	t.Helper()

	ctx := context.Background()
	store := memory.New()
	wallet := chainwallet.NewMock()
	tSettings := validatorSettings()
	rates := forex.New(ulogger.TestLogger{}, tSettings, forex.StaticRate(50000))

	clientKey, err := bec.NewPrivateKey()
	require.NoError(t, err)

	serverKey, err := bec.NewPrivateKey()
	require.NoError(t, err)

	acc := &model.Account{
		ClientPublicKey:  clientKey.PubKey().Compressed(),
		ServerPrivateKey: serverKey.Serialize(),
		ServerPublicKey:  serverKey.PubKey().Compressed(),
		TimeCreated:      time.Now().Unix(),
	}
	require.NoError(t, store.CreateAccount(ctx, acc))

	h := &harness{
		validator: New(ulogger.TestLogger{}, tSettings, wallet, rates),
		store:     store,
		wallet:    wallet,
		forex:     rates,
		clientKey: clientKey,
		account:   acc,
	}

	lockTime := time.Now().Add(90 * 24 * time.Hour).Unix()
	h.tla, h.utxo = h.fundAddress(t, acc, lockTime, satoshis, 6)

	return h
}

// fundAddress creates a time-locked address for acc and seeds the wallet with
// a UTXO paying it.
func (h *harness) fundAddress(t *testing.T, acc *model.Account, lockTime int64, satoshis uint64, confirmations uint32) (*model.TimeLockedAddress, *chainwallet.UTXO) {
	t.Helper()

	ctx := context.Background()

	tla := model.NewTimeLockedAddress(acc.ClientPublicKey, acc.ServerPublicKey, lockTime)

	redeemScript, err := tla.RedeemScript()
	require.NoError(t, err)

	hash, err := tla.Hash()
	require.NoError(t, err)

	require.NoError(t, h.store.CreateAddress(ctx, &storeaccount.AddressRecord{
		ClientPublicKey: acc.ClientPublicKey,
		AddressHash:     hash,
		RedeemScript:    *redeemScript,
		LockTime:        lockTime,
		TimeCreated:     time.Now().Unix(),
	}))

	lockingScript, err := tla.LockingScript()
	require.NoError(t, err)

	txID := make([]byte, 32)
	_, err = rand.Read(txID)
	require.NoError(t, err)

	utxo := &chainwallet.UTXO{
		TxID:          txID,
		Vout:          0,
		Satoshis:      satoshis,
		LockingScript: lockingScript,
		Confirmations: confirmations,
	}
	h.wallet.AddUTXO(utxo)

	return tla, utxo
}

// channelTx builds a client-signed channel transaction spending h.utxo into
// the pot (potAmount) with optional change back to the latest address.
func (h *harness) channelTx(t *testing.T, potAmount, changeAmount uint64) []byte {
	t.Helper()

	return h.channelTxSignedBy(t, h.clientKey, potAmount, changeAmount)
}

func (h *harness) channelTxSignedBy(t *testing.T, signingKey *bec.PrivateKey, potAmount, changeAmount uint64) []byte {
	t.Helper()

	tx := bt.NewTx()

	txIDHash, err := chainhash.NewHash(h.utxo.TxID)
	require.NoError(t, err)

	require.NoError(t, tx.FromUTXOs(&bt.UTXO{
		TxIDHash:      txIDHash,
		Vout:          h.utxo.Vout,
		LockingScript: h.utxo.LockingScript,
		Satoshis:      h.utxo.Satoshis,
	}))

	potScript, err := serverPotScript(h.account)
	require.NoError(t, err)

	tx.AddOutput(&bt.Output{Satoshis: potAmount, LockingScript: potScript})

	if changeAmount > 0 {
		changeScript, err := h.tla.LockingScript()
		require.NoError(t, err)

		tx.AddOutput(&bt.Output{Satoshis: changeAmount, LockingScript: changeScript})
	}

	h.clientSign(t, tx, signingKey)

	return tx.Bytes()
}

// clientSign attaches the client's partial signature as the single push the
// protocol expects.
func (h *harness) clientSign(t *testing.T, tx *bt.Tx, signingKey *bec.PrivateKey) {
	t.Helper()

	redeemScript, err := h.tla.RedeemScript()
	require.NoError(t, err)

	input := tx.Inputs[0]

	outerScript := input.PreviousTxScript
	input.PreviousTxScript = redeemScript

	sigHash, err := tx.CalcInputSignatureHash(0, sighash.AllForkID)
	require.NoError(t, err)

	input.PreviousTxScript = outerScript

	signature, err := signingKey.Sign(sigHash)
	require.NoError(t, err)

	unlockingScript := &bscript.Script{}
	require.NoError(t, unlockingScript.AppendPushData(append(signature.Serialize(), byte(sighash.AllForkID))))

	input.UnlockingScript = unlockingScript
}

func (h *harness) validate(t *testing.T, rawTx []byte, amount int64) (*Result, error) {
	t.Helper()

	return h.validator.ValidateChannelTransaction(context.Background(), h.store, h.account, rawTx, amount, true)
}

func TestValidateChannelTransactionSucceeds(t *testing.T) {
	h := newHarness(t, 100000)

	rawTx := h.channelTx(t, 1337, 98000)

	result, err := h.validate(t, rawTx, 1337)
	require.NoError(t, err)

	assert.Equal(t, int64(1337), result.PotDelta)
	assert.Equal(t, uint64(1337), result.PotOutputValue)
	assert.Equal(t, h.tla.LockTime, result.EarliestDeadline)

	// Every input ends up with the full 2-of-2 unlocking script.
	for _, input := range result.SignedTx.Inputs {
		assert.Greater(t, len(*input.UnlockingScript), 140)
	}
}

func TestValidateRejectsEmptyTransaction(t *testing.T) {
	h := newHarness(t, 100000)

	tx := bt.NewTx()

	_, err := h.validate(t, tx.Bytes(), 1337)
	require.Error(t, err)
	assert.Equal(t, errors.ERR_TX_INVALID, errors.CodeOf(err))
}

func TestValidateRejectsUnknownUTXO(t *testing.T) {
	h := newHarness(t, 100000)

	rawTx := h.channelTx(t, 1337, 98000)

	// Wipe the wallet's knowledge of the funding output.
	h.wallet = chainwallet.NewMock()
	h.validator.wallet = h.wallet

	_, err := h.validate(t, rawTx, 1337)
	require.Error(t, err)
	assert.Equal(t, errors.ERR_UNKNOWN_UTXO, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "Transaction spends unknown UTXOs")
}

func TestValidateRejectsSpentInput(t *testing.T) {
	h := newHarness(t, 100000)
	h.utxo.Spent = true

	_, err := h.validate(t, h.channelTx(t, 1337, 98000), 1337)
	require.Error(t, err)
	assert.Equal(t, errors.ERR_ALREADY_SPENT, errors.CodeOf(err))
}

func TestValidateRejectsUnminedInput(t *testing.T) {
	h := newHarness(t, 100000)
	h.utxo.Confirmations = 0

	_, err := h.validate(t, h.channelTx(t, 1337, 98000), 1337)
	require.Error(t, err)
	assert.Equal(t, errors.ERR_NOT_MINED, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "UTXO must be mined")
}

func TestValidateRejectsNonP2SHInput(t *testing.T) {
	h := newHarness(t, 100000)

	p2pkh, err := bscript.NewP2PKHFromPubKeyBytes(h.account.ClientPublicKey)
	require.NoError(t, err)

	h.utxo.LockingScript = p2pkh

	_, err = h.validate(t, h.channelTx(t, 1337, 98000), 1337)
	require.Error(t, err)
	assert.Equal(t, errors.ERR_NOT_P2SH, errors.CodeOf(err))
}

func TestValidateRejectsUnknownTLA(t *testing.T) {
	h := newHarness(t, 100000)

	rawTx := h.channelTx(t, 1337, 98000)

	// Replace the store so the address hash resolves to nothing.
	h.store = memory.New()
	require.NoError(t, h.store.CreateAccount(context.Background(), h.account))

	_, err := h.validate(t, rawTx, 1337)
	require.Error(t, err)
	assert.Equal(t, errors.ERR_UNKNOWN_TLA, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "Used TLA inputs are not known to server")
}

func TestValidateRejectsForeignAccountInputs(t *testing.T) {
	h := newHarness(t, 100000)

	// The inputs resolve to h.account, but the claimed sender is another
	// registered account.
	otherKey, err := bec.NewPrivateKey()
	require.NoError(t, err)

	otherServer, err := bec.NewPrivateKey()
	require.NoError(t, err)

	other := &model.Account{
		ClientPublicKey:  otherKey.PubKey().Compressed(),
		ServerPrivateKey: otherServer.Serialize(),
		ServerPublicKey:  otherServer.PubKey().Compressed(),
		TimeCreated:      time.Now().Unix(),
	}
	require.NoError(t, h.store.CreateAccount(context.Background(), other))

	rawTx := h.channelTx(t, 1337, 98000)

	_, err = h.validator.ValidateChannelTransaction(context.Background(), h.store, other, rawTx, 1337, true)
	require.Error(t, err)
	assert.Equal(t, errors.ERR_WRONG_SIGNER, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "Inputs must be from sender account")
}

func TestValidateRejectsLockTooSoon(t *testing.T) {
	h := newHarness(t, 100000)

	// Re-fund with an address expiring in an hour, below the 24h minimum.
	h.tla, h.utxo = h.fundAddress(t, h.account, time.Now().Add(time.Hour).Unix(), 100000, 6)

	_, err := h.validate(t, h.channelTx(t, 1337, 98000), 1337)
	require.Error(t, err)
	assert.Equal(t, errors.ERR_LOCK_TOO_SOON, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "Inputs must be locked at least until")
}

func TestValidateRejectsBadSignatureFormat(t *testing.T) {
	h := newHarness(t, 100000)

	rawTx := h.channelTx(t, 1337, 98000)

	tx, err := bt.NewTxFromBytes(rawTx)
	require.NoError(t, err)

	// Two pushes instead of one.
	bad := &bscript.Script{}
	require.NoError(t, bad.AppendPushData([]byte{0x01}))
	require.NoError(t, bad.AppendPushData([]byte{0x02}))
	tx.Inputs[0].UnlockingScript = bad

	_, err = h.validate(t, tx.Bytes(), 1337)
	require.Error(t, err)
	assert.Equal(t, errors.ERR_BAD_SIGNATURE_FORMAT, errors.CodeOf(err))
}

func TestValidateRejectsWrongClientSignature(t *testing.T) {
	h := newHarness(t, 100000)

	wrongKey, err := bec.NewPrivateKey()
	require.NoError(t, err)

	rawTx := h.channelTxSignedBy(t, wrongKey, 1337, 98000)

	_, err = h.validate(t, rawTx, 1337)
	require.Error(t, err)
	assert.Equal(t, errors.ERR_SCRIPT_INVALID, errors.CodeOf(err))
}

func TestValidateRejectsDuplicateOutpoints(t *testing.T) {
	h := newHarness(t, 100000)

	// Spend the same funding output twice. Each input on its own resolves to
	// an unspent UTXO, but the transaction can never be mined and must not
	// credit the pot twice.
	tx := bt.NewTx()

	txIDHash, err := chainhash.NewHash(h.utxo.TxID)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		require.NoError(t, tx.FromUTXOs(&bt.UTXO{
			TxIDHash:      txIDHash,
			Vout:          h.utxo.Vout,
			LockingScript: h.utxo.LockingScript,
			Satoshis:      h.utxo.Satoshis,
		}))
	}

	potScript, err := serverPotScript(h.account)
	require.NoError(t, err)

	tx.AddOutput(&bt.Output{Satoshis: 150000, LockingScript: potScript})

	for _, input := range tx.Inputs {
		push := &bscript.Script{}
		require.NoError(t, push.AppendPushData([]byte{0x30, 0x06, 0x02, 0x01, 0x01, 0x02, 0x01, 0x01, 0x41}))
		input.UnlockingScript = push
	}

	_, err = h.validate(t, tx.Bytes(), 150000)
	require.Error(t, err)
	assert.Equal(t, errors.ERR_TX_INVALID, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "Transaction had duplicated outpoint")
}

func TestValidateRejectsInsufficientFee(t *testing.T) {
	h := newHarness(t, 100000)

	// Outputs consume everything, leaving no fee at all.
	_, err := h.validate(t, h.channelTx(t, 1337, 98663), 1337)
	require.Error(t, err)
	assert.Equal(t, errors.ERR_INSUFFICIENT_FEE, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "Insufficient transaction fee")
}

func TestValidateRejectsMissingServerOutput(t *testing.T) {
	h := newHarness(t, 100000)

	// Change only, no pot output.
	tx := bt.NewTx()

	txIDHash, err := chainhash.NewHash(h.utxo.TxID)
	require.NoError(t, err)

	require.NoError(t, tx.FromUTXOs(&bt.UTXO{
		TxIDHash:      txIDHash,
		Vout:          0,
		LockingScript: h.utxo.LockingScript,
		Satoshis:      h.utxo.Satoshis,
	}))

	changeScript, err := h.tla.LockingScript()
	require.NoError(t, err)

	tx.AddOutput(&bt.Output{Satoshis: 99000, LockingScript: changeScript})
	h.clientSign(t, tx, h.clientKey)

	_, err = h.validate(t, tx.Bytes(), 1337)
	require.Error(t, err)
	assert.Equal(t, errors.ERR_MISSING_SERVER_OUTPUT, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "Transaction must have exactly one output for server")
}

func TestValidateRejectsExternalOutput(t *testing.T) {
	h := newHarness(t, 100000)

	tx := bt.NewTx()

	txIDHash, err := chainhash.NewHash(h.utxo.TxID)
	require.NoError(t, err)

	require.NoError(t, tx.FromUTXOs(&bt.UTXO{
		TxIDHash:      txIDHash,
		Vout:          0,
		LockingScript: h.utxo.LockingScript,
		Satoshis:      h.utxo.Satoshis,
	}))

	potScript, err := serverPotScript(h.account)
	require.NoError(t, err)

	tx.AddOutput(&bt.Output{Satoshis: 1337, LockingScript: potScript})

	// Pay a third party, which channels do not support.
	strangerKey, err := bec.NewPrivateKey()
	require.NoError(t, err)

	strangerScript, err := bscript.NewP2PKHFromPubKeyBytes(strangerKey.PubKey().Compressed())
	require.NoError(t, err)

	tx.AddOutput(&bt.Output{Satoshis: 90000, LockingScript: strangerScript})
	h.clientSign(t, tx, h.clientKey)

	_, err = h.validate(t, tx.Bytes(), 1337)
	require.Error(t, err)
	assert.Equal(t, errors.ERR_UNSUPPORTED_EXTERNAL_OUTPUT, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "Sending to external addresses is not yet supported")
}

func TestValidateRejectsAmountMismatch(t *testing.T) {
	h := newHarness(t, 100000)

	_, err := h.validate(t, h.channelTx(t, 1000, 98000), 1337)
	require.Error(t, err)
	assert.Equal(t, errors.ERR_AMOUNT_MISMATCH, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "Invalid amount. 1337 requested but 1000 given")
}

func TestValidateRejectsNonPositiveAmount(t *testing.T) {
	h := newHarness(t, 100000)

	rawTx := h.channelTx(t, 1337, 98000)

	_, err := h.validate(t, rawTx, 0)
	require.Error(t, err)
	assert.Equal(t, errors.ERR_NON_POSITIVE_AMOUNT, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "Can't send zero or negative amount")
}

func TestValidateRejectsCeilingExceeded(t *testing.T) {
	h := newHarness(t, 500000)

	// 100 USD at 50000 USD/BTC is a 200000 satoshi ceiling.
	_, err := h.validate(t, h.channelTx(t, 250000, 240000), 250000)
	require.Error(t, err)
	assert.Equal(t, errors.ERR_CHANNEL_CEILING_EXCEEDED, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "Maximum channel value reached")
}

func TestValidateSkipsAmountChecksForForcedClose(t *testing.T) {
	h := newHarness(t, 100000)

	rawTx := h.channelTx(t, 1337, 98000)

	result, err := h.validator.ValidateChannelTransaction(context.Background(), h.store, h.account, rawTx, 0, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1337), result.PotDelta)
}

func TestValidateDeltaAgainstPreviousChannelTx(t *testing.T) {
	h := newHarness(t, 100000)

	// First update commits 1000 into the pot.
	first, err := h.validate(t, h.channelTx(t, 1000, 98300), 1000)
	require.NoError(t, err)

	h.account.ChannelTransaction = first.SignedTx.Bytes()

	// Second update commits 2337 total, a delta of 1337.
	result, err := h.validate(t, h.channelTx(t, 2337, 96963), 1337)
	require.NoError(t, err)
	assert.Equal(t, int64(1337), result.PotDelta)
}
