package lifecycle

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript"
	bec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surfswift213us/coinblesk-server/chainwallet"
	"github.com/surfswift213us/coinblesk-server/errors"
	"github.com/surfswift213us/coinblesk-server/model"
	"github.com/surfswift213us/coinblesk-server/settings"
	storeaccount "github.com/surfswift213us/coinblesk-server/stores/account"
	"github.com/surfswift213us/coinblesk-server/stores/account/memory"
	"github.com/surfswift213us/coinblesk-server/ulogger"
)

func lifecycleSettings() *settings.Settings {
	return &settings.Settings{
		Channel: settings.ChannelSettings{
			MinimumLockDuration: 24 * time.Hour,
			CloseConfirmations:  6,
			CloseSweepInterval:  10 * time.Millisecond,
			BroadcastTimeout:    time.Second,
			ListenerPoolSize:    2,
			ListenerQueueSize:   8,
		},
	}
}

func newService(t *testing.T) (*Service, *memory.Memory, *chainwallet.Mock) {
	t.Helper()

	store := memory.New()
	wallet := chainwallet.NewMock()
	svc := New(ulogger.TestLogger{}, lifecycleSettings(), store, wallet)

	return svc, store, wallet
}

// rawChannelTx builds a parseable transaction spending a synthetic outpoint.
// The lifecycle never validates it, it only hashes and broadcasts it.
func rawChannelTx(t *testing.T, marker string) []byte {
	t.Helper()

	tx := bt.NewTx()

	prevTxID := hex.EncodeToString(append([]byte(marker), make([]byte, 32-len(marker))...))
	err := tx.From(prevTxID, 0, "76a914eb0bd5edba389198e73f8efabddfc61666969ff788ac", 100000)
	require.NoError(t, err)

	require.NoError(t, tx.AddOpReturnOutput([]byte(marker)))

	return tx.Bytes()
}

func pendingAccount(t *testing.T, store *memory.Memory, rawTx []byte, broadcastBefore int64) *model.Account {
	t.Helper()

	clientKey, err := bec.NewPrivateKey()
	require.NoError(t, err)

	serverKey, err := bec.NewPrivateKey()
	require.NoError(t, err)

	acc := &model.Account{
		ClientPublicKey:    clientKey.PubKey().Compressed(),
		ServerPrivateKey:   serverKey.Serialize(),
		ServerPublicKey:    serverKey.PubKey().Compressed(),
		ChannelTransaction: rawTx,
		BroadcastBefore:    broadcastBefore,
		TimeCreated:        time.Now().Unix(),
	}
	require.NoError(t, store.CreateAccount(context.Background(), acc))

	return acc
}

func eventTypes(t *testing.T, store *memory.Memory, clientPublicKey []byte) []string {
	t.Helper()

	events, err := store.GetEvents(context.Background(), clientPublicKey, 10)
	require.NoError(t, err)

	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}

	return types
}

func TestForceCloseLocksAndBroadcasts(t *testing.T) {
	svc, store, wallet := newService(t)
	ctx := context.Background()

	rawTx := rawChannelTx(t, "close-me")
	acc := pendingAccount(t, store, rawTx, time.Now().Add(48*time.Hour).Unix())

	require.NoError(t, svc.ForceClose(ctx, acc.ClientPublicKey))

	got, err := store.GetAccount(ctx, acc.ClientPublicKey)
	require.NoError(t, err)
	assert.True(t, got.Locked)
	assert.Equal(t, model.ChannelStateClosing, got.State())

	require.Len(t, wallet.Broadcasts(), 1)
	assert.Equal(t, rawTx, wallet.Broadcasts()[0])

	types := eventTypes(t, store, acc.ClientPublicKey)
	assert.Contains(t, types, storeaccount.EventForcedClose)
	assert.Contains(t, types, storeaccount.EventBroadcast)
}

func TestForceCloseWithoutChannelRejected(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	acc := pendingAccount(t, store, nil, 0)

	err := svc.ForceClose(ctx, acc.ClientPublicKey)
	require.Error(t, err)
	assert.Equal(t, errors.ERR_INVALID_REQUEST, errors.CodeOf(err))
}

func TestForceCloseIdempotentWhileLocked(t *testing.T) {
	svc, store, wallet := newService(t)
	ctx := context.Background()

	acc := pendingAccount(t, store, rawChannelTx(t, "once"), time.Now().Add(48*time.Hour).Unix())

	require.NoError(t, svc.ForceClose(ctx, acc.ClientPublicKey))
	require.NoError(t, svc.ForceClose(ctx, acc.ClientPublicKey))

	assert.Len(t, wallet.Broadcasts(), 1)
}

func TestForceCloseBroadcastFailureKeepsLock(t *testing.T) {
	svc, store, wallet := newService(t)
	ctx := context.Background()

	acc := pendingAccount(t, store, rawChannelTx(t, "failing"), time.Now().Add(48*time.Hour).Unix())
	wallet.SetBroadcastError(errors.NewProcessingError("node unreachable"))

	err := svc.ForceClose(ctx, acc.ClientPublicKey)
	require.Error(t, err)
	assert.Equal(t, errors.ERR_BROADCAST_FAILED, errors.CodeOf(err))

	// The inputs may already be spent on the network, so the lock must hold.
	got, err := store.GetAccount(ctx, acc.ClientPublicKey)
	require.NoError(t, err)
	assert.True(t, got.Locked)

	assert.Contains(t, eventTypes(t, store, acc.ClientPublicKey), storeaccount.EventBroadcastError)
}

func TestSweepClosesOnlyAccountsInsideWindow(t *testing.T) {
	svc, store, wallet := newService(t)
	ctx := context.Background()

	urgent := pendingAccount(t, store, rawChannelTx(t, "urgent"), time.Now().Add(12*time.Hour).Unix())
	relaxed := pendingAccount(t, store, rawChannelTx(t, "relaxed"), time.Now().Add(72*time.Hour).Unix())

	svc.Sweep(ctx)

	gotUrgent, err := store.GetAccount(ctx, urgent.ClientPublicKey)
	require.NoError(t, err)
	assert.True(t, gotUrgent.Locked)

	gotRelaxed, err := store.GetAccount(ctx, relaxed.ClientPublicKey)
	require.NoError(t, err)
	assert.False(t, gotRelaxed.Locked)

	require.Len(t, wallet.Broadcasts(), 1)
}

func TestHandleConfirmationBelowDepthIgnored(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	rawTx := rawChannelTx(t, "shallow")
	acc := pendingAccount(t, store, rawTx, time.Now().Add(12*time.Hour).Unix())
	require.NoError(t, svc.ForceClose(ctx, acc.ClientPublicKey))

	svc.HandleConfirmation(ctx, chainwallet.Confirmation{RawTx: rawTx, Confirmations: 3})

	got, err := store.GetAccount(ctx, acc.ClientPublicKey)
	require.NoError(t, err)
	assert.True(t, got.Locked)
	assert.NotEmpty(t, got.ChannelTransaction)
}

func TestHandleConfirmationSettlesMatchingAccount(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	rawTx := rawChannelTx(t, "settled")
	acc := pendingAccount(t, store, rawTx, time.Now().Add(12*time.Hour).Unix())
	other := pendingAccount(t, store, rawChannelTx(t, "other"), time.Now().Add(12*time.Hour).Unix())

	require.NoError(t, svc.ForceClose(ctx, acc.ClientPublicKey))

	svc.HandleConfirmation(ctx, chainwallet.Confirmation{RawTx: rawTx, Confirmations: 6})

	got, err := store.GetAccount(ctx, acc.ClientPublicKey)
	require.NoError(t, err)
	assert.False(t, got.Locked)
	assert.Empty(t, got.ChannelTransaction)
	assert.Zero(t, got.BroadcastBefore)
	assert.Equal(t, model.ChannelStateOpen, got.State())
	assert.Contains(t, eventTypes(t, store, acc.ClientPublicKey), storeaccount.EventSettled)

	gotOther, err := store.GetAccount(ctx, other.ClientPublicKey)
	require.NoError(t, err)
	assert.NotEmpty(t, gotOther.ChannelTransaction)
}

// TestHandleConfirmationMatchesMalleatedTransaction confirms a copy of the
// held transaction whose unlocking script was rewritten on the wire. The txid
// differs but the tracking hash does not, so settlement still triggers.
func TestHandleConfirmationMatchesMalleatedTransaction(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	rawTx := rawChannelTx(t, "malleated")
	acc := pendingAccount(t, store, rawTx, time.Now().Add(12*time.Hour).Unix())
	require.NoError(t, svc.ForceClose(ctx, acc.ClientPublicKey))

	tx, err := bt.NewTxFromBytes(rawTx)
	require.NoError(t, err)

	rewritten := &bscript.Script{}
	require.NoError(t, rewritten.AppendPushData([]byte{0x01}))
	tx.Inputs[0].UnlockingScript = rewritten
	require.NotEqual(t, rawTx, tx.Bytes())

	svc.HandleConfirmation(ctx, chainwallet.Confirmation{RawTx: tx.Bytes(), Confirmations: 6})

	got, err := store.GetAccount(ctx, acc.ClientPublicKey)
	require.NoError(t, err)
	assert.False(t, got.Locked)
	assert.Empty(t, got.ChannelTransaction)
}

// TestStartEndToEnd runs the sweep and listener the way the daemon does: an
// account past its close window is locked and broadcast by the sweep, then
// unlocked again when the wallet reports enough confirmations.
func TestStartEndToEnd(t *testing.T) {
	svc, store, wallet := newService(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rawTx := rawChannelTx(t, "e2e")
	acc := pendingAccount(t, store, rawTx, time.Now().Add(12*time.Hour).Unix())

	svc.Start(ctx)

	require.Eventually(t, func() bool {
		got, err := store.GetAccount(ctx, acc.ClientPublicKey)
		return err == nil && got.Locked
	}, 2*time.Second, 10*time.Millisecond, "sweep should force close the account")

	require.Len(t, wallet.Broadcasts(), 1)

	require.NoError(t, wallet.Confirm(rawTx, 6))

	require.Eventually(t, func() bool {
		got, err := store.GetAccount(ctx, acc.ClientPublicKey)
		return err == nil && !got.Locked && len(got.ChannelTransaction) == 0
	}, 2*time.Second, 10*time.Millisecond, "confirmation should settle the account")

	cancel()
	svc.Stop()
}
