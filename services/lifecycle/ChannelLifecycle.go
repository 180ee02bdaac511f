// Package lifecycle drives channels through their states: it forces close on
// accounts whose broadcast deadline approaches, broadcasts the held channel
// transaction and settles the account once the transaction is buried deep
// enough on chain.
package lifecycle

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"github.com/surfswift213us/coinblesk-server/chainwallet"
	"github.com/surfswift213us/coinblesk-server/errors"
	"github.com/surfswift213us/coinblesk-server/model"
	"github.com/surfswift213us/coinblesk-server/settings"
	storeaccount "github.com/surfswift213us/coinblesk-server/stores/account"
	"github.com/surfswift213us/coinblesk-server/ulogger"
	"github.com/surfswift213us/coinblesk-server/util"
)

const (
	eventForceClose = "force_close"
	eventSettle     = "settle"
)

// newChannelFSM builds the state machine guarding channel transitions,
// starting from the state derived off the account fields. The machine itself
// is throwaway, the account row is the source of truth.
func newChannelFSM(initial string) *fsm.FSM {
	return fsm.NewFSM(
		initial,
		fsm.Events{
			{
				Name: eventForceClose,
				Src:  []string{model.ChannelStatePending.String()},
				Dst:  model.ChannelStateClosing.String(),
			},
			{
				Name: eventSettle,
				Src: []string{
					model.ChannelStatePending.String(),
					model.ChannelStateClosing.String(),
				},
				Dst: model.ChannelStateClosed.String(),
			},
		},
		fsm.Callbacks{},
	)
}

// Service watches pending channels and walks them through forced close and
// settlement. It implements the ledger's CloseTrigger.
type Service struct {
	logger   ulogger.Logger
	settings *settings.Settings
	store    storeaccount.Store
	wallet   chainwallet.Wallet

	pool *util.CallerRunsPool
	wg   sync.WaitGroup
}

func New(logger ulogger.Logger, tSettings *settings.Settings, store storeaccount.Store, wallet chainwallet.Wallet) *Service {
	initPrometheusMetrics()

	return &Service{
		logger:   logger,
		settings: tSettings,
		store:    store,
		wallet:   wallet,
	}
}

// Start launches the periodic close sweep and the confirmation listener. Both
// stop when ctx is cancelled; Stop waits for them.
func (s *Service) Start(ctx context.Context) {
	s.pool = util.NewCallerRunsPool(s.settings.Channel.ListenerPoolSize, s.settings.Channel.ListenerQueueSize)

	s.wg.Add(2)

	go func() {
		defer s.wg.Done()
		s.sweepLoop(ctx)
	}()

	go func() {
		defer s.wg.Done()
		s.listen(ctx)
	}()
}

// Stop waits for the sweep and listener goroutines and drains the worker
// pool. Call after cancelling the Start context.
func (s *Service) Stop() {
	s.wg.Wait()

	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Service) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.settings.Channel.CloseSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep force-closes every pending account whose broadcast deadline is within
// the minimum lock duration. Past that point a new channel transaction could
// not be accepted anyway, so the held one must go on chain while its inputs
// are still safe.
func (s *Service) Sweep(ctx context.Context) {
	start := time.Now()
	defer func() {
		prometheusSweep.Observe(float64(time.Since(start).Microseconds()) / 1_000_000)
	}()

	accounts, err := s.store.PendingAccounts(ctx)
	if err != nil {
		s.logger.Errorf("[Sweep] failed to list pending accounts: %v", err)
		return
	}

	for _, acc := range accounts {
		if acc.Locked || acc.BroadcastBefore == 0 {
			continue
		}

		deadline := time.Unix(acc.BroadcastBefore, 0)
		if time.Until(deadline) > s.settings.Channel.MinimumLockDuration {
			continue
		}

		s.logger.Warnf("[Sweep] account %x deadline %s inside close window, forcing close",
			acc.ClientPublicKey, deadline.UTC().Format(time.RFC3339))

		if err = s.ForceClose(ctx, acc.ClientPublicKey); err != nil {
			s.logger.Errorf("[Sweep] forced close of account %x failed: %v", acc.ClientPublicKey, err)
		}
	}
}

// ForceClose locks the account and broadcasts its held channel transaction.
// Locking and the audit entry commit before the broadcast is attempted, so a
// crash between the two leaves a locked account for the next sweep rather
// than an unlocked account with spent inputs.
//
// A broadcast failure keeps the account locked: the transaction may already
// have left this node, so rolling back the lock could let a later channel
// update double spend the inputs. The error is recorded in the event log for
// the operator.
func (s *Service) ForceClose(ctx context.Context, clientPublicKey []byte) error {
	start := time.Now()
	defer func() {
		prometheusForceClose.Observe(float64(time.Since(start).Microseconds()) / 1_000_000)
	}()

	var rawTx []byte

	err := s.store.WithTx(ctx, func(q storeaccount.Queries) error {
		acc, err := q.GetAccount(ctx, clientPublicKey)
		if err != nil {
			return err
		}

		if acc.Locked {
			// Already closing, nothing to do.
			return nil
		}

		machine := newChannelFSM(acc.State().String())
		if err = machine.Event(ctx, eventForceClose); err != nil {
			return errors.NewInvalidRequestError("account %x has no channel to close", clientPublicKey, err)
		}

		acc.Locked = true
		if err = q.UpdateAccount(ctx, acc); err != nil {
			return err
		}

		if err = q.AppendEvent(ctx, &storeaccount.Event{
			ID:              uuid.New().String(),
			ClientPublicKey: clientPublicKey,
			Type:            storeaccount.EventForcedClose,
			Detail:          "channel locked for settlement",
			Timestamp:       time.Now(),
		}); err != nil {
			return err
		}

		rawTx = acc.ChannelTransaction

		return nil
	})
	if err != nil {
		return err
	}

	if len(rawTx) == 0 {
		return nil
	}

	bctx, cancel := context.WithTimeout(ctx, s.settings.Channel.BroadcastTimeout)
	defer cancel()

	if err = s.wallet.Broadcast(bctx, rawTx); err != nil {
		s.logger.Errorf("[ForceClose] broadcast for account %x failed: %v", clientPublicKey, err)

		if eventErr := s.store.AppendEvent(ctx, &storeaccount.Event{
			ID:              uuid.New().String(),
			ClientPublicKey: clientPublicKey,
			Type:            storeaccount.EventBroadcastError,
			Detail:          err.Error(),
			Timestamp:       time.Now(),
		}); eventErr != nil {
			s.logger.Errorf("[ForceClose] failed to record broadcast error for account %x: %v", clientPublicKey, eventErr)
		}

		return errors.NewBroadcastFailedError("failed to broadcast channel transaction for account %x", clientPublicKey, err)
	}

	s.logger.Infof("[ForceClose] channel transaction for account %x broadcast", clientPublicKey)

	return s.store.AppendEvent(ctx, &storeaccount.Event{
		ID:              uuid.New().String(),
		ClientPublicKey: clientPublicKey,
		Type:            storeaccount.EventBroadcast,
		Detail:          "channel transaction broadcast",
		Timestamp:       time.Now(),
	})
}

func (s *Service) listen(ctx context.Context) {
	for confirmation := range s.wallet.Subscribe(ctx) {
		confirmation := confirmation

		s.pool.Submit(func() {
			s.HandleConfirmation(ctx, confirmation)
		})
	}
}

// HandleConfirmation settles every account whose held channel transaction
// matches the confirmed one. Matching is by tracking hash, not txid, so a
// malleated signature on the wire cannot hide a settlement.
func (s *Service) HandleConfirmation(ctx context.Context, confirmation chainwallet.Confirmation) {
	if confirmation.Confirmations < s.settings.Channel.CloseConfirmations {
		return
	}

	hash, err := model.TrackingHashFromBytes(confirmation.RawTx)
	if err != nil {
		s.logger.Debugf("[HandleConfirmation] ignoring unparseable transaction: %v", err)
		return
	}

	accounts, err := s.store.PendingAccounts(ctx)
	if err != nil {
		s.logger.Errorf("[HandleConfirmation] failed to list pending accounts: %v", err)
		return
	}

	for _, acc := range accounts {
		stored, err := model.TrackingHashFromBytes(acc.ChannelTransaction)
		if err != nil {
			s.logger.Errorf("[HandleConfirmation] stored channel transaction of account %x is corrupt: %v",
				acc.ClientPublicKey, err)
			continue
		}

		if !bytes.Equal(stored, hash) {
			continue
		}

		if err = s.settle(ctx, acc.ClientPublicKey, hash, confirmation.Confirmations); err != nil {
			s.logger.Errorf("[HandleConfirmation] failed to settle account %x: %v", acc.ClientPublicKey, err)
		}
	}
}

func (s *Service) settle(ctx context.Context, clientPublicKey, trackingHash []byte, confirmations uint32) error {
	return s.store.WithTx(ctx, func(q storeaccount.Queries) error {
		acc, err := q.GetAccount(ctx, clientPublicKey)
		if err != nil {
			return err
		}

		if len(acc.ChannelTransaction) == 0 {
			return nil
		}

		// The held transaction may have been replaced by a newer update since
		// the match outside the transaction, so match again on the row we hold.
		stored, err := model.TrackingHashFromBytes(acc.ChannelTransaction)
		if err != nil {
			return err
		}

		if !bytes.Equal(stored, trackingHash) {
			return nil
		}

		machine := newChannelFSM(acc.State().String())
		if err = machine.Event(ctx, eventSettle); err != nil {
			return errors.NewInvalidRequestError("account %x cannot settle from state %s", clientPublicKey, acc.State(), err)
		}

		acc.ChannelTransaction = nil
		acc.BroadcastBefore = 0
		acc.Locked = false

		if err = q.UpdateAccount(ctx, acc); err != nil {
			return err
		}

		s.logger.Infof("[settle] account %x settled at depth %d", clientPublicKey, confirmations)

		return q.AppendEvent(ctx, &storeaccount.Event{
			ID:              uuid.New().String(),
			ClientPublicKey: clientPublicKey,
			Type:            storeaccount.EventSettled,
			Detail:          "channel transaction confirmed",
			Timestamp:       time.Now(),
		})
	})
}
