// Package ledger holds the virtual balances: nonce-guarded transfers between
// accounts and the atomic commit of validated channel updates. Every mutation
// runs inside one serializable store transaction, retried on conflict, so
// concurrent requests against the same account serialize instead of losing
// updates.
package ledger

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/surfswift213us/coinblesk-server/errors"
	"github.com/surfswift213us/coinblesk-server/model"
	"github.com/surfswift213us/coinblesk-server/services/validator"
	"github.com/surfswift213us/coinblesk-server/settings"
	storeaccount "github.com/surfswift213us/coinblesk-server/stores/account"
	"github.com/surfswift213us/coinblesk-server/ulogger"
	"github.com/surfswift213us/coinblesk-server/util/retry"
)

// CloseTrigger starts a forced close for an account. Implemented by the
// lifecycle manager and wired in after construction to break the dependency
// cycle between ledger and lifecycle.
type CloseTrigger interface {
	ForceClose(ctx context.Context, clientPublicKey []byte) error
}

// TransferResult reports the outcome of a virtual transfer. The server
// private keys let the caller co-sign receipts for both parties.
type TransferResult struct {
	SenderBalance            int64
	ReceiverBalance          int64
	SenderServerPrivateKey   []byte
	ReceiverServerPrivateKey []byte
}

// ChannelUpdateResult reports an accepted channel update.
type ChannelUpdateResult struct {
	// SignedTransaction is the fully co-signed channel transaction now held
	// for this account.
	SignedTransaction []byte

	// BroadcastBefore is the forced-settlement deadline.
	BroadcastBefore int64

	// ReceiverBalance is the receiver's balance after crediting, zero for an
	// external settlement.
	ReceiverBalance int64
}

type Service struct {
	logger    ulogger.Logger
	settings  *settings.Settings
	store     storeaccount.Store
	validator *validator.ChannelValidator
	closer    CloseTrigger
}

func New(logger ulogger.Logger, tSettings *settings.Settings, store storeaccount.Store, v *validator.ChannelValidator) *Service {
	initPrometheusMetrics()

	return &Service{
		logger:    logger,
		settings:  tSettings,
		store:     store,
		validator: v,
	}
}

// SetCloseTrigger wires the lifecycle manager in. Must be called before any
// external settlement is processed.
func (s *Service) SetCloseTrigger(c CloseTrigger) {
	s.closer = c
}

// Transfer moves virtual balance from the request's sender to its receiver.
// The request signature is checked before anything else; the nonce makes a
// replay of an accepted request fail with an invalid-nonce error.
func (s *Service) Transfer(ctx context.Context, req *model.PaymentRequest) (*TransferResult, error) {
	start := time.Now()
	defer func() {
		prometheusTransfer.Observe(time.Since(start).Seconds())
	}()

	if err := req.VerifySignature(); err != nil {
		return nil, err
	}

	var result *TransferResult

	err := s.withConflictRetry(ctx, func() error {
		return s.store.WithTx(ctx, func(q storeaccount.Queries) error {
			var err error
			result, err = s.transferTx(ctx, q, req)

			return err
		})
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Service) transferTx(ctx context.Context, q storeaccount.Queries, req *model.PaymentRequest) (*TransferResult, error) {
	if bytes.Equal(req.SenderPublicKey, req.ReceiverPublicKey) {
		return nil, errors.NewInvalidRequestError("Sender and receiver must be different")
	}

	if req.Amount < 1 {
		return nil, errors.NewNonPositiveAmountError("Can't send zero or negative amount")
	}

	sender, err := q.GetAccount(ctx, req.SenderPublicKey)
	if err != nil {
		if errors.CodeOf(err) == errors.ERR_NOT_FOUND {
			return nil, errors.NewUnknownAccountError("no account for sender %x", req.SenderPublicKey)
		}

		return nil, err
	}

	receiver, err := q.GetAccount(ctx, req.ReceiverPublicKey)
	if err != nil {
		if errors.CodeOf(err) == errors.ERR_NOT_FOUND {
			return nil, errors.NewUnknownAccountError("Receiver is unknown to server")
		}

		return nil, err
	}

	if sender.Locked {
		return nil, errors.NewChannelLockedError("Channel is locked")
	}

	if req.Nonce <= sender.Nonce {
		return nil, errors.NewInvalidNonceError("Invalid nonce")
	}

	if req.Amount > sender.VirtualBalance {
		return nil, errors.NewInsufficientFundsError("insufficient funds: %d requested but %d available", req.Amount, sender.VirtualBalance)
	}

	sender.VirtualBalance -= req.Amount
	sender.Nonce = req.Nonce
	receiver.VirtualBalance += req.Amount

	if err = q.UpdateAccount(ctx, sender); err != nil {
		return nil, err
	}

	if err = q.UpdateAccount(ctx, receiver); err != nil {
		return nil, err
	}

	if err = q.AppendEvent(ctx, &storeaccount.Event{
		ID:              uuid.New().String(),
		ClientPublicKey: sender.ClientPublicKey,
		Type:            storeaccount.EventTransfer,
		Detail:          "virtual transfer",
		Amount:          req.Amount,
		Timestamp:       time.Now(),
	}); err != nil {
		return nil, err
	}

	return &TransferResult{
		SenderBalance:            sender.VirtualBalance,
		ReceiverBalance:          receiver.VirtualBalance,
		SenderServerPrivateKey:   sender.ServerPrivateKey,
		ReceiverServerPrivateKey: receiver.ServerPrivateKey,
	}, nil
}

// ApplyChannelUpdate validates and commits a channel transaction. A request
// with no receiver and amount zero is an external settlement: the signed
// transaction is stored and the channel immediately forced closed. Any other
// request additionally credits the receiver's virtual balance by the
// validated pot delta.
func (s *Service) ApplyChannelUpdate(ctx context.Context, req *model.PaymentRequest) (*ChannelUpdateResult, error) {
	start := time.Now()
	defer func() {
		prometheusChannelUpdate.Observe(time.Since(start).Seconds())
	}()

	if err := req.VerifySignature(); err != nil {
		return nil, err
	}

	external := len(req.ReceiverPublicKey) == 0 && req.Amount == 0

	var result *ChannelUpdateResult

	err := s.withConflictRetry(ctx, func() error {
		return s.store.WithTx(ctx, func(q storeaccount.Queries) error {
			var err error
			result, err = s.channelUpdateTx(ctx, q, req, external)

			return err
		})
	})
	if err != nil {
		return nil, err
	}

	if external {
		if err = s.closer.ForceClose(ctx, req.SenderPublicKey); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func (s *Service) channelUpdateTx(ctx context.Context, q storeaccount.Queries, req *model.PaymentRequest, external bool) (*ChannelUpdateResult, error) {
	sender, err := q.GetAccount(ctx, req.SenderPublicKey)
	if err != nil {
		if errors.CodeOf(err) == errors.ERR_NOT_FOUND {
			return nil, errors.NewUnknownAccountError("no account for sender %x", req.SenderPublicKey)
		}

		return nil, err
	}

	if sender.Locked {
		return nil, errors.NewChannelLockedError("Channel is locked")
	}

	var receiver *model.Account

	if !external {
		if bytes.Equal(req.SenderPublicKey, req.ReceiverPublicKey) {
			return nil, errors.NewInvalidRequestError("Sender and receiver must be different")
		}

		receiver, err = q.GetAccount(ctx, req.ReceiverPublicKey)
		if err != nil {
			if errors.CodeOf(err) == errors.ERR_NOT_FOUND {
				return nil, errors.NewUnknownAccountError("Receiver is unknown to server")
			}

			return nil, err
		}

		if req.Nonce <= sender.Nonce {
			return nil, errors.NewInvalidNonceError("Invalid nonce")
		}
	}

	validated, err := s.validator.ValidateChannelTransaction(ctx, q, sender, req.Transaction, req.Amount, !external)
	if err != nil {
		return nil, err
	}

	sender.ChannelTransaction = validated.SignedTx.Bytes()
	sender.BroadcastBefore = validated.EarliestDeadline

	result := &ChannelUpdateResult{
		SignedTransaction: sender.ChannelTransaction,
		BroadcastBefore:   sender.BroadcastBefore,
	}

	if !external {
		sender.Nonce = req.Nonce
		receiver.VirtualBalance += validated.PotDelta
		result.ReceiverBalance = receiver.VirtualBalance

		if err = q.UpdateAccount(ctx, receiver); err != nil {
			return nil, err
		}
	}

	if err = q.UpdateAccount(ctx, sender); err != nil {
		return nil, err
	}

	if err = q.AppendEvent(ctx, &storeaccount.Event{
		ID:              uuid.New().String(),
		ClientPublicKey: sender.ClientPublicKey,
		Type:            storeaccount.EventChannelUpdate,
		Detail:          "channel transaction accepted",
		Amount:          validated.PotDelta,
		Timestamp:       time.Now(),
	}); err != nil {
		return nil, err
	}

	return result, nil
}

// withConflictRetry retries f on storage serialization conflicts up to the
// configured bound. Validation errors pass through on the first attempt.
func (s *Service) withConflictRetry(ctx context.Context, f func() error) error {
	attempts := s.settings.Channel.TxRetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error

	for i := 0; i < attempts; i++ {
		if err = f(); err == nil {
			return nil
		}

		if errors.CodeOf(err) != errors.ERR_STORAGE_CONFLICT {
			return err
		}

		if i < attempts-1 {
			s.logger.Debugf("retrying ledger transaction after conflict (attempt %d): %v", i+1, err)

			if sleepErr := retry.BackoffAndSleep(ctx, i, 1, 10*time.Millisecond); sleepErr != nil {
				return sleepErr
			}
		}
	}

	return err
}
