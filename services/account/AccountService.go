// Package account manages client accounts and their time-locked addresses.
// Account creation is idempotent per client public key and every account gets
// its own fresh server key pair.
package account

import (
	"bytes"
	"context"
	"time"

	bec "github.com/bsv-blockchain/go-sdk/primitives/ec"

	"github.com/surfswift213us/coinblesk-server/chainwallet"
	"github.com/surfswift213us/coinblesk-server/errors"
	"github.com/surfswift213us/coinblesk-server/model"
	"github.com/surfswift213us/coinblesk-server/settings"
	storeaccount "github.com/surfswift213us/coinblesk-server/stores/account"
	"github.com/surfswift213us/coinblesk-server/ulogger"
)

type Service struct {
	logger   ulogger.Logger
	settings *settings.Settings
	store    storeaccount.Store
	wallet   chainwallet.Wallet
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

// CreateAccount registers clientPublicKey and returns its account. Calling it
// again for a known key returns the existing account with its original server
// key pair, so clients may retry freely.
func (s *Service) CreateAccount(ctx context.Context, clientPublicKey []byte) (*model.Account, error) {
	start := time.Now()
	defer func() {
		prometheusAccountCreate.Observe(time.Since(start).Seconds())
	}()

	if _, err := bec.ParsePubKey(clientPublicKey); err != nil {
		return nil, errors.NewInvalidArgumentError("client public key is not parseable", err)
	}

	if acc, err := s.store.GetAccount(ctx, clientPublicKey); err == nil {
		return acc, nil
	} else if errors.CodeOf(err) != errors.ERR_NOT_FOUND {
		return nil, err
	}

	serverKey, err := bec.NewPrivateKey()
	if err != nil {
		return nil, errors.NewProcessingError("failed to generate server key", err)
	}

	acc := &model.Account{
		ClientPublicKey:  clientPublicKey,
		ServerPrivateKey: serverKey.Serialize(),
		ServerPublicKey:  serverKey.PubKey().Compressed(),
		TimeCreated:      time.Now().Unix(),
	}

	if err = s.store.CreateAccount(ctx, acc); err != nil {
		// A concurrent create for the same key won the race. Return its
		// account so both callers see the same server key.
		if errors.CodeOf(err) == errors.ERR_STORAGE_CONFLICT {
			return s.store.GetAccount(ctx, clientPublicKey)
		}

		return nil, err
	}

	s.logger.Infof("created account for client %x", clientPublicKey)

	return acc, nil
}

// CreateTimeLockedAddress derives a new 2-of-2 time-locked address for the
// account. lockTime is an absolute unix time and must fall inside the
// configured window relative to now. Deriving the same (client, lockTime)
// twice yields the same address, which is returned rather than re-inserted.
func (s *Service) CreateTimeLockedAddress(ctx context.Context, clientPublicKey []byte, lockTime int64) (*model.TimeLockedAddress, error) {
	start := time.Now()
	defer func() {
		prometheusAddressCreate.Observe(time.Since(start).Seconds())
	}()

	acc, err := s.store.GetAccount(ctx, clientPublicKey)
	if err != nil {
		if errors.CodeOf(err) == errors.ERR_NOT_FOUND {
			return nil, errors.NewUnknownAccountError("no account for client %x", clientPublicKey)
		}

		return nil, err
	}

	now := time.Now()
	minLockTime := now.Add(time.Duration(s.settings.Channel.MinLockTimeSeconds) * time.Second).Unix()
	maxLockTime := now.AddDate(0, 0, s.settings.Channel.MaxLockTimeDays).Unix()

	if lockTime < minLockTime || lockTime > maxLockTime {
		return nil, errors.NewInvalidLockTimeError("lock time %d must be between %d and %d", lockTime, minLockTime, maxLockTime)
	}

	tla := model.NewTimeLockedAddress(clientPublicKey, acc.ServerPublicKey, lockTime)

	redeemScript, err := tla.RedeemScript()
	if err != nil {
		return nil, errors.NewProcessingError("failed to build redeem script", err)
	}

	hash, err := tla.Hash()
	if err != nil {
		return nil, errors.NewProcessingError("failed to hash redeem script", err)
	}

	rec := &storeaccount.AddressRecord{
		ClientPublicKey: clientPublicKey,
		AddressHash:     hash,
		RedeemScript:    *redeemScript,
		LockTime:        lockTime,
		TimeCreated:     now.Unix(),
	}

	if err = s.store.CreateAddress(ctx, rec); err != nil {
		// Same address derived before: the creation is idempotent.
		if errors.CodeOf(err) == errors.ERR_STORAGE_CONFLICT {
			return tla, nil
		}

		return nil, err
	}

	lockingScript, err := tla.LockingScript()
	if err != nil {
		return nil, errors.NewProcessingError("failed to build locking script", err)
	}

	if err = s.wallet.WatchScript(ctx, lockingScript); err != nil {
		return nil, errors.NewProcessingError("failed to watch address", err)
	}

	s.logger.Infof("created time-locked address %x for client %x, locked until %d", hash, clientPublicKey, lockTime)

	return tla, nil
}

// GetAccount returns the account for clientPublicKey or ErrUnknownAccount.
func (s *Service) GetAccount(ctx context.Context, clientPublicKey []byte) (*model.Account, error) {
	acc, err := s.store.GetAccount(ctx, clientPublicKey)
	if err != nil {
		if errors.CodeOf(err) == errors.ERR_NOT_FOUND {
			return nil, errors.NewUnknownAccountError("no account for client %x", clientPublicKey)
		}

		return nil, err
	}

	return acc, nil
}

// GetVirtualBalance returns the off-chain balance of an account.
func (s *Service) GetVirtualBalance(ctx context.Context, clientPublicKey []byte) (int64, error) {
	acc, err := s.GetAccount(ctx, clientPublicKey)
	if err != nil {
		return 0, err
	}

	return acc.VirtualBalance, nil
}

// GetTimeLockedAddresses lists the account's addresses, newest first.
func (s *Service) GetTimeLockedAddresses(ctx context.Context, clientPublicKey []byte) ([]*storeaccount.AddressRecord, error) {
	if _, err := s.GetAccount(ctx, clientPublicKey); err != nil {
		return nil, err
	}

	return s.store.GetAddresses(ctx, clientPublicKey)
}

// AllAccounts returns every account, oldest first.
func (s *Service) AllAccounts(ctx context.Context) ([]*model.Account, error) {
	return s.store.AllAccounts(ctx)
}

// PendingAccounts returns the accounts holding an unbroadcast channel
// transaction.
func (s *Service) PendingAccounts(ctx context.Context) ([]*model.Account, error) {
	return s.store.PendingAccounts(ctx)
}

// MoveVirtualBalance moves the whole virtual balance from one account to
// another, for clients migrating to a new key. Both accounts must exist and
// neither may be mid-close.
func (s *Service) MoveVirtualBalance(ctx context.Context, fromPublicKey, toPublicKey []byte) (int64, error) {
	if bytes.Equal(fromPublicKey, toPublicKey) {
		return 0, errors.NewInvalidRequestError("Sender and receiver must be different")
	}

	var moved int64

	err := s.store.WithTx(ctx, func(q storeaccount.Queries) error {
		from, err := q.GetAccount(ctx, fromPublicKey)
		if err != nil {
			if errors.CodeOf(err) == errors.ERR_NOT_FOUND {
				return errors.NewUnknownAccountError("no account for client %x", fromPublicKey)
			}

			return err
		}

		to, err := q.GetAccount(ctx, toPublicKey)
		if err != nil {
			if errors.CodeOf(err) == errors.ERR_NOT_FOUND {
				return errors.NewUnknownAccountError("Receiver is unknown to server")
			}

			return err
		}

		if from.Locked || to.Locked {
			return errors.NewChannelLockedError("Channel is locked")
		}

		moved = from.VirtualBalance
		to.VirtualBalance += from.VirtualBalance
		from.VirtualBalance = 0

		if err = q.UpdateAccount(ctx, from); err != nil {
			return err
		}

		return q.UpdateAccount(ctx, to)
	})
	if err != nil {
		return 0, err
	}

	s.logger.Infof("moved balance %d from %x to %x", moved, fromPublicKey, toPublicKey)

	return moved, nil
}

// DeleteAccount removes an account once it is empty: zero balance, no open
// channel and no addresses on record. Anything else must be settled or moved
// first.
func (s *Service) DeleteAccount(ctx context.Context, clientPublicKey []byte) error {
	return s.store.WithTx(ctx, func(q storeaccount.Queries) error {
		acc, err := q.GetAccount(ctx, clientPublicKey)
		if err != nil {
			if errors.CodeOf(err) == errors.ERR_NOT_FOUND {
				return errors.NewUnknownAccountError("no account for client %x", clientPublicKey)
			}

			return err
		}

		if acc.Locked || len(acc.ChannelTransaction) > 0 {
			return errors.NewChannelLockedError("Channel is locked")
		}

		if acc.VirtualBalance != 0 {
			return errors.NewInvalidRequestError("account %x still holds a balance of %d", clientPublicKey, acc.VirtualBalance)
		}

		addresses, err := q.GetAddresses(ctx, clientPublicKey)
		if err != nil {
			return err
		}

		if len(addresses) > 0 {
			return errors.NewInvalidRequestError("account %x still has %d time-locked addresses", clientPublicKey, len(addresses))
		}

		return q.DeleteAccount(ctx, clientPublicKey)
	})
}

// TotalVirtualBalance sums the balances of all accounts. The pot accountant
// compares it with the confirmed pot value.
func (s *Service) TotalVirtualBalance(ctx context.Context) (int64, error) {
	accounts, err := s.store.AllAccounts(ctx)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, acc := range accounts {
		total += acc.VirtualBalance
	}

	return total, nil
}
