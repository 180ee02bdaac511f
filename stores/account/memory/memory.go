// Package memory implements the account store backed by in-process maps. It
// is intended for tests and local development.
package memory

import (
	"context"
	"encoding/hex"
	"sort"
	"sync"

	"github.com/surfswift213us/coinblesk-server/errors"
	"github.com/surfswift213us/coinblesk-server/model"
	"github.com/surfswift213us/coinblesk-server/stores/account"
)

type state struct {
	accounts  map[string]*model.Account
	addresses map[string]*account.AddressRecord
	events    []*account.Event
}

func newState() *state {
	return &state{
		accounts:  make(map[string]*model.Account),
		addresses: make(map[string]*account.AddressRecord),
	}
}

type Memory struct {
	mu    sync.Mutex
	state *state
}

func New() *Memory {
	return &Memory{state: newState()}
}

func (m *Memory) CreateAccount(_ context.Context, acc *model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state.createAccount(acc)
}

func (m *Memory) GetAccount(_ context.Context, clientPublicKey []byte) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state.getAccount(clientPublicKey)
}

func (m *Memory) UpdateAccount(_ context.Context, acc *model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state.updateAccount(acc)
}

func (m *Memory) DeleteAccount(_ context.Context, clientPublicKey []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state.deleteAccount(clientPublicKey)
}

func (m *Memory) AllAccounts(_ context.Context) ([]*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state.allAccounts()
}

func (m *Memory) PendingAccounts(_ context.Context) ([]*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state.pendingAccounts()
}

func (m *Memory) CreateAddress(_ context.Context, rec *account.AddressRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state.createAddress(rec)
}

func (m *Memory) GetAddresses(_ context.Context, clientPublicKey []byte) ([]*account.AddressRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state.getAddresses(clientPublicKey)
}

func (m *Memory) GetAddressByHash(_ context.Context, addressHash []byte) (*account.AddressRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state.getAddressByHash(addressHash)
}

func (m *Memory) AppendEvent(_ context.Context, event *account.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state.appendEvent(event)
}

func (m *Memory) GetEvents(_ context.Context, clientPublicKey []byte, limit int) ([]*account.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state.getEvents(clientPublicKey, limit)
}

// WithTx runs fn against a copy of the state and adopts the copy only when fn
// succeeds, which gives the same all-or-nothing behavior as a serializable
// database transaction.
func (m *Memory) WithTx(_ context.Context, fn func(q account.Queries) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := m.state.clone()

	if err := fn(&txQueries{state: clone}); err != nil {
		return err
	}

	m.state = clone

	return nil
}

func (m *Memory) Health(_ context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

// txQueries adapts a state to the Queries interface for use inside WithTx,
// where the store mutex is already held.
type txQueries struct {
	state *state
}

func (t *txQueries) CreateAccount(_ context.Context, acc *model.Account) error {
	return t.state.createAccount(acc)
}

func (t *txQueries) GetAccount(_ context.Context, clientPublicKey []byte) (*model.Account, error) {
	return t.state.getAccount(clientPublicKey)
}

func (t *txQueries) UpdateAccount(_ context.Context, acc *model.Account) error {
	return t.state.updateAccount(acc)
}

func (t *txQueries) DeleteAccount(_ context.Context, clientPublicKey []byte) error {
	return t.state.deleteAccount(clientPublicKey)
}

func (t *txQueries) AllAccounts(_ context.Context) ([]*model.Account, error) {
	return t.state.allAccounts()
}

func (t *txQueries) PendingAccounts(_ context.Context) ([]*model.Account, error) {
	return t.state.pendingAccounts()
}

func (t *txQueries) CreateAddress(_ context.Context, rec *account.AddressRecord) error {
	return t.state.createAddress(rec)
}

func (t *txQueries) GetAddresses(_ context.Context, clientPublicKey []byte) ([]*account.AddressRecord, error) {
	return t.state.getAddresses(clientPublicKey)
}

func (t *txQueries) GetAddressByHash(_ context.Context, addressHash []byte) (*account.AddressRecord, error) {
	return t.state.getAddressByHash(addressHash)
}

func (t *txQueries) AppendEvent(_ context.Context, event *account.Event) error {
	return t.state.appendEvent(event)
}

func (t *txQueries) GetEvents(_ context.Context, clientPublicKey []byte, limit int) ([]*account.Event, error) {
	return t.state.getEvents(clientPublicKey, limit)
}

func (s *state) createAccount(acc *model.Account) error {
	key := hex.EncodeToString(acc.ClientPublicKey)
	if _, ok := s.accounts[key]; ok {
		return errors.NewStorageConflictError("account already exists")
	}

	s.accounts[key] = cloneAccount(acc)

	return nil
}

func (s *state) getAccount(clientPublicKey []byte) (*model.Account, error) {
	acc, ok := s.accounts[hex.EncodeToString(clientPublicKey)]
	if !ok {
		return nil, errors.NewNotFoundError("account does not exist")
	}

	return cloneAccount(acc), nil
}

func (s *state) updateAccount(acc *model.Account) error {
	key := hex.EncodeToString(acc.ClientPublicKey)
	if _, ok := s.accounts[key]; !ok {
		return errors.NewNotFoundError("account does not exist")
	}

	s.accounts[key] = cloneAccount(acc)

	return nil
}

func (s *state) deleteAccount(clientPublicKey []byte) error {
	key := hex.EncodeToString(clientPublicKey)
	if _, ok := s.accounts[key]; !ok {
		return errors.NewNotFoundError("account does not exist")
	}

	delete(s.accounts, key)

	for addrKey, rec := range s.addresses {
		if hex.EncodeToString(rec.ClientPublicKey) == key {
			delete(s.addresses, addrKey)
		}
	}

	return nil
}

func (s *state) allAccounts() ([]*model.Account, error) {
	accounts := make([]*model.Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		accounts = append(accounts, cloneAccount(acc))
	}

	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].TimeCreated < accounts[j].TimeCreated
	})

	return accounts, nil
}

func (s *state) pendingAccounts() ([]*model.Account, error) {
	var accounts []*model.Account

	for _, acc := range s.accounts {
		if len(acc.ChannelTransaction) > 0 {
			accounts = append(accounts, cloneAccount(acc))
		}
	}

	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].BroadcastBefore < accounts[j].BroadcastBefore
	})

	return accounts, nil
}

func (s *state) createAddress(rec *account.AddressRecord) error {
	key := hex.EncodeToString(rec.AddressHash)
	if _, ok := s.addresses[key]; ok {
		return errors.NewStorageConflictError("address already exists")
	}

	s.addresses[key] = cloneAddress(rec)

	return nil
}

func (s *state) getAddresses(clientPublicKey []byte) ([]*account.AddressRecord, error) {
	var records []*account.AddressRecord

	key := hex.EncodeToString(clientPublicKey)

	for _, rec := range s.addresses {
		if hex.EncodeToString(rec.ClientPublicKey) == key {
			records = append(records, cloneAddress(rec))
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].TimeCreated > records[j].TimeCreated
	})

	return records, nil
}

func (s *state) getAddressByHash(addressHash []byte) (*account.AddressRecord, error) {
	rec, ok := s.addresses[hex.EncodeToString(addressHash)]
	if !ok {
		return nil, errors.NewNotFoundError("address does not exist")
	}

	return cloneAddress(rec), nil
}

func (s *state) appendEvent(event *account.Event) error {
	clone := *event
	s.events = append(s.events, &clone)

	return nil
}

func (s *state) getEvents(clientPublicKey []byte, limit int) ([]*account.Event, error) {
	key := hex.EncodeToString(clientPublicKey)

	var events []*account.Event

	// Newest first.
	for i := len(s.events) - 1; i >= 0 && len(events) < limit; i-- {
		if hex.EncodeToString(s.events[i].ClientPublicKey) == key {
			clone := *s.events[i]
			events = append(events, &clone)
		}
	}

	return events, nil
}

func (s *state) clone() *state {
	clone := newState()

	for key, acc := range s.accounts {
		clone.accounts[key] = cloneAccount(acc)
	}

	for key, rec := range s.addresses {
		clone.addresses[key] = cloneAddress(rec)
	}

	clone.events = append(clone.events, s.events...)

	return clone
}

func cloneAccount(acc *model.Account) *model.Account {
	clone := *acc
	clone.ClientPublicKey = append([]byte(nil), acc.ClientPublicKey...)
	clone.ServerPrivateKey = append([]byte(nil), acc.ServerPrivateKey...)
	clone.ServerPublicKey = append([]byte(nil), acc.ServerPublicKey...)
	clone.ChannelTransaction = append([]byte(nil), acc.ChannelTransaction...)

	return &clone
}

func cloneAddress(rec *account.AddressRecord) *account.AddressRecord {
	clone := *rec
	clone.ClientPublicKey = append([]byte(nil), rec.ClientPublicKey...)
	clone.AddressHash = append([]byte(nil), rec.AddressHash...)
	clone.RedeemScript = append([]byte(nil), rec.RedeemScript...)

	return &clone
}
