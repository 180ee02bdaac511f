// Package account defines the persistence interface for accounts, their
// time-locked addresses and the append-only channel event log.
package account

import (
	"context"
	"time"

	"github.com/surfswift213us/coinblesk-server/model"
)

// AddressRecord is a stored time-locked address together with the account it
// belongs to. The address hash is unique across all accounts, so an input's
// P2SH hash resolves to exactly one record.
type AddressRecord struct {
	ClientPublicKey []byte
	AddressHash     []byte
	RedeemScript    []byte
	LockTime        int64
	TimeCreated     int64
}

// Event is one entry of the append-only channel audit log.
type Event struct {
	ID              string
	ClientPublicKey []byte
	Type            string
	Detail          string
	Amount          int64
	Timestamp       time.Time
}

// Event types recorded by the lifecycle and ledger services.
const (
	EventChannelUpdate  = "CHANNEL_UPDATE"
	EventTransfer       = "TRANSFER"
	EventForcedClose    = "FORCED_CLOSE"
	EventBroadcast      = "BROADCAST"
	EventBroadcastError = "BROADCAST_ERROR"
	EventSettled        = "SETTLED"
	EventPayout         = "PAYOUT"
)

// Queries is the operation set available both directly on a Store and inside
// a WithTx transaction.
type Queries interface {
	// CreateAccount inserts a new account. A second insert for the same
	// client public key returns ErrStorageConflict.
	CreateAccount(ctx context.Context, acc *model.Account) error

	// GetAccount returns the account for the client public key, or
	// ErrNotFound.
	GetAccount(ctx context.Context, clientPublicKey []byte) (*model.Account, error)

	// UpdateAccount persists the mutable account fields (balance, nonce,
	// lock flag, channel transaction, broadcast deadline).
	UpdateAccount(ctx context.Context, acc *model.Account) error

	// DeleteAccount removes an account and its addresses. ErrNotFound when
	// the account does not exist. Callers guard the business rules (zero
	// balance, no open channel) before deleting.
	DeleteAccount(ctx context.Context, clientPublicKey []byte) error

	// AllAccounts returns every account.
	AllAccounts(ctx context.Context) ([]*model.Account, error)

	// PendingAccounts returns the accounts holding a not yet broadcast
	// channel transaction.
	PendingAccounts(ctx context.Context) ([]*model.Account, error)

	// CreateAddress stores a derived time-locked address for an account.
	// Re-inserting the same address hash returns ErrStorageConflict.
	CreateAddress(ctx context.Context, rec *AddressRecord) error

	// GetAddresses returns all addresses of one account, newest first.
	GetAddresses(ctx context.Context, clientPublicKey []byte) ([]*AddressRecord, error)

	// GetAddressByHash resolves a P2SH address hash, or ErrNotFound.
	GetAddressByHash(ctx context.Context, addressHash []byte) (*AddressRecord, error)

	// AppendEvent appends to the audit log.
	AppendEvent(ctx context.Context, event *Event) error

	// GetEvents returns the newest events for an account, up to limit.
	GetEvents(ctx context.Context, clientPublicKey []byte, limit int) ([]*Event, error)
}

// Store is the persistence layer. WithTx runs fn inside one serializable
// transaction; fn's Queries touch only that transaction's state and the whole
// call either commits or rolls back. A serialization failure surfaces as
// ErrStorageConflict and is safe to retry.
type Store interface {
	Queries

	WithTx(ctx context.Context, fn func(q Queries) error) error

	Health(ctx context.Context) error
	Close() error
}
