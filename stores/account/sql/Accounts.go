package sql

import (
	"context"
	"database/sql"

	"github.com/surfswift213us/coinblesk-server/errors"
	"github.com/surfswift213us/coinblesk-server/model"
)

const accountColumns = `
	 client_public_key
	,server_private_key
	,server_public_key
	,virtual_balance
	,nonce
	,locked
	,channel_tx
	,broadcast_before
	,time_created
`

func (q *queries) CreateAccount(ctx context.Context, acc *model.Account) error {
	_, err := q.db.ExecContext(ctx, `
	  INSERT INTO accounts (client_public_key, server_private_key, server_public_key, virtual_balance, nonce, locked, channel_tx, broadcast_before, time_created)
	  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		acc.ClientPublicKey,
		acc.ServerPrivateKey,
		acc.ServerPublicKey,
		acc.VirtualBalance,
		acc.Nonce,
		acc.Locked,
		acc.ChannelTransaction,
		acc.BroadcastBefore,
		acc.TimeCreated,
	)
	if err != nil {
		return mapSQLError(err, "failed to insert account")
	}

	return nil
}

func (q *queries) GetAccount(ctx context.Context, clientPublicKey []byte) (*model.Account, error) {
	row := q.db.QueryRowContext(ctx, `
	  SELECT `+accountColumns+`
	  FROM accounts
	  WHERE client_public_key = $1
	`, clientPublicKey)

	return scanAccount(row)
}

func (q *queries) UpdateAccount(ctx context.Context, acc *model.Account) error {
	res, err := q.db.ExecContext(ctx, `
	  UPDATE accounts
	  SET virtual_balance = $1
	     ,nonce = $2
	     ,locked = $3
	     ,channel_tx = $4
	     ,broadcast_before = $5
	  WHERE client_public_key = $6
	`,
		acc.VirtualBalance,
		acc.Nonce,
		acc.Locked,
		acc.ChannelTransaction,
		acc.BroadcastBefore,
		acc.ClientPublicKey,
	)
	if err != nil {
		return mapSQLError(err, "failed to update account")
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return mapSQLError(err, "failed to read affected rows")
	}

	if rows == 0 {
		return errors.NewNotFoundError("account does not exist")
	}

	return nil
}

func (q *queries) DeleteAccount(ctx context.Context, clientPublicKey []byte) error {
	if _, err := q.db.ExecContext(ctx, `
	  DELETE FROM addresses
	  WHERE client_public_key = $1
	`, clientPublicKey); err != nil {
		return mapSQLError(err, "failed to delete addresses")
	}

	res, err := q.db.ExecContext(ctx, `
	  DELETE FROM accounts
	  WHERE client_public_key = $1
	`, clientPublicKey)
	if err != nil {
		return mapSQLError(err, "failed to delete account")
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return mapSQLError(err, "failed to read affected rows")
	}

	if rows == 0 {
		return errors.NewNotFoundError("account does not exist")
	}

	return nil
}

func (q *queries) AllAccounts(ctx context.Context) ([]*model.Account, error) {
	rows, err := q.db.QueryContext(ctx, `
	  SELECT `+accountColumns+`
	  FROM accounts
	  ORDER BY time_created ASC
	`)
	if err != nil {
		return nil, mapSQLError(err, "failed to query accounts")
	}
	defer rows.Close()

	return scanAccounts(rows)
}

// PendingAccounts returns accounts holding a channel transaction that has
// not been broadcast yet.
func (q *queries) PendingAccounts(ctx context.Context) ([]*model.Account, error) {
	rows, err := q.db.QueryContext(ctx, `
	  SELECT `+accountColumns+`
	  FROM accounts
	  WHERE channel_tx IS NOT NULL AND LENGTH(channel_tx) > 0
	  ORDER BY broadcast_before ASC
	`)
	if err != nil {
		return nil, mapSQLError(err, "failed to query pending accounts")
	}
	defer rows.Close()

	return scanAccounts(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*model.Account, error) {
	acc := &model.Account{}

	err := row.Scan(
		&acc.ClientPublicKey,
		&acc.ServerPrivateKey,
		&acc.ServerPublicKey,
		&acc.VirtualBalance,
		&acc.Nonce,
		&acc.Locked,
		&acc.ChannelTransaction,
		&acc.BroadcastBefore,
		&acc.TimeCreated,
	)
	if err != nil {
		return nil, mapSQLError(err, "failed to scan account")
	}

	return acc, nil
}

func scanAccounts(rows *sql.Rows) ([]*model.Account, error) {
	var accounts []*model.Account

	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}

		accounts = append(accounts, acc)
	}

	if err := rows.Err(); err != nil {
		return nil, mapSQLError(err, "failed to iterate accounts")
	}

	return accounts, nil
}
