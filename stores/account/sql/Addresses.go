package sql

import (
	"context"

	"github.com/surfswift213us/coinblesk-server/stores/account"
)

func (q *queries) CreateAddress(ctx context.Context, rec *account.AddressRecord) error {
	_, err := q.db.ExecContext(ctx, `
	  INSERT INTO addresses (address_hash, client_public_key, redeem_script, lock_time, time_created)
	  VALUES ($1, $2, $3, $4, $5)
	`,
		rec.AddressHash,
		rec.ClientPublicKey,
		rec.RedeemScript,
		rec.LockTime,
		rec.TimeCreated,
	)
	if err != nil {
		return mapSQLError(err, "failed to insert address")
	}

	return nil
}

func (q *queries) GetAddresses(ctx context.Context, clientPublicKey []byte) ([]*account.AddressRecord, error) {
	rows, err := q.db.QueryContext(ctx, `
	  SELECT address_hash, client_public_key, redeem_script, lock_time, time_created
	  FROM addresses
	  WHERE client_public_key = $1
	  ORDER BY time_created DESC
	`, clientPublicKey)
	if err != nil {
		return nil, mapSQLError(err, "failed to query addresses")
	}
	defer rows.Close()

	var records []*account.AddressRecord

	for rows.Next() {
		rec := &account.AddressRecord{}

		if err = rows.Scan(&rec.AddressHash, &rec.ClientPublicKey, &rec.RedeemScript, &rec.LockTime, &rec.TimeCreated); err != nil {
			return nil, mapSQLError(err, "failed to scan address")
		}

		records = append(records, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, mapSQLError(err, "failed to iterate addresses")
	}

	return records, nil
}

func (q *queries) GetAddressByHash(ctx context.Context, addressHash []byte) (*account.AddressRecord, error) {
	rec := &account.AddressRecord{}

	err := q.db.QueryRowContext(ctx, `
	  SELECT address_hash, client_public_key, redeem_script, lock_time, time_created
	  FROM addresses
	  WHERE address_hash = $1
	`, addressHash).Scan(&rec.AddressHash, &rec.ClientPublicKey, &rec.RedeemScript, &rec.LockTime, &rec.TimeCreated)
	if err != nil {
		return nil, mapSQLError(err, "failed to scan address")
	}

	return rec, nil
}
