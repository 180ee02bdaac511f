package sql

import (
	"context"
	"time"

	"github.com/surfswift213us/coinblesk-server/stores/account"
)

func (q *queries) AppendEvent(ctx context.Context, event *account.Event) error {
	_, err := q.db.ExecContext(ctx, `
	  INSERT INTO events (id, client_public_key, type, detail, amount, ts)
	  VALUES ($1, $2, $3, $4, $5, $6)
	`,
		event.ID,
		event.ClientPublicKey,
		event.Type,
		event.Detail,
		event.Amount,
		event.Timestamp.Unix(),
	)
	if err != nil {
		return mapSQLError(err, "failed to insert event")
	}

	return nil
}

func (q *queries) GetEvents(ctx context.Context, clientPublicKey []byte, limit int) ([]*account.Event, error) {
	rows, err := q.db.QueryContext(ctx, `
	  SELECT id, client_public_key, type, detail, amount, ts
	  FROM events
	  WHERE client_public_key = $1
	  ORDER BY ts DESC
	  LIMIT $2
	`, clientPublicKey, limit)
	if err != nil {
		return nil, mapSQLError(err, "failed to query events")
	}
	defer rows.Close()

	var events []*account.Event

	for rows.Next() {
		event := &account.Event{}

		var ts int64

		if err = rows.Scan(&event.ID, &event.ClientPublicKey, &event.Type, &event.Detail, &event.Amount, &ts); err != nil {
			return nil, mapSQLError(err, "failed to scan event")
		}

		event.Timestamp = time.Unix(ts, 0).UTC()

		events = append(events, event)
	}

	if err = rows.Err(); err != nil {
		return nil, mapSQLError(err, "failed to iterate events")
	}

	return events, nil
}
