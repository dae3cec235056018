package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// Event kinds retained by history queries. The tracker records
// further kinds (slot sets, restarts) that no query asks for.
const (
	KindUser   = "user"
	KindBot    = "bot"
	KindAction = "action"
)

// Event is one dialogue step as recorded by the conversation
// runtime. JSON tags follow the tracker wire format: action events
// carry their action name in "name", user events carry the NLU
// output in "parse_data".
type Event struct {
	Kind      string          `json:"event"`
	Timestamp float64         `json:"timestamp"`
	Text      string          `json:"text,omitempty"`
	Name      string          `json:"name,omitempty"`
	ParseData json.RawMessage `json:"parse_data,omitempty"`
}

// SenderEvent pairs an event with the sender it belongs to, for
// queries that span all senders of a tenant.
type SenderEvent struct {
	SenderID string
	Event
}

// UpsertSession returns the session row id for (tenant, sender),
// creating the row if needed.
func (db *DB) UpsertSession(tenant, sender string) (int64, error) {
	var id int64
	err := db.Update(func(tx *sql.Tx) error {
		var err error
		id, err = upsertSessionTx(tx, tenant, sender)
		return err
	})
	return id, err
}

func upsertSessionTx(tx *sql.Tx, tenant, sender string) (int64, error) {
	_, err := tx.Exec(`
		INSERT INTO sessions (tenant_id, sender_id) VALUES (?, ?)
		ON CONFLICT(tenant_id, sender_id) DO NOTHING`,
		tenant, sender)
	if err != nil {
		return 0, fmt.Errorf("upserting session %s/%s: %w", tenant, sender, err)
	}

	var id int64
	err = tx.QueryRow(
		"SELECT id FROM sessions WHERE tenant_id = ? AND sender_id = ?",
		tenant, sender,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("looking up session %s/%s: %w", tenant, sender, err)
	}
	return id, nil
}

// AppendEvents appends events to a sender's session in order,
// continuing from the current highest sequence number. The session
// row, sequence lookup, and inserts commit as one transaction.
func (db *DB) AppendEvents(tenant, sender string, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	return db.Update(func(tx *sql.Tx) error {
		sessionID, err := upsertSessionTx(tx, tenant, sender)
		if err != nil {
			return err
		}

		var next int
		if err := tx.QueryRow(
			"SELECT COALESCE(MAX(seq), -1) + 1 FROM events WHERE session_id = ?",
			sessionID,
		).Scan(&next); err != nil {
			return fmt.Errorf("finding next sequence: %w", err)
		}

		stmt, err := tx.Prepare(`
			INSERT INTO events (session_id, seq, kind, timestamp, text, name, parse_data)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing insert: %w", err)
		}
		defer stmt.Close()

		for i, ev := range events {
			var parseData any
			if len(ev.ParseData) > 0 {
				parseData = string(ev.ParseData)
			}
			_, err := stmt.Exec(
				sessionID, next+i, ev.Kind, ev.Timestamp,
				nullable(ev.Text), nullable(ev.Name), parseData,
			)
			if err != nil {
				return fmt.Errorf("inserting event %d: %w", next+i, err)
			}
		}
		return nil
	})
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Senders returns the sender ids of sessions holding at least one
// event at or after cutoff. No ordering is imposed; callers must
// not rely on the result order.
func (db *DB) Senders(
	ctx context.Context, tenant string, cutoff float64,
) ([]string, error) {
	rows, err := db.reader.QueryContext(ctx, `
		SELECT s.sender_id FROM sessions s
		WHERE s.tenant_id = ?
		  AND EXISTS (
			SELECT 1 FROM events e
			WHERE e.session_id = s.id AND e.timestamp >= ?)`,
		tenant, cutoff)
	if err != nil {
		return nil, fmt.Errorf("querying senders: %w", err)
	}
	defer rows.Close()

	var senders []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning sender: %w", err)
		}
		senders = append(senders, id)
	}
	return senders, rows.Err()
}

// kindPredicate builds an "e.kind IN (...)" clause and its args.
func kindPredicate(kinds []string) (string, []any) {
	placeholders := strings.Repeat(",?", len(kinds))[1:]
	args := make([]any, len(kinds))
	for i, k := range kinds {
		args[i] = k
	}
	return "e.kind IN (" + placeholders + ")", args
}

// SenderEvents returns one sender's events of the given kinds at or
// after cutoff, in recorded order.
func (db *DB) SenderEvents(
	ctx context.Context,
	tenant, sender string,
	cutoff float64,
	kinds []string,
) ([]Event, error) {
	pred, kindArgs := kindPredicate(kinds)
	args := append([]any{tenant, sender, cutoff}, kindArgs...)

	rows, err := db.reader.QueryContext(ctx, `
		SELECT e.kind, e.timestamp, e.text, e.name, e.parse_data
		FROM events e
		JOIN sessions s ON s.id = e.session_id
		WHERE s.tenant_id = ? AND s.sender_id = ?
		  AND e.timestamp >= ? AND `+pred+`
		ORDER BY e.seq`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("querying events for %s: %w", sender, err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		ev, _, err := scanEventRow(rows, false)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// TenantEvents returns the windowed events of the given kinds for
// every sender of a tenant, grouped by sender and in recorded order
// within each sender.
func (db *DB) TenantEvents(
	ctx context.Context,
	tenant string,
	cutoff float64,
	kinds []string,
) ([]SenderEvent, error) {
	pred, kindArgs := kindPredicate(kinds)
	args := append([]any{tenant, cutoff}, kindArgs...)

	rows, err := db.reader.QueryContext(ctx, `
		SELECT s.sender_id, e.kind, e.timestamp, e.text, e.name, e.parse_data
		FROM events e
		JOIN sessions s ON s.id = e.session_id
		WHERE s.tenant_id = ? AND e.timestamp >= ? AND `+pred+`
		ORDER BY s.id, e.seq`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("querying tenant events: %w", err)
	}
	defer rows.Close()

	var events []SenderEvent
	for rows.Next() {
		ev, sender, err := scanEventRow(rows, true)
		if err != nil {
			return nil, err
		}
		events = append(events, SenderEvent{SenderID: sender, Event: ev})
	}
	return events, rows.Err()
}

// scanEventRow scans one event row, optionally with a leading
// sender_id column.
func scanEventRow(rows *sql.Rows, withSender bool) (Event, string, error) {
	var (
		ev        Event
		sender    string
		text      sql.NullString
		name      sql.NullString
		parseData sql.NullString
	)
	dest := []any{&ev.Kind, &ev.Timestamp, &text, &name, &parseData}
	if withSender {
		dest = append([]any{&sender}, dest...)
	}
	if err := rows.Scan(dest...); err != nil {
		return Event{}, "", fmt.Errorf("scanning event: %w", err)
	}
	ev.Text = text.String
	ev.Name = name.String
	if parseData.Valid {
		ev.ParseData = json.RawMessage(parseData.String)
	}
	return ev, sender, nil
}
