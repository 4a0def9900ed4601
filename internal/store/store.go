// Package store persists telephony activity in a local SQLite database:
// outbound/inbound messages, owned phone numbers, and calls. It backs the
// message-history fallback for vendors without a list endpoint and survives
// provider re-initialization.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/prophone/prophone/internal/telephony"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id                  TEXT PRIMARY KEY,
	to_phone            TEXT NOT NULL,
	from_phone          TEXT NOT NULL DEFAULT '',
	body                TEXT NOT NULL,
	direction           TEXT NOT NULL DEFAULT 'outbound',
	provider            TEXT NOT NULL,
	provider_message_id TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL DEFAULT 'pending',
	error_message       TEXT NOT NULL DEFAULT '',
	created_at          TEXT NOT NULL,
	updated_at          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_to_phone ON messages(to_phone);
CREATE INDEX IF NOT EXISTS idx_messages_provider_message_id ON messages(provider_message_id);

CREATE TABLE IF NOT EXISTS numbers (
	number        TEXT PRIMARY KEY,
	provider      TEXT NOT NULL,
	formatted     TEXT NOT NULL DEFAULT '',
	voice         INTEGER NOT NULL DEFAULT 0,
	sms           INTEGER NOT NULL DEFAULT 0,
	mms           INTEGER NOT NULL DEFAULT 0,
	monthly_price REAL NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'active',
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS calls (
	id         TEXT PRIMARY KEY,
	call_id    TEXT NOT NULL UNIQUE,
	to_phone   TEXT NOT NULL,
	direction  TEXT NOT NULL,
	provider   TEXT NOT NULL,
	status     TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// statusRank orders message statuses so a late "sent" webhook cannot roll a
// message back from "delivered".
const statusRank = `
	CASE %s
		WHEN 'pending'  THEN 0
		WHEN 'accepted' THEN 1
		WHEN 'queued'   THEN 2
		WHEN 'sending'  THEN 3
		WHEN 'sent'     THEN 4
		ELSE                 5
	END`

// Store is a SQLite-backed telephony.Store. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

var _ telephony.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent sessions.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// InsertMessage records a pending outbound message and returns its row ID.
func (s *Store) InsertMessage(ctx context.Context, to, body, provider string) (string, error) {
	id := uuid.NewString()
	ts := now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, to_phone, body, direction, provider, status, created_at, updated_at)
		 VALUES (?, ?, ?, 'outbound', ?, 'pending', ?, ?)`,
		id, to, body, provider, ts, ts,
	)
	if err != nil {
		return "", fmt.Errorf("insert message: %w", err)
	}
	return id, nil
}

// UpdateMessageSent attaches the vendor message ID after a successful send.
func (s *Store) UpdateMessageSent(ctx context.Context, id, providerMsgID, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages
		 SET provider_message_id = ?, status = ?, updated_at = ?
		 WHERE id = ?`,
		providerMsgID, status, now(), id,
	)
	if err != nil {
		return fmt.Errorf("update message sent: %w", err)
	}
	return nil
}

// UpdateMessageFailed marks a message failed with the vendor's error text.
func (s *Store) UpdateMessageFailed(ctx context.Context, id, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages
		 SET status = 'failed', error_message = ?, updated_at = ?
		 WHERE id = ?`,
		errMsg, now(), id,
	)
	if err != nil {
		return fmt.Errorf("update message failed: %w", err)
	}
	return nil
}

// UpdateDeliveryStatus applies a delivery-state change keyed by the vendor
// message ID. Status only moves forward; out-of-order webhooks are dropped.
func (s *Store) UpdateDeliveryStatus(ctx context.Context, providerMsgID, status, errMsg string) error {
	query := fmt.Sprintf(
		`UPDATE messages
		 SET status = ?, error_message = ?, updated_at = ?
		 WHERE provider_message_id = ?
		 AND %s <= %s`,
		fmt.Sprintf(statusRank, "status"), fmt.Sprintf(statusRank, "?"),
	)
	_, err := s.db.ExecContext(ctx, query, status, errMsg, now(), providerMsgID, status)
	if err != nil {
		return fmt.Errorf("update delivery status: %w", err)
	}
	return nil
}

// GetMessage fetches one message by row ID or vendor message ID. Returns
// (nil, nil) when no such message exists.
func (s *Store) GetMessage(ctx context.Context, id string) (*telephony.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, to_phone, from_phone, body, direction, status, created_at
		 FROM messages
		 WHERE id = ? OR provider_message_id = ?`,
		id, id,
	)
	var m telephony.Message
	var created string
	err := row.Scan(&m.ID, &m.To, &m.From, &m.Body, &m.Direction, &m.Status, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	m.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return &m, nil
}

// ListMessages returns messages to a number, newest first.
func (s *Store) ListMessages(ctx context.Context, to string, limit, offset int) ([]telephony.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, to_phone, from_phone, body, direction, status, created_at
		 FROM messages
		 WHERE to_phone = ?
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ? OFFSET ?`,
		to, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []telephony.Message
	for rows.Next() {
		var m telephony.Message
		var created string
		if err := rows.Scan(&m.ID, &m.To, &m.From, &m.Body, &m.Direction, &m.Status, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

// UpsertNumber records an owned number, replacing any previous row.
func (s *Store) UpsertNumber(ctx context.Context, provider string, n telephony.PhoneNumber) error {
	ts := now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO numbers (number, provider, formatted, voice, sms, mms, monthly_price, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(number) DO UPDATE SET
		   provider = excluded.provider,
		   formatted = excluded.formatted,
		   voice = excluded.voice,
		   sms = excluded.sms,
		   mms = excluded.mms,
		   monthly_price = excluded.monthly_price,
		   status = excluded.status,
		   updated_at = excluded.updated_at`,
		n.Number, provider, n.FormattedNumber,
		boolInt(n.Capabilities.Voice), boolInt(n.Capabilities.SMS), boolInt(n.Capabilities.MMS),
		n.MonthlyPrice, n.Status, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("upsert number: %w", err)
	}
	return nil
}

// MarkNumberReleased flags a number released. Unknown numbers are a no-op so
// release stays idempotent end to end.
func (s *Store) MarkNumberReleased(ctx context.Context, number string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE numbers SET status = ?, updated_at = ? WHERE number = ?`,
		telephony.NumberReleased, now(), number,
	)
	if err != nil {
		return fmt.Errorf("mark number released: %w", err)
	}
	return nil
}

// ListNumbers returns locally known numbers, active first.
func (s *Store) ListNumbers(ctx context.Context) ([]telephony.PhoneNumber, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT number, formatted, voice, sms, mms, monthly_price, status
		 FROM numbers
		 ORDER BY status = 'active' DESC, number`,
	)
	if err != nil {
		return nil, fmt.Errorf("list numbers: %w", err)
	}
	defer rows.Close()

	var nums []telephony.PhoneNumber
	for rows.Next() {
		var n telephony.PhoneNumber
		var voice, sms, mms int
		if err := rows.Scan(&n.Number, &n.FormattedNumber, &voice, &sms, &mms, &n.MonthlyPrice, &n.Status); err != nil {
			return nil, fmt.Errorf("scan number: %w", err)
		}
		n.Capabilities = telephony.Capabilities{Voice: voice != 0, SMS: sms != 0, MMS: mms != 0}
		nums = append(nums, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate numbers: %w", err)
	}
	return nums, nil
}

// InsertCall records a call. A repeated call ID (an inbound webhook retried
// by the vendor) updates the status instead of erroring.
func (s *Store) InsertCall(ctx context.Context, callID, to, direction, status, provider string) error {
	ts := now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO calls (id, call_id, to_phone, direction, provider, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(call_id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		uuid.NewString(), callID, to, direction, provider, status, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("insert call: %w", err)
	}
	return nil
}

// UpdateCallStatus updates the state of a recorded call.
func (s *Store) UpdateCallStatus(ctx context.Context, callID, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE calls SET status = ?, updated_at = ? WHERE call_id = ?`,
		status, now(), callID,
	)
	if err != nil {
		return fmt.Errorf("update call status: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
