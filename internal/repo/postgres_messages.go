package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/future-messaging/internal/model"
)

type PostgresMessageRepo struct {
	db *sql.DB
}

func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

func (r *PostgresMessageRepo) Insert(ctx context.Context, msg *model.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages
			(id, owner_id, recipient_name, recipient_email, body, scheduled_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'scheduled', $7, $7)
	`, msg.ID, msg.OwnerID, msg.RecipientName, msg.RecipientEmail, msg.Body, msg.ScheduledAt.UTC(), now); err != nil {
		return err
	}

	for i, a := range msg.Attachments {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO message_attachments (message_id, position, storage_path, filename, content_type)
			VALUES ($1, $2, $3, $4, $5)
		`, msg.ID, i, a.StoragePath, a.Filename, a.ContentType); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	msg.Status = model.Scheduled
	msg.CreatedAt = now
	msg.UpdatedAt = now
	return nil
}

// ClaimDue flips a batch of due messages from scheduled to sending inside one
// transaction. FOR UPDATE SKIP LOCKED keeps two overlapping sweeps from
// claiming the same row, so a message is sent at most once per claim.
func (r *PostgresMessageRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]model.Message, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, owner_id, recipient_name, recipient_email, body,
		       scheduled_at, status, created_at, updated_at
		FROM messages
		WHERE status = 'scheduled' AND scheduled_at <= $1
		ORDER BY scheduled_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT $2
	`, now.UTC(), limit)
	if err != nil {
		return nil, err
	}

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		var status string
		var recipientEmail, body sql.NullString
		if err := rows.Scan(
			&m.ID,
			&m.OwnerID,
			&m.RecipientName,
			&recipientEmail,
			&body,
			&m.ScheduledAt,
			&status,
			&m.CreatedAt,
			&m.UpdatedAt,
		); err != nil {
			rows.Close()
			return nil, err
		}
		m.Status = model.Status(status)
		if recipientEmail.Valid {
			s := recipientEmail.String
			m.RecipientEmail = &s
		}
		if body.Valid {
			s := body.String
			m.Body = &s
		}
		msgs = append(msgs, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(msgs) == 0 {
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return nil, nil
	}

	claimedAt := time.Now().UTC()
	for _, m := range msgs {
		if _, err := tx.ExecContext(ctx, `
			UPDATE messages
			SET status = 'sending', claimed_at = $2, updated_at = $2
			WHERE id = $1
		`, m.ID, claimedAt); err != nil {
			return nil, err
		}
	}

	for i := range msgs {
		atts, err := loadAttachments(ctx, tx, msgs[i].ID)
		if err != nil {
			return nil, err
		}
		msgs[i].Attachments = atts
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	for i := range msgs {
		msgs[i].Status = model.Sending
		msgs[i].ClaimedAt = &claimedAt
		msgs[i].UpdatedAt = claimedAt
	}
	return msgs, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadAttachments(ctx context.Context, q querier, messageID string) ([]model.Attachment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT storage_path, filename, content_type
		FROM message_attachments
		WHERE message_id = $1
		ORDER BY position ASC
	`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var atts []model.Attachment
	for rows.Next() {
		var a model.Attachment
		if err := rows.Scan(&a.StoragePath, &a.Filename, &a.ContentType); err != nil {
			return nil, err
		}
		atts = append(atts, a)
	}
	return atts, rows.Err()
}

// RequeueStale returns claims abandoned by a crashed sweep to the scheduled
// pool. A message caught by this is delivered at least once, not exactly once.
func (r *PostgresMessageRepo) RequeueStale(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET status = 'scheduled', claimed_at = NULL, updated_at = now()
		WHERE status = 'sending' AND claimed_at < $1
	`, olderThan.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PostgresMessageRepo) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	// The status guard keeps terminal states from ever being rewritten.
	_, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET status = 'sent',
		    sent_at = $2,
		    last_error = NULL,
		    updated_at = now()
		WHERE id = $1 AND status = 'sending'
	`, id, sentAt.UTC())
	return err
}

func (r *PostgresMessageRepo) MarkFailed(ctx context.Context, id string, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET status = 'failed',
		    last_error = $2,
		    updated_at = now()
		WHERE id = $1 AND status = 'sending'
	`, id, reason)
	return err
}

func (r *PostgresMessageRepo) ListByStatus(ctx context.Context, status model.Status, limit, offset int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, recipient_name, recipient_email, body,
		       scheduled_at, status, sent_at, last_error, created_at, updated_at
		FROM messages
		WHERE status = $1
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3
	`, string(status), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		var st string
		var recipientEmail, body, lastErr sql.NullString
		var sentAt sql.NullTime

		if err := rows.Scan(
			&m.ID,
			&m.OwnerID,
			&m.RecipientName,
			&recipientEmail,
			&body,
			&m.ScheduledAt,
			&st,
			&sentAt,
			&lastErr,
			&m.CreatedAt,
			&m.UpdatedAt,
		); err != nil {
			return nil, err
		}

		m.Status = model.Status(st)
		if recipientEmail.Valid {
			s := recipientEmail.String
			m.RecipientEmail = &s
		}
		if body.Valid {
			s := body.String
			m.Body = &s
		}
		if lastErr.Valid {
			s := lastErr.String
			m.LastError = &s
		}
		if sentAt.Valid {
			t := sentAt.Time
			m.SentAt = &t
		}

		out = append(out, m)
	}
	return out, rows.Err()
}
