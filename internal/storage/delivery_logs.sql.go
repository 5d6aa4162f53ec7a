package storage

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const deliveryLogColumns = `id, user_id, recipient_id, recipient_email, rendered_subject, rendered_body,
	status, transport_message_id, attachments_meta, snapshot_key, error_message, sent_at, retry_of_id`

const createDeliveryLog = `-- name: CreateDeliveryLog :one
INSERT INTO delivery_logs (
    user_id, recipient_id, recipient_email, rendered_subject, rendered_body,
    status, transport_message_id, attachments_meta, snapshot_key, error_message, retry_of_id
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
)
RETURNING ` + deliveryLogColumns

type CreateDeliveryLogParams struct {
	UserID             uuid.UUID      `json:"user_id"`
	RecipientID        int64          `json:"recipient_id"`
	RecipientEmail     string         `json:"recipient_email"`
	RenderedSubject    string         `json:"rendered_subject"`
	RenderedBody       string         `json:"rendered_body"`
	Status             DeliveryStatus `json:"status"`
	TransportMessageID pgtype.Text    `json:"transport_message_id"`
	AttachmentsMeta    []byte         `json:"attachments_meta"`
	SnapshotKey        pgtype.Text    `json:"snapshot_key"`
	ErrorMessage       pgtype.Text    `json:"error_message"`
	RetryOfID          pgtype.Int8    `json:"retry_of_id"`
}

func (q *Queries) CreateDeliveryLog(ctx context.Context, arg CreateDeliveryLogParams) (DeliveryLog, error) {
	meta := arg.AttachmentsMeta
	if len(meta) == 0 {
		meta = []byte("[]")
	}
	row := q.db.QueryRow(ctx, createDeliveryLog,
		arg.UserID,
		arg.RecipientID,
		arg.RecipientEmail,
		arg.RenderedSubject,
		arg.RenderedBody,
		arg.Status,
		arg.TransportMessageID,
		meta,
		arg.SnapshotKey,
		arg.ErrorMessage,
		arg.RetryOfID,
	)
	return scanDeliveryLog(row)
}

const getDeliveryLogByID = `-- name: GetDeliveryLogByID :one
SELECT ` + deliveryLogColumns + `
FROM delivery_logs
WHERE id = $1`

func (q *Queries) GetDeliveryLogByID(ctx context.Context, id int64) (DeliveryLog, error) {
	row := q.db.QueryRow(ctx, getDeliveryLogByID, id)
	return scanDeliveryLog(row)
}

// ListDeliveryLogsParams filters the log listing. A nil UserID lists every
// owner; zero-valued filters are ignored.
type ListDeliveryLogsParams struct {
	UserID      *uuid.UUID
	Status      DeliveryStatus
	RecipientID int64
	Limit       int32
	Offset      int32
}

// ListDeliveryLogs returns rows newest first. The filter set is dynamic, so
// the statement is assembled with squirrel instead of a static query.
func (q *Queries) ListDeliveryLogs(ctx context.Context, arg ListDeliveryLogsParams) ([]DeliveryLog, error) {
	query := q.sb.
		Select(deliveryLogColumns).
		From("delivery_logs").
		OrderBy("sent_at DESC", "id DESC")

	if arg.UserID != nil {
		query = query.Where(sq.Eq{"user_id": *arg.UserID})
	}
	if arg.Status != "" {
		query = query.Where(sq.Eq{"status": arg.Status})
	}
	if arg.RecipientID != 0 {
		query = query.Where(sq.Eq{"recipient_id": arg.RecipientID})
	}
	if arg.Limit > 0 {
		query = query.Limit(uint64(arg.Limit))
	}
	if arg.Offset > 0 {
		query = query.Offset(uint64(arg.Offset))
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list delivery logs sql: %w", err)
	}

	rows, err := q.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []DeliveryLog{}
	for rows.Next() {
		i, err := scanDeliveryLog(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDeliveryLog(row rowScanner) (DeliveryLog, error) {
	var i DeliveryLog
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.RecipientID,
		&i.RecipientEmail,
		&i.RenderedSubject,
		&i.RenderedBody,
		&i.Status,
		&i.TransportMessageID,
		&i.AttachmentsMeta,
		&i.SnapshotKey,
		&i.ErrorMessage,
		&i.SentAt,
		&i.RetryOfID,
	)
	return i, err
}
