package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const recipientColumns = `id, name, category, email_address, request_text, sent_count, created_at, updated_at`

const createRecipient = `-- name: CreateRecipient :one
INSERT INTO recipients (name, category, email_address, request_text)
VALUES ($1, $2, $3, $4)
RETURNING ` + recipientColumns

type CreateRecipientParams struct {
	Name         string      `json:"name"`
	Category     string      `json:"category"`
	EmailAddress pgtype.Text `json:"email_address"`
	RequestText  string      `json:"request_text"`
}

func (q *Queries) CreateRecipient(ctx context.Context, arg CreateRecipientParams) (Recipient, error) {
	row := q.db.QueryRow(ctx, createRecipient, arg.Name, arg.Category, arg.EmailAddress, arg.RequestText)
	var i Recipient
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Category,
		&i.EmailAddress,
		&i.RequestText,
		&i.SentCount,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getRecipientByID = `-- name: GetRecipientByID :one
SELECT ` + recipientColumns + `
FROM recipients
WHERE id = $1`

func (q *Queries) GetRecipientByID(ctx context.Context, id int64) (Recipient, error) {
	row := q.db.QueryRow(ctx, getRecipientByID, id)
	var i Recipient
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Category,
		&i.EmailAddress,
		&i.RequestText,
		&i.SentCount,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const incrementRecipientSentCount = `-- name: IncrementRecipientSentCount :exec
UPDATE recipients
SET sent_count = sent_count + 1, updated_at = NOW()
WHERE id = $1`

func (q *Queries) IncrementRecipientSentCount(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, incrementRecipientSentCount, id)
	return err
}

const createRecipientAssignment = `-- name: CreateRecipientAssignment :exec
INSERT INTO recipient_assignments (user_id, recipient_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING`

type CreateRecipientAssignmentParams struct {
	UserID      uuid.UUID `json:"user_id"`
	RecipientID int64     `json:"recipient_id"`
}

func (q *Queries) CreateRecipientAssignment(ctx context.Context, arg CreateRecipientAssignmentParams) error {
	_, err := q.db.Exec(ctx, createRecipientAssignment, arg.UserID, arg.RecipientID)
	return err
}

const isRecipientAssigned = `-- name: IsRecipientAssigned :one
SELECT EXISTS (
    SELECT 1 FROM recipient_assignments
    WHERE user_id = $1 AND recipient_id = $2
)`

type IsRecipientAssignedParams struct {
	UserID      uuid.UUID `json:"user_id"`
	RecipientID int64     `json:"recipient_id"`
}

func (q *Queries) IsRecipientAssigned(ctx context.Context, arg IsRecipientAssignedParams) (bool, error) {
	row := q.db.QueryRow(ctx, isRecipientAssigned, arg.UserID, arg.RecipientID)
	var exists bool
	err := row.Scan(&exists)
	return exists, err
}
