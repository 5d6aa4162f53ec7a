package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const quotaStateColumns = `user_id, daily_quota, used_today, last_reset_date, updated_at`

const createQuotaState = `-- name: CreateQuotaState :one
INSERT INTO quota_states (user_id, daily_quota, used_today, last_reset_date)
VALUES ($1, $2, 0, $3)
ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
RETURNING ` + quotaStateColumns

type CreateQuotaStateParams struct {
	UserID        uuid.UUID   `json:"user_id"`
	DailyQuota    int32       `json:"daily_quota"`
	LastResetDate pgtype.Date `json:"last_reset_date"`
}

// CreateQuotaState inserts the row or returns the existing one untouched.
func (q *Queries) CreateQuotaState(ctx context.Context, arg CreateQuotaStateParams) (QuotaState, error) {
	row := q.db.QueryRow(ctx, createQuotaState, arg.UserID, arg.DailyQuota, arg.LastResetDate)
	return scanQuotaState(row)
}

const getQuotaState = `-- name: GetQuotaState :one
SELECT ` + quotaStateColumns + `
FROM quota_states
WHERE user_id = $1`

func (q *Queries) GetQuotaState(ctx context.Context, userID uuid.UUID) (QuotaState, error) {
	row := q.db.QueryRow(ctx, getQuotaState, userID)
	return scanQuotaState(row)
}

const resetQuotaState = `-- name: ResetQuotaState :one
UPDATE quota_states
SET used_today = 0, last_reset_date = $2, updated_at = NOW()
WHERE user_id = $1 AND last_reset_date <> $2
RETURNING ` + quotaStateColumns

type ResetQuotaStateParams struct {
	UserID uuid.UUID   `json:"user_id"`
	Today  pgtype.Date `json:"today"`
}

// ResetQuotaState returns pgx.ErrNoRows when the row was already reset for
// Today.
func (q *Queries) ResetQuotaState(ctx context.Context, arg ResetQuotaStateParams) (QuotaState, error) {
	row := q.db.QueryRow(ctx, resetQuotaState, arg.UserID, arg.Today)
	return scanQuotaState(row)
}

const incrementQuotaUsage = `-- name: IncrementQuotaUsage :one
UPDATE quota_states
SET used_today = CASE WHEN last_reset_date = $3 THEN used_today + $2 ELSE $2 END,
    last_reset_date = $3,
    updated_at = NOW()
WHERE user_id = $1
RETURNING ` + quotaStateColumns

type IncrementQuotaUsageParams struct {
	UserID uuid.UUID   `json:"user_id"`
	Amount int32       `json:"amount"`
	Today  pgtype.Date `json:"today"`
}

// IncrementQuotaUsage adds Amount in a single statement. A row whose reset
// date is stale starts over from Amount.
func (q *Queries) IncrementQuotaUsage(ctx context.Context, arg IncrementQuotaUsageParams) (QuotaState, error) {
	row := q.db.QueryRow(ctx, incrementQuotaUsage, arg.UserID, arg.Amount, arg.Today)
	return scanQuotaState(row)
}

const setDailyQuota = `-- name: SetDailyQuota :one
UPDATE quota_states
SET daily_quota = $2, updated_at = NOW()
WHERE user_id = $1
RETURNING ` + quotaStateColumns

type SetDailyQuotaParams struct {
	UserID     uuid.UUID `json:"user_id"`
	DailyQuota int32     `json:"daily_quota"`
}

func (q *Queries) SetDailyQuota(ctx context.Context, arg SetDailyQuotaParams) (QuotaState, error) {
	row := q.db.QueryRow(ctx, setDailyQuota, arg.UserID, arg.DailyQuota)
	return scanQuotaState(row)
}

const creditQuotaUsage = `-- name: CreditQuotaUsage :one
UPDATE quota_states
SET used_today = GREATEST(used_today - $2, 0), updated_at = NOW()
WHERE user_id = $1
RETURNING ` + quotaStateColumns

type CreditQuotaUsageParams struct {
	UserID uuid.UUID `json:"user_id"`
	Amount int32     `json:"amount"`
}

func (q *Queries) CreditQuotaUsage(ctx context.Context, arg CreditQuotaUsageParams) (QuotaState, error) {
	row := q.db.QueryRow(ctx, creditQuotaUsage, arg.UserID, arg.Amount)
	return scanQuotaState(row)
}

func scanQuotaState(row rowScanner) (QuotaState, error) {
	var i QuotaState
	err := row.Scan(
		&i.UserID,
		&i.DailyQuota,
		&i.UsedToday,
		&i.LastResetDate,
		&i.UpdatedAt,
	)
	return i, err
}
