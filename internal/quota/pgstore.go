package quota

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/sungwon/request-mailer/internal/storage"
)

// Querier is the subset of storage.Querier used by PGStore.
type Querier interface {
	CreateQuotaState(ctx context.Context, arg storage.CreateQuotaStateParams) (storage.QuotaState, error)
	GetQuotaState(ctx context.Context, userID uuid.UUID) (storage.QuotaState, error)
	ResetQuotaState(ctx context.Context, arg storage.ResetQuotaStateParams) (storage.QuotaState, error)
	IncrementQuotaUsage(ctx context.Context, arg storage.IncrementQuotaUsageParams) (storage.QuotaState, error)
	SetDailyQuota(ctx context.Context, arg storage.SetDailyQuotaParams) (storage.QuotaState, error)
	CreditQuotaUsage(ctx context.Context, arg storage.CreditQuotaUsageParams) (storage.QuotaState, error)
}

// PGStore persists ledger rows in the quota_states table.
type PGStore struct {
	q Querier
}

func NewPGStore(q Querier) *PGStore {
	return &PGStore{q: q}
}

func pgDate(day time.Time) pgtype.Date {
	return pgtype.Date{Time: day, Valid: true}
}

// int32Amount narrows n for the 32-bit ledger columns.
func int32Amount(n int) (int32, error) {
	if !validAmount(n) {
		return 0, ErrInvalidAmount
	}
	return int32(n), nil
}

func fromRow(row storage.QuotaState) State {
	return State{
		UserID:        row.UserID,
		DailyQuota:    int(row.DailyQuota),
		UsedToday:     int(row.UsedToday),
		LastResetDate: row.LastResetDate.Time,
	}
}

func (s *PGStore) GetOrCreate(ctx context.Context, userID uuid.UUID, dailyQuota int, today time.Time) (State, error) {
	row, err := s.q.GetQuotaState(ctx, userID)
	if err == nil {
		return fromRow(row), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return State{}, err
	}
	daily, err := int32Amount(dailyQuota)
	if err != nil {
		return State{}, err
	}
	row, err = s.q.CreateQuotaState(ctx, storage.CreateQuotaStateParams{
		UserID:        userID,
		DailyQuota:    daily,
		LastResetDate: pgDate(today),
	})
	if err != nil {
		return State{}, err
	}
	return fromRow(row), nil
}

func (s *PGStore) Reset(ctx context.Context, userID uuid.UUID, today time.Time) (State, error) {
	row, err := s.q.ResetQuotaState(ctx, storage.ResetQuotaStateParams{
		UserID: userID,
		Today:  pgDate(today),
	})
	if errors.Is(err, pgx.ErrNoRows) {
		// Another request already reset the row for today.
		row, err = s.q.GetQuotaState(ctx, userID)
	}
	if err != nil {
		return State{}, err
	}
	return fromRow(row), nil
}

func (s *PGStore) Increment(ctx context.Context, userID uuid.UUID, n int, today time.Time) (State, error) {
	amount, err := int32Amount(n)
	if err != nil {
		return State{}, err
	}
	row, err := s.q.IncrementQuotaUsage(ctx, storage.IncrementQuotaUsageParams{
		UserID: userID,
		Amount: amount,
		Today:  pgDate(today),
	})
	if err != nil {
		return State{}, err
	}
	return fromRow(row), nil
}

func (s *PGStore) SetDailyQuota(ctx context.Context, userID uuid.UUID, dailyQuota int) (State, error) {
	daily, err := int32Amount(dailyQuota)
	if err != nil {
		return State{}, err
	}
	row, err := s.q.SetDailyQuota(ctx, storage.SetDailyQuotaParams{
		UserID:     userID,
		DailyQuota: daily,
	})
	if err != nil {
		return State{}, err
	}
	return fromRow(row), nil
}

func (s *PGStore) Credit(ctx context.Context, userID uuid.UUID, n int) (State, error) {
	amount, err := int32Amount(n)
	if err != nil {
		return State{}, err
	}
	row, err := s.q.CreditQuotaUsage(ctx, storage.CreditQuotaUsageParams{
		UserID: userID,
		Amount: amount,
	})
	if err != nil {
		return State{}, err
	}
	return fromRow(row), nil
}
