package storage

import (
	"context"

	"github.com/google/uuid"
)

type Querier interface {
	CreateDeliveryLog(ctx context.Context, arg CreateDeliveryLogParams) (DeliveryLog, error)
	GetDeliveryLogByID(ctx context.Context, id int64) (DeliveryLog, error)
	ListDeliveryLogs(ctx context.Context, arg ListDeliveryLogsParams) ([]DeliveryLog, error)

	CreateQuotaState(ctx context.Context, arg CreateQuotaStateParams) (QuotaState, error)
	CreditQuotaUsage(ctx context.Context, arg CreditQuotaUsageParams) (QuotaState, error)
	GetQuotaState(ctx context.Context, userID uuid.UUID) (QuotaState, error)
	IncrementQuotaUsage(ctx context.Context, arg IncrementQuotaUsageParams) (QuotaState, error)
	ResetQuotaState(ctx context.Context, arg ResetQuotaStateParams) (QuotaState, error)
	SetDailyQuota(ctx context.Context, arg SetDailyQuotaParams) (QuotaState, error)

	CreateRecipient(ctx context.Context, arg CreateRecipientParams) (Recipient, error)
	CreateRecipientAssignment(ctx context.Context, arg CreateRecipientAssignmentParams) error
	GetRecipientByID(ctx context.Context, id int64) (Recipient, error)
	IncrementRecipientSentCount(ctx context.Context, id int64) error
	IsRecipientAssigned(ctx context.Context, arg IsRecipientAssignedParams) (bool, error)

	GetTransportCredential(ctx context.Context, userID uuid.UUID) (TransportCredential, error)
	UpsertTransportCredential(ctx context.Context, arg UpsertTransportCredentialParams) (TransportCredential, error)
}

var _ Querier = (*Queries)(nil)
