package storage

import (
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// DeliveryStatus is the outcome stored on a delivery_logs row.
type DeliveryStatus string

const (
	DeliveryStatusSuccess DeliveryStatus = "success"
	DeliveryStatusFailed  DeliveryStatus = "failed"
)

type DeliveryLog struct {
	ID                 int64              `json:"id"`
	UserID             uuid.UUID          `json:"user_id"`
	RecipientID        int64              `json:"recipient_id"`
	RecipientEmail     string             `json:"recipient_email"`
	RenderedSubject    string             `json:"rendered_subject"`
	RenderedBody       string             `json:"rendered_body"`
	Status             DeliveryStatus     `json:"status"`
	TransportMessageID pgtype.Text        `json:"transport_message_id"`
	AttachmentsMeta    []byte             `json:"attachments_meta"`
	SnapshotKey        pgtype.Text        `json:"snapshot_key"`
	ErrorMessage       pgtype.Text        `json:"error_message"`
	SentAt             pgtype.Timestamptz `json:"sent_at"`
	RetryOfID          pgtype.Int8        `json:"retry_of_id"`
}

type QuotaState struct {
	UserID        uuid.UUID          `json:"user_id"`
	DailyQuota    int32              `json:"daily_quota"`
	UsedToday     int32              `json:"used_today"`
	LastResetDate pgtype.Date        `json:"last_reset_date"`
	UpdatedAt     pgtype.Timestamptz `json:"updated_at"`
}

type Recipient struct {
	ID           int64              `json:"id"`
	Name         string             `json:"name"`
	Category     string             `json:"category"`
	EmailAddress pgtype.Text        `json:"email_address"`
	RequestText  string             `json:"request_text"`
	SentCount    int32              `json:"sent_count"`
	CreatedAt    pgtype.Timestamptz `json:"created_at"`
	UpdatedAt    pgtype.Timestamptz `json:"updated_at"`
}

type RecipientAssignment struct {
	UserID      uuid.UUID          `json:"user_id"`
	RecipientID int64              `json:"recipient_id"`
	CreatedAt   pgtype.Timestamptz `json:"created_at"`
}

type TransportCredential struct {
	UserID       uuid.UUID          `json:"user_id"`
	Kind         string             `json:"kind"`
	Host         string             `json:"host"`
	Port         int32              `json:"port"`
	Username     string             `json:"username"`
	SecretSealed []byte             `json:"secret_sealed"`
	FromAddress  string             `json:"from_address"`
	FromName     string             `json:"from_name"`
	UseTls       bool               `json:"use_tls"`
	UpdatedAt    pgtype.Timestamptz `json:"updated_at"`
}
