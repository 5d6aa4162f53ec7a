// Package deliverylog is the append-only record of every delivery attempt.
// Rows live in PostgreSQL; attachment snapshots live in a msgstore.Store and
// are only loaded by Get.
package deliverylog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/sungwon/request-mailer/internal/msgstore"
	"github.com/sungwon/request-mailer/internal/storage"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("delivery log entry not found")

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusSuccess || s == StatusFailed
}

type Entry struct {
	ID                 int64            `json:"id"`
	UserID             uuid.UUID        `json:"userId"`
	RecipientID        int64            `json:"recipientId"`
	RecipientEmail     string           `json:"recipientEmail"`
	Subject            string           `json:"subject"`
	Body               string           `json:"body"`
	Status             Status           `json:"status"`
	TransportMessageID string           `json:"transportMessageId,omitempty"`
	Attachments        []AttachmentMeta `json:"attachments"`
	Error              string           `json:"error,omitempty"`
	SentAt             time.Time        `json:"sentAt"`
	RetryOfID          *int64           `json:"retryOfId,omitempty"`

	// Snapshot is populated by Get only.
	Snapshot    []Attachment `json:"-"`
	snapshotKey string
}

// HasSnapshot reports whether attachments were snapshotted for this entry.
func (e Entry) HasSnapshot() bool {
	return e.snapshotKey != ""
}

// NewEntry is the input to Append.
type NewEntry struct {
	UserID             uuid.UUID
	RecipientID        int64
	RecipientEmail     string
	Subject            string
	Body               string
	Status             Status
	TransportMessageID string
	Attachments        []Attachment
	Error              string
	RetryOfID          *int64
}

// Filter selects entries for List. Non-privileged viewers only ever see
// their own entries.
type Filter struct {
	Viewer      uuid.UUID
	Privileged  bool
	Status      Status
	RecipientID int64
	Limit       int
	Offset      int
}

// Querier is the subset of storage.Querier used by Store.
type Querier interface {
	CreateDeliveryLog(ctx context.Context, arg storage.CreateDeliveryLogParams) (storage.DeliveryLog, error)
	GetDeliveryLogByID(ctx context.Context, id int64) (storage.DeliveryLog, error)
	ListDeliveryLogs(ctx context.Context, arg storage.ListDeliveryLogsParams) ([]storage.DeliveryLog, error)
}

type Store struct {
	q      Querier
	blobs  msgstore.Store
	logger zerolog.Logger
	now    func() time.Time
}

func NewStore(q Querier, blobs msgstore.Store, logger zerolog.Logger) *Store {
	return &Store{q: q, blobs: blobs, logger: logger, now: time.Now}
}

// Append writes the snapshot blob first, then the row. If the row insert
// fails the blob is removed again.
func (s *Store) Append(ctx context.Context, in NewEntry) (Entry, error) {
	meta, err := json.Marshal(Meta(in.Attachments))
	if err != nil {
		return Entry{}, fmt.Errorf("encode attachment meta: %w", err)
	}

	var key string
	if len(in.Attachments) > 0 {
		data, err := json.Marshal(in.Attachments)
		if err != nil {
			return Entry{}, fmt.Errorf("encode attachment snapshot: %w", err)
		}
		key = msgstore.NewKey(s.now())
		if err := s.blobs.Put(ctx, key, data); err != nil {
			return Entry{}, fmt.Errorf("store attachment snapshot: %w", err)
		}
	}

	params := storage.CreateDeliveryLogParams{
		UserID:             in.UserID,
		RecipientID:        in.RecipientID,
		RecipientEmail:     in.RecipientEmail,
		RenderedSubject:    in.Subject,
		RenderedBody:       in.Body,
		Status:             storage.DeliveryStatus(in.Status),
		TransportMessageID: text(in.TransportMessageID),
		AttachmentsMeta:    meta,
		SnapshotKey:        text(key),
		ErrorMessage:       text(in.Error),
	}
	if in.RetryOfID != nil {
		params.RetryOfID = pgtype.Int8{Int64: *in.RetryOfID, Valid: true}
	}

	row, err := s.q.CreateDeliveryLog(ctx, params)
	if err != nil {
		if key != "" {
			if derr := s.blobs.Delete(ctx, key); derr != nil {
				s.logger.Warn().Err(derr).Str("snapshot_key", key).Msg("failed to remove orphaned snapshot")
			}
		}
		return Entry{}, fmt.Errorf("insert delivery log: %w", err)
	}

	e, err := fromRow(row)
	if err != nil {
		return Entry{}, err
	}
	e.Snapshot = in.Attachments
	return e, nil
}

func (s *Store) List(ctx context.Context, f Filter) ([]Entry, error) {
	params := storage.ListDeliveryLogsParams{
		Status:      storage.DeliveryStatus(f.Status),
		RecipientID: f.RecipientID,
		Limit:       int32(clampLimit(f.Limit)),
		Offset:      int32(clampOffset(f.Offset)),
	}
	if !f.Privileged {
		viewer := f.Viewer
		params.UserID = &viewer
	}

	rows, err := s.q.ListDeliveryLogs(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("list delivery logs: %w", err)
	}
	out := make([]Entry, 0, len(rows))
	for _, row := range rows {
		e, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Get returns the entry with its attachment snapshot.
func (s *Store) Get(ctx context.Context, id int64) (Entry, error) {
	row, err := s.q.GetDeliveryLogByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get delivery log %d: %w", id, err)
	}
	e, err := fromRow(row)
	if err != nil {
		return Entry{}, err
	}
	if e.snapshotKey == "" {
		return e, nil
	}

	data, err := s.blobs.Get(ctx, e.snapshotKey)
	if err != nil {
		return Entry{}, fmt.Errorf("load snapshot for delivery log %d: %w", id, err)
	}
	if err := json.Unmarshal(data, &e.Snapshot); err != nil {
		return Entry{}, fmt.Errorf("decode snapshot for delivery log %d: %w", id, err)
	}
	return e, nil
}

func fromRow(row storage.DeliveryLog) (Entry, error) {
	e := Entry{
		ID:                 row.ID,
		UserID:             row.UserID,
		RecipientID:        row.RecipientID,
		RecipientEmail:     row.RecipientEmail,
		Subject:            row.RenderedSubject,
		Body:               row.RenderedBody,
		Status:             Status(row.Status),
		TransportMessageID: row.TransportMessageID.String,
		Error:              row.ErrorMessage.String,
		SentAt:             row.SentAt.Time,
		snapshotKey:        row.SnapshotKey.String,
	}
	if row.RetryOfID.Valid {
		id := row.RetryOfID.Int64
		e.RetryOfID = &id
	}
	e.Attachments = []AttachmentMeta{}
	if len(row.AttachmentsMeta) > 0 {
		if err := json.Unmarshal(row.AttachmentsMeta, &e.Attachments); err != nil {
			return Entry{}, fmt.Errorf("decode attachment meta of delivery log %d: %w", row.ID, err)
		}
	}
	return e, nil
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultListLimit
	case n > MaxListLimit:
		return MaxListLimit
	default:
		return n
	}
}

// clampOffset keeps offsets inside the 32-bit query parameter; anything past
// it is already beyond the last row.
func clampOffset(n int) int {
	return min(max(n, 0), math.MaxInt32)
}

func text(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}
