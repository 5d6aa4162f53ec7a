package deliverylog

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/sungwon/request-mailer/internal/storage"
)

// MemoryQuerier keeps delivery log rows in process. It backs the service when
// no database is configured and the package tests.
type MemoryQuerier struct {
	mu     sync.Mutex
	rows   []storage.DeliveryLog
	nextID int64
	now    func() time.Time
}

func NewMemoryQuerier() *MemoryQuerier {
	return &MemoryQuerier{now: time.Now}
}

func (m *MemoryQuerier) CreateDeliveryLog(_ context.Context, arg storage.CreateDeliveryLogParams) (storage.DeliveryLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	row := storage.DeliveryLog{
		ID:                 m.nextID,
		UserID:             arg.UserID,
		RecipientID:        arg.RecipientID,
		RecipientEmail:     arg.RecipientEmail,
		RenderedSubject:    arg.RenderedSubject,
		RenderedBody:       arg.RenderedBody,
		Status:             arg.Status,
		TransportMessageID: arg.TransportMessageID,
		AttachmentsMeta:    slices.Clone(arg.AttachmentsMeta),
		SnapshotKey:        arg.SnapshotKey,
		ErrorMessage:       arg.ErrorMessage,
		SentAt:             pgtype.Timestamptz{Time: m.now(), Valid: true},
		RetryOfID:          arg.RetryOfID,
	}
	m.rows = append(m.rows, row)
	return row, nil
}

func (m *MemoryQuerier) GetDeliveryLogByID(_ context.Context, id int64) (storage.DeliveryLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.ID == id {
			return row, nil
		}
	}
	return storage.DeliveryLog{}, pgx.ErrNoRows
}

func (m *MemoryQuerier) ListDeliveryLogs(_ context.Context, arg storage.ListDeliveryLogsParams) ([]storage.DeliveryLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []storage.DeliveryLog{}
	// rows are in insertion order, so walk backwards for newest first
	for i := len(m.rows) - 1; i >= 0; i-- {
		row := m.rows[i]
		if arg.UserID != nil && row.UserID != *arg.UserID {
			continue
		}
		if arg.Status != "" && row.Status != arg.Status {
			continue
		}
		if arg.RecipientID != 0 && row.RecipientID != arg.RecipientID {
			continue
		}
		out = append(out, row)
	}

	if off := int(arg.Offset); off > 0 {
		if off >= len(out) {
			return []storage.DeliveryLog{}, nil
		}
		out = out[off:]
	}
	if lim := int(arg.Limit); lim > 0 && lim < len(out) {
		out = out[:lim]
	}
	return out, nil
}
