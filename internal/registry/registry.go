// Package registry reads recipients and their assignment to users. Recipients
// are owned by an external system; the dispatch engine only bumps sent_count.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sungwon/request-mailer/internal/storage"
)

// ErrRecipientNotFound is returned for an unknown recipient id.
var ErrRecipientNotFound = errors.New("recipient not found")

type Recipient struct {
	ID        int64
	Name      string
	Category  string
	Email     string
	Request   string
	SentCount int
}

// Registry is the authorization and lookup source for dispatch.
type Registry interface {
	Recipient(ctx context.Context, id int64) (Recipient, error)
	IsAssigned(ctx context.Context, userID uuid.UUID, recipientID int64) (bool, error)
	IncrementSentCount(ctx context.Context, id int64) error
}

// Querier is the subset of storage.Querier used by PGRegistry.
type Querier interface {
	GetRecipientByID(ctx context.Context, id int64) (storage.Recipient, error)
	IsRecipientAssigned(ctx context.Context, arg storage.IsRecipientAssignedParams) (bool, error)
	IncrementRecipientSentCount(ctx context.Context, id int64) error
}

type PGRegistry struct {
	q Querier
}

func NewPGRegistry(q Querier) *PGRegistry {
	return &PGRegistry{q: q}
}

func (r *PGRegistry) Recipient(ctx context.Context, id int64) (Recipient, error) {
	row, err := r.q.GetRecipientByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return Recipient{}, ErrRecipientNotFound
	}
	if err != nil {
		return Recipient{}, fmt.Errorf("get recipient %d: %w", id, err)
	}
	return Recipient{
		ID:        row.ID,
		Name:      row.Name,
		Category:  row.Category,
		Email:     row.EmailAddress.String,
		Request:   row.RequestText,
		SentCount: int(row.SentCount),
	}, nil
}

func (r *PGRegistry) IsAssigned(ctx context.Context, userID uuid.UUID, recipientID int64) (bool, error) {
	ok, err := r.q.IsRecipientAssigned(ctx, storage.IsRecipientAssignedParams{
		UserID:      userID,
		RecipientID: recipientID,
	})
	if err != nil {
		return false, fmt.Errorf("check assignment of recipient %d: %w", recipientID, err)
	}
	return ok, nil
}

func (r *PGRegistry) IncrementSentCount(ctx context.Context, id int64) error {
	if err := r.q.IncrementRecipientSentCount(ctx, id); err != nil {
		return fmt.Errorf("increment sent count of recipient %d: %w", id, err)
	}
	return nil
}

type assignment struct {
	user uuid.UUID
	id   int64
}

// MemoryRegistry is an in-process Registry for tests and development.
type MemoryRegistry struct {
	mu          sync.Mutex
	recipients  map[int64]Recipient
	assignments map[assignment]struct{}
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		recipients:  make(map[int64]Recipient),
		assignments: make(map[assignment]struct{}),
	}
}

func (m *MemoryRegistry) Add(r Recipient, assignees ...uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recipients[r.ID] = r
	for _, u := range assignees {
		m.assignments[assignment{user: u, id: r.ID}] = struct{}{}
	}
}

// SetEmail changes a recipient's address in place.
func (m *MemoryRegistry) SetEmail(id int64, email string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.recipients[id]
	r.Email = email
	m.recipients[id] = r
}

func (m *MemoryRegistry) Recipient(_ context.Context, id int64) (Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipients[id]
	if !ok {
		return Recipient{}, ErrRecipientNotFound
	}
	return r, nil
}

func (m *MemoryRegistry) IsAssigned(_ context.Context, userID uuid.UUID, recipientID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.assignments[assignment{user: userID, id: recipientID}]
	return ok, nil
}

func (m *MemoryRegistry) IncrementSentCount(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipients[id]
	if !ok {
		return ErrRecipientNotFound
	}
	r.SentCount++
	m.recipients[id] = r
	return nil
}
