package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/sungwon/request-mailer/internal/storage"
)

type mockQuerier struct {
	getFn       func(ctx context.Context, id int64) (storage.Recipient, error)
	assignedFn  func(ctx context.Context, arg storage.IsRecipientAssignedParams) (bool, error)
	incrementFn func(ctx context.Context, id int64) error
}

func (m *mockQuerier) GetRecipientByID(ctx context.Context, id int64) (storage.Recipient, error) {
	return m.getFn(ctx, id)
}

func (m *mockQuerier) IsRecipientAssigned(ctx context.Context, arg storage.IsRecipientAssignedParams) (bool, error) {
	return m.assignedFn(ctx, arg)
}

func (m *mockQuerier) IncrementRecipientSentCount(ctx context.Context, id int64) error {
	return m.incrementFn(ctx, id)
}

func TestPGRegistry_Recipient(t *testing.T) {
	q := &mockQuerier{
		getFn: func(_ context.Context, id int64) (storage.Recipient, error) {
			if id != 7 {
				return storage.Recipient{}, pgx.ErrNoRows
			}
			return storage.Recipient{
				ID:           7,
				Name:         "Kim",
				Category:     "vendor",
				EmailAddress: pgtype.Text{String: "kim@example.com", Valid: true},
				RequestText:  "Q3 report",
				SentCount:    2,
			}, nil
		},
	}
	r := NewPGRegistry(q)

	got, err := r.Recipient(context.Background(), 7)
	if err != nil {
		t.Fatalf("Recipient() error = %v", err)
	}
	want := Recipient{ID: 7, Name: "Kim", Category: "vendor", Email: "kim@example.com", Request: "Q3 report", SentCount: 2}
	if got != want {
		t.Errorf("Recipient() = %+v, want %+v", got, want)
	}

	if _, err := r.Recipient(context.Background(), 8); !errors.Is(err, ErrRecipientNotFound) {
		t.Errorf("Recipient(8) error = %v, want ErrRecipientNotFound", err)
	}
}

func TestPGRegistry_NullEmail(t *testing.T) {
	q := &mockQuerier{
		getFn: func(context.Context, int64) (storage.Recipient, error) {
			return storage.Recipient{ID: 1, Name: "no mail"}, nil
		},
	}
	got, err := NewPGRegistry(q).Recipient(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if got.Email != "" {
		t.Errorf("Email = %q, want empty", got.Email)
	}
}

func TestPGRegistry_IsAssigned(t *testing.T) {
	owner := uuid.New()
	q := &mockQuerier{
		assignedFn: func(_ context.Context, arg storage.IsRecipientAssignedParams) (bool, error) {
			return arg.UserID == owner && arg.RecipientID == 3, nil
		},
	}
	r := NewPGRegistry(q)

	tests := []struct {
		name string
		user uuid.UUID
		id   int64
		want bool
	}{
		{"owner", owner, 3, true},
		{"other recipient", owner, 4, false},
		{"other user", uuid.New(), 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.IsAssigned(context.Background(), tt.user, tt.id)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("IsAssigned() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPGRegistry_IncrementWrapsError(t *testing.T) {
	dbErr := errors.New("deadlock")
	q := &mockQuerier{incrementFn: func(context.Context, int64) error { return dbErr }}

	if err := NewPGRegistry(q).IncrementSentCount(context.Background(), 1); !errors.Is(err, dbErr) {
		t.Errorf("IncrementSentCount() error = %v, want wrapped %v", err, dbErr)
	}
}

func TestMemoryRegistry(t *testing.T) {
	user := uuid.New()
	m := NewMemoryRegistry()
	m.Add(Recipient{ID: 1, Name: "A", Email: "a@example.com"}, user)

	ok, _ := m.IsAssigned(context.Background(), user, 1)
	if !ok {
		t.Error("expected assignment")
	}
	if err := m.IncrementSentCount(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	r, _ := m.Recipient(context.Background(), 1)
	if r.SentCount != 1 {
		t.Errorf("SentCount = %d, want 1", r.SentCount)
	}
	if err := m.IncrementSentCount(context.Background(), 2); !errors.Is(err, ErrRecipientNotFound) {
		t.Errorf("IncrementSentCount(2) error = %v", err)
	}
}
