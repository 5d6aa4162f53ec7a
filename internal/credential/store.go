package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sungwon/request-mailer/internal/storage"
)

// Store loads and saves credentials.
type Store interface {
	Get(ctx context.Context, userID uuid.UUID) (Credential, error)
	Put(ctx context.Context, c Credential) error
}

// Querier is the subset of storage.Querier used by PGStore.
type Querier interface {
	GetTransportCredential(ctx context.Context, userID uuid.UUID) (storage.TransportCredential, error)
	UpsertTransportCredential(ctx context.Context, arg storage.UpsertTransportCredentialParams) (storage.TransportCredential, error)
}

// PGStore keeps credentials in transport_credentials with sealed secrets.
type PGStore struct {
	q      Querier
	sealer *Sealer
}

func NewPGStore(q Querier, sealer *Sealer) *PGStore {
	return &PGStore{q: q, sealer: sealer}
}

// Get returns ErrNotConfigured when the user has no row.
func (s *PGStore) Get(ctx context.Context, userID uuid.UUID) (Credential, error) {
	row, err := s.q.GetTransportCredential(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Credential{}, ErrNotConfigured
	}
	if err != nil {
		return Credential{}, fmt.Errorf("get transport credential: %w", err)
	}

	var secret []byte
	if len(row.SecretSealed) > 0 {
		secret, err = s.sealer.Open(row.SecretSealed)
		if err != nil {
			return Credential{}, fmt.Errorf("open secret for %s: %w", userID, err)
		}
	}

	return Credential{
		UserID:      row.UserID,
		Kind:        row.Kind,
		Host:        row.Host,
		Port:        int(row.Port),
		Username:    row.Username,
		Secret:      string(secret),
		FromAddress: row.FromAddress,
		FromName:    row.FromName,
		UseTLS:      row.UseTls,
	}, nil
}

func (s *PGStore) Put(ctx context.Context, c Credential) error {
	var sealed []byte
	if c.Secret != "" {
		var err error
		sealed, err = s.sealer.Seal([]byte(c.Secret))
		if err != nil {
			return err
		}
	}
	_, err := s.q.UpsertTransportCredential(ctx, storage.UpsertTransportCredentialParams{
		UserID:       c.UserID,
		Kind:         c.Kind,
		Host:         c.Host,
		Port:         int32(c.Port),
		Username:     c.Username,
		SecretSealed: sealed,
		FromAddress:  c.FromAddress,
		FromName:     c.FromName,
		UseTls:       c.UseTLS,
	})
	if err != nil {
		return fmt.Errorf("upsert transport credential: %w", err)
	}
	return nil
}
