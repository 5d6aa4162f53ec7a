// Package bootstrap provides startup-time initialization routines
// such as seeding development users, recipients and credentials.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/request-mailer/internal/auth"
	"github.com/sungwon/request-mailer/internal/credential"
	"github.com/sungwon/request-mailer/internal/registry"
	"github.com/sungwon/request-mailer/internal/transport"
)

// DevUser is a seeded identity with a ready-to-use access token.
type DevUser struct {
	ID    uuid.UUID
	Email string
	Role  string
	Token string
}

// DevUserID derives a stable id so tokens survive restarts of an in-memory
// server.
func DevUserID(name string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("request-mailer:dev:"+name))
}

// EnsureCredential stores c unless the user already has a credential.
// It is idempotent: an existing credential is never overwritten.
func EnsureCredential(ctx context.Context, store credential.Store, c credential.Credential, log zerolog.Logger) (bool, error) {
	_, err := store.Get(ctx, c.UserID)
	if err == nil {
		log.Debug().Stringer("user_id", c.UserID).Msg("transport credential already configured, skipping seed")
		return false, nil
	}
	if !errors.Is(err, credential.ErrNotConfigured) {
		return false, err
	}

	if err := store.Put(ctx, c); err != nil {
		return false, fmt.Errorf("seed credential for %s: %w", c.UserID, err)
	}
	log.Info().
		Stringer("user_id", c.UserID).
		Str("kind", c.Kind).
		Msg("transport credential seeded")
	return true, nil
}

// SeedDev fills an in-memory registry and credential store with an admin, a
// regular user and a few recipients, all sending through the stdout
// transport. One recipient has no address so failure paths can be tried.
func SeedDev(ctx context.Context, reg *registry.MemoryRegistry, creds credential.Store, jwt *auth.JWTService, log zerolog.Logger) ([]DevUser, error) {
	users := []DevUser{
		{ID: DevUserID("admin"), Email: "admin@request-mailer.local", Role: auth.RoleAdmin},
		{ID: DevUserID("user"), Email: "user@request-mailer.local", Role: "user"},
	}
	admin, user := users[0].ID, users[1].ID

	reg.Add(registry.Recipient{ID: 1, Name: "Records Office", Category: "agency", Email: "records@example.org", Request: "Release of 2025 meeting minutes"}, user)
	reg.Add(registry.Recipient{ID: 2, Name: "Budget Team", Category: "agency", Email: "budget@example.org", Request: "Quarterly spending report"}, user)
	reg.Add(registry.Recipient{ID: 3, Name: "Archive Desk", Category: "library", Request: "Historic permit files"}, user)
	reg.Add(registry.Recipient{ID: 4, Name: "Council Clerk", Category: "council", Email: "clerk@example.org", Request: "Committee attendance records"})

	for i := range users {
		_, err := EnsureCredential(ctx, creds, credential.Credential{
			UserID:      users[i].ID,
			Kind:        transport.KindStdout,
			FromAddress: users[i].Email,
			FromName:    "Request Mailer Dev",
		}, log)
		if err != nil {
			return nil, err
		}

		token, err := jwt.GenerateAccessToken(users[i].ID, users[i].Email, users[i].Role)
		if err != nil {
			return nil, fmt.Errorf("issue dev token: %w", err)
		}
		users[i].Token = token
	}

	log.Info().
		Stringer("admin_id", admin).
		Stringer("user_id", user).
		Int("recipients", 4).
		Msg("development data seeded")
	return users, nil
}
