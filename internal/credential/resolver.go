package credential

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/request-mailer/internal/transport"
)

const defaultCacheTTL = 5 * time.Minute

type cachedMailer struct {
	mailer     transport.Mailer
	credential Credential
	expiresAt  time.Time
}

// MailerFactory builds a transport from a resolved config.
type MailerFactory func(cfg transport.Config) (transport.Mailer, error)

// Resolver returns the Mailer for a user, caching the built transport for a
// TTL. A missing credential is never cached.
type Resolver struct {
	store    Store
	factory  MailerFactory
	defaults transport.Config
	log      zerolog.Logger

	mu       sync.RWMutex
	cache    map[uuid.UUID]*cachedMailer
	cacheTTL time.Duration
	now      func() time.Time
}

// NewResolver uses transport.New with client and the given process-wide
// defaults unless factory is non-nil.
func NewResolver(store Store, defaults transport.Config, client transport.HTTPClient, factory MailerFactory, cacheTTL time.Duration, log zerolog.Logger) *Resolver {
	if factory == nil {
		factory = func(cfg transport.Config) (transport.Mailer, error) {
			return transport.New(cfg, client, log)
		}
	}
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	return &Resolver{
		store:    store,
		factory:  factory,
		defaults: defaults,
		log:      log,
		cache:    make(map[uuid.UUID]*cachedMailer),
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// Resolve returns ErrNotConfigured (possibly wrapped) when the user has no
// credential.
func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID) (transport.Mailer, Credential, error) {
	r.mu.RLock()
	if cached, ok := r.cache[userID]; ok && r.now().Before(cached.expiresAt) {
		m, c := cached.mailer, cached.credential
		r.mu.RUnlock()
		return m, c, nil
	}
	r.mu.RUnlock()

	cred, err := r.store.Get(ctx, userID)
	if err != nil {
		return nil, Credential{}, err
	}

	m, err := r.factory(cred.TransportConfig(r.defaults))
	if err != nil {
		return nil, Credential{}, fmt.Errorf("build %s transport for %s: %w", cred.Kind, userID, err)
	}

	r.log.Debug().
		Stringer("user_id", userID).
		Str("transport", m.Name()).
		Msg("resolved mail transport")

	r.mu.Lock()
	r.cache[userID] = &cachedMailer{mailer: m, credential: cred, expiresAt: r.now().Add(r.cacheTTL)}
	r.mu.Unlock()
	return m, cred, nil
}

// Invalidate drops the cached transport, e.g. after a failed verify or a
// credential change.
func (r *Resolver) Invalidate(userID uuid.UUID) {
	r.mu.Lock()
	delete(r.cache, userID)
	r.mu.Unlock()
}
