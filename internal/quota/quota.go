// Package quota implements the per-user daily sending ledger.
//
// A user's row is reset to zero the first time it is consulted on a new
// calendar day (in the ledger's location). Dispatch for a single user is
// serialized from CheckAndReserve until the Reservation is committed or
// released, so two concurrent batches cannot both pass the pre-check against
// the same remaining balance.
package quota

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/request-mailer/internal/metrics"
)

// DefaultDailyQuota is used for rows created lazily without an explicit value.
const DefaultDailyQuota = 100

// MaxAmount bounds every quota and count; the ledger columns are 32-bit.
const MaxAmount = math.MaxInt32

var (
	// ErrExceeded matches every *ExceededError via errors.Is.
	ErrExceeded = errors.New("daily quota exceeded")
	// ErrInvalidAmount is returned for counts outside [0, MaxAmount].
	ErrInvalidAmount = errors.New("quota: amount out of range")
)

func validAmount(n int) bool {
	return n >= 0 && n <= MaxAmount
}

// ExceededError rejects a batch that asks for more than the remaining
// balance.
type ExceededError struct {
	Remaining int
	Requested int
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("daily quota exceeded: %d requested, %d remaining", e.Requested, e.Remaining)
}

func (e *ExceededError) Is(target error) bool { return target == ErrExceeded }

// State is a reset-applied snapshot of one user's ledger row.
type State struct {
	UserID        uuid.UUID `json:"-"`
	DailyQuota    int       `json:"dailyQuota"`
	UsedToday     int       `json:"usedToday"`
	LastResetDate time.Time `json:"-"`
	Remaining     int       `json:"remaining"`
}

// LastResetDay formats LastResetDate as YYYY-MM-DD.
func (s State) LastResetDay() string {
	return s.LastResetDate.Format("2006-01-02")
}

func (s State) withRemaining() State {
	s.Remaining = s.DailyQuota - s.UsedToday
	if s.Remaining < 0 {
		s.Remaining = 0
	}
	return s
}

// Store persists ledger rows. Days are passed as midnight UTC values carrying
// the calendar date of the ledger's location.
type Store interface {
	// GetOrCreate returns the row, inserting it with dailyQuota and today
	// when it does not exist.
	GetOrCreate(ctx context.Context, userID uuid.UUID, dailyQuota int, today time.Time) (State, error)
	// Reset zeroes usage and moves the reset date to today if it is not
	// already today, returning the resulting row either way.
	Reset(ctx context.Context, userID uuid.UUID, today time.Time) (State, error)
	// Increment adds n in one atomic step. A row whose reset date is not
	// today starts over from n.
	Increment(ctx context.Context, userID uuid.UUID, n int, today time.Time) (State, error)
	SetDailyQuota(ctx context.Context, userID uuid.UUID, dailyQuota int) (State, error)
	// Credit lowers usage by n, clamping at zero.
	Credit(ctx context.Context, userID uuid.UUID, n int) (State, error)
}

// Locker serializes ledger access for one user across processes.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Option configures a Ledger.
type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) {
		if loc != nil {
			l.loc = loc
		}
	}
}

func WithDefaultQuota(n int) Option {
	return func(l *Ledger) {
		if n >= 0 {
			l.defaultQuota = n
		}
	}
}

// WithLocker adds a distributed lock taken after the in-process one.
func WithLocker(locker Locker) Option {
	return func(l *Ledger) { l.locker = locker }
}

// Ledger enforces the daily quota on top of a Store.
type Ledger struct {
	store        Store
	locks        *keyedMutex
	locker       Locker
	defaultQuota int
	now          func() time.Time
	loc          *time.Location
	logger       zerolog.Logger
}

func NewLedger(store Store, logger zerolog.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		store:        store,
		locks:        newKeyedMutex(),
		defaultQuota: DefaultDailyQuota,
		now:          time.Now,
		loc:          time.Local,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Today returns the ledger's current calendar day as midnight UTC.
func (l *Ledger) Today() time.Time {
	return dayOf(l.now(), l.loc)
}

func dayOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// current loads the row and applies the daily reset before anything reads
// UsedToday.
func (l *Ledger) current(ctx context.Context, userID uuid.UUID) (State, error) {
	today := l.Today()
	st, err := l.store.GetOrCreate(ctx, userID, l.defaultQuota, today)
	if err != nil {
		return State{}, fmt.Errorf("load quota state: %w", err)
	}
	if !sameDay(st.LastResetDate, today) {
		prev := st.UsedToday
		st, err = l.store.Reset(ctx, userID, today)
		if err != nil {
			return State{}, fmt.Errorf("reset quota state: %w", err)
		}
		l.logger.Debug().
			Stringer("user_id", userID).
			Int("previous_used", prev).
			Str("reset_date", st.LastResetDay()).
			Msg("daily quota reset")
	}
	return st.withRemaining(), nil
}

// Status returns the reset-applied state without reserving anything.
func (l *Ledger) Status(ctx context.Context, userID uuid.UUID) (State, error) {
	return l.current(ctx, userID)
}

// CheckAndReserve takes the user's dispatch lock and verifies that requested
// sends fit in the remaining balance. On success the lock is held by the
// returned Reservation until Commit or Release. On *ExceededError the lock is
// already released.
func (l *Ledger) CheckAndReserve(ctx context.Context, userID uuid.UUID, requested int) (*Reservation, error) {
	if !validAmount(requested) {
		return nil, ErrInvalidAmount
	}

	unlock, err := l.lock(ctx, userID)
	if err != nil {
		return nil, err
	}

	st, err := l.current(ctx, userID)
	if err != nil {
		unlock()
		return nil, err
	}

	if requested > st.Remaining {
		unlock()
		metrics.QuotaRejectionsTotal.Inc()
		l.logger.Info().
			Stringer("user_id", userID).
			Int("requested", requested).
			Int("remaining", st.Remaining).
			Msg("batch rejected by daily quota")
		return nil, &ExceededError{Remaining: st.Remaining, Requested: requested}
	}

	return &Reservation{
		ledger:    l,
		userID:    userID,
		State:     st,
		Requested: requested,
		unlock:    unlock,
	}, nil
}

func (l *Ledger) lock(ctx context.Context, userID uuid.UUID) (func(), error) {
	key := userID.String()
	unlockLocal, err := l.locks.Lock(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("acquire quota lock: %w", err)
	}
	if l.locker == nil {
		return unlockLocal, nil
	}
	unlockRemote, err := l.locker.Lock(ctx, "quota:lock:"+key)
	if err != nil {
		unlockLocal()
		return nil, fmt.Errorf("acquire distributed quota lock: %w", err)
	}
	return func() {
		unlockRemote()
		unlockLocal()
	}, nil
}

// SetDailyQuota changes the user's daily allowance. Lowering it below the
// current usage is allowed; Remaining clamps at zero.
func (l *Ledger) SetDailyQuota(ctx context.Context, userID uuid.UUID, dailyQuota int) (State, error) {
	if !validAmount(dailyQuota) {
		return State{}, ErrInvalidAmount
	}
	if _, err := l.current(ctx, userID); err != nil {
		return State{}, err
	}
	st, err := l.store.SetDailyQuota(ctx, userID, dailyQuota)
	if err != nil {
		return State{}, fmt.Errorf("set daily quota: %w", err)
	}
	return st.withRemaining(), nil
}

// Credit returns n units of today's usage, e.g. after an approved quota
// increase request.
func (l *Ledger) Credit(ctx context.Context, userID uuid.UUID, n int) (State, error) {
	if !validAmount(n) {
		return State{}, ErrInvalidAmount
	}
	if _, err := l.current(ctx, userID); err != nil {
		return State{}, err
	}
	st, err := l.store.Credit(ctx, userID, n)
	if err != nil {
		return State{}, fmt.Errorf("credit quota: %w", err)
	}
	return st.withRemaining(), nil
}

// Reservation is a passed pre-check holding the user's dispatch lock.
type Reservation struct {
	// State is the ledger row as seen by the pre-check.
	State     State
	Requested int

	ledger *Ledger
	userID uuid.UUID
	unlock func()
	once   sync.Once
}

// Remaining is the balance observed by the pre-check.
func (r *Reservation) Remaining() int { return r.State.Remaining }

// Commit adds sent to today's usage and releases the lock. Only the first
// call of Commit or Release has an effect.
func (r *Reservation) Commit(ctx context.Context, sent int) (State, error) {
	st := r.State
	var err error
	r.once.Do(func() {
		defer r.unlock()
		if !validAmount(sent) {
			err = ErrInvalidAmount
			return
		}
		if sent == 0 {
			return
		}
		st, err = r.ledger.store.Increment(ctx, r.userID, sent, r.ledger.Today())
		if err != nil {
			err = fmt.Errorf("commit quota: %w", err)
			return
		}
		st = st.withRemaining()
		metrics.QuotaCommittedTotal.Add(float64(sent))
		r.ledger.logger.Debug().
			Stringer("user_id", r.userID).
			Int("sent", sent).
			Int("used_today", st.UsedToday).
			Msg("quota committed")
	})
	return st, err
}

// Release frees the lock without consuming quota.
func (r *Reservation) Release() {
	r.once.Do(r.unlock)
}
