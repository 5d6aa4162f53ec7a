package quota

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps ledger rows in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[uuid.UUID]State)}
}

// Seed writes a row as-is; tests use it to start from a stale day.
func (m *MemoryStore) Seed(st State) {
	m.mu.Lock()
	m.rows[st.UserID] = st
	m.mu.Unlock()
}

func (m *MemoryStore) GetOrCreate(_ context.Context, userID uuid.UUID, dailyQuota int, today time.Time) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.rows[userID]
	if !ok {
		st = State{UserID: userID, DailyQuota: dailyQuota, LastResetDate: today}
		m.rows[userID] = st
	}
	return st, nil
}

func (m *MemoryStore) Reset(_ context.Context, userID uuid.UUID, today time.Time) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.rows[userID]
	if !sameDay(st.LastResetDate, today) {
		st.UsedToday = 0
		st.LastResetDate = today
		m.rows[userID] = st
	}
	return st, nil
}

func (m *MemoryStore) Increment(_ context.Context, userID uuid.UUID, n int, today time.Time) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.rows[userID]
	st.UserID = userID
	if sameDay(st.LastResetDate, today) {
		st.UsedToday += n
	} else {
		st.UsedToday = n
		st.LastResetDate = today
	}
	m.rows[userID] = st
	return st, nil
}

func (m *MemoryStore) SetDailyQuota(_ context.Context, userID uuid.UUID, dailyQuota int) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.rows[userID]
	st.UserID = userID
	st.DailyQuota = dailyQuota
	m.rows[userID] = st
	return st, nil
}

func (m *MemoryStore) Credit(_ context.Context, userID uuid.UUID, n int) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.rows[userID]
	st.UsedToday -= n
	if st.UsedToday < 0 {
		st.UsedToday = 0
	}
	m.rows[userID] = st
	return st, nil
}
