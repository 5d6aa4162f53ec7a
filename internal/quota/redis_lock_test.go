package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLocker(client, time.Minute, 5*time.Millisecond, zerolog.Nop()), mr
}

func TestRedisLocker_AcquireAndRelease(t *testing.T) {
	locker, mr := newRedisLocker(t)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "quota:lock:u1")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if !mr.Exists("quota:lock:u1") {
		t.Fatal("expected lock key to exist")
	}
	if ttl := mr.TTL("quota:lock:u1"); ttl <= 0 {
		t.Errorf("expected lock key to carry a TTL, got %v", ttl)
	}

	unlock()
	if mr.Exists("quota:lock:u1") {
		t.Error("expected lock key to be deleted")
	}
}

func TestRedisLocker_SecondHolderWaits(t *testing.T) {
	locker, _ := newRedisLocker(t)

	unlock, err := locker.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded while held, got %v", err)
	}

	unlock()
	again, err := locker.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("Lock after release: %v", err)
	}
	again()
}

func TestRedisLocker_UnlockLeavesForeignToken(t *testing.T) {
	locker, mr := newRedisLocker(t)

	unlock, err := locker.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	// Simulate expiry followed by another instance taking the lock.
	mr.FastForward(2 * time.Minute)
	if err := mr.Set("k", "someone-else"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	unlock()
	got, err := mr.Get("k")
	if err != nil || got != "someone-else" {
		t.Errorf("foreign lock was removed: value=%q err=%v", got, err)
	}
}

func TestLedger_WithRedisLocker(t *testing.T) {
	locker, mr := newRedisLocker(t)
	ledger := NewLedger(NewMemoryStore(), zerolog.Nop(), WithLocker(locker), WithDefaultQuota(5))
	userID := uuid.New()
	ctx := context.Background()

	res, err := ledger.CheckAndReserve(ctx, userID, 2)
	if err != nil {
		t.Fatalf("CheckAndReserve: %v", err)
	}
	if !mr.Exists("quota:lock:" + userID.String()) {
		t.Error("expected distributed lock to be held during reservation")
	}
	if _, err := res.Commit(ctx, 2); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if mr.Exists("quota:lock:" + userID.String()) {
		t.Error("expected distributed lock to be released after commit")
	}
}

func TestRedisLocker_RenewsWhileHeld(t *testing.T) {
	locker, mr := newRedisLocker(t)
	locker.refresh = 5 * time.Millisecond

	unlock, err := locker.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	// Four half-TTL jumps add up to twice the TTL; each is followed by a
	// renewal.
	for i := 0; i < 4; i++ {
		mr.FastForward(30 * time.Second)
		time.Sleep(40 * time.Millisecond)
	}
	if !mr.Exists("k") {
		t.Fatal("lock expired while its holder was still running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second holder acquired while first still holds: %v", err)
	}

	unlock()
	if mr.Exists("k") {
		t.Error("expected lock key to be deleted after release")
	}
	unlock()
}

func TestRedisLocker_StopsRenewingAfterRelease(t *testing.T) {
	locker, mr := newRedisLocker(t)
	locker.refresh = 5 * time.Millisecond

	unlock, err := locker.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	unlock()

	// A later holder's key must not be extended by the released watchdog.
	if err := mr.Set("k", "someone-else"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	mr.SetTTL("k", time.Minute)
	time.Sleep(30 * time.Millisecond)
	mr.FastForward(61 * time.Second)
	if mr.Exists("k") {
		t.Error("released lock kept renewing a foreign key")
	}
}

func TestRedisLocker_DoesNotRenewForeignKey(t *testing.T) {
	locker, mr := newRedisLocker(t)
	locker.refresh = 5 * time.Millisecond

	unlock, err := locker.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer unlock()

	if err := mr.Set("k", "someone-else"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	mr.SetTTL("k", time.Minute)
	time.Sleep(30 * time.Millisecond)
	mr.FastForward(61 * time.Second)
	if mr.Exists("k") {
		t.Error("watchdog extended a key owned by another holder")
	}
}
