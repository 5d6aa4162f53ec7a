package events

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/request-mailer/internal/deliverylog"
)

func recv(t *testing.T, sub *Subscription) (deliverylog.Entry, bool) {
	t.Helper()
	select {
	case e, ok := <-sub.C():
		return e, ok
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return deliverylog.Entry{}, false
	}
}

func assertEmpty(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case e, ok := <-sub.C():
		if ok {
			t.Errorf("unexpected event %+v", e)
		}
	default:
	}
}

func TestBroker_StreamIsolation(t *testing.T) {
	b := NewBroker(8, zerolog.Nop())
	alice, bob := uuid.New(), uuid.New()

	aliceSub := b.Subscribe(ForViewer(alice, false))
	bobSub := b.Subscribe(ForViewer(bob, false))
	adminSub := b.Subscribe(ForViewer(uuid.New(), true))
	defer aliceSub.Close()
	defer bobSub.Close()
	defer adminSub.Close()

	b.Publish(deliverylog.Entry{ID: 1, UserID: alice})

	if e, _ := recv(t, aliceSub); e.ID != 1 {
		t.Errorf("alice got %+v", e)
	}
	if e, _ := recv(t, adminSub); e.ID != 1 {
		t.Errorf("admin got %+v", e)
	}
	assertEmpty(t, bobSub)
}

func TestBroker_OrderWithinPublisher(t *testing.T) {
	b := NewBroker(8, zerolog.Nop())
	sub := b.Subscribe(All())
	defer sub.Close()

	for i := int64(1); i <= 3; i++ {
		b.Publish(deliverylog.Entry{ID: i})
	}
	for want := int64(1); want <= 3; want++ {
		if e, _ := recv(t, sub); e.ID != want {
			t.Errorf("got id %d, want %d", e.ID, want)
		}
	}
}

func TestBroker_DropsSlowSubscriber(t *testing.T) {
	b := NewBroker(1, zerolog.Nop())
	slow := b.Subscribe(All())
	fast := b.Subscribe(All())

	b.Publish(deliverylog.Entry{ID: 1})
	if e, _ := recv(t, fast); e.ID != 1 {
		t.Fatalf("fast got %+v", e)
	}

	done := make(chan struct{})
	go func() {
		b.Publish(deliverylog.Entry{ID: 2})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	if e, _ := recv(t, fast); e.ID != 2 {
		t.Errorf("fast got %+v", e)
	}
	if e, ok := recv(t, slow); !ok || e.ID != 1 {
		t.Errorf("slow first event = %+v, %v", e, ok)
	}
	if _, ok := recv(t, slow); ok {
		t.Error("slow subscriber channel should be closed after drop")
	}
	if b.Len() != 1 {
		t.Errorf("Len() = %d, want 1", b.Len())
	}
	fast.Close()
}

func TestBroker_UnsubscribeIdempotent(t *testing.T) {
	b := NewBroker(0, zerolog.Nop())
	sub := b.Subscribe(nil)
	sub.Close()
	b.Unsubscribe(sub)

	if _, ok := <-sub.C(); ok {
		t.Error("channel should be closed")
	}
	if b.Len() != 0 {
		t.Errorf("Len() = %d, want 0", b.Len())
	}
	b.Publish(deliverylog.Entry{ID: 1})
}
