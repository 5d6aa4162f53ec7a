package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sungwon/request-mailer/internal/auth"
	"github.com/sungwon/request-mailer/internal/deliverylog"
)

func openStream(t *testing.T, env *testEnv, token string) (*bufio.Reader, func()) {
	t.Helper()
	srv := httptest.NewServer(env.router)
	ctx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/email/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	waitFor(t, func() bool { return env.broker.Len() == 1 })

	return bufio.NewReader(resp.Body), func() {
		cancel()
		resp.Body.Close()
		srv.Close()
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// nextData returns the payload of the next data event, skipping comments.
func nextData(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
}

func TestStreamHandler_OnlyOwnEvents(t *testing.T) {
	env := newTestEnv(t)
	viewer, other := uuid.New(), uuid.New()

	r, closeStream := openStream(t, env, env.token(t, viewer, "user"))
	defer closeStream()

	env.broker.Publish(deliverylog.Entry{ID: 1, UserID: other, Status: deliverylog.StatusSuccess})
	env.broker.Publish(deliverylog.Entry{ID: 2, UserID: viewer, Status: deliverylog.StatusSuccess})

	var got deliverylog.Entry
	if err := json.Unmarshal([]byte(nextData(t, r)), &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != 2 || got.UserID != viewer {
		t.Errorf("first event = %+v, want own entry 2", got)
	}
}

func TestStreamHandler_AdminSeesAll(t *testing.T) {
	env := newTestEnv(t)
	r, closeStream := openStream(t, env, env.token(t, uuid.New(), auth.RoleAdmin))
	defer closeStream()

	env.broker.Publish(deliverylog.Entry{ID: 5, UserID: uuid.New()})

	if data := nextData(t, r); !strings.Contains(data, `"id":5`) {
		t.Errorf("event = %s, want entry 5", data)
	}
}

func TestStreamHandler_Heartbeat(t *testing.T) {
	env := newTestEnv(t)
	r, closeStream := openStream(t, env, env.token(t, uuid.New(), "user"))
	defer closeStream()

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if line == ": keep-alive\n" {
			return
		}
	}
}

func TestStreamHandler_UnsubscribesOnDisconnect(t *testing.T) {
	env := newTestEnv(t)
	_, closeStream := openStream(t, env, env.token(t, uuid.New(), "user"))

	closeStream()
	waitFor(t, func() bool { return env.broker.Len() == 0 })
}
