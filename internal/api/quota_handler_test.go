package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sungwon/request-mailer/internal/auth"
	"github.com/sungwon/request-mailer/internal/quota"
)

func TestQuotaStatusHandler(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New()
	env.quota.statusFn = func(ctx context.Context, id uuid.UUID) (quota.State, error) {
		if id != userID {
			t.Errorf("Status(%v), want caller %v", id, userID)
		}
		return quota.State{
			UserID:        id,
			DailyQuota:    50,
			UsedToday:     12,
			Remaining:     38,
			LastResetDate: time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
		}, nil
	}

	rec := env.do(t, http.MethodGet, "/email/quota", env.token(t, userID, "user"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeBody(t, rec)
	if resp["dailyQuota"].(float64) != 50 || resp["usedToday"].(float64) != 12 || resp["remaining"].(float64) != 38 {
		t.Errorf("response = %v", resp)
	}
	if resp["lastResetDate"] != "2026-03-04" {
		t.Errorf("lastResetDate = %v", resp["lastResetDate"])
	}
}

func TestSetQuotaHandler(t *testing.T) {
	target := uuid.New()

	tests := []struct {
		name       string
		path       string
		body       interface{}
		wantStatus int
		wantQuota  int
	}{
		{"sets quota", "/admin/quota/" + target.String(), map[string]int{"dailyQuota": 250}, http.StatusOK, 250},
		{"zero is allowed", "/admin/quota/" + target.String(), map[string]int{"dailyQuota": 0}, http.StatusOK, 0},
		{"missing field", "/admin/quota/" + target.String(), map[string]int{}, http.StatusBadRequest, 0},
		{"negative", "/admin/quota/" + target.String(), map[string]int{"dailyQuota": -1}, http.StatusBadRequest, 0},
		{"largest 32-bit quota", "/admin/quota/" + target.String(), map[string]int{"dailyQuota": 2147483647}, http.StatusOK, 2147483647},
		{"wider than 32 bits", "/admin/quota/" + target.String(), map[string]int{"dailyQuota": 4294967296}, http.StatusBadRequest, 0},
		{"bad user id", "/admin/quota/not-a-uuid", map[string]int{"dailyQuota": 1}, http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.quota.setFn = func(ctx context.Context, id uuid.UUID, n int) (quota.State, error) {
				if id != target {
					t.Errorf("SetDailyQuota user = %v", id)
				}
				return quota.State{UserID: id, DailyQuota: n, Remaining: n}, nil
			}

			rec := env.do(t, http.MethodPut, tt.path, env.token(t, uuid.New(), auth.RoleAdmin), tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus == http.StatusOK {
				if got := decodeBody(t, rec)["dailyQuota"].(float64); int(got) != tt.wantQuota {
					t.Errorf("dailyQuota = %v, want %d", got, tt.wantQuota)
				}
			}
		})
	}
}

func TestCreditQuotaHandler(t *testing.T) {
	env := newTestEnv(t)
	target := uuid.New()
	var credited int
	env.quota.creditFn = func(ctx context.Context, id uuid.UUID, n int) (quota.State, error) {
		credited = n
		return quota.State{UserID: id, DailyQuota: 10, UsedToday: 10 - n, Remaining: n}, nil
	}
	tok := env.token(t, uuid.New(), auth.RoleAdmin)

	rec := env.do(t, http.MethodPost, "/admin/quota/"+target.String()+"/credit", tok, map[string]int{"amount": 3})
	if rec.Code != http.StatusOK || credited != 3 {
		t.Fatalf("status = %d, credited = %d", rec.Code, credited)
	}

	rec = env.do(t, http.MethodPost, "/admin/quota/"+target.String()+"/credit", tok, map[string]int{"amount": 0})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("zero credit status = %d, want 400", rec.Code)
	}

	credited = 0
	rec = env.do(t, http.MethodPost, "/admin/quota/"+target.String()+"/credit", tok, map[string]int{"amount": 2147483648})
	if rec.Code != http.StatusBadRequest || credited != 0 {
		t.Errorf("oversized credit status = %d, credited = %d, want 400 and no call", rec.Code, credited)
	}

	env.quota.creditFn = func(context.Context, uuid.UUID, int) (quota.State, error) {
		return quota.State{}, quota.ErrInvalidAmount
	}
	rec = env.do(t, http.MethodPost, "/admin/quota/"+target.String()+"/credit", tok, map[string]int{"amount": 5})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("ledger rejection status = %d, want 400", rec.Code)
	}
}
