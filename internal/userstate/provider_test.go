package userstate

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/revivelabs/photorestore/internal/api"
	"github.com/revivelabs/photorestore/internal/config"
	"github.com/revivelabs/photorestore/internal/models"
)

func intp(v int) *int { return &v }

func newTestProvider(t *testing.T, handler http.Handler) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := api.NewClient(config.Config{APIBaseURL: srv.URL, RequestTimeout: 5 * time.Second}, nil)
	p := NewProvider(client, nil, 5)
	p.now = func() time.Time {
		return time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC)
	}
	return p
}

func TestRefreshDerivesRemainingToday(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/restore":
			io.WriteString(w, `{"standard_credits": 2, "hd_credits": 0, "subscription_type": null}`)
		case "/api/enhancements/user-1":
			// Two standard and one hd today, one standard yesterday.
			io.WriteString(w, `[
				{"id": "e1", "resolution": "standard", "created_at": "2026-08-30T10:00:00"},
				{"id": "e2", "resolution": "standard", "created_at": "2026-08-30T11:00:00"},
				{"id": "e3", "resolution": "hd", "created_at": "2026-08-30T12:00:00"},
				{"id": "e4", "resolution": "standard", "created_at": "2026-08-29T12:00:00"}
			]`)
		default:
			http.NotFound(w, r)
		}
	}))

	if err := p.Refresh(context.Background(), "user-1"); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	snapshot, ok := p.Snapshot()
	if !ok {
		t.Fatal("Snapshot not populated after refresh")
	}
	if snapshot.StandardCredits != 2 || snapshot.HDCredits != 0 {
		t.Errorf("credits = %d/%d, want 2/0", snapshot.StandardCredits, snapshot.HDCredits)
	}
	if snapshot.RemainingTodayStandard != 3 {
		t.Errorf("RemainingTodayStandard = %d, want 3", snapshot.RemainingTodayStandard)
	}
	if snapshot.RemainingTodayHD != 4 {
		t.Errorf("RemainingTodayHD = %d, want 4", snapshot.RemainingTodayHD)
	}
}

func TestRefreshToleratesHistoryFailure(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/restore":
			io.WriteString(w, `{"credits": 1}`)
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))

	if err := p.Refresh(context.Background(), "user-1"); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	snapshot, _ := p.Snapshot()
	if snapshot.RemainingTodayStandard != 5 || snapshot.RemainingTodayHD != 5 {
		t.Errorf("remaining = %d/%d, want full allowance 5/5",
			snapshot.RemainingTodayStandard, snapshot.RemainingTodayHD)
	}
}

func TestRefreshSubscriberGetsFullAllowance(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/restore":
			io.WriteString(w, `{"standard_credits": 0, "hd_credits": 0, "subscription_type": "monthly", "subscription_expires": "2026-12-01T00:00:00"}`)
		case "/api/enhancements/user-1":
			io.WriteString(w, `[{"id": "e1", "resolution": "standard", "created_at": "2026-08-30T10:00:00"}]`)
		default:
			http.NotFound(w, r)
		}
	}))

	if err := p.Refresh(context.Background(), "user-1"); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	snapshot, _ := p.Snapshot()
	if snapshot.RemainingTodayStandard != subscriberDailyAllowance-1 {
		t.Errorf("RemainingTodayStandard = %d, want %d", snapshot.RemainingTodayStandard, subscriberDailyAllowance-1)
	}
	if !snapshot.SubscriptionActive(time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC)) {
		t.Error("subscription should be active")
	}
}

func TestRefreshFailurePreservesNothing(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))

	if err := p.Refresh(context.Background(), "user-1"); err == nil {
		t.Fatal("Refresh should fail when restore fails")
	}
	if _, ok := p.Snapshot(); ok {
		t.Error("snapshot populated despite failed refresh")
	}
}

func TestApplyCreditUpdatePatchesOnlyReportedFields(t *testing.T) {
	p := NewProvider(nil, nil, 5)
	p.snapshot = &models.UserSnapshot{
		UserID:                 "user-1",
		StandardCredits:        5,
		HDCredits:              2,
		RemainingTodayStandard: 3,
		RemainingTodayHD:       1,
	}

	p.ApplyCreditUpdate(api.CreditUpdate{Standard: intp(4), RemainingTodayStandard: intp(2)})

	snapshot, _ := p.Snapshot()
	if snapshot.StandardCredits != 4 || snapshot.RemainingTodayStandard != 2 {
		t.Errorf("patched fields wrong: %+v", snapshot)
	}
	if snapshot.HDCredits != 2 || snapshot.RemainingTodayHD != 1 {
		t.Errorf("unreported fields overwritten: %+v", snapshot)
	}
}

func TestApplyCreditUpdateBeforeRefreshIsNoop(t *testing.T) {
	p := NewProvider(nil, nil, 5)
	p.ApplyCreditUpdate(api.CreditUpdate{Standard: intp(4)})
	if _, ok := p.Snapshot(); ok {
		t.Error("snapshot appeared from a credit patch alone")
	}
}
