package devices

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/revivelabs/photorestore/internal/config"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.Config{APIBaseURL: srv.URL, RequestTimeout: 5 * time.Second}, nil)
}

func TestSendVerificationPayloadAndHeaders(t *testing.T) {
	var gotHeaders http.Header
	var gotPayload map[string]string

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/email/send-verification" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotHeaders = r.Header.Clone()
		json.NewDecoder(r.Body).Decode(&gotPayload)
		io.WriteString(w, `{"success": true, "message": "sent", "expires_in_minutes": 10}`)
	}))

	info, err := client.SendVerification(context.Background(), "user@example.com", "dev-1", "Work Laptop", "linux")
	if err != nil {
		t.Fatalf("SendVerification: %v", err)
	}
	if !info.Success || info.ExpiresInMinutes != 10 {
		t.Errorf("info = %+v", info)
	}

	if gotHeaders.Get("X-Email") != "user@example.com" || gotHeaders.Get("X-Device-ID") != "dev-1" {
		t.Errorf("auth headers = %v", gotHeaders)
	}
	want := map[string]string{
		"email":       "user@example.com",
		"device_id":   "dev-1",
		"device_name": "Work Laptop",
		"device_type": "linux",
	}
	for k, v := range want {
		if gotPayload[k] != v {
			t.Errorf("payload[%s] = %q, want %q", k, gotPayload[k], v)
		}
	}
}

func TestSendVerificationRejectsBadEmail(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be made for an invalid email")
	}))

	if _, err := client.SendVerification(context.Background(), "not-an-email", "dev-1", "", ""); err == nil {
		t.Fatal("expected error for invalid email")
	}
}

func TestListMarksCurrentDevice(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/email/devices/user@example.com" {
			t.Errorf("path = %s", r.URL.Path)
		}
		io.WriteString(w, `{"email": "user@example.com", "devices": [
			{"id": "1", "name": "Phone", "type": "iOS", "device_id": "dev-1"},
			{"id": "2", "name": "Tablet", "type": "Android", "device_id": "dev-2"}
		]}`)
	}))

	devices, err := client.List(context.Background(), "user@example.com", "dev-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("len = %d, want 2", len(devices))
	}
	if !devices[0].IsCurrent || devices[1].IsCurrent {
		t.Errorf("IsCurrent flags wrong: %+v", devices)
	}
}

func TestRemoveRefusesCurrentDeviceLocally(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be made when removing the current device")
	}))

	_, err := client.Remove(context.Background(), "user@example.com", "dev-1", "dev-1")
	if !errors.Is(err, ErrCurrentDevice) {
		t.Fatalf("err = %v, want ErrCurrentDevice", err)
	}
}

func TestRemoveOtherDevice(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		if payload["device_id_to_remove"] != "dev-2" || payload["requesting_device_id"] != "dev-1" {
			t.Errorf("payload = %v", payload)
		}
		io.WriteString(w, `{"success": true, "message": "removed", "removed_device_id": "dev-2"}`)
	}))

	result, err := client.Remove(context.Background(), "user@example.com", "dev-1", "dev-2")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !result.Success || result.RemovedDeviceID != "dev-2" {
		t.Errorf("result = %+v", result)
	}
}

func TestErrorSurfacesServerDetail(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"detail": "code expired"}`)
	}))

	_, err := client.VerifyCode(context.Background(), "user@example.com", "dev-1", "000000", "linux")
	if err == nil || !strings.Contains(err.Error(), "code expired") {
		t.Errorf("err = %v, want detail surfaced", err)
	}
}
