package devices

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/revivelabs/photorestore/internal/config"
	"github.com/revivelabs/photorestore/internal/models"
)

const (
	pathSendVerification = "/api/email/send-verification"
	pathVerifyCode       = "/api/email/verify-code"
	pathDevices          = "/api/email/devices"
	pathRemoveDevice     = "/api/email/remove-device"
)

// ErrCurrentDevice is returned when a removal targets the device making the
// request; refused locally before any network call.
var ErrCurrentDevice = errors.New("cannot remove the current device")

// Client drives the email-linking endpoints that sync one account across
// devices. Requests identify the caller with X-Email / X-Device-ID headers.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.APIBaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

type VerificationInfo struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	ExpiresInMinutes int    `json:"expires_in_minutes"`
	LinkedEmail      string `json:"linked_email"`
	// VerificationCode is only populated by development backends that skip
	// sending real mail.
	VerificationCode string `json:"verification_code"`
}

// SendVerification asks the backend to email a verification code. A
// non-empty LinkedEmail in the response means this device is already bound
// to another address.
func (c *Client) SendVerification(ctx context.Context, email, deviceID, deviceName, deviceType string) (*VerificationInfo, error) {
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("invalid email address %q", email)
	}
	payload := map[string]string{
		"email":       email,
		"device_id":   deviceID,
		"device_name": deviceName,
		"device_type": deviceType,
	}
	var info VerificationInfo
	if err := c.post(ctx, pathSendVerification, email, deviceID, payload, &info); err != nil {
		return nil, fmt.Errorf("send verification: %w", err)
	}
	return &info, nil
}

type VerifyResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	DeviceID string `json:"device_id"`
	Email    string `json:"email"`
}

// VerifyCode exchanges the emailed code for a device link.
func (c *Client) VerifyCode(ctx context.Context, email, deviceID, code, deviceType string) (*VerifyResult, error) {
	payload := map[string]string{
		"email":       email,
		"device_id":   deviceID,
		"code":        code,
		"device_type": deviceType,
	}
	var result VerifyResult
	if err := c.post(ctx, pathVerifyCode, email, deviceID, payload, &result); err != nil {
		return nil, fmt.Errorf("verify code: %w", err)
	}
	return &result, nil
}

// List fetches the devices linked to email.
func (c *Client) List(ctx context.Context, email, deviceID string) ([]models.Device, error) {
	endpoint := c.baseURL + pathDevices + "/" + url.PathEscape(email)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	c.setAuthHeaders(req, email, deviceID)

	var wire struct {
		Devices []struct {
			ID         string `json:"id"`
			Name       string `json:"name"`
			Type       string `json:"type"`
			LastActive string `json:"last_active"`
			DeviceID   string `json:"device_id"`
		} `json:"devices"`
	}
	if err := c.doJSON(req, &wire); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	devices := make([]models.Device, 0, len(wire.Devices))
	for _, d := range wire.Devices {
		devices = append(devices, models.Device{
			ID:         d.ID,
			Name:       d.Name,
			Type:       d.Type,
			LastActive: d.LastActive,
			IsCurrent:  d.DeviceID == deviceID,
			DeviceID:   d.DeviceID,
		})
	}
	return devices, nil
}

type RemoveResult struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	RemovedDeviceID string `json:"removed_device_id"`
}

// Remove unlinks another device from the account. Removing the requesting
// device itself is refused without a network call.
func (c *Client) Remove(ctx context.Context, email, requestingDeviceID, targetDeviceID string) (*RemoveResult, error) {
	if targetDeviceID == requestingDeviceID {
		return nil, ErrCurrentDevice
	}
	payload := map[string]string{
		"email":                email,
		"device_id_to_remove":  targetDeviceID,
		"requesting_device_id": requestingDeviceID,
	}
	var result RemoveResult
	if err := c.post(ctx, pathRemoveDevice, email, requestingDeviceID, payload, &result); err != nil {
		return nil, fmt.Errorf("remove device: %w", err)
	}
	return &result, nil
}

func (c *Client) post(ctx context.Context, path, email, deviceID string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	c.setAuthHeaders(req, email, deviceID)
	return c.doJSON(req, out)
}

func (c *Client) setAuthHeaders(req *http.Request, email, deviceID string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Email", email)
	req.Header.Set("X-Device-ID", deviceID)
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call backend: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 300 {
		var detail struct {
			Detail string `json:"detail"`
		}
		_ = json.Unmarshal(body, &detail)
		if detail.Detail != "" {
			return fmt.Errorf("status %d: %s", resp.StatusCode, detail.Detail)
		}
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
