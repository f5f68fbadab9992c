package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/revivelabs/photorestore/internal/models"
)

// UserProfile is the bootstrap payload from /api/restore: the balances and
// subscription the server holds for this user id.
type UserProfile struct {
	StandardCredits     int
	HDCredits           int
	SubscriptionType    string
	SubscriptionExpires *time.Time
}

type wireProfile struct {
	Credits             *int   `json:"credits"`
	StandardCredits     *int   `json:"standard_credits"`
	HDCredits           *int   `json:"hd_credits"`
	SubscriptionType    string `json:"subscription_type"`
	SubscriptionExpires string `json:"subscription_expires"`
}

// Restore fetches (and server-side creates, if needed) the user record.
// Receipts are forwarded for purchase restoration; an empty slice is the
// normal bootstrap call.
func (c *Client) Restore(ctx context.Context, userID string, receipts []string) (*UserProfile, error) {
	if receipts == nil {
		receipts = []string{}
	}
	payload := map[string]any{
		"user_id":  userID,
		"receipts": receipts,
	}

	var wire wireProfile
	if err := c.postJSON(ctx, pathRestore, payload, &wire); err != nil {
		return nil, fmt.Errorf("restore user: %w", err)
	}

	profile := &UserProfile{SubscriptionType: wire.SubscriptionType}
	// Split balances when present, legacy single bucket otherwise.
	if wire.StandardCredits != nil {
		profile.StandardCredits = *wire.StandardCredits
	} else if wire.Credits != nil {
		profile.StandardCredits = *wire.Credits
	}
	if wire.HDCredits != nil {
		profile.HDCredits = *wire.HDCredits
	}
	if ts := parseServerTime(wire.SubscriptionExpires); !ts.IsZero() {
		profile.SubscriptionExpires = &ts
	}
	return profile, nil
}

type PurchaseResult struct {
	Success             bool
	PurchaseID          string
	Credits             int
	SubscriptionType    string
	SubscriptionExpires *time.Time
}

// Purchase submits a store receipt for validation and crediting.
func (c *Client) Purchase(ctx context.Context, userID, productID, receipt string) (*PurchaseResult, error) {
	payload := map[string]any{
		"user_id":    userID,
		"product_id": productID,
		"receipt":    receipt,
	}

	var wire struct {
		Success             bool   `json:"success"`
		PurchaseID          string `json:"purchase_id"`
		Credits             int    `json:"credits"`
		SubscriptionType    string `json:"subscription_type"`
		SubscriptionExpires string `json:"subscription_expires"`
	}
	if err := c.postJSON(ctx, pathPurchase, payload, &wire); err != nil {
		return nil, fmt.Errorf("purchase: %w", err)
	}

	result := &PurchaseResult{
		Success:          wire.Success,
		PurchaseID:       wire.PurchaseID,
		Credits:          wire.Credits,
		SubscriptionType: wire.SubscriptionType,
	}
	if ts := parseServerTime(wire.SubscriptionExpires); !ts.IsZero() {
		result.SubscriptionExpires = &ts
	}
	return result, nil
}

// Ids are strings on the wire (the backend generates UUIDs), never numbers.
type wireHistoryEntry struct {
	ID             string  `json:"id"`
	EnhancedURL    string  `json:"enhanced_url"`
	ThumbnailURL   string  `json:"thumbnail_url"`
	Mode           string  `json:"mode"`
	Resolution     string  `json:"resolution"`
	ProcessingTime float64 `json:"processing_time"`
	Watermark      bool    `json:"watermark"`
	CreatedAt      string  `json:"created_at"`
}

// ListEnhancements fetches this user's enhancement history. The server has
// returned both a bare array and an {"enhancements": [...]} wrapper over
// time; both are accepted.
func (c *Client) ListEnhancements(ctx context.Context, userID string) ([]models.HistoryEntry, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, pathEnhancements+"/"+userID, &raw); err != nil {
		return nil, fmt.Errorf("list enhancements: %w", err)
	}

	var entries []wireHistoryEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		var wrapped struct {
			Enhancements []wireHistoryEntry `json:"enhancements"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, fmt.Errorf("decode enhancements: %w (body=%s)", err, truncateBody(raw))
		}
		entries = wrapped.Enhancements
	}

	history := make([]models.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		history = append(history, models.HistoryEntry{
			ID:             e.ID,
			EnhancedURL:    c.resolve(e.EnhancedURL),
			ThumbnailURL:   c.resolve(e.ThumbnailURL),
			Mode:           models.Mode(e.Mode),
			Resolution:     models.Resolution(e.Resolution),
			ProcessingTime: e.ProcessingTime,
			Watermark:      e.Watermark,
			CreatedAt:      parseServerTime(e.CreatedAt),
		})
	}
	return history, nil
}

// DownloadImage streams the image at url (absolute or server-relative) into w.
func (c *Client) DownloadImage(ctx context.Context, url string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(url), nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode}
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	return nil
}

// parseServerTime accepts the timestamp formats the backend emits: RFC 3339
// and the bare ISO form without zone. Zero time means absent or unparseable.
func parseServerTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts
		}
	}
	return time.Time{}
}
