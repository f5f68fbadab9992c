package api

import (
	"context"
	"fmt"
)

// TrackEvent ships one analytics event. The response body is ignored beyond
// status checking; callers decide how much they care about failure.
func (c *Client) TrackEvent(ctx context.Context, userID, eventType string, eventData map[string]any, platform, appVersion string) error {
	if eventData == nil {
		eventData = map[string]any{}
	}
	payload := map[string]any{
		"user_id":     userID,
		"event_type":  eventType,
		"event_data":  eventData,
		"platform":    platform,
		"app_version": appVersion,
	}
	if err := c.postJSON(ctx, pathAnalytics, payload, nil); err != nil {
		return fmt.Errorf("track event %s: %w", eventType, err)
	}
	return nil
}
