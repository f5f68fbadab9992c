package analytics

import (
	"context"
	"log/slog"

	"github.com/revivelabs/photorestore/internal/api"
)

// Sink receives client telemetry. Implementations must be safe to call from
// anywhere and must never surface an error to the caller; analytics is
// strictly best-effort.
type Sink interface {
	Track(ctx context.Context, eventType string, eventData map[string]any)
}

// HTTPSink forwards events to the backend. A missing user id short-circuits
// silently, matching how the app behaves before identity bootstrap finishes.
type HTTPSink struct {
	client     *api.Client
	log        *slog.Logger
	userID     func(ctx context.Context) (string, error)
	platform   string
	appVersion string
}

func NewHTTPSink(client *api.Client, log *slog.Logger, userID func(ctx context.Context) (string, error), platform, appVersion string) *HTTPSink {
	return &HTTPSink{
		client:     client,
		log:        log,
		userID:     userID,
		platform:   platform,
		appVersion: appVersion,
	}
}

func (s *HTTPSink) Track(ctx context.Context, eventType string, eventData map[string]any) {
	userID, err := s.userID(ctx)
	if err != nil || userID == "" {
		return
	}
	if err := s.client.TrackEvent(ctx, userID, eventType, eventData, s.platform, s.appVersion); err != nil {
		if s.log != nil {
			s.log.Debug("analytics event dropped", "event", eventType, "err", err)
		}
	}
}

// NopSink discards everything; the default for tests.
type NopSink struct{}

func (NopSink) Track(context.Context, string, map[string]any) {}
