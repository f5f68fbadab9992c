package enhance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/revivelabs/photorestore/internal/analytics"
	"github.com/revivelabs/photorestore/internal/api"
	"github.com/revivelabs/photorestore/internal/flow"
	"github.com/revivelabs/photorestore/internal/models"
	"github.com/revivelabs/photorestore/internal/userstate"
)

var (
	// ErrCreditsRequired means the relevant bucket is exhausted; no network
	// call was made and the user should be pointed at purchase.
	ErrCreditsRequired = errors.New("insufficient credits, purchase required")
	// ErrBusy means a submission is already in flight for this flow.
	ErrBusy = errors.New("an enhancement is already processing")
)

// Orchestrator runs the preview step's processing: credit gate, upload,
// credit reconciliation and flow advance. One instance serves the whole
// wizard, so the in-flight guard holds across steps rather than per screen.
type Orchestrator struct {
	client   *api.Client
	users    *userstate.Provider
	flow     *flow.Coordinator
	sink     analytics.Sink
	log      *slog.Logger
	inFlight atomic.Bool
}

func NewOrchestrator(client *api.Client, users *userstate.Provider, coordinator *flow.Coordinator, sink analytics.Sink, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		client: client,
		users:  users,
		flow:   coordinator,
		sink:   sink,
		log:    log,
	}
}

// Process submits the flow's selected photo and mode for enhancement. On
// success the result lands in the flow coordinator and the cached balances
// are patched from the response. On failure the flow stays on preview; there
// is no automatic retry.
func (o *Orchestrator) Process(ctx context.Context, userID string) (*models.EnhancementResult, error) {
	state := o.flow.Snapshot()
	if state.SelectedPhoto == "" {
		return nil, flow.ErrPhotoRequired
	}
	if state.SelectedMode == "" {
		return nil, flow.ErrModeRequired
	}

	resolution := models.ResolutionStandard
	var quality *float64
	if state.ProcessingSettings != nil {
		resolution = state.ProcessingSettings.Resolution
		// Zero quality means the server picks; only an explicit level is sent.
		if q := state.ProcessingSettings.QualityLevel; q > 0 {
			quality = &q
		}
	}

	snapshot, ok := o.users.Snapshot()
	if !ok {
		return nil, fmt.Errorf("user state not loaded")
	}
	if !snapshot.CanEnhance(resolution) {
		return nil, ErrCreditsRequired
	}

	if !o.inFlight.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer o.inFlight.Store(false)

	response, err := o.client.Enhance(ctx, api.EnhanceRequest{
		UserID:       userID,
		FilePath:     state.SelectedPhoto,
		Mode:         state.SelectedMode,
		Resolution:   resolution,
		QualityLevel: quality,
	})
	if err != nil {
		o.sink.Track(ctx, "enhancement_failed", map[string]any{
			"mode":       string(state.SelectedMode),
			"resolution": string(resolution),
			"error":      err.Error(),
		})
		return nil, err
	}

	o.users.ApplyCreditUpdate(response.Credits)

	result := &models.EnhancementResult{
		OriginalURI:    state.SelectedPhoto,
		EnhancedURI:    response.EnhancedURL,
		EnhancementID:  response.EnhancementID,
		Watermark:      response.Watermark,
		ProcessingTime: response.ProcessingTime,
	}
	if err := o.flow.SetResult(result); err != nil {
		return nil, err
	}

	o.sink.Track(ctx, "enhancement_completed", map[string]any{
		"mode":            string(state.SelectedMode),
		"resolution":      string(resolution),
		"processing_time": response.ProcessingTime,
		"watermark":       response.Watermark,
	})
	if o.log != nil {
		o.log.Info("enhancement completed",
			"enhancement_id", response.EnhancementID,
			"mode", state.SelectedMode,
			"resolution", resolution,
			"processing_time", response.ProcessingTime)
	}
	return result, nil
}
