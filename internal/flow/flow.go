package flow

import (
	"errors"
	"fmt"
	"sync"

	"github.com/revivelabs/photorestore/internal/models"
)

var (
	ErrPhotoRequired  = errors.New("no photo selected")
	ErrModeRequired   = errors.New("no mode selected")
	ErrNoResult       = errors.New("no enhancement result")
	ErrInvalidMode    = errors.New("unknown enhancement mode")
	ErrInvalidQuality = errors.New("quality level out of range")
)

// State is one pass through the restoration wizard: which step the user is
// on and what has been collected so far. Zero value is a fresh flow sitting
// on photo input.
type State struct {
	CurrentStep        models.FlowStep
	SelectedPhoto      string
	SelectedMode       models.Mode
	ProcessingSettings *models.ProcessingSettings
	Result             *models.EnhancementResult
}

func initialState() State {
	return State{CurrentStep: models.StepPhotoInput}
}

// Coordinator guards the wizard state and gates forward movement. Mutators
// re-check the previous step's data themselves instead of trusting callers
// to consult CanNavigateTo first.
type Coordinator struct {
	mu    sync.RWMutex
	state State
}

func NewCoordinator() *Coordinator {
	return &Coordinator{state: initialState()}
}

// Snapshot returns a copy of the current state.
func (c *Coordinator) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SetSelectedPhoto stores the photo reference and moves to mode selection.
// Any non-empty string is accepted; existence of the file is the caller's
// problem until upload time.
func (c *Coordinator) SetSelectedPhoto(uri string) error {
	if uri == "" {
		return ErrPhotoRequired
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.SelectedPhoto = uri
	c.state.CurrentStep = models.StepModeSelection
	return nil
}

// SetSelectedMode stores the mode and moves to preview. Requires a photo.
func (c *Coordinator) SetSelectedMode(mode models.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.SelectedPhoto == "" {
		return ErrPhotoRequired
	}
	c.state.SelectedMode = mode
	c.state.CurrentStep = models.StepPreview
	return nil
}

// SetProcessingSettings stores quality and resolution without changing step.
func (c *Coordinator) SetProcessingSettings(settings models.ProcessingSettings) error {
	if settings.QualityLevel < 0 || settings.QualityLevel > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidQuality, settings.QualityLevel)
	}
	if !settings.Resolution.Valid() {
		return fmt.Errorf("invalid resolution %q", settings.Resolution)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.ProcessingSettings = &settings
	return nil
}

// SetResult stores the enhancement result verbatim and moves to the result
// step.
func (c *Coordinator) SetResult(result *models.EnhancementResult) error {
	if result == nil {
		return ErrNoResult
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Result = result
	c.state.CurrentStep = models.StepResult
	return nil
}

// Reset restores the initial empty state for a new restoration.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = initialState()
}

// CanNavigateTo is the pure reachability predicate: photo input is always
// reachable, mode selection needs a photo, preview needs photo and mode,
// result needs a stored result.
func (c *Coordinator) CanNavigateTo(step models.FlowStep) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch step {
	case models.StepPhotoInput:
		return true
	case models.StepModeSelection:
		return c.state.SelectedPhoto != ""
	case models.StepPreview:
		return c.state.SelectedPhoto != "" && c.state.SelectedMode != ""
	case models.StepResult:
		return c.state.Result != nil
	default:
		return false
	}
}
