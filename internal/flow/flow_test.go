package flow

import (
	"errors"
	"testing"

	"github.com/revivelabs/photorestore/internal/models"
)

func TestCanNavigateTo(t *testing.T) {
	tests := []struct {
		name  string
		setup func(c *Coordinator)
		step  models.FlowStep
		want  bool
	}{
		{
			name:  "photo input always reachable",
			setup: func(c *Coordinator) {},
			step:  models.StepPhotoInput,
			want:  true,
		},
		{
			name:  "mode selection blocked without photo",
			setup: func(c *Coordinator) {},
			step:  models.StepModeSelection,
			want:  false,
		},
		{
			name: "mode selection reachable with photo",
			setup: func(c *Coordinator) {
				mustSetPhoto(c, "file://a.jpg")
			},
			step: models.StepModeSelection,
			want: true,
		},
		{
			name: "preview blocked with photo only",
			setup: func(c *Coordinator) {
				mustSetPhoto(c, "file://a.jpg")
			},
			step: models.StepPreview,
			want: false,
		},
		{
			name: "preview reachable with photo and mode",
			setup: func(c *Coordinator) {
				mustSetPhoto(c, "file://a.jpg")
				if err := c.SetSelectedMode(models.ModeColorize); err != nil {
					panic(err)
				}
			},
			step: models.StepPreview,
			want: true,
		},
		{
			name:  "result blocked without result",
			setup: func(c *Coordinator) {},
			step:  models.StepResult,
			want:  false,
		},
		{
			name: "result reachable once stored",
			setup: func(c *Coordinator) {
				if err := c.SetResult(&models.EnhancementResult{EnhancementID: "1"}); err != nil {
					panic(err)
				}
			},
			step: models.StepResult,
			want: true,
		},
		{
			name:  "unknown step never reachable",
			setup: func(c *Coordinator) {},
			step:  models.FlowStep("settings"),
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCoordinator()
			tt.setup(c)
			if got := c.CanNavigateTo(tt.step); got != tt.want {
				t.Errorf("CanNavigateTo(%q) = %v, want %v", tt.step, got, tt.want)
			}
		})
	}
}

func TestSelectPhotoAdvancesToModeSelection(t *testing.T) {
	c := NewCoordinator()
	if err := c.SetSelectedPhoto("file://a.jpg"); err != nil {
		t.Fatalf("SetSelectedPhoto: %v", err)
	}

	state := c.Snapshot()
	if state.CurrentStep != models.StepModeSelection {
		t.Errorf("step = %q, want %q", state.CurrentStep, models.StepModeSelection)
	}
	if state.SelectedPhoto != "file://a.jpg" {
		t.Errorf("photo = %q, want file://a.jpg", state.SelectedPhoto)
	}
	if state.SelectedMode != "" || state.Result != nil {
		t.Errorf("mode/result should still be unset, got %+v", state)
	}
}

func TestSelectModeAdvancesToPreview(t *testing.T) {
	c := NewCoordinator()
	mustSetPhoto(c, "file://a.jpg")

	if err := c.SetSelectedMode(models.ModeEnhance); err != nil {
		t.Fatalf("SetSelectedMode: %v", err)
	}

	state := c.Snapshot()
	if state.CurrentStep != models.StepPreview {
		t.Errorf("step = %q, want %q", state.CurrentStep, models.StepPreview)
	}
	if state.SelectedMode != models.ModeEnhance {
		t.Errorf("mode = %q, want %q", state.SelectedMode, models.ModeEnhance)
	}
	if state.SelectedPhoto != "file://a.jpg" {
		t.Errorf("photo changed unexpectedly: %q", state.SelectedPhoto)
	}
}

func TestSelectModeWithoutPhotoRejected(t *testing.T) {
	c := NewCoordinator()

	err := c.SetSelectedMode(models.ModeEnhance)
	if !errors.Is(err, ErrPhotoRequired) {
		t.Fatalf("err = %v, want ErrPhotoRequired", err)
	}

	state := c.Snapshot()
	if state.CurrentStep != models.StepPhotoInput {
		t.Errorf("step moved to %q on rejected transition", state.CurrentStep)
	}
	if state.SelectedMode != "" {
		t.Errorf("mode stored despite rejection: %q", state.SelectedMode)
	}
}

func TestSelectModeUnknownRejected(t *testing.T) {
	c := NewCoordinator()
	mustSetPhoto(c, "file://a.jpg")

	if err := c.SetSelectedMode(models.Mode("sharpen")); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("err = %v, want ErrInvalidMode", err)
	}
}

func TestSetResultStoresVerbatim(t *testing.T) {
	c := NewCoordinator()
	result := &models.EnhancementResult{
		OriginalURI:    "a",
		EnhancedURI:    "b",
		EnhancementID:  "1",
		Watermark:      false,
		ProcessingTime: 30,
	}

	// From any prior state, including a brand new flow.
	if err := c.SetResult(result); err != nil {
		t.Fatalf("SetResult: %v", err)
	}

	state := c.Snapshot()
	if state.CurrentStep != models.StepResult {
		t.Errorf("step = %q, want %q", state.CurrentStep, models.StepResult)
	}
	if *state.Result != *result {
		t.Errorf("result = %+v, want %+v", *state.Result, *result)
	}
}

func TestSetResultNilRejected(t *testing.T) {
	c := NewCoordinator()
	if err := c.SetResult(nil); !errors.Is(err, ErrNoResult) {
		t.Fatalf("err = %v, want ErrNoResult", err)
	}
}

func TestProcessingSettingsValidation(t *testing.T) {
	tests := []struct {
		name     string
		settings models.ProcessingSettings
		wantErr  bool
	}{
		{"valid standard", models.ProcessingSettings{QualityLevel: 0.5, Resolution: models.ResolutionStandard}, false},
		{"valid hd bounds", models.ProcessingSettings{QualityLevel: 1, Resolution: models.ResolutionHD}, false},
		{"quality below range", models.ProcessingSettings{QualityLevel: -0.1, Resolution: models.ResolutionStandard}, true},
		{"quality above range", models.ProcessingSettings{QualityLevel: 1.5, Resolution: models.ResolutionStandard}, true},
		{"bad resolution", models.ProcessingSettings{QualityLevel: 0.5, Resolution: "4k"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCoordinator()
			err := c.SetProcessingSettings(tt.settings)
			if (err != nil) != tt.wantErr {
				t.Errorf("SetProcessingSettings(%+v) err = %v, wantErr %v", tt.settings, err, tt.wantErr)
			}
			if !tt.wantErr {
				if got := c.Snapshot().ProcessingSettings; got == nil || *got != tt.settings {
					t.Errorf("settings not stored: %+v", got)
				}
			}
		})
	}
}

func TestSettingsDoNotChangeStep(t *testing.T) {
	c := NewCoordinator()
	mustSetPhoto(c, "file://a.jpg")

	if err := c.SetProcessingSettings(models.ProcessingSettings{QualityLevel: 0.8, Resolution: models.ResolutionHD}); err != nil {
		t.Fatalf("SetProcessingSettings: %v", err)
	}
	if step := c.Snapshot().CurrentStep; step != models.StepModeSelection {
		t.Errorf("step = %q, want unchanged %q", step, models.StepModeSelection)
	}
}

func TestResetBlocksEverythingButPhotoInput(t *testing.T) {
	c := NewCoordinator()
	mustSetPhoto(c, "file://a.jpg")
	if err := c.SetSelectedMode(models.ModeRecreate); err != nil {
		t.Fatalf("SetSelectedMode: %v", err)
	}
	if err := c.SetResult(&models.EnhancementResult{EnhancementID: "1"}); err != nil {
		t.Fatalf("SetResult: %v", err)
	}

	c.Reset()

	for _, step := range []models.FlowStep{models.StepModeSelection, models.StepPreview, models.StepResult} {
		if c.CanNavigateTo(step) {
			t.Errorf("CanNavigateTo(%q) = true after reset", step)
		}
	}
	if !c.CanNavigateTo(models.StepPhotoInput) {
		t.Error("photo input should stay reachable after reset")
	}
	if state := c.Snapshot(); state.CurrentStep != models.StepPhotoInput {
		t.Errorf("step = %q after reset", state.CurrentStep)
	}
}

func mustSetPhoto(c *Coordinator, uri string) {
	if err := c.SetSelectedPhoto(uri); err != nil {
		panic(err)
	}
}
