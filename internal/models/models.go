package models

import "time"

type FlowStep string

const (
	StepPhotoInput    FlowStep = "photo-input"
	StepModeSelection FlowStep = "mode-selection"
	StepPreview       FlowStep = "preview"
	StepResult        FlowStep = "result"
)

type Mode string

const (
	ModeEnhance   Mode = "enhance"
	ModeColorize  Mode = "colorize"
	ModeDeScratch Mode = "de-scratch"
	ModeEnlighten Mode = "enlighten"
	ModeRecreate  Mode = "recreate"
	ModeCombine   Mode = "combine"
)

// Modes lists every enhancement mode the backend accepts.
var Modes = []Mode{ModeEnhance, ModeColorize, ModeDeScratch, ModeEnlighten, ModeRecreate, ModeCombine}

func (m Mode) Valid() bool {
	for _, known := range Modes {
		if m == known {
			return true
		}
	}
	return false
}

type Resolution string

const (
	ResolutionStandard Resolution = "standard"
	ResolutionHD       Resolution = "hd"
)

func (r Resolution) Valid() bool {
	return r == ResolutionStandard || r == ResolutionHD
}

type ProcessingSettings struct {
	QualityLevel float64
	Resolution   Resolution
}

// EnhancementResult is the outcome of one completed server-side enhancement.
// EnhancedURI is absolute by the time it is stored here.
type EnhancementResult struct {
	OriginalURI    string
	EnhancedURI    string
	EnhancementID  string
	Watermark      bool
	ProcessingTime float64
}

// UserSnapshot is the client's cached copy of server-authoritative credit and
// subscription data. Balances are fetched or patched from responses, never
// computed locally.
type UserSnapshot struct {
	UserID                 string
	StandardCredits        int
	HDCredits              int
	SubscriptionType       string
	SubscriptionExpires    *time.Time
	RemainingTodayStandard int
	RemainingTodayHD       int
}

func (u UserSnapshot) SubscriptionActive(now time.Time) bool {
	return u.SubscriptionType != "" && u.SubscriptionExpires != nil && u.SubscriptionExpires.After(now)
}

// CanEnhance reports whether the bucket for the given resolution allows
// another enhancement: a positive balance or remaining daily free usage.
func (u UserSnapshot) CanEnhance(res Resolution) bool {
	if res == ResolutionHD {
		return u.HDCredits > 0 || u.RemainingTodayHD > 0
	}
	return u.StandardCredits > 0 || u.RemainingTodayStandard > 0
}

type Device struct {
	ID         string
	Name       string
	Type       string
	LastActive string
	IsCurrent  bool
	DeviceID   string
}

type HistoryEntry struct {
	ID             string
	EnhancedURL    string
	ThumbnailURL   string
	Mode           Mode
	Resolution     Resolution
	ProcessingTime float64
	Watermark      bool
	CreatedAt      time.Time
}
