package userstate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/revivelabs/photorestore/internal/api"
	"github.com/revivelabs/photorestore/internal/models"
)

// subscriberDailyAllowance stands in for "unlimited" on active
// subscriptions; the backend owns the real policy.
const subscriberDailyAllowance = 999

// Provider caches the last-fetched UserSnapshot for the session. Balances
// are overwritten wholesale on refresh and patched from enhancement
// responses; nothing is ever decremented locally.
type Provider struct {
	client     *api.Client
	log        *slog.Logger
	dailyLimit int
	now        func() time.Time

	mu       sync.RWMutex
	snapshot *models.UserSnapshot
}

func NewProvider(client *api.Client, log *slog.Logger, dailyLimit int) *Provider {
	return &Provider{
		client:     client,
		log:        log,
		dailyLimit: dailyLimit,
		now:        time.Now,
	}
}

// Refresh fetches the authoritative profile and derives the daily free-usage
// counters from today's history. A failed history fetch falls back to the
// full daily allowance rather than failing the refresh.
func (p *Provider) Refresh(ctx context.Context, userID string) error {
	profile, err := p.client.Restore(ctx, userID, nil)
	if err != nil {
		return fmt.Errorf("refresh user: %w", err)
	}

	now := p.now()
	snapshot := models.UserSnapshot{
		UserID:              userID,
		StandardCredits:     profile.StandardCredits,
		HDCredits:           profile.HDCredits,
		SubscriptionType:    profile.SubscriptionType,
		SubscriptionExpires: profile.SubscriptionExpires,
	}

	limit := p.dailyLimit
	if snapshot.SubscriptionActive(now) {
		limit = subscriberDailyAllowance
	}

	usedStandard, usedHD := 0, 0
	history, err := p.client.ListEnhancements(ctx, userID)
	if err != nil {
		if p.log != nil {
			p.log.Warn("history fetch failed, assuming full daily allowance", "err", err)
		}
	} else {
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		for _, entry := range history {
			if entry.CreatedAt.Before(midnight) {
				continue
			}
			if entry.Resolution == models.ResolutionHD {
				usedHD++
			} else {
				usedStandard++
			}
		}
	}

	snapshot.RemainingTodayStandard = max(0, limit-usedStandard)
	snapshot.RemainingTodayHD = max(0, limit-usedHD)

	p.mu.Lock()
	p.snapshot = &snapshot
	p.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the cached state; ok is false before the first
// successful refresh.
func (p *Provider) Snapshot() (models.UserSnapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.snapshot == nil {
		return models.UserSnapshot{}, false
	}
	return *p.snapshot, true
}

// ApplyCreditUpdate overwrites the fields the server actually reported and
// leaves the rest untouched. No-op before the first refresh.
func (p *Provider) ApplyCreditUpdate(update api.CreditUpdate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.snapshot == nil {
		return
	}
	if update.Standard != nil {
		p.snapshot.StandardCredits = *update.Standard
	}
	if update.HD != nil {
		p.snapshot.HDCredits = *update.HD
	}
	if update.RemainingTodayStandard != nil {
		p.snapshot.RemainingTodayStandard = *update.RemainingTodayStandard
	}
	if update.RemainingTodayHD != nil {
		p.snapshot.RemainingTodayHD = *update.RemainingTodayHD
	}
}
