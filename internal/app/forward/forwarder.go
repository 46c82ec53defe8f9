// Package forward owns the meeting/participant to quality tier mapping and
// pushes tier changes into the media engine's per-receiver delivery layers.
package forward

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

type Forwarder struct {
	mu           sync.RWMutex
	meetingTiers map[domain.MeetingID]domain.QualityTier
	userTiers    map[domain.MeetingID]map[domain.UserID]domain.QualityTier

	registry *app.MeetingRegistry
	engine   core.MediaEngine
	logger   zerolog.Logger
}

func NewForwarder(registry *app.MeetingRegistry, engine core.MediaEngine) *Forwarder {
	return &Forwarder{
		meetingTiers: make(map[domain.MeetingID]domain.QualityTier),
		userTiers:    make(map[domain.MeetingID]map[domain.UserID]domain.QualityTier),
		registry:     registry,
		engine:       engine,
		logger:       log.With().Str("module", "forward").Logger(),
	}
}

// SetTier applies the tier to every delivery layer of the meeting. Idempotent:
// an unchanged tier performs no mutation and no engine calls, and consumers
// already delivering at the target layer are skipped. A failed layer switch on
// one receiver is logged and never blocks or fails the others; the engine
// fan-out happens with no internal lock held.
func (f *Forwarder) SetTier(ctx context.Context, meetingID domain.MeetingID, tier domain.QualityTier) error {
	if !tier.Valid() {
		return domain.ErrInvalidTier
	}

	f.mu.Lock()
	if f.meetingTiers[meetingID] == tier {
		f.mu.Unlock()
		return nil
	}
	f.meetingTiers[meetingID] = tier
	f.mu.Unlock()

	f.registry.UpdateQualityTier(meetingID, tier)

	consumers := f.engine.ConsumersOf(meetingID)
	var wg sync.WaitGroup
	for _, ref := range consumers {
		layer := f.SelectTierFor(meetingID, ref.UserID).LayerIndex()
		if cur, ok := f.engine.ConsumerLayer(ref.ID); ok && cur == layer {
			continue
		}
		wg.Add(1)
		go func(ref core.ConsumerRef, layer int) {
			defer wg.Done()
			if err := f.engine.SetPreferredLayer(ctx, ref.ID, layer); err != nil {
				f.logger.Error().Err(err).
					Str("meeting", string(meetingID)).
					Str("user", string(ref.UserID)).
					Int("layer", layer).
					Msg("layer switch failed")
			}
		}(ref, layer)
	}
	wg.Wait()

	f.logger.Info().Str("meeting", string(meetingID)).Str("tier", string(tier)).
		Int("consumers", len(consumers)).Msg("tier applied")
	return nil
}

// SelectTierFor resolves the delivery tier for one receiver: user override,
// else the meeting tier, else HIGH as the ultimate fallback.
func (f *Forwarder) SelectTierFor(meetingID domain.MeetingID, userID domain.UserID) domain.QualityTier {
	f.mu.RLock()
	if overrides, ok := f.userTiers[meetingID]; ok {
		if t, ok := overrides[userID]; ok {
			f.mu.RUnlock()
			return t
		}
	}
	if t, ok := f.meetingTiers[meetingID]; ok {
		f.mu.RUnlock()
		return t
	}
	f.mu.RUnlock()

	if m, ok := f.registry.GetMeeting(meetingID); ok {
		return m.Tier
	}
	return domain.TierHigh
}

// SetUserTier pins a per-receiver override that survives meeting-wide changes.
func (f *Forwarder) SetUserTier(meetingID domain.MeetingID, userID domain.UserID, tier domain.QualityTier) error {
	if !tier.Valid() {
		return domain.ErrInvalidTier
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	overrides, ok := f.userTiers[meetingID]
	if !ok {
		overrides = make(map[domain.UserID]domain.QualityTier)
		f.userTiers[meetingID] = overrides
	}
	overrides[userID] = tier
	return nil
}

// ClearUserTier drops a per-receiver override.
func (f *Forwarder) ClearUserTier(meetingID domain.MeetingID, userID domain.UserID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if overrides, ok := f.userTiers[meetingID]; ok {
		delete(overrides, userID)
		if len(overrides) == 0 {
			delete(f.userTiers, meetingID)
		}
	}
}

// CleanupMeeting removes the meeting tier and every member override. Must be
// invoked when the meeting's last participant leaves.
func (f *Forwarder) CleanupMeeting(meetingID domain.MeetingID) {
	f.mu.Lock()
	_, known := f.meetingTiers[meetingID]
	delete(f.meetingTiers, meetingID)
	delete(f.userTiers, meetingID)
	f.mu.Unlock()
	if !known {
		f.logger.Warn().Str("meeting", string(meetingID)).Msg("cleanup for unknown meeting")
		return
	}
	f.logger.Info().Str("meeting", string(meetingID)).Msg("cleaned up meeting tiers")
}
