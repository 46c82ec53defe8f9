// Package quality drives the feedback loop that adapts each meeting's audio
// tier to the worst packet loss observed among its receivers.
package quality

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/metrics"
)

const (
	DefaultLowLoss    = 0.02
	DefaultMediumLoss = 0.05
	DefaultHysteresis = 0.02
	DefaultInterval   = 5 * time.Second
)

// LossSource yields the worst retained loss for a meeting.
// Satisfied by rtcp.Collector.
type LossSource interface {
	WorstLoss(domain.MeetingID) float64
}

// TierApplier pushes a decided tier down to the delivery layers.
// Satisfied by forward.Forwarder.
type TierApplier interface {
	SetTier(ctx context.Context, meetingID domain.MeetingID, tier domain.QualityTier) error
}

type Config struct {
	LowLoss    float64
	MediumLoss float64
	Hysteresis float64
	Interval   time.Duration
}

func (c *Config) fill() {
	if c.LowLoss == 0 {
		c.LowLoss = DefaultLowLoss
	}
	if c.MediumLoss == 0 {
		c.MediumLoss = DefaultMediumLoss
	}
	if c.Hysteresis == 0 {
		c.Hysteresis = DefaultHysteresis
	}
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
}

type Controller struct {
	cfg       Config
	registry  *app.MeetingRegistry
	losses    LossSource
	forwarder TierApplier
	notify    core.TierNotifier
	logger    zerolog.Logger
}

func NewController(registry *app.MeetingRegistry, losses LossSource, forwarder TierApplier, notify core.TierNotifier, cfg Config) *Controller {
	cfg.fill()
	return &Controller{
		cfg:       cfg,
		registry:  registry,
		losses:    losses,
		forwarder: forwarder,
		notify:    notify,
		logger:    log.With().Str("module", "quality").Logger(),
	}
}

// DecideTier picks the next tier for the observed worst loss. With a current
// tier the thresholds are widened by the hysteresis band, asymmetrically, so
// loss hovering around a threshold cannot flap the tier: HIGH is only left
// once loss reaches low+hysteresis, LOW is only left once loss falls under
// medium-hysteresis.
func (c *Controller) DecideTier(worstLoss float64, current domain.QualityTier) domain.QualityTier {
	switch current {
	case domain.TierHigh:
		if worstLoss < c.cfg.LowLoss+c.cfg.Hysteresis {
			return domain.TierHigh
		}
		if worstLoss >= c.cfg.MediumLoss {
			return domain.TierLow
		}
		return domain.TierMedium
	case domain.TierMedium:
		if worstLoss >= c.cfg.MediumLoss {
			return domain.TierLow
		}
		if worstLoss < c.cfg.LowLoss {
			return domain.TierHigh
		}
		return domain.TierMedium
	case domain.TierLow:
		if worstLoss >= c.cfg.MediumLoss-c.cfg.Hysteresis {
			return domain.TierLow
		}
		if worstLoss < c.cfg.LowLoss {
			return domain.TierHigh
		}
		return domain.TierMedium
	default:
		// No current tier: plain thresholds.
		if worstLoss < c.cfg.LowLoss {
			return domain.TierHigh
		}
		if worstLoss < c.cfg.MediumLoss {
			return domain.TierMedium
		}
		return domain.TierLow
	}
}

// EvaluateMeeting runs one control step for the meeting. It is invoked every
// period for every meeting, so the unchanged-tier path stays cheap: two map
// lookups and a comparison.
func (c *Controller) EvaluateMeeting(ctx context.Context, meetingID domain.MeetingID) bool {
	m, ok := c.registry.GetMeeting(meetingID)
	if !ok {
		return false
	}
	worst := c.losses.WorstLoss(meetingID)
	next := c.DecideTier(worst, m.Tier)
	if next == m.Tier {
		return false
	}

	c.logger.Info().Str("meeting", string(meetingID)).Float64("worst_loss", worst).
		Str("from", string(m.Tier)).Str("to", string(next)).Msg("tier change")

	if err := c.forwarder.SetTier(ctx, meetingID, next); err != nil {
		c.logger.Error().Err(err).Str("meeting", string(meetingID)).Msg("apply tier")
		return false
	}
	metrics.TierChanges.WithLabelValues(string(next)).Inc()
	if c.notify != nil {
		c.notify.NotifyTierChange(meetingID, next)
	}
	return true
}

// Run evaluates every active meeting on a fixed period until ctx is done.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	c.logger.Info().Dur("interval", c.cfg.Interval).Msg("evaluation loop started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("evaluation loop stopped")
			return
		case <-ticker.C:
			for _, snap := range c.registry.AllMeetings() {
				c.EvaluateMeeting(ctx, snap.ID)
			}
		}
	}
}
