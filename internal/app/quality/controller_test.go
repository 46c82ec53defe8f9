package quality

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/domain"
)

type stubLosses struct {
	loss float64
}

func (s *stubLosses) WorstLoss(domain.MeetingID) float64 { return s.loss }

type stubApplier struct {
	calls []domain.QualityTier
	err   error
}

func (s *stubApplier) SetTier(_ context.Context, _ domain.MeetingID, tier domain.QualityTier) error {
	s.calls = append(s.calls, tier)
	return s.err
}

type stubTierNotifier struct {
	changes []domain.QualityTier
}

func (s *stubTierNotifier) NotifyTierChange(_ domain.MeetingID, tier domain.QualityTier) {
	s.changes = append(s.changes, tier)
}

func newTestController(t *testing.T, losses *stubLosses, applier *stubApplier, notify *stubTierNotifier) (*Controller, *app.MeetingRegistry) {
	t.Helper()
	reg := app.NewMeetingRegistry()
	sess, err := domain.NewUserSession("alice", "Alice", "pc-1")
	require.NoError(t, err)
	reg.RegisterUser("m1", sess)
	c := NewController(reg, losses, applier, notify, Config{})
	return c, reg
}

func TestDecideTierTable(t *testing.T) {
	c := NewController(nil, nil, nil, nil, Config{
		LowLoss:    0.02,
		MediumLoss: 0.05,
		Hysteresis: 0.02,
	})

	cases := []struct {
		name    string
		loss    float64
		current domain.QualityTier
		want    domain.QualityTier
	}{
		// From HIGH: the exit threshold is low+hysteresis = 0.04.
		{"high stays under band", 0.0, domain.TierHigh, domain.TierHigh},
		{"high stays at 3.9%", 0.039, domain.TierHigh, domain.TierHigh},
		{"high drops to medium at 4%", 0.04, domain.TierHigh, domain.TierMedium},
		{"high drops straight to low at 6%", 0.06, domain.TierHigh, domain.TierLow},
		{"high drops to low at medium threshold", 0.05, domain.TierHigh, domain.TierLow},

		// From MEDIUM: plain thresholds.
		{"medium recovers to high", 0.01, domain.TierMedium, domain.TierHigh},
		{"medium holds", 0.03, domain.TierMedium, domain.TierMedium},
		{"medium degrades to low", 0.05, domain.TierMedium, domain.TierLow},

		// From LOW: the exit threshold is medium-hysteresis = 0.03.
		{"low stays above band", 0.03, domain.TierLow, domain.TierLow},
		{"low stays at 100%", 1.0, domain.TierLow, domain.TierLow},
		{"low recovers to medium at 2.9%", 0.029, domain.TierLow, domain.TierMedium},
		{"low recovers straight to high", 0.01, domain.TierLow, domain.TierHigh},

		// No current tier: plain thresholds.
		{"fresh low loss", 0.0, "", domain.TierHigh},
		{"fresh medium loss", 0.03, "", domain.TierMedium},
		{"fresh heavy loss", 0.2, "", domain.TierLow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, c.DecideTier(tc.loss, tc.current))
		})
	}
}

func TestEvaluateMeetingAppliesChange(t *testing.T) {
	losses := &stubLosses{loss: 0.06}
	applier := &stubApplier{}
	notify := &stubTierNotifier{}
	c, reg := newTestController(t, losses, applier, notify)

	changed := c.EvaluateMeeting(context.Background(), "m1")
	require.True(t, changed)
	require.Equal(t, []domain.QualityTier{domain.TierLow}, applier.calls)
	assert.Equal(t, []domain.QualityTier{domain.TierLow}, notify.changes)

	// The registry tier is only moved by the applier in production; simulate it
	// so the next evaluation sees the new current tier.
	reg.UpdateQualityTier("m1", domain.TierLow)
	changed = c.EvaluateMeeting(context.Background(), "m1")
	assert.False(t, changed)
	assert.Len(t, applier.calls, 1)
}

func TestEvaluateMeetingNoChangeIsCheap(t *testing.T) {
	losses := &stubLosses{loss: 0.0}
	applier := &stubApplier{}
	c, _ := newTestController(t, losses, applier, nil)

	changed := c.EvaluateMeeting(context.Background(), "m1")
	assert.False(t, changed)
	assert.Empty(t, applier.calls)
}

func TestEvaluateMeetingUnknownMeeting(t *testing.T) {
	c, _ := newTestController(t, &stubLosses{loss: 0.5}, &stubApplier{}, nil)
	assert.False(t, c.EvaluateMeeting(context.Background(), "ghost"))
}

func TestEvaluateMeetingApplierFailure(t *testing.T) {
	losses := &stubLosses{loss: 0.5}
	applier := &stubApplier{err: errors.New("engine down")}
	notify := &stubTierNotifier{}
	c, _ := newTestController(t, losses, applier, notify)

	changed := c.EvaluateMeeting(context.Background(), "m1")
	assert.False(t, changed)
	assert.Empty(t, notify.changes)
}
