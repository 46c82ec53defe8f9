package forward

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// stubEngine records layer switches; SetPreferredLayer runs concurrently so
// everything is mutex-guarded.
type stubEngine struct {
	mu        sync.Mutex
	consumers map[domain.MeetingID][]core.ConsumerRef
	layers    map[core.ConsumerID]int
	failing   map[core.ConsumerID]bool
	switched  []core.ConsumerID
}

func newStubEngine() *stubEngine {
	return &stubEngine{
		consumers: make(map[domain.MeetingID][]core.ConsumerRef),
		layers:    make(map[core.ConsumerID]int),
		failing:   make(map[core.ConsumerID]bool),
	}
}

func (e *stubEngine) RouterCapabilities(context.Context, domain.MeetingID) (core.Capabilities, error) {
	return core.Capabilities{Codecs: []string{"opus"}}, nil
}

func (e *stubEngine) Negotiate(context.Context, domain.MeetingID, domain.UserID, string) (string, error) {
	return "", nil
}

func (e *stubEngine) ApplyAnswer(context.Context, domain.MeetingID, domain.UserID, string) error {
	return nil
}

func (e *stubEngine) CreateProducer(context.Context, domain.MeetingID, domain.UserID) (core.ProducerID, error) {
	return "", nil
}

func (e *stubEngine) CreateConsumer(context.Context, domain.MeetingID, core.ProducerID, domain.UserID, core.Capabilities) (core.ConsumerID, error) {
	return "", nil
}

func (e *stubEngine) SetPreferredLayer(_ context.Context, id core.ConsumerID, layer int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.switched = append(e.switched, id)
	if e.failing[id] {
		return errors.New("layer switch refused")
	}
	e.layers[id] = layer
	return nil
}

func (e *stubEngine) ConsumerLayer(id core.ConsumerID) (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.layers[id]
	return l, ok
}

func (e *stubEngine) ProducersOf(domain.MeetingID) []core.ProducerRef { return nil }

func (e *stubEngine) ConsumersOf(meetingID domain.MeetingID) []core.ConsumerRef {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.consumers[meetingID]
}

func (e *stubEngine) Release(domain.MeetingID, domain.UserID) {}

func newTestForwarder(t *testing.T) (*Forwarder, *stubEngine, *app.MeetingRegistry) {
	t.Helper()
	reg := app.NewMeetingRegistry()
	for _, u := range []domain.UserID{"alice", "bob"} {
		sess, err := domain.NewUserSession(u, string(u), "pc-"+string(u))
		require.NoError(t, err)
		reg.RegisterUser("m1", sess)
	}
	engine := newStubEngine()
	engine.consumers["m1"] = []core.ConsumerRef{
		{ID: "c-alice", UserID: "alice"},
		{ID: "c-bob", UserID: "bob"},
	}
	return NewForwarder(reg, engine), engine, reg
}

func TestSetTierAppliesLayerToAllConsumers(t *testing.T) {
	f, engine, reg := newTestForwarder(t)

	require.NoError(t, f.SetTier(context.Background(), "m1", domain.TierLow))

	for _, id := range []core.ConsumerID{"c-alice", "c-bob"} {
		layer, ok := engine.ConsumerLayer(id)
		require.True(t, ok)
		assert.Equal(t, 0, layer)
	}
	m, ok := reg.GetMeeting("m1")
	require.True(t, ok)
	assert.Equal(t, domain.TierLow, m.Tier)
}

func TestSetTierIdempotent(t *testing.T) {
	f, engine, _ := newTestForwarder(t)

	require.NoError(t, f.SetTier(context.Background(), "m1", domain.TierMedium))
	engine.mu.Lock()
	engine.layers = make(map[core.ConsumerID]int)
	engine.mu.Unlock()

	// Same tier again: no engine calls at all.
	require.NoError(t, f.SetTier(context.Background(), "m1", domain.TierMedium))
	engine.mu.Lock()
	defer engine.mu.Unlock()
	assert.Empty(t, engine.layers)
}

func TestSetTierSkipsConsumersAlreadyAtLayer(t *testing.T) {
	f, engine, _ := newTestForwarder(t)

	// c-alice is already delivering at the LOW layer; only c-bob needs a
	// switch.
	engine.mu.Lock()
	engine.layers["c-alice"] = domain.TierLow.LayerIndex()
	engine.mu.Unlock()

	require.NoError(t, f.SetTier(context.Background(), "m1", domain.TierLow))

	engine.mu.Lock()
	defer engine.mu.Unlock()
	assert.Equal(t, []core.ConsumerID{"c-bob"}, engine.switched)
}

func TestSetTierInvalid(t *testing.T) {
	f, _, _ := newTestForwarder(t)
	err := f.SetTier(context.Background(), "m1", "ULTRA")
	assert.ErrorIs(t, err, domain.ErrInvalidTier)
}

func TestSetTierPartialFailureDoesNotBlockOthers(t *testing.T) {
	f, engine, _ := newTestForwarder(t)
	engine.failing["c-alice"] = true

	require.NoError(t, f.SetTier(context.Background(), "m1", domain.TierLow))

	_, ok := engine.ConsumerLayer("c-alice")
	assert.False(t, ok)
	layer, ok := engine.ConsumerLayer("c-bob")
	require.True(t, ok)
	assert.Equal(t, 0, layer)
}

func TestSelectTierForFallbackChain(t *testing.T) {
	f, _, _ := newTestForwarder(t)

	// Nothing set anywhere but the registry default: HIGH.
	assert.Equal(t, domain.TierHigh, f.SelectTierFor("m1", "alice"))

	// Meeting tier set.
	require.NoError(t, f.SetTier(context.Background(), "m1", domain.TierMedium))
	assert.Equal(t, domain.TierMedium, f.SelectTierFor("m1", "alice"))

	// User override wins over the meeting tier.
	require.NoError(t, f.SetUserTier("m1", "alice", domain.TierLow))
	assert.Equal(t, domain.TierLow, f.SelectTierFor("m1", "alice"))
	assert.Equal(t, domain.TierMedium, f.SelectTierFor("m1", "bob"))

	// Cleared override falls back to the meeting tier.
	f.ClearUserTier("m1", "alice")
	assert.Equal(t, domain.TierMedium, f.SelectTierFor("m1", "alice"))

	// Unknown meeting with no local state: ultimate HIGH fallback.
	assert.Equal(t, domain.TierHigh, f.SelectTierFor("ghost", "alice"))
}

func TestCleanupMeetingDropsOverrides(t *testing.T) {
	f, _, _ := newTestForwarder(t)
	require.NoError(t, f.SetTier(context.Background(), "m1", domain.TierLow))
	require.NoError(t, f.SetUserTier("m1", "alice", domain.TierMedium))

	f.CleanupMeeting("m1")

	// Local maps are gone; the registry still answers for the live meeting.
	assert.Equal(t, domain.TierLow, f.SelectTierFor("m1", "alice"))
}
