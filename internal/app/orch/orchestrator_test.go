package orch

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/app/ack"
	"github.com/dkeye/Meet/internal/app/forward"
	"github.com/dkeye/Meet/internal/app/rtcp"
	"github.com/dkeye/Meet/internal/app/verify"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

type engineCall struct {
	op     string
	userID domain.UserID
}

// fakeEngine tracks calls and can be told to fail producer creation.
type fakeEngine struct {
	calls        []engineCall
	producers    []core.ProducerRef
	producerErr  error
	consumerErr  error
	releasedFor  []domain.UserID
	nextConsumer int
}

func (e *fakeEngine) RouterCapabilities(context.Context, domain.MeetingID) (core.Capabilities, error) {
	return core.Capabilities{Codecs: []string{"opus"}}, nil
}

func (e *fakeEngine) Negotiate(_ context.Context, _ domain.MeetingID, userID domain.UserID, _ string) (string, error) {
	e.calls = append(e.calls, engineCall{"negotiate", userID})
	return "v=0 answer", nil
}

func (e *fakeEngine) ApplyAnswer(_ context.Context, _ domain.MeetingID, userID domain.UserID, _ string) error {
	e.calls = append(e.calls, engineCall{"apply_answer", userID})
	return nil
}

func (e *fakeEngine) CreateProducer(_ context.Context, _ domain.MeetingID, userID domain.UserID) (core.ProducerID, error) {
	e.calls = append(e.calls, engineCall{"create_producer", userID})
	if e.producerErr != nil {
		return "", e.producerErr
	}
	id := core.ProducerID("prod-" + string(userID))
	e.producers = append(e.producers, core.ProducerRef{ID: id, UserID: userID})
	return id, nil
}

func (e *fakeEngine) CreateConsumer(_ context.Context, _ domain.MeetingID, _ core.ProducerID, userID domain.UserID, _ core.Capabilities) (core.ConsumerID, error) {
	e.calls = append(e.calls, engineCall{"create_consumer", userID})
	if e.consumerErr != nil {
		return "", e.consumerErr
	}
	e.nextConsumer++
	return core.ConsumerID("cons-" + strconv.Itoa(e.nextConsumer)), nil
}

func (e *fakeEngine) SetPreferredLayer(context.Context, core.ConsumerID, int) error { return nil }
func (e *fakeEngine) ConsumerLayer(core.ConsumerID) (int, bool)                     { return 0, false }

func (e *fakeEngine) ProducersOf(domain.MeetingID) []core.ProducerRef { return e.producers }
func (e *fakeEngine) ConsumersOf(domain.MeetingID) []core.ConsumerRef { return nil }

func (e *fakeEngine) Release(_ domain.MeetingID, userID domain.UserID) {
	e.releasedFor = append(e.releasedFor, userID)
}

type nullNotifier struct{}

func (nullNotifier) NotifyAckSummary(domain.AckSummary) {}

func newTestOrchestrator(engine *fakeEngine) *Orchestrator {
	reg := app.NewMeetingRegistry()
	collector := rtcp.NewCollector(reg, 10)
	forwarder := forward.NewForwarder(reg, engine)
	acks := ack.NewAggregator(reg, nullNotifier{}, time.Second)
	verifier := verify.NewVerifier(reg, acks, verify.Config{})
	return &Orchestrator{
		Registry:  reg,
		Collector: collector,
		Forwarder: forwarder,
		Verifier:  verifier,
		Acks:      acks,
		Engine:    engine,
	}
}

func TestJoinReturnsPriorParticipants(t *testing.T) {
	o := newTestOrchestrator(&fakeEngine{})

	_, existing, err := o.Join("m1", "alice", "Alice")
	require.NoError(t, err)
	assert.Empty(t, existing)

	_, existing, err = o.Join("m1", "bob", "Bob")
	require.NoError(t, err)
	require.Len(t, existing, 1)
	assert.Equal(t, domain.UserID("alice"), existing[0].UserID)

	sess, ok := o.Registry.GetUserSession("m1", "bob")
	require.True(t, ok)
	assert.Equal(t, domain.StateConnected, sess.State)
	assert.NotEmpty(t, sess.PCID)
}

func TestJoinRejectsEmptyUser(t *testing.T) {
	o := newTestOrchestrator(&fakeEngine{})
	_, _, err := o.Join("m1", "", "Nobody")
	assert.ErrorIs(t, err, domain.ErrUserIDEmpty)
}

func TestLeaveReleasesEngineAndCascades(t *testing.T) {
	engine := &fakeEngine{}
	o := newTestOrchestrator(engine)
	pcID, _, err := o.Join("m1", "alice", "Alice")
	require.NoError(t, err)

	removed, meetingDeleted := o.Leave("m1", "alice", pcID)
	assert.True(t, removed)
	assert.True(t, meetingDeleted)
	assert.Equal(t, []domain.UserID{"alice"}, engine.releasedFor)

	// Second leave finds nothing.
	removed, meetingDeleted = o.Leave("m1", "alice", pcID)
	assert.False(t, removed)
	assert.False(t, meetingDeleted)
	assert.Len(t, engine.releasedFor, 1)
}

func TestLeaveStaleConnectionKeepsFreshSession(t *testing.T) {
	engine := &fakeEngine{}
	o := newTestOrchestrator(engine)

	stalePC, _, err := o.Join("m1", "alice", "Alice")
	require.NoError(t, err)

	// Same user joins again on a new connection before the old one noticed.
	freshPC, _, err := o.Join("m1", "alice", "Alice")
	require.NoError(t, err)
	require.NotEqual(t, stalePC, freshPC)

	// The old connection's teardown must leave the fresh session untouched.
	removed, meetingDeleted := o.Leave("m1", "alice", stalePC)
	assert.False(t, removed)
	assert.False(t, meetingDeleted)
	assert.Empty(t, engine.releasedFor)

	sess, ok := o.Registry.GetUserSession("m1", "alice")
	require.True(t, ok)
	assert.Equal(t, freshPC, sess.PCID)

	removed, meetingDeleted = o.Leave("m1", "alice", freshPC)
	assert.True(t, removed)
	assert.True(t, meetingDeleted)
}

func TestHandleOfferStreamsOnSuccess(t *testing.T) {
	engine := &fakeEngine{}
	o := newTestOrchestrator(engine)
	_, _, err := o.Join("m1", "alice", "Alice")
	require.NoError(t, err)

	answer, err := o.HandleOffer(context.Background(), "m1", "alice", "v=0 offer")
	require.NoError(t, err)
	assert.Equal(t, "v=0 answer", answer)

	sess, ok := o.Registry.GetUserSession("m1", "alice")
	require.True(t, ok)
	assert.Equal(t, domain.StateStreaming, sess.State)
}

func TestHandleOfferDegradesOnProducerFailure(t *testing.T) {
	engine := &fakeEngine{producerErr: errors.New("no track")}
	o := newTestOrchestrator(engine)
	_, _, err := o.Join("m1", "alice", "Alice")
	require.NoError(t, err)

	// The answer still comes back; the session is degraded, not torn down.
	answer, err := o.HandleOffer(context.Background(), "m1", "alice", "v=0 offer")
	require.NoError(t, err)
	assert.NotEmpty(t, answer)

	sess, ok := o.Registry.GetUserSession("m1", "alice")
	require.True(t, ok)
	assert.Equal(t, domain.StateDegraded, sess.State)
}

func TestHandleOfferWiresExistingProducers(t *testing.T) {
	engine := &fakeEngine{}
	o := newTestOrchestrator(engine)
	_, _, err := o.Join("m1", "alice", "Alice")
	require.NoError(t, err)
	_, err = o.HandleOffer(context.Background(), "m1", "alice", "v=0 offer")
	require.NoError(t, err)

	_, _, err = o.Join("m1", "bob", "Bob")
	require.NoError(t, err)
	_, err = o.HandleOffer(context.Background(), "m1", "bob", "v=0 offer")
	require.NoError(t, err)

	// Bob consumes alice's producer, alice consumes bob's.
	var consumersFor []domain.UserID
	for _, c := range engine.calls {
		if c.op == "create_consumer" {
			consumersFor = append(consumersFor, c.userID)
		}
	}
	assert.Contains(t, consumersFor, domain.UserID("alice"))
	assert.Contains(t, consumersFor, domain.UserID("bob"))
}

func TestFingerprintFlowEndToEnd(t *testing.T) {
	o := newTestOrchestrator(&fakeEngine{})
	_, _, err := o.Join("m1", "alice", "Alice")
	require.NoError(t, err)
	_, _, err = o.Join("m1", "bob", "Bob")
	require.NoError(t, err)

	o.OnSenderFingerprint("f1", "cafebabe", "alice")
	o.OnReceiverFingerprint("f1", "cafebabe", "bob")

	s := o.Acks.SummaryForSpeaker("m1", "alice")
	assert.Equal(t, []domain.UserID{"bob"}, s.AckedUsers)
	assert.Empty(t, s.MissingUsers)

	sess, ok := o.Registry.GetUserSession("m1", "alice")
	require.True(t, ok)
	assert.Equal(t, "cafebabe", sess.LastCRC32)
}

func TestOnReportFeedsCollector(t *testing.T) {
	o := newTestOrchestrator(&fakeEngine{})
	_, _, err := o.Join("m1", "alice", "Alice")
	require.NoError(t, err)

	o.OnReport(domain.RtcpReport{UserID: "alice", LossPct: 0.09, Timestamp: time.Now()})
	assert.InDelta(t, 0.09, o.Collector.WorstLoss("m1"), 1e-9)
}
