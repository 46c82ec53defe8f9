// Package media implements the engine boundary on pion/webrtc: transport
// negotiation, audio ingestion and per-receiver delivery legs with a
// selectable preferred layer.
package media

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

var (
	ErrUnknownPeer     = errors.New("unknown peer")
	ErrUnknownProducer = errors.New("unknown producer")
	ErrUnknownConsumer = errors.New("unknown consumer")
	ErrNoRemoteTrack   = errors.New("no remote track yet")
)

type peerKey struct {
	meeting domain.MeetingID
	user    domain.UserID
}

func (k peerKey) String() string {
	return fmt.Sprintf("%s/%s", k.meeting, k.user)
}

type consumerEntry struct {
	producerID core.ProducerID
	receiver   peerKey
	out        *outTrack
}

// Engine is the in-process media engine. It satisfies core.MediaEngine.
type Engine struct {
	cfg webrtc.Configuration

	mu        sync.RWMutex
	peers     map[peerKey]*Peer
	producers map[core.ProducerID]*producer
	consumers map[core.ConsumerID]*consumerEntry
}

func NewEngine(cfg webrtc.Configuration) *Engine {
	return &Engine{
		cfg:       cfg,
		peers:     make(map[peerKey]*Peer),
		producers: make(map[core.ProducerID]*producer),
		consumers: make(map[core.ConsumerID]*consumerEntry),
	}
}

// RouterCapabilities reports the audio capabilities every consumer is
// negotiated against.
func (e *Engine) RouterCapabilities(ctx context.Context, meetingID domain.MeetingID) (core.Capabilities, error) {
	return core.Capabilities{Codecs: []string{webrtc.MimeTypeOpus}}, nil
}

// Negotiate creates or reuses the participant's transport, applies the
// remote offer and returns the gathered local answer.
func (e *Engine) Negotiate(ctx context.Context, meetingID domain.MeetingID, userID domain.UserID, offerSDP string) (string, error) {
	key := peerKey{meeting: meetingID, user: userID}

	e.mu.Lock()
	peer, ok := e.peers[key]
	if !ok {
		var err error
		peer, err = NewPeer(e.cfg, key.String())
		if err != nil {
			e.mu.Unlock()
			return "", err
		}
		e.peers[key] = peer
		peer.OnTrack(func(trackCtx context.Context, track *webrtc.TrackRemote) {
			e.bindRemoteTrack(trackCtx, key, track)
		})
		peer.Start(ctx)
	}
	e.mu.Unlock()

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}
	answer, err := peer.ApplyOfferAndCreateAnswer(offer)
	if err != nil {
		return "", err
	}
	return answer.SDP, nil
}

// ApplyAnswer completes an engine-initiated negotiation for the peer.
func (e *Engine) ApplyAnswer(ctx context.Context, meetingID domain.MeetingID, userID domain.UserID, answerSDP string) error {
	peer, ok := e.getPeer(meetingID, userID)
	if !ok {
		return ErrUnknownPeer
	}
	return peer.ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answerSDP})
}

// CreateProducer registers the participant's published audio. One producer
// per peer; repeated calls return the existing one. The forward loop starts
// as soon as the remote track is available.
func (e *Engine) CreateProducer(ctx context.Context, meetingID domain.MeetingID, userID domain.UserID) (core.ProducerID, error) {
	key := peerKey{meeting: meetingID, user: userID}

	e.mu.Lock()
	peer, ok := e.peers[key]
	if !ok {
		e.mu.Unlock()
		return "", ErrUnknownPeer
	}
	for id, p := range e.producers {
		if p.owner == key {
			e.mu.Unlock()
			return id, nil
		}
	}
	id := core.ProducerID(uuid.NewString())
	p := newProducer(id, key)
	e.producers[id] = p
	e.mu.Unlock()

	if track := peer.RemoteTrack(); track != nil {
		e.bindRemoteTrack(ctx, key, track)
	}
	log.Info().Str("module", "media").Str("peer", key.String()).Str("producer", string(id)).Msg("producer created")
	return id, nil
}

// bindRemoteTrack attaches the remote track to the owner's producer and
// starts its forward loop. Called from OnTrack and from CreateProducer,
// whichever runs second wins the binding.
func (e *Engine) bindRemoteTrack(ctx context.Context, key peerKey, track *webrtc.TrackRemote) {
	e.mu.Lock()
	var p *producer
	for _, cand := range e.producers {
		if cand.owner == key {
			p = cand
			break
		}
	}
	if p == nil {
		e.mu.Unlock()
		return
	}
	p.mu.Lock()
	if p.src != nil {
		p.mu.Unlock()
		e.mu.Unlock()
		return
	}
	p.src = track
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()
	e.mu.Unlock()

	logger := log.With().
		Str("module", "media").
		Str("peer", key.String()).
		Str("producer", string(p.id)).
		Logger()

	logger.Info().Msg("starting forward loop")
	go p.loop(loopCtx, &logger)
}

// CreateConsumer builds the delivery leg from producerID to userID. One leg
// per (producer, receiver) pair; repeated calls return the existing one.
func (e *Engine) CreateConsumer(ctx context.Context, meetingID domain.MeetingID, producerID core.ProducerID, userID domain.UserID, caps core.Capabilities) (core.ConsumerID, error) {
	key := peerKey{meeting: meetingID, user: userID}

	e.mu.Lock()
	p, ok := e.producers[producerID]
	if !ok {
		e.mu.Unlock()
		return "", ErrUnknownProducer
	}
	peer, ok := e.peers[key]
	if !ok {
		e.mu.Unlock()
		return "", ErrUnknownPeer
	}
	for id, c := range e.consumers {
		if c.producerID == producerID && c.receiver == key {
			e.mu.Unlock()
			return id, nil
		}
	}
	e.mu.Unlock()

	local, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		string(producerID), string(p.owner.user),
	)
	if err != nil {
		return "", err
	}
	if _, err := peer.AddLocalTrack(local); err != nil {
		return "", err
	}

	id := core.ConsumerID(uuid.NewString())
	ot := newOutTrack(local, userID)

	e.mu.Lock()
	e.consumers[id] = &consumerEntry{producerID: producerID, receiver: key, out: ot}
	e.mu.Unlock()
	p.addOut(id, ot)

	log.Info().Str("module", "media").Str("peer", key.String()).
		Str("producer", string(producerID)).Str("consumer", string(id)).Msg("consumer created")
	return id, nil
}

// SetPreferredLayer switches the consumer's delivery layer.
func (e *Engine) SetPreferredLayer(ctx context.Context, consumerID core.ConsumerID, layer int) error {
	e.mu.RLock()
	c, ok := e.consumers[consumerID]
	e.mu.RUnlock()
	if !ok {
		return ErrUnknownConsumer
	}
	c.out.setLayer(layer)
	log.Info().Str("module", "media").Str("consumer", string(consumerID)).
		Str("user", string(c.receiver.user)).Int("layer", layer).Msg("preferred layer set")
	return nil
}

// ConsumerLayer reads the consumer's current delivery layer.
func (e *Engine) ConsumerLayer(consumerID core.ConsumerID) (int, bool) {
	e.mu.RLock()
	c, ok := e.consumers[consumerID]
	e.mu.RUnlock()
	if !ok {
		return 0, false
	}
	return c.out.preferredLayer(), true
}

// ProducersOf lists the meeting's active producers.
func (e *Engine) ProducersOf(meetingID domain.MeetingID) []core.ProducerRef {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []core.ProducerRef
	for id, p := range e.producers {
		if p.owner.meeting == meetingID {
			out = append(out, core.ProducerRef{ID: id, UserID: p.owner.user})
		}
	}
	return out
}

// ConsumersOf lists the meeting's active delivery legs.
func (e *Engine) ConsumersOf(meetingID domain.MeetingID) []core.ConsumerRef {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []core.ConsumerRef
	for id, c := range e.consumers {
		if c.receiver.meeting == meetingID {
			out = append(out, core.ConsumerRef{ID: id, UserID: c.receiver.user})
		}
	}
	return out
}

// Release frees every engine resource held for the participant: their peer,
// their producer and its forward loop, and every delivery leg pointing at
// them.
func (e *Engine) Release(meetingID domain.MeetingID, userID domain.UserID) {
	key := peerKey{meeting: meetingID, user: userID}

	e.mu.Lock()
	peer := e.peers[key]
	delete(e.peers, key)

	for id, p := range e.producers {
		if p.owner != key {
			continue
		}
		p.markAllDelete()
		if p.cancel != nil {
			p.cancel()
		}
		delete(e.producers, id)
	}
	var orphaned []core.ConsumerID
	for id, c := range e.consumers {
		if c.receiver == key {
			c.out.markDelete()
			orphaned = append(orphaned, id)
		}
	}
	for _, id := range orphaned {
		delete(e.consumers, id)
	}
	e.mu.Unlock()

	if peer != nil {
		peer.Close()
	}
	log.Info().Str("module", "media").Str("peer", key.String()).Msg("released")
}

func (e *Engine) getPeer(meetingID domain.MeetingID, userID domain.UserID) (*Peer, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.peers[peerKey{meeting: meetingID, user: userID}]
	return p, ok
}
