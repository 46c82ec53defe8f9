package media

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

type trackState int32

const (
	trackStateOk trackState = iota
	trackStateDelete
)

// outTrack is one delivery leg from a producer to a receiver. The preferred
// layer is recorded per consumer; in a simulcast setup it selects the
// forwarded encoding, for plain audio it is bookkeeping the control plane
// reads back.
type outTrack struct {
	track  *webrtc.TrackLocalStaticRTP
	userID domain.UserID
	state  atomic.Int32 // zero value is trackStateOk
	layer  atomic.Int32
}

func newOutTrack(track *webrtc.TrackLocalStaticRTP, userID domain.UserID) *outTrack {
	ot := &outTrack{track: track, userID: userID}
	ot.layer.Store(int32(domain.TierHigh.LayerIndex()))
	return ot
}

func (ot *outTrack) getState() trackState { return trackState(ot.state.Load()) }
func (ot *outTrack) markDelete()          { ot.state.Store(int32(trackStateDelete)) }
func (ot *outTrack) setLayer(layer int)   { ot.layer.Store(int32(layer)) }
func (ot *outTrack) preferredLayer() int  { return int(ot.layer.Load()) }

// producer owns one speaker's published track and fans its RTP out to every
// subscribed outTrack.
type producer struct {
	id     core.ProducerID
	owner  peerKey
	cancel context.CancelFunc

	mu   sync.RWMutex
	src  *webrtc.TrackRemote // nil until the remote track arrives
	outs map[core.ConsumerID]*outTrack
}

func newProducer(id core.ProducerID, owner peerKey) *producer {
	return &producer{id: id, owner: owner, outs: make(map[core.ConsumerID]*outTrack)}
}

func (p *producer) addOut(id core.ConsumerID, ot *outTrack) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outs[id] = ot
}

func (p *producer) markAllDelete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ot := range p.outs {
		ot.markDelete()
	}
}

// loop reads RTP packets from the source track and forwards them to all
// subscribed outTracks until ctx is done or the source fails.
func (p *producer) loop(ctx context.Context, logger *zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("forward loop ctx done, marking all out tracks for delete")
			p.markAllDelete()
			return
		default:
		}
		pkt, _, err := p.src.ReadRTP()
		if err != nil {
			logger.Error().Err(err).Msg("forward read RTP error, stopping")
			p.markAllDelete()
			return
		}
		p.forward(pkt, logger)
	}
}

func (p *producer) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	p.mu.RLock()
	snapshot := make(map[core.ConsumerID]*outTrack, len(p.outs))
	maps.Copy(snapshot, p.outs)
	p.mu.RUnlock()

	dirty := make([]core.ConsumerID, 0, len(snapshot))
	for id, ot := range snapshot {
		switch ot.getState() {
		case trackStateDelete:
			dirty = append(dirty, id)
		case trackStateOk:
			if err := ot.track.WriteRTP(pkt); err != nil {
				logger.Error().
					Err(err).
					Str("consumer", string(id)).
					Msg("forward write RTP error, marking out track as delete")
				ot.markDelete()
				dirty = append(dirty, id)
			}
		}
	}

	// Cleanup is done outside the RLock.
	if len(dirty) > 0 {
		p.cleanupDeleted(dirty)
	}
}

func (p *producer) cleanupDeleted(dirty []core.ConsumerID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range dirty {
		delete(p.outs, id)
	}
}
