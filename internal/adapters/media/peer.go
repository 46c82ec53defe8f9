package media

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Peer wraps one participant's PeerConnection. It owns the pion resources;
// the engine must Close() it.
type Peer struct {
	pc     *webrtc.PeerConnection
	label  string
	cancel context.CancelFunc

	onTrack func(ctx context.Context, track *webrtc.TrackRemote)

	mu           sync.Mutex
	pendingTrack *webrtc.TrackRemote
}

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

func NewPeer(cfg webrtc.Configuration, label string) (*Peer, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &Peer{pc: pc, label: label}, nil
}

func (p *Peer) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "media").Str("peer", p.label).Str("ice_state", s.String()).Msg("ICE state")
		if s == webrtc.ICEConnectionStateDisconnected ||
			s == webrtc.ICEConnectionStateFailed ||
			s == webrtc.ICEConnectionStateClosed {
			cancel()
		}
	})

	p.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "media").Str("peer", p.label).Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed {
			cancel()
		}
	})

	p.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "media").
			Str("peer", p.label).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Msg("OnTrack received")
		p.mu.Lock()
		p.pendingTrack = track
		cb := p.onTrack
		p.mu.Unlock()
		if cb != nil {
			cb(ctx, track)
		}
	})
}

// OnTrack sets application-level callback for remote tracks.
func (p *Peer) OnTrack(fn func(ctx context.Context, track *webrtc.TrackRemote)) {
	p.mu.Lock()
	p.onTrack = fn
	p.mu.Unlock()
}

// RemoteTrack returns the remote audio track, if one already arrived.
func (p *Peer) RemoteTrack() *webrtc.TrackRemote {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pendingTrack
}

// ApplyOfferAndCreateAnswer runs the answerer side of a negotiation and
// blocks until ICE gathering completes, so the answer carries all candidates.
func (p *Peer) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}

	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	<-gatherComplete

	return p.pc.LocalDescription(), nil
}

// ApplyAnswer completes a locally initiated negotiation.
func (p *Peer) ApplyAnswer(answer webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(answer)
}

// AddLocalTrack attaches a local static RTP track to the PeerConnection.
func (p *Peer) AddLocalTrack(track *webrtc.TrackLocalStaticRTP) (*webrtc.RTPSender, error) {
	return p.pc.AddTrack(track)
}

func (p *Peer) Close() {
	if p.cancel != nil {
		p.cancel()
	}
	if p.pc != nil {
		if err := p.pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "media").Str("peer", p.label).Msg("close error")
		} else {
			log.Info().Str("module", "media").Str("peer", p.label).Msg("closed")
		}
	}
}
