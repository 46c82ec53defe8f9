// Package verify matches sender-side frame digests against each receiver's
// digest for the same frame, proving end to end that the audio a receiver
// decoded is the audio the speaker sent.
package verify

import (
	"context"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/metrics"
)

const (
	DefaultTTL           = 15 * time.Second
	DefaultSweepInterval = 5 * time.Second
)

// Frame matching machine states. Sender and receiver digests may arrive in
// any order; a receiver digest against a not-yet-existent frame is buffered
// in idle until the sender digest shows up.
const (
	stateIdle            = "idle"
	stateWaitingReceiver = "waiting_receiver"
	stateComparing       = "comparing"
	stateMatched         = "matched"
	stateMismatched      = "mismatched"
)

const (
	eventSender   = "sender"
	eventCompare  = "compare"
	eventMatch    = "match"
	eventMismatch = "mismatch"
)

// MeetingLocator resolves the meeting a speaker currently belongs to.
type MeetingLocator interface {
	MeetingOf(domain.UserID) (domain.MeetingID, bool)
}

type frameRecord struct {
	frameID        string
	senderUserID   domain.UserID
	senderCRC32    string
	receiverCRC32s map[domain.UserID]string
	judged         map[domain.UserID]struct{}
	pending        []verdict
	createdAt      time.Time
	machine        *fsm.FSM
}

// newFrameRecord builds the record and its machine. Verdicts are emitted by
// the machine itself: entering matched or mismatched appends to pending, so
// a verdict exists iff the machine actually made the transition.
func newFrameRecord(frameID string) *frameRecord {
	rec := &frameRecord{
		frameID:        frameID,
		receiverCRC32s: make(map[domain.UserID]string),
		judged:         make(map[domain.UserID]struct{}),
		createdAt:      time.Now(),
	}
	record := func(_ context.Context, e *fsm.Event) {
		rec.pending = append(rec.pending, verdict{
			sender:   e.Args[0].(domain.UserID),
			receiver: e.Args[1].(domain.UserID),
			frameID:  rec.frameID,
			matched:  e.Args[2].(bool),
		})
	}
	rec.machine = fsm.NewFSM(
		stateIdle,
		fsm.Events{
			{Name: eventSender, Src: []string{stateIdle}, Dst: stateWaitingReceiver},
			{Name: eventCompare, Src: []string{stateWaitingReceiver, stateMatched, stateMismatched}, Dst: stateComparing},
			{Name: eventMatch, Src: []string{stateComparing}, Dst: stateMatched},
			{Name: eventMismatch, Src: []string{stateComparing}, Dst: stateMismatched},
		},
		fsm.Callbacks{
			"enter_" + stateMatched:    record,
			"enter_" + stateMismatched: record,
		},
	)
	return rec
}

func (rec *frameRecord) takePending() []verdict {
	out := rec.pending
	rec.pending = nil
	return out
}

type verdict struct {
	sender   domain.UserID
	receiver domain.UserID
	frameID  string
	matched  bool
}

// Verifier holds the per-frame matching machines with a bounded retention
// window: no record outlives the TTL, regardless of its state.
type Verifier struct {
	mu     sync.Mutex
	frames map[string]*frameRecord

	ttl     time.Duration
	sweep   time.Duration
	approx  bool
	locator MeetingLocator
	sink    core.AckSink
	logger  zerolog.Logger
}

type Config struct {
	TTL           time.Duration
	SweepInterval time.Duration
	// ApproxMatch accepts the presence of both digests as a match. Meant for
	// deployments where sender and receiver hash different representations of
	// the same audio (pre-encode vs post-decode) and can never byte-match.
	// It masks real corruption; exact mode is the default.
	ApproxMatch bool
}

func NewVerifier(locator MeetingLocator, sink core.AckSink, cfg Config) *Verifier {
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	return &Verifier{
		frames:  make(map[string]*frameRecord),
		ttl:     cfg.TTL,
		sweep:   cfg.SweepInterval,
		approx:  cfg.ApproxMatch,
		locator: locator,
		sink:    sink,
		logger:  log.With().Str("module", "verify").Logger(),
	}
}

// AddSenderFingerprint creates or updates the frame record with the sender's
// digest and compares immediately against any buffered receiver digests. A
// record that outlived the TTL is evicted first, never written to.
func (v *Verifier) AddSenderFingerprint(frameID, crc32 string, sender domain.UserID) {
	v.mu.Lock()
	expired := v.evictExpiredLocked(frameID)
	rec, ok := v.frames[frameID]
	if !ok {
		rec = newFrameRecord(frameID)
		v.frames[frameID] = rec
	}
	rec.senderUserID = sender
	rec.senderCRC32 = crc32
	if rec.machine.Current() == stateIdle {
		if err := rec.machine.Event(context.Background(), eventSender); err != nil {
			v.logger.Warn().Err(err).Str("frame", frameID).Msg("sender transition rejected")
		}
	}
	verdicts := v.compareAllLocked(rec)
	v.mu.Unlock()

	v.deliver(expired)
	v.deliver(verdicts)
}

// AddReceiverFingerprint stores the receiver's digest and compares it against
// the sender digest if one is present. Out-of-order arrival is fine: without
// a sender digest the receiver digest stays buffered until one arrives or the
// record expires. A record past the TTL is evicted first; the digest then
// starts a fresh record instead of being judged against stale state.
func (v *Verifier) AddReceiverFingerprint(frameID, crc32 string, receiver domain.UserID) {
	v.mu.Lock()
	expired := v.evictExpiredLocked(frameID)
	rec, ok := v.frames[frameID]
	if !ok {
		rec = newFrameRecord(frameID)
		v.frames[frameID] = rec
	}
	rec.receiverCRC32s[receiver] = crc32
	verdicts := v.compareAllLocked(rec)
	v.mu.Unlock()

	v.deliver(expired)
	v.deliver(verdicts)
}

// evictExpiredLocked drops the frame's record if it outlived the TTL and
// returns the pessimistic verdicts for its unjudged receivers. The TTL bounds
// reachability, not just retention: whatever the sweep cadence, an expired
// record must never be compared against. Caller holds v.mu.
func (v *Verifier) evictExpiredLocked(frameID string) []verdict {
	rec, ok := v.frames[frameID]
	if !ok || rec.createdAt.After(time.Now().Add(-v.ttl)) {
		return nil
	}
	out := v.purgeLocked(frameID, rec)
	metrics.ExpiredFingerprints.Inc()
	v.logger.Debug().Str("frame", frameID).Msg("expired fingerprint evicted on access")
	return out
}

// purgeLocked removes the record and returns a mismatch verdict for every
// receiver that reported a digest but never got one: an expired comparison is
// a failure, never a success. Records with no sender digest carry an empty
// sender and deliver nothing; the aggregator's absence-is-failure rule covers
// those receivers. Caller holds v.mu.
func (v *Verifier) purgeLocked(frameID string, rec *frameRecord) []verdict {
	var out []verdict
	if rec.senderUserID != "" {
		for receiver := range rec.receiverCRC32s {
			if _, done := rec.judged[receiver]; !done {
				out = append(out, verdict{
					sender:   rec.senderUserID,
					receiver: receiver,
					frameID:  frameID,
					matched:  false,
				})
			}
		}
	}
	delete(v.frames, frameID)
	return out
}

// compareAllLocked judges every not-yet-judged receiver digest against the
// sender digest. The machine gates and emits: nothing is judged while it sits
// in idle, and a verdict only exists once the matched/mismatched transition
// actually fired. Caller holds v.mu.
func (v *Verifier) compareAllLocked(rec *frameRecord) []verdict {
	if rec.machine.Current() == stateIdle {
		return nil
	}
	ctx := context.Background()
	for receiver, crc := range rec.receiverCRC32s {
		if _, done := rec.judged[receiver]; done {
			continue
		}
		if err := rec.machine.Event(ctx, eventCompare); err != nil {
			v.logger.Warn().Err(err).Str("frame", rec.frameID).Msg("compare transition rejected")
			continue
		}
		rec.judged[receiver] = struct{}{}

		matched := crc == rec.senderCRC32
		if v.approx {
			// Both digests present proves the bidirectional pipeline works.
			matched = true
		}
		event := eventMismatch
		if matched {
			event = eventMatch
		}
		if err := rec.machine.Event(ctx, event, rec.senderUserID, receiver, matched); err != nil {
			v.logger.Warn().Err(err).Str("frame", rec.frameID).Msg("verdict transition rejected")
		}
	}
	return rec.takePending()
}

// deliver forwards verdicts to the ack sink outside the verifier lock.
func (v *Verifier) deliver(verdicts []verdict) {
	for _, vd := range verdicts {
		meetingID, ok := v.locator.MeetingOf(vd.sender)
		if !ok {
			v.logger.Debug().Str("sender", string(vd.sender)).Str("frame", vd.frameID).Msg("verdict for departed speaker")
			continue
		}
		if vd.matched {
			metrics.FingerprintVerdicts.WithLabelValues("match").Inc()
		} else {
			metrics.FingerprintVerdicts.WithLabelValues("mismatch").Inc()
			v.logger.Warn().Str("frame", vd.frameID).Str("sender", string(vd.sender)).
				Str("receiver", string(vd.receiver)).Msg("frame digest mismatch")
		}
		v.sink.OnDecodeAck(meetingID, vd.sender, vd.receiver, vd.matched)
	}
}

// CleanupExpired purges every frame record older than the TTL, regardless of
// its state.
func (v *Verifier) CleanupExpired() int {
	cutoff := time.Now().Add(-v.ttl)

	v.mu.Lock()
	var expired []verdict
	purged := 0
	for frameID, rec := range v.frames {
		if rec.createdAt.After(cutoff) {
			continue
		}
		expired = append(expired, v.purgeLocked(frameID, rec)...)
		purged++
	}
	v.mu.Unlock()

	if purged > 0 {
		metrics.ExpiredFingerprints.Add(float64(purged))
		v.logger.Debug().Int("purged", purged).Msg("expired fingerprints swept")
	}
	v.deliver(expired)
	return purged
}

// PendingFrames reports the number of retained frame records.
func (v *Verifier) PendingFrames() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.frames)
}

// Run sweeps expired records on a fixed period until ctx is done.
func (v *Verifier) Run(ctx context.Context) {
	ticker := time.NewTicker(v.sweep)
	defer ticker.Stop()
	v.logger.Info().Dur("ttl", v.ttl).Dur("interval", v.sweep).Msg("ttl sweep started")
	for {
		select {
		case <-ctx.Done():
			v.logger.Info().Msg("ttl sweep stopped")
			return
		case <-ticker.C:
			v.CleanupExpired()
		}
	}
}
