// Package ack turns per-receiver frame verdicts into periodic per-speaker
// summaries of who is confirmed in sync and who is not.
package ack

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/metrics"
)

const DefaultInterval = 2 * time.Second

// RecipientLister yields every participant of a meeting except the excluded
// one. Satisfied by app.MeetingRegistry.
type RecipientLister interface {
	ListRecipients(meetingID domain.MeetingID, exclude ...domain.UserID) []domain.UserSession
}

// Aggregator accumulates the latest verdict per (meeting, speaker, receiver)
// and emits one AckSummary per speaker each window. A receiver with no
// verdict is missing, not acked: absence is failure.
type Aggregator struct {
	mu       sync.Mutex
	verdicts map[domain.MeetingID]map[domain.UserID]map[domain.UserID]bool

	interval time.Duration
	lister   RecipientLister
	notifier core.AckNotifier
	logger   zerolog.Logger
}

func NewAggregator(lister RecipientLister, notifier core.AckNotifier, interval time.Duration) *Aggregator {
	if interval == 0 {
		interval = DefaultInterval
	}
	return &Aggregator{
		verdicts: make(map[domain.MeetingID]map[domain.UserID]map[domain.UserID]bool),
		interval: interval,
		lister:   lister,
		notifier: notifier,
		logger:   log.With().Str("module", "ack").Logger(),
	}
}

// OnDecodeAck records the receiver's verdict for the current window,
// overwriting any earlier verdict for the same receiver.
func (a *Aggregator) OnDecodeAck(meetingID domain.MeetingID, sender, receiver domain.UserID, matched bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	speakers, ok := a.verdicts[meetingID]
	if !ok {
		speakers = make(map[domain.UserID]map[domain.UserID]bool)
		a.verdicts[meetingID] = speakers
	}
	receivers, ok := speakers[sender]
	if !ok {
		receivers = make(map[domain.UserID]bool)
		speakers[sender] = receivers
	}
	receivers[receiver] = matched
}

// SummaryForSpeaker partitions every other participant of the meeting into
// acked and missing, then clears the speaker's window so the next one starts
// empty. Every participant lands in exactly one of the two sets.
func (a *Aggregator) SummaryForSpeaker(meetingID domain.MeetingID, sender domain.UserID) domain.AckSummary {
	recipients := a.lister.ListRecipients(meetingID, sender)

	a.mu.Lock()
	var receivers map[domain.UserID]bool
	if speakers, ok := a.verdicts[meetingID]; ok {
		receivers = speakers[sender]
		delete(speakers, sender)
		if len(speakers) == 0 {
			delete(a.verdicts, meetingID)
		}
	}
	a.mu.Unlock()

	summary := domain.AckSummary{
		MeetingID:    meetingID,
		SenderUserID: sender,
		AckedUsers:   []domain.UserID{},
		MissingUsers: []domain.UserID{},
		Timestamp:    time.Now(),
	}
	for _, r := range recipients {
		if matched, ok := receivers[r.UserID]; ok && matched {
			summary.AckedUsers = append(summary.AckedUsers, r.UserID)
		} else {
			summary.MissingUsers = append(summary.MissingUsers, r.UserID)
		}
	}
	return summary
}

// Reset clears all accumulated state for the meeting. Called on teardown.
func (a *Aggregator) Reset(meetingID domain.MeetingID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.verdicts, meetingID)
	a.logger.Debug().Str("meeting", string(meetingID)).Msg("reset verdicts")
}

type speakerKey struct {
	meeting domain.MeetingID
	sender  domain.UserID
}

// emitAll drains one summary per speaker that accumulated verdicts this
// window and pushes them to the notifier.
func (a *Aggregator) emitAll() {
	a.mu.Lock()
	keys := make([]speakerKey, 0, len(a.verdicts))
	for meetingID, speakers := range a.verdicts {
		for sender := range speakers {
			keys = append(keys, speakerKey{meeting: meetingID, sender: sender})
		}
	}
	a.mu.Unlock()

	for _, k := range keys {
		summary := a.SummaryForSpeaker(k.meeting, k.sender)
		metrics.AckSummaries.Inc()
		a.notifier.NotifyAckSummary(summary)
	}
}

// Run emits summaries on a fixed cadence until ctx is done. The cadence is
// independent of the transport-level reporting interval.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	a.logger.Info().Dur("interval", a.interval).Msg("summary loop started")
	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("summary loop stopped")
			return
		case <-ticker.C:
			a.emitAll()
		}
	}
}
