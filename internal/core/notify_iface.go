package core

import "github.com/dkeye/Meet/internal/domain"

// AckSink consumes per-receiver frame verification verdicts.
type AckSink interface {
	OnDecodeAck(meetingID domain.MeetingID, sender, receiver domain.UserID, matched bool)
}

// AckNotifier receives the periodic per-speaker verification summaries.
type AckNotifier interface {
	NotifyAckSummary(summary domain.AckSummary)
}

// TierNotifier is told after a meeting's quality tier actually changed.
type TierNotifier interface {
	NotifyTierChange(meetingID domain.MeetingID, tier domain.QualityTier)
}
