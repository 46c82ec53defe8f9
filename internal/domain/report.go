package domain

import "time"

// RtcpReport is one receiver-side network quality sample.
type RtcpReport struct {
	UserID    UserID
	LossPct   float64 // 0.0 - 1.0
	JitterMs  float64
	RttMs     float64
	Timestamp time.Time
}

// AckSummary is the per-speaker verification outcome for one window.
// Produced, pushed to the speaker and discarded; never stored.
type AckSummary struct {
	MeetingID    MeetingID
	SenderUserID UserID
	AckedUsers   []UserID
	MissingUsers []UserID
	Timestamp    time.Time
}
