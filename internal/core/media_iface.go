package core

import (
	"context"

	"github.com/dkeye/Meet/internal/domain"
)

type (
	ProducerID string
	ConsumerID string
)

// Capabilities is the receive capability set negotiated against a meeting's
// router. Opaque to the control plane.
type Capabilities struct {
	Codecs []string
}

// ConsumerRef identifies one receiver-side delivery leg of a meeting.
type ConsumerRef struct {
	ID     ConsumerID
	UserID domain.UserID
}

// ProducerRef identifies one published audio source and its owner.
type ProducerRef struct {
	ID     ProducerID
	UserID domain.UserID
}

// MediaEngine is the boundary to the external media-forwarding engine.
// The control plane consumes exactly these negotiation primitives; RTP
// handling, codec mechanics and transport security live behind it.
type MediaEngine interface {
	// RouterCapabilities returns the meeting router's receive capabilities.
	RouterCapabilities(ctx context.Context, meetingID domain.MeetingID) (Capabilities, error)

	// Negotiate creates (or reuses) the participant's bidirectional transport,
	// connects it with the remote offer and returns the local answer.
	Negotiate(ctx context.Context, meetingID domain.MeetingID, userID domain.UserID, offerSDP string) (answerSDP string, err error)

	// ApplyAnswer completes an engine-initiated negotiation with the
	// participant's answer.
	ApplyAnswer(ctx context.Context, meetingID domain.MeetingID, userID domain.UserID, answerSDP string) error

	// CreateProducer starts ingesting the participant's published audio.
	CreateProducer(ctx context.Context, meetingID domain.MeetingID, userID domain.UserID) (ProducerID, error)

	// CreateConsumer delivers producerID's audio to userID, honoring the
	// receiver's capabilities.
	CreateConsumer(ctx context.Context, meetingID domain.MeetingID, producerID ProducerID, userID domain.UserID, caps Capabilities) (ConsumerID, error)

	// SetPreferredLayer switches one consumer's delivery layer
	// (0 = LOW, 1 = MEDIUM, 2 = HIGH).
	SetPreferredLayer(ctx context.Context, consumerID ConsumerID, layer int) error

	// ConsumerLayer reads one consumer's current delivery layer.
	ConsumerLayer(consumerID ConsumerID) (int, bool)

	// ProducersOf lists the active producers of a meeting.
	ProducersOf(meetingID domain.MeetingID) []ProducerRef

	// ConsumersOf lists the active consumers delivering into a meeting.
	ConsumersOf(meetingID domain.MeetingID) []ConsumerRef

	// Release frees every engine resource held for the participant.
	Release(meetingID domain.MeetingID, userID domain.UserID)
}
