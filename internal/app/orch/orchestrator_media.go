package orch

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// HandleOffer negotiates the participant's transport against the meeting
// router and returns the local answer. A failed producer creation leaves the
// participant connected but silent: degraded, not disconnected.
func (o *Orchestrator) HandleOffer(ctx context.Context, meetingID domain.MeetingID, userID domain.UserID, offerSDP string) (string, error) {
	o.Registry.UpdateSessionState(meetingID, userID, domain.StateOffering)

	caps, err := o.Engine.RouterCapabilities(ctx, meetingID)
	if err != nil {
		return "", err
	}

	o.Registry.UpdateSessionState(meetingID, userID, domain.StateICEGathering)
	answer, err := o.Engine.Negotiate(ctx, meetingID, userID, offerSDP)
	if err != nil {
		return "", err
	}
	o.Registry.UpdateSessionState(meetingID, userID, domain.StateWaitingAnswer)

	if _, err := o.Engine.CreateProducer(ctx, meetingID, userID); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("meeting", string(meetingID)).
			Str("user", string(userID)).Msg("producer creation failed, session degraded")
		o.Registry.UpdateSessionState(meetingID, userID, domain.StateDegraded)
	} else {
		o.Registry.UpdateSessionState(meetingID, userID, domain.StateStreaming)
	}

	o.wireConsumers(ctx, meetingID, userID, caps)
	return answer, nil
}

// HandleAnswer completes an engine-initiated negotiation. With the
// participant's receive capability known, delivery channels are created from
// every existing producer to the participant and vice versa.
func (o *Orchestrator) HandleAnswer(ctx context.Context, meetingID domain.MeetingID, userID domain.UserID, answerSDP string) error {
	if err := o.Engine.ApplyAnswer(ctx, meetingID, userID, answerSDP); err != nil {
		return err
	}
	o.Registry.UpdateSessionState(meetingID, userID, domain.StateConnected)

	caps, err := o.Engine.RouterCapabilities(ctx, meetingID)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("meeting", string(meetingID)).Msg("router capabilities")
		return nil
	}
	o.wireConsumers(ctx, meetingID, userID, caps)
	return nil
}

// wireConsumers creates delivery channels in both directions: every existing
// producer of the meeting to userID, and userID's producer to every existing
// participant. Each creation failure is logged in isolation and never aborts
// the siblings.
func (o *Orchestrator) wireConsumers(ctx context.Context, meetingID domain.MeetingID, userID domain.UserID, caps core.Capabilities) {
	for _, p := range o.Engine.ProducersOf(meetingID) {
		if p.UserID == userID {
			for _, recipient := range o.Registry.ListRecipients(meetingID, userID) {
				if _, err := o.Engine.CreateConsumer(ctx, meetingID, p.ID, recipient.UserID, caps); err != nil {
					log.Error().Err(err).Str("module", "orch").Str("meeting", string(meetingID)).
						Str("user", string(recipient.UserID)).Msg("consumer creation failed")
				}
			}
			continue
		}
		if _, err := o.Engine.CreateConsumer(ctx, meetingID, p.ID, userID, caps); err != nil {
			log.Error().Err(err).Str("module", "orch").Str("meeting", string(meetingID)).
				Str("user", string(userID)).Msg("consumer creation failed")
		}
	}
}
