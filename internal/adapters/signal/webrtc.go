package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleOffer(cc *clientConn, data []byte) {
	var p SDPMessage
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad offer payload")
		ctl.sendError(cc, CodeBadRequest, "bad payload")
		return
	}
	meetingID, userID, _ := cc.identity()

	answer, err := ctl.Orch.HandleOffer(context.Background(), meetingID, userID, p.SDP)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("user", string(userID)).Msg("offer negotiation")
		ctl.sendError(cc, CodeInternal, "negotiation failed")
		return
	}

	sendJSON(cc.wsSignalConn, SDPMessage{
		Type:      TypeAnswer,
		MeetingID: string(meetingID),
		SDP:       answer,
	})
}

func (ctl *SignalWSController) handleAnswer(cc *clientConn, data []byte) {
	var p SDPMessage
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad answer payload")
		ctl.sendError(cc, CodeBadRequest, "bad payload")
		return
	}
	meetingID, userID, _ := cc.identity()

	if err := ctl.Orch.HandleAnswer(context.Background(), meetingID, userID, p.SDP); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("user", string(userID)).Msg("apply answer")
		ctl.sendError(cc, CodeInternal, "negotiation failed")
	}
}

// handleCandidate relays the candidate to every other participant of the
// meeting.
func (ctl *SignalWSController) handleCandidate(cc *clientConn, data []byte) {
	var p ICECandidateMessage
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad candidate payload")
		ctl.sendError(cc, CodeBadRequest, "bad payload")
		return
	}
	meetingID, userID, _ := cc.identity()
	p.MeetingID = string(meetingID)
	ctl.Hub.Broadcast(meetingID, p, userID)
}
