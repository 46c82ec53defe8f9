package signal

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/domain"
)

func (ctl *SignalWSController) handleJoin(cc *clientConn, data []byte) {
	var p JoinMessage
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(cc, CodeBadRequest, "bad payload")
		return
	}

	userID := domain.UserID(p.UserID)
	meetingID := domain.MeetingID(p.MeetingID)

	// Stubbed identity check: any non-empty user id passes. A failed
	// authentication is the one protocol error that tears the connection down.
	if userID == "" {
		ctl.sendError(cc, CodeUnauthenticated, "authentication failed")
		cc.Close()
		return
	}
	if meetingID == "" {
		ctl.sendError(cc, CodeBadRequest, "missing meeting id")
		return
	}
	if !ctl.limiter.Allow(userID) {
		log.Warn().Str("module", "signal").Str("user", p.UserID).Msg("join rate exceeded")
		ctl.sendError(cc, CodeBadRequest, "too many join attempts")
		return
	}

	pcID, _, err := ctl.Orch.Join(meetingID, userID, p.DisplayName)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("user", p.UserID).Msg("join rejected")
		ctl.sendError(cc, CodeBadRequest, err.Error())
		return
	}

	cc.admit(meetingID, userID, pcID)
	ctl.Hub.Bind(userID, cc.wsSignalConn)
	log.Info().Str("module", "signal").Str("meeting", p.MeetingID).Str("user", p.UserID).Msg("join")

	participants := make([]ParticipantInfo, 0)
	for _, sess := range ctl.Orch.Registry.ListRecipients(meetingID) {
		participants = append(participants, ParticipantInfo{
			UserID:      string(sess.UserID),
			DisplayName: sess.DisplayName,
			Tier:        string(sess.Tier),
			State:       string(sess.State),
		})
	}
	sendJSON(cc.wsSignalConn, JoinedMessage{
		Type:         TypeJoined,
		MeetingID:    p.MeetingID,
		UserID:       p.UserID,
		Success:      true,
		Participants: participants,
		Timestamp:    time.Now().UnixMilli(),
	})

	ctl.Hub.Broadcast(meetingID, UserEventMessage{
		Type:        TypeUserJoined,
		MeetingID:   p.MeetingID,
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
	}, userID)
}

// teardown is the single cleanup path shared by leave messages and dropped
// connections. Running it twice is safe: the second run finds the identity
// already revoked and does nothing. The pc id captured at join scopes the
// leave, so a replaced connection's teardown cannot remove the session a
// re-join just created.
func (ctl *SignalWSController) teardown(cc *clientConn) {
	meetingID, userID, pcID, ok := cc.revoke()
	if !ok {
		return
	}
	ctl.Hub.Unbind(userID, cc.wsSignalConn)

	removed, _ := ctl.Orch.Leave(meetingID, userID, pcID)
	if removed {
		ctl.Hub.Broadcast(meetingID, UserEventMessage{
			Type:      TypeUserLeft,
			MeetingID: string(meetingID),
			UserID:    string(userID),
		})
	}
}

func (ctl *SignalWSController) handleLeave(cc *clientConn) {
	log.Info().Str("module", "signal").Msg("leave")
	ctl.teardown(cc)
}

func (ctl *SignalWSController) disconnect(cc *clientConn) {
	ctl.teardown(cc)
}
