package orch

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/domain"
)

// Join admits the participant into the meeting and returns the session's pc
// id together with the participant list as it looked before the join.
// Re-joining replaces the session in place; the fresh pc id is what entitles
// a connection to tear the session down later.
func (o *Orchestrator) Join(meetingID domain.MeetingID, userID domain.UserID, displayName string) (string, []domain.UserSession, error) {
	sess, err := domain.NewUserSession(userID, displayName, uuid.NewString())
	if err != nil {
		return "", nil, err
	}
	sess.SetState(domain.StateConnected)
	existing := o.Registry.ListRecipients(meetingID, userID)
	o.Registry.RegisterUser(meetingID, sess)
	log.Info().Str("module", "orch").Str("meeting", string(meetingID)).Str("user", string(userID)).Msg("joined")
	return sess.PCID, existing, nil
}

// Leave tears the participant down: session removal, report window
// invalidation, engine resource release and, when the meeting died with this
// removal, the full meeting cleanup cascade. Safe to invoke twice; the
// disconnect path reuses it. A non-empty pcID restricts the removal to the
// session it was issued for, so a replaced connection's late cleanup leaves
// the re-joined session alone.
func (o *Orchestrator) Leave(meetingID domain.MeetingID, userID domain.UserID, pcID string) (removed, meetingDeleted bool) {
	removed, meetingDeleted = o.Registry.RemoveUser(meetingID, userID, pcID)
	if !removed {
		return false, false
	}

	o.Collector.CleanupUser(userID)
	o.Engine.Release(meetingID, userID)

	if meetingDeleted {
		o.Forwarder.CleanupMeeting(meetingID)
		o.Acks.Reset(meetingID)
		o.Collector.CleanupMeeting(meetingID)
		log.Info().Str("module", "orch").Str("meeting", string(meetingID)).Msg("meeting torn down")
	}
	log.Info().Str("module", "orch").Str("meeting", string(meetingID)).Str("user", string(userID)).Msg("left")
	return removed, meetingDeleted
}
