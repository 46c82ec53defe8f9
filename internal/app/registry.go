package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/metrics"
)

// MeetingRegistry is the authoritative in-memory store of meetings and
// participant sessions. All other components read and mutate meeting state
// exclusively through it.
type MeetingRegistry struct {
	mu       sync.RWMutex
	meetings map[domain.MeetingID]*domain.Meeting
}

func NewMeetingRegistry() *MeetingRegistry {
	return &MeetingRegistry{meetings: make(map[domain.MeetingID]*domain.Meeting)}
}

// MeetingSnapshot is a read-only view for loops and APIs.
type MeetingSnapshot struct {
	ID           domain.MeetingID   `json:"id"`
	Tier         domain.QualityTier `json:"tier"`
	Participants int                `json:"participants"`
	CreatedAt    time.Time          `json:"created_at"`
}

// RegisterUser inserts the session into the meeting, creating the meeting on
// first use (default tier HIGH). A session with the same user id is replaced
// in place, never duplicated.
func (r *MeetingRegistry) RegisterUser(meetingID domain.MeetingID, sess *domain.UserSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meetings[meetingID]
	if !ok {
		m = &domain.Meeting{
			ID:        meetingID,
			Tier:      domain.TierHigh,
			CreatedAt: time.Now(),
		}
		r.meetings[meetingID] = m
		metrics.ActiveMeetings.Inc()
		log.Info().Str("module", "app.registry").Str("meeting", string(meetingID)).Msg("created meeting")
	}
	if i := m.SessionIndex(sess.UserID); i >= 0 {
		m.Sessions[i] = sess
		log.Info().Str("module", "app.registry").Str("meeting", string(meetingID)).Str("user", string(sess.UserID)).Msg("replaced session")
		return
	}
	m.Sessions = append(m.Sessions, sess)
	metrics.ActiveParticipants.Inc()
	log.Info().Str("module", "app.registry").Str("meeting", string(meetingID)).Str("user", string(sess.UserID)).Msg("registered session")
}

// RemoveUser removes the user's session. The meeting is deleted atomically
// with the removal of its last session; an empty meeting is never observable.
// A non-empty pcID makes the removal conditional on the registered session
// still carrying that pc id: a re-join replaces the session in place, and the
// replaced connection's late cleanup must not destroy its successor.
// It reports whether a session was removed and whether the meeting died.
func (r *MeetingRegistry) RemoveUser(meetingID domain.MeetingID, userID domain.UserID, pcID string) (removed, meetingDeleted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meetings[meetingID]
	if !ok {
		return false, false
	}
	i := m.SessionIndex(userID)
	if i < 0 {
		return false, false
	}
	if pcID != "" && m.Sessions[i].PCID != pcID {
		log.Info().Str("module", "app.registry").Str("meeting", string(meetingID)).Str("user", string(userID)).Msg("stale removal skipped, session was replaced")
		return false, false
	}
	m.Sessions = append(m.Sessions[:i], m.Sessions[i+1:]...)
	metrics.ActiveParticipants.Dec()
	if len(m.Sessions) == 0 {
		delete(r.meetings, meetingID)
		metrics.ActiveMeetings.Dec()
		log.Info().Str("module", "app.registry").Str("meeting", string(meetingID)).Msg("deleted empty meeting")
		return true, true
	}
	log.Info().Str("module", "app.registry").Str("meeting", string(meetingID)).Str("user", string(userID)).Msg("removed session")
	return true, false
}

// ListRecipients returns copies of all sessions in the meeting, optionally
// excluding one user. Unknown meetings yield an empty slice.
func (r *MeetingRegistry) ListRecipients(meetingID domain.MeetingID, exclude ...domain.UserID) []domain.UserSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.meetings[meetingID]
	if !ok {
		return nil
	}
	out := make([]domain.UserSession, 0, len(m.Sessions))
	for _, s := range m.Sessions {
		skip := false
		for _, ex := range exclude {
			if s.UserID == ex {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, *s)
		}
	}
	return out
}

// GetMeeting returns a snapshot copy of the meeting, if it exists.
func (r *MeetingRegistry) GetMeeting(meetingID domain.MeetingID) (domain.Meeting, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.meetings[meetingID]
	if !ok {
		return domain.Meeting{}, false
	}
	cp := *m
	cp.Sessions = make([]*domain.UserSession, len(m.Sessions))
	for i, s := range m.Sessions {
		sc := *s
		cp.Sessions[i] = &sc
	}
	return cp, true
}

// GetUserSession returns a copy of the user's session in the meeting.
func (r *MeetingRegistry) GetUserSession(meetingID domain.MeetingID, userID domain.UserID) (domain.UserSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.meetings[meetingID]
	if !ok {
		return domain.UserSession{}, false
	}
	if i := m.SessionIndex(userID); i >= 0 {
		return *m.Sessions[i], true
	}
	return domain.UserSession{}, false
}

// MeetingOf resolves the meeting a user currently belongs to.
func (r *MeetingRegistry) MeetingOf(userID domain.UserID) (domain.MeetingID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, m := range r.meetings {
		if m.SessionIndex(userID) >= 0 {
			return id, true
		}
	}
	return "", false
}

// UpdateQualityTier sets the meeting's current tier. Unknown meetings are a
// warn-and-no-op, not an error: the quality loop may race meeting teardown.
func (r *MeetingRegistry) UpdateQualityTier(meetingID domain.MeetingID, tier domain.QualityTier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meetings[meetingID]
	if !ok {
		log.Warn().Str("module", "app.registry").Str("meeting", string(meetingID)).Str("tier", string(tier)).Msg("tier update for unknown meeting")
		return
	}
	m.Tier = tier
	for _, s := range m.Sessions {
		s.Tier = tier
	}
	log.Info().Str("module", "app.registry").Str("meeting", string(meetingID)).Str("tier", string(tier)).Msg("updated meeting tier")
}

// UpdateSessionState moves the user's connection state and bumps its
// state-change instant.
func (r *MeetingRegistry) UpdateSessionState(meetingID domain.MeetingID, userID domain.UserID, state domain.ConnectionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meetings[meetingID]
	if !ok {
		return
	}
	if i := m.SessionIndex(userID); i >= 0 {
		m.Sessions[i].SetState(state)
	}
}

// UpdateLastCRC32 records the most recent sender-side frame digest.
func (r *MeetingRegistry) UpdateLastCRC32(meetingID domain.MeetingID, userID domain.UserID, crc string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meetings[meetingID]
	if !ok {
		return
	}
	if i := m.SessionIndex(userID); i >= 0 {
		m.Sessions[i].LastCRC32 = crc
	}
}

// MeetingCount reports the number of live meetings.
func (r *MeetingRegistry) MeetingCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.meetings)
}

// SessionCount reports the number of participant sessions across all meetings.
func (r *MeetingRegistry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, m := range r.meetings {
		n += len(m.Sessions)
	}
	return n
}

// AllMeetings returns a snapshot of every meeting for the periodic loops.
func (r *MeetingRegistry) AllMeetings() []MeetingSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MeetingSnapshot, 0, len(r.meetings))
	for id, m := range r.meetings {
		out = append(out, MeetingSnapshot{
			ID:           id,
			Tier:         m.Tier,
			Participants: len(m.Sessions),
			CreatedAt:    m.CreatedAt,
		})
	}
	return out
}
