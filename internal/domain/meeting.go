package domain

import "time"

// Meeting is a named conferencing session. It exists iff it has at least one
// participant session; the registry deletes it together with the last removal.
type Meeting struct {
	ID        MeetingID
	Tier      QualityTier
	CreatedAt time.Time
	Sessions  []*UserSession // ordered, unique by UserID
}

// SessionIndex returns the position of the user's session, or -1.
func (m *Meeting) SessionIndex(userID UserID) int {
	for i, s := range m.Sessions {
		if s.UserID == userID {
			return i
		}
	}
	return -1
}
