package domain

import "time"

// UserSession is one participant's presence in a meeting. A meeting holds at
// most one session per user; re-registering replaces the session in place.
type UserSession struct {
	UserID      UserID
	DisplayName string
	PCID        string
	Tier        QualityTier
	LastCRC32   string
	State       ConnectionState
	Timestamp   time.Time // last state-change instant
}

// NewUserSession avoids raw literals in adapters and keeps construction obvious.
func NewUserSession(userID UserID, displayName, pcID string) (*UserSession, error) {
	if userID == "" {
		return nil, ErrUserIDEmpty
	}
	if len(displayName) > MaxDisplayNameLen {
		return nil, ErrDisplayNameTooLong
	}
	return &UserSession{
		UserID:      userID,
		DisplayName: displayName,
		PCID:        pcID,
		Tier:        TierHigh,
		State:       StateDisconnected,
		Timestamp:   time.Now(),
	}, nil
}

// SetState records a state excursion and bumps the state-change instant.
func (s *UserSession) SetState(state ConnectionState) {
	s.State = state
	s.Timestamp = time.Now()
}
