package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Meet/internal/domain"
)

func mustSession(t *testing.T, userID domain.UserID, name string) *domain.UserSession {
	t.Helper()
	s, err := domain.NewUserSession(userID, name, "pc-"+string(userID))
	require.NoError(t, err)
	return s
}

func TestRegisterUserCreatesMeeting(t *testing.T) {
	r := NewMeetingRegistry()

	_, ok := r.GetMeeting("m1")
	require.False(t, ok)

	r.RegisterUser("m1", mustSession(t, "alice", "Alice"))

	m, ok := r.GetMeeting("m1")
	require.True(t, ok)
	assert.Equal(t, domain.MeetingID("m1"), m.ID)
	assert.Equal(t, domain.TierHigh, m.Tier)
	assert.Len(t, m.Sessions, 1)
}

func TestRegisterUserReplacesInPlace(t *testing.T) {
	r := NewMeetingRegistry()
	r.RegisterUser("m1", mustSession(t, "alice", "Alice"))
	r.RegisterUser("m1", mustSession(t, "alice", "Alice v2"))

	m, ok := r.GetMeeting("m1")
	require.True(t, ok)
	require.Len(t, m.Sessions, 1)
	assert.Equal(t, "Alice v2", m.Sessions[0].DisplayName)
}

func TestRemoveLastUserDeletesMeeting(t *testing.T) {
	r := NewMeetingRegistry()
	r.RegisterUser("m1", mustSession(t, "alice", "Alice"))
	r.RegisterUser("m1", mustSession(t, "bob", "Bob"))

	removed, deleted := r.RemoveUser("m1", "alice", "")
	assert.True(t, removed)
	assert.False(t, deleted)

	removed, deleted = r.RemoveUser("m1", "bob", "")
	assert.True(t, removed)
	assert.True(t, deleted)

	_, ok := r.GetMeeting("m1")
	assert.False(t, ok)
}

func TestRemoveUserUnknown(t *testing.T) {
	r := NewMeetingRegistry()
	removed, deleted := r.RemoveUser("nope", "alice", "")
	assert.False(t, removed)
	assert.False(t, deleted)

	r.RegisterUser("m1", mustSession(t, "alice", "Alice"))
	removed, deleted = r.RemoveUser("m1", "ghost", "")
	assert.False(t, removed)
	assert.False(t, deleted)
}

func TestRemoveUserStalePCIDKeepsReplacedSession(t *testing.T) {
	r := NewMeetingRegistry()
	r.RegisterUser("m1", mustSession(t, "alice", "Alice"))

	// A re-join replaces the session in place with a fresh pc id.
	fresh, err := domain.NewUserSession("alice", "Alice", "pc-fresh")
	require.NoError(t, err)
	r.RegisterUser("m1", fresh)

	// The old connection's cleanup carries the replaced pc id and must not
	// remove the fresh session.
	removed, deleted := r.RemoveUser("m1", "alice", "pc-alice")
	assert.False(t, removed)
	assert.False(t, deleted)

	s, ok := r.GetUserSession("m1", "alice")
	require.True(t, ok)
	assert.Equal(t, "pc-fresh", s.PCID)

	// The owning pc id still removes.
	removed, deleted = r.RemoveUser("m1", "alice", "pc-fresh")
	assert.True(t, removed)
	assert.True(t, deleted)
}

func TestListRecipientsExcludes(t *testing.T) {
	r := NewMeetingRegistry()
	r.RegisterUser("m1", mustSession(t, "alice", "Alice"))
	r.RegisterUser("m1", mustSession(t, "bob", "Bob"))
	r.RegisterUser("m1", mustSession(t, "carol", "Carol"))

	all := r.ListRecipients("m1")
	assert.Len(t, all, 3)

	others := r.ListRecipients("m1", "alice")
	require.Len(t, others, 2)
	for _, s := range others {
		assert.NotEqual(t, domain.UserID("alice"), s.UserID)
	}

	assert.Empty(t, r.ListRecipients("unknown"))
}

func TestUpdateQualityTierPropagatesToSessions(t *testing.T) {
	r := NewMeetingRegistry()
	r.RegisterUser("m1", mustSession(t, "alice", "Alice"))
	r.RegisterUser("m1", mustSession(t, "bob", "Bob"))

	r.UpdateQualityTier("m1", domain.TierLow)

	m, ok := r.GetMeeting("m1")
	require.True(t, ok)
	assert.Equal(t, domain.TierLow, m.Tier)
	for _, s := range m.Sessions {
		assert.Equal(t, domain.TierLow, s.Tier)
	}

	// Unknown meeting is a no-op, not a panic.
	r.UpdateQualityTier("ghost", domain.TierMedium)
}

func TestMeetingOf(t *testing.T) {
	r := NewMeetingRegistry()
	r.RegisterUser("m1", mustSession(t, "alice", "Alice"))

	id, ok := r.MeetingOf("alice")
	require.True(t, ok)
	assert.Equal(t, domain.MeetingID("m1"), id)

	_, ok = r.MeetingOf("ghost")
	assert.False(t, ok)
}

func TestUpdateSessionState(t *testing.T) {
	r := NewMeetingRegistry()
	r.RegisterUser("m1", mustSession(t, "alice", "Alice"))

	r.UpdateSessionState("m1", "alice", domain.StateStreaming)

	s, ok := r.GetUserSession("m1", "alice")
	require.True(t, ok)
	assert.Equal(t, domain.StateStreaming, s.State)
}

func TestGetMeetingReturnsCopy(t *testing.T) {
	r := NewMeetingRegistry()
	r.RegisterUser("m1", mustSession(t, "alice", "Alice"))

	m, ok := r.GetMeeting("m1")
	require.True(t, ok)
	m.Sessions[0].DisplayName = "Mutated"

	again, ok := r.GetMeeting("m1")
	require.True(t, ok)
	assert.Equal(t, "Alice", again.Sessions[0].DisplayName)
}

func TestAllMeetings(t *testing.T) {
	r := NewMeetingRegistry()
	assert.Empty(t, r.AllMeetings())

	r.RegisterUser("m1", mustSession(t, "alice", "Alice"))
	r.RegisterUser("m1", mustSession(t, "bob", "Bob"))
	r.RegisterUser("m2", mustSession(t, "carol", "Carol"))

	snaps := r.AllMeetings()
	require.Len(t, snaps, 2)
	byID := make(map[domain.MeetingID]MeetingSnapshot)
	for _, s := range snaps {
		byID[s.ID] = s
	}
	assert.Equal(t, 2, byID["m1"].Participants)
	assert.Equal(t, 1, byID["m2"].Participants)

	assert.Equal(t, 2, r.MeetingCount())
	assert.Equal(t, 3, r.SessionCount())
}
