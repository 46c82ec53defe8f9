package signal

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// Hub tracks the live signal connection per user and is the push side of the
// protocol: ack summaries to speakers, tier changes and membership events to
// whole meetings. It satisfies core.AckNotifier and core.TierNotifier.
type Hub struct {
	mu       sync.RWMutex
	conns    map[domain.UserID]core.SignalConnection
	registry *app.MeetingRegistry
}

func NewHub(registry *app.MeetingRegistry) *Hub {
	return &Hub{
		conns:    make(map[domain.UserID]core.SignalConnection),
		registry: registry,
	}
}

// Bind attaches the user's live connection. A reconnect replaces the old one.
func (h *Hub) Bind(userID domain.UserID, conn core.SignalConnection) {
	h.mu.Lock()
	h.conns[userID] = conn
	h.mu.Unlock()
}

// Unbind detaches the connection, but only if it is still the bound one:
// a fast reconnect must not be unbound by the stale connection's cleanup.
func (h *Hub) Unbind(userID domain.UserID, conn core.SignalConnection) {
	h.mu.Lock()
	if h.conns[userID] == conn {
		delete(h.conns, userID)
	}
	h.mu.Unlock()
}

// SendTo marshals and pushes one message to a single user, if connected.
func (h *Hub) SendTo(userID domain.UserID, v any) {
	h.mu.RLock()
	conn, ok := h.conns[userID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	sendJSON(conn, v)
}

// Broadcast pushes one message to every participant of the meeting except
// the excluded users.
func (h *Hub) Broadcast(meetingID domain.MeetingID, v any, exclude ...domain.UserID) {
	for _, sess := range h.registry.ListRecipients(meetingID, exclude...) {
		h.SendTo(sess.UserID, v)
	}
}

// NotifyAckSummary pushes the per-speaker verification summary to the speaker.
func (h *Hub) NotifyAckSummary(s domain.AckSummary) {
	msg := AckSummaryMessage{
		Type:         TypeAckSummary,
		MeetingID:    string(s.MeetingID),
		AckedUsers:   userIDStrings(s.AckedUsers),
		MissingUsers: userIDStrings(s.MissingUsers),
		Timestamp:    s.Timestamp.UnixMilli(),
	}
	h.SendTo(s.SenderUserID, msg)
}

// NotifyTierChange pushes the new tier to every participant of the meeting.
func (h *Hub) NotifyTierChange(meetingID domain.MeetingID, tier domain.QualityTier) {
	msg := TierChangeMessage{
		Type:      TypeTierChange,
		Tier:      string(tier),
		Timestamp: time.Now().UnixMilli(),
	}
	h.Broadcast(meetingID, msg)
}

func userIDStrings(ids []domain.UserID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func sendJSON(c core.SignalConnection, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}
