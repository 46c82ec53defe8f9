package signal

// The wire protocol is a closed tagged-variant set: every message carries a
// type tag and is dispatched through an exhaustive switch, so a new kind is
// a compile-time-checked addition.

type MessageType string

const (
	// client → server
	TypeJoin             MessageType = "join"
	TypeOffer            MessageType = "offer"
	TypeAnswer           MessageType = "answer"
	TypeICECandidate     MessageType = "ice-candidate"
	TypeLeave            MessageType = "leave"
	TypeFrameFingerprint MessageType = "frame-fingerprint"
	TypeRtcpReport       MessageType = "rtcp-report"
	TypePing             MessageType = "ping"

	// server → client
	TypeJoined     MessageType = "joined"
	TypeError      MessageType = "error"
	TypeAckSummary MessageType = "ack-summary"
	TypeTierChange MessageType = "tier-change"
	TypeUserJoined MessageType = "user-joined"
	TypeUserLeft   MessageType = "user-left"
	TypePong       MessageType = "pong"
)

const (
	CodeBadRequest      = 400
	CodeUnauthenticated = 401
	CodeInternal        = 500
)

// Envelope carries only the type tag, enough to pick the payload struct.
type Envelope struct {
	Type MessageType `json:"type"`
}

type JoinMessage struct {
	Type        MessageType `json:"type"`
	MeetingID   string      `json:"meetingId"`
	UserID      string      `json:"userId"`
	DisplayName string      `json:"displayName"`
}

type SDPMessage struct {
	Type      MessageType `json:"type"`
	MeetingID string      `json:"meetingId"`
	SDP       string      `json:"sdp"`
}

type ICECandidateMessage struct {
	Type          MessageType `json:"type"`
	MeetingID     string      `json:"meetingId"`
	Candidate     string      `json:"candidate"`
	SDPMid        string      `json:"sdpMid,omitempty"`
	SDPMLineIndex uint16      `json:"sdpMLineIndex,omitempty"`
}

type LeaveMessage struct {
	Type      MessageType `json:"type"`
	MeetingID string      `json:"meetingId"`
	UserID    string      `json:"userId"`
}

type FrameFingerprintMessage struct {
	Type           MessageType `json:"type"`
	FrameID        string      `json:"frameId"`
	CRC32          string      `json:"crc32"`
	SenderUserID   string      `json:"senderUserId,omitempty"`
	ReceiverUserID string      `json:"receiverUserId,omitempty"`
	Timestamp      int64       `json:"timestamp"`
	RTPTimestamp   uint32      `json:"rtpTimestamp,omitempty"`
}

type RtcpReportMessage struct {
	Type      MessageType `json:"type"`
	UserID    string      `json:"userId"`
	LossPct   float64     `json:"lossPct"`
	JitterMs  float64     `json:"jitterMs"`
	RttMs     float64     `json:"rttMs"`
	Timestamp int64       `json:"timestamp"`
}

type ParticipantInfo struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Tier        string `json:"tier"`
	State       string `json:"state"`
}

type JoinedMessage struct {
	Type         MessageType       `json:"type"`
	MeetingID    string            `json:"meetingId"`
	UserID       string            `json:"userId"`
	Success      bool              `json:"success"`
	Participants []ParticipantInfo `json:"participants"`
	Timestamp    int64             `json:"timestamp"`
}

type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Code    int         `json:"code"`
	Message string      `json:"message"`
}

type AckSummaryMessage struct {
	Type         MessageType `json:"type"`
	MeetingID    string      `json:"meetingId"`
	AckedUsers   []string    `json:"ackedUsers"`
	MissingUsers []string    `json:"missingUsers"`
	Timestamp    int64       `json:"timestamp"`
}

type TierChangeMessage struct {
	Type      MessageType `json:"type"`
	Tier      string      `json:"tier"`
	Timestamp int64       `json:"timestamp"`
}

type UserEventMessage struct {
	Type        MessageType `json:"type"`
	MeetingID   string      `json:"meetingId"`
	UserID      string      `json:"userId"`
	DisplayName string      `json:"displayName,omitempty"`
}

type PongMessage struct {
	Type MessageType `json:"type"`
}
