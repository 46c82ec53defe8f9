package signal

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/domain"
)

// handleFingerprint routes a frame digest to the verifier as a sender or
// receiver digest, depending on which field is populated.
func (ctl *SignalWSController) handleFingerprint(cc *clientConn, data []byte) {
	var p FrameFingerprintMessage
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad fingerprint payload")
		ctl.sendError(cc, CodeBadRequest, "bad payload")
		return
	}
	if p.FrameID == "" || p.CRC32 == "" {
		ctl.sendError(cc, CodeBadRequest, "missing frame id or crc32")
		return
	}

	switch {
	case p.SenderUserID != "":
		ctl.Orch.OnSenderFingerprint(p.FrameID, p.CRC32, domain.UserID(p.SenderUserID))
	case p.ReceiverUserID != "":
		ctl.Orch.OnReceiverFingerprint(p.FrameID, p.CRC32, domain.UserID(p.ReceiverUserID))
	default:
		ctl.sendError(cc, CodeBadRequest, "fingerprint without sender or receiver")
	}
}

func (ctl *SignalWSController) handleReport(cc *clientConn, data []byte) {
	var p RtcpReportMessage
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad report payload")
		ctl.sendError(cc, CodeBadRequest, "bad payload")
		return
	}
	if p.UserID == "" || p.LossPct < 0 || p.LossPct > 1 {
		ctl.sendError(cc, CodeBadRequest, "invalid report")
		return
	}

	ts := time.UnixMilli(p.Timestamp)
	if p.Timestamp == 0 {
		ts = time.Now()
	}
	ctl.Orch.OnReport(domain.RtcpReport{
		UserID:    domain.UserID(p.UserID),
		LossPct:   p.LossPct,
		JitterMs:  p.JitterMs,
		RttMs:     p.RttMs,
		Timestamp: ts,
	})
}
