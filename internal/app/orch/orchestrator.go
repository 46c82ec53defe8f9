// Package orch wires the control-plane components behind the signaling layer.
package orch

import (
	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/app/ack"
	"github.com/dkeye/Meet/internal/app/forward"
	"github.com/dkeye/Meet/internal/app/quality"
	"github.com/dkeye/Meet/internal/app/rtcp"
	"github.com/dkeye/Meet/internal/app/verify"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

type Orchestrator struct {
	Registry  *app.MeetingRegistry
	Collector *rtcp.Collector
	Quality   *quality.Controller
	Forwarder *forward.Forwarder
	Verifier  *verify.Verifier
	Acks      *ack.Aggregator
	Engine    core.MediaEngine
}

// OnReport routes a transport quality report into the collector.
func (o *Orchestrator) OnReport(rep domain.RtcpReport) {
	o.Collector.Collect(rep)
}

// OnSenderFingerprint records the speaker's frame digest and remembers it on
// the session for diagnostics.
func (o *Orchestrator) OnSenderFingerprint(frameID, crc32 string, sender domain.UserID) {
	if meetingID, ok := o.Registry.MeetingOf(sender); ok {
		o.Registry.UpdateLastCRC32(meetingID, sender, crc32)
	}
	o.Verifier.AddSenderFingerprint(frameID, crc32, sender)
}

// OnReceiverFingerprint records a receiver's digest for the frame.
func (o *Orchestrator) OnReceiverFingerprint(frameID, crc32 string, receiver domain.UserID) {
	o.Verifier.AddReceiverFingerprint(frameID, crc32, receiver)
}
