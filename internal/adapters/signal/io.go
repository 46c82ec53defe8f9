package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/metrics"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *wsSignalConn) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, cc *clientConn) {
	defer func() {
		// A connection dropping at any point runs the same cleanup as an
		// explicit leave.
		ctl.disconnect(cc)
		cc.Close()
		cancel()
		log.Info().Str("module", "signal").Msg("readPump closing")
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("readPump ctx done")
			return
		default:
			_, data, err := cc.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Msg("readPump read error")
				return
			}
			ctl.handleMessage(cc, data)
		}
	}
}

// handleMessage dispatches one inbound message by its type tag. Anything
// malformed gets a 400, anything before authentication but join/ping gets a
// 401 with no side effects.
func (ctl *SignalWSController) handleMessage(cc *clientConn, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(cc, CodeBadRequest, "malformed message")
		return
	}
	metrics.MessagesIn.WithLabelValues(string(env.Type)).Inc()

	_, _, authed := cc.identity()
	if !authed && env.Type != TypeJoin && env.Type != TypePing {
		ctl.sendError(cc, CodeUnauthenticated, "not authenticated")
		return
	}

	switch env.Type {
	case TypeJoin:
		ctl.handleJoin(cc, data)
	case TypeOffer:
		ctl.handleOffer(cc, data)
	case TypeAnswer:
		ctl.handleAnswer(cc, data)
	case TypeICECandidate:
		ctl.handleCandidate(cc, data)
	case TypeLeave:
		ctl.handleLeave(cc)
	case TypeFrameFingerprint:
		ctl.handleFingerprint(cc, data)
	case TypeRtcpReport:
		ctl.handleReport(cc, data)
	case TypePing:
		ctl.handlePing(cc)
	default:
		log.Warn().Str("module", "signal").Str("type", string(env.Type)).Msg("unknown signal")
		ctl.sendError(cc, CodeBadRequest, "unknown message type")
	}
}

func (ctl *SignalWSController) sendError(cc *clientConn, code int, msg string) {
	sendJSON(cc.wsSignalConn, ErrorMessage{Type: TypeError, Code: code, Message: msg})
}
