package signal

func (ctl *SignalWSController) handlePing(cc *clientConn) {
	sendJSON(cc.wsSignalConn, PongMessage{Type: TypePong})
}
