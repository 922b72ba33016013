package handlers

import (
	"net/http"
	"strings"
	"time"

	"gobridgecore/events"

	"github.com/gorilla/websocket"
)

const (
	eventBuffer = 256
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = pongWait * 9 / 10
)

// Events streams bus events as JSON over a websocket, ?kind= limits the stream to a comma separated set of kinds
func (a *API) Events(w http.ResponseWriter, r *http.Request) {
	var kinds map[events.Kind]bool
	if s := r.URL.Query().Get("kind"); s != "" {
		kinds = make(map[events.Kind]bool)
		for _, k := range strings.Split(s, ",") {
			kinds[events.Kind(strings.TrimSpace(k))] = true
		}
	}

	// subscribed before the handshake completes so no event after it is missed
	feed, cancel := a.bus.Subscribe(eventBuffer)
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		cancel()
		a.logger.Warn("Websocket upgrade failed", "err", err)
		return
	}
	a.logger.Debug("Event subscriber connected", "remote", r.RemoteAddr)

	closed := make(chan struct{})
	go a.readEvents(conn, closed)

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		conn.Close()
		a.logger.Debug("Event subscriber disconnected", "remote", r.RemoteAddr)
	}()

	for {
		select {
		case ev, ok := <-feed:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if kinds != nil && !kinds[ev.Kind] {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				a.logger.Debug("Event write failed", "remote", r.RemoteAddr, "err", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

// readEvents drains client frames so pongs and close frames are processed
func (a *API) readEvents(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				a.logger.Debug("Event subscriber read failed", "err", err)
			}
			return
		}
	}
}
