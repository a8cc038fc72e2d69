// README: Websocket front end for the gateway hub.
package bridge

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// auth happens before the bridge; it relays for any verified origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the connection and runs the session until either
// side goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Debug("websocket upgrade failed")
		return
	}

	s := h.NewSession()
	h.log.WithField("session", s.ID()).Info("client connected")

	// writer: drains the outbound buffer; exits when CloseSession closes it
	go func() {
		for d := range s.Out() {
			if err := conn.WriteJSON(d); err != nil {
				break
			}
		}
		_ = conn.Close()
	}()

	// reader: one event-loop turn per frame
	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			break
		}
		if err := h.HandleFrame(r.Context(), s, f); err != nil {
			h.log.WithError(err).WithFields(logrus.Fields{
				"session": s.ID(),
				"type":    f.Type,
				"topic":   f.Topic,
			}).Debug("frame rejected")
		}
	}

	h.CloseSession(s)
	_ = conn.Close()
	h.log.WithField("session", s.ID()).Info("client disconnected")
}
