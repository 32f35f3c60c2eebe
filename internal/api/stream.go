package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// DeliveriesStreamHandler streams delivery status transitions over a
// WebSocket: GET /v1/admin/deliveries/stream?endpointId=... (all endpoints
// when the filter is omitted).
func (s *Server) DeliveriesStreamHandler(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("endpointId")
	if key == "" {
		key = SubscribeAll
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	ch := s.Broker.Subscribe(key)
	defer s.Broker.Unsubscribe(key, ch)

	// Reader only detects close; clients never send application data.
	closed := make(chan struct{})
	conn.SetReadLimit(1 << 16)
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case update, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(update); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
