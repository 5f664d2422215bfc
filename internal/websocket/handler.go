package websocket

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
)

// HandleWebSocket upgrades the request and registers the client with the hub.
// Authentication happens upstream in the middleware chain.
func HandleWebSocket(hub *Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// Same-origin app, no cross-origin clients expected
			InsecureSkipVerify: false,
		})
		if err != nil {
			logger.Warn("websocket accept failed", "error", err)
			return
		}

		client := NewClient(hub, conn, logger)
		hub.Register(client)

		go client.WritePump(r.Context())
		client.ReadPump(r.Context())
	}
}
