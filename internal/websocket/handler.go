package websocket

import (
	"github.com/gofiber/websocket/v2"
)

// ServeWs attaches a fresh channel to the hub and blocks until the
// connection ends. Agents are subscribed to the admin lobby immediately;
// conversation rooms are joined per frame through the router.
func ServeWs(hub *Hub, conn *websocket.Conn, identity Identity, router EventRouter) {
	client := &Client{
		Hub:      hub,
		Conn:     conn,
		Identity: identity,
		Send:     make(chan []byte, 256),
		router:   router,
	}
	hub.register <- client

	if identity.Kind == KindAgent {
		hub.Subscribe(client, LobbyRoom)
	}

	go client.writePump()
	client.readPump() // blocks in the handler goroutine
}
