package websocket

import (
	"github.com/gofiber/websocket/v2"
)

// ServeWs attaches the connection to key and blocks until it closes.
func ServeWs(hub *Hub, c *websocket.Conn, key string) {
	client := &Client{Hub: hub, Conn: c, Key: key, Send: make(chan []byte, sendBuffer)}
	hub.register(client)

	go client.writePump()
	client.readPump()
}
