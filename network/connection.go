// network/connection.go
package network

import (
	"encoding/json"
	"errors"
	"net"
	"sync"

	"github.com/gorilla/websocket"
)

// MaxMessageBytes caps every inbound frame; a full board snapshot is well
// under this.
const MaxMessageBytes = 256 * 1024

// ErrMalformedMessage marks a frame that is not valid JSON. The connection
// itself stays usable.
var ErrMalformedMessage = errors.New("malformed message")

type Connection interface {
	SendJSON(v interface{}) error
	ReadMessage() (*Message, error)
	Close() error
	RemoteAddr() net.Addr
}

type WSConnection struct {
	conn      *websocket.Conn
	sendMutex sync.Mutex
}

func NewWSConnection(conn *websocket.Conn) *WSConnection {
	conn.SetReadLimit(MaxMessageBytes)
	return &WSConnection{conn: conn}
}

func (c *WSConnection) SendJSON(v interface{}) error {
	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()
	return c.conn.WriteJSON(v)
}

// ReadMessage blocks for the next frame. A JSON parse failure returns
// ErrMalformedMessage and leaves the connection open; any transport error
// means the peer is gone.
func (c *WSConnection) ReadMessage() (*Message, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, ErrMalformedMessage
	}
	if msg.Type == "" {
		return nil, ErrMalformedMessage
	}
	return &msg, nil
}

func (c *WSConnection) Close() error {
	return c.conn.Close()
}

func (c *WSConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
