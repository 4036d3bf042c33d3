package call

import (
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ShounakMahata18/video-call/internal/signaling"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Relay is the session's view of the signaling transport: ordered, typed
// messages in both directions. Incoming is closed when the transport is lost.
type Relay interface {
	Send(msg *signaling.Message)
	Incoming() <-chan *signaling.Message
}

// SignalClient manages the websocket connection to the relay.
type SignalClient struct {
	conn      *websocket.Conn
	serverURL string
	incoming  chan *signaling.Message
	outgoing  chan *signaling.Message
	done      chan struct{}
	closed    bool
}

var _ Relay = (*SignalClient)(nil)

func NewSignalClient(serverURL string) *SignalClient {
	return &SignalClient{
		serverURL: serverURL,
		incoming:  make(chan *signaling.Message, 32),
		outgoing:  make(chan *signaling.Message, 32),
		done:      make(chan struct{}),
	}
}

// Connect establishes the websocket connection and starts the pumps.
func (c *SignalClient) Connect() error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	return nil
}

func (c *SignalClient) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var msg signaling.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		c.incoming <- &msg
	}
}

func (c *SignalClient) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// Send queues a message to the relay.
func (c *SignalClient) Send(msg *signaling.Message) {
	select {
	case c.outgoing <- msg:
	case <-c.done:
	}
}

// Incoming returns the channel of messages from the relay.
func (c *SignalClient) Incoming() <-chan *signaling.Message {
	return c.incoming
}

// Close shuts the connection down. Idempotent.
func (c *SignalClient) Close() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}
