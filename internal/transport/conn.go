package transport

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	readTimeout  = 60 * time.Second
	pingInterval = 25 * time.Second // must be less than readTimeout
	maxMessage   = 4096

	// Inbound rate limit per connection; excess messages are dropped.
	maxMessagesPerSecond = 20
)

var (
	ErrClosed       = errors.New("transport: connection closed")
	ErrSlowConsumer = errors.New("transport: send buffer full")
)

// Conn wraps a websocket with a buffered write pump. It implements
// game.Conn: Send never blocks the room goroutine.
type Conn struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
	log  *log.Logger
}

func newConn(ws *websocket.Conn, buffer int, logger *log.Logger) *Conn {
	return &Conn{
		ws:   ws,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
		log:  logger,
	}
}

// Send queues msg for the write pump. A full buffer closes the connection.
func (c *Conn) Send(msg []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		c.Close()
		return ErrSlowConsumer
	}
}

// Close stops the write pump, which sends a close frame and closes the
// socket. Safe to call more than once.
func (c *Conn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.flush()
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever is still queued so a final game_over or error
// reaches the client before the close frame.
func (c *Conn) flush() {
	for {
		select {
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

// readPump delivers inbound frames to handle until the socket fails.
func (c *Conn) readPump(handle func([]byte)) {
	c.ws.SetReadLimit(maxMessage)
	c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	count := 0
	window := time.Now()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Printf("read error err=%v", err)
			}
			return
		}
		now := time.Now()
		if now.Sub(window) >= time.Second {
			count = 0
			window = now
		}
		count++
		if count > maxMessagesPerSecond {
			continue
		}
		handle(data)
	}
}
