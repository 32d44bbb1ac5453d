package dispatcher

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// sendQueueCapacity bounds one transport's outbound queue; overflow
	// closes the transport with slow_consumer rather than blocking a
	// room actor mid-publish.
	sendQueueCapacity = 256

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second

	// readLimitBytes is the transport-level hard cap. The protocol's
	// 4 KiB frame limit is enforced softly in wire.DecodeEnvelope (the
	// sender gets a typed error and stays connected); only a frame
	// large enough to look hostile tears the connection down.
	readLimitBytes = 65536
)

var errTransportClosed = errors.New("transport closed")

// conn is one live client connection: the Dispatcher's read/write pump
// pair around a websocket, and the session layer's Transport binding.
type conn struct {
	id       string
	endpoint string
	d        *Dispatcher
	ws       *websocket.Conn

	send chan []byte
	done chan struct{}

	closeOnce   sync.Once
	closeReason string
}

func newConn(id, endpoint string, d *Dispatcher, ws *websocket.Conn) *conn {
	return &conn{
		id:       id,
		endpoint: endpoint,
		d:        d,
		ws:       ws,
		send:     make(chan []byte, sendQueueCapacity),
		done:     make(chan struct{}),
	}
}

// ID implements session.Transport.
func (c *conn) ID() string { return c.id }

// Close implements session.Transport: it records the reason for the
// write pump's close frame and wakes both pumps. Safe to call from any
// goroutine, any number of times.
func (c *conn) Close(reason string) error {
	c.closeOnce.Do(func() {
		c.closeReason = reason
		close(c.done)
	})
	return nil
}

// Send implements session.Transport. It never blocks: a full queue
// means the consumer is not keeping up, and slow consumers get
// dropped rather than stalling a room actor.
func (c *conn) Send(data []byte) error {
	select {
	case <-c.done:
		return errTransportClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		log.Printf("[dispatcher] conn %s (%s): send queue full, closing", c.id, c.endpoint)
		_ = c.Close("slow_consumer")
		return errTransportClosed
	}
}

func (c *conn) readPump() {
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.d.sessions.Unbind(ctx, c); err != nil {
			log.Printf("[dispatcher] conn %s: unbind: %v", c.id, err)
		}
		c.d.limits.onDisconnect(c.endpoint)
		_ = c.Close("read_closed")
		c.ws.Close()
	}()

	c.ws.SetReadLimit(readLimitBytes)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.done:
			return
		default:
		}

		messageType, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[dispatcher] conn %s read error: %v", c.id, err)
			}
			return
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		if !c.d.limits.allowMessage(c.endpoint) {
			log.Printf("[dispatcher] conn %s (%s): message rate exceeded", c.id, c.endpoint)
			_ = c.Close("rate_limited")
			return
		}

		c.d.handleInbound(c, message)
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[dispatcher] conn %s write error: %v", c.id, err)
				_ = c.Close("write_failed")
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close("ping_failed")
				return
			}

		case <-c.done:
			// Drain anything already queued before saying goodbye, so a
			// game_cancelled or game_complete queued just before the
			// close still reaches the client.
			for {
				select {
				case message := <-c.send:
					c.ws.SetWriteDeadline(time.Now().Add(writeWait))
					if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
						return
					}
				default:
					c.ws.SetWriteDeadline(time.Now().Add(writeWait))
					closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, c.closeReason)
					_ = c.ws.WriteMessage(websocket.CloseMessage, closeMsg)
					return
				}
			}
		}
	}
}
