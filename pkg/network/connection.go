package network

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/queue"
	"nhooyr.io/websocket"
)

const (
	// DefaultWriteTimeout bounds a single websocket write
	DefaultWriteTimeout = 10 * time.Second
	// DefaultReadLimit is the largest envelope accepted from a peer
	DefaultReadLimit = 16 << 20
)

var ErrConnectionClosed = errors.New("connection is closed")

// Inbound is a serialized envelope received from a peer
type Inbound struct {
	From string
	Data []byte
}

// Connection is an open websocket to a single peer.
// Envelopes are written by one goroutine in the order they were sent.
// The outbound queue is unbounded: the engine never retries, so a dropped
// envelope would leave the peer out of sync until it reconnects.
type Connection struct {
	peerID string
	conn   *websocket.Conn

	outLock sync.Mutex
	out     [][]byte
	// wake has capacity 1 and signals the write loop that out is not empty
	wake chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

func newConnection(peerID string, conn *websocket.Conn) *Connection {
	conn.SetReadLimit(DefaultReadLimit)
	return &Connection{
		peerID: peerID,
		conn:   conn,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (c *Connection) PeerID() string {
	return c.peerID
}

// Done is closed once the connection is closed
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Send queues data for the write loop without waiting for delivery
func (c *Connection) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	c.outLock.Lock()
	c.out = append(c.out, data)
	c.outLock.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

// takePending returns every queued envelope in send order and empties the queue
func (c *Connection) takePending() [][]byte {
	c.outLock.Lock()
	defer c.outLock.Unlock()
	pending := c.out
	c.out = nil
	return pending
}

// Close closes the websocket. It is safe to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if err := c.conn.Close(websocket.StatusNormalClosure, ""); err != nil {
			log.Trace("Failed to close connection to %s cleanly: %v", c.peerID, err)
		}
	})
}

func (c *Connection) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-c.wake:
			for _, data := range c.takePending() {
				writeCtx, cancel := context.WithTimeout(ctx, DefaultWriteTimeout)
				err := c.conn.Write(writeCtx, websocket.MessageBinary, data)
				cancel()
				if err != nil {
					log.Error("Failed to write to %s: %v", c.peerID, err)
					c.Close()
					return
				}
			}
		}
	}
}

// readLoop enqueues every binary message until the connection fails
func (c *Connection) readLoop(ctx context.Context, messageQueue queue.Queue) error {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageBinary {
			log.Warn("Ignoring non-binary message from %s", c.peerID)
			continue
		}
		if err := messageQueue.Enqueue(&Inbound{From: c.peerID, Data: data}); err != nil {
			log.Error("Failed to enqueue message from %s: %v", c.peerID, err)
		}
	}
}

// Serve registers the connection and runs it until it fails or ctx is done.
// Received envelopes are enqueued on messageQueue as *Inbound.
func Serve(ctx context.Context, c *Connection, connections *ConnectionManager, messageQueue queue.Queue) error {
	if err := connections.Add(c); err != nil {
		c.conn.Close(websocket.StatusPolicyViolation, "peer is already connected")
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		c.Close()
		connections.Remove(c)
	}()

	go c.writeLoop(ctx)

	err := c.readLoop(ctx, messageQueue)
	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
		log.Trace("Connection closed for %s", c.peerID)
		return nil
	}
	select {
	case <-c.done:
		return nil
	default:
	}
	return err
}
