package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/waveroom/waveroom/internal/collab"
	"github.com/waveroom/waveroom/internal/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 65536
)

// Client represents one authenticated WebSocket connection. It implements
// collab.Sender: the coordinator addresses replies and broadcasts to it
// through the buffered send channel.
type Client struct {
	ID       string
	userID   string
	userName string

	conn  *websocket.Conn
	send  chan *collab.Event
	coord *collab.Coordinator
	log   *logger.Logger
	debug bool

	quit     chan struct{}
	quitOnce sync.Once
	closed   atomic.Bool
}

// NewClient creates a client for an already-authenticated connection.
// Failing to draw a connection ID fails the whole connection: IDs key the
// coordinator registries and must never collide.
func NewClient(conn *websocket.Conn, coord *collab.Coordinator, userID, userName string, debug bool) (*Client, error) {
	id, err := generateConnectionID()
	if err != nil {
		return nil, fmt.Errorf("generate connection id: %w", err)
	}

	return &Client{
		ID:       id,
		userID:   userID,
		userName: userName,
		conn:     conn,
		send:     make(chan *collab.Event, 256),
		coord:    coord,
		log:      logger.Global().WithPrefix("ws"),
		debug:    debug,
		quit:     make(chan struct{}),
	}, nil
}

// Send queues an event for delivery. It never blocks; a slow consumer
// drops events rather than stalling the coordinator.
func (c *Client) Send(evt *collab.Event) {
	if c.closed.Load() {
		return
	}
	select {
	case c.send <- evt:
	default:
		c.log.Warn("send channel full for %s, dropping %s", c.ID, evt.Type)
	}
}

// Closed reports whether either pump has exited. The coordinator's
// garbage collector uses this to spot connections that died without a
// clean disconnect.
func (c *Client) Closed() bool {
	return c.closed.Load()
}

// ReadPump pumps inbound events from the WebSocket to the coordinator.
// It runs until the connection errors, then cascades the disconnect.
func (c *Client) ReadPump() {
	defer func() {
		c.shutdown()
		c.coord.Disconnect(c.ID)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Error("read error on %s: %v", c.ID, err)
			}
			break
		}

		var evt collab.Event
		if err := json.Unmarshal(message, &evt); err != nil {
			c.log.Error("malformed event from %s: %v", c.ID, err)
			c.Send(&collab.Event{Type: collab.EventError, Message: "malformed event"})
			continue
		}

		if c.debug {
			c.log.Debug("received from %s: %s", c.ID, string(message))
		}

		c.handleEvent(&evt)
	}
}

// WritePump pumps queued events to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()

	for {
		select {
		case evt := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			data, err := json.Marshal(evt)
			if err != nil {
				c.log.Error("marshal failed for %s: %v", evt.Type, err)
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug("write error on %s: %v", c.ID, err)
				return
			}

			if c.debug {
				c.log.Debug("sent to %s: %s", c.ID, string(data))
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.quit:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// handleEvent dispatches one inbound event. Failures surface as an error
// event to this connection only; nothing here may take down the process.
func (c *Client) handleEvent(evt *collab.Event) {
	ctx := context.Background()

	switch evt.Type {
	case collab.EventJoinProject:
		if err := c.coord.JoinProject(ctx, c.ID, evt.ProjectID); err != nil {
			c.log.Warn("join of %s to %s refused: %v", c.userID, evt.ProjectID, err)
			c.Send(&collab.Event{
				Type:      collab.EventError,
				ProjectID: evt.ProjectID,
				Message:   err.Error(),
			})
		}

	case collab.EventLeaveProject:
		c.coord.LeaveProject(c.ID, evt.ProjectID)

	case collab.EventCursorMove:
		if evt.CursorPosition != nil {
			c.coord.MoveCursor(c.ID, evt.ProjectID, *evt.CursorPosition)
		}

	case collab.EventMouseMove:
		if evt.MousePosition != nil {
			c.coord.MoveMouse(c.ID, evt.ProjectID, *evt.MousePosition)
		}

	case collab.EventRequestTrackLock:
		c.coord.RequestTrackLock(ctx, c.ID, evt.ProjectID, evt.TrackID)

	case collab.EventReleaseTrackLock:
		c.coord.ReleaseTrackLock(c.ID, evt.ProjectID, evt.TrackID)

	case collab.EventRequestProjectLock:
		c.coord.RequestProjectLock(ctx, c.ID, evt.ProjectID, evt.Operation)

	case collab.EventReleaseProjectLock:
		c.coord.ReleaseProjectLock(c.ID, evt.ProjectID)

	case collab.EventProjectUpdate:
		c.coord.RelayProjectUpdate(ctx, c.ID, evt.ProjectID, evt.Changes)

	case collab.EventTrackAdded, collab.EventTrackUpdated, collab.EventTrackDeleted:
		c.coord.RelayTrackChange(ctx, c.ID, evt.ProjectID, evt.Type, evt.Payload)

	default:
		c.log.Warn("unknown event type %q from %s", evt.Type, c.ID)
		c.Send(&collab.Event{Type: collab.EventError, Message: "unknown event type"})
	}
}

func (c *Client) shutdown() {
	c.closed.Store(true)
	c.quitOnce.Do(func() { close(c.quit) })
	c.conn.Close()
}

// generateConnectionID generates a random connection ID
func generateConnectionID() (string, error) {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
