// internal/app/features/stream/client.go
package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/veil-chat/veil/internal/app/engine"
	"github.com/veil-chat/veil/internal/domain/models"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be less than pongWait
	maxMessageSize = 512
	sendBuffer     = 64
)

// command is what the client may send: feed selection only. All
// mutations go through the REST API.
type command struct {
	Op      string `json:"op"`
	GroupID string `json:"group_id"`
}

type event struct {
	Type     string         `json:"type"`
	GroupID  string         `json:"group_id,omitempty"`
	Groups   []groupEvent   `json:"groups,omitempty"`
	Messages []messageEvent `json:"messages,omitempty"`
	Error    string         `json:"error,omitempty"`
}

type groupEvent struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	MyAlias    string `json:"my_alias,omitempty"`
	IsAdmin    bool   `json:"is_admin"`
	JoinCode   string `json:"join_code,omitempty"`
	SharedLink string `json:"shared_link,omitempty"`
}

type messageEvent struct {
	ID        string    `json:"id"`
	Alias     string    `json:"alias"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// client pumps subscription snapshots out to one websocket peer and
// feed-selection commands back in.
type client struct {
	h      *Handler
	conn   *websocket.Conn
	userID string
	send   chan []byte
	done   chan struct{}
	mgr    *engine.Manager

	closeOnce sync.Once
}

func newClient(h *Handler, conn *websocket.Conn, userID string) *client {
	c := &client{
		h:      h,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
	c.mgr = engine.NewManager(h.Store, userID, c.onGroups, c.onMessages, h.Log)
	return c
}

// run drives the connection to completion. It returns when the peer
// disconnects or the groups feed cannot be established.
func (c *client) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	defer c.mgr.Stop()

	if err := c.mgr.Start(ctx); err != nil {
		c.h.Log.Warn("stream: groups feed failed",
			zap.String("user_id", c.userID), zap.Error(err))
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "store unavailable"),
			time.Now().Add(writeWait))
		_ = c.conn.Close()
		return
	}

	go c.writePump()
	c.readPump(ctx)
}

// onGroups runs on the groups subscription goroutine.
func (c *client) onGroups(groups []models.Group) {
	evs := make([]groupEvent, 0, len(groups))
	for _, g := range groups {
		ev := groupEvent{
			ID:      g.ID,
			Name:    g.Name,
			IsAdmin: g.AdminID == c.userID,
		}
		if m, ok := g.Members[c.userID]; ok {
			ev.MyAlias = m.Alias
		}
		if ev.IsAdmin {
			ev.JoinCode = g.JoinCode
			ev.SharedLink = g.SharedLink
		}
		evs = append(evs, ev)
	}
	c.enqueue(event{Type: "groups", Groups: evs})
}

// onMessages runs on the messages subscription goroutine.
func (c *client) onMessages(groupID string, messages []models.Message) {
	evs := make([]messageEvent, 0, len(messages))
	for _, m := range messages {
		evs = append(evs, messageEvent{
			ID:        m.ID,
			Alias:     m.Alias,
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}
	c.enqueue(event{Type: "messages", GroupID: groupID, Messages: evs})
}

// enqueue serializes an event onto the send channel. A peer that
// cannot keep up gets disconnected rather than blocking the
// subscription goroutines.
func (c *client) enqueue(ev event) {
	buf, err := json.Marshal(ev)
	if err != nil {
		c.h.Log.Error("stream: marshal event", zap.Error(err))
		return
	}
	select {
	case c.send <- buf:
	case <-c.done:
	default:
		c.h.Log.Warn("stream: slow consumer, closing",
			zap.String("user_id", c.userID))
		c.close()
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// readPump consumes selection commands until the peer goes away.
func (c *client) readPump(ctx context.Context) {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.h.Log.Debug("stream: read", zap.Error(err))
			}
			return
		}

		var cmd command
		if err := json.Unmarshal(raw, &cmd); err != nil || cmd.Op != "select" {
			c.enqueue(event{Type: "error", Error: "unknown command"})
			continue
		}
		c.handleSelect(ctx, cmd.GroupID)
	}
}

// handleSelect retargets the messages feed. Selection is restricted
// to groups the user belongs to; the check runs against the latest
// groups snapshot.
func (c *client) handleSelect(ctx context.Context, groupID string) {
	if groupID != "" && !isMember(c.mgr.Groups(), groupID, c.userID) {
		c.enqueue(event{Type: "error", GroupID: groupID, Error: "not a member of this group"})
		return
	}
	if err := c.mgr.Select(ctx, groupID); err != nil {
		c.enqueue(event{Type: "error", GroupID: groupID, Error: "could not subscribe"})
	}
}

func isMember(groups []models.Group, groupID, userID string) bool {
	for _, g := range groups {
		if g.ID == groupID {
			return g.HasMember(userID)
		}
	}
	return false
}

// writePump drains the send channel to the peer and keeps the
// connection alive with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case buf := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, buf); err != nil {
				return
			}

		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
