// Package activity streams audit events to connected admin consoles over
// websockets.
package activity

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/lodomap/lodo/internal/models"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
	clientBuffer   = 16
	maxMessageSize = 512
)

// Feed is a fan-out hub for audit events. Slow clients are disconnected
// rather than allowed to block the hub.
type Feed struct {
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan *models.AuditEvent
}

// NewFeed creates an activity feed hub.
func NewFeed(logger zerolog.Logger) *Feed {
	return &Feed{
		logger: logger.With().Str("component", "activity_feed").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Auth and CORS run before the upgrade; origin is not
			// re-checked here.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// BroadcastAudit delivers an event to every connected client.
func (f *Feed) BroadcastAudit(event *models.AuditEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		select {
		case c.send <- event:
		default:
			f.logger.Warn().Msg("dropping slow activity feed client")
			delete(f.clients, c)
			close(c.send)
		}
	}
}

// ClientCount returns the number of connected clients.
func (f *Feed) ClientCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// HandleWS upgrades the request and streams events until the client leaves.
// GET /api/v1/activity/ws
func (f *Feed) HandleWS(c *gin.Context) {
	conn, err := f.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		f.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	cl := &client{conn: conn, send: make(chan *models.AuditEvent, clientBuffer)}
	f.mu.Lock()
	f.clients[cl] = struct{}{}
	f.mu.Unlock()

	f.logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("activity feed client connected")

	go f.writeLoop(cl)
	f.readLoop(cl)
}

func (f *Feed) readLoop(cl *client) {
	defer f.drop(cl)
	cl.conn.SetReadLimit(maxMessageSize)
	for {
		// Clients do not send application messages; reads only service
		// control frames and detect disconnects.
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *Feed) writeLoop(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()

	for {
		select {
		case event, ok := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (f *Feed) drop(cl *client) {
	f.mu.Lock()
	if _, ok := f.clients[cl]; ok {
		delete(f.clients, cl)
		close(cl.send)
	}
	f.mu.Unlock()
	cl.conn.Close()
}
