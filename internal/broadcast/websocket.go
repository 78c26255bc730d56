package broadcast

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsMessage is the JSON envelope of a WebSocket event.
type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// WSConn is a WebSocket connection. Events are sent as JSON text messages
// and keep-alives as ping control frames.
type WSConn struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	done      chan struct{}
	closeOnce sync.Once
}

// NewWSConn wraps an upgraded connection and starts draining client frames.
func NewWSConn(conn *websocket.Conn) *WSConn {
	c := &WSConn{conn: conn, done: make(chan struct{})}
	go c.readPump()
	return c
}

// Send implements Conn.
func (c *WSConn) Send(ev Event) error {
	msg, err := json.Marshal(wsMessage{Type: ev.Type, Data: ev.Data})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// KeepAlive implements Conn.
func (c *WSConn) KeepAlive() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// Close implements Conn.
func (c *WSConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
		close(c.done)
	})
	return err
}

// Done is closed once the connection is closed from either side.
func (c *WSConn) Done() <-chan struct{} {
	return c.done
}

// readPump discards client messages; it exists to observe close frames.
func (c *WSConn) readPump() {
	defer c.Close()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// NewUpgrader returns an upgrader that accepts the given origins and requests
// without an Origin header. A "*" entry accepts any origin. allowLocalhost
// additionally admits localhost origins and is meant for development only.
func NewUpgrader(allowedOrigins []string, allowLocalhost bool) *websocket.Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowed["*"] || allowed[origin] {
				return true
			}
			if !allowLocalhost {
				return false
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			host := u.Hostname()
			return host == "localhost" || host == "127.0.0.1" || host == "::1"
		},
	}
}

// ServeWS upgrades the request and streams events for (tenantID, audience)
// until either side closes.
func (m *Manager) ServeWS(upgrader *websocket.Upgrader, w http.ResponseWriter, r *http.Request, tenantID string, audience Audience) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := NewWSConn(ws)
	m.Add(tenantID, audience, conn)
	defer m.Remove(tenantID, audience, conn)

	select {
	case <-r.Context().Done():
	case <-conn.Done():
	}
	_ = conn.Close()
}

var _ Conn = (*WSConn)(nil)
