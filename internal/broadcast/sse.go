package broadcast

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const writeTimeout = 10 * time.Second

// ErrConnClosed is returned when writing to a closed connection.
var ErrConnClosed = errors.New("stream connection closed")

// Frame encodes ev as a Server-Sent Events frame.
func Frame(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", ev.Type, err)
	}

	var buf bytes.Buffer
	buf.Grow(len(ev.Type) + len(data) + 16)
	buf.WriteString("event: ")
	buf.WriteString(ev.Type)
	buf.WriteString("\ndata: ")
	buf.Write(data)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}

var keepAliveFrame = []byte(": keep-alive\n\n")

// SSEConn is a Server-Sent Events connection.
type SSEConn struct {
	mu     sync.Mutex
	w      http.ResponseWriter
	rc     *http.ResponseController
	done   chan struct{}
	closed bool
}

// NewSSEConn writes the stream headers and returns the connection.
func NewSSEConn(w http.ResponseWriter) (*SSEConn, error) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	c := &SSEConn{
		w:    w,
		rc:   http.NewResponseController(w),
		done: make(chan struct{}),
	}
	if err := c.rc.Flush(); err != nil {
		return nil, fmt.Errorf("streaming unsupported: %w", err)
	}
	return c, nil
}

// Send implements Conn.
func (c *SSEConn) Send(ev Event) error {
	frame, err := Frame(ev)
	if err != nil {
		return err
	}
	return c.write(frame)
}

// KeepAlive implements Conn.
func (c *SSEConn) KeepAlive() error {
	return c.write(keepAliveFrame)
}

// Close implements Conn.
func (c *SSEConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

// Done is closed when the connection has been closed by the manager.
func (c *SSEConn) Done() <-chan struct{} {
	return c.done
}

func (c *SSEConn) write(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnClosed
	}
	_ = c.rc.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := c.w.Write(p); err != nil {
		return err
	}
	return c.rc.Flush()
}

// ServeSSE streams events for (tenantID, audience) until the client goes
// away or the manager closes the connection.
func (m *Manager) ServeSSE(w http.ResponseWriter, r *http.Request, tenantID string, audience Audience) {
	conn, err := NewSSEConn(w)
	if err != nil {
		m.logger.Error().Err(err).Msg("sse stream unavailable")
		return
	}

	m.Add(tenantID, audience, conn)
	defer m.Remove(tenantID, audience, conn)
	// A broadcast may still hold conn from an earlier snapshot; once the
	// handler returns its ResponseWriter must not be touched again.
	defer conn.Close()

	select {
	case <-r.Context().Done():
	case <-conn.Done():
	}
}

var _ Conn = (*SSEConn)(nil)
