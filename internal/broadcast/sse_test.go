package broadcast_test

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsewatch/pulsewatch/internal/broadcast"
)

func TestFrame(t *testing.T) {
	frame, err := broadcast.Frame(broadcast.Event{
		Type: broadcast.EventComponentStatusChanged,
		Data: map[string]string{"componentId": "cmp_1", "status": "major_outage"},
	})
	require.NoError(t, err)
	assert.Equal(t,
		"event: component-status-changed\ndata: {\"componentId\":\"cmp_1\",\"status\":\"major_outage\"}\n\n",
		string(frame))
}

func TestFrame_UnencodableData(t *testing.T) {
	_, err := broadcast.Frame(broadcast.Event{Type: "x", Data: make(chan int)})
	assert.Error(t, err)
}

func TestServeSSE(t *testing.T) {
	m := newManager()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.ServeSSE(w, r, "tenant-a", broadcast.AudiencePublic)
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	require.Eventually(t, func() bool {
		return m.Count("tenant-a", broadcast.AudiencePublic) == 1
	}, time.Second, 5*time.Millisecond)

	m.Broadcast("tenant-a", broadcast.AudiencePublic, statusEvent)
	m.KeepAlive()

	r := bufio.NewReader(resp.Body)
	readLine := func() string {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		return line
	}
	assert.Equal(t, "event: monitor-status-changed\n", readLine())
	assert.Equal(t, "data: {\"monitorId\":\"mon_1\",\"status\":\"DOWN\"}\n", readLine())
	assert.Equal(t, "\n", readLine())
	assert.Equal(t, ": keep-alive\n", readLine())
	assert.Equal(t, "\n", readLine())

	require.NoError(t, resp.Body.Close())
	require.Eventually(t, func() bool {
		return m.Count("tenant-a", broadcast.AudiencePublic) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSSEConn_ClosedConnRejectsWrites(t *testing.T) {
	rec := httptest.NewRecorder()
	conn, err := broadcast.NewSSEConn(rec)
	require.NoError(t, err)

	require.NoError(t, conn.Send(statusEvent))
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	assert.ErrorIs(t, conn.Send(statusEvent), broadcast.ErrConnClosed)
	assert.ErrorIs(t, conn.KeepAlive(), broadcast.ErrConnClosed)
	assert.Contains(t, rec.Body.String(), "event: monitor-status-changed\n")

	select {
	case <-conn.Done():
	default:
		t.Fatal("done channel not closed")
	}
}
