package broadcast

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeSSE_ConnClosedOnceHandlerReturns(t *testing.T) {
	m := NewManager(Config{Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	returned := make(chan struct{})
	go func() {
		defer close(returned)
		m.ServeSSE(rec, req, "tenant-a", AudiencePublic)
	}()

	require.Eventually(t, func() bool {
		return m.Count("tenant-a", AudiencePublic) == 1
	}, time.Second, 5*time.Millisecond)

	// A broadcast that snapshotted the registry before the client left.
	held := m.snapshot(key{tenantID: "tenant-a", audience: AudiencePublic})
	require.Len(t, held, 1)

	cancel()
	<-returned

	assert.Equal(t, 0, m.Count("tenant-a", AudiencePublic))
	err := held[0].Send(Event{Type: EventMonitorStatusChanged, Data: map[string]string{"status": "UP"}})
	assert.ErrorIs(t, err, ErrConnClosed)
}
