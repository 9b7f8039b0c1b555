package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecords(t *testing.T) {
	c := NewCollector()

	c.QueueState(2, 3)
	c.QueueTask("sync:ridgeline", "ok", time.Second)
	c.SyncFinished("ridgeline", "success", time.Minute)
	c.Candidate("ridgeline", "created")
	c.Candidate("ridgeline", "created")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.queueInFlight))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.queueWaiting))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.queueTasks.WithLabelValues("sync:ridgeline", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.syncCandidates.WithLabelValues("ridgeline", "created")))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.QueueState(1, 1)
		c.QueueTask("x", "ok", 0)
		c.SyncFinished("v", "error", 0)
		c.Candidate("v", "failed")
		c.ImageMirrorFailed()
	})
}

func TestHandlerServesCollector(t *testing.T) {
	c := NewCollector()
	c.SyncFinished("cascade", "error", time.Second)

	h, err := Handler(c)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `catalog_sync_runs_total{status="error",vendor="cascade"} 1`)
}
