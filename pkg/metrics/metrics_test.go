package metrics_test

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/docent-net/stale-node-controller/pkg/metrics"
)

func TestHandler_ServesBothRegistries(t *testing.T) {
	metrics.RegisterAll()
	metrics.RegisterAll() // idempotent

	metrics.UpdateNodesCount(3, 1)
	metrics.Cycles.Inc()
	metrics.NodeDeletions.WithLabelValues("deleted").Inc()
	metrics.RecordPollSuccess(time.Unix(1700000000, 0))

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `stale_node_controller_nodes_count{state="ready"} 3`)
	require.Contains(t, string(body), `stale_node_controller_nodes_count{state="not_ready"} 1`)
	require.Contains(t, string(body), "stale_node_controller_reconcile_cycles_total")
	require.Contains(t, string(body), `stale_node_controller_node_deletions_total{result="deleted"}`)

	require.Equal(t, float64(1700000000), testutil.ToFloat64(metrics.LastSuccessfulPoll))
}
