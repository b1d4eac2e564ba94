package health_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/docent-net/stale-node-controller/pkg/health"
)

type fakeStatus struct {
	last time.Time
	err  error
}

func (f *fakeStatus) LastSuccessfulPoll() time.Time { return f.last }
func (f *fakeStatus) LastPollError() error          { return f.err }

func get(t *testing.T, h http.Handler, path string) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Code
}

func TestProbes(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	clk := testingclock.NewFakeClock(now)
	status := &fakeStatus{}
	mux := health.NewMux(status, time.Minute, clk)

	require.Equal(t, http.StatusOK, get(t, mux, "/healthz"))
	require.Equal(t, http.StatusOK, get(t, mux, "/livez"))
	require.Equal(t, http.StatusInternalServerError, get(t, mux, "/readyz"), "not ready before the first poll")

	status.last = now.Add(-10 * time.Second)
	require.Equal(t, http.StatusOK, get(t, mux, "/readyz"))

	status.err = errors.New("Unauthorized")
	clk.Step(2 * time.Minute)
	require.Equal(t, http.StatusInternalServerError, get(t, mux, "/readyz"))
	require.Equal(t, http.StatusOK, get(t, mux, "/livez"), "stale polls never fail liveness")
}

type electedStatus struct {
	fakeStatus
	leader bool
}

func (e *electedStatus) IsLeader() bool { return e.leader }

func TestReadyz_StandbyReplicaIsReady(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	status := &electedStatus{}
	mux := health.NewMux(status, time.Minute, clk)

	require.Equal(t, http.StatusOK, get(t, mux, "/readyz"), "standby replicas do not poll")

	status.leader = true
	require.Equal(t, http.StatusInternalServerError, get(t, mux, "/readyz"), "a new leader must poll first")
}
