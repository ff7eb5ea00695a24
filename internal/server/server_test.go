package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"activator/internal/metrics"
	"activator/internal/models"
)

type stubActivator struct {
	mu        sync.Mutex
	statuses  map[models.TargetKey]models.Status
	logs      []string
	next      time.Time
	refreshed int
	triggered int
	updated   []models.TargetKey
}

func (s *stubActivator) AllStatuses() map[models.TargetKey]models.Status { return s.statuses }

func (s *stubActivator) CurrentDownServices() []models.TargetKey {
	var down []models.TargetKey
	for k, v := range s.statuses {
		if v == models.StatusDown {
			down = append(down, k)
		}
	}
	return down
}

func (s *stubActivator) RestartLogs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.logs...)
}

func (s *stubActivator) appendLog(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, line)
}

func (s *stubActivator) NextScheduledRestart() time.Time { return s.next }

func (s *stubActivator) RefreshServiceStatuses(context.Context) { s.refreshed++ }

func (s *stubActivator) UpdateServiceStatus(_ context.Context, app, env, server, service string) (models.Status, bool) {
	key := models.MakeKey(app, env, server, service)
	s.updated = append(s.updated, key)
	status, ok := s.statuses[key]
	return status, ok
}

func (s *stubActivator) TriggerManual() string {
	s.triggered++
	return "Manual auto-restart initiated. Check logs for details."
}

func newTestServer(t *testing.T) (*Server, *stubActivator) {
	stub := &stubActivator{
		statuses: map[models.TargetKey]models.Status{
			"billing|prod|srv-01|api":    models.StatusDown,
			"billing|prod|srv-01|worker": models.StatusUp,
		},
		next: time.Date(2024, 5, 9, 16, 30, 0, 0, time.UTC),
	}
	for i := 1; i <= 7; i++ {
		stub.logs = append(stub.logs, fmt.Sprintf("line %d", i))
	}
	return New(":0", stub, zaptest.NewLogger(t).Sugar()), stub
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestStatusEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/statuses")
	require.Equal(t, http.StatusOK, rec.Code)
	var statuses map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &statuses))
	assert.Equal(t, "down", statuses["billing|prod|srv-01|api"])

	rec = do(t, s, http.MethodGet, "/api/statuses/summary")
	require.Equal(t, http.StatusOK, rec.Code)
	var summary metrics.StatusSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Down)
}

func TestRefreshEndpoints(t *testing.T) {
	s, stub := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/statuses/refresh")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, stub.refreshed)

	rec = do(t, s, http.MethodPost, "/api/statuses/billing/prod/srv-01/worker/refresh")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"up"`)

	rec = do(t, s, http.MethodPost, "/api/statuses/billing/prod/srv-01/missing/refresh")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Len(t, stub.updated, 2)

	rec = do(t, s, http.MethodGet, "/api/statuses/refresh")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestActivatorEndpoints(t *testing.T) {
	s, stub := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/activator/down-services")
	assert.JSONEq(t, `["billing|prod|srv-01|api"]`, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/api/activator/logs")
	var logs []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &logs))
	assert.Len(t, logs, 7)

	rec = do(t, s, http.MethodGet, "/api/activator/next-schedule")
	assert.JSONEq(t, `{"next_scheduled_restart":"2024-05-09T16:30:00Z"}`, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/api/activator/status")
	var view statusView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, 1, view.DownServicesCount)
	assert.Equal(t, []string{"line 3", "line 4", "line 5", "line 6", "line 7"}, view.RecentLogs)
	assert.Equal(t, 7, view.TotalLogs)

	rec = do(t, s, http.MethodPost, "/api/activator/trigger-manual")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Manual auto-restart initiated")
	assert.Equal(t, 1, stub.triggered)
}

func TestEmptyListsEncodeAsArrays(t *testing.T) {
	stub := &stubActivator{statuses: map[models.TargetKey]models.Status{}}
	s := New(":0", stub, nil)

	assert.JSONEq(t, `[]`, do(t, s, http.MethodGet, "/api/activator/down-services").Body.String())
	assert.JSONEq(t, `[]`, do(t, s, http.MethodGet, "/api/activator/logs").Body.String())
}

func TestLogStreamPushesChanges(t *testing.T) {
	s, stub := newTestServer(t)
	s.logPush = 10 * time.Millisecond
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/activator/logs/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var payload logPayload
	require.NoError(t, conn.ReadJSON(&payload))
	assert.Len(t, payload.Logs, 7)

	stub.appendLog("line 8")
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&payload))
	assert.Equal(t, "line 8", payload.Logs[len(payload.Logs)-1])
}
