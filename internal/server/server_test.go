package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alihub/ali-intent/internal/config"
	"github.com/alihub/ali-intent/internal/engine"
	"github.com/alihub/ali-intent/internal/task"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	eng := engine.New(cfg, nil, slog.Default())
	srv := New(cfg, eng, slog.Default())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	health := decode[HealthResponse](t, resp)
	assert.Equal(t, "ok", health.Status)
	assert.False(t, health.Running, "scheduler not started in tests")
}

func TestProcessInputEndpoint(t *testing.T) {
	_, ts := newTestServer(t)
	resp := postJSON(t, ts.URL+"/api/input", InputRequest{Text: "remind me to call mom at 5pm"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	r := decode[engine.Response](t, resp)
	assert.Equal(t, "reminder", r.Intent)
	require.Len(t, r.Actions, 1)
	assert.Equal(t, "reminder_created", r.Actions[0].Type)
}

func TestProcessInputRequiresText(t *testing.T) {
	_, ts := newTestServer(t)
	resp := postJSON(t, ts.URL+"/api/input", InputRequest{Text: "   "})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTaskLifecycle(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/tasks", task.Task{Type: "message", Content: "hello"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[task.Task](t, resp)
	require.NotEmpty(t, created.ID)

	resp, err := http.Get(ts.URL + "/api/tasks")
	require.NoError(t, err)
	list := decode[TasksResponse](t, resp)
	require.Len(t, list.Tasks, 1)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/tasks/"+created.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Deleting the same ID again reports not found.
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAddTaskValidation(t *testing.T) {
	_, ts := newTestServer(t)
	resp := postJSON(t, ts.URL+"/api/tasks", task.Task{Content: "typeless"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	e := decode[ErrorResponse](t, resp)
	assert.True(t, strings.Contains(e.Error, "type"))
}

func TestAddRecurringEndpoint(t *testing.T) {
	_, ts := newTestServer(t)
	resp := postJSON(t, ts.URL+"/api/tasks/recurring", task.RecurringTask{
		Type:       "system_task",
		Recurrence: task.Recurrence{IntervalHours: 24},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[task.RecurringTask](t, resp)
	assert.True(t, created.Active)

	resp = postJSON(t, ts.URL+"/api/tasks/recurring", task.RecurringTask{Type: "system_task"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPredictAndSuggestions(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/predict?hour=12")
	require.NoError(t, err)
	p := decode[engine.Prediction](t, resp)
	assert.Equal(t, "no_specific_prediction", p.Action)

	resp, err = http.Get(ts.URL + "/api/suggestions?hour=7")
	require.NoError(t, err)
	var body struct {
		Suggestions []engine.Suggestion `json:"suggestions"`
	}
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	// At least the two morning suggestions; weekends add a leisure item.
	require.GreaterOrEqual(t, len(body.Suggestions), 2)
	assert.Equal(t, "Check today's weather", body.Suggestions[0].Task)
}

func TestWebsocketReceivesEvents(t *testing.T) {
	srv, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the handler time to register the connection.
	time.Sleep(100 * time.Millisecond)
	srv.hub.Broadcast("task_executed", map[string]any{"task_id": "t1"})

	var event Event
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "task_executed", event.EventType)
	assert.Equal(t, "t1", event.Payload["task_id"])
}

func TestDeactivateRecurringEndpoint(t *testing.T) {
	_, ts := newTestServer(t)
	resp := postJSON(t, ts.URL+"/api/tasks/recurring", task.RecurringTask{
		Type:       "reminder",
		Recurrence: task.Recurrence{IntervalHours: 1},
	})
	created := decode[task.RecurringTask](t, resp)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/tasks/recurring/"+created.ID, nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/tasks/recurring")
	require.NoError(t, err)
	list := decode[RecurringResponse](t, resp)
	require.Len(t, list.Tasks, 1, "deactivation keeps the record")
	assert.False(t, list.Tasks[0].Active)
}
