package webapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spboyer/promptbench/internal/catalog"
	"github.com/spboyer/promptbench/internal/execution"
	"github.com/spboyer/promptbench/internal/graders"
	"github.com/spboyer/promptbench/internal/models"
	"github.com/spboyer/promptbench/internal/orchestration"
	"github.com/spboyer/promptbench/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type testEnv struct {
	handler http.Handler
	orch    *orchestration.Orchestrator
	store   *store.MemoryStore
	invoker *execution.MockInvoker
}

func newTestEnv(t *testing.T, lister execution.ModelLister) *testEnv {
	t.Helper()

	runStore := store.NewMemoryStore()
	invoker := execution.NewMockInvoker()
	if lister == nil {
		lister = invoker
	}

	var counter atomic.Int64
	orch := orchestration.New(runStore, invoker,
		orchestration.WithIDGenerator(func() string { return fmt.Sprintf("run-%d", counter.Add(1)) }),
		orchestration.WithDoneGrace(10*time.Millisecond),
	)
	t.Cleanup(func() {
		require.NoError(t, orch.Shutdown(context.Background()))
	})

	mux := http.NewServeMux()
	RegisterRoutes(mux, Services{
		Runs:      orch,
		Validator: graders.NewValidator(runStore, invoker),
		Catalog:   catalog.New(lister),
	})

	return &testEnv{handler: mux, orch: orch, store: runStore, invoker: invoker}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, Version, resp.Version)
}

func TestCreateRun(t *testing.T) {
	for _, path := range []string{"/api/runs", "/api/run"} {
		t.Run(path, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.invoker.Script("a", execution.MockResponse{Output: "42"})

			rec := env.do(t, http.MethodPost, path, `{
				"promptId": "p1",
				"variables": {"x": "6*7"},
				"models": [{"model": "a"}, {"model": "b", "temperature": 0.1}],
				"userPrompt": "What is {{x}}?"
			}`)
			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

			var run models.Run
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
			assert.Equal(t, "run-1", run.ID)
			assert.Equal(t, "p1", *run.PromptID)
			assert.Equal(t, 1, run.PromptVersion)
			require.Len(t, run.Results, 2)
			for _, res := range run.Results {
				assert.Equal(t, models.StatusPending, res.Status)
			}

			require.NoError(t, env.orch.Wait(context.Background(), run.ID))

			rec = env.do(t, http.MethodGet, path+"/"+run.ID, "")
			require.Equal(t, http.StatusOK, rec.Code)
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
			assert.Equal(t, "42", run.Results[0].Output)
			assert.Equal(t, "Mock response for: What is 6*7?", run.Results[1].Output)
		})
	}
}

func TestCreateRun_BadRequests(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/runs", `{"models": [], "userPrompt": "x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Error, "models")

	rec = env.do(t, http.MethodPost, "/api/runs", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, http.StatusBadRequest, decodeError(t, rec).Code)

	runs, err := env.store.List(context.Background(), store.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRunDetail_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/runs/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ErrorResponse{Error: "run not found", Code: http.StatusNotFound}, decodeError(t, rec))
}

func TestListRuns(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, promptID := range []string{"p1", "p2", "p1"} {
		rec := env.do(t, http.MethodPost, "/api/runs", fmt.Sprintf(`{"promptId": %q, "models": [{"model": "m"}], "userPrompt": "x"}`, promptID))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	var runs []models.Run

	rec := env.do(t, http.MethodGet, "/api/runs?promptId=p1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Len(t, runs, 2)

	rec = env.do(t, http.MethodGet, "/api/runs?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Len(t, runs, 1)

	rec = env.do(t, http.MethodGet, "/api/runs?promptId=none", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/runs?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidate(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/runs", `{"models": [{"model": "m"}], "userPrompt": "x"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NoError(t, env.orch.Wait(context.Background(), "run-1"))

	rec = env.do(t, http.MethodPost, "/api/validate", `{"runId": "run-1", "validatorModel": "judge"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp graders.ValidateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.True(t, resp.Results[0].Passed)
	assert.Equal(t, "m", resp.Results[0].TargetModel)

	rec = env.do(t, http.MethodPost, "/api/validate", `{"runId": "missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/validate", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestModels(t *testing.T) {
	ctrl := gomock.NewController(t)
	lister := execution.NewMockModelLister(ctrl)
	env := newTestEnv(t, lister)

	gomock.InOrder(
		lister.EXPECT().ListModels(gomock.Any()).Return([]models.ModelInfo{{ID: "openai/gpt-4o"}}, nil),
		lister.EXPECT().ListModels(gomock.Any()).Return(nil, errors.New("upstream down")),
	)

	rec := env.do(t, http.MethodGet, "/api/models", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id": "openai/gpt-4o"}]`, rec.Body.String())

	// served from cache
	rec = env.do(t, http.MethodGet, "/api/models", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/models?refresh=true", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeError(t, rec).Error, "upstream down")
}

func TestCORSMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name       string
		allowed    []string
		method     string
		origin     string
		wantHeader string
		wantStatus int
	}{
		{name: "no config", method: http.MethodGet, origin: "http://a.test", wantStatus: http.StatusTeapot},
		{name: "allowed", allowed: []string{"http://a.test"}, method: http.MethodPost, origin: "http://a.test", wantHeader: "http://a.test", wantStatus: http.StatusTeapot},
		{name: "not allowed", allowed: []string{"http://a.test"}, method: http.MethodGet, origin: "http://b.test", wantStatus: http.StatusTeapot},
		{name: "wildcard", allowed: []string{"*"}, method: http.MethodGet, origin: "http://b.test", wantHeader: "http://b.test", wantStatus: http.StatusTeapot},
		{name: "preflight", allowed: []string{"http://a.test"}, method: http.MethodOptions, origin: "http://a.test", wantHeader: "http://a.test", wantStatus: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/runs", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()

			CORSMiddleware(next, tt.allowed...).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantHeader, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestRunStream_SSE(t *testing.T) {
	env := newTestEnv(t, nil)
	env.invoker.
		Script("a", execution.MockResponse{Output: "42", Delay: 20 * time.Millisecond}).
		Script("b", execution.MockResponse{Error: "rate limited", Delay: 20 * time.Millisecond})

	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	rec := env.do(t, http.MethodPost, "/api/runs", `{"models": [{"model": "a"}, {"model": "b"}], "userPrompt": "x"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	resp, err := http.Get(srv.URL + "/api/runs/run-1/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var events []models.Event
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var evt models.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt))
		events = append(events, evt)
	}

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.True(t, last.Done)

	terminal := map[int]models.Event{}
	for _, evt := range events {
		if evt.Index != nil && evt.Status.Terminal() {
			terminal[*evt.Index] = evt
		}
	}
	assert.Equal(t, "42", terminal[0].Output)
	assert.Equal(t, "rate limited", terminal[1].Error)
}

func TestRunStream_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/runs/missing/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunSocket(t *testing.T) {
	env := newTestEnv(t, nil)
	env.invoker.Script("a", execution.MockResponse{Output: "hello", Delay: 20 * time.Millisecond})

	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	rec := env.do(t, http.MethodPost, "/api/runs", `{"models": [{"model": "a"}], "userPrompt": "x"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/runs/run-1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var events []models.Event
	for {
		var evt models.Event
		if err := conn.ReadJSON(&evt); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
		events = append(events, evt)
	}

	require.NotEmpty(t, events)
	assert.True(t, events[len(events)-1].Done)
	assert.Equal(t, 1, countDone(events))
}

func TestRunSocket_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/runs/missing/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func countDone(events []models.Event) int {
	n := 0
	for _, evt := range events {
		if evt.Done {
			n++
		}
	}
	return n
}
