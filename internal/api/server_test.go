package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"thumbq/internal/domain"
	"thumbq/internal/infra/memstore"
	"thumbq/internal/infra/redisq"
	"thumbq/internal/queue"
	"thumbq/internal/scheduler"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubInbox struct{ owner string }

func (s *stubInbox) List(_ context.Context, owner string, limit int64) ([]redisq.Notification, error) {
	s.owner = owner
	out := []redisq.Notification{{ID: "n1", Kind: redisq.KindBatchCompleted, Message: "done"}}
	if limit == 0 {
		out = append(out, redisq.Notification{ID: "n2", Kind: redisq.KindThumbnailReady})
	}
	return out, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *stubInbox) {
	t.Helper()
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "thumbq_test_total"}))

	q := queue.NewMemory()
	t.Cleanup(q.Close)
	sched := scheduler.New(scheduler.Options{Queue: q, Store: memstore.New()})

	inbox := &stubInbox{}
	srv := NewServer(Deps{
		Scheduler: sched,
		Inbox:     inbox,
		Metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, inbox
}

func do(t *testing.T, method, url, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func TestSubmitAndInspect(t *testing.T) {
	ts, _ := newTestServer(t)

	code, body := do(t, http.MethodPost, ts.URL+"/batches",
		`{"owner_id":"u1","tier":"pro","image_urls":["https://img/1.png"," ","https://img/2.png"]}`)
	require.Equal(t, http.StatusAccepted, code)
	assert.EqualValues(t, domain.PriorityPro, body["priority"])
	ids := body["task_ids"].([]any)
	require.Len(t, ids, 2)
	batchID := body["batch_id"].(string)

	code, body = do(t, http.MethodGet, ts.URL+"/batches/"+batchID, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "pending", body["status"])
	assert.EqualValues(t, 2, body["total_tasks"])
	assert.EqualValues(t, 2, body["outstanding"])
	assert.EqualValues(t, 0, body["success_rate"])

	code, body = do(t, http.MethodGet, ts.URL+"/batches/"+batchID+"/tasks", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["tasks"], 2)

	code, body = do(t, http.MethodGet, ts.URL+"/tasks/"+ids[0].(string), "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "https://img/1.png", body["payload"])
	assert.Equal(t, batchID, body["batch_id"])

	code, body = do(t, http.MethodGet, ts.URL+"/queue", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["ready"])
}

func TestSubmitRejectsBadInput(t *testing.T) {
	ts, _ := newTestServer(t)

	cases := map[string]string{
		"malformed":   `{`,
		"no owner":    `{"image_urls":["a"]}`,
		"empty batch": `{"owner_id":"u1","image_urls":["  "]}`,
		"bad prio":    `{"owner_id":"u1","priority":9,"image_urls":["a"]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			code, out := do(t, http.MethodPost, ts.URL+"/batches", body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.NotEmpty(t, out["error"])
		})
	}
}

func TestNotFound(t *testing.T) {
	ts, _ := newTestServer(t)

	for _, path := range []string{"/batches/nope", "/batches/nope/tasks", "/tasks/nope"} {
		code, _ := do(t, http.MethodGet, ts.URL+path, "")
		assert.Equal(t, http.StatusNotFound, code, path)
	}
}

func TestNotifications(t *testing.T) {
	ts, inbox := newTestServer(t)

	code, body := do(t, http.MethodGet, ts.URL+"/owners/u7/notifications?limit=1", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "u7", inbox.owner)
	assert.Len(t, body["notifications"], 1)

	code, body = do(t, http.MethodGet, ts.URL+"/owners/u7/notifications", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["notifications"], 2)

	code, _ = do(t, http.MethodGet, ts.URL+"/owners/u7/notifications?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestNotificationsDisabled(t *testing.T) {
	srv := NewServer(Deps{Scheduler: scheduler.New(scheduler.Options{Queue: queue.NewMemory(), Store: memstore.New()})})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/owners/u1/notifications", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsAndCORS(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	code, _ := do(t, http.MethodOptions, ts.URL+"/batches", "")
	assert.Equal(t, http.StatusNoContent, code)
}

func TestRecoverHandler(t *testing.T) {
	h := chainMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), requestIDHandler, loggerHandler(nil), recoverHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal error")
}
