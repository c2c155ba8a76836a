package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ctisec/ctihub/internal/intel"
	"github.com/ctisec/ctihub/internal/tasks"
)

type stubTaskManager struct {
	started *tasks.Task
	gotOp   string
	known   map[string]*tasks.Task
}

func (s *stubTaskManager) Start(op string) (*tasks.Task, error) {
	if s.started == nil {
		return nil, tasks.ErrUnknownOp
	}
	s.gotOp = op
	return s.started, nil
}

func (s *stubTaskManager) Get(id string) (*tasks.Task, bool) {
	t, ok := s.known[id]
	return t, ok
}

type stubCrawler struct {
	gotSub   intel.Subscription
	gotLimit int
	report   intel.SourceReport
	err      error
}

func (s *stubCrawler) FetchSubscription(_ context.Context, sub intel.Subscription, limit int) (intel.SourceReport, error) {
	s.gotSub = sub
	s.gotLimit = limit
	return s.report, s.err
}

type stubSubStore struct {
	upserted []intel.Subscription
	deleted  []string
	enabled  map[string]bool
	setErr   error
}

func (s *stubSubStore) Upsert(_ context.Context, sub intel.Subscription) error {
	s.upserted = append(s.upserted, sub)
	return nil
}

func (s *stubSubStore) ListEnabled(context.Context, int) ([]intel.Subscription, error) {
	return nil, nil
}

func (s *stubSubStore) SetStatus(context.Context, string, string, time.Time, string) error {
	return nil
}

func (s *stubSubStore) SetEnabled(_ context.Context, owner, url string, enabled bool) error {
	if s.setErr != nil {
		return s.setErr
	}
	if s.enabled == nil {
		s.enabled = map[string]bool{}
	}
	s.enabled[owner+"|"+url] = enabled
	return nil
}

func (s *stubSubStore) Delete(_ context.Context, owner, url string) error {
	s.deleted = append(s.deleted, owner+"|"+url)
	return nil
}

func newTestServer(tm taskManager, crawler feedCrawler, subs intel.SubscriptionStore) *httptest.Server {
	return httptest.NewServer(NewServer(tm, crawler, subs, zap.NewNop()).Handler())
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestStartTaskDefaultsOp(t *testing.T) {
	tm := &stubTaskManager{started: &tasks.Task{
		ID: "abc-123", Op: tasks.OpFetchAndRecommend, Status: tasks.StatusPending,
	}}
	srv := newTestServer(tm, &stubCrawler{}, &stubSubStore{})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/v1/tasks/", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "abc-123", body["task_id"])
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, tasks.OpFetchAndRecommend, tm.gotOp)
}

func TestStartTaskNamedOp(t *testing.T) {
	tm := &stubTaskManager{started: &tasks.Task{
		ID: "def-456", Op: tasks.OpFetchAll, Status: tasks.StatusPending,
	}}
	srv := newTestServer(tm, &stubCrawler{}, &stubSubStore{})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/v1/tasks/", `{"op":"fetch_all"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, tasks.OpFetchAll, tm.gotOp)
}

func TestStartTaskUnknownOp(t *testing.T) {
	srv := newTestServer(&stubTaskManager{}, &stubCrawler{}, &stubSubStore{})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/v1/tasks/", `{"op":"reticulate_splines"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestGetTask(t *testing.T) {
	done := &tasks.Task{
		ID:     "abc-123",
		Status: tasks.StatusDone,
		Report: &intel.FetchReport{New: 2, Total: 5},
	}
	tm := &stubTaskManager{known: map[string]*tasks.Task{"abc-123": done}}
	srv := newTestServer(tm, &stubCrawler{}, &stubSubStore{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/tasks/abc-123")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "done", body["status"])

	resp, err = http.Get(srv.URL + "/v1/tasks/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSubscribe(t *testing.T) {
	subs := &stubSubStore{}
	srv := newTestServer(&stubTaskManager{}, &stubCrawler{}, subs)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/v1/feeds/", `{"owner":"alice","url":"https://blog.example.com/feed","min_role":"pro"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	require.Len(t, subs.upserted, 1)
	assert.Equal(t, intel.RolePro, subs.upserted[0].MinRole)
}

func TestSubscribeUnknownRoleDegradesToPublic(t *testing.T) {
	subs := &stubSubStore{}
	srv := newTestServer(&stubTaskManager{}, &stubCrawler{}, subs)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/v1/feeds/", `{"owner":"alice","url":"https://blog.example.com/feed","min_role":"root"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	require.Len(t, subs.upserted, 1)
	assert.Equal(t, intel.RolePublic, subs.upserted[0].MinRole)
}

func TestSubscribeRejectsBadURL(t *testing.T) {
	srv := newTestServer(&stubTaskManager{}, &stubCrawler{}, &stubSubStore{})
	defer srv.Close()

	for _, u := range []string{"ftp://blog.example.com/feed", "not a url", "/relative/feed"} {
		resp := postJSON(t, srv.URL+"/v1/feeds/", `{"owner":"alice","url":"`+u+`"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "url %q", u)
		resp.Body.Close()
	}
}

func TestSubscribeRequiresIdentity(t *testing.T) {
	srv := newTestServer(&stubTaskManager{}, &stubCrawler{}, &stubSubStore{})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/v1/feeds/", `{"owner":"alice"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestUnsubscribe(t *testing.T) {
	subs := &stubSubStore{}
	srv := newTestServer(&stubTaskManager{}, &stubCrawler{}, subs)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/v1/feeds/",
		strings.NewReader(`{"owner":"alice","url":"https://blog.example.com/feed"}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"alice|https://blog.example.com/feed"}, subs.deleted)
}

func TestSetEnabled(t *testing.T) {
	subs := &stubSubStore{}
	srv := newTestServer(&stubTaskManager{}, &stubCrawler{}, subs)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/v1/feeds/enable", `{"owner":"alice","url":"https://blog.example.com/feed","enabled":false}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, false, subs.enabled["alice|https://blog.example.com/feed"])
}

func TestSetEnabledUnknownSubscription(t *testing.T) {
	subs := &stubSubStore{setErr: errors.New("no rows")}
	srv := newTestServer(&stubTaskManager{}, &stubCrawler{}, subs)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/v1/feeds/enable", `{"owner":"ghost","url":"https://x.example.com/feed","enabled":true}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestFetchFeed(t *testing.T) {
	crawler := &stubCrawler{report: intel.SourceReport{Source: "user", Fetched: 3, Inserted: 3}}
	srv := newTestServer(&stubTaskManager{}, crawler, &stubSubStore{})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/v1/feeds/fetch", `{"owner":"alice","url":"https://blog.example.com/feed","limit":5}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, float64(3), body["inserted"])
	assert.Equal(t, "alice", crawler.gotSub.Owner)
	assert.Equal(t, 5, crawler.gotLimit)
}

func TestFetchFeedUpstreamFailure(t *testing.T) {
	crawler := &stubCrawler{err: errors.New("feed unreachable")}
	srv := newTestServer(&stubTaskManager{}, crawler, &stubSubStore{})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/v1/feeds/fetch", `{"owner":"alice","url":"https://bad.example.com/feed"}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(&stubTaskManager{}, &stubCrawler{}, &stubSubStore{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}
