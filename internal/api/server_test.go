package api

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawldash/internal/errs"
	"github.com/JakeFAU/crawldash/internal/model"
	"github.com/JakeFAU/crawldash/internal/query"
	"github.com/JakeFAU/crawldash/internal/view"
)

func TestHealthzAndRequestID(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	NewServer(newFakeController(), zap.NewNop()).Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-1")
	NewServer(newFakeController(), nil).Handler().ServeHTTP(rec, req)
	require.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))
}

func TestGetView(t *testing.T) {
	t.Parallel()

	ctrl := newFakeController()
	ctrl.state.Username = "admin"
	rec := serve(t, ctrl, http.MethodGet, "/v1/view", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"username":"admin"`)
}

func TestSetQueryAppliesFields(t *testing.T) {
	t.Parallel()

	ctrl := newFakeController()
	rec := serve(t, ctrl, http.MethodPost, "/v1/view/query",
		`{"search":"example","status":"done","sort":"title","page":3}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{
		"search:example",
		"status:completed",
		"sort:title",
		"page:3",
	}, ctrl.callList())
}

func TestSetQueryRejectsUnknownValues(t *testing.T) {
	t.Parallel()

	ctrl := newFakeController()
	rec := serve(t, ctrl, http.MethodPost, "/v1/view/query", `{"status":"bogus","search":"x"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, ctrl, http.MethodPost, "/v1/view/query", `{"sort":"nope"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, ctrl, http.MethodPost, "/v1/view/query", `{invalid`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, ctrl.callList())
}

func TestSelection(t *testing.T) {
	t.Parallel()

	ctrl := newFakeController()
	rec := serve(t, ctrl, http.MethodPost, "/v1/selection", `{"id":5,"selected":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, ctrl, http.MethodPost, "/v1/selection", `{"selected":true}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, ctrl, http.MethodPost, "/v1/selection/visible", `{"selected":false}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, []string{"toggle:5:true", "visible:false"}, ctrl.callList())
}

func TestAddJob(t *testing.T) {
	t.Parallel()

	ctrl := newFakeController()
	ctrl.added = model.ViewRecord{ID: 42, URL: "https://example.com", Status: model.StatusQueued}
	rec := serve(t, ctrl, http.MethodPost, "/v1/jobs", `{"url":"https://example.com"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), `"id":42`)
	require.Equal(t, []string{"add:https://example.com"}, ctrl.callList())
}

func TestActionErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", errs.Validation("add job", "url is required"), http.StatusBadRequest},
		{"auth", &errs.Error{Kind: errs.KindAuthentication, Op: "start job", Err: errors.New("authentication required")}, http.StatusUnauthorized},
		{"mutation", errs.E(errs.KindMutation, "start job", errors.New("job is running")), http.StatusBadGateway},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := newFakeController()
			ctrl.actionErr = tc.err
			rec := serve(t, ctrl, http.MethodPost, "/v1/jobs/7/start", "")
			require.Equal(t, tc.want, rec.Code)
			require.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestJobRoutesValidateID(t *testing.T) {
	t.Parallel()

	ctrl := newFakeController()
	rec := serve(t, ctrl, http.MethodPost, "/v1/jobs/abc/stop", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, ctrl, http.MethodPost, "/v1/jobs/3/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"stop:3"}, ctrl.callList())
}

func TestViewDetailsDegradedIsOK(t *testing.T) {
	t.Parallel()

	ctrl := newFakeController()
	ctrl.detailErr = errs.E(errs.KindTransientFetch, "get job", errors.New("HTTP 500"))
	rec := serve(t, ctrl, http.MethodPost, "/v1/jobs/9/details", "")
	require.Equal(t, http.StatusOK, rec.Code)

	ctrl.detailErr = errs.Validation("view details", "job 9 is not completed")
	rec = serve(t, ctrl, http.MethodPost, "/v1/jobs/9/details", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBulkAndLogout(t *testing.T) {
	t.Parallel()

	ctrl := newFakeController()
	rec := serve(t, ctrl, http.MethodPost, "/v1/bulk", `{"action":"rerun"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, ctrl, http.MethodPost, "/v1/view/back", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, ctrl, http.MethodPost, "/v1/session/logout", "")
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, []string{"bulk:rerun", "back", "logout"}, ctrl.callList())
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	h := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStreamPushesSnapshots(t *testing.T) {
	t.Parallel()

	ctrl := newFakeController()
	ctrl.state.Revision = 1
	srv := httptest.NewServer(NewServer(ctrl, zap.NewNop()).Handler())
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/view/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var first view.State
	require.NoError(t, conn.ReadJSON(&first))
	require.Equal(t, uint64(1), first.Revision)

	require.Eventually(t, func() bool { return ctrl.subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	ctrl.push(view.State{Revision: 2, Username: "admin"})

	var next view.State
	require.NoError(t, conn.ReadJSON(&next))
	require.Equal(t, uint64(2), next.Revision)
	require.Equal(t, "admin", next.Username)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return ctrl.subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rw.Hijack()
	require.EqualError(t, err, "hijacker not supported")

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	require.NoError(t, err)
	require.NotNil(t, buf)
	require.Equal(t, http.StatusSwitchingProtocols, rw.status)
	require.NoError(t, conn.Close())
	require.NoError(t, h.CloseClient())
}

// --- helpers/fakes ---

func serve(t *testing.T, ctrl *fakeController, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	}
	rec := httptest.NewRecorder()
	NewServer(ctrl, zap.NewNop()).Handler().ServeHTTP(rec, req)
	return rec
}

type fakeController struct {
	mu        sync.Mutex
	state     view.State
	calls     []string
	observers map[int]view.Observer
	nextObs   int
	added     model.ViewRecord
	actionErr error
	detailErr error
}

func newFakeController() *fakeController {
	return &fakeController{observers: make(map[int]view.Observer)}
}

func (f *fakeController) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeController) callList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeController) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.observers)
}

func (f *fakeController) push(st view.State) {
	f.mu.Lock()
	obs := make([]view.Observer, 0, len(f.observers))
	for _, o := range f.observers {
		obs = append(obs, o)
	}
	f.mu.Unlock()
	for _, o := range obs {
		o(st)
	}
}

func (f *fakeController) State() view.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeController) Subscribe(fn view.Observer) func() {
	f.mu.Lock()
	id := f.nextObs
	f.nextObs++
	f.observers[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.observers, id)
		f.mu.Unlock()
	}
}

func (f *fakeController) SetSearch(term string) { f.record("search:" + term) }

func (f *fakeController) SetStatusFilter(s query.StatusFilter) { f.record("status:" + string(s)) }

func (f *fakeController) SetSort(key query.SortKey) error {
	f.record("sort:" + string(key))
	return nil
}

func (f *fakeController) SetPage(n int) { f.record(fmt.Sprintf("page:%d", n)) }

func (f *fakeController) Back() { f.record("back") }

func (f *fakeController) Toggle(id int64, included bool) {
	f.record(fmt.Sprintf("toggle:%d:%t", id, included))
}

func (f *fakeController) SelectAllVisible(selected bool) {
	f.record(fmt.Sprintf("visible:%t", selected))
}

func (f *fakeController) AddJob(_ context.Context, rawURL string) (model.ViewRecord, error) {
	f.record("add:" + rawURL)
	return f.added, f.actionErr
}

func (f *fakeController) StartJob(_ context.Context, id int64) error {
	f.record(fmt.Sprintf("start:%d", id))
	return f.actionErr
}

func (f *fakeController) StopJob(_ context.Context, id int64) error {
	f.record(fmt.Sprintf("stop:%d", id))
	return f.actionErr
}

func (f *fakeController) ViewDetails(_ context.Context, id int64) error {
	f.record(fmt.Sprintf("details:%d", id))
	return f.detailErr
}

func (f *fakeController) Bulk(_ context.Context, action model.BulkAction) error {
	f.record("bulk:" + string(action))
	return f.actionErr
}

func (f *fakeController) Logout() { f.record("logout") }

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}

func TestStreamBacklogKeepsNewestSnapshot(t *testing.T) {
	t.Parallel()

	l := newLatest()
	for rev := uint64(1); rev <= 40; rev++ {
		l.set(view.State{Revision: rev})
	}
	l.set(view.State{Revision: 12})

	select {
	case <-l.ready:
	default:
		t.Fatal("expected a pending snapshot")
	}
	require.Equal(t, uint64(40), l.take().Revision)

	select {
	case <-l.ready:
		t.Fatal("no snapshot should be pending")
	default:
	}

	l.set(view.State{Revision: 41})
	<-l.ready
	require.Equal(t, uint64(41), l.take().Revision)
}
