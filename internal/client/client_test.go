package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	goUUID "github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawldash/internal/errs"
	"github.com/JakeFAU/crawldash/internal/model"
	"github.com/JakeFAU/crawldash/internal/query"
	"github.com/JakeFAU/crawldash/internal/session"
)

func newSignedIn(t *testing.T) *session.Session {
	t.Helper()
	s := session.New(nil, nil)
	require.NoError(t, s.SignIn(session.Credential{Token: "tok", Username: "admin"}))
	return s
}

func newTestClient(t *testing.T, router http.Handler, creds Credentials) *Client {
	t.Helper()
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL, Timeout: 5 * time.Second}, creds, nil)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	s := session.New(nil, nil)
	_, err := New(Config{}, s, nil)
	require.Error(t, err)
	_, err = New(Config{BaseURL: "ftp://example.com"}, s, nil)
	require.Error(t, err)
	_, err = New(Config{BaseURL: "http://example.com"}, nil, nil)
	require.Error(t, err)
}

func TestListJobsSendsQueryAndHeaders(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Get("/api/urls", func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
		_, err := goUUID.Parse(req.Header.Get(HeaderRequestID))
		require.NoError(t, err)

		q := req.URL.Query()
		require.Equal(t, "2", q.Get("page"))
		require.Equal(t, "10", q.Get("page_size"))
		require.Equal(t, "created_at", q.Get("sort"))
		require.Equal(t, "desc", q.Get("order"))
		require.Equal(t, "example", q.Get("search"))
		require.Equal(t, "done", q.Get("filter"))

		writeJSON(w, http.StatusOK, model.ListResponse{
			Data:       []model.JobRecord{{ID: 3, URL: "https://example.com", Status: model.WireDone}},
			Total:      11,
			Page:       2,
			PageSize:   10,
			TotalPages: 2,
		})
	})
	c := newTestClient(t, r, newSignedIn(t))

	resp, err := c.ListJobs(context.Background(), query.Params{
		Page:      2,
		PageSize:  10,
		Sort:      query.SortCreatedAt,
		Direction: query.Descending,
		Search:    "example",
		Filter:    query.StatusFilter(model.StatusCompleted),
	})
	require.NoError(t, err)
	require.Len(t, resp.Data, 1)
	require.Equal(t, int64(11), resp.Total)
	require.Equal(t, model.WireDone, resp.Data[0].Status)
}

func TestUnauthorizedInvalidatesSession(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Get("/api/urls", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "token expired"})
	})
	s := newSignedIn(t)
	var transitions []bool
	s.Subscribe(func(auth bool) { transitions = append(transitions, auth) })
	c := newTestClient(t, r, s)

	_, err := c.ListJobs(context.Background(), query.New(0).Snapshot())
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.KindAuthentication))
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	require.Equal(t, http.StatusUnauthorized, errs.StatusCode(err))
	require.Contains(t, err.Error(), "token expired")
	require.False(t, s.Authenticated())
	require.Equal(t, []bool{false}, transitions)
}

func TestMissingTokenFailsWithoutNetworkCall(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	r := chi.NewRouter()
	r.Post("/api/urls/{id}/start", func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
	})
	c := newTestClient(t, r, session.New(nil, nil))

	err := c.StartJob(context.Background(), 1)
	require.True(t, errs.Is(err, errs.KindAuthentication))
	require.Zero(t, hits.Load())
}

func TestMutationErrorSurfacesServerMessage(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Post("/api/urls/{id}/stop", func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, "42", chi.URLParam(req, "id"))
		writeJSON(w, http.StatusConflict, map[string]string{"error": "job is not running"})
	})
	c := newTestClient(t, r, newSignedIn(t))

	err := c.StopJob(context.Background(), 42)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.KindMutation))
	require.Equal(t, http.StatusConflict, errs.StatusCode(err))
	require.Contains(t, err.Error(), "job is not running")
}

func TestFetchErrorWithoutBodyUsesStatus(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Get("/api/urls/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	s := newSignedIn(t)
	c := newTestClient(t, r, s)

	_, err := c.GetJob(context.Background(), 9)
	require.True(t, errs.Is(err, errs.KindTransientFetch))
	require.Contains(t, err.Error(), "HTTP 500")
	require.True(t, s.Authenticated())
}

func TestGetJobDecodesDetail(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Get("/api/urls/{id}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, model.DetailResponse{
			URL:         model.JobRecord{ID: 9, Status: model.WireDone, InaccessibleLinks: 1},
			BrokenLinks: []model.BrokenLink{{ID: 1, LinkURL: "https://example.com/gone", StatusCode: 404}},
		})
	})
	c := newTestClient(t, r, newSignedIn(t))

	resp, err := c.GetJob(context.Background(), 9)
	require.NoError(t, err)
	require.Equal(t, int64(9), resp.URL.ID)
	require.Len(t, resp.BrokenLinks, 1)
	require.Equal(t, 404, resp.BrokenLinks[0].StatusCode)
}

func TestBulkEncodesBody(t *testing.T) {
	t.Parallel()

	var got bulkRequest
	r := chi.NewRouter()
	r.Post("/api/urls/bulk", func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, "application/json", req.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(req.Body).Decode(&got))
		writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
	})
	c := newTestClient(t, r, newSignedIn(t))

	require.NoError(t, c.Bulk(context.Background(), []int64{7, 8}, model.BulkRerun))
	require.Equal(t, []int64{7, 8}, got.IDs)
	require.Equal(t, model.BulkRerun, got.Action)

	err := c.Bulk(context.Background(), []int64{7}, model.BulkAction("archive"))
	require.True(t, errs.Is(err, errs.KindValidation))
	err = c.Bulk(context.Background(), nil, model.BulkDelete)
	require.True(t, errs.Is(err, errs.KindValidation))
}

func TestLoginAndAddJob(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Post("/login", func(w http.ResponseWriter, req *http.Request) {
		require.Empty(t, req.Header.Get("Authorization"))
		var body loginRequest
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		if body.Password != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"token": "issued", "username": body.Username})
	})
	r.Post("/api/urls", func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, "Bearer issued", req.Header.Get("Authorization"))
		var body addRequest
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		writeJSON(w, http.StatusCreated, model.JobRecord{ID: 42, URL: body.URL, Status: model.WireQueued})
	})
	s := session.New(nil, nil)
	c := newTestClient(t, r, s)

	_, err := c.Login(context.Background(), "admin", "wrong")
	require.True(t, errs.Is(err, errs.KindAuthentication))
	require.Contains(t, err.Error(), "invalid credentials")

	_, err = c.Login(context.Background(), " ", "secret")
	require.True(t, errs.Is(err, errs.KindValidation))

	cred, err := c.Login(context.Background(), "admin", "secret")
	require.NoError(t, err)
	require.Equal(t, session.Credential{Token: "issued", Username: "admin"}, cred)
	require.False(t, s.Authenticated())
	require.NoError(t, s.SignIn(cred))

	rec, err := c.AddJob(context.Background(), "https://example.com")
	require.NoError(t, err)
	require.Equal(t, int64(42), rec.ID)
}

func TestHealthNeedsNoCredential(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	c := newTestClient(t, r, session.New(nil, nil))

	status, err := c.Health(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ok", status)
}

func TestLimiterHonorsContext(t *testing.T) {
	t.Parallel()

	require.Nil(t, newLimiter(0, 5))
	require.NoError(t, (*limiter)(nil).wait(context.Background()))

	l := newLimiter(0.001, 1)
	require.NoError(t, l.wait(context.Background()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, l.wait(ctx))
}
