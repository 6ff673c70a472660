package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawldash/internal/errs"
	idgen "github.com/JakeFAU/crawldash/internal/id/uuid"
	"github.com/JakeFAU/crawldash/internal/metrics"
	"github.com/JakeFAU/crawldash/internal/model"
	"github.com/JakeFAU/crawldash/internal/query"
	"github.com/JakeFAU/crawldash/internal/view"
)

// Controller is the dashboard surface the server drives. *view.Controller satisfies it.
type Controller interface {
	State() view.State
	Subscribe(fn view.Observer) func()
	SetSearch(term string)
	SetStatusFilter(f query.StatusFilter)
	SetSort(key query.SortKey) error
	SetPage(n int)
	Back()
	Toggle(id int64, included bool)
	SelectAllVisible(selected bool)
	AddJob(ctx context.Context, rawURL string) (model.ViewRecord, error)
	StartJob(ctx context.Context, id int64) error
	StopJob(ctx context.Context, id int64) error
	ViewDetails(ctx context.Context, id int64) error
	Bulk(ctx context.Context, action model.BulkAction) error
	Logout()
}

// RequestTimeout bounds every non-streaming request.
const RequestTimeout = 30 * time.Second

// Server wires HTTP handlers to the view controller.
type Server struct {
	router chi.Router
	ctrl   Controller
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(ctrl Controller, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{ctrl: ctrl, logger: logger}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware(idgen.New()))
	r.Use(loggingMiddleware(logger))
	r.Use(metricsMiddleware)
	r.Use(recoverMiddleware(logger))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/view/stream", s.stream)
		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(RequestTimeout))
			r.Get("/view", s.getView)
			r.Post("/view/query", s.setQuery)
			r.Post("/view/back", s.back)
			r.Post("/selection", s.toggle)
			r.Post("/selection/visible", s.selectVisible)
			r.Post("/jobs", s.addJob)
			r.Route("/jobs/{job_id}", func(r chi.Router) {
				r.Post("/start", s.startJob)
				r.Post("/stop", s.stopJob)
				r.Post("/details", s.viewDetails)
			})
			r.Post("/bulk", s.bulk)
			r.Post("/session/logout", s.logout)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getView(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.State())
}

type queryRequest struct {
	Search *string `json:"search"`
	Status *string `json:"status"`
	Sort   *string `json:"sort"`
	Page   *int    `json:"page"`
}

func (s *Server) setQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !decode(w, r, &req) {
		return
	}
	var (
		filter query.StatusFilter
		key    query.SortKey
		err    error
	)
	if req.Status != nil {
		if filter, err = query.ParseStatusFilter(*req.Status); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.Sort != nil {
		if key, err = query.ParseSortKey(*req.Sort); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.Search != nil {
		s.ctrl.SetSearch(*req.Search)
	}
	if req.Status != nil {
		s.ctrl.SetStatusFilter(filter)
	}
	if req.Sort != nil {
		if err := s.ctrl.SetSort(key); err != nil {
			s.writeActionError(w, err)
			return
		}
	}
	if req.Page != nil {
		s.ctrl.SetPage(*req.Page)
	}
	writeJSON(w, http.StatusOK, s.ctrl.State())
}

func (s *Server) back(w http.ResponseWriter, _ *http.Request) {
	s.ctrl.Back()
	writeJSON(w, http.StatusOK, s.ctrl.State())
}

type toggleRequest struct {
	ID       int64 `json:"id"`
	Selected bool  `json:"selected"`
}

func (s *Server) toggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ID <= 0 {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	s.ctrl.Toggle(req.ID, req.Selected)
	writeJSON(w, http.StatusOK, s.ctrl.State())
}

type visibleRequest struct {
	Selected bool `json:"selected"`
}

func (s *Server) selectVisible(w http.ResponseWriter, r *http.Request) {
	var req visibleRequest
	if !decode(w, r, &req) {
		return
	}
	s.ctrl.SelectAllVisible(req.Selected)
	writeJSON(w, http.StatusOK, s.ctrl.State())
}

type addRequest struct {
	URL string `json:"url"`
}

func (s *Server) addJob(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := s.ctrl.AddJob(r.Context(), req.URL)
	if err != nil {
		s.writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"job": rec})
}

func (s *Server) startJob(w http.ResponseWriter, r *http.Request) {
	s.withJobID(w, r, func(id int64) error { return s.ctrl.StartJob(r.Context(), id) })
}

func (s *Server) stopJob(w http.ResponseWriter, r *http.Request) {
	s.withJobID(w, r, func(id int64) error { return s.ctrl.StopJob(r.Context(), id) })
}

// viewDetails answers 200 for a degraded load; the state carries the summary.
func (s *Server) viewDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	if err := s.ctrl.ViewDetails(r.Context(), id); err != nil && !errs.Is(err, errs.KindTransientFetch) {
		s.writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.State())
}

type bulkRequest struct {
	Action model.BulkAction `json:"action"`
}

func (s *Server) bulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.ctrl.Bulk(r.Context(), req.Action); err != nil {
		s.writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.State())
}

func (s *Server) logout(w http.ResponseWriter, _ *http.Request) {
	s.ctrl.Logout()
	writeJSON(w, http.StatusOK, s.ctrl.State())
}

func (s *Server) withJobID(w http.ResponseWriter, r *http.Request, fn func(id int64) error) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	if err := fn(id); err != nil {
		s.writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.State())
}

func jobID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "job_id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return 0, false
	}
	return id, true
}

func (s *Server) writeActionError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case errs.Is(err, errs.KindValidation):
		status = http.StatusBadRequest
	case errs.Is(err, errs.KindAuthentication):
		status = http.StatusUnauthorized
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= http.StatusInternalServerError {
		s.logger.Warn("dashboard action failed", zap.Error(err))
	}
	writeError(w, status, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
