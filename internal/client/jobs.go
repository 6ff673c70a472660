package client

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/JakeFAU/crawldash/internal/errs"
	"github.com/JakeFAU/crawldash/internal/model"
	"github.com/JakeFAU/crawldash/internal/query"
	"github.com/JakeFAU/crawldash/internal/session"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type addRequest struct {
	URL string `json:"url"`
}

type bulkRequest struct {
	IDs    []int64          `json:"url_ids"`
	Action model.BulkAction `json:"action"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// Login exchanges a username and password for a credential. It does not
// touch the session; the caller decides whether to sign in with the result.
func (c *Client) Login(ctx context.Context, username, password string) (session.Credential, error) {
	const op = "login"
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return session.Credential{}, errs.Validation(op, "username and password are required")
	}
	var cred session.Credential
	err := c.do(ctx, request{
		op:     op,
		kind:   errs.KindMutation,
		method: http.MethodPost,
		path:   "/login",
		body:   loginRequest{Username: username, Password: password},
	}, &cred)
	if err != nil {
		return session.Credential{}, err
	}
	if cred.Token == "" {
		return session.Credential{}, errs.E(errs.KindAuthentication, op, errs.ErrUnauthorized)
	}
	if cred.Username == "" {
		cred.Username = username
	}
	return cred, nil
}

// AddJob submits a URL for analysis and returns the created record.
func (c *Client) AddJob(ctx context.Context, rawURL string) (model.JobRecord, error) {
	var rec model.JobRecord
	err := c.do(ctx, request{
		op:     "add_job",
		kind:   errs.KindMutation,
		method: http.MethodPost,
		path:   "/api/urls",
		body:   addRequest{URL: rawURL},
		auth:   true,
	}, &rec)
	return rec, err
}

// ListJobs fetches one page of jobs for p.
func (c *Client) ListJobs(ctx context.Context, p query.Params) (model.ListResponse, error) {
	var resp model.ListResponse
	err := c.do(ctx, request{
		op:     "list_jobs",
		kind:   errs.KindTransientFetch,
		method: http.MethodGet,
		path:   "/api/urls",
		query:  p.Values(),
		auth:   true,
	}, &resp)
	return resp, err
}

// GetJob fetches one job with its broken links.
func (c *Client) GetJob(ctx context.Context, id int64) (model.DetailResponse, error) {
	var resp model.DetailResponse
	err := c.do(ctx, request{
		op:     "get_job",
		kind:   errs.KindTransientFetch,
		method: http.MethodGet,
		path:   "/api/urls/" + strconv.FormatInt(id, 10),
		auth:   true,
	}, &resp)
	return resp, err
}

// StartJob asks the backend to begin processing id.
func (c *Client) StartJob(ctx context.Context, id int64) error {
	return c.do(ctx, request{
		op:     "start_job",
		kind:   errs.KindMutation,
		method: http.MethodPost,
		path:   "/api/urls/" + strconv.FormatInt(id, 10) + "/start",
		auth:   true,
	}, nil)
}

// StopJob asks the backend to halt processing id.
func (c *Client) StopJob(ctx context.Context, id int64) error {
	return c.do(ctx, request{
		op:     "stop_job",
		kind:   errs.KindMutation,
		method: http.MethodPost,
		path:   "/api/urls/" + strconv.FormatInt(id, 10) + "/stop",
		auth:   true,
	}, nil)
}

// Bulk applies action to every id in one call.
func (c *Client) Bulk(ctx context.Context, ids []int64, action model.BulkAction) error {
	const op = "bulk"
	if !action.Valid() {
		return errs.Validation(op, "unknown bulk action "+strconv.Quote(string(action)))
	}
	if len(ids) == 0 {
		return errs.Validation(op, "no jobs selected")
	}
	return c.do(ctx, request{
		op:     op,
		kind:   errs.KindMutation,
		method: http.MethodPost,
		path:   "/api/urls/bulk",
		body:   bulkRequest{IDs: ids, Action: action},
		auth:   true,
	}, nil)
}

// Health reports the backend's self-declared status. It needs no credential.
func (c *Client) Health(ctx context.Context) (string, error) {
	var resp healthResponse
	err := c.do(ctx, request{
		op:     "health",
		kind:   errs.KindTransientFetch,
		method: http.MethodGet,
		path:   "/health",
	}, &resp)
	return resp.Status, err
}
