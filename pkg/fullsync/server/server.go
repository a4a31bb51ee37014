/* Copyright 2025 Fullsync Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package server provides the admin HTTP interface of the full sync
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/fullsync/fullsync/pkg/clock"
	"github.com/fullsync/fullsync/pkg/fullsync/log"
	"github.com/fullsync/fullsync/pkg/fullsync/status"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
)

var (
	// ErrEmptySyncer is an error for a missing syncer
	ErrEmptySyncer = errors.New("No syncer was provided")
	// ErrEmptyClock is an error for a missing clock
	ErrEmptyClock = errors.New("No clock was provided")

	errBadRequest = errors.New("bad request")
)

// Syncer drives full sync runs
type Syncer interface {
	Start(ctx context.Context, cfg status.Config, startContext map[string]interface{}) error
	Continue(ctx context.Context) (bool, error)
	Reset(ctx context.Context) error
	Status(ctx context.Context) (status.Status, error)
}

// Params are the dependencies of the admin server
type Params struct {
	Syncer  Syncer
	Clock   clock.Clock
	Metrics http.Handler
	// DisableRateLimit turns off the per-IP rate limit
	DisableRateLimit bool
}

func (p Params) validate() error {
	if p.Syncer == nil {
		return ErrEmptySyncer
	}
	if p.Clock == nil {
		return ErrEmptyClock
	}

	return nil
}

// Route represents a single route
type Route struct {
	Method    string
	Pattern   string
	Handler   http.HandlerFunc
	RateLimit bool
}

// Handlers serves the admin endpoints
type Handlers struct {
	syncer Syncer
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// GetStatus handles GET /status
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.syncer.Status(r.Context())
	if err != nil {
		handleJSONError(w, err, "getting status")
		return
	}

	respondJSON(w, http.StatusOK, PresentStatus(st))
}

// StartForm is the payload of a start request
type StartForm struct {
	Modules []string `schema:"modules" json:"modules"`
	Source  string   `schema:"source" json:"source"`
}

// Start handles POST /start
func (h *Handlers) Start(w http.ResponseWriter, r *http.Request) {
	var form StartForm
	if err := parseRequestData(r, &form); err != nil {
		handleJSONError(w, errors.Wrap(errBadRequest, err.Error()), "parsing payload")
		return
	}

	cfg, err := status.ParseConfig(form.Modules)
	if err != nil {
		handleJSONError(w, errors.Wrap(errBadRequest, err.Error()), "parsing modules")
		return
	}

	startContext := map[string]interface{}{"source": "admin"}
	if form.Source != "" {
		startContext["source"] = form.Source
	}

	if err := h.syncer.Start(r.Context(), cfg, startContext); err != nil {
		handleJSONError(w, err, "starting full sync")
		return
	}

	h.respondStatus(w, r, http.StatusCreated, nil)
}

// ContinueResponse is the response of a continue request
type ContinueResponse struct {
	Ran    bool           `json:"ran"`
	Status StatusResponse `json:"status"`
}

// Continue handles POST /continue
func (h *Handlers) Continue(w http.ResponseWriter, r *http.Request) {
	ran, err := h.syncer.Continue(r.Context())
	if err != nil {
		handleJSONError(w, err, "continuing full sync")
		return
	}

	h.respondStatus(w, r, http.StatusOK, func(s StatusResponse) interface{} {
		return ContinueResponse{Ran: ran, Status: s}
	})
}

// Reset handles POST /reset
func (h *Handlers) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.syncer.Reset(r.Context()); err != nil {
		handleJSONError(w, err, "resetting full sync")
		return
	}

	h.respondStatus(w, r, http.StatusOK, nil)
}

func (h *Handlers) respondStatus(w http.ResponseWriter, r *http.Request, statusCode int, wrap func(StatusResponse) interface{}) {
	st, err := h.syncer.Status(r.Context())
	if err != nil {
		handleJSONError(w, err, "getting status")
		return
	}

	var payload interface{} = PresentStatus(st)
	if wrap != nil {
		payload = wrap(PresentStatus(st))
	}

	respondJSON(w, statusCode, payload)
}

// NewRoutes returns the admin routes
func NewRoutes(h *Handlers, metrics http.Handler) []Route {
	ret := []Route{
		{"GET", "/health", h.Health, false},
		{"GET", "/status", h.GetStatus, true},
		{"POST", "/start", h.Start, true},
		{"POST", "/continue", h.Continue, true},
		{"POST", "/reset", h.Reset, true},
	}

	if metrics != nil {
		ret = append(ret, Route{"GET", "/metrics", metrics.ServeHTTP, false})
	}

	return ret
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// logging logs every request with its outcome and duration
func logging(c clock.Clock, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := c.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rec, r)

		log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.statusCode,
			"duration": clock.Since(c, start),
		}).Debug("Request handled.")
	})
}

func registerRoutes(router *mux.Router, limiter *RateLimiter, routes []Route) {
	for _, route := range routes {
		var handler http.Handler = route.Handler
		if route.RateLimit && limiter != nil {
			handler = limiter.Limit(handler)
		}

		router.
			Handle(route.Pattern, handler).
			Methods(route.Method)
	}
}

// NewRouter creates and returns a new router
func NewRouter(p Params) (http.Handler, error) {
	if err := p.validate(); err != nil {
		return nil, errors.Wrap(err, "validating the server parameters")
	}

	var limiter *RateLimiter
	if !p.DisableRateLimit {
		limiter = NewRateLimiter(p.Clock)
	}

	router := mux.NewRouter().StrictSlash(true)
	registerRoutes(router, limiter, NewRoutes(&Handlers{syncer: p.Syncer}, p.Metrics))

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	})

	return logging(p.Clock, router), nil
}

// New returns an HTTP server serving the admin router on the given address
func New(addr string, p Params) (*http.Server, error) {
	handler, err := NewRouter(p)
	if err != nil {
		return nil, errors.Wrap(err, "initializing router")
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}
