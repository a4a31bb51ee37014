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

// Package client delivers full sync markers and chunks to a remote endpoint
// and the data structures for its requests and responses
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fullsync/fullsync/pkg/clock"
	"github.com/fullsync/fullsync/pkg/fullsync/events"
	"github.com/fullsync/fullsync/pkg/fullsync/helpers"
	"github.com/fullsync/fullsync/pkg/fullsync/log"
	"github.com/fullsync/fullsync/pkg/fullsync/status"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const (
	// ActionStart is the action announcing the start of a run
	ActionStart = "full_sync_start"
	// ActionEnd is the action announcing the end of a run
	ActionEnd = "full_sync_end"
	// ActionCancelled is the action announcing a cancelled run
	ActionCancelled = "full_sync_cancelled"

	// ActionsPath is the path that receives actions
	ActionsPath = "/sync/actions"

	// DefaultRetryAfter is used when the remote throttles without saying
	// for how long
	DefaultRetryAfter = time.Minute
)

var (
	// ErrEndpointMissing is an error for a missing endpoint
	ErrEndpointMissing = errors.New("No endpoint was provided")
	// ErrContentTypeMismatch is an error for an unexpected response type
	ErrContentTypeMismatch = errors.New("content type mismatch")
	// ErrNotAccepted is returned when the remote did not accept an action
	ErrNotAccepted = errors.New("action was not accepted")
)

// HTTPError represents an HTTP error response from the remote
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf(`response %d "%s"`, e.StatusCode, e.Message)
}

// IsThrottled returns true if the remote asked the client to slow down
func (e *HTTPError) IsThrottled() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusServiceUnavailable
}

var contentTypeApplicationJSON = "application/json"

const (
	// clientRateLimitPerSecond is the max requests per second the client will make
	clientRateLimitPerSecond = 50
	// clientRateLimitBurst is the burst capacity for rate limiting
	clientRateLimitBurst = 100
)

// rateLimitedTransport wraps an http.RoundTripper with rate limiting
type rateLimitedTransport struct {
	transport http.RoundTripper
	limiter   *rate.Limiter
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.transport.RoundTrip(req)
}

// NewRateLimitedHTTPClient creates an HTTP client with rate limiting
func NewRateLimitedHTTPClient() *http.Client {
	interval := time.Second / time.Duration(clientRateLimitPerSecond)

	transport := &rateLimitedTransport{
		transport: http.DefaultTransport,
		limiter:   rate.NewLimiter(rate.Every(interval), clientRateLimitBurst),
	}
	return &http.Client{
		Transport: transport,
		Timeout:   30 * time.Second,
	}
}

// Action is the payload posted for every marker and chunk
type Action struct {
	Action string      `json:"action"`
	Data   interface{} `json:"data"`
	SentAt int64       `json:"sent_at"`
}

// Response is the body the remote answers with
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// StartData is the data of a start action
type StartData struct {
	Modules status.Config           `json:"modules"`
	Ranges  map[string]status.Range `json:"ranges"`
	Context map[string]interface{}  `json:"context,omitempty"`
}

// ChunkData is the data of a chunk action
type ChunkData struct {
	IDs     []int64                `json:"ids"`
	Objects map[string]interface{} `json:"objects"`
}

// EndData is the data of an end action
type EndData struct {
	Ranges    map[string]status.Range `json:"ranges"`
	StartedAt int64                   `json:"started_at"`
}

// CancelledData is the data of a cancelled action
type CancelledData struct {
	StartedAt int64 `json:"started_at"`
	Sent      int64 `json:"sent"`
}

// Params are the parameters of a Client
type Params struct {
	Endpoint   string
	APIKey     string
	HTTPClient *http.Client
	Clock      clock.Clock
}

// Client posts full sync actions to a remote endpoint. It implements
// events.Listener.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	clock      clock.Clock
}

// New returns a client
func New(p Params) (*Client, error) {
	if p.Endpoint == "" {
		return nil, ErrEndpointMissing
	}

	hc := p.HTTPClient
	if hc == nil {
		hc = NewRateLimitedHTTPClient()
	}
	c := p.Clock
	if c == nil {
		c = clock.New()
	}

	return &Client{
		endpoint:   strings.TrimRight(p.Endpoint, "/"),
		apiKey:     p.APIKey,
		httpClient: hc,
		clock:      c,
	}, nil
}

func (c *Client) getReq(ctx context.Context, body []byte) (*http.Request, error) {
	endpoint := fmt.Sprintf("%s%s", c.endpoint, ActionsPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "constructing http request")
	}

	req.Header.Set("Content-Type", contentTypeApplicationJSON)
	rid, err := helpers.GenUUID()
	if err != nil {
		return nil, errors.Wrap(err, "generating request id")
	}
	req.Header.Set("X-Request-Id", rid)

	if c.apiKey != "" {
		credential := fmt.Sprintf("Bearer %s", c.apiKey)
		req.Header.Set("Authorization", credential)
	}

	return req, nil
}

// retryAfter reads the Retry-After header as seconds or as an HTTP date
func (c *Client) retryAfter(res *http.Response) time.Time {
	now := c.clock.Now()

	v := strings.TrimSpace(res.Header.Get("Retry-After"))
	if v == "" {
		return now.Add(DefaultRetryAfter)
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return now.Add(time.Duration(secs) * time.Second)
	}
	if t, err := http.ParseTime(v); err == nil {
		return t
	}

	return now.Add(DefaultRetryAfter)
}

// checkRespErr returns an error if the given http response indicates one
func (c *Client) checkRespErr(res *http.Response) error {
	if res.StatusCode < 400 {
		return nil
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return errors.Wrapf(err, "remote responded with %d but client could not read the response body", res.StatusCode)
	}

	httpErr := &HTTPError{
		StatusCode: res.StatusCode,
		Message:    strings.TrimRight(string(body), "\n"),
	}
	if httpErr.IsThrottled() {
		return errors.Wrap(&events.RetryAfterError{Until: c.retryAfter(res)}, httpErr.Error())
	}

	return httpErr
}

func checkContentType(res *http.Response) error {
	got := res.Header.Get("Content-Type")
	if !strings.HasPrefix(got, contentTypeApplicationJSON) {
		return errors.Wrapf(ErrContentTypeMismatch, "got: '%s' want: '%s'. Did you configure your endpoint correctly?", got, contentTypeApplicationJSON)
	}

	return nil
}

// Send posts one action and checks that the remote accepted it
func (c *Client) Send(ctx context.Context, action string, data interface{}) error {
	body, err := json.Marshal(Action{
		Action: action,
		Data:   data,
		SentAt: c.clock.Now().Unix(),
	})
	if err != nil {
		return errors.Wrap(err, "encoding action")
	}

	req, err := c.getReq(ctx, body)
	if err != nil {
		return errors.Wrap(err, "getting request")
	}

	log.WithFields(log.Fields{
		"action": action,
		"bytes":  len(body),
	}).Debug("Sending action.")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "making http request")
	}
	defer res.Body.Close()

	if err = c.checkRespErr(res); err != nil {
		return errors.Wrap(err, "remote responded with an error")
	}
	if err = checkContentType(res); err != nil {
		return errors.Wrap(err, "unexpected Content-Type")
	}

	var resp Response
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return errors.Wrap(err, "decoding response")
	}
	if !resp.Success {
		return errors.Wrapf(ErrNotAccepted, "%s: %s", action, resp.Message)
	}

	return nil
}

func objectKeys(m map[int64]interface{}) map[string]interface{} {
	ret := make(map[string]interface{}, len(m))
	for k, v := range m {
		ret[strconv.FormatInt(k, 10)] = v
	}

	return ret
}

// OnStart implements events.Listener
func (c *Client) OnStart(ctx context.Context, e events.Start) error {
	return c.Send(ctx, ActionStart, StartData{
		Modules: e.Config,
		Ranges:  e.Ranges,
		Context: e.Context,
	})
}

// OnChunkSent implements events.Listener
func (c *Client) OnChunkSent(ctx context.Context, e events.ChunkSent) error {
	return c.Send(ctx, e.Action, ChunkData{
		IDs:     e.IDs,
		Objects: objectKeys(e.Objects),
	})
}

// OnEnd implements events.Listener
func (c *Client) OnEnd(ctx context.Context, e events.End) error {
	return c.Send(ctx, ActionEnd, EndData{
		Ranges:    e.Ranges,
		StartedAt: e.StartedAt.Unix(),
	})
}

// OnCancelled implements events.Listener
func (c *Client) OnCancelled(ctx context.Context, e events.Cancelled) error {
	var sent int64
	for _, p := range e.Progress {
		sent += p.Sent
	}

	return c.Send(ctx, ActionCancelled, CancelledData{
		StartedAt: e.StartedAt.Unix(),
		Sent:      sent,
	})
}
