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

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fullsync/fullsync/pkg/assert"
	"github.com/fullsync/fullsync/pkg/clock"
	"github.com/fullsync/fullsync/pkg/fullsync/events"
	"github.com/fullsync/fullsync/pkg/fullsync/helpers"
	"github.com/fullsync/fullsync/pkg/fullsync/status"
	"github.com/pkg/errors"
)

type received struct {
	header http.Header
	action map[string]interface{}
}

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *[]received) {
	t.Helper()

	var got []received
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != ActionsPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}

		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Error(errors.Wrap(err, "decoding request body"))
			return
		}
		got = append(got, received{header: r.Header.Clone(), action: body})

		handler(w, r)
	}))
	t.Cleanup(ts.Close)

	return ts, &got
}

func respondJSON(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}
}

func newTestClient(t *testing.T, endpoint string, c clock.Clock) *Client {
	t.Helper()

	cl, err := New(Params{Endpoint: endpoint + "/", APIKey: "secret", Clock: c})
	if err != nil {
		t.Fatal(errors.Wrap(err, "creating client"))
	}

	return cl
}

func TestNew_endpointMissing(t *testing.T) {
	_, err := New(Params{})
	assert.Equal(t, err, ErrEndpointMissing, "error mismatch")
}

func TestOnChunkSent(t *testing.T) {
	ts, got := newTestServer(t, respondJSON(http.StatusOK, `{"success": true}`))
	c := clock.NewMock()
	cl := newTestClient(t, ts.URL, c)

	err := cl.OnChunkSent(context.Background(), events.ChunkSent{
		Module: "terms",
		Action: "full_sync_terms",
		IDs:    []int64{1, 2},
		Objects: map[int64]interface{}{
			1: map[string]interface{}{"name": "a"},
			2: map[string]interface{}{"name": "b"},
		},
	})
	if err != nil {
		t.Fatal(errors.Wrap(err, "sending chunk"))
	}

	if len(*got) != 1 {
		t.Fatalf("expected 1 request, got %d", len(*got))
	}
	req := (*got)[0]
	assert.Equal(t, req.header.Get("Authorization"), "Bearer secret", "authorization mismatch")
	assert.Equal(t, req.header.Get("Content-Type"), "application/json", "content type mismatch")
	assert.Equal(t, helpers.ValidateUUID(req.header.Get("X-Request-Id")), true, "request id should be a uuid")
	assert.Equal(t, req.action["action"], "full_sync_terms", "action mismatch")
	assert.Equal(t, req.action["sent_at"], float64(c.Now().Unix()), "sent_at mismatch")

	data := req.action["data"].(map[string]interface{})
	assert.DeepEqual(t, data["ids"], []interface{}{float64(1), float64(2)}, "ids mismatch")
	objects := data["objects"].(map[string]interface{})
	assert.DeepEqual(t, objects["2"], map[string]interface{}{"name": "b"}, "object mismatch")
}

func TestOnStart(t *testing.T) {
	ts, got := newTestServer(t, respondJSON(http.StatusOK, `{"success": true}`))
	cl := newTestClient(t, ts.URL, clock.NewMock())

	err := cl.OnStart(context.Background(), events.Start{
		Config: status.Config{
			"terms": {Enabled: true},
			"posts": {Enabled: true, IDs: []int64{3}},
		},
		Ranges:  map[string]status.Range{"terms": {Min: 1, Max: 5, Count: 5}},
		Context: map[string]interface{}{"source": "cli"},
	})
	if err != nil {
		t.Fatal(errors.Wrap(err, "sending start"))
	}

	data := (*got)[0].action["data"].(map[string]interface{})
	assert.Equal(t, (*got)[0].action["action"], ActionStart, "action mismatch")
	assert.DeepEqual(t, data["modules"], map[string]interface{}{
		"terms": true,
		"posts": []interface{}{float64(3)},
	}, "modules mismatch")
	assert.DeepEqual(t, data["ranges"], map[string]interface{}{
		"terms": map[string]interface{}{"min": float64(1), "max": float64(5), "count": float64(5)},
	}, "ranges mismatch")
	assert.DeepEqual(t, data["context"], map[string]interface{}{"source": "cli"}, "context mismatch")
}

func TestSend_errors(t *testing.T) {
	testCases := []struct {
		name     string
		handler  http.HandlerFunc
		expected error
	}{
		{
			name:     "not accepted",
			handler:  respondJSON(http.StatusOK, `{"success": false, "message": "unknown action"}`),
			expected: ErrNotAccepted,
		},
		{
			name: "content type",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				fmt.Fprint(w, "<html></html>")
			},
			expected: ErrContentTypeMismatch,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ts, _ := newTestServer(t, tc.handler)
			cl := newTestClient(t, ts.URL, clock.NewMock())

			err := cl.Send(context.Background(), "full_sync_terms", nil)
			assert.Equal(t, errors.Cause(err), tc.expected, "error mismatch")
		})
	}
}

func TestSend_httpError(t *testing.T) {
	ts, _ := newTestServer(t, respondJSON(http.StatusInternalServerError, "boom\n"))
	cl := newTestClient(t, ts.URL, clock.NewMock())

	err := cl.Send(context.Background(), "full_sync_terms", nil)

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected an HTTPError, got %v", err)
	}
	assert.Equal(t, httpErr.StatusCode, http.StatusInternalServerError, "status code mismatch")
	assert.Equal(t, httpErr.Message, "boom", "message mismatch")

	var retry *events.RetryAfterError
	assert.Equal(t, errors.As(err, &retry), false, "server errors should not ask for a retry")
}

func TestSend_retryAfter(t *testing.T) {
	c := clock.NewMock()
	date := c.Now().Add(time.Hour).UTC().Truncate(time.Second)

	testCases := []struct {
		name     string
		status   int
		header   string
		expected time.Time
	}{
		{
			name:     "seconds",
			status:   http.StatusTooManyRequests,
			header:   "120",
			expected: c.Now().Add(2 * time.Minute),
		},
		{
			name:     "http date",
			status:   http.StatusServiceUnavailable,
			header:   date.Format(http.TimeFormat),
			expected: date,
		},
		{
			name:     "missing",
			status:   http.StatusTooManyRequests,
			header:   "",
			expected: c.Now().Add(DefaultRetryAfter),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ts, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				if tc.header != "" {
					w.Header().Set("Retry-After", tc.header)
				}
				w.WriteHeader(tc.status)
			})
			cl := newTestClient(t, ts.URL, c)

			err := cl.Send(context.Background(), "full_sync_terms", nil)

			var retry *events.RetryAfterError
			if !errors.As(err, &retry) {
				t.Fatalf("expected a RetryAfterError, got %v", err)
			}
			assert.Equal(t, retry.Until.Equal(tc.expected), true, fmt.Sprintf("until mismatch: got %s", retry.Until))
		})
	}
}
