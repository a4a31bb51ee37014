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

package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fullsync/fullsync/pkg/assert"
	"github.com/fullsync/fullsync/pkg/clock"
)

func TestLimit(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	limiter := NewRateLimiter(clock.NewMock())
	middleware := limiter.Limit(handler)

	blockedCount := 0
	for n := 0; n < serverRateLimitBurst+5; n++ {
		req := httptest.NewRequest("GET", "/status", nil)
		req.RemoteAddr = "192.168.1.1:1234"
		w := httptest.NewRecorder()

		middleware.ServeHTTP(w, req)

		if w.Code == http.StatusTooManyRequests {
			blockedCount++
		}
	}

	if blockedCount == 0 {
		t.Error("Expected some requests to be rate limited after burst")
	}

	req := httptest.NewRequest("GET", "/status", nil)
	req.RemoteAddr = "192.168.1.2:5678"
	w := httptest.NewRecorder()
	middleware.ServeHTTP(w, req)

	assert.Equal(t, w.Code, http.StatusOK, "request from a different IP should succeed")
}

func TestLookupIP(t *testing.T) {
	testCases := []struct {
		forwardedFor string
		realIP       string
		expected     string
	}{
		{
			forwardedFor: "10.0.0.1, 10.0.0.2",
			realIP:       "10.0.0.3",
			expected:     "10.0.0.1",
		},
		{
			realIP:   "10.0.0.3",
			expected: "10.0.0.3",
		},
		{
			expected: "192.168.1.1:1234",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = "192.168.1.1:1234"
			if tc.forwardedFor != "" {
				req.Header.Set("X-Forwarded-For", tc.forwardedFor)
			}
			if tc.realIP != "" {
				req.Header.Set("X-Real-IP", tc.realIP)
			}

			assert.Equal(t, lookupIP(req), tc.expected, "ip mismatch")
		})
	}
}

func TestRateLimiter_cleanup(t *testing.T) {
	c := clock.NewMock()
	limiter := NewRateLimiter(c)

	limiter.getVisitor("10.0.0.1")
	c.Add(2 * time.Minute)
	limiter.getVisitor("10.0.0.2")
	assert.Equal(t, limiter.visitorCount(), 2, "visitor count mismatch before expiry")

	c.Add(2 * time.Minute)
	limiter.getVisitor("10.0.0.2")
	assert.Equal(t, limiter.visitorCount(), 1, "stale visitor should be removed")
}
