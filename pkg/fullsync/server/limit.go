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
	"strings"
	"sync"
	"time"

	"github.com/fullsync/fullsync/pkg/clock"
	"github.com/fullsync/fullsync/pkg/fullsync/log"
	"golang.org/x/time/rate"
)

const (
	// serverRateLimitPerSecond is the max requests per second the server will accept per IP
	serverRateLimitPerSecond = 10
	// serverRateLimitBurst is the burst capacity for rate limiting
	serverRateLimitBurst = 20

	visitorTTL      = 3 * time.Minute
	cleanupInterval = time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds the rate limiting state for visitors
type RateLimiter struct {
	clock       clock.Clock
	visitors    map[string]*visitor
	lastCleanup time.Time
	mtx         sync.Mutex
}

// NewRateLimiter creates a new rate limiter instance
func NewRateLimiter(c clock.Clock) *RateLimiter {
	return &RateLimiter{
		clock:       c,
		visitors:    make(map[string]*visitor),
		lastCleanup: c.Now(),
	}
}

// getVisitor returns a limiter for a visitor with the given identifier. It
// adds the visitor to the map if not seen before.
func (rl *RateLimiter) getVisitor(identifier string) *rate.Limiter {
	rl.mtx.Lock()
	defer rl.mtx.Unlock()

	now := rl.clock.Now()
	rl.cleanupVisitors(now)

	v, ok := rl.visitors[identifier]
	if !ok {
		interval := time.Second / time.Duration(serverRateLimitPerSecond)
		v = &visitor{
			limiter: rate.NewLimiter(rate.Every(interval), serverRateLimitBurst),
		}
		rl.visitors[identifier] = v
	}
	v.lastSeen = now

	return v.limiter
}

// cleanupVisitors deletes visitors that have not been seen in a while. The
// caller must hold the lock.
func (rl *RateLimiter) cleanupVisitors(now time.Time) {
	if now.Sub(rl.lastCleanup) < cleanupInterval {
		return
	}
	rl.lastCleanup = now

	for identifier, v := range rl.visitors {
		if now.Sub(v.lastSeen) > visitorTTL {
			delete(rl.visitors, identifier)
		}
	}
}

// visitorCount returns the number of tracked visitors
func (rl *RateLimiter) visitorCount() int {
	rl.mtx.Lock()
	defer rl.mtx.Unlock()

	return len(rl.visitors)
}

// lookupIP returns the request's IP
func lookupIP(r *http.Request) string {
	realIP := r.Header.Get("X-Real-IP")
	forwardedFor := r.Header.Get("X-Forwarded-For")

	if forwardedFor != "" {
		parts := strings.Split(forwardedFor, ",")
		return strings.TrimSpace(parts[0])
	}

	if realIP != "" {
		return realIP
	}

	return r.RemoteAddr
}

// Limit is a middleware to rate limit the handler
func (rl *RateLimiter) Limit(next http.Handler) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identifier := lookupIP(r)
		limiter := rl.getVisitor(identifier)

		if !limiter.Allow() {
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			log.WithFields(log.Fields{
				"ip": identifier,
			}).Warn("Too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}
