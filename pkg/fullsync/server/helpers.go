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
	"encoding/json"
	"mime"
	"net/http"

	"github.com/fullsync/fullsync/pkg/fullsync/engine"
	"github.com/fullsync/fullsync/pkg/fullsync/log"
	"github.com/gorilla/schema"
	"github.com/pkg/errors"
)

var formDecoder = newFormDecoder()

func newFormDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)

	return d
}

// parseForm decodes a url-encoded form into dst
func parseForm(r *http.Request, dst interface{}) error {
	if err := r.ParseForm(); err != nil {
		return errors.Wrap(err, "parsing form")
	}

	return formDecoder.Decode(dst, r.PostForm)
}

// parseRequestData decodes the request body into dst as JSON or as a form,
// depending on its Content-Type
func parseRequestData(r *http.Request, dst interface{}) error {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct != "application/json" {
		return parseForm(r, dst)
	}

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.Wrap(err, "decoding json")
	}

	return nil
}

func respondJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.ErrorWrap(err, "encoding response")
	}
}

// errorResponse is the body of an error response
type errorResponse struct {
	Error string `json:"error"`
}

// getStatusCode maps an error to the HTTP status code describing it
func getStatusCode(err error) int {
	switch errors.Cause(err) {
	case engine.ErrNoModules, errBadRequest:
		return http.StatusBadRequest
	case engine.ErrNotStarted:
		return http.StatusConflict
	}

	return http.StatusInternalServerError
}

// handleJSONError logs the error and responds with its message
func handleJSONError(w http.ResponseWriter, err error, msg string) {
	statusCode := getStatusCode(err)

	if statusCode >= http.StatusInternalServerError {
		log.WithFields(log.Fields{
			"statusCode": statusCode,
		}).ErrorWrap(err, msg)
	}

	respondJSON(w, statusCode, errorResponse{Error: errors.Wrap(err, msg).Error()})
}
