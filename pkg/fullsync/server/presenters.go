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
	"time"

	"github.com/fullsync/fullsync/pkg/fullsync/status"
)

// StatusResponse is the presented status of the full sync
type StatusResponse struct {
	Started  *time.Time                       `json:"started"`
	Finished *time.Time                       `json:"finished"`
	Sending  bool                             `json:"sending"`
	Sent     int64                            `json:"sent"`
	Total    int64                            `json:"total"`
	Config   status.Config                    `json:"config"`
	Progress map[string]status.ModuleProgress `json:"progress"`
	Errors   map[string]string                `json:"errors,omitempty"`
}

func presentTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}

	ret := t.UTC()
	return &ret
}

// PresentStatus presents the given status
func PresentStatus(s status.Status) StatusResponse {
	ret := StatusResponse{
		Started:  presentTime(s.Started),
		Finished: presentTime(s.Finished),
		Sending:  s.IsSending(),
		Sent:     s.Sent(),
		Total:    s.Total(),
		Config:   s.Config,
		Progress: s.Progress,
		Errors:   s.Errors(),
	}
	if ret.Config == nil {
		ret.Config = status.Config{}
	}
	if ret.Progress == nil {
		ret.Progress = map[string]status.ModuleProgress{}
	}

	return ret
}
