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

// Package status defines the full sync lifecycle state and persists it in
// the key/value option table
package status

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/pkg/errors"
)

// Range is the primary key range of a module's rows at a point in time
type Range struct {
	Min   int64 `json:"min"`
	Max   int64 `json:"max"`
	Count int64 `json:"count"`
}

// ModuleConfig selects whether a module participates in a run and,
// optionally, the subset of record ids to send
type ModuleConfig struct {
	Enabled bool
	IDs     []int64
}

// MarshalJSON encodes the config as true/false, or as the id list when a
// subset is selected
func (c ModuleConfig) MarshalJSON() ([]byte, error) {
	if c.Enabled && len(c.IDs) > 0 {
		return json.Marshal(c.IDs)
	}

	return json.Marshal(c.Enabled)
}

// UnmarshalJSON accepts either a boolean or an id list
func (c *ModuleConfig) UnmarshalJSON(b []byte) error {
	var enabled bool
	if err := json.Unmarshal(b, &enabled); err == nil {
		*c = ModuleConfig{Enabled: enabled}
		return nil
	}

	var ids []int64
	if err := json.Unmarshal(b, &ids); err != nil {
		return errors.Wrapf(err, "decoding module config '%s'", string(b))
	}
	*c = ModuleConfig{Enabled: true, IDs: ids}

	return nil
}

// Config maps module names to their configuration for a run
type Config map[string]ModuleConfig

// Modules returns the sorted names of the enabled modules
func (c Config) Modules() []string {
	var ret []string
	for name, mc := range c {
		if mc.Enabled {
			ret = append(ret, name)
		}
	}
	sort.Strings(ret)

	return ret
}

// ModuleProgress tracks how far a module has got in the current run.
// LastSent is the primary key cursor and MaxID the ceiling captured when the
// run started; a zero MaxID means the module is not range bound.
type ModuleProgress struct {
	Total    int64  `json:"total"`
	Sent     int64  `json:"sent"`
	Finished bool   `json:"finished"`
	LastSent int64  `json:"last_sent,omitempty"`
	MaxID    int64  `json:"max_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Advance records a sent chunk of n objects ending at lastID. Sent never
// exceeds Total and the cursor never moves backwards.
func (p ModuleProgress) Advance(n int, lastID int64, finished bool) ModuleProgress {
	p.Sent += int64(n)
	if p.Sent > p.Total {
		p.Sent = p.Total
	}
	if lastID > p.LastSent {
		p.LastSent = lastID
	}
	p.Finished = finished
	p.Error = ""

	return p
}

// Status is the persisted state of the full sync
type Status struct {
	Started  time.Time
	Finished time.Time
	Config   Config
	Progress map[string]ModuleProgress
}

// IsStarted reports whether a run has been started
func (s Status) IsStarted() bool {
	return !s.Started.IsZero()
}

// IsFinished reports whether the current run has completed
func (s Status) IsFinished() bool {
	return !s.Finished.IsZero()
}

// IsSending reports whether a run is in progress
func (s Status) IsSending() bool {
	return s.IsStarted() && !s.IsFinished()
}

// Errors returns the module errors recorded in the current run
func (s Status) Errors() map[string]string {
	ret := map[string]string{}
	for name, p := range s.Progress {
		if p.Error != "" {
			ret[name] = p.Error
		}
	}

	return ret
}

// Sent returns the total number of objects sent across modules
func (s Status) Sent() int64 {
	var n int64
	for _, p := range s.Progress {
		n += p.Sent
	}

	return n
}

// Total returns the total number of objects expected across modules
func (s Status) Total() int64 {
	var n int64
	for _, p := range s.Progress {
		n += p.Total
	}

	return n
}

// Update is a partial set of status fields. Nil fields are left untouched and
// progress entries are merged per module. A non-zero IfStarted makes the
// update conditional on the stored start time.
type Update struct {
	Started   *time.Time
	Finished  *time.Time
	Config    *Config
	Progress  map[string]ModuleProgress
	IfStarted time.Time
}

// apply merges the update into s
func (u Update) apply(s Status) Status {
	if u.Started != nil {
		s.Started = *u.Started
	}
	if u.Finished != nil {
		s.Finished = *u.Finished
	}
	if u.Config != nil {
		s.Config = *u.Config
	}
	if len(u.Progress) > 0 {
		merged := make(map[string]ModuleProgress, len(s.Progress)+len(u.Progress))
		for name, p := range s.Progress {
			merged[name] = p
		}
		for name, p := range u.Progress {
			merged[name] = p
		}
		s.Progress = merged
	}

	return s
}

// record is the serialized form of Status. Timestamps are unix nanoseconds
// so that start times compare exactly after a round trip.
type record struct {
	Started  int64                     `json:"started,omitempty"`
	Finished int64                     `json:"finished,omitempty"`
	Config   Config                    `json:"config,omitempty"`
	Progress map[string]ModuleProgress `json:"progress,omitempty"`
}

func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}

	return time.Unix(0, n).UTC()
}

func encode(s Status) (string, error) {
	b, err := json.Marshal(record{
		Started:  toUnixNano(s.Started),
		Finished: toUnixNano(s.Finished),
		Config:   s.Config,
		Progress: s.Progress,
	})
	if err != nil {
		return "", errors.Wrap(err, "marshalling status")
	}

	return string(b), nil
}

func decode(value string) (Status, error) {
	var r record
	if err := json.Unmarshal([]byte(value), &r); err != nil {
		return Status{}, errors.Wrap(err, "unmarshalling status")
	}

	s := Status{
		Started:  fromUnixNano(r.Started),
		Finished: fromUnixNano(r.Finished),
		Config:   r.Config,
		Progress: r.Progress,
	}
	if s.Config == nil {
		s.Config = Config{}
	}
	if s.Progress == nil {
		s.Progress = map[string]ModuleProgress{}
	}

	return s, nil
}

// Empty returns the default status used when none is persisted
func Empty() Status {
	return Status{
		Config:   Config{},
		Progress: map[string]ModuleProgress{},
	}
}
