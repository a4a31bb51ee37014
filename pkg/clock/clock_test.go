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

package clock

import (
	"testing"
	"time"
)

func TestMock(t *testing.T) {
	c := NewMock()
	start := c.Now()

	got := c.Add(10 * time.Second)
	if !got.Equal(start.Add(10 * time.Second)) {
		t.Errorf("expected %s, got %s", start.Add(10*time.Second), got)
	}
	if d := Since(c, start); d != 10*time.Second {
		t.Errorf("expected elapsed 10s, got %s", d)
	}

	fixed := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	c.SetNow(fixed)
	if !c.Now().Equal(fixed) {
		t.Errorf("expected %s, got %s", fixed, c.Now())
	}
}
