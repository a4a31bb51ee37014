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

package modules

import (
	"fmt"
	"testing"

	"github.com/fullsync/fullsync/pkg/assert"
)

func TestToInt64(t *testing.T) {
	testCases := []struct {
		input    interface{}
		expected int64
	}{
		{input: int64(7), expected: 7},
		{input: int(7), expected: 7},
		{input: int32(7), expected: 7},
		{input: int16(7), expected: 7},
		{input: int8(-7), expected: -7},
		{input: uint(7), expected: 7},
		{input: uint64(7), expected: 7},
		{input: uint32(7), expected: 7},
		{input: uint16(7), expected: 7},
		{input: uint8(7), expected: 7},
		{input: float64(7), expected: 7},
		{input: float32(7), expected: 7},
		{input: []byte("42"), expected: 42},
		{input: "42", expected: 42},
		{input: true, expected: 1},
		{input: nil, expected: 0},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%T", tc.input), func(t *testing.T) {
			assert.Equal(t, toInt64(tc.input), tc.expected, "value mismatch")
		})
	}
}
