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

// Package modules implements the content kinds that take part in a full
// sync. Every module walks its rows by ascending primary key so that a
// repeated call with the same progress returns the same chunk.
package modules

import (
	"context"

	"github.com/fullsync/fullsync/pkg/fullsync/status"
)

// Chunk is one bounded batch of module objects
type Chunk struct {
	IDs      []int64
	Objects  map[int64]interface{}
	LastID   int64
	Finished bool
}

// Module is a registered content kind
type Module interface {
	Name() string
	// Global modules carry site-wide state and are always sent first
	Global() bool
	FullSyncActionName() string
	// Total estimates the number of objects to send. rng is the range
	// computed at start, if the module has one.
	Total(ctx context.Context, cfg status.ModuleConfig, rng *status.Range) (int64, error)
	NextChunk(ctx context.Context, cfg status.ModuleConfig, p status.ModuleProgress, size int) (Chunk, error)
}

// Ranger is implemented by modules whose rows are chunked by primary key
// ranges
type Ranger interface {
	Range(ctx context.Context, cfg status.ModuleConfig) (status.Range, error)
}

// actionName returns the remote action announcing a chunk of the module
func actionName(module string) string {
	return "full_sync_" + module
}
