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

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/fullsync/fullsync/pkg/assert"
	"github.com/fullsync/fullsync/pkg/clock"
	"github.com/fullsync/fullsync/pkg/fullsync/config"
	"github.com/fullsync/fullsync/pkg/fullsync/engine"
	"github.com/fullsync/fullsync/pkg/fullsync/testutils"
	"github.com/pkg/errors"
)

func TestValidate(t *testing.T) {
	db := testutils.InitMemoryDB(t)

	testCases := []struct {
		app      App
		expected error
	}{
		{
			app:      App{Clock: clock.NewMock(), Engine: &engine.Engine{}},
			expected: ErrEmptyDB,
		},
		{
			app:      App{DB: db, Engine: &engine.Engine{}},
			expected: ErrEmptyClock,
		},
		{
			app:      App{DB: db, Clock: clock.NewMock()},
			expected: ErrEmptyEngine,
		},
		{
			app:      App{DB: db, Clock: clock.NewMock(), Engine: &engine.Engine{}},
			expected: nil,
		},
	}

	for idx, tc := range testCases {
		t.Run(fmt.Sprintf("test case %d", idx), func(t *testing.T) {
			assert.Equal(t, tc.app.Validate(), tc.expected, "error mismatch")
		})
	}
}

func TestNew_registry(t *testing.T) {
	db := testutils.InitMemoryDB(t)

	a, err := New(Params{DB: db, Clock: clock.NewMock(), Config: config.Config{Settings: config.DefaultSettings()}})
	if err != nil {
		t.Fatal(errors.Wrap(err, "creating app"))
	}

	assert.Equal(t, a.Validate(), nil, "app should be valid")

	var names []string
	for _, m := range a.Engine.Registry().Ordered() {
		names = append(names, m.Name())
	}
	assert.DeepEqual(t, names, []string{
		"options", "constants", "terms", "term_relationships", "posts", "postmeta", "comments",
	}, "module order mismatch")
}

// TestNew_remote runs a whole sync against a fake remote endpoint
func TestNew_remote(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	testutils.SetupOption(t, db, "blogname", "Example")
	testutils.SetupTerms(t, db, 1, 3, "category")
	testutils.SetupRelationship(t, db, 1, 1, 0)
	testutils.SetupPosts(t, db, 1, 2)
	testutils.SetupMeta(t, db, 1, "color", "red")

	var mu sync.Mutex
	var actions []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Action string `json:"action"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Error(errors.Wrap(err, "decoding action"))
		}

		mu.Lock()
		actions = append(actions, body.Action)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success": true}`))
	}))
	defer ts.Close()

	settings := config.DefaultSettings()
	settings.MetaKeys = []string{"color"}
	settings.Constants = map[string]string{"WP_DEBUG": "false"}

	a, err := New(Params{
		DB:     db,
		Clock:  clock.NewMock(),
		Config: config.Config{Endpoint: ts.URL, APIKey: "key", Settings: settings},
	})
	if err != nil {
		t.Fatal(errors.Wrap(err, "creating app"))
	}

	ctx := context.Background()
	if err := a.Engine.Start(ctx, nil, nil); err != nil {
		t.Fatal(errors.Wrap(err, "starting"))
	}
	ran, err := a.Engine.Continue(ctx)
	if err != nil {
		t.Fatal(errors.Wrap(err, "continuing"))
	}
	assert.Equal(t, ran, true, "pass should run")

	mu.Lock()
	defer mu.Unlock()
	assert.DeepEqual(t, actions, []string{
		"full_sync_start",
		"full_sync_options",
		"full_sync_constants",
		"full_sync_terms",
		"full_sync_term_relationships",
		"full_sync_posts",
		"full_sync_postmeta",
		"full_sync_end",
	}, "actions mismatch")
}
