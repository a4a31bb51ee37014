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

package infra

import (
	"bytes"
	"testing"

	"github.com/fullsync/fullsync/pkg/clock"
	"github.com/fullsync/fullsync/pkg/fullsync/app"
	"github.com/fullsync/fullsync/pkg/fullsync/config"
	"github.com/fullsync/fullsync/pkg/fullsync/testutils"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// InitTestCtx initializes a test context with an in-memory database and a
// mock clock. Output is written to the returned buffer.
func InitTestCtx(t *testing.T, settings config.Settings) (*Ctx, *bytes.Buffer, *gorm.DB) {
	t.Helper()

	db := testutils.InitMemoryDB(t)

	a, err := app.New(app.Params{
		DB:     db,
		Clock:  clock.NewMock(),
		Config: config.Config{Settings: settings},
	})
	if err != nil {
		t.Fatal(errors.Wrap(err, "initializing app"))
	}

	var buf bytes.Buffer
	return New(a, &buf), &buf, db
}
