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

package status

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fullsync/fullsync/pkg/assert"
	"github.com/fullsync/fullsync/pkg/fullsync/cmd/infra"
	"github.com/fullsync/fullsync/pkg/fullsync/config"
	"github.com/fullsync/fullsync/pkg/fullsync/server"
	"github.com/fullsync/fullsync/pkg/fullsync/testutils"
	"github.com/pkg/errors"
)

func TestDo(t *testing.T) {
	c, buf, db := infra.InitTestCtx(t, config.DefaultSettings())
	testutils.SetupTerms(t, db, 1, 3, "category")

	ctx := context.Background()
	if err := c.App.Engine.Start(ctx, nil, nil); err != nil {
		t.Fatal(errors.Wrap(err, "starting"))
	}

	if err := Do(ctx, c, false); err != nil {
		t.Fatal(errors.Wrap(err, "printing status"))
	}
	if !strings.Contains(buf.String(), "sending: 0/3") {
		t.Errorf("unexpected output: %s", buf.String())
	}

	buf.Reset()
	if err := Do(ctx, c, true); err != nil {
		t.Fatal(errors.Wrap(err, "printing status as json"))
	}

	var got server.StatusResponse
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(errors.Wrapf(err, "decoding output %s", buf.String()))
	}
	assert.Equal(t, got.Sending, true, "sending mismatch")
	assert.Equal(t, got.Total, int64(3), "total mismatch")
}
