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

package main

import (
	"os"

	"github.com/fullsync/fullsync/pkg/fullsync/output"

	// commands
	"github.com/fullsync/fullsync/pkg/fullsync/cmd/cont"
	"github.com/fullsync/fullsync/pkg/fullsync/cmd/lookup"
	"github.com/fullsync/fullsync/pkg/fullsync/cmd/reset"
	"github.com/fullsync/fullsync/pkg/fullsync/cmd/root"
	"github.com/fullsync/fullsync/pkg/fullsync/cmd/serve"
	"github.com/fullsync/fullsync/pkg/fullsync/cmd/settings"
	"github.com/fullsync/fullsync/pkg/fullsync/cmd/start"
	"github.com/fullsync/fullsync/pkg/fullsync/cmd/status"
)

func main() {
	root.Register(start.NewCmd())
	root.Register(cont.NewCmd())
	root.Register(status.NewCmd())
	root.Register(reset.NewCmd())
	root.Register(serve.NewCmd())
	root.Register(lookup.NewCmd())
	root.Register(settings.NewCmd())

	if err := root.Execute(); err != nil {
		output.New(os.Stderr).Errorf("%s\n", err.Error())
		os.Exit(1)
	}
}
