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

package settings

import (
	"os"

	"github.com/fullsync/fullsync/pkg/fullsync/cmd/root"
	"github.com/fullsync/fullsync/pkg/fullsync/config"
	"github.com/fullsync/fullsync/pkg/fullsync/output"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

// ErrSettingsExist is returned when initializing over an existing file
var ErrSettingsExist = errors.New("settings file already exists")

var initFlag bool

// NewCmd returns a new settings command
func NewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Print the effective settings, or write the defaults with --init",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := output.New(cmd.OutOrStdout())

			if initFlag {
				return Init(p, config.ResolveSettingsPath(root.GetParams().SettingsPath))
			}

			cfg, err := config.New(root.GetParams())
			if err != nil {
				return errors.Wrap(err, "reading configuration")
			}

			return Print(p, cfg)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&initFlag, "init", false, "write the default settings to the settings path")

	return cmd
}

// Init writes the default settings to path unless a file exists there
func Init(p *output.Printer, path string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.Wrapf(ErrSettingsExist, "'%s'", path)
	}

	if err := config.WriteSettings(path, config.DefaultSettings()); err != nil {
		return errors.Wrap(err, "writing settings")
	}

	p.Successf("wrote default settings to %s\n", path)

	return nil
}

// Print prints the effective settings as YAML
func Print(p *output.Printer, cfg config.Config) error {
	b, err := yaml.Marshal(cfg.Settings)
	if err != nil {
		return errors.Wrap(err, "marshalling settings")
	}

	p.Infof("settings file: %s\n\n", cfg.SettingsPath)
	p.Plainf("%s", b)

	return nil
}
