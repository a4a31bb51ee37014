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

package root

import (
	"github.com/fullsync/fullsync/pkg/fullsync/config"
	"github.com/spf13/cobra"
)

var (
	dbDriverFlag string
	dbPathFlag   string
	endpointFlag string
	apiKeyFlag   string
	settingsFlag string
	logLevelFlag string
	envFileFlag  string
)

var root = &cobra.Command{
	Use:           "fullsync",
	Short:         "fullsync - send every record of a site to a remote endpoint in resumable chunks",
	SilenceErrors: true,
	SilenceUsage:  true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.LoadEnv(envFileFlag)
	},
}

func init() {
	f := root.PersistentFlags()
	f.StringVar(&dbDriverFlag, "dbDriver", "", "database driver: sqlite or postgres (env: FULLSYNC_DB_DRIVER, default: sqlite)")
	f.StringVar(&dbPathFlag, "dbPath", "", "path to the SQLite file or Postgres DSN (env: FULLSYNC_DB_PATH, defaults to standard location)")
	f.StringVar(&endpointFlag, "endpoint", "", "remote endpoint receiving the sync actions (env: FULLSYNC_ENDPOINT)")
	f.StringVar(&apiKeyFlag, "apiKey", "", "bearer token for the remote endpoint (env: FULLSYNC_API_KEY)")
	f.StringVar(&settingsFlag, "settings", "", "path to the settings file (env: FULLSYNC_SETTINGS, defaults to standard location)")
	f.StringVar(&logLevelFlag, "logLevel", "", "log level: debug, info, warn, or error (env: LOG_LEVEL, default: info)")
	f.StringVar(&envFileFlag, "envFile", ".env", "dotenv file loaded before reading the environment")
}

// GetRoot returns the root command
func GetRoot() *cobra.Command {
	return root
}

// GetParams returns the configuration parameters given as persistent flags
func GetParams() config.Params {
	return config.Params{
		DBDriver:     dbDriverFlag,
		DBPath:       dbPathFlag,
		Endpoint:     endpointFlag,
		APIKey:       apiKeyFlag,
		SettingsPath: settingsFlag,
		LogLevel:     logLevelFlag,
	}
}

// Register adds a new command
func Register(cmd *cobra.Command) {
	root.AddCommand(cmd)
}

// Execute runs the main command
func Execute() error {
	return root.Execute()
}
