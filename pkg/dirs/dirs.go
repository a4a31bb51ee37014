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

// Package dirs resolves the XDG base directories in which fullsync keeps its
// configuration file and default SQLite database.
package dirs

import (
	"os"
	"os/user"
	"path/filepath"

	"github.com/pkg/errors"
)

// AppDirName is the directory created under each base directory
const AppDirName = "fullsync"

var (
	// Home is the home directory of the user
	Home string
	// ConfigHome is the base directory for user-specific configuration files
	ConfigHome string
	// DataHome is the base directory for user-specific data files
	DataHome string
	// StateHome is the base directory for state that should persist between
	// restarts but is not important enough for DataHome
	StateHome string
)

func init() {
	Reload()
}

// Reload reloads the directory definitions
func Reload() {
	initDirs()
}

// ConfigPath joins the given elements onto the application config directory
func ConfigPath(elem ...string) string {
	return filepath.Join(append([]string{ConfigHome, AppDirName}, elem...)...)
}

// DataPath joins the given elements onto the application data directory
func DataPath(elem ...string) string {
	return filepath.Join(append([]string{DataHome, AppDirName}, elem...)...)
}

func getHomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}

	usr, err := user.Current()
	if err != nil {
		panic(errors.Wrap(err, "getting home dir"))
	}

	return usr.HomeDir
}

func readPath(envName, defaultPath string) string {
	if dir := os.Getenv(envName); dir != "" {
		return dir
	}

	return defaultPath
}
