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

package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

var (
	// ErrSendDurationInvalid is an error for a non-positive send duration
	ErrSendDurationInvalid = errors.New("Invalid send duration")
	// ErrChunkSizeInvalid is an error for a non-positive chunk size
	ErrChunkSizeInvalid = errors.New("Invalid chunk size")
	// ErrLockTTLInvalid is an error for a lock lease not longer than the send
	// duration
	ErrLockTTLInvalid = errors.New("Invalid lock TTL")
	// ErrPredicateBytesInvalid is an error for a non-positive predicate ceiling
	ErrPredicateBytesInvalid = errors.New("Invalid max predicate bytes")
)

// Duration is a time.Duration that unmarshals from strings such as "15s"
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "parsing duration '%s'", s)
	}
	*d = Duration(parsed)

	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Settings holds the tunables of the sync engine and its modules
type Settings struct {
	SendDuration          Duration          `yaml:"send_duration"`
	LockTTL               Duration          `yaml:"lock_ttl"`
	ChunkSize             int               `yaml:"chunk_size"`
	ModuleChunkSizes      map[string]int    `yaml:"module_chunk_sizes"`
	MaxChunksPerPass      int               `yaml:"max_chunks_per_pass"`
	MaxPredicateBytes     int               `yaml:"max_predicate_bytes"`
	OptionWhitelist       []string          `yaml:"option_whitelist"`
	MetaKeys              []string          `yaml:"meta_keys"`
	BlacklistedTaxonomies []string          `yaml:"blacklisted_taxonomies"`
	Constants             map[string]string `yaml:"constants"`
}

// DefaultSettings returns the settings used when no settings file exists
func DefaultSettings() Settings {
	return Settings{
		SendDuration:      Duration(15 * time.Second),
		LockTTL:           Duration(30 * time.Second),
		ChunkSize:         100,
		MaxPredicateBytes: 15 * 1024,
		OptionWhitelist:   []string{"blogname", "blogdescription", "siteurl", "home", "timezone_string"},
		BlacklistedTaxonomies: []string{
			"post_format",
			"nav_menu",
		},
	}
}

// ReadSettings reads the settings file at the given path on top of the
// defaults. A missing file yields the defaults.
func ReadSettings(path string) (Settings, error) {
	s := DefaultSettings()

	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	} else if err != nil {
		return s, errors.Wrapf(err, "reading %s", path)
	}

	if err := yaml.Unmarshal(b, &s); err != nil {
		return s, errors.Wrapf(err, "unmarshalling %s", path)
	}

	return s, nil
}

// WriteSettings writes the given settings to the given path
func WriteSettings(path string, s Settings) error {
	b, err := yaml.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "marshalling settings")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "creating directory for %s", path)
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}

	return nil
}

// ChunkSizeFor returns the chunk size for the given module
func (s Settings) ChunkSizeFor(module string) int {
	if n, ok := s.ModuleChunkSizes[module]; ok && n > 0 {
		return n
	}

	return s.ChunkSize
}

func validateSettings(s Settings) error {
	if s.SendDuration <= 0 {
		return ErrSendDurationInvalid
	}
	if s.LockTTL <= s.SendDuration {
		return errors.Wrapf(ErrLockTTLInvalid, "%s must exceed the send duration %s", time.Duration(s.LockTTL), time.Duration(s.SendDuration))
	}
	if s.ChunkSize <= 0 {
		return ErrChunkSizeInvalid
	}
	for module, n := range s.ModuleChunkSizes {
		if n <= 0 {
			return errors.Wrapf(ErrChunkSizeInvalid, "module %s", module)
		}
	}
	if s.MaxPredicateBytes <= 0 {
		return ErrPredicateBytesInvalid
	}

	return nil
}
