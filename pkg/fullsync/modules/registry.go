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
	"github.com/fullsync/fullsync/pkg/fullsync/status"
	"github.com/pkg/errors"
)

// ErrDuplicateModule is returned when two modules share a name
var ErrDuplicateModule = errors.New("module already registered")

// Registry resolves module names to modules
type Registry struct {
	modules map[string]Module
	order   []string
}

// NewRegistry returns a registry holding the given modules
func NewRegistry(modules ...Module) (*Registry, error) {
	r := &Registry{modules: map[string]Module{}}

	for _, m := range modules {
		if err := r.Register(m); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Register adds a module
func (r *Registry) Register(m Module) error {
	name := m.Name()
	if _, ok := r.modules[name]; ok {
		return errors.Wrapf(ErrDuplicateModule, "'%s'", name)
	}

	r.modules[name] = m
	r.order = append(r.order, name)

	return nil
}

// Get returns the named module
func (r *Registry) Get(name string) (Module, bool) {
	m, ok := r.modules[name]
	return m, ok
}

// Names returns module names in the order Ordered returns them
func (r *Registry) Names() []string {
	var ret []string
	for _, m := range r.Ordered() {
		ret = append(ret, m.Name())
	}

	return ret
}

// Ordered returns global modules first, then the others, each group in
// registration order
func (r *Registry) Ordered() []Module {
	ret := make([]Module, 0, len(r.order))

	for _, global := range []bool{true, false} {
		for _, name := range r.order {
			if m := r.modules[name]; m.Global() == global {
				ret = append(ret, m)
			}
		}
	}

	return ret
}

// DefaultConfig enables every registered module
func (r *Registry) DefaultConfig() status.Config {
	ret := status.Config{}
	for _, name := range r.order {
		ret[name] = status.ModuleConfig{Enabled: true}
	}

	return ret
}

// Filter drops unknown and disabled modules from the given config and
// returns the names that were unknown
func (r *Registry) Filter(cfg status.Config) (status.Config, []string) {
	ret := status.Config{}
	var unknown []string

	for name, mc := range cfg {
		if _, ok := r.modules[name]; !ok {
			unknown = append(unknown, name)
			continue
		}
		if mc.Enabled {
			ret[name] = mc
		}
	}

	return ret, unknown
}
