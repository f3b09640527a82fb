// Copyright 2025 Supabase, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package viperutil provides typed, flag- and env-aware configuration values
// backed by an isolated viper instance.
package viperutil

import (
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// Registry holds the viper instance that backs a set of configuration values.
// Each command or service creates its own Registry instead of sharing viper's
// global instance, which keeps tests isolated from each other.
type Registry struct {
	static *viper.Viper
}

// NewRegistry creates a new isolated configuration registry.
//
// Example usage:
//
//	reg := viperutil.NewRegistry()
//	maxSize := viperutil.Configure(reg, "pool.max-size", viperutil.Options[int]{
//	    Default:  10,
//	    FlagName: "pool-max-size",
//	})
func NewRegistry() *Registry {
	return &Registry{
		static: viper.New(),
	}
}

// SetFs replaces the filesystem used to read and watch config files.
// Tests use an afero.MemMapFs so that no real files are touched.
func (reg *Registry) SetFs(fs afero.Fs) {
	reg.static.SetFs(fs)
}

// Viper returns the underlying viper instance. Callers that need to decode
// nested sections (for example per-alias maps) read them through this.
func (reg *Registry) Viper() *viper.Viper {
	return reg.static
}

// AllSettings returns all settings known to the registry, including defaults.
func (reg *Registry) AllSettings() map[string]any {
	return reg.static.AllSettings()
}
