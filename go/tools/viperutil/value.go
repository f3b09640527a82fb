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

package viperutil

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Options configures a Value.
type Options[T any] struct {
	// Default is the value returned when nothing else (flag, env, config
	// file) provides one.
	Default T

	// FlagName is the pflag name bound to this value by BindFlags.
	// Empty means the value has no flag.
	FlagName string

	// EnvVars are environment variables consulted, in order, for this value.
	EnvVars []string

	// GetFunc overrides how the value is read from viper. When nil, a getter
	// is chosen from the type of T.
	GetFunc func(v *viper.Viper) func(key string) T
}

// Bindable is implemented by every Value and lets BindFlags work on values of
// mixed types.
type Bindable interface {
	Key() string
	FlagName() string
	bind(fs *pflag.FlagSet) error
}

// Value is a typed configuration value registered with a Registry.
type Value[T any] interface {
	Bindable

	// Get returns the current value, resolving flag > env > config > default.
	Get() T

	// Set overrides the value in the registry.
	Set(v T)

	// Default returns the default configured for the value.
	Default() T
}

type staticValue[T any] struct {
	reg      *Registry
	key      string
	flagName string
	def      T
	get      func(key string) T
}

// Configure registers a value under key with the given options and returns a
// handle to it. The default and env bindings are applied immediately; flags
// are bound later with BindFlags once they exist on a FlagSet.
func Configure[T any](reg *Registry, key string, opts Options[T]) Value[T] {
	reg.static.SetDefault(key, opts.Default)
	if len(opts.EnvVars) > 0 {
		if err := reg.static.BindEnv(append([]string{key}, opts.EnvVars...)...); err != nil {
			slog.Warn("failed to bind env vars", "key", key, "env", opts.EnvVars, "err", err)
		}
	}

	getFunc := opts.GetFunc
	if getFunc == nil {
		getFunc = getterFor[T]
	}

	return &staticValue[T]{
		reg:      reg,
		key:      key,
		flagName: opts.FlagName,
		def:      opts.Default,
		get:      getFunc(reg.static),
	}
}

func (v *staticValue[T]) Key() string      { return v.key }
func (v *staticValue[T]) FlagName() string { return v.flagName }
func (v *staticValue[T]) Default() T       { return v.def }
func (v *staticValue[T]) Get() T           { return v.get(v.key) }
func (v *staticValue[T]) Set(val T)        { v.reg.static.Set(v.key, val) }

func (v *staticValue[T]) bind(fs *pflag.FlagSet) error {
	if v.flagName == "" {
		return nil
	}
	f := fs.Lookup(v.flagName)
	if f == nil {
		return fmt.Errorf("flag %s for key %s is not registered", v.flagName, v.key)
	}
	return v.reg.static.BindPFlag(v.key, f)
}

// BindFlags binds each value to its flag in fs. Values whose flag has not
// been registered on fs are logged and skipped.
func BindFlags(fs *pflag.FlagSet, values ...Bindable) {
	for _, v := range values {
		if err := v.bind(fs); err != nil {
			slog.Warn("failed to bind flag", "key", v.Key(), "flag", v.FlagName(), "err", err)
		}
	}
}

// getterFor picks a viper getter matching T.
func getterFor[T any](v *viper.Viper) func(key string) T {
	var zero T
	switch any(zero).(type) {
	case string:
		return func(key string) T { return any(v.GetString(key)).(T) }
	case bool:
		return func(key string) T { return any(v.GetBool(key)).(T) }
	case int:
		return func(key string) T { return any(v.GetInt(key)).(T) }
	case int64:
		return func(key string) T { return any(v.GetInt64(key)).(T) }
	case float64:
		return func(key string) T { return any(v.GetFloat64(key)).(T) }
	case time.Duration:
		return func(key string) T { return any(v.GetDuration(key)).(T) }
	case []string:
		return func(key string) T { return any(v.GetStringSlice(key)).(T) }
	default:
		return func(key string) T {
			val, ok := v.Get(key).(T)
			if !ok {
				return zero
			}
			return val
		}
	}
}
