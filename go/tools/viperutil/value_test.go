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
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure_Defaults(t *testing.T) {
	reg := NewRegistry()
	size := Configure(reg, "pool.max-size", Options[int]{Default: 10})
	timeout := Configure(reg, "pool.acquire-timeout", Options[time.Duration]{Default: 2 * time.Second})
	paths := Configure(reg, "paths", Options[[]string]{Default: []string{"a", "b"}})

	assert.Equal(t, 10, size.Get())
	assert.Equal(t, 10, size.Default())
	assert.Equal(t, "pool.max-size", size.Key())
	assert.Equal(t, 2*time.Second, timeout.Get())
	assert.Equal(t, []string{"a", "b"}, paths.Get())

	size.Set(4)
	assert.Equal(t, 4, size.Get())
	assert.Equal(t, 10, size.Default())
}

func TestConfigure_EnvOverridesDefault(t *testing.T) {
	t.Setenv("DBPOOL_TEST_PRE_PING", "true")

	reg := NewRegistry()
	prePing := Configure(reg, "pool.pre-ping", Options[bool]{
		Default: false,
		EnvVars: []string{"DBPOOL_TEST_PRE_PING"},
	})
	assert.True(t, prePing.Get())
}

func TestBindFlags(t *testing.T) {
	reg := NewRegistry()
	level := Configure(reg, "log-level", Options[string]{Default: "info", FlagName: "log-level"})
	orphan := Configure(reg, "orphan", Options[string]{Default: "x", FlagName: "not-registered"})
	noFlag := Configure(reg, "no-flag", Options[float64]{Default: 1.5})

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("log-level", level.Default(), "")
	BindFlags(fs, level, orphan, noFlag)

	assert.Equal(t, "info", level.Get(), "unset flag falls back to default")
	require.NoError(t, fs.Parse([]string{"--log-level=debug"}))
	assert.Equal(t, "debug", level.Get())
	assert.Equal(t, "x", orphan.Get())
	assert.InDelta(t, 1.5, noFlag.Get(), 0)
}

func TestAllSettings(t *testing.T) {
	reg := NewRegistry()
	Configure(reg, "a.b", Options[int]{Default: 1})

	settings := reg.AllSettings()
	require.Contains(t, settings, "a")
	assert.Equal(t, map[string]any{"b": 1}, settings["a"])
}
