// Copyright 2023 The Vitess Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Modifications Copyright 2025 Supabase, Inc.

package viperutil

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfigHandlingValue(t *testing.T) {
	v := viper.New()
	v.SetDefault("default", ExitOnConfigFileNotFound)
	v.SetConfigType("yaml")

	cfg := `
foo: 2
bar: "2"
baz: error
duration: 10h
`
	require.NoError(t, v.ReadConfig(strings.NewReader(cfg)))

	get := getHandlingValue(v)
	assert.Equal(t, ErrorOnConfigFileNotFound, get("foo"), "int value")
	assert.Equal(t, IgnoreConfigFileNotFound, get("bar"), "int-like string is not a handling name")
	assert.Equal(t, ErrorOnConfigFileNotFound, get("baz"), "string value")
	assert.Equal(t, IgnoreConfigFileNotFound, get("notset"))
	assert.Equal(t, IgnoreConfigFileNotFound, get("duration"))
	assert.Equal(t, ExitOnConfigFileNotFound, get("default"))
}

func TestLoadConfig_NotFound(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		cfgName  string
		handling ConfigFileNotFoundHandling
		wantErr  bool
	}{
		{"ignore file", "notfound.yaml", "", IgnoreConfigFileNotFound, false},
		{"ignore name", "", "notfound", IgnoreConfigFileNotFound, false},
		{"warn file", "notfound.yaml", "", WarnOnConfigFileNotFound, false},
		{"warn name", "", "notfound", WarnOnConfigFileNotFound, false},
		{"error file", "notfound.yaml", "", ErrorOnConfigFileNotFound, true},
		{"error name", "", "notfound", ErrorOnConfigFileNotFound, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			reg.SetFs(afero.NewMemMapFs())
			vc := NewViperConfig(reg)
			vc.configFile.Set(tt.file)
			vc.configName.Set(tt.cfgName)
			vc.configFileNotFoundHandling.Set(tt.handling)

			err := vc.LoadConfig(reg, nil)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestLoadConfig_ReadsYAMLFromFs(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/dbpool/dbpool.yaml", []byte(`
databases:
  default:
    driver: sqlite
    database: ":memory:"
`), 0o644))

	reg := NewRegistry()
	reg.SetFs(fs)
	vc := NewViperConfig(reg)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	vc.RegisterFlags(flags)
	require.NoError(t, flags.Parse([]string{"--config-path=/etc/dbpool"}))

	require.NoError(t, vc.LoadConfig(reg, nil))
	assert.Equal(t, "sqlite", reg.Viper().GetString("databases.default.driver"))
	assert.Equal(t, "/etc/dbpool/dbpool.yaml", reg.Viper().ConfigFileUsed())
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/cfg.yaml", []byte("databases: [unclosed"), 0o644))

	reg := NewRegistry()
	reg.SetFs(fs)
	vc := NewViperConfig(reg)
	vc.configFile.Set("/cfg.yaml")
	vc.configFileNotFoundHandling.Set(IgnoreConfigFileNotFound)

	require.Error(t, vc.LoadConfig(reg, nil), "parse errors are not masked by not-found handling")
}

func TestLoadConfig_Watch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dbpool.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pool_defaults:\n  max_size: 5\n"), 0o644))

	reg := NewRegistry()
	vc := NewViperConfig(reg)
	vc.configFile.Set(path)
	vc.configWatch.Set(true)

	var changes atomic.Int32
	require.NoError(t, vc.LoadConfig(reg, func(fsnotify.Event) { changes.Add(1) }))
	assert.Equal(t, 5, reg.Viper().GetInt("pool_defaults.max_size"))

	require.NoError(t, os.WriteFile(path, []byte("pool_defaults:\n  max_size: 7\n"), 0o644))
	require.Eventually(t, func() bool { return changes.Load() > 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 7, reg.Viper().GetInt("pool_defaults.max_size"))
}

func TestHandlingFlag(t *testing.T) {
	var h ConfigFileNotFoundHandling
	require.NoError(t, h.Set("EXIT"))
	assert.Equal(t, ExitOnConfigFileNotFound, h)
	assert.Equal(t, "exit", h.String())
	require.Error(t, h.Set("panic"))
	assert.Equal(t, "ConfigFileNotFoundHandling", h.Type())
}
