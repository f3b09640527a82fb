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

package command

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// syncBuffer is a bytes.Buffer safe to read while a command writes to it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func sqliteConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return fmt.Sprintf(`
pool_defaults:
  max_size: 3
  reap_interval_seconds: 0
databases:
  app:
    driver: sqlite
    database: %s
    pool_options:
      MAX_SIZE: 2
      echo: true
  audit:
    driver: sqlite
    database: %s
  remote:
    driver: postgres
    host: db.internal
    port: 5432
    user: app
    password: hunter2
    pool_options:
      recycle: 120
`, filepath.Join(dir, "app.db"), filepath.Join(dir, "audit.db"))
}

func run(t *testing.T, ctx context.Context, config string, args ...string) (string, string, error) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/dbpool.yaml", []byte(config), 0o644))

	root := NewRootCommand(fs)
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--config-file=/etc/dbpool.yaml", "--log-format=text"}, args...))
	err := root.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func TestConfigCommand(t *testing.T) {
	out, _, err := run(t, context.Background(), sqliteConfig(t), "config")
	require.NoError(t, err)

	var view struct {
		PoolDefaults map[string]any `yaml:"pool_defaults"`
		Databases    map[string]struct {
			Driver   string         `yaml:"driver"`
			Password string         `yaml:"password"`
			Pool     map[string]any `yaml:"pool"`
			Ignored  []string       `yaml:"ignored_options"`
		} `yaml:"databases"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &view))

	assert.Equal(t, 3, view.PoolDefaults["max_size"])
	require.Len(t, view.Databases, 3)
	assert.Equal(t, 2, view.Databases["app"].Pool["max_size"])
	assert.Equal(t, []string{"echo"}, view.Databases["app"].Ignored)
	assert.Equal(t, 3, view.Databases["audit"].Pool["max_size"])
	assert.Equal(t, "****", view.Databases["remote"].Password)
	assert.InDelta(t, 120.0, view.Databases["remote"].Pool["recycle_seconds"], 0.001)
	assert.NotContains(t, out, "hunter2")
}

func TestConfigCommandBadOptions(t *testing.T) {
	config := `
databases:
  app:
    driver: sqlite
    pool_options:
      min_size: 9
      max_size: 2
`
	out, _, err := run(t, context.Background(), config, "config", "app")
	require.Error(t, err)
	assert.Contains(t, out, "error:")
	assert.Contains(t, err.Error(), `alias "app"`)
}

func TestCheckCommand(t *testing.T) {
	out, _, err := run(t, context.Background(), sqliteConfig(t), "check", "app", "audit")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`(?m)^app\s+ok`), out)
	assert.Regexp(t, regexp.MustCompile(`(?m)^audit\s+ok`), out)
}

func TestCheckCommandFailure(t *testing.T) {
	config := sqliteConfig(t) + `
  broken:
    driver: nosuchdriver
`
	out, _, err := run(t, context.Background(), config, "check", "app", "broken", "missing")
	require.ErrorIs(t, err, errCheckFailed)
	assert.Regexp(t, regexp.MustCompile(`(?m)^broken\s+FAILED.*unknown driver`), out)
	assert.Regexp(t, regexp.MustCompile(`(?m)^missing\s+FAILED.*unknown database alias`), out)
	assert.Regexp(t, regexp.MustCompile(`(?m)^app\s+ok`), out)
}

func TestCheckCommandYAMLAndMetrics(t *testing.T) {
	out, _, err := run(t, context.Background(), sqliteConfig(t), "check", "app", "-o", "yaml", "--metrics")
	require.NoError(t, err)

	assert.Contains(t, out, "alias: app")
	assert.Contains(t, out, "ok: true")
	assert.Contains(t, out, "checked_out: 0")
	assert.Contains(t, out, `dbpool_pool_idle{alias="app"} 1`)
}

func TestCheckCommandBadOutput(t *testing.T) {
	_, _, err := run(t, context.Background(), sqliteConfig(t), "check", "-o", "json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown --output")
}

func TestLogOutputFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/dbpool.yaml", []byte(sqliteConfig(t)), 0o644))

	root := NewRootCommand(fs)
	root.SetOut(io.Discard)
	root.SetArgs([]string{"--config-file=/etc/dbpool.yaml", "--log-output=/var/log/dbpool.log", "--log-level=debug", "check", "app"})
	require.NoError(t, root.Execute())

	logs, err := afero.ReadFile(fs, "/var/log/dbpool.log")
	require.NoError(t, err)
	assert.Contains(t, string(logs), `"msg":"pool opened"`)
	assert.Contains(t, string(logs), `"alias":"app"`)
	assert.Contains(t, string(logs), `"msg":"checkout"`)
}

func TestServeCommand(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/dbpool.yaml", []byte(sqliteConfig(t)), 0o644))
	root := NewRootCommand(fs)
	var stderr syncBuffer
	root.SetOut(io.Discard)
	root.SetErr(&stderr)
	root.SetArgs([]string{"--config-file=/etc/dbpool.yaml", "--log-output=stderr", "--log-format=json",
		"serve", "--metrics-addr=127.0.0.1:0"})

	errc := make(chan error, 1)
	go func() { errc <- root.ExecuteContext(ctx) }()

	addrRe := regexp.MustCompile(`"msg":"serving pool metrics","addr":"([^"]+)"`)
	var addr string
	require.Eventually(t, func() bool {
		m := addrRe.FindStringSubmatch(stderr.String())
		if m == nil {
			return false
		}
		addr = m[1]
		return true
	}, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `dbpool_pool_capacity{alias="app"} 17`)
	assert.Contains(t, string(body), `dbpool_pool_capacity{alias="audit"} 18`)

	cancel()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}
