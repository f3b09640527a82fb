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

package pooler

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/spf13/pflag"

	"github.com/multigres/dbpool/go/pools/driver"
	"github.com/multigres/dbpool/go/pools/poolconfig"
	"github.com/multigres/dbpool/go/tools/viperutil"
)

// Config file sections.
const (
	databasesKey    = "databases"
	poolDefaultsKey = "pool_defaults"
)

// AliasSettings is the connection and pool configuration of one alias.
type AliasSettings struct {
	driver.Params `mapstructure:",squash" yaml:",inline"`

	// PassFile is a PostgreSQL-style password file consulted when Password
	// is empty.
	PassFile string `mapstructure:"passfile" yaml:"passfile,omitempty"`

	// PoolOptions override the registry's default pool config. Keys are
	// matched case-insensitively; unknown keys are logged and ignored.
	PoolOptions map[string]any `mapstructure:"pool_options" yaml:"pool_options,omitempty"`
}

// LoadAliases decodes the databases section of reg. A missing section
// yields no aliases.
func LoadAliases(reg *viperutil.Registry) (map[string]AliasSettings, error) {
	aliases := make(map[string]AliasSettings)
	if !reg.Viper().IsSet(databasesKey) {
		return aliases, nil
	}
	if err := reg.Viper().UnmarshalKey(databasesKey, &aliases); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", databasesKey, err)
	}

	var errs []error
	for _, alias := range slices.Sorted(maps.Keys(aliases)) {
		if err := aliases[alias].Validate(); err != nil {
			errs = append(errs, fmt.Errorf("alias %q: %w", alias, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return aliases, nil
}

// LoadDefaults merges the pool_defaults section of reg over the built-in
// pool defaults. It also returns the keys it did not recognize.
func LoadDefaults(reg *viperutil.Registry) (poolconfig.Config, []string, error) {
	cfg, ignored, err := poolconfig.Merge(poolconfig.Defaults(), reg.Viper().GetStringMap(poolDefaultsKey))
	if err != nil {
		return poolconfig.Config{}, nil, fmt.Errorf("%s: %w", poolDefaultsKey, err)
	}
	return cfg, ignored, nil
}

// Config holds the process-wide pooler settings.
type Config struct {
	retryAttempts  viperutil.Value[int]
	retryBaseDelay viperutil.Value[time.Duration]
	retryMaxDelay  viperutil.Value[time.Duration]
}

// NewConfig registers the pooler settings with reg.
func NewConfig(reg *viperutil.Registry) *Config {
	return &Config{
		retryAttempts: viperutil.Configure(reg, "connect.retry.attempts", viperutil.Options[int]{
			Default:  1,
			FlagName: "connect-retry-attempts",
			EnvVars:  []string{"DBPOOL_CONNECT_RETRY_ATTEMPTS"},
		}),
		retryBaseDelay: viperutil.Configure(reg, "connect.retry.base_delay", viperutil.Options[time.Duration]{
			Default:  100 * time.Millisecond,
			FlagName: "connect-retry-base-delay",
		}),
		retryMaxDelay: viperutil.Configure(reg, "connect.retry.max_delay", viperutil.Options[time.Duration]{
			Default:  2 * time.Second,
			FlagName: "connect-retry-max-delay",
		}),
	}
}

// RegisterFlags installs the pooler flags on fs.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.Int("connect-retry-attempts", c.retryAttempts.Default(), "Dials per new physical connection before giving up.")
	fs.Duration("connect-retry-base-delay", c.retryBaseDelay.Default(), "Initial backoff between failed dials.")
	fs.Duration("connect-retry-max-delay", c.retryMaxDelay.Default(), "Maximum backoff between failed dials.")
	viperutil.BindFlags(fs, c.retryAttempts, c.retryBaseDelay, c.retryMaxDelay)
}

// RetryPolicy returns the dial retry policy currently configured.
func (c *Config) RetryPolicy() driver.RetryPolicy {
	return driver.RetryPolicy{
		Attempts:  c.retryAttempts.Get(),
		BaseDelay: c.retryBaseDelay.Get(),
		MaxDelay:  c.retryMaxDelay.Get(),
	}
}
