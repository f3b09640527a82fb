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
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/multigres/dbpool/go/pooler"
	"github.com/multigres/dbpool/go/pools/driver"
	"github.com/multigres/dbpool/go/pools/poolconfig"
)

type aliasView struct {
	driver.Params `yaml:",inline"`

	Pool    map[string]any `yaml:"pool,omitempty"`
	Ignored []string       `yaml:"ignored_options,omitempty"`
	Error   string         `yaml:"error,omitempty"`
}

type configView struct {
	PoolDefaults map[string]any       `yaml:"pool_defaults"`
	Databases    map[string]aliasView `yaml:"databases"`
}

func newConfigCommand(dc *DBPoolCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "config [alias...]",
		Short: "Print the effective configuration of each alias",
		Long: `config prints, as YAML, the pool defaults and for each alias its
connection parameters (password masked), the merged pool configuration and
any pool options that were not recognized. It exits non-zero if an alias
has an invalid pool configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := dc.loadPooler()
			if err != nil {
				return err
			}
			defer p.Close(context.Background())

			defaults, _, err := pooler.LoadDefaults(dc.reg)
			if err != nil {
				return err
			}

			aliases := args
			if len(aliases) == 0 {
				aliases = p.Aliases()
			}
			view := configView{
				PoolDefaults: defaults.Options(),
				Databases:    make(map[string]aliasView, len(aliases)),
			}
			var errs []error
			for _, alias := range aliases {
				settings, ok := p.Settings(alias)
				if !ok {
					errs = append(errs, fmt.Errorf("%w: %q", pooler.ErrUnknownAlias, alias))
					continue
				}
				v := aliasView{Params: settings.Redacted()}
				cfg, ignored, err := poolconfig.Merge(defaults, settings.PoolOptions)
				if err != nil {
					v.Error = err.Error()
					errs = append(errs, fmt.Errorf("alias %q: %w", alias, err))
				} else {
					v.Pool = cfg.Options()
					v.Ignored = ignored
				}
				view.Databases[alias] = v
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(view); err != nil {
				return err
			}
			if err := enc.Close(); err != nil {
				return err
			}
			return errors.Join(errs...)
		},
	}
}
