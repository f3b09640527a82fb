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

// Package command holds the dbpool cobra commands.
package command

import (
	"io"
	"log/slog"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/multigres/dbpool/go/pooler"
	"github.com/multigres/dbpool/go/tools/logutil"
	"github.com/multigres/dbpool/go/tools/viperutil"
)

// DBPoolCommand holds the state shared by the dbpool commands.
type DBPoolCommand struct {
	fs        afero.Fs
	reg       *viperutil.Registry
	vc        *viperutil.ViperConfig
	logConfig *logutil.Logger
	poolerCfg *pooler.Config

	logger    *slog.Logger
	logCloser io.Closer
}

// GetRootCommand returns the dbpool root command reading from the OS
// filesystem.
func GetRootCommand() *cobra.Command {
	return NewRootCommand(afero.NewOsFs())
}

// NewRootCommand returns the dbpool root command with all subcommands,
// reading config and log files through fs.
func NewRootCommand(fs afero.Fs) *cobra.Command {
	reg := viperutil.NewRegistry()
	reg.SetFs(fs)
	dc := &DBPoolCommand{
		fs:        fs,
		reg:       reg,
		vc:        viperutil.NewViperConfig(reg),
		logConfig: logutil.NewLogger(reg),
		poolerCfg: pooler.NewConfig(reg),
	}

	root := &cobra.Command{
		Use:   "dbpool",
		Short: "Inspect and exercise database connection pools",
		Long: `dbpool reads the database aliases of a config file and manages one
connection pool per alias.

Configuration:
  The config file is found through --config-file, or by searching the
  --config-path directories for --config-name (default "dbpool") with a
  supported extension. It holds a databases section keyed by alias and an
  optional pool_defaults section:

    pool_defaults:
      max_size: 10
    databases:
      default:
        driver: postgres
        host: localhost
        database: app
        pool_options:
          MAX_SIZE: 5
          pre_ping: true`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Flag errors have been reported by now; don't print usage for
			// application errors.
			cmd.SilenceUsage = true

			dc.logConfig.Stdout = cmd.OutOrStdout()
			dc.logConfig.Stderr = cmd.ErrOrStderr()
			logger, closer, err := dc.logConfig.Setup(dc.fs)
			if err != nil {
				return err
			}
			dc.logger, dc.logCloser = logger, closer
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if dc.logCloser != nil {
				return dc.logCloser.Close()
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	dc.vc.RegisterFlags(flags)
	dc.logConfig.RegisterFlags(flags)
	dc.poolerCfg.RegisterFlags(flags)

	root.AddCommand(
		newCheckCommand(dc),
		newConfigCommand(dc),
		newServeCommand(dc),
	)
	return root
}

// loadPooler reads the config file and builds a pooler from it.
func (dc *DBPoolCommand) loadPooler() (*pooler.Pooler, error) {
	return pooler.Load(dc.reg, dc.vc,
		pooler.WithLogger(dc.logger),
		pooler.WithFs(dc.fs),
		pooler.WithRetryPolicy(dc.poolerCfg.RetryPolicy()))
}
