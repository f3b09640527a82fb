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
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/multigres/dbpool/go/pooler"
	"github.com/multigres/dbpool/go/pools/connpool"
	"github.com/multigres/dbpool/go/pools/poolstats"
)

// checkConcurrency bounds how many aliases are checked at once.
const checkConcurrency = 8

// errCheckFailed is returned when at least one alias failed its check.
var errCheckFailed = errors.New("check failed")

type checkResult struct {
	Alias   string `yaml:"alias"`
	OK      bool   `yaml:"ok"`
	Elapsed string `yaml:"elapsed"`
	Error   string `yaml:"error,omitempty"`
}

type checkReport struct {
	Results []checkResult    `yaml:"results"`
	Pools   []connpool.Stats `yaml:"pools"`
}

func newCheckCommand(dc *DBPoolCommand) *cobra.Command {
	var (
		timeout time.Duration
		output  string
		metrics bool
	)
	cmd := &cobra.Command{
		Use:   "check [alias...]",
		Short: "Borrow and ping one connection per alias",
		Long: `check creates the pool of each alias (all configured aliases when none
are given), borrows a connection, pings it and returns it. It exits non-zero
if any alias fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "text" && output != "yaml" {
				return fmt.Errorf("unknown --output %q (want text or yaml)", output)
			}
			p, err := dc.loadPooler()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			defer func() {
				if err := p.Close(context.WithoutCancel(ctx)); err != nil {
					dc.logger.Warn("closing pools", "error", err)
				}
			}()

			aliases := args
			if len(aliases) == 0 {
				aliases = p.Aliases()
			}
			results := runChecks(ctx, p, aliases)

			w := cmd.OutOrStdout()
			if output == "yaml" {
				enc := yaml.NewEncoder(w)
				if err = enc.Encode(checkReport{Results: results, Pools: p.Stats()}); err == nil {
					err = enc.Close()
				}
			} else {
				err = writeCheckTable(w, results)
			}
			if err != nil {
				return err
			}
			if metrics {
				if err := poolstats.WriteText(w, "dbpool", p.Registry()); err != nil {
					return err
				}
			}

			for _, r := range results {
				if !r.OK {
					return errCheckFailed
				}
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Deadline for checking all aliases.")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format (text, yaml).")
	cmd.Flags().BoolVar(&metrics, "metrics", false, "Also print pool metrics in the Prometheus text format.")
	return cmd
}

// runChecks checks every alias concurrently. Results keep the order of
// aliases.
func runChecks(ctx context.Context, p *pooler.Pooler, aliases []string) []checkResult {
	results := make([]checkResult, len(aliases))
	var g errgroup.Group
	g.SetLimit(checkConcurrency)
	for i, alias := range aliases {
		g.Go(func() error {
			start := time.Now()
			err := checkAlias(ctx, p, alias)
			results[i] = checkResult{
				Alias:   alias,
				OK:      err == nil,
				Elapsed: time.Since(start).Round(time.Microsecond).String(),
			}
			if err != nil {
				results[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func checkAlias(ctx context.Context, p *pooler.Pooler, alias string) error {
	h, err := p.GetConnection(ctx, alias)
	if err != nil {
		return err
	}
	defer p.CloseConnection(h)
	return h.Conn().Ping(ctx)
}

func writeCheckTable(w io.Writer, results []checkResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ALIAS\tSTATUS\tELAPSED\tERROR")
	for _, r := range results {
		status := "ok"
		if !r.OK {
			status = "FAILED"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Alias, status, r.Elapsed, r.Error)
	}
	return tw.Flush()
}
