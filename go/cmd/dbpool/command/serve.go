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
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/multigres/dbpool/go/pools/poolstats"
)

func newServeCommand(dc *DBPoolCommand) *cobra.Command {
	var (
		addr     string
		prefill  bool
		shutdown time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Hold the configured pools open and export their metrics",
		Long: `serve creates the pool of every configured alias and serves pool
statistics in the Prometheus format on /metrics until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := dc.loadPooler()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if prefill {
				for _, alias := range p.Aliases() {
					if _, err := p.Pool(ctx, alias); err != nil {
						dc.logger.ErrorContext(ctx, "creating pool failed", "alias", alias, "error", err)
					}
				}
			}

			handler, err := poolstats.Handler("dbpool", p.Registry())
			if err != nil {
				return err
			}
			mux := http.NewServeMux()
			mux.Handle("/metrics", handler)

			lis, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			dc.logger.InfoContext(ctx, "serving pool metrics", "addr", lis.Addr().String())

			errc := make(chan error, 1)
			go func() { errc <- srv.Serve(lis) }()

			select {
			case err = <-errc:
			case <-ctx.Done():
			}

			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdown)
			defer cancel()
			shutdownErr := srv.Shutdown(sctx)
			closeErr := p.Close(sctx)
			if errors.Is(err, http.ErrServerClosed) {
				err = nil
			}
			return errors.Join(err, shutdownErr, closeErr)
		},
	}
	cmd.Flags().StringVar(&addr, "metrics-addr", "127.0.0.1:9187", "Address to serve /metrics on.")
	cmd.Flags().BoolVar(&prefill, "prefill", true, "Create every configured pool at startup.")
	cmd.Flags().DurationVar(&shutdown, "shutdown-timeout", 10*time.Second, "Time allowed for returning connections on exit.")
	return cmd
}
