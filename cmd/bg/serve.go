package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"bountygraph/internal/app"
	"bountygraph/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("BOUNTYGRAPH_JWT_SECRET is required for bearer auth")
			}
			logger := newLogger(os.Stderr)
			rt, err := app.Open(cmd.Context(), app.Options{
				Workspace: viper.GetString("workspace"),
				Logger:    logger,
				Telemetry: true,
			})
			if err != nil {
				return err
			}
			defer rt.Close(context.Background())

			if !cmd.Flags().Changed("addr") && rt.Config.Server.Addr != "" {
				addr = rt.Config.Server.Addr
			}
			if !cmd.Flags().Changed("base-path") && rt.Config.Server.BasePath != "" {
				basePath = rt.Config.Server.BasePath
			}
			handler, err := server.New(server.Config{
				Engine:   rt.Engine,
				BasePath: basePath,
				Auth:     server.AuthConfig{JWTSecret: secret, Logger: logger},
				Logger:   logger,
			})
			if err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(cmd.Context())
			servers := []*http.Server{{Addr: addr, Handler: handler}}
			if rt.Telemetry != nil {
				mux := chi.NewRouter()
				mux.Handle("/metrics", rt.Telemetry.Handler)
				servers = append(servers, &http.Server{Addr: rt.Config.Telemetry.MetricsAddr, Handler: mux})
				fmt.Printf("Serving metrics on http://%s/metrics\n", rt.Config.Telemetry.MetricsAddr)
			}
			for _, srv := range servers {
				srv := srv
				g.Go(func() error {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return fmt.Errorf("listen %s: %w", srv.Addr, err)
					}
					return nil
				})
			}
			g.Go(func() error {
				<-gctx.Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				var errs []error
				for _, srv := range servers {
					errs = append(errs, srv.Shutdown(ctx))
				}
				return errors.Join(errs...)
			})
			fmt.Printf("Serving BountyGraph API on http://%s%s (OpenAPI at %s/openapi.json)\n", addr, basePath, basePath)
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address (config server.addr when unset)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path (config server.base_path when unset)")
	return cmd
}
