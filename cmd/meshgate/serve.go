package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var (
		addr        string
		sync        bool
		gracePeriod time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mesh, err := loadMesh(flags, true)
			if err != nil {
				return err
			}

			if addr != "" {
				mesh.Config().Server.Addr = addr
			}

			if cmd.Flags().Changed("sync") {
				mesh.Config().Server.Sync = sync
			}

			gw, err := mesh.Gateway()
			if err != nil {
				_ = mesh.Close(context.Background())
				return err
			}

			errCh := make(chan error, 1)
			go func() { errCh <- gw.ListenAndServe() }()

			var serveErr error

			select {
			case serveErr = <-errCh:
			case <-cmd.Context().Done():
				mesh.Logger().Info("meshgate.shutdown.signal")
			}

			ctx, cancel := context.WithTimeout(context.Background(), gracePeriod)
			defer cancel()

			return errors.Join(serveErr, gw.Shutdown(ctx), mesh.Close(ctx))
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	cmd.Flags().BoolVar(&sync, "sync", false, "Process webhook messages before acknowledging them")
	cmd.Flags().DurationVar(&gracePeriod, "grace-period", 30*time.Second, "Time allowed for in-flight work on shutdown")

	return cmd
}
