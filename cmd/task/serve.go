package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/RaygunnerZA/property-task-pro-sub000/internal/composer"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/config"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/webapi"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP and WebSocket API.

The log level follows edits to the config file without a restart.

Examples:
  task serve
  task serve --listen 127.0.0.1:9000`,
		Run: func(cmd *cobra.Command, args []string) {
			if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
				a.cfg.Listen = listen
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			rt, err := a.open()
			if err != nil {
				fail(err)
			}
			defer rt.close()

			svc := composer.New(composer.Options{
				DB:         rt.db,
				Source:     rt.source,
				Uploader:   rt.uploads,
				StagingDir: a.cfg.StagingDir,
				Logger:     a.logs.For("composer"),
			})
			server := webapi.New(webapi.Config{
				Addr:           a.cfg.Listen,
				DB:             rt.db,
				Composer:       svc,
				Events:         rt.events,
				Uploads:        rt.uploads,
				FilesDir:       a.cfg.UploadsDir,
				PublicURL:      a.cfg.PublicURL,
				AllowedOrigins: a.cfg.AllowedOrigins,
				Logger:         a.logs.For("webapi"),
			})

			logger := a.logs.For("config")
			go func() {
				err := config.Watch(ctx, a.configPath, func(c *config.Config) {
					a.logs.SetLevel(c.Log.Level)
					logger.Info("Reloaded config", "log_level", c.Log.Level)
				}, func(err error) {
					logger.Warn("Config reload failed", "error", err)
				})
				if err != nil {
					logger.Warn("Not watching config", "error", err)
				}
			}()

			if err := server.Start(ctx); err != nil {
				fail(err)
			}
		},
	}
	cmd.Flags().String("listen", "", "Listen address (overrides config)")
	return cmd
}
