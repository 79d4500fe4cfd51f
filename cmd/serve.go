package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/pulse/internal/app"
	"github.com/desertthunder/pulse/internal/mirror"
	"github.com/desertthunder/pulse/internal/nowplaying"
	"github.com/desertthunder/pulse/internal/player"
	"github.com/desertthunder/pulse/internal/server"
	"github.com/desertthunder/pulse/internal/shared"
	"github.com/desertthunder/pulse/internal/store"
)

// serveCommand runs the sync server.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the site's document store to remote sessions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Listen host (overrides server.host)",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Listen port (overrides server.port)",
			},
			&cli.BoolFlag{
				Name:  "mpd",
				Usage: "Run a house player on the configured MPD daemon and broadcast it on /nowplaying",
			},
		},
		Action: r.Serve,
	}
}

// Serve runs the sync server until interrupted. With --mpd it also runs a house session whose
// now-playing state is published to /nowplaying clients, which may send transport commands back.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := *r.config
	if host := cmd.String("host"); host != "" {
		cfg.Server.Host = host
	}
	if port := cmd.Int("port"); port > 0 {
		cfg.Server.Port = port
	}
	if cfg.Admin.Token == "" {
		r.logger.Warn("admin.token is empty, remote sessions can only act as visitors")
	}

	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	local := store.NewLocal(db, store.Rules{AdminEmail: cfg.Admin.Email}, r.logger)
	defer local.Close()

	surface := nowplaying.NewWSSurface(r.logger)
	srv := server.New(&cfg, local, surface, r.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(gctx) })

	if cmd.Bool("mpd") {
		device, err := player.NewMPDDevice(cfg.Player, r.logger)
		if err != nil {
			stop()
			g.Wait()
			return fmt.Errorf("failed to start house player: %w", err)
		}
		defer device.Close()

		marker := mirror.NewMemoryMarker()
		marker.MarkCounted()
		session := app.NewSession(app.Options{
			Config:  &cfg,
			Store:   local,
			Device:  device,
			Marker:  marker,
			IsAdmin: func(context.Context) bool { return true },
			Hosts:   []any{surface},
		}, r.logger)

		g.Go(func() error { return device.Run(gctx) })
		g.Go(func() error {
			if err := session.Start(shared.WithIdentity(gctx, cfg.Admin.Email)); err != nil {
				return fmt.Errorf("failed to start house session: %w", err)
			}
			<-gctx.Done()
			session.Stop()
			return nil
		})
	}

	r.logger.Info("serving", "addr", cfg.Server.Addr(), "mpd", cmd.Bool("mpd"))
	return g.Wait()
}
