package main

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/pulse/internal/app"
	"github.com/desertthunder/pulse/internal/player"
	"github.com/desertthunder/pulse/internal/shared"
	"github.com/desertthunder/pulse/internal/ui"
)

// playCommand returns the player console command.
func playCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "play",
		Aliases: []string{"tui", "ui"},
		Usage:   "Open the player console, with audio through the configured MPD daemon",
		Flags:   storeFlags(),
		Action:  r.Play,
	}
}

// Play launches the interactive player console.
func (r *Runner) Play(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	path := r.config.Log.File
	if path == "" {
		path = "./tmp/pulse.log"
	}
	fileLogger, err := shared.NewFileLogger(path)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	shared.SetLogLevel(fileLogger, r.config.Log.ParsedLevel())
	r.SetLogger(fileLogger)

	b, err := r.openBackend(ctx, cmd)
	if err != nil {
		return err
	}
	defer b.close()

	device, err := player.NewMPDDevice(r.config.Player, r.logger)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	defer device.Close()

	session := app.NewSession(app.Options{
		Config:  r.config,
		Store:   b.store,
		Device:  device,
		IsAdmin: b.isAdmin,
	}, r.logger)

	runCtx, cancel := context.WithCancel(b.ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return device.Run(gctx) })

	if err := session.Start(gctx); err != nil {
		cancel()
		g.Wait()
		return fmt.Errorf("failed to start session: %w", err)
	}

	model := ui.NewModel(gctx, session)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(gctx))
	_, runErr := p.Run()

	model.Close()
	if err := session.Player.Pause(context.WithoutCancel(gctx)); err != nil {
		r.logger.Warn("failed to pause on exit", "error", err)
	}
	session.Stop()
	cancel()

	if err := g.Wait(); err != nil {
		return fmt.Errorf("player device stopped: %w", err)
	}
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("error running TUI: %w", runErr)
	}
	return nil
}
