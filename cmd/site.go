package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/pulse/internal/models"
	"github.com/desertthunder/pulse/internal/shared"
)

// settingsCommand handles the site settings record.
func settingsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "Show or change site settings",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show the effective settings",
				Flags: append(storeFlags(),
					&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
					&cli.BoolFlag{Name: "pretty", Usage: "Pretty-print output", Value: true},
				),
				Action: r.SettingsShow,
			},
			{
				Name:  "set",
				Usage: "Merge the given fields into the stored settings",
				Flags: append(storeFlags(),
					&cli.StringFlag{Name: "welcome", Usage: "Welcome text"},
					&cli.BoolFlag{Name: "hero-mode", Usage: "Show the hero media"},
					&cli.StringFlag{Name: "hero-media", Usage: "Hero image or video URL"},
					&cli.StringFlag{Name: "hero-type", Usage: "Hero media type (image or video)"},
					&cli.StringFlag{Name: "fit", Usage: "Background fit"},
					&cli.StringFlag{Name: "filter", Usage: "Background filter"},
					&cli.StringFlag{Name: "animation", Usage: "Entrance animation"},
					&cli.BoolFlag{Name: "show-visitors", Usage: "Show the visitor counter"},
					&cli.StringFlag{Name: "default-track", Usage: "Hero track id"},
				),
				Action: r.SettingsSet,
			},
		},
	}
}

// pagesCommand handles custom pages.
func pagesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "pages",
		Usage: "Manage custom pages",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List custom pages",
				Flags: append(storeFlags(),
					&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
					&cli.BoolFlag{Name: "pretty", Usage: "Pretty-print output", Value: true},
				),
				Action: r.PagesList,
			},
			{
				Name:  "publish",
				Usage: "Create or replace a page from an HTML file",
				Flags: append(storeFlags(),
					&cli.StringFlag{Name: "id", Usage: "Page id", Required: true},
					&cli.StringFlag{Name: "title", Usage: "Page title", Required: true},
					&cli.StringFlag{Name: "file", Usage: "Path to the page HTML", Required: true},
				),
				Action: r.PagesPublish,
			},
			{
				Name:      "delete",
				Aliases:   []string{"rm"},
				Usage:     "Delete a page",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags:     storeFlags(),
				Action:    r.PagesDelete,
			},
		},
	}
}

// SettingsShow prints the stored settings merged over the defaults.
func (r *Runner) SettingsShow(ctx context.Context, cmd *cli.Command) error {
	b, err := r.openBackend(ctx, cmd)
	if err != nil {
		return err
	}
	defer b.close()

	m, err := r.loadMirror(b, models.SettingsCollection)
	if err != nil {
		return err
	}
	defer m.Deactivate()

	s := m.Settings()
	if cmd.Bool("json") {
		return r.writeJSON(s, cmd.Bool("pretty"))
	}

	r.writePlainHeader("Settings")
	r.writePlain("Welcome:       %s\n", s.WelcomeText)
	r.writePlain("Hero mode:     %t\n", s.HeroMode)
	r.writePlain("Hero media:    %s (%s)\n", s.HeroMediaURL, s.HeroMediaType)
	r.writePlain("Background:    %s, %s\n", s.BackgroundFit, s.BackgroundFilter)
	r.writePlain("Animation:     %s\n", s.Animation)
	r.writePlain("Visitors:      %d (shown: %t)\n", s.VisitorCount, s.ShowVisitorCount)
	r.writePlain("Default track: %s\n", s.DefaultTrackID)
	return nil
}

// settingsPatch builds a patch from the flags the user set.
func settingsPatch(cmd *cli.Command) models.SettingsPatch {
	var p models.SettingsPatch
	str := func(flag string, dst **string) {
		if cmd.IsSet(flag) {
			v := cmd.String(flag)
			*dst = &v
		}
	}
	boolean := func(flag string, dst **bool) {
		if cmd.IsSet(flag) {
			v := cmd.Bool(flag)
			*dst = &v
		}
	}

	str("welcome", &p.WelcomeText)
	boolean("hero-mode", &p.HeroMode)
	str("hero-media", &p.HeroMediaURL)
	str("hero-type", &p.HeroMediaType)
	str("fit", &p.BackgroundFit)
	str("filter", &p.BackgroundFilter)
	str("animation", &p.Animation)
	boolean("show-visitors", &p.ShowVisitorCount)
	str("default-track", &p.DefaultTrackID)
	return p
}

// SettingsSet merges the flagged fields into the stored settings.
func (r *Runner) SettingsSet(ctx context.Context, cmd *cli.Command) error {
	patch := settingsPatch(cmd)
	if patch.Empty() {
		return fmt.Errorf("%w: no settings given", shared.ErrMissingArgument)
	}

	b, err := r.openBackend(ctx, cmd)
	if err != nil {
		return err
	}
	defer b.close()

	if err := r.newCommunity(b).SaveSettings(b.ctx, patch); err != nil {
		return err
	}
	r.writePlain("✓ Settings saved\n")
	return nil
}

// PagesList prints the custom pages.
func (r *Runner) PagesList(ctx context.Context, cmd *cli.Command) error {
	b, err := r.openBackend(ctx, cmd)
	if err != nil {
		return err
	}
	defer b.close()

	m, err := r.loadMirror(b, models.PagesCollection)
	if err != nil {
		return err
	}
	defer m.Deactivate()

	pages := m.Pages()
	if cmd.Bool("json") {
		return r.writeJSON(pages, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Pages: %d", len(pages)))
	for _, p := range pages {
		r.writePlain("  %s  %s (%d bytes)\n", p.ID, p.Title, len(p.HTMLContent))
	}
	return nil
}

// PagesPublish creates or replaces a page.
func (r *Runner) PagesPublish(ctx context.Context, cmd *cli.Command) error {
	html, err := os.ReadFile(cmd.String("file"))
	if err != nil {
		return fmt.Errorf("failed to read page: %w", err)
	}

	b, err := r.openBackend(ctx, cmd)
	if err != nil {
		return err
	}
	defer b.close()

	id := cmd.String("id")
	if err := r.newCommunity(b).PublishPage(b.ctx, id, cmd.String("title"), string(html)); err != nil {
		return err
	}
	r.writePlain("✓ Published %s\n", id)
	return nil
}

// PagesDelete removes a page.
func (r *Runner) PagesDelete(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: page id", shared.ErrMissingArgument)
	}

	b, err := r.openBackend(ctx, cmd)
	if err != nil {
		return err
	}
	defer b.close()

	if err := r.newCommunity(b).DeletePage(b.ctx, id); err != nil {
		return err
	}
	r.writePlain("✓ Deleted %s\n", id)
	return nil
}
