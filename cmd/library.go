package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/pulse/internal/community"
	"github.com/desertthunder/pulse/internal/counter"
	"github.com/desertthunder/pulse/internal/formatter"
	"github.com/desertthunder/pulse/internal/mirror"
	"github.com/desertthunder/pulse/internal/models"
	"github.com/desertthunder/pulse/internal/shared"
	"github.com/desertthunder/pulse/internal/tasks"
)

// libraryCommand handles song library operations.
func libraryCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "library",
		Aliases: []string{"lib", "songs"},
		Usage:   "Manage the song library",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List songs grouped by folder",
				Flags: append(storeFlags(),
					&cli.StringFlag{
						Name:  "folder",
						Usage: "Only list one folder",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				),
				Action: r.LibraryList,
			},
			{
				Name:  "add",
				Usage: "Add a song",
				Flags: append(storeFlags(),
					&cli.StringFlag{Name: "name", Usage: "Track name", Required: true},
					&cli.StringFlag{Name: "folder", Usage: "Folder label", Required: true},
					&cli.StringFlag{Name: "url", Usage: "Media URL", Required: true},
					&cli.StringFlag{Name: "image", Usage: "Artwork URL"},
				),
				Action: r.LibraryAdd,
			},
			{
				Name:      "delete",
				Aliases:   []string{"rm"},
				Usage:     "Delete a song",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags:     storeFlags(),
				Action:    r.LibraryDelete,
			},
			{
				Name:      "default",
				Usage:     "Make a song the hero track cued for new sessions",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags:     storeFlags(),
				Action:    r.LibraryDefault,
			},
			{
				Name:  "import",
				Usage: "Import songs from a TOML manifest or a directory of MP3 files",
				Flags: append(storeFlags(),
					&cli.StringFlag{Name: "manifest", Usage: "Path to a TOML manifest"},
					&cli.StringFlag{Name: "dir", Usage: "Directory to scan for .mp3 files"},
					&cli.StringFlag{Name: "base-url", Usage: "URL the scanned directory is served from"},
					&cli.StringFlag{Name: "folder", Usage: "Folder for scanned files without a tag or subdirectory"},
					&cli.FloatFlag{Name: "rate", Usage: "Songs added per second", Value: tasks.DefaultRateLimit},
					&cli.BoolFlag{Name: "dry-run", Usage: "Print the tracks without adding them"},
				),
				Action: r.LibraryImport,
			},
			{
				Name:  "export",
				Usage: "Export the library as CSV, Markdown, M3U, text or JSON",
				Flags: append(storeFlags(),
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Export format (csv, markdown, m3u, text, json)",
						Value:   string(formatter.FormatM3U),
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path (default: stdout)",
					},
					&cli.BoolFlag{
						Name:  "bulk",
						Usage: "Write one file per folder plus a manifest into --dir",
					},
					&cli.StringFlag{Name: "dir", Usage: "Output directory for --bulk"},
					&cli.IntFlag{Name: "workers", Usage: "Concurrent folder exports for --bulk", Value: 4},
					&cli.BoolFlag{Name: "artwork", Usage: "Download folder covers for --bulk Markdown exports"},
				),
				Action: r.LibraryExport,
			},
		},
	}
}

// newCommunity builds the write service over b.
func (r *Runner) newCommunity(b *backend) *community.Service {
	return community.New(b.store, counter.New(b.store, r.logger), community.Options{
		SiteName: r.config.Site.Artist,
		IsAdmin:  b.isAdmin,
	}, r.logger)
}

// LibraryList prints the songs grouped by folder.
func (r *Runner) LibraryList(ctx context.Context, cmd *cli.Command) error {
	b, err := r.openBackend(ctx, cmd)
	if err != nil {
		return err
	}
	defer b.close()

	m, err := r.loadMirror(b, models.SongsCollection, models.SettingsCollection)
	if err != nil {
		return err
	}
	defer m.Deactivate()

	folders := m.Folders()
	if only := cmd.String("folder"); only != "" {
		folders = folders[:0]
		if tracks := m.Folder(only); len(tracks) > 0 {
			folders = append(folders, mirror.Folder{Label: only, Tracks: tracks})
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(folders, cmd.Bool("pretty"))
	}

	hero := m.Settings().DefaultTrackID
	r.writePlainHeader(fmt.Sprintf("%s: %d songs", r.config.Site.Artist, len(m.Songs())))
	for _, f := range folders {
		r.writePlainln("▸ %s (%d)", f.Label, len(f.Tracks))
		for _, t := range f.Tracks {
			marker := " "
			if t.ID == hero {
				marker = "★"
			}
			r.writePlain("  %s %s  %s\n", marker, t.ID, t.Name)
		}
	}
	return nil
}

// LibraryAdd adds one song.
func (r *Runner) LibraryAdd(ctx context.Context, cmd *cli.Command) error {
	b, err := r.openBackend(ctx, cmd)
	if err != nil {
		return err
	}
	defer b.close()

	id, err := r.newCommunity(b).AddTrack(b.ctx, models.Track{
		Name:        cmd.String("name"),
		FolderLabel: cmd.String("folder"),
		MediaURL:    cmd.String("url"),
		ImageURL:    cmd.String("image"),
	})
	if err != nil {
		return err
	}
	r.writePlain("✓ Added %s\n", id)
	return nil
}

// LibraryDelete removes one song.
func (r *Runner) LibraryDelete(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: song id", shared.ErrMissingArgument)
	}

	b, err := r.openBackend(ctx, cmd)
	if err != nil {
		return err
	}
	defer b.close()

	if err := r.newCommunity(b).DeleteTrack(b.ctx, id); err != nil {
		return err
	}
	r.writePlain("✓ Deleted %s\n", id)
	return nil
}

// LibraryDefault sets the hero track.
func (r *Runner) LibraryDefault(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: song id", shared.ErrMissingArgument)
	}

	b, err := r.openBackend(ctx, cmd)
	if err != nil {
		return err
	}
	defer b.close()

	if err := r.newCommunity(b).SetDefaultTrack(b.ctx, id); err != nil {
		return err
	}
	r.writePlain("✓ Hero track set to %s\n", id)
	return nil
}

// LibraryImport reads tracks from a manifest or a directory scan and adds the new ones.
func (r *Runner) LibraryImport(ctx context.Context, cmd *cli.Command) error {
	manifest, dir := cmd.String("manifest"), cmd.String("dir")
	switch {
	case manifest == "" && dir == "":
		return fmt.Errorf("%w: either --manifest or --dir must be provided", shared.ErrMissingArgument)
	case manifest != "" && dir != "":
		return fmt.Errorf("%w: cannot specify both --manifest and --dir", shared.ErrInvalidArgument)
	}

	progress := make(chan tasks.ProgressUpdate, 16)
	done := r.printProgress(progress)
	finish := sync.OnceFunc(func() {
		close(progress)
		<-done
	})
	defer finish()

	var (
		tracks []models.Track
		err    error
	)
	if manifest != "" {
		tracks, err = tasks.LoadManifest(manifest)
	} else {
		tracks, err = tasks.ScanDirectory(ctx, dir, tasks.ScanOpts{
			BaseURL: cmd.String("base-url"),
			Folder:  cmd.String("folder"),
		}, progress, r.logger)
	}
	if err != nil {
		return err
	}

	if cmd.Bool("dry-run") {
		finish()
		for i, t := range tracks {
			r.writePlain("%d. [%s] %s  %s\n", i+1, t.FolderLabel, t.Name, t.MediaURL)
		}
		return nil
	}

	b, err := r.openBackend(ctx, cmd)
	if err != nil {
		return err
	}
	defer b.close()

	m, err := r.loadMirror(b, models.SongsCollection)
	if err != nil {
		return err
	}
	existing := m.Songs()
	m.Deactivate()

	importer := tasks.NewImporter(r.newCommunity(b), cmd.Float("rate"), r.logger)
	result, err := importer.Import(b.ctx, progress, tracks, existing)
	finish()
	if result != nil {
		r.writePlainln("Imported %d of %d (skipped %d, failed %d)", result.Added, result.Total, result.Skipped, result.Failed)
		for _, res := range result.Results {
			if res.Error != nil {
				r.writePlain("  ✗ %s: %v\n", res.Track.Name, res.Error)
			}
		}
	}
	return err
}

// LibraryExport writes the library in the chosen format.
func (r *Runner) LibraryExport(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	b, err := r.openBackend(ctx, cmd)
	if err != nil {
		return err
	}
	defer b.close()

	m, err := r.loadMirror(b, models.SongsCollection)
	if err != nil {
		return err
	}
	songs := m.Songs()
	m.Deactivate()

	if cmd.Bool("bulk") {
		return r.bulkExport(ctx, cmd, format, songs)
	}

	lib := formatter.Library{
		Title:    r.config.Site.Artist,
		Artist:   r.config.Site.Artist,
		Fallback: r.config.Site.DefaultFolder,
		Tracks:   songs,
	}

	if path := cmd.String("output"); path != "" {
		if err := formatter.WriteExport(format, lib, path); err != nil {
			return err
		}
		r.writePlain("✓ Exported %d songs to %s\n", len(songs), path)
		return nil
	}

	data, err := formatter.Render(format, lib)
	if err != nil {
		return err
	}
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) bulkExport(ctx context.Context, cmd *cli.Command, format formatter.Format, songs []models.Track) error {
	progress := make(chan tasks.ProgressUpdate, 16)
	done := r.printProgress(progress)

	result, err := tasks.ExportLibrary(ctx, progress, songs, tasks.ExportOpts{
		Format:     format,
		OutputDir:  cmd.String("dir"),
		Title:      r.config.Site.Artist,
		Artist:     r.config.Site.Artist,
		Fallback:   r.config.Site.DefaultFolder,
		NumWorkers: cmd.Int("workers"),
		Artwork:    cmd.Bool("artwork"),
	}, r.logger)
	close(progress)
	<-done
	if err != nil {
		return err
	}

	r.writePlainln("✓ Exported %d songs in %d folders to %s", result.TotalTracks, result.TotalFolders, result.OutputDirectory)
	if result.FailedExports > 0 {
		r.writePlain("  %d folders failed, see %s\n", result.FailedExports, result.ManifestPath)
	}
	return nil
}

// printProgress writes updates from progress until it is closed.
func (r *Runner) printProgress(progress <-chan tasks.ProgressUpdate) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			r.logger.Debug("progress", "phase", update.Phase, "step", update.Step, "total", update.Total)
			r.writePlain("%s\n", update.Message)
		}
	}()
	return done
}
