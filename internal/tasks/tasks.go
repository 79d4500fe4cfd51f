package tasks

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bogem/id3v2"
	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/pulse/internal/models"
	"github.com/desertthunder/pulse/internal/shared"
)

// DefaultRateLimit is the default number of tracks added per second.
const DefaultRateLimit = 5.0

// Manifest is a TOML track list.
//
//	folder = "Singles"
//	base_url = "https://cdn.example.com/music"
//
//	[[track]]
//	name = "Opener"
//	media = "opener.mp3"
type Manifest struct {
	Folder  string          `toml:"folder"`
	BaseURL string          `toml:"base_url"`
	Tracks  []ManifestTrack `toml:"track"`
}

// ManifestTrack is one manifest entry. Folder defaults to the manifest's folder.
type ManifestTrack struct {
	Name   string `toml:"name"`
	Folder string `toml:"folder"`
	Media  string `toml:"media"`
	Image  string `toml:"image"`
}

// LoadManifest reads and resolves the manifest at path.
func LoadManifest(path string) ([]models.Track, error) {
	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, fmt.Errorf("%w: failed to parse manifest: %v", shared.ErrInvalidInput, err)
	}
	return m.Resolve()
}

// Resolve turns the manifest into tracks, applying the default folder and base URL.
func (m Manifest) Resolve() ([]models.Track, error) {
	tracks := make([]models.Track, 0, len(m.Tracks))
	for i, entry := range m.Tracks {
		media, err := resolveMedia(m.BaseURL, entry.Media)
		if err != nil {
			return nil, fmt.Errorf("track %d (%s): %w", i+1, entry.Name, err)
		}

		folder := strings.TrimSpace(entry.Folder)
		if folder == "" {
			folder = strings.TrimSpace(m.Folder)
		}

		tracks = append(tracks, models.Track{
			Name:        strings.TrimSpace(entry.Name),
			FolderLabel: folder,
			MediaURL:    media,
			ImageURL:    strings.TrimSpace(entry.Image),
		})
	}
	return tracks, nil
}

// resolveMedia returns media unchanged when it is an absolute URL, otherwise joins it onto base.
func resolveMedia(base, media string) (string, error) {
	media = strings.TrimSpace(media)
	if media == "" {
		return "", fmt.Errorf("%w: media", shared.ErrMissingArgument)
	}
	if u, err := url.Parse(media); err == nil && u.IsAbs() {
		return media, nil
	}
	if base == "" {
		return "", fmt.Errorf("%w: relative media %q needs a base_url", shared.ErrInvalidInput, media)
	}

	segments := strings.Split(filepath.ToSlash(media), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.Join(segments, "/"), nil
}

// ScanOpts configures [ScanDirectory].
type ScanOpts struct {
	// BaseURL is prefixed to each file's path relative to the scanned directory.
	// When empty, media URLs are absolute file:// URLs.
	BaseURL string
	// Folder is used when a file has no album tag and sits directly in the scanned directory.
	Folder string
}

// ScanDirectory walks dir for MP3 files and builds a track from each file's ID3 tags.
func ScanDirectory(ctx context.Context, dir string, opts ScanOpts, progress chan<- ProgressUpdate, logger *log.Logger) ([]models.Track, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	var tracks []models.Track
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".mp3") {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		track := trackFromFile(path, rel, opts, logger)
		tracks = append(tracks, track)
		sendProgress(progress, scanUpdate(len(tracks), rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	return tracks, nil
}

func trackFromFile(path, rel string, opts ScanOpts, logger *log.Logger) models.Track {
	stem := strings.TrimSuffix(filepath.Base(rel), filepath.Ext(rel))
	folder := filepath.Base(filepath.Dir(rel))
	if folder == "." {
		folder = opts.Folder
	}
	track := models.Track{Name: stem, FolderLabel: folder}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		logger.Warn("failed to read tags, using file name", "file", rel, "error", err)
	} else {
		if title := strings.TrimSpace(tag.Title()); title != "" {
			track.Name = title
		}
		if album := strings.TrimSpace(tag.Album()); album != "" {
			track.FolderLabel = album
		}
		tag.Close()
	}

	if opts.BaseURL != "" {
		track.MediaURL, _ = resolveMedia(opts.BaseURL, rel)
	} else {
		track.MediaURL = (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
	}
	return track
}

// TrackAdder adds a track to the library and returns its id.
type TrackAdder interface {
	AddTrack(ctx context.Context, t models.Track) (string, error)
}

// TrackImportResult is the outcome for one track.
type TrackImportResult struct {
	Track   models.Track
	ID      string // Assigned id when added
	Skipped bool   // Media URL already in the library
	Error   error
}

// ImportResult summarizes an import.
type ImportResult struct {
	Total   int
	Added   int
	Skipped int
	Failed  int
	Results []TrackImportResult
}

// Importer adds tracks to the library at a bounded rate.
type Importer struct {
	adder   TrackAdder
	limiter *rate.Limiter
	logger  *log.Logger
}

// NewImporter creates an Importer adding at most perSecond tracks per second.
func NewImporter(adder TrackAdder, perSecond float64, logger *log.Logger) *Importer {
	if perSecond <= 0 {
		perSecond = DefaultRateLimit
	}
	return &Importer{
		adder:   adder,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		logger:  shared.WithLogger(logger, "component", "importer"),
	}
}

// Import adds tracks in order, skipping any whose media URL is already in existing or earlier in tracks.
//
// The returned result is complete up to the point where the import stopped, also when an error is returned.
func (i *Importer) Import(ctx context.Context, progress chan<- ProgressUpdate, tracks, existing []models.Track) (*ImportResult, error) {
	seen := make(map[string]struct{}, len(existing)+len(tracks))
	for _, t := range existing {
		seen[t.MediaURL] = struct{}{}
	}

	result := &ImportResult{Total: len(tracks), Results: make([]TrackImportResult, 0, len(tracks))}
	for n, track := range tracks {
		step := n + 1

		if _, dup := seen[track.MediaURL]; dup && track.MediaURL != "" {
			result.Skipped++
			result.Results = append(result.Results, TrackImportResult{Track: track, Skipped: true})
			sendProgress(progress, skipTrackUpdate(step, len(tracks), track))
			continue
		}

		if err := i.limiter.Wait(ctx); err != nil {
			return result, fmt.Errorf("import interrupted: %w", err)
		}

		id, err := i.adder.AddTrack(ctx, track)
		result.Results = append(result.Results, TrackImportResult{Track: track, ID: id, Error: err})
		if err != nil {
			result.Failed++
			sendProgress(progress, failedTrackUpdate(step, len(tracks), track, err))
			if shared.IsPermission(err) || errors.Is(err, context.Canceled) {
				return result, fmt.Errorf("import stopped: %w", err)
			}
			i.logger.Warn("failed to add track", "track", track.Name, "error", err)
			continue
		}

		seen[track.MediaURL] = struct{}{}
		result.Added++
		sendProgress(progress, addTrackUpdate(step, len(tracks), track))
	}

	i.logger.Info("import finished", "added", result.Added, "skipped", result.Skipped, "failed", result.Failed)
	return result, nil
}
