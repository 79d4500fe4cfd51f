package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/charmbracelet/log"
	"github.com/samber/lo"
	"golang.org/x/time/rate"

	"github.com/desertthunder/pulse/internal/formatter"
	"github.com/desertthunder/pulse/internal/models"
	"github.com/desertthunder/pulse/internal/shared"
)

// ExportOpts contains configuration for library exports.
type ExportOpts struct {
	Format     formatter.Format // Export format
	OutputDir  string           // Base output directory (default: library_export_{epoch})
	Title      string           // Library title
	Artist     string           // Artist shown in Markdown and M3U output
	Fallback   string           // Folder label for tracks without one
	NumWorkers int              // Concurrent workers (default: 4)
	RateLimit  float64          // Artwork downloads per second (default: 5)
	Artwork    bool             // Download folder cover art for Markdown exports
}

// FolderExportResult is the outcome for one folder.
type FolderExportResult struct {
	Folder  string   `json:"folder"`
	Tracks  int      `json:"tracks"`
	Files   []string `json:"files"`
	Success bool     `json:"success"`
	Error   string   `json:"error,omitempty"`
}

// ExportResult summarizes a library export.
type ExportResult struct {
	Format            formatter.Format     `json:"format"`
	OutputDirectory   string               `json:"outputDirectory"`
	LibraryFile       string               `json:"libraryFile"`
	TotalTracks       int                  `json:"totalTracks"`
	TotalFolders      int                  `json:"totalFolders"`
	SuccessfulExports int                  `json:"successfulExports"`
	FailedExports     int                  `json:"failedExports"`
	Results           []FolderExportResult `json:"results"`
	ExportedAt        time.Time            `json:"exportedAt"`
	ManifestPath      string               `json:"-"`
}

type folderJob struct {
	folder string
	slug   string
	tracks []models.Track
}

// ExportLibrary writes tracks as one library file plus one file per folder and a manifest.
//
// Folder failures are recorded in the result and do not stop the export.
func ExportLibrary(ctx context.Context, prog chan<- ProgressUpdate, tracks []models.Track, opts ExportOpts, logger *log.Logger) (*ExportResult, error) {
	if opts.Format == "" {
		opts.Format = formatter.FormatJSON
	}
	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("library_export_%d", time.Now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 4
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5.0
	}
	if opts.Title == "" {
		opts.Title = "Library"
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	lib := formatter.Library{Title: opts.Title, Artist: opts.Artist, Fallback: opts.Fallback, Tracks: tracks}
	libraryFile := filepath.Join(opts.OutputDir, "library."+opts.Format.Extension())
	if err := formatter.WriteExport(opts.Format, lib, libraryFile); err != nil {
		return nil, err
	}
	sendProgress(prog, libraryExportUpdate(libraryFile, len(tracks)))

	jobs := folderJobs(tracks, opts.Fallback)
	result := &ExportResult{
		Format:          opts.Format,
		OutputDirectory: opts.OutputDir,
		LibraryFile:     libraryFile,
		TotalTracks:     len(tracks),
		TotalFolders:    len(jobs),
		Results:         make([]FolderExportResult, 0, len(jobs)),
		ExportedAt:      time.Now().UTC(),
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	queue := make(chan folderJob, len(jobs))
	results := make(chan FolderExportResult, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go exportWorker(ctx, &wg, queue, results, limiter, opts, logger)
	}

	for i, job := range jobs {
		queue <- job
		sendProgress(prog, exportingFolderUpdate(i+1, len(jobs), job.folder))
	}
	close(queue)

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		result.Results = append(result.Results, res)
		if res.Success {
			result.SuccessfulExports++
			sendProgress(prog, exportCompletedUpdate(completed, len(jobs), res.Folder, len(res.Files)))
		} else {
			result.FailedExports++
			sendProgress(prog, exportFailedUpdate(completed, len(jobs), res.Folder, fmt.Errorf("%s", res.Error)))
		}
	}

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("export interrupted: %w", err)
	}

	manifestPath := filepath.Join(opts.OutputDir, "export_manifest.json")
	data, err := shared.MarshalJSON(result, true)
	if err != nil {
		return result, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(manifestPath, data, 0644); err != nil {
		return result, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = manifestPath
	return result, nil
}

// folderJobs groups tracks by folder in first-seen order, giving each folder a unique file slug.
func folderJobs(tracks []models.Track, fallback string) []folderJob {
	label := func(t models.Track) string { return models.FolderOf(t, fallback) }
	groups := lo.GroupBy(tracks, label)
	order := lo.Uniq(lo.Map(tracks, func(t models.Track, _ int) string { return label(t) }))

	used := make(map[string]int, len(order))
	jobs := make([]folderJob, 0, len(order))
	for _, folder := range order {
		slug := slugify(folder)
		used[slug]++
		if n := used[slug]; n > 1 {
			slug = fmt.Sprintf("%s-%d", slug, n)
		}
		jobs = append(jobs, folderJob{folder: folder, slug: slug, tracks: groups[folder]})
	}
	return jobs
}

func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	if slug := strings.TrimSuffix(b.String(), "-"); slug != "" {
		return slug
	}
	return "folder"
}

// exportWorker exports folders from the jobs channel until it closes or ctx ends.
func exportWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	jobs <-chan folderJob,
	results chan<- FolderExportResult,
	limiter *rate.Limiter,
	opts ExportOpts,
	logger *log.Logger,
) {
	defer wg.Done()

	for job := range jobs {
		if ctx.Err() != nil {
			return
		}
		results <- exportFolder(ctx, job, limiter, opts, logger)
	}
}

// exportFolder writes one folder. Markdown exports get their own directory with an optional cover.
func exportFolder(ctx context.Context, j folderJob, limiter *rate.Limiter, opts ExportOpts, logger *log.Logger) FolderExportResult {
	result := FolderExportResult{Folder: j.folder, Tracks: len(j.tracks), Files: []string{}}
	lib := formatter.Library{Title: j.folder, Artist: opts.Artist, Fallback: opts.Fallback, Tracks: j.tracks}

	if opts.Format != formatter.FormatMarkdown {
		path := filepath.Join(opts.OutputDir, j.slug+"."+opts.Format.Extension())
		if err := formatter.WriteExport(opts.Format, lib, path); err != nil {
			result.Error = err.Error()
			return result
		}
		result.Files = append(result.Files, path)
		result.Success = true
		return result
	}

	dir := filepath.Join(opts.OutputDir, j.slug)
	if err := os.MkdirAll(dir, 0755); err != nil {
		result.Error = fmt.Sprintf("failed to create directory: %v", err)
		return result
	}

	var cover string
	if opts.Artwork && len(j.tracks) > 0 && j.tracks[0].ImageURL != "" {
		if path, err := downloadCover(ctx, limiter, j.tracks[0].ImageURL, dir); err != nil {
			logger.Warn("failed to download folder cover", "folder", j.folder, "error", err)
		} else {
			cover = filepath.Base(path)
			result.Files = append(result.Files, path)
		}
	}

	data, err := formatter.ExportToMarkdown(lib, cover)
	if err != nil {
		result.Error = fmt.Sprintf("markdown export failed: %v", err)
		return result
	}
	path := filepath.Join(dir, "README.md")
	if err := os.WriteFile(path, data, 0644); err != nil {
		result.Error = fmt.Sprintf("failed to write Markdown file: %v", err)
		return result
	}
	result.Files = append(result.Files, path)
	result.Success = true
	return result
}

func downloadCover(ctx context.Context, limiter *rate.Limiter, url, dir string) (string, error) {
	if err := limiter.Wait(ctx); err != nil {
		return "", err
	}
	data, err := formatter.DownloadImage(ctx, url)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "cover.jpg")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to save cover image: %w", err)
	}
	return path, nil
}
