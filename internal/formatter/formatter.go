// package formatter renders the song library to files: CSV, Markdown grouped by folder, extended M3U, plain text and JSON.
package formatter

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/desertthunder/pulse/internal/models"
	"github.com/desertthunder/pulse/internal/shared"
)

// Format is an export file format.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatM3U      Format = "m3u"
	FormatText     Format = "txt"
	FormatJSON     Format = "json"
)

// Formats lists every supported format.
var Formats = []Format{FormatCSV, FormatMarkdown, FormatM3U, FormatText, FormatJSON}

// ParseFormat resolves a format name. "md" and "m3u8" are accepted as aliases.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatMarkdown, FormatM3U, FormatText, FormatJSON:
		return f, nil
	case "md":
		return FormatMarkdown, nil
	case "m3u8":
		return FormatM3U, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
	}
}

// Extension returns the file extension for f, without the dot.
func (f Format) Extension() string {
	switch f {
	case FormatMarkdown:
		return "md"
	case FormatM3U:
		return "m3u8"
	default:
		return string(f)
	}
}

// Library is a titled list of tracks to render.
type Library struct {
	Title  string
	Artist string
	// Fallback is the folder label used for tracks without one.
	Fallback string
	Tracks   []models.Track
}

// folders groups tracks by folder, folders in first-seen order.
func (l Library) folders() ([]string, map[string][]models.Track) {
	label := func(t models.Track) string { return models.FolderOf(t, l.Fallback) }
	return lo.Uniq(lo.Map(l.Tracks, func(t models.Track, _ int) string { return label(t) })), lo.GroupBy(l.Tracks, label)
}

// Render renders lib in format f.
func Render(f Format, lib Library) ([]byte, error) {
	switch f {
	case FormatCSV:
		return ExportToCSV(lib)
	case FormatMarkdown:
		return ExportToMarkdown(lib, "")
	case FormatM3U:
		return ExportToM3U(lib)
	case FormatText:
		return ExportToText(lib)
	case FormatJSON:
		return shared.MarshalJSON(lib.Tracks, true)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, f)
	}
}

// ExportToCSV converts the library to CSV with columns: ID, Folder, Name, Media URL, Image URL
func ExportToCSV(lib Library) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Folder", "Name", "Media URL", "Image URL"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range lib.Tracks {
		record := []string{
			track.ID,
			models.FolderOf(track, lib.Fallback),
			track.Name,
			track.MediaURL,
			track.ImageURL,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown renders the library with one section per folder and an optional cover image.
func ExportToMarkdown(lib Library, imageFilename string) ([]byte, error) {
	var buf bytes.Buffer
	order, groups := lib.folders()

	fmt.Fprintf(&buf, "# %s\n\n", lib.Title)

	if imageFilename != "" {
		fmt.Fprintf(&buf, "![Cover](%s)\n\n", imageFilename)
	}

	if lib.Artist != "" {
		fmt.Fprintf(&buf, "**Artist**: %s\n", lib.Artist)
	}
	fmt.Fprintf(&buf, "**Tracks**: %d\n", len(lib.Tracks))
	fmt.Fprintf(&buf, "**Folders**: %d\n", len(order))

	for _, folder := range order {
		fmt.Fprintf(&buf, "\n## %s\n\n", folder)
		for i, track := range groups[folder] {
			fmt.Fprintf(&buf, "%d. [%s](%s)\n", i+1, track.Name, track.MediaURL)
		}
	}

	return buf.Bytes(), nil
}

// ExportToM3U renders the library as an extended M3U playlist, tagging each entry with its folder.
func ExportToM3U(lib Library) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("#EXTM3U\n")
	if lib.Title != "" {
		fmt.Fprintf(&buf, "#PLAYLIST:%s\n", oneLine(lib.Title))
	}

	for _, track := range lib.Tracks {
		title := oneLine(track.Name)
		if lib.Artist != "" {
			title = oneLine(lib.Artist) + " - " + title
		}
		fmt.Fprintf(&buf, "#EXTINF:-1,%s\n", title)
		fmt.Fprintf(&buf, "#EXTGRP:%s\n", oneLine(models.FolderOf(track, lib.Fallback)))
		if track.ImageURL != "" {
			fmt.Fprintf(&buf, "#EXTIMG:%s\n", track.ImageURL)
		}
		buf.WriteString(track.MediaURL + "\n")
	}

	return buf.Bytes(), nil
}

// ExportToText converts the library to plain text format
func ExportToText(lib Library) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Library: %s\n", lib.Title)
	fmt.Fprintf(&buf, "Tracks: %d\n\n", len(lib.Tracks))

	for i, track := range lib.Tracks {
		fmt.Fprintf(&buf, "%d. [%s] %s\n", i+1, models.FolderOf(track, lib.Fallback), track.Name)
	}

	return buf.Bytes(), nil
}

// WriteExport renders lib in format f to path.
func WriteExport(f Format, lib Library, path string) error {
	data, err := Render(f, lib)
	if err != nil {
		return fmt.Errorf("failed to render %s: %w", f, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s file: %w", f, err)
	}
	return nil
}

// DownloadImage downloads an image from the given URL and returns the raw bytes
func DownloadImage(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: empty image URL", shared.ErrMissingArgument)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build image request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	return imageData, nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
