package tasks

import (
	"fmt"

	"github.com/desertthunder/pulse/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	PhaseReadManifest Phase = iota
	PhaseScanFiles
	PhaseAddTracks
	PhaseExportLibrary
	PhaseExportFolders
)

func (p Phase) String() string {
	switch p {
	case PhaseReadManifest:
		return "read_manifest"
	case PhaseScanFiles:
		return "scan_files"
	case PhaseAddTracks:
		return "add_tracks"
	case PhaseExportLibrary:
		return "export_library"
	case PhaseExportFolders:
		return "export_folders"
	default:
		return ""
	}
}

// sendProgress sends update without blocking. A nil or full channel drops it.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func manifestUpdate(path string, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseReadManifest,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Read %d tracks from %s", count, path),
	}
}

func scanUpdate(step int, path string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseScanFiles,
		Step:    step,
		Message: fmt.Sprintf("Scanned %s", path),
	}
}

func addTrackUpdate(step, total int, tr models.Track) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseAddTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s / %s", step, total, tr.FolderLabel, tr.Name),
		Data:    tr,
	}
}

func skipTrackUpdate(step, total int, tr models.Track) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseAddTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] – %s (already in library)", step, total, tr.Name),
	}
}

func failedTrackUpdate(step, total int, tr models.Track, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseAddTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, tr.Name, err),
	}
}

func libraryExportUpdate(path string, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseExportLibrary,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Wrote %d tracks to %s", count, path),
	}
}

func exportingFolderUpdate(step, total int, folder string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseExportFolders,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Exporting: %s...", step, total, folder),
	}
}

func exportCompletedUpdate(step, total int, folder string, filesCount int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseExportFolders,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d files)", step, total, folder, filesCount),
	}
}

func exportFailedUpdate(step, total int, folder string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseExportFolders,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, folder, err),
	}
}
