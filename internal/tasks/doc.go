// Package tasks runs the long administrative jobs on the song library with progress reporting.
//
// # Import
//
// Tracks come from one of two sources:
//
//  1. [LoadManifest] : a TOML manifest listing tracks, with a default folder and a base URL that
//     relative media paths are resolved against
//  2. [ScanDirectory] : a directory of MP3 files. The ID3 title becomes the track name and the
//     album becomes the folder; files without tags fall back to the file name and parent directory
//
// [Importer.Import] adds them through the community service one at a time, paced by a rate limiter.
// Tracks whose media URL is already in the library are skipped. A permission error stops the import,
// any other failure is recorded and the import moves on.
//
// # Export
//
// [ExportLibrary] writes the whole library in one file, then one file per folder using a small
// worker pool, and finishes with a JSON manifest of what was written.
//
// # Progress Reporting
//
// Operations send [ProgressUpdate] values on an optional channel. Sends never block; updates are
// dropped when the channel is full.
package tasks
