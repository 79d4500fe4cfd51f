// Package ui implements the player console, a terminal interface using bubbletea's Elm architecture.
//
// The console has three views:
//  1. [FolderView] : Browse the library grouped by folder
//  2. [TrackView] : The tracks of one folder; enter plays a track with its folder as the playlist
//  3. [DiaryView] : Community posts, newest first, with likes
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Mirror, player and connectivity listeners only signal a buffered channel; the model re-reads
// the session state on each signal, so bursts of changes produce a single redraw.
//
// Keyboard navigation uses vim-style bindings (j/k, h/l, enter, esc, tab, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
