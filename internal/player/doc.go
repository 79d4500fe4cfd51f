// Package player owns the output device and the playback state built on it.
//
// A [Controller] moves between three states. Empty has no current track. Paused and Playing
// both have a current track drawn from the active playlist. Every [Controller.Play] establishes a
// new playback context: the given playlist replaces the old one wholesale and the device source is
// rebound, which also supersedes any play still in flight.
//
// Next and Previous wrap around the playlist as (i ± 1 + len) mod len, so a singleton playlist
// restarts its only track. The device's ended event behaves exactly like Next.
//
// Progress is derived from device time updates and only moves while the device reports a positive
// finite duration. Seek is ignored without one.
//
// The [Device] interface is the whole control surface; [MPDDevice] drives a Music Player Daemon.
package player
