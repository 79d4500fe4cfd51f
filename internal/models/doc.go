// Package models defines the records stored in the pulse document store.
//
// Every collection maps a generated id to one record:
//   - [Track] : an audio track in the songs collection
//   - [CommunityPost] : a visitor post in the diaryPosts collection
//   - [InboxMessage] : a private message in the inboxMessages collection
//   - [CustomPage] : an administrator-authored page in the customPages collection
//   - [SiteSettings] : the singleton settings record
//
// Records are plain values with JSON tags matching the stored field names. Nothing outside the
// mirror holds them by pointer; changes go back through the store and arrive in the next snapshot.
//
// [MergeSettings] applies a partial settings record over a base value field by field, so fields
// absent from a remote update keep their local (default) values.
package models
