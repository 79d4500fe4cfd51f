// Package store is the document store every other component reads and writes through.
//
// A [Store] exposes live collection subscriptions, plain writes (append, replace, merge, delete)
// and optimistic read-modify-write transactions. Two implementations exist:
//   - [Local] : backed by SQLite through [repositories.DocumentRepository], enforcing [Rules]
//     with the caller identity carried in the context (see [shared.WithIdentity])
//   - [Remote] : a websocket client speaking the [Frame] protocol to a [Local] served by
//     [Local.ServeConn], reconnecting with backoff and resubscribing after drops
//
// Paths address a collection ("songs"), a record ("songs/<id>") or a field of a record
// ("diaryPosts/<id>/likeCount"). The settings collection holds a single record, so its fields are
// addressed directly as "settings/<field>".
//
// Subscriptions deliver whole-collection [Snapshot] values, never diffs. Each subscription has its
// own delivery goroutine, so snapshots of one collection arrive in emission order and a slow
// consumer of one collection never holds up another.
//
// Transactions ([Store.Transact]) read the current value and its version, call the update function
// and write back only if the version is unchanged, retrying with exponential backoff on conflict.
// The update function may therefore run more than once and must have no side effects.
package store
