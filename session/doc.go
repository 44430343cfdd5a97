// Package session owns the client's authentication state.
//
// A [Manager] subscribes to an identity provider once and folds its push notifications
// into a [View]: the current [Session] (or none), whether the first notification is
// still outstanding, and a transition counter that consumers such as route guards use
// to react to each phase change exactly once.
//
// # Ordering
//
// Notifications are applied one at a time in arrival order. A notification that arrives
// while another is being applied, whether from another goroutine or from a listener
// being notified, is queued behind it. Listeners therefore always observe views in
// apply order and never observe a half-applied state.
//
// # Snapshots
//
// Whenever a session is present, a [Snapshot] of its labels is handed to a
// [SnapshotWriter], which persists it to a kvstore in the background. Snapshots are
// hints for the next cold start; they never grant access on their own.
package session
