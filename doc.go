// Package civiclens is the client core of the CivicLens mobile app: it tracks who is
// signed in, decides whether protected screens may be shown, and fetches the bills
// feed from whichever backend address is reachable from the current device.
//
// # Architecture
//
//	identity.Provider ──push──▶ session.Manager ──View──▶ guard.Guard ──▶ guard.Navigator
//	                                 │
//	                                 └──snapshot──▶ kvstore.Store
//
//	fetch.Client ──candidate 1, 2, … n──▶ backend
//
// A [Builder] wires these from a [Config]; the resulting [Client] is started once and
// closed once. There is no package-level state: every Client owns its collaborators.
//
// # Diagnostics
//
// Components log through log/slog. Session transitions, guard navigation, snapshot
// failures and every fetch attempt are also counted in [Metrics] and, when enabled,
// emitted as [Event]s through an asynchronous dispatcher to an [EventSink].
package civiclens
