// Package guard gates protected screens on the session state.
//
// A [Guard] renders a [session.View] into an [Outcome] and drives a [Navigator]:
// while the session is initializing it asks for a loading placeholder, when the session
// becomes anonymous it replaces the current route with the fallback exactly once per
// transition, and when authenticated it admits the protected content.
//
// [Middleware] applies the same rules to an http.Handler for embedders that serve
// their screens over HTTP.
package guard
