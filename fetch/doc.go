// Package fetch retrieves JSON feeds from a backend whose reachable address depends on
// where the client runs.
//
// A [Client] holds an ordered list of candidate [Endpoint]s and tries them one at a
// time until one answers with a decodable JSON object. Each candidate is tried at most
// once per call, under its own timeout. Every failure is recorded as an [Attempt]; if
// no candidate succeeds the caller receives an [*UnreachableError] carrying one
// attempt per candidate, in order.
//
// Decoding is lenient about the collection field: a missing, null or non-array field
// yields an empty collection rather than an error.
//
// [Feed] layers the loading / ready / empty / unreachable screen state on top of a
// Client, including retry.
package fetch
