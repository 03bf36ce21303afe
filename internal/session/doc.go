// Package session coordinates the client side lifecycle of an authenticated
// console session.
//
// A Store is the single writer of session state and of the persisted
// credential pair. It arms a RefreshScheduler and an InactivityMonitor while
// authenticated and converges every failure path (refresh rejection, idle
// timeout, a 401 reported through the broadcast package, or an explicit
// logout) on one idempotent teardown routine.
//
// Every asynchronous backend call captures the session generation when it is
// launched. Results that arrive after the generation has moved on are
// discarded, so a slow refresh can never resurrect a session after logout.
package session
