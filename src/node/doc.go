// Package node implements the synchronization core of a Zeta node: a single
// event router that merges three independent input sources - inbound overlay
// traffic, locally submitted posts, and a reconnection timer - and applies
// them to the feed store, the peer directory and the overlay in a consistent
// order.
//
// The router is the exclusive owner of the overlay handle: only its loop
// issues Publish and Dial calls. The feed store and peer directory are shared
// resources with their own locking; session bridges read them concurrently
// through snapshots.
//
// Per-event failures - malformed payloads, failed publishes, failed dials -
// are logged and absorbed; nothing terminates the loop short of Shutdown.
package node
