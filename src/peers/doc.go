// Package peers defines the concept of a Zeta peer and implements the
// directory that tracks which peers are currently reachable.
//
// A peer is any directory-tracked endpoint. It is either a remote overlay
// participant, identified by its public key, or a local browser session,
// identified by a synthetic id in the reserved "browser-" namespace. The
// presence of an entry in the Directory means "currently considered
// connected"; entries are inserted when the overlay reports a discovery or a
// first connection, or when a local session opens, and removed when the last
// connection closes, the peer expires, or the session ends.
//
// The Directory is edge-triggered: re-inserting a peer that is already
// present updates its metadata but does not re-announce it, and removing an
// absent peer is a silent no-op. This matters because the overlay may report
// several connection or identification events for one logical session.
//
// The package also implements JSONBootstrap, a JSON file store for the list
// of rendezvous addresses that the node periodically re-dials. Upon starting
// up, Zeta looks for a bootstrap.json file in its data directory; the file is
// meant to be manipulated by human operators.
package peers
