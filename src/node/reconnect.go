package node

import (
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/zetanetwork/zeta/src/overlay"
)

// Reconnector re-dials the configured rendezvous addresses on every timer
// tick. It keeps no per-address connection state: duplicate dials to an
// already-connected address are a safe no-op by overlay contract. Its only
// responsibility beyond dialing is to never dial the node itself.
type Reconnector struct {
	over      overlay.Overlay
	addrs     []string
	localID   string
	localAddr string

	dials      int64
	dialErrors int64

	logger *logrus.Entry
}

// NewReconnector ...
func NewReconnector(over overlay.Overlay, addrs []string, localID string, logger *logrus.Entry) *Reconnector {
	return &Reconnector{
		over:      over,
		addrs:     addrs,
		localID:   localID,
		localAddr: over.LocalAddr(),
		logger:    logger,
	}
}

// SetLocalAddr records the best-known local address for self-dial filtering.
// It is only called from the router loop.
func (r *Reconnector) SetLocalAddr(addr string) {
	r.localAddr = addr
}

// EnsureConnections dials every rendezvous address that does not point back
// at this node. Dial failures are logged and counted, nothing more; the next
// tick retries.
func (r *Reconnector) EnsureConnections() {
	for _, addr := range r.addrs {
		if r.isSelf(addr) {
			continue
		}

		atomic.AddInt64(&r.dials, 1)

		if err := r.over.Dial(addr); err != nil {
			atomic.AddInt64(&r.dialErrors, 1)
			r.logger.WithError(err).WithField("addr", addr).Error("Dialing rendezvous address")
		}
	}
}

// isSelf reports whether the address points back at this node. Matching is
// best-effort substring comparison; when no local address is known the
// filter only checks the peer id.
func (r *Reconnector) isSelf(addr string) bool {
	if r.localID != "" && strings.Contains(addr, r.localID) {
		return true
	}

	if r.localAddr == "" {
		return false
	}

	return strings.Contains(addr, r.localAddr)
}

// Dials returns the number of dial attempts so far.
func (r *Reconnector) Dials() int64 {
	return atomic.LoadInt64(&r.dials)
}

// DialErrors returns the number of failed dial attempts so far.
func (r *Reconnector) DialErrors() int64 {
	return atomic.LoadInt64(&r.dialErrors)
}
