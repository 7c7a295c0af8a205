// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package portpick chooses the TCP port the receiver listens on.
package portpick // import "blitznote.com/src/sendfile/portpick"

import (
	"net"
	"sync"

	"github.com/pkg/errors"
)

// Pick asks the operating system for an unused TCP port from its ephemeral range.
//
// The port is released before returning, so another process could claim it
// in between; bind it soon.
func Pick() (uint16, error) {
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		return 0, errors.Wrap(err, "no unused port")
	}
	defer l.Close()

	addr, ok := l.Addr().(*net.TCPAddr)
	if !ok || addr.Port <= 0 || addr.Port > 0xffff {
		return 0, errors.Errorf("unexpected listener address %v", l.Addr())
	}
	return uint16(addr.Port), nil
}

// Allocator yields one port for the lifetime of the process.
//
// The first call to Port decides, all later calls see the same value.
// Safe for concurrent use.
type Allocator struct {
	fixed uint16
	pick  func() (uint16, error)

	once sync.Once
	port uint16
	err  error
}

// New returns an Allocator. A non-zero 'fixed' port is used as-is instead of picking one.
func New(fixed uint16) *Allocator {
	return &Allocator{fixed: fixed, pick: Pick}
}

// Port returns the allocated port, allocating it on first use.
func (a *Allocator) Port() (uint16, error) {
	a.once.Do(func() {
		if a.fixed != 0 {
			a.port = a.fixed
			return
		}
		a.port, a.err = a.pick()
	})
	return a.port, a.err
}
