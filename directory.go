// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package upload // import "blitznote.com/src/sendfile"

import (
	"os"
	"sync"

	"github.com/pkg/errors"
)

const permBitsDir = 0750

// Directory is the destination of uploads.
// It is created when the first file is about to be written.
type Directory struct {
	path string

	mu    sync.Mutex
	ready bool
}

// NewDirectory returns a Directory for 'path', which need not exist yet.
func NewDirectory(path string) *Directory {
	return &Directory{path: path}
}

// Path of the directory.
func (d *Directory) Path() string { return d.path }

// Ensure creates the directory including any parents if it is absent.
//
// Idempotent, and safe for concurrent use: racing callers, also in other
// processes, all see success once the directory exists.
func (d *Directory) Ensure() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ready {
		return nil
	}

	// MkdirAll tolerates losing the race against another creator.
	if err := os.MkdirAll(d.path, permBitsDir); err != nil {
		return errors.Wrapf(err, "create destination %s", d.path)
	}
	finfo, err := os.Stat(d.path)
	if err != nil {
		return errors.Wrapf(err, "create destination %s", d.path)
	}
	if !finfo.IsDir() {
		return errors.Errorf("destination %s exists but is not a directory", d.path)
	}
	d.ready = true
	return nil
}

// forget makes the next Ensure check again, for when the directory has been removed from under us.
func (d *Directory) forget() {
	d.mu.Lock()
	d.ready = false
	d.mu.Unlock()
}
