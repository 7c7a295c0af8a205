// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package protofile // import "blitznote.com/src/sendfile/protofile"

import (
	"os"
	"path/filepath"
	"time"
)

// Sweep removes dotted proto files in 'path' which have not been modified
// within 'olderThan'. Those are leftovers of a process that died mid-write.
//
// Returns the names of the removed files. A missing directory is not an error.
func Sweep(path string, olderThan time.Duration) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(path, dottedPattern))
	if err != nil {
		return nil, err
	}

	var removed []string
	cutoff := time.Now().Add(-olderThan)
	for _, name := range matches {
		finfo, err := os.Lstat(name)
		if err != nil || !finfo.Mode().IsRegular() {
			continue
		}
		if finfo.ModTime().After(cutoff) {
			continue // could belong to an upload in progress
		}
		if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed = append(removed, name)
	}
	return removed, nil
}
