// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package protofile // import "blitznote.com/src/sendfile/protofile"

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"blitznote.com/src/sendfile/logger"
)

const (
	// If a file is expected to be smaller than this (in bytes) we won't ask
	// the filesystem to reserve space for it in advance.
	reserveFileSizeThreshold = 1 << 15

	// needed for file allocations
	maxInt64 = 1<<63 - 1

	permBitsDir  = 0750
	permBitsFile = 0600

	// Dotted proto files are named like this, with the '*' replaced by a random string.
	dottedPattern = ".sendfile-*.part"
)

// Replaced in tests.
var removeFile = os.Remove

// ProtoFileBehaver is a sink for a file's contents that has not yet emerged
// into the observable namespace.
type ProtoFileBehaver interface {
	// Discards a file that has not yet been persisted.
	Zap() error

	// Emerges the file under 'filename' in the directory it has been created in.
	// An existing file is never replaced; use os.IsExist on the returned error.
	Persist(filename string) error

	// Reserves space on disk for the file contents.
	SizeWillBe(numBytes uint64) error

	io.Writer
}

// ProtoFile is the common state of all implementations.
type ProtoFile struct {
	*os.File

	dir       string
	persisted bool // Has this already appeared under its final name?
	closed    bool
}

func (p *ProtoFile) close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return p.File.Close()
}

// IntentNew results in a sink for writes to disk, located in directory 'path',
// which can be emerged into a regular file by calling member function 'Persist'.
//
// Depending on operation- and filesystem a degraded implementation
// will be used. The directory must exist.
var IntentNew func(path string) (ProtoFileBehaver, error) = intentNewUniversal

// generalizedProtoFile works everywhere, at the cost of a visible dot-file.
type generalizedProtoFile struct {
	ProtoFile
}

func intentNewUniversal(path string) (ProtoFileBehaver, error) {
	t, err := os.CreateTemp(path, dottedPattern)
	if err != nil {
		return nil, err
	}
	return &generalizedProtoFile{
		ProtoFile: ProtoFile{File: t, dir: path},
	}, nil
}

// Zap discards the file.
// If it has already been persisted (and thereby is a 'regular' one) this will be a NOP.
func (p *generalizedProtoFile) Zap() error {
	if p.persisted {
		return nil
	}
	err := p.close()
	if rmErr := os.Remove(p.File.Name()); rmErr != nil && !os.IsNotExist(rmErr) {
		return rmErr
	}
	return err
}

// Persist promotes a proto file to a 'regular' one, which will appear under its final name.
//
// Can be called again with a different name if the first one had been taken.
func (p *generalizedProtoFile) Persist(filename string) error {
	if p.persisted {
		return errors.New("protofile: already persisted")
	}
	if !p.closed {
		if err := p.File.Sync(); err != nil {
			return err
		}
		// Some systems refuse to link or remove open files.
		if err := p.close(); err != nil {
			return err
		}
	}

	tmpName := p.File.Name()
	finalName := filepath.Join(p.dir, filename)
	err := os.Link(tmpName, finalName)
	switch {
	case err == nil:
		p.persisted = true
		if err := removeFile(tmpName); err != nil {
			// The file is in place. Sweep gets the leftover eventually.
			logger.Warn("cannot remove the proto file's temporary name", "path", tmpName, "error", err)
		}
		return nil
	case os.IsExist(err):
		return err
	}

	// Some filesystems (FAT, a few network shares) cannot do hard links.
	if _, statErr := os.Lstat(finalName); statErr == nil {
		return &os.LinkError{Op: "rename", Old: tmpName, New: finalName, Err: os.ErrExist}
	}
	if err = os.Rename(tmpName, finalName); err != nil {
		return err
	}
	p.persisted = true
	return nil
}
