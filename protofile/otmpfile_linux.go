// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !appengine
// +build !appengine

package protofile // import "blitznote.com/src/sendfile/protofile"

import (
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Set once O_TMPFILE turned out to be unknown to the kernel.
var noTmpfile atomic.Bool

func init() {
	IntentNew = intentNewUnix
}

// unixProtoFile is the variant that utilizes O_TMPFILE.
// Although it might seem that data is written to the parent directory itself,
// it actually goes into a nameless file.
type unixProtoFile struct {
	ProtoFile
}

func intentNewUnix(path string) (ProtoFileBehaver, error) {
	if noTmpfile.Load() {
		return intentNewUnixDotted(path)
	}
	t, err := os.OpenFile(path, os.O_WRONLY|unix.O_TMPFILE, permBitsFile)
	// did it fail because…
	if err != nil {
		var perr *os.PathError
		if !errors.As(err, &perr) {
			return nil, err
		}
		switch perr.Err {
		case unix.EISDIR: // … kernel does not know O_TMPFILE
			// If so, don't try it again.
			noTmpfile.Store(true)
			fallthrough
		case unix.EOPNOTSUPP: // … O_TMPFILE is not supported on this FS
			return intentNewUnixDotted(path)
		default: // … something 'regular'.
			return nil, err
		}
	}
	return &unixProtoFile{
		ProtoFile: ProtoFile{File: t, dir: path},
	}, nil
}

// Zap is a plain close because O_TMPFILE files that have not been named get discarded anyway.
func (p *unixProtoFile) Zap() error {
	if p.persisted {
		return nil
	}
	return p.close()
}

// Persist gives the file a name.
//
// Nameless files can be identified using tuple (PID, FD) and named
// by linking the FD to a name in the filesystem on which it had been opened.
// linkat(2) never replaces an existing name, which is what we want.
func (p *unixProtoFile) Persist(filename string) error {
	if p.persisted {
		return errors.New("protofile: already persisted")
	}
	if err := p.File.Sync(); err != nil {
		return err
	}

	oldpath := "/proc/self/fd/" + strconv.FormatUint(uint64(p.File.Fd()), 10)
	finalName := filepath.Join(p.dir, filename)
	err := unix.Linkat(unix.AT_FDCWD, oldpath, unix.AT_FDCWD, finalName, unix.AT_SYMLINK_FOLLOW)
	if err != nil {
		return &os.LinkError{Op: "linkat", Old: oldpath, New: finalName, Err: err}
	}
	p.persisted = true
	return p.close()
}

func (p *unixProtoFile) SizeWillBe(numBytes uint64) error {
	return reserve(int(p.File.Fd()), numBytes)
}
