// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package upload // import "blitznote.com/src/sendfile"

import (
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Errors returned by Confine.
const (
	errUnveilE2BIG  unveilError = "call 'unveil' failed: per-process limit reached"
	errUnveilENOENT unveilError = "call 'unveil' failed: path does not exist"
	errUnveilEINVAL unveilError = "call 'unveil' failed: invalid value for 'permissions'"
	errUnveilEPERM  unveilError = "call 'unveil' failed: called after locking"
)

type unveilError string

func (e unveilError) Error() string { return string(e) }

func translateUnveilErrorCode(err error) error {
	switch err {
	case nil:
		return nil
	case syscall.E2BIG:
		return errUnveilE2BIG
	case syscall.ENOENT:
		return errUnveilENOENT
	case syscall.EINVAL:
		return errUnveilEINVAL
	case syscall.EPERM:
		return errUnveilEPERM
	}
	return err
}

// Confine restricts the process' view of the filesystem to 'dirs', which must exist.
// Files in them can be read, written, and created. Everything else becomes invisible.
//
// Call this once, after any configuration files have been read.
func Confine(dirs ...string) error {
	for _, dir := range dirs {
		if err := translateUnveilErrorCode(unix.Unveil(dir, "rwc")); err != nil {
			return errors.Wrapf(err, "unveil %s", dir)
		}
	}
	return translateUnveilErrorCode(unix.UnveilBlock())
}
