// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package protofile // import "blitznote.com/src/sendfile/protofile"

import (
	"golang.org/x/sys/unix"
)

// reserve asks the filesystem to reserve some space for a file's contents
// without changing its apparent size.
func reserve(fd int, numBytes uint64) error {
	if numBytes <= reserveFileSizeThreshold {
		return nil
	}
	if numBytes > maxInt64 {
		numBytes = maxInt64 // Yes, every Exbibyte counts, but not that many.
	}

	err := unix.Fallocate(fd, unix.FALLOC_FL_KEEP_SIZE, 0, int64(numBytes))
	if err == unix.EOPNOTSUPP || err == unix.ENOSYS {
		return nil
	}
	if err != nil {
		return err
	}

	// These are best-effort, so we don't care about any errors.
	_ = unix.Fadvise(fd, 0, int64(numBytes), unix.FADV_SEQUENTIAL)
	return nil
}

// SizeWillBe reserves disk space; ENOSPC surfaces here rather than mid-write.
func (p *generalizedProtoFile) SizeWillBe(numBytes uint64) error {
	return reserve(int(p.File.Fd()), numBytes)
}
