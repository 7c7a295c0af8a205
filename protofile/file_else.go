// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux
// +build !linux

package protofile // import "blitznote.com/src/sendfile/protofile"

// SizeWillBe asks the filesystem to reserve some space for this file's contents.
// This could result in a sparse file (if less than anticipated gets written),
// which is fine because the file is discarded in that case.
func (p *generalizedProtoFile) SizeWillBe(numBytes uint64) error {
	if numBytes <= reserveFileSizeThreshold {
		return nil
	}

	if numBytes <= maxInt64 {
		return p.Truncate(int64(numBytes))
	}
	// allocate as much as possible
	return p.Truncate(maxInt64)
}
