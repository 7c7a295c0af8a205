// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package upload // import "blitznote.com/src/sendfile"

import (
	"context"
	"io"
	"math"
	"sync"
)

const copyBufferSize = 256 << 10

var copyBuffers = sync.Pool{
	New: func() any {
		b := make([]byte, copyBufferSize)
		return &b
	},
}

// readError marks a failure on the receiving side, as opposed to one of the storage.
type readError struct{ error }

func (e readError) Unwrap() error { return e.error }

// contextReader stops yielding data once its context is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, readError{err}
	}
	n, err := c.r.Read(p)
	if err != nil && err != io.EOF {
		err = readError{err}
	}
	return n, err
}

// onlyWriter hides any ReadFrom of the destination, so that io.CopyBuffer uses our buffer.
type onlyWriter struct{ io.Writer }

// copyAtMost copies until EOF, but not more than limit+1 bytes,
// so that the caller can tell whether the source exceeds 'limit'.
func copyAtMost(w io.Writer, r io.Reader, limit int64) (int64, error) {
	bufp := copyBuffers.Get().(*[]byte)
	defer copyBuffers.Put(bufp)

	if limit < math.MaxInt64 {
		r = io.LimitReader(r, limit+1)
	}
	return io.CopyBuffer(onlyWriter{w}, r, *bufp)
}
