// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package protofile implements temporary files that don't appear in
// filesystem namespace until they have been written completely.
//
// On Linux flag O_TMPFILE is used, which results in a nameless file.
// Where that is not available a graceful degradation is attempted,
// which worst-case results in dot-files like ".sendfile-123.part".
// Those are clearly incomplete and get swept by Sweep.
//
// Unlike with traditional files with {Create, Write, Close},
// these have a lifecycle described by {IntentNew, Write, Persist or Zap}.
// A proto file is named only after having been persisted, and Persist
// never replaces an existing file: it returns an error satisfying
// os.IsExist instead, so that the caller can pick another name.
package protofile // import "blitznote.com/src/sendfile/protofile"
