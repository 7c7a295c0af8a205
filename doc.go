// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package upload contains a HTTP handler which receives files
// that another device on the LAN sends as multipart/form-data.
//
// Bodies are streamed part by part to disk, never buffered whole,
// and are capped per request (10 GiB by default) and optionally per file.
//
// If the operating- and filesystem supports it,
// files will not appear in the observable namespace before they have been written and synced.
// This is important with programs which monitor a set of paths and
// trigger actions in the advent of new files.
//
// A file never replaces an existing one. If its name is taken
// it is saved as "name (1).ext", "name (2).ext", and so on.
// Fields without a filename are read and ignored.
//
// This is how you'd send a file using 'curl':
//
//	curl -F file=@report.pdf http://192.168.1.20:41234/upload
package upload // import "blitznote.com/src/sendfile"
