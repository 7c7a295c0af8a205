// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host // import "blitznote.com/src/sendfile/host"

import (
	"fmt"
	"io"
	"strings"

	"github.com/skip2/go-qrcode"
)

// writeBanner tells the user where to send files to.
// The QR code is for phones, and is left out if it cannot be rendered.
func writeBanner(w io.Writer, localURL, lanURL, dir string) error {
	var b strings.Builder
	b.WriteString("\n  send-file is ready to receive\n\n")
	fmt.Fprintf(&b, "  Local:    %s\n", localURL)
	if lanURL != localURL {
		fmt.Fprintf(&b, "  Network:  %s\n", lanURL)
	}
	fmt.Fprintf(&b, "  Upload:   POST %supload\n", lanURL)
	fmt.Fprintf(&b, "  Saves to: %s\n\n", dir)

	if q, err := qrcode.New(lanURL, qrcode.Medium); err == nil {
		b.WriteString(q.ToSmallString(false))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}
