// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package upload // import "blitznote.com/src/sendfile"

import (
	"os"
	"path/filepath"
	"time"
	"unicode"

	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"
)

const (
	// DefaultMaxTransactionSize caps the payload of one request: 10 GiB.
	DefaultMaxTransactionSize = 10 << 30

	// DefaultMaxNameCollisions is how many alternatives ("name (n).ext") are tried
	// before an upload gets rejected as conflicting.
	DefaultMaxNameCollisions = 1000

	// DefaultSweepStaleAfter is the age after which leftovers of interrupted uploads are removed.
	DefaultSweepStaleAfter = 24 * time.Hour

	// AppDirName is the subdirectory of the user's downloads which receives files.
	AppDirName = "send-file"
)

// Configuration represents the settings of a Handler.
//
// Must not be modified once the Handler serves requests.
type Configuration struct {
	// The upload destination. Gets created on first use.
	WriteToPath string

	// Maximum payload of one request, summed over all its parts, in bytes. 0 disables the limit.
	MaxTransactionSize uint64

	// Maximum size of one file, in bytes. 0 disables the limit.
	MaxFilesize uint64

	// Received filenames are brought into this form.
	// Set to nil to keep them as the client sent them.
	UnicodeForm *norm.Form

	// Set this to reject filenames with runes outside the given ranges.
	// Use ParseUnicodeBlockList to obtain one.
	RestrictFilenamesTo []*unicode.RangeTable

	// How many alternative names to try if a filename is taken.
	MaxNameCollisions int

	// Interrupted uploads which are older than this get removed when the Handler starts.
	// 0 disables sweeping.
	SweepStaleAfter time.Duration
}

// NewDefaultConfiguration creates a new default configuration writing to 'directory'.
func NewDefaultConfiguration(directory string) *Configuration {
	nfc := norm.NFC
	return &Configuration{
		WriteToPath:        directory,
		MaxTransactionSize: DefaultMaxTransactionSize,
		UnicodeForm:        &nfc,
		MaxNameCollisions:  DefaultMaxNameCollisions,
		SweepStaleAfter:    DefaultSweepStaleAfter,
	}
}

// DefaultDestination is the per-user directory "<downloads>/send-file".
//
// The downloads directory is taken from XDG_DOWNLOAD_DIR if set, else "Downloads" in the home directory.
func DefaultDestination() (string, error) {
	if xdg := os.Getenv("XDG_DOWNLOAD_DIR"); filepath.IsAbs(xdg) {
		return filepath.Join(xdg, AppDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "cannot determine the downloads directory")
	}
	return filepath.Join(home, "Downloads", AppDirName), nil
}

// validate rejects formally incorrect configurations.
func (c *Configuration) validate() error {
	if c.WriteToPath == "" {
		return errors.New("the destination path is missing")
	}
	if !filepath.IsAbs(c.WriteToPath) {
		abs, err := filepath.Abs(c.WriteToPath)
		if err != nil {
			return errors.Wrapf(err, "destination %q", c.WriteToPath)
		}
		c.WriteToPath = abs
	}
	if c.MaxNameCollisions < 0 {
		return errors.Errorf("MaxNameCollisions must not be negative, is %d", c.MaxNameCollisions)
	}
	return nil
}
