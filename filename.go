// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package upload // import "blitznote.com/src/sendfile"

import (
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"
)

const (
	// AlwaysRejectRunes contains runes that are not safe to use with network shares.
	//
	// Please note that '/' is already discarded at an earlier stage.
	AlwaysRejectRunes = `"*:<>?|\`

	// ReplacementRune takes the place of unacceptable runes in received filenames.
	ReplacementRune = '_'

	// Most filesystems cap a name at this many bytes.
	maxFilenameBytes = 255

	runeSpatium = '\u2009'

	errStrUnexpectedRange = "unexpected Unicode range: "
)

var (
	errOutOfBounds = errors.New("value out of bounds")

	// ErrBadFilename is returned for names that cannot be saved at all, like "..".
	ErrBadFilename = errors.New("unusable filename")
)

// Not all runes in unicode.PrintRanges are suitable for filenames.
// They are collected here.
var excludedRunes = &unicode.RangeTable{
	R16: []unicode.Range16{
		{0x2028, 0x202f, 1}, // new line, paragraph etc.
		{0xfff0, 0xffff, 1}, // specials, and invalid (includes the obsolete (invalid) terminal boxes)
	},
	LatinOffset: 0,
}

func isAcceptableRune(r rune) bool {
	if r == runeSpatium {
		return true
	}
	if uint32(r) <= unicode.MaxLatin1 && strings.ContainsRune(AlwaysRejectRunes, r) {
		return false
	}
	// IsPrint takes care of the "spaces" as well.
	return unicode.IsPrint(r) && !unicode.Is(excludedRunes, r)
}

// IsAcceptableFilename is used to enforce filenames in wanted alphabet(s).
// Setting 'reduceAcceptableRunesTo' reduces the supremum unicode.PrintRanges.
//
// A string with runes other than U+0020 (space) or U+2009 (spatium)
// representing space will be rejected.
//
// Filenames are not transliterated to prevent loops within clusters of mirrors.
func IsAcceptableFilename(s string, reduceAcceptableRunesTo []*unicode.RangeTable,
	enforceForm *norm.Form) bool {
	// most of the Internet is in NFC
	// (though that even changes within pages, for example for Japanese names)
	if enforceForm != nil && !enforceForm.IsNormalString(s) {
		return false
	}

	for _, r := range s {
		if reduceAcceptableRunesTo != nil && !unicode.In(r, reduceAcceptableRunesTo...) {
			return false
		}
		if !isAcceptableRune(r) {
			return false
		}
	}
	return true
}

// SanitizeFilename turns a name as sent by a client into one that can be
// created inside the destination directory.
//
// Any directories are stripped, with '\' treated as separator too because some
// clients send full Windows paths. The result is brought into 'form' if given.
// Runes which IsAcceptableFilename would reject are replaced by ReplacementRune,
// and overly long names are shortened while keeping their extension.
func SanitizeFilename(provided string, form *norm.Form) (string, error) {
	s := strings.ReplaceAll(provided, `\`, "/")
	if idx := strings.LastIndexByte(s, '/'); idx >= 0 {
		s = s[idx+1:]
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, string(ReplacementRune))
	}
	if form != nil {
		s = form.String(s)
	}
	s = strings.Map(func(r rune) rune {
		if isAcceptableRune(r) {
			return r
		}
		return ReplacementRune
	}, s)
	s = strings.TrimSpace(s)

	if s == "" || s == "." || s == ".." {
		return "", errors.Wrapf(ErrBadFilename, "%q", provided)
	}
	return shorten(s, maxFilenameBytes), nil
}

// shorten cuts the stem of 'name' so that it fits 'limit' bytes, at rune boundaries.
func shorten(name string, limit int) string {
	if len(name) <= limit {
		return name
	}
	stem, ext := splitExt(name)
	if len(ext) >= limit/2 {
		stem, ext = name, ""
	}
	budget := limit - len(ext)
	for budget > 0 && !utf8.RuneStart(stem[budget]) {
		budget--
	}
	return stem[:budget] + ext
}

// splitExt is like filepath.Ext, but treats a leading dot as part of the stem.
func splitExt(name string) (stem, ext string) {
	ext = filepath.Ext(name)
	if ext == name {
		return name, ""
	}
	return strings.TrimSuffix(name, ext), ext
}

// nthName derives the n-th alternative for a taken name:
// "report.pdf" becomes "report (1).pdf", "report (2).pdf", and so on.
func nthName(name string, n int) string {
	if n <= 0 {
		return name
	}
	stem, ext := splitExt(name)
	suffix := " (" + strconv.Itoa(n) + ")"
	return shorten(stem+suffix+ext, maxFilenameBytes)
}

type tupleForRangeSlice [][3]uint64

func (a tupleForRangeSlice) Len() int      { return len(a) }
func (a tupleForRangeSlice) Swap(i, j int) { a[i], a[j] = a[j], a[i] }
func (a tupleForRangeSlice) Less(i, j int) bool {
	for n := range a[i] {
		if a[i][n] < a[j][n] {
			return true
		}
		if a[i][n] > a[j][n] {
			return false
		}
	}
	return false
}

func parseCodePoint(s string) (uint64, error) {
	return strconv.ParseUint(strings.TrimLeft(s, "uU+x"), 16, 32)
}

// ParseUnicodeBlockList naïvely translates a string with space-delimited Unicode ranges to Go's unicode.RangeTable.
//
// All elements must fit into uint32.
// A Range must begin with its lower bound, and ranges must not overlap (we don't check this here!).
//
// The format of one range is as follows, with 'stride' being set to '1' if left empty.
//
//	<low>-<high>[:<stride>]
func ParseUnicodeBlockList(str string) (*unicode.RangeTable, error) {
	fields := strings.Fields(str)
	haveRanges := make(tupleForRangeSlice, 0, len(fields))

	// read
	for _, field := range fields {
		span, strideStr, hasStride := strings.Cut(field, ":")
		lowStr, highStr, found := strings.Cut(strings.ReplaceAll(span, "–", "-"), "-")
		if !found {
			return nil, errors.New(errStrUnexpectedRange + field)
		}
		low, err := parseCodePoint(lowStr)
		if err != nil {
			return nil, errors.New(errStrUnexpectedRange + field)
		}
		high, err := parseCodePoint(highStr)
		if err != nil || high < low {
			return nil, errors.New(errStrUnexpectedRange + field)
		}
		stride := uint64(1)
		if hasStride {
			stride, err = strconv.ParseUint(strideStr, 10, 32)
			if err != nil || stride == 0 {
				return nil, errors.New(errStrUnexpectedRange + field)
			}
		}
		haveRanges = append(haveRanges, [3]uint64{low, high, stride})
	}
	if len(haveRanges) == 0 {
		return nil, errors.New(errStrUnexpectedRange + "(empty)")
	}

	sort.Sort(haveRanges)

	// fold
	rt := unicode.RangeTable{}
	for i := range haveRanges {
		switch {
		case haveRanges[i][1] <= unicode.MaxLatin1:
			rt.LatinOffset++
			fallthrough
		case haveRanges[i][1] <= math.MaxUint16:
			rt.R16 = append(rt.R16, unicode.Range16{
				Lo:     uint16(haveRanges[i][0]),
				Hi:     uint16(haveRanges[i][1]),
				Stride: uint16(haveRanges[i][2]),
			})
		case haveRanges[i][1] <= math.MaxUint32:
			rt.R32 = append(rt.R32, unicode.Range32{
				Lo:     uint32(haveRanges[i][0]),
				Hi:     uint32(haveRanges[i][1]),
				Stride: uint32(haveRanges[i][2]),
			})
		default:
			return nil, errOutOfBounds
		}
	}

	return &rt, nil
}
