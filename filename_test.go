// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package upload

import (
	"errors"
	"strings"
	"testing"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	. "github.com/smartystreets/goconvey/convey"
)

func TestIsAcceptableFilename(t *testing.T) {
	Convey("IsAcceptableFilename", t, FailureContinues, func() {
		Convey("handles Latin-1 input correctly", FailureContinues, func() {
			samples := []struct {
				input    string
				returned bool
			}{
				// ASCII
				{"file.name", true},
				{"the space", true},
				{"line\nbreak", false},
				{"the\tTAB", false},
				{"Samba?", false},
				{"not print\x0e.", false}, {"fancier not print\u000e.", false},
				{"a null\x00.", false},
				{"form feed\x0c", false},
				// now comes Latin-1
				{"start \xb0", false}, {"end \xdf", false}, // obsolete blocks, like in old terminal programs
				{"stray box \xfe", false},
			}

			for i, tuple := range samples {
				tuple.returned = IsAcceptableFilename(samples[i].input, nil, nil)
				So(tuple, ShouldResemble, samples[i])
			}
		})

		Convey("accepts correct UTF-8 input", FailureContinues, func() {
			samples := []struct {
				input    string
				returned bool
			}{
				{"W. Mark Kubacki", true}, {"J. Edgar", true},
				{"keyboard → „typewriters’ keylayout“ ≠ »DIN T2 you ought better buy«", true},
				{"Döner macht schöner.", true},
				{"GENUẞMITTEL Kauﬂäche häuﬁg ǲerba", true}, // ligatures (capital ß after 1900 for historic documents)
				{"フ\u30d7", true}, {"プ\u30d5\u309a", true},
			}

			for i, tuple := range samples {
				tuple.returned = IsAcceptableFilename(samples[i].input, nil, nil)
				So(tuple, ShouldResemble, samples[i])
			}
		})

		Convey("rejects undesired runes", FailureContinues, func() {
			samples := []struct {
				input    string
				returned bool
			}{
				{"form\xfffeed", false}, {"feed\u000cform", false},
				{"IND\u0084", false}, {"NEL\u0085", false},
				{"line\u2028", false}, {"paragraph\u2029", false},
			}

			for i, tuple := range samples {
				tuple.returned = IsAcceptableFilename(samples[i].input, nil, nil)
				So(tuple, ShouldResemble, samples[i])
			}
		})

		Convey("allows to restrict the acceptable rune ranges", FailureContinues, func() {
			azOnly := unicode.RangeTable{
				R16: []unicode.Range16{
					{0x0061, 0x007a, 1}, // a-z
				},
				LatinOffset: 1,
			}

			samples := []struct {
				input    string
				restrict []*unicode.RangeTable
				returned bool
			}{
				{"az", []*unicode.RangeTable{&azOnly}, true},
				{"äz", []*unicode.RangeTable{&azOnly}, false},
			}

			for i, tuple := range samples {
				tuple.returned = IsAcceptableFilename(samples[i].input, samples[i].restrict, nil)
				So(tuple, ShouldResemble, samples[i])
			}
		})

		Convey("enforces inputs that are normalized under a Form", FailureContinues, func() {
			samples := []struct {
				input    string
				form     norm.Form
				returned bool
			}{
				{"säet", norm.NFC, true},
				{"säet", norm.NFD, false},
			}

			for i, tuple := range samples {
				tuple.returned = IsAcceptableFilename(samples[i].input, nil, &samples[i].form)
				So(tuple, ShouldResemble, samples[i])
			}
		})
	})
}

func TestParseUnicodeBlockList(t *testing.T) {
	Convey("ParseUnicodeBlockList works", t, FailureContinues, func() {
		samples := []struct {
			input string
			table *unicode.RangeTable
			err   error
		}{
			{`x0000-x007F U+0100-U+017F x2152–x217F:2  xf0000-xf0010`, &unicode.RangeTable{
				R16: []unicode.Range16{
					{0x0000, 0x007f, 1},
					{0x0100, 0x017f, 1},
					{0x2152, 0x217f, 2},
				},
				R32: []unicode.Range32{
					{Lo: 0xf0000, Hi: 0xf0010, Stride: 1},
				},
				LatinOffset: 1,
			}, nil},
		}

		for i, tuple := range samples {
			tuple.table, tuple.err = ParseUnicodeBlockList(samples[i].input)
			So(tuple, ShouldResemble, samples[i])
		}
	})

	Convey("ParseUnicodeBlockList rejects", t, FailureContinues, func() {
		for _, input := range []string{
			"",
			"x0041",
			"x005a-x0041",
			"x0041-x005a:0",
			"x0041-zz",
			"x0000-x1ffffffff",
		} {
			table, err := ParseUnicodeBlockList(input)
			So(err, ShouldNotBeNil)
			So(table, ShouldBeNil)
		}
	})
}

func TestSanitizeFilename(t *testing.T) {
	nfc := norm.NFC

	Convey("SanitizeFilename", t, FailureContinues, func() {
		Convey("keeps ordinary names", func() {
			for _, name := range []string{"report.pdf", "the space.txt", ".bashrc", "Döner macht schöner.jpg"} {
				got, err := SanitizeFilename(name, &nfc)
				So(err, ShouldBeNil)
				So(got, ShouldEqual, name)
			}
		})

		Convey("strips directories of either kind", func() {
			samples := map[string]string{
				"foo/bar.txt":                "bar.txt",
				"../../../etc/passwd":        "passwd",
				`C:\fakepath\holiday.jpg`:    "holiday.jpg",
				"/absolute/path/to/notes.md": "notes.md",
			}
			for in, want := range samples {
				got, err := SanitizeFilename(in, &nfc)
				So(err, ShouldBeNil)
				So(got, ShouldEqual, want)
			}
		})

		Convey("replaces runes that are unsafe on network shares", func() {
			got, err := SanitizeFilename("what?now*.txt", &nfc)
			So(err, ShouldBeNil)
			So(got, ShouldEqual, "what_now_.txt")

			got, err = SanitizeFilename("line\nbreak\x00.txt", &nfc)
			So(err, ShouldBeNil)
			So(got, ShouldEqual, "line_break_.txt")
		})

		Convey("normalizes to the given form", func() {
			got, err := SanitizeFilename("sa\u0308et", &nfc)
			So(err, ShouldBeNil)
			So(got, ShouldEqual, "s\u00e4et")
			So(IsAcceptableFilename(got, nil, &nfc), ShouldBeTrue)
		})

		Convey("rejects names that are left empty", func() {
			for _, name := range []string{"", " ", ".", "..", "dir/", "dir/.."} {
				_, err := SanitizeFilename(name, &nfc)
				So(errors.Is(err, ErrBadFilename), ShouldBeTrue)
			}
		})

		Convey("shortens long names but keeps the extension", func() {
			got, err := SanitizeFilename(strings.Repeat("ä", 200)+".tar", nil)
			So(err, ShouldBeNil)
			So(len(got), ShouldBeLessThanOrEqualTo, maxFilenameBytes)
			So(got, ShouldEndWith, "ä.tar")
			So(utf8.ValidString(got), ShouldBeTrue)
		})
	})
}

func TestNthName(t *testing.T) {
	Convey("Alternatives for taken names", t, FailureContinues, func() {
		samples := []struct {
			name string
			n    int
			want string
		}{
			{"report.pdf", 0, "report.pdf"},
			{"report.pdf", 1, "report (1).pdf"},
			{"report.pdf", 12, "report (12).pdf"},
			{"archive.tar.gz", 2, "archive.tar (2).gz"},
			{".bashrc", 1, ".bashrc (1)"},
			{"README", 3, "README (3)"},
		}
		for _, sample := range samples {
			So(nthName(sample.name, sample.n), ShouldEqual, sample.want)
		}
	})
}
