// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package protofile

import (
	"crypto/rand"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

// Generates a new temporary file name without a path.
func tempFileName() string {
	buffer := make([]byte, 16)
	_, _ = rand.Read(buffer)
	for i := range buffer {
		buffer[i] = (buffer[i] % 25) + 97 // a–z
	}
	return string(buffer)
}

// visibleEntries lists what a directory watcher would see.
func visibleEntries(dir string) []string {
	entries, _ := os.ReadDir(dir)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func testLifecycle(intentNew func(string) (ProtoFileBehaver, error)) {
	Convey("creates a new file", func() {
		scratchDir, _ := os.MkdirTemp("", "protofile")
		defer os.RemoveAll(scratchDir)
		filename := tempFileName()

		f, err := intentNew(scratchDir)
		So(err, ShouldBeNil)
		So(f, ShouldNotBeNil)

		n, err := io.Copy(f, strings.NewReader("DELME"))
		So(err, ShouldBeNil)
		So(n, ShouldEqual, 5)

		So(f.Persist(filename), ShouldBeNil)
		contents, err := os.ReadFile(filepath.Join(scratchDir, filename))
		So(err, ShouldBeNil)
		So(string(contents), ShouldEqual, "DELME")
		So(visibleEntries(scratchDir), ShouldResemble, []string{filename})
	})

	Convey("the file is not in visible namespace until persisted", func() {
		scratchDir, _ := os.MkdirTemp("", "protofile")
		defer os.RemoveAll(scratchDir)
		filename := tempFileName()

		f, err := intentNew(scratchDir)
		So(err, ShouldBeNil)
		io.Copy(f, strings.NewReader("DELME"))

		_, err = os.Stat(filepath.Join(scratchDir, filename))
		So(os.IsNotExist(err), ShouldBeTrue)

		So(f.Persist(filename), ShouldBeNil)
		_, err = os.Stat(filepath.Join(scratchDir, filename))
		So(err, ShouldBeNil)
	})

	Convey("the file will not materialize after having been zapped", func() {
		scratchDir, _ := os.MkdirTemp("", "protofile")
		defer os.RemoveAll(scratchDir)

		f, err := intentNew(scratchDir)
		So(err, ShouldBeNil)
		io.Copy(f, strings.NewReader("DELME"))

		So(f.Zap(), ShouldBeNil)
		So(visibleEntries(scratchDir), ShouldBeEmpty)
	})

	Convey("an existing file is never replaced", func() {
		scratchDir, _ := os.MkdirTemp("", "protofile")
		defer os.RemoveAll(scratchDir)
		filename := tempFileName()
		So(os.WriteFile(filepath.Join(scratchDir, filename), []byte("KEEPME"), 0600), ShouldBeNil)

		f, err := intentNew(scratchDir)
		So(err, ShouldBeNil)
		io.Copy(f, strings.NewReader("DELME"))

		err = f.Persist(filename)
		So(os.IsExist(err), ShouldBeTrue)

		Convey("but can be persisted under another name", func() {
			So(f.Persist(filename+"2"), ShouldBeNil)

			kept, _ := os.ReadFile(filepath.Join(scratchDir, filename))
			So(string(kept), ShouldEqual, "KEEPME")
			other, _ := os.ReadFile(filepath.Join(scratchDir, filename+"2"))
			So(string(other), ShouldEqual, "DELME")
			So(len(visibleEntries(scratchDir)), ShouldEqual, 2)
		})
	})

	Convey("Zap after Persist is a no-op", func() {
		scratchDir, _ := os.MkdirTemp("", "protofile")
		defer os.RemoveAll(scratchDir)
		filename := tempFileName()

		f, err := intentNew(scratchDir)
		So(err, ShouldBeNil)
		io.Copy(f, strings.NewReader("DELME"))
		So(f.Persist(filename), ShouldBeNil)
		So(f.Zap(), ShouldBeNil)

		_, err = os.Stat(filepath.Join(scratchDir, filename))
		So(err, ShouldBeNil)
	})

	Convey("space reservation does not change the outcome", func() {
		scratchDir, _ := os.MkdirTemp("", "protofile")
		defer os.RemoveAll(scratchDir)
		filename := tempFileName()

		f, err := intentNew(scratchDir)
		So(err, ShouldBeNil)
		So(f.SizeWillBe(1<<16), ShouldBeNil)
		io.Copy(f, strings.NewReader(strings.Repeat("x", 1<<16)))
		So(f.Persist(filename), ShouldBeNil)

		finfo, err := os.Stat(filepath.Join(scratchDir, filename))
		So(err, ShouldBeNil)
		So(finfo.Size(), ShouldEqual, 1<<16)
	})
}

func TestGeneralizedProtoFile(t *testing.T) {
	Convey("GeneralizedProtoFile", t, func() {
		testLifecycle(intentNewUniversal)

		Convey("a leftover temporary name does not fail Persist", func() {
			scratchDir, _ := os.MkdirTemp("", "protofile")
			defer os.RemoveAll(scratchDir)
			defer func() { removeFile = os.Remove }()
			removeFile = func(string) error { return os.ErrPermission }
			filename := tempFileName()

			f, err := intentNewUniversal(scratchDir)
			So(err, ShouldBeNil)
			_, err = io.Copy(f, strings.NewReader("DELME"))
			So(err, ShouldBeNil)

			So(f.Persist(filename), ShouldBeNil)
			So(f.Zap(), ShouldBeNil)
			contents, err := os.ReadFile(filepath.Join(scratchDir, filename))
			So(err, ShouldBeNil)
			So(string(contents), ShouldEqual, "DELME")
			So(visibleEntries(scratchDir), ShouldHaveLength, 2)
		})
	})
}

func TestIntentNew(t *testing.T) {
	Convey("The platform's preferred proto file", t, func() {
		testLifecycle(IntentNew)
	})
}

func TestSweep(t *testing.T) {
	Convey("Sweep", t, func() {
		scratchDir, _ := os.MkdirTemp("", "protofile")
		defer os.RemoveAll(scratchDir)

		stale, _ := intentNewUniversal(scratchDir)
		staleName := stale.(*generalizedProtoFile).File.Name()
		stale.(*generalizedProtoFile).close()
		old := time.Now().Add(-2 * time.Hour)
		So(os.Chtimes(staleName, old, old), ShouldBeNil)

		fresh, _ := intentNewUniversal(scratchDir)
		defer fresh.Zap()

		regular := filepath.Join(scratchDir, "regular.txt")
		So(os.WriteFile(regular, []byte("x"), 0600), ShouldBeNil)
		So(os.Chtimes(regular, old, old), ShouldBeNil)

		Convey("removes only stale dotted files", func() {
			removed, err := Sweep(scratchDir, time.Hour)
			So(err, ShouldBeNil)
			So(removed, ShouldResemble, []string{staleName})

			_, err = os.Stat(regular)
			So(err, ShouldBeNil)
			So(len(visibleEntries(scratchDir)), ShouldEqual, 2)
		})

		Convey("tolerates a missing directory", func() {
			removed, err := Sweep(filepath.Join(scratchDir, "nope"), time.Hour)
			So(err, ShouldBeNil)
			So(removed, ShouldBeEmpty)
		})
	})
}
