package device

import (
	"go/build"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Only the portaudio subpackage may link the cgo library, so the capture
// state machine and its callers build on hosts without libportaudio.
func TestCorePackagesAvoidPortAudio(t *testing.T) {
	root, err := filepath.Abs("..")
	if err != nil {
		t.Fatal(err)
	}

	var checked int
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == "portaudio" {
			return filepath.SkipDir
		}
		pkg, err := build.ImportDir(path, 0)
		if err != nil {
			if _, ok := err.(*build.NoGoError); ok {
				return nil
			}
			return err
		}
		checked++
		for _, imp := range pkg.Imports {
			if strings.HasSuffix(imp, "/portaudio") {
				t.Errorf("%s imports %s", path, imp)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if checked < 5 {
		t.Fatalf("Expected to inspect the internal packages, checked %d", checked)
	}
}
