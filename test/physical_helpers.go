package test

import (
	"path/filepath"
	"testing"

	petname "github.com/dustinkirkland/golang-petname"
)

// CaptureFilename returns a fresh pcapng capture file path under
// the test's temporary directory.
func CaptureFilename(t *testing.T) string {
	pet := petname.Generate(2, "_")
	return filepath.Join(t.TempDir(), pet+".pcapng")
}
