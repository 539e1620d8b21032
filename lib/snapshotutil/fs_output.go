package snapshotutil

import (
	"os"
	"path/filepath"
	"regexp"
)

// Output receives debugging artifacts (page html, screenshots) captured when
// a browser step fails.
type Output interface {
	Write(name string, contents []byte) error
}

type FilesystemOutput struct {
	directory string
}

// NewFilesystemOutput creates dir if needed, snapshots from earlier runs are
// kept.
func NewFilesystemOutput(dir string) (FilesystemOutput, error) {
	err := os.MkdirAll(dir, 0777)
	if err != nil {
		return FilesystemOutput{}, err
	}
	return FilesystemOutput{directory: dir}, nil
}

var unsafeNameChars = regexp.MustCompile(`[^\w.\-]+`)

// SanitizeName makes name safe to use as a file name on every platform.
func SanitizeName(name string) string {
	return unsafeNameChars.ReplaceAllString(name, "_")
}

func (o FilesystemOutput) Write(name string, contents []byte) error {
	return os.WriteFile(filepath.Join(o.directory, SanitizeName(name)), contents, 0600)
}

func (o FilesystemOutput) Directory() string {
	return o.directory
}
