package server

import (
	"os"

	"github.com/spf13/afero"
)

// filesOnlyFs hides directories so the media route never renders listings.
type filesOnlyFs struct {
	afero.Fs
}

func (fs filesOnlyFs) Open(name string) (afero.File, error) {
	info, err := fs.Fs.Stat(name)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, os.ErrNotExist
	}
	return fs.Fs.Open(name)
}
