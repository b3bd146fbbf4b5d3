//go:build !unix

package core

import "os"

// mappedFile is a read only file.
type mappedFile struct {
	*os.File
}

func mapFile(path string) (*mappedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &mappedFile{f}, nil
}
