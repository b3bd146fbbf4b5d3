//go:build unix

package core

import (
	"bytes"
	"os"

	"golang.org/x/sys/unix"
)

// mappedFile is a read only, memory mapped file.
type mappedFile struct {
	*bytes.Reader
	data []byte
}

// mapFile maps the file at path in memory.
func mapFile(path string) (*mappedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() == 0 {
		return &mappedFile{Reader: bytes.NewReader(nil)}, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, &os.PathError{Op: "mmap", Path: path, Err: err}
	}
	return &mappedFile{Reader: bytes.NewReader(data), data: data}, nil
}

func (m *mappedFile) Close() error {
	if m.data == nil {
		return nil
	}
	data := m.data
	m.data = nil
	m.Reader = bytes.NewReader(nil)
	return unix.Munmap(data)
}
