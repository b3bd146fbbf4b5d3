package dwarfcat

import (
	"debug/elf"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pgdbg/pgdbg/pkg/logflags"
)

// ErrNoDebugInfo is returned when neither the executable nor a separate
// debug file has DWARF information.
var ErrNoDebugInfo = errors.New("could not find debug information, install the debug symbols of the postgres package or pass debug-info-directories")

const buildIDSection = ".note.gnu.build-id"

// Open loads the types of the ELF executable at exePath. When the
// executable is stripped the debug information is looked up by build id
// under each of debugInfoDirs, laid out as <dir>/xx/yyyy.debug (for
// example /usr/lib/debug/.build-id).
func Open(exePath string, debugInfoDirs []string) (*Catalog, error) {
	exe, err := elf.Open(exePath)
	if err != nil {
		return nil, err
	}
	ptrSize := 8
	if exe.Class == elf.ELFCLASS32 {
		ptrSize = 4
	}

	if exe.Section(".debug_info") != nil {
		c, err := load(exe)
		if err != nil {
			exe.Close()
			return nil, err
		}
		c.PtrSize = ptrSize
		return c, nil
	}

	id, err := buildID(exe)
	exe.Close()
	if err != nil {
		return nil, err
	}
	path, ok := findDebugFile(id, debugInfoDirs)
	if !ok {
		return nil, ErrNoDebugInfo
	}
	if logflags.Dwarf() {
		logflags.DwarfLogger().Debugf("using separate debug info %s for %s", path, exePath)
	}
	dbg, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	c, err := load(dbg)
	if err != nil {
		dbg.Close()
		return nil, err
	}
	c.PtrSize = ptrSize
	return c, nil
}

func load(f *elf.File) (*Catalog, error) {
	data, err := f.DWARF()
	if err != nil {
		return nil, fmt.Errorf("could not read DWARF: %v", err)
	}
	c, err := New(data)
	if err != nil {
		return nil, err
	}
	c.closer = f
	return c, nil
}

// buildID returns the hex encoded GNU build id of f.
func buildID(f *elf.File) (string, error) {
	sec := f.Section(buildIDSection)
	if sec == nil {
		return "", ErrNoDebugInfo
	}
	data, err := sec.Data()
	if err != nil {
		return "", fmt.Errorf("could not read %s: %v", buildIDSection, err)
	}
	return parseBuildID(data, f.ByteOrder)
}

// parseBuildID decodes a NT_GNU_BUILD_ID note.
func parseBuildID(data []byte, order binary.ByteOrder) (string, error) {
	const hdrSize = 12
	if len(data) < hdrSize {
		return "", fmt.Errorf("%s too short", buildIDSection)
	}
	namesz := order.Uint32(data[0:])
	descsz := order.Uint32(data[4:])
	descOff := hdrSize + (uint64(namesz)+3)&^3
	if descOff+uint64(descsz) > uint64(len(data)) || descsz == 0 {
		return "", fmt.Errorf("malformed %s", buildIDSection)
	}
	return hex.EncodeToString(data[descOff : descOff+uint64(descsz)]), nil
}

func findDebugFile(id string, dirs []string) (string, bool) {
	if len(id) < 3 {
		return "", false
	}
	for _, dir := range dirs {
		path := filepath.Join(dir, id[:2], id[2:]+".debug")
		if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
			return path, true
		}
	}
	return "", false
}
