package core

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/pgdbg/pgdbg/pkg/logflags"
)

// NT_FILE is file mapping information, e.g. program text mappings. Desc is a LinuxNTFile.
const _NT_FILE elf.NType = 0x46494c45 // "FILE".

const elfErrorBadMagicNumber = "bad magic number"

// Open reads the core file at corePath of a process running the executable
// at exePath. For details on the Linux ELF core format, see:
// http://www.gabriel.urdhr.fr/2015/05/29/core-file/,
// http://uhlo.blogspot.fr/2012/05/brief-look-into-core-dumps.html,
// elf_core_dump in http://lxr.free-electrons.com/source/fs/binfmt_elf.c,
// and, if absolutely desperate, readelf.c from the binutils source.
func Open(corePath, exePath string) (_ *Core, err error) {
	c := &Core{}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	coreData, err := mapFile(corePath)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, coreData)
	coreFile, err := elf.NewFile(coreData)
	if err != nil {
		var fe *elf.FormatError
		if errors.As(err, &fe) && (strings.Contains(err.Error(), elfErrorBadMagicNumber) || strings.Contains(err.Error(), " at offset 0x0: too short")) {
			return nil, ErrUnrecognizedFormat
		}
		return nil, err
	}
	exe, err := mapFile(exePath)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, exe)
	exeELF, err := elf.NewFile(exe)
	if err != nil {
		return nil, err
	}

	if coreFile.Type != elf.ET_CORE {
		return nil, fmt.Errorf("%s is not a core file", corePath)
	}
	if exeELF.Type != elf.ET_EXEC && exeELF.Type != elf.ET_DYN {
		return nil, fmt.Errorf("%s is not an executable", exePath)
	}
	if coreFile.Class != elf.ELFCLASS64 {
		return nil, fmt.Errorf("unsupported core file class %v", coreFile.Class)
	}
	c.PtrSize = 8
	c.Order = coreFile.ByteOrder

	notes, err := readNotes(coreFile)
	if err != nil {
		return nil, err
	}
	c.mem = buildMemory(coreFile, exeELF, exe, filepath.Base(exePath), notes)
	for _, note := range notes {
		if info, ok := note.Desc.(*linuxPrPsInfo); ok {
			c.Pid = int(info.Pid)
			c.Command = cString(info.Args[:])
			if c.Command == "" {
				c.Command = cString(info.Fname[:])
			}
		}
	}
	if logflags.Core() {
		logflags.CoreLogger().Debugf("core %s: pid %d %q, %d notes, %d memory regions", corePath, c.Pid, c.Command, len(notes), c.mem.regions())
	}
	return c, nil
}

// Note is a note from the PT_NOTE prog.
// Relevant types:
// - NT_FILE: File mapping information, e.g. program text mappings. Desc is a LinuxNTFile.
// - NT_PRPSINFO: Information about a process, including PID and signal. Desc is a LinuxPrPsInfo.
type note struct {
	Type elf.NType
	Name string
	Desc interface{} // Decoded Desc from the
}

// readNotes reads all the notes from the notes prog in core.
func readNotes(core *elf.File) ([]*note, error) {
	var notesProg *elf.Prog
	for _, prog := range core.Progs {
		if prog.Type == elf.PT_NOTE {
			notesProg = prog
			break
		}
	}
	if notesProg == nil {
		return nil, nil
	}

	r := notesProg.Open()
	notes := []*note{}
	for {
		note, err := readNote(r, core.ByteOrder)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}

	return notes, nil
}

// readNote reads a single note from r, decoding the descriptor if possible.
func readNote(r io.ReadSeeker, order binary.ByteOrder) (*note, error) {
	// Notes are laid out as described in the SysV ABI:
	// http://www.sco.com/developers/gabi/latest/ch5.pheader.html#note_section
	note := &note{}
	hdr := &elfNotesHdr{}

	err := binary.Read(r, order, hdr)
	if err != nil {
		return nil, err // don't wrap so readNotes sees EOF.
	}
	note.Type = elf.NType(hdr.Type)

	name := make([]byte, hdr.Namesz)
	if _, err := io.ReadFull(r, name); err != nil {
		return nil, fmt.Errorf("reading name: %v", err)
	}
	note.Name = string(name)
	if err := skipPadding(r, 4); err != nil {
		return nil, fmt.Errorf("aligning after name: %v", err)
	}
	desc := make([]byte, hdr.Descsz)
	if _, err := io.ReadFull(r, desc); err != nil {
		return nil, fmt.Errorf("reading desc: %v", err)
	}
	descReader := bytes.NewReader(desc)
	switch note.Type {
	case elf.NT_PRPSINFO:
		info := &linuxPrPsInfo{}
		if err := binary.Read(descReader, order, info); err != nil {
			return nil, fmt.Errorf("reading NT_PRPSINFO: %v", err)
		}
		note.Desc = info
	case _NT_FILE:
		// The structure is a header, including entry count, followed by
		// that many entries, and then the file name of each entry,
		// null-delimited.
		data := &linuxNTFile{}
		if err := binary.Read(descReader, order, &data.linuxNTFileHdr); err != nil {
			return nil, fmt.Errorf("reading NT_FILE header: %v", err)
		}
		for i := 0; i < int(data.Count); i++ {
			entry := &linuxNTFileEntry{}
			if err := binary.Read(descReader, order, entry); err != nil {
				return nil, fmt.Errorf("reading NT_FILE entry %v: %v", i, err)
			}
			data.entries = append(data.entries, entry)
		}
		rest, _ := io.ReadAll(descReader)
		if s := strings.TrimRight(string(rest), "\x00"); s != "" {
			if names := strings.Split(s, "\x00"); len(names) == len(data.entries) {
				data.names = names
			}
		}
		note.Desc = data
	}
	if err := skipPadding(r, 4); err != nil {
		return nil, fmt.Errorf("aligning after desc: %v", err)
	}
	return note, nil
}

// skipPadding moves r to the next multiple of pad.
func skipPadding(r io.ReadSeeker, pad int64) error {
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if pos%pad == 0 {
		return nil
	}
	if _, err := r.Seek(pad-(pos%pad), io.SeekCurrent); err != nil {
		return err
	}
	return nil
}

// buildMemory splices the file mappings of the executable, the loadable
// segments of the executable and the segments saved in the core, in that
// order. File mappings of other files (shared libraries) are not mapped
// since they are not available.
func buildMemory(core, exeELF *elf.File, exe io.ReaderAt, exeName string, notes []*note) *splicedMemory {
	memory := &splicedMemory{}

	for _, note := range notes {
		if note.Type != _NT_FILE {
			continue
		}
		fileNote := note.Desc.(*linuxNTFile)
		for i, entry := range fileNote.entries {
			if fileNote.names != nil && filepath.Base(fileNote.names[i]) != exeName {
				continue
			}
			r := &offsetReaderAt{
				reader: exe,
				offset: entry.Start - (entry.FileOfs * fileNote.PageSize),
			}
			memory.Add(r, entry.Start, entry.End-entry.Start)
		}
	}

	// Load memory segments from exe and then from the core file,
	// allowing the corefile to overwrite previously loaded segments
	for _, elfFile := range []*elf.File{exeELF, core} {
		for _, prog := range elfFile.Progs {
			if prog.Type == elf.PT_LOAD {
				if prog.Filesz == 0 {
					continue
				}
				r := &offsetReaderAt{
					reader: prog.ReaderAt,
					offset: prog.Vaddr,
				}
				memory.Add(r, prog.Vaddr, prog.Filesz)
			}
		}
	}
	return memory
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(string(b))
}

// LinuxPrPsInfo has various structures from the ELF spec and the Linux kernel.
// See http://lxr.free-electrons.com/source/include/uapi/linux/elfcore.h
type linuxPrPsInfo struct {
	State                uint8
	Sname                int8
	Zomb                 uint8
	Nice                 int8
	_                    [4]uint8
	Flag                 uint64
	Uid, Gid             uint32
	Pid, Ppid, Pgrp, Sid int32
	Fname                [16]uint8
	Args                 [80]uint8
}

// LinuxNTFile contains information on mapped files.
type linuxNTFile struct {
	linuxNTFileHdr
	entries []*linuxNTFileEntry
	names   []string // nil when the names could not be decoded
}

// LinuxNTFileHdr is a header struct for NTFile.
type linuxNTFileHdr struct {
	Count    uint64
	PageSize uint64
}

// LinuxNTFileEntry is an entry of an NT_FILE note.
type linuxNTFileEntry struct {
	Start   uint64
	End     uint64
	FileOfs uint64
}

// elfNotesHdr is the ELF Notes header.
// Same size on 64 and 32-bit machines.
type elfNotesHdr struct {
	Namesz uint32
	Descsz uint32
	Type   uint32
}
