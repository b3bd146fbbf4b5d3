package core

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestSplicedReader(t *testing.T) {
	data := []byte{}
	data2 := []byte{}
	for i := 0; i < 100; i++ {
		data = append(data, byte(i))
		data2 = append(data2, byte(i+100))
	}

	type region struct {
		data   []byte
		off    uint64
		length uint64
	}
	tests := []struct {
		name     string
		regions  []region
		readAddr uint64
		readLen  int
		want     []byte
	}{
		{
			"Insert after",
			[]region{
				{data, 0, 1},
				{data2, 1, 1},
			},
			0,
			2,
			[]byte{0, 101},
		},
		{
			"Insert before",
			[]region{
				{data, 1, 1},
				{data2, 0, 1},
			},
			0,
			2,
			[]byte{100, 1},
		},
		{
			"Completely overwrite",
			[]region{
				{data, 1, 1},
				{data2, 0, 3},
			},
			0,
			3,
			[]byte{100, 101, 102},
		},
		{
			"Overwrite end",
			[]region{
				{data, 0, 2},
				{data2, 1, 2},
			},
			0,
			3,
			[]byte{0, 101, 102},
		},
		{
			"Overwrite start",
			[]region{
				{data, 0, 3},
				{data2, 0, 2},
			},
			0,
			3,
			[]byte{100, 101, 2},
		},
		{
			"Overwrite start of later region",
			[]region{
				{data, 4, 4},
				{data2, 2, 4},
			},
			2,
			6,
			[]byte{102, 103, 104, 105, 6, 7},
		},
		{
			"Punch hole",
			[]region{
				{data, 0, 5},
				{data2, 1, 3},
			},
			0,
			5,
			[]byte{0, 101, 102, 103, 4},
		},
		{
			"Overlap two",
			[]region{
				{data, 10, 4},
				{data, 14, 4},
				{data2, 12, 4},
			},
			10,
			8,
			[]byte{10, 11, 112, 113, 114, 115, 16, 17},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			mem := &splicedMemory{}
			for _, region := range test.regions {
				r := bytes.NewReader(region.data)
				mem.Add(&offsetReaderAt{r, 0}, region.off, region.length)
			}
			got := make([]byte, test.readLen)
			n, err := mem.ReadMemory(got, test.readAddr)
			if n != test.readLen || err != nil || !reflect.DeepEqual(got, test.want) {
				t.Errorf("ReadAt = %v, %v, %v, want %v, %v, %v", n, err, got, test.readLen, nil, test.want)
			}
		})
	}
}

func TestSplicedReaderUnmapped(t *testing.T) {
	mem := &splicedMemory{}
	mem.Add(&offsetReaderAt{bytes.NewReader(make([]byte, 16)), 0}, 0, 4)
	mem.Add(&offsetReaderAt{bytes.NewReader(make([]byte, 16)), 0}, 8, 4)

	buf := make([]byte, 8)
	if n, err := mem.ReadMemory(buf, 0); err == nil || n != 4 {
		t.Fatalf("expected error after 4 bytes reading across a gap; but was %d, %v", n, err)
	}
	if _, err := mem.ReadMemory(buf, 0x100); err == nil {
		t.Fatal("expected error reading unmapped address")
	}
	if _, err := mem.ReadMemory(buf[:2], 6); err == nil {
		t.Fatal("expected error reading inside a gap")
	}
}

type segment struct {
	typ   elf.ProgType
	vaddr uint64
	data  []byte
}

// writeELF writes a minimal 64 bit little endian ELF file with the given
// program headers and no sections.
func writeELF(t *testing.T, path string, typ elf.Type, segs []segment) {
	t.Helper()
	const ehsize, phentsize = 64, 56
	var buf bytes.Buffer
	hdr := elf.Header64{
		Type:      uint16(typ),
		Machine:   uint16(elf.EM_X86_64),
		Version:   uint32(elf.EV_CURRENT),
		Phoff:     ehsize,
		Ehsize:    ehsize,
		Phentsize: phentsize,
		Phnum:     uint16(len(segs)),
		Shentsize: 64,
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	mustWrite(t, &buf, &hdr)
	off := uint64(ehsize + phentsize*len(segs))
	for _, s := range segs {
		mustWrite(t, &buf, &elf.Prog64{
			Type:   uint32(s.typ),
			Flags:  uint32(elf.PF_R),
			Off:    off,
			Vaddr:  s.vaddr,
			Filesz: uint64(len(s.data)),
			Memsz:  uint64(len(s.data)),
			Align:  1,
		})
		off += uint64(len(s.data))
	}
	for _, s := range segs {
		buf.Write(s.data)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
}

func mustWrite(t *testing.T, buf *bytes.Buffer, v interface{}) {
	t.Helper()
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		t.Fatal(err)
	}
}

func noteBytes(t *testing.T, typ elf.NType, desc []byte) []byte {
	var b bytes.Buffer
	name := []byte("CORE\x00")
	mustWrite(t, &b, &elfNotesHdr{Namesz: uint32(len(name)), Descsz: uint32(len(desc)), Type: uint32(typ)})
	b.Write(name)
	for b.Len()%4 != 0 {
		b.WriteByte(0)
	}
	b.Write(desc)
	for b.Len()%4 != 0 {
		b.WriteByte(0)
	}
	return b.Bytes()
}

func writeCoreFixture(t *testing.T) (corePath, exePath string) {
	dir := t.TempDir()
	exePath = filepath.Join(dir, "postgres")
	corePath = filepath.Join(dir, "core.4242")

	writeELF(t, exePath, elf.ET_EXEC, []segment{
		{elf.PT_LOAD, 0x400000, []byte("exe data segment")},
	})

	var fileDesc bytes.Buffer
	mustWrite(t, &fileDesc, &linuxNTFileHdr{Count: 2, PageSize: 0x1000})
	mustWrite(t, &fileDesc, &linuxNTFileEntry{Start: 0x400000, End: 0x402000, FileOfs: 0})
	mustWrite(t, &fileDesc, &linuxNTFileEntry{Start: 0x7f0000, End: 0x7f1000, FileOfs: 0})
	fileDesc.WriteString("/usr/lib/postgresql/16/bin/postgres\x00/lib/x86_64-linux-gnu/libc.so.6\x00")

	var info linuxPrPsInfo
	info.Pid = 4242
	copy(info.Fname[:], "postgres")
	copy(info.Args[:], "postgres: alice shop [local] SELECT")
	var infoDesc bytes.Buffer
	mustWrite(t, &infoDesc, &info)

	notes := append(noteBytes(t, elf.NT_PRPSINFO, infoDesc.Bytes()), noteBytes(t, _NT_FILE, fileDesc.Bytes())...)
	writeELF(t, corePath, elf.ET_CORE, []segment{
		{elf.PT_NOTE, 0, notes},
		{elf.PT_LOAD, 0x400004, []byte("XY")},
		{elf.PT_LOAD, 0x600000, []byte("backend heap")},
	})
	return corePath, exePath
}

func TestOpen(t *testing.T) {
	corePath, exePath := writeCoreFixture(t)
	c, err := Open(corePath, exePath)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if c.PtrSize != 8 || c.Order != binary.LittleEndian {
		t.Fatalf("expected 8 byte little endian pointers; but was %d %v", c.PtrSize, c.Order)
	}
	if c.Pid != 4242 {
		t.Fatalf("expected pid 4242; but was %d", c.Pid)
	}
	if c.Command != "postgres: alice shop [local] SELECT" {
		t.Fatalf("unexpected command %q", c.Command)
	}

	reads := []struct {
		addr uint64
		want string
	}{
		{0x400000, "exe XYta"},
		{0x400010, "\x02\x00"}, // e_type of the executable, through the NT_FILE mapping
		{0x600000, "backend heap"},
		{0x600008, "heap"},
	}
	for _, r := range reads {
		buf := make([]byte, len(r.want))
		n, err := c.ReadMemory(buf, r.addr)
		if err != nil || n != len(buf) || string(buf) != r.want {
			t.Errorf("ReadMemory(%#x) = %d, %v, %q, want %q", r.addr, n, err, buf, r.want)
		}
	}

	if _, err := c.ReadMemory(make([]byte, 4), 0x7f0000); err == nil {
		t.Error("expected libc mapping to be unreadable")
	}
	if _, err := c.ReadMemory(make([]byte, 16), 0x600000); err == nil {
		t.Error("expected error reading past the end of a segment")
	}
}

func TestOpenNotACore(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(p, []byte("this is certainly not an ELF file"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(p, p); !errors.Is(err, ErrUnrecognizedFormat) {
		t.Fatalf("expected ErrUnrecognizedFormat; but was %v", err)
	}

	_, exePath := writeCoreFixture(t)
	if _, err := Open(exePath, exePath); err == nil {
		t.Fatal("expected error opening an executable as a core")
	}
}
