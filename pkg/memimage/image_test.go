package memimage_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pgdbg/pgdbg/pkg/inspect"
	"github.com/pgdbg/pgdbg/pkg/memimage"
)

var _ inspect.MemoryReader = (*memimage.Image)(nil)

func TestImageReadWrite(t *testing.T) {
	m := memimage.New(memimage.DefaultBase)
	a := m.Alloc(8, 8)
	require.NotZero(t, a)
	require.Zero(t, a%8)
	require.NoError(t, m.WriteUint(a, 4, 0xdeadbeef))

	p := inspect.NewProcess(m, memimage.NewCatalog(), 8)
	buf := make([]byte, 4)
	n, err := p.Mem.ReadMemory(buf, a)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, []byte{0xef, 0xbe, 0xad, 0xde}, buf)

	_, err = m.ReadMemory(buf, a+8)
	require.Error(t, err, "read past the end of the image")
	require.Error(t, m.WriteUint(a, 3, 1))
}
