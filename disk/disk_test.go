package disk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRAMDiskReadWrite(t *testing.T) {
	d := NewRAMDisk(4)
	assert.Equal(t, 4, d.TotalBlocks())

	buf := make([]byte, BlockSize)
	for i := range buf {
		buf[i] = 0x41
	}
	require.NoError(t, d.WriteBlock(2, buf))

	out := make([]byte, BlockSize)
	require.NoError(t, d.ReadBlock(2, out))
	assert.Equal(t, buf, out)

	other := make([]byte, BlockSize)
	require.NoError(t, d.ReadBlock(0, other))
	assert.Equal(t, make([]byte, BlockSize), other)
}

func TestRAMDiskOutOfRange(t *testing.T) {
	d := NewRAMDisk(2)
	buf := make([]byte, BlockSize)
	assert.Error(t, d.ReadBlock(-1, buf))
	assert.Error(t, d.WriteBlock(2, buf))
}

func TestRAMDiskWrongBufferSize(t *testing.T) {
	d := NewRAMDisk(2)
	assert.Error(t, d.ReadBlock(0, make([]byte, 10)))
	assert.Error(t, d.WriteBlock(0, make([]byte, 10)))
}

func TestFileDiskPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.bin")

	d, err := OpenFileDisk(path, 4)
	require.NoError(t, err)

	buf := make([]byte, BlockSize)
	buf[0] = 0xAB
	require.NoError(t, d.WriteBlock(1, buf))
	require.NoError(t, d.Sync())
	require.NoError(t, d.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(4*BlockSize), info.Size())

	reopened, err := OpenFileDisk(path, 4)
	require.NoError(t, err)
	defer reopened.Close()

	out := make([]byte, BlockSize)
	require.NoError(t, reopened.ReadBlock(1, out))
	assert.Equal(t, buf, out)
}
