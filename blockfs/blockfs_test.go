package blockfs

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nrosa/blockfs/disk"
	"github.com/nrosa/blockfs/filetable"
	"github.com/nrosa/blockfs/superblock"
)

func formatFS(t *testing.T, totalBlocks, numInodeBlocks int) (*FileSystem, disk.BlockDevice) {
	t.Helper()
	dev := disk.NewRAMDisk(totalBlocks)
	fs, err := Format(dev, numInodeBlocks)
	require.NoError(t, err)
	return fs, dev
}

func TestFormatProducesExpectedFreeListHead(t *testing.T) {
	fs, _ := formatFS(t, 1000, 64)
	sb, err := superblock.Mount(fs.dev, 64)
	require.NoError(t, err)
	assert.Equal(t, 5, sb.FreeListHead)
}

func TestWriteThenReadSingleBlock(t *testing.T) {
	fs, _ := formatFS(t, 200, 8)

	w, err := fs.Open("a.txt", filetable.ModeWrite)
	require.NoError(t, err)
	payload := bytes.Repeat([]byte{0x41}, 512)
	n, err := fs.Write(w, payload)
	require.NoError(t, err)
	assert.Equal(t, 512, n)
	require.NoError(t, fs.Close(w))

	r, err := fs.Open("a.txt", filetable.ModeRead)
	require.NoError(t, err)
	out := make([]byte, 512)
	n, err = fs.Read(r, out)
	require.NoError(t, err)
	assert.Equal(t, 512, n)
	assert.Equal(t, payload, out)
	require.NoError(t, fs.Close(r))
}

func TestWriteSpanningDirectAndIndirectBlocks(t *testing.T) {
	fs, _ := formatFS(t, 400, 8)

	w, err := fs.Open("big.bin", filetable.ModeWrite)
	require.NoError(t, err)
	payload := make([]byte, 5633)
	for i := range payload {
		payload[i] = byte(i)
	}
	n, err := fs.Write(w, payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	require.NoError(t, fs.Close(w))

	r, err := fs.Open("big.bin", filetable.ModeRead)
	require.NoError(t, err)
	out := make([]byte, len(payload))
	n, err = fs.Read(r, out)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, out)
	require.NoError(t, fs.Close(r))
}

func TestReopenInWriteModeTruncates(t *testing.T) {
	fs, _ := formatFS(t, 200, 8)

	w, err := fs.Open("x", filetable.ModeWrite)
	require.NoError(t, err)
	_, err = fs.Write(w, bytes.Repeat([]byte{1}, 1200))
	require.NoError(t, err)
	require.NoError(t, fs.Close(w))

	w2, err := fs.Open("x", filetable.ModeWrite)
	require.NoError(t, err)
	assert.Equal(t, 0, fs.Fsize(w2))
	require.NoError(t, fs.Close(w2))
}

func TestDeleteNonexistentFileReturnsFalse(t *testing.T) {
	fs, _ := formatFS(t, 200, 8)
	assert.False(t, fs.Delete("nope"))
}

func TestDeleteDoesNotReclaimBlocks(t *testing.T) {
	fs, _ := formatFS(t, 200, 8)

	w, err := fs.Open("leak.bin", filetable.ModeWrite)
	require.NoError(t, err)
	_, err = fs.Write(w, bytes.Repeat([]byte{1}, 512))
	require.NoError(t, err)
	require.NoError(t, fs.Close(w))

	before, err := fs.sb.GetFreeBlock()
	require.NoError(t, err)
	require.NoError(t, fs.sb.ReturnBlock(before))

	assert.True(t, fs.Delete("leak.bin"))

	after, err := fs.sb.GetFreeBlock()
	require.NoError(t, err)
	require.NoError(t, fs.sb.ReturnBlock(after))
	assert.Equal(t, before, after)
}

func TestSeekSetThenCurrent(t *testing.T) {
	fs, _ := formatFS(t, 200, 8)

	w, err := fs.Open("s", filetable.ModeWrite)
	require.NoError(t, err)
	_, err = fs.Write(w, bytes.Repeat([]byte{1}, 100))
	require.NoError(t, err)
	require.NoError(t, fs.Close(w))

	r, err := fs.Open("s", filetable.ModeRead)
	require.NoError(t, err)
	pos, err := fs.Seek(r, 10, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, 10, pos)

	pos, err = fs.Seek(r, -5, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, 5, pos)
	require.NoError(t, fs.Close(r))
}

func TestMountAfterFormatRecoversDirectory(t *testing.T) {
	dev := disk.NewRAMDisk(400)
	fs, err := Format(dev, 8)
	require.NoError(t, err)

	w, err := fs.Open("persisted", filetable.ModeWrite)
	require.NoError(t, err)
	_, err = fs.Write(w, []byte("hello"))
	require.NoError(t, err)
	require.NoError(t, fs.Close(w))
	require.NoError(t, fs.Sync())

	reopened, err := Mount(dev, 8)
	require.NoError(t, err)

	r, err := reopened.Open("persisted", filetable.ModeRead)
	require.NoError(t, err)
	out := make([]byte, 5)
	n, err := reopened.Read(r, out)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(out))
	require.NoError(t, reopened.Close(r))
}

func TestAppendSeeksToEndOfFile(t *testing.T) {
	fs, _ := formatFS(t, 200, 8)

	w, err := fs.Open("app", filetable.ModeWrite)
	require.NoError(t, err)
	_, err = fs.Write(w, []byte("abc"))
	require.NoError(t, err)
	require.NoError(t, fs.Close(w))

	a, err := fs.Open("app", filetable.ModeAppend)
	require.NoError(t, err)
	_, err = fs.Write(a, []byte("def"))
	require.NoError(t, err)
	require.NoError(t, fs.Close(a))

	r, err := fs.Open("app", filetable.ModeRead)
	require.NoError(t, err)
	out := make([]byte, 6)
	_, err = fs.Read(r, out)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(out))
	require.NoError(t, fs.Close(r))
}

func TestReadWriteModeCanBothWriteAndReadBack(t *testing.T) {
	fs, _ := formatFS(t, 200, 8)

	rw, err := fs.Open("rw.txt", filetable.ModeReadWrite)
	require.NoError(t, err)
	n, err := fs.Write(rw, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	_, err = fs.Seek(rw, 0, io.SeekStart)
	require.NoError(t, err)
	out := make([]byte, 5)
	n, err = fs.Read(rw, out)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(out))
	require.NoError(t, fs.Close(rw))
}

func TestReadWriteModeExcludesOtherWriters(t *testing.T) {
	fs, _ := formatFS(t, 200, 8)

	rw, err := fs.Open("excl.txt", filetable.ModeReadWrite)
	require.NoError(t, err)

	var wg sync.WaitGroup
	admitted := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		entry, err := fs.Open("excl.txt", filetable.ModeReadWrite)
		if err == nil {
			close(admitted)
			fs.Close(entry)
		}
	}()

	select {
	case <-admitted:
		t.Fatal("second read-write open admitted while the first holds the file")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, fs.Close(rw))
	wg.Wait()
}

func TestAppendIgnoresIntermediateSeek(t *testing.T) {
	fs, _ := formatFS(t, 200, 8)

	w, err := fs.Open("app2", filetable.ModeWrite)
	require.NoError(t, err)
	_, err = fs.Write(w, []byte("abc"))
	require.NoError(t, err)
	require.NoError(t, fs.Close(w))

	a, err := fs.Open("app2", filetable.ModeAppend)
	require.NoError(t, err)
	_, err = fs.Seek(a, 0, io.SeekStart)
	require.NoError(t, err)
	_, err = fs.Write(a, []byte("def"))
	require.NoError(t, err)
	require.NoError(t, fs.Close(a))

	r, err := fs.Open("app2", filetable.ModeRead)
	require.NoError(t, err)
	out := make([]byte, 6)
	_, err = fs.Read(r, out)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(out))
	require.NoError(t, fs.Close(r))
}
