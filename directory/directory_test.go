package directory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nrosa/blockfs/fserrors"
)

func TestNewReservesRootSlot(t *testing.T) {
	d := New(16)
	inum, err := d.Namei("/")
	require.NoError(t, err)
	assert.Equal(t, RootInumber, inum)
}

func TestIallocAndNamei(t *testing.T) {
	d := New(16)
	inum, err := d.Ialloc("hello.txt")
	require.NoError(t, err)
	assert.NotEqual(t, RootInumber, inum)

	got, err := d.Namei("hello.txt")
	require.NoError(t, err)
	assert.Equal(t, inum, got)
}

func TestIallocTruncatesOverlongName(t *testing.T) {
	d := New(16)
	long := make([]byte, MaxNameLength+5)
	for i := range long {
		long[i] = 'a'
	}
	inum, err := d.Ialloc(string(long))
	require.NoError(t, err)

	want := string(long[:MaxNameLength])
	got, err := d.Namei(want)
	require.NoError(t, err)
	assert.Equal(t, inum, got)

	_, err = d.Namei(string(long))
	assert.ErrorIs(t, err, fserrors.ErrNotFound)
}

func TestIallocRejectsEmptyName(t *testing.T) {
	d := New(16)
	_, err := d.Ialloc("")
	assert.ErrorIs(t, err, fserrors.ErrNameTooLong)
}

func TestIallocExhaustion(t *testing.T) {
	d := New(2)
	_, err := d.Ialloc("a")
	require.NoError(t, err)
	_, err = d.Ialloc("b")
	assert.ErrorIs(t, err, fserrors.ErrNoInodes)
}

func TestIfreeFreesSlotForReuse(t *testing.T) {
	d := New(4)
	inum, err := d.Ialloc("x")
	require.NoError(t, err)
	assert.True(t, d.Ifree(inum))

	_, err = d.Namei("x")
	assert.ErrorIs(t, err, fserrors.ErrNotFound)

	again, err := d.Ialloc("y")
	require.NoError(t, err)
	assert.Equal(t, inum, again)
}

func TestIfreeRejectsRootAndUnusedSlots(t *testing.T) {
	d := New(4)
	assert.False(t, d.Ifree(RootInumber))
	assert.False(t, d.Ifree(2))
}

func TestNameiNotFound(t *testing.T) {
	d := New(4)
	_, err := d.Namei("missing")
	assert.ErrorIs(t, err, fserrors.ErrNotFound)
}

func TestToBytesFromBytesRoundTrip(t *testing.T) {
	d := New(8)
	_, err := d.Ialloc("alpha")
	require.NoError(t, err)
	_, err = d.Ialloc("beta")
	require.NoError(t, err)

	buf := d.ToBytes()

	reloaded := New(8)
	require.NoError(t, reloaded.FromBytes(buf))

	inum, err := reloaded.Namei("alpha")
	require.NoError(t, err)
	assert.NotEqual(t, RootInumber, inum)

	_, err = reloaded.Namei("beta")
	require.NoError(t, err)

	root, err := reloaded.Namei("/")
	require.NoError(t, err)
	assert.Equal(t, RootInumber, root)
}
