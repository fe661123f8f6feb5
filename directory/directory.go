// Package directory implements blockfs's single flat directory: a fixed
// table mapping file names to inode numbers, with slot 0 permanently
// reserved for the root entry "/". It is serialized as two parallel
// arrays — name lengths, then fixed-width name slots.
package directory

import (
	"sync"
	"unicode/utf16"

	"github.com/nrosa/blockfs/fserrors"
	"github.com/nrosa/blockfs/wire"
)

// MaxNameLength is the largest number of UTF-16 code units a name may
// contain; each occupies 2 bytes on disk, so a name slot is
// MaxNameLength*2 bytes wide.
const MaxNameLength = 30

const nameSlotBytes = MaxNameLength * 2

// RootInumber is the inode number permanently bound to "/".
const RootInumber = 0

// RootName is the reserved name stored in slot 0.
const RootName = "/"

// Directory holds one slot per inode: a UTF-16 code-unit length and the
// name itself. A zero length marks the slot unused, except slot 0 which is
// always "/".
type Directory struct {
	mu sync.Mutex

	sizes []int32
	names []string
}

// New returns a directory sized for numInodes inodes, with slot 0
// pre-bound to "/".
func New(numInodes int) *Directory {
	d := &Directory{
		sizes: make([]int32, numInodes),
		names: make([]string, numInodes),
	}
	d.sizes[RootInumber] = int32(len(utf16.Encode([]rune(RootName))))
	d.names[RootInumber] = RootName
	return d
}

// Size returns the byte size of the serialized directory.
func (d *Directory) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sizes)*4 + len(d.sizes)*nameSlotBytes
}

// ToBytes serializes the directory: N 4-byte lengths, then N 60-byte
// fixed-width name slots, mirroring Directory.directory2bytes.
func (d *Directory) ToBytes() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := len(d.sizes)
	buf := make([]byte, n*4+n*nameSlotBytes)
	for i := 0; i < n; i++ {
		wire.PutInt32(d.sizes[i], buf, i*4)
	}
	base := n * 4
	for i := 0; i < n; i++ {
		units := utf16.Encode([]rune(d.names[i]))
		for j, u := range units {
			putUint16(u, buf, base+i*nameSlotBytes+j*2)
		}
	}
	return buf
}

// FromBytes replaces the directory's contents by decoding buf, which must
// have been produced by ToBytes for the same inode count.
func (d *Directory) FromBytes(buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := len(d.sizes)
	if len(buf) != n*4+n*nameSlotBytes {
		return fserrors.ErrCorruptSuperblock
	}
	for i := 0; i < n; i++ {
		d.sizes[i] = wire.Int32(buf, i*4)
	}
	base := n * 4
	for i := 0; i < n; i++ {
		size := int(d.sizes[i])
		if size < 0 || size > MaxNameLength {
			return fserrors.ErrCorruptSuperblock
		}
		units := make([]uint16, size)
		for j := 0; j < size; j++ {
			units[j] = getUint16(buf, base+i*nameSlotBytes+j*2)
		}
		d.names[i] = string(utf16.Decode(units))
	}
	return nil
}

// Ialloc finds the first unused slot, binds name to it (truncated to
// MaxNameLength code units, per Directory.ialloc), and returns the slot's
// inode number. It returns fserrors.ErrNameTooLong for an empty name, and
// fserrors.ErrNoInodes if the directory is full. Search starts at slot 1,
// leaving slot 0 for "/".
func (d *Directory) Ialloc(name string) (int, error) {
	units := utf16.Encode([]rune(name))
	if len(units) == 0 {
		return 0, fserrors.ErrNameTooLong
	}
	if len(units) > MaxNameLength {
		units = units[:MaxNameLength]
		name = string(utf16.Decode(units))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for i := 1; i < len(d.sizes); i++ {
		if d.sizes[i] == 0 {
			d.sizes[i] = int32(len(units))
			d.names[i] = name
			return i, nil
		}
	}
	return 0, fserrors.ErrNoInodes
}

// Ifree clears inumber's slot, returning false if inumber is out of range,
// already unused, or RootInumber.
func (d *Directory) Ifree(inumber int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if inumber <= RootInumber || inumber >= len(d.sizes) {
		return false
	}
	if d.sizes[inumber] == 0 {
		return false
	}
	d.sizes[inumber] = 0
	d.names[inumber] = ""
	return true
}

// Listing is one occupied directory slot, returned by List.
type Listing struct {
	Name    string
	Inumber int
}

// List returns every occupied slot, including the root entry, ordered by
// inode number. Used by cmd/blockfsctl's ls and fsck subcommands.
func (d *Directory) List() []Listing {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []Listing
	for i, n := range d.names {
		if d.sizes[i] != 0 {
			out = append(out, Listing{Name: n, Inumber: i})
		}
	}
	return out
}

// Namei returns the inode number bound to name, or fserrors.ErrNotFound.
func (d *Directory) Namei(name string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, n := range d.names {
		if d.sizes[i] != 0 && n == name {
			return i, nil
		}
	}
	return 0, fserrors.ErrNotFound
}

func putUint16(v uint16, buf []byte, off int) {
	buf[off] = byte(v >> 8)
	buf[off+1] = byte(v)
}

func getUint16(buf []byte, off int) uint16 {
	return uint16(buf[off])<<8 | uint16(buf[off+1])
}
