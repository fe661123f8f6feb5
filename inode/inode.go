// Package inode implements blockfs's on-disk inode: per-file metadata plus
// the direct/indirect pointer table that maps byte offsets to block
// numbers. It is deliberately ignorant of the superblock's allocation
// policy — it only knows how to read and write the pointers it is told
// about, and keeps no back-pointer to the superblock.
package inode

import (
	"fmt"

	"github.com/nrosa/blockfs/disk"
	"github.com/nrosa/blockfs/fserrors"
	"github.com/nrosa/blockfs/wire"
)

const (
	// Size is the on-disk size of one inode slot, in bytes.
	Size = 32

	// DirectCount is the number of direct block pointers per inode.
	DirectCount = 11

	// PerBlock is the number of inode slots packed into one disk block.
	PerBlock = disk.BlockSize / Size

	// PointersPerIndirect is the number of block-number entries that fit
	// in one indirect block.
	PointersPerIndirect = disk.BlockSize / 2

	// MaxFileSize is the number of bytes an inode can address through its
	// direct and single indirect block.
	MaxFileSize = (DirectCount + PointersPerIndirect) * disk.BlockSize

	// Unassigned is the sentinel for an unset block pointer.
	Unassigned = -1

	// FlagUnused and FlagUsed mark an inode slot's liveness. Format stamps
	// every freshly formatted inode with FlagUsed despite it being
	// unused, matching the on-disk convention the free-list-based
	// allocator depends on: liveness is tracked by directory membership,
	// not by this flag.
	FlagUnused = 0
	FlagUsed   = 1
)

// Inode is the in-memory form of one 32-byte on-disk inode slot.
type Inode struct {
	Length   int32
	Count    int16
	Flag     int16
	Direct   [DirectCount]int16
	Indirect int16
}

// New returns a fresh, unassigned inode with FlagUsed set, matching the
// on-disk convention Format writes for every inode slot regardless of
// whether it is actually reachable from the directory.
func New() *Inode {
	ip := &Inode{Flag: FlagUsed}
	for i := range ip.Direct {
		ip.Direct[i] = Unassigned
	}
	ip.Indirect = Unassigned
	return ip
}

func slotLocation(inumber int) (blockNum, offset int) {
	return 1 + inumber/PerBlock, (inumber % PerBlock) * Size
}

// Load reads inumber's containing inode block and decodes the 32-byte slot
// at its offset.
func Load(dev disk.BlockDevice, inumber int) (*Inode, error) {
	blockNum, offset := slotLocation(inumber)
	buf := make([]byte, disk.BlockSize)
	if err := dev.ReadBlock(blockNum, buf); err != nil {
		return nil, err
	}
	return decode(buf, offset), nil
}

func decode(buf []byte, offset int) *Inode {
	ip := &Inode{}
	ip.Length = wire.Int32(buf, offset)
	ip.Count = wire.Int16(buf, offset+4)
	ip.Flag = wire.Int16(buf, offset+6)
	for i := 0; i < DirectCount; i++ {
		ip.Direct[i] = wire.Int16(buf, offset+8+i*2)
	}
	ip.Indirect = wire.Int16(buf, offset+8+DirectCount*2)
	return ip
}

func (ip *Inode) encode(buf []byte, offset int) {
	wire.PutInt32(ip.Length, buf, offset)
	wire.PutInt16(ip.Count, buf, offset+4)
	wire.PutInt16(ip.Flag, buf, offset+6)
	for i := 0; i < DirectCount; i++ {
		wire.PutInt16(ip.Direct[i], buf, offset+8+i*2)
	}
	wire.PutInt16(ip.Indirect, buf, offset+8+DirectCount*2)
}

// Store read-modify-writes inumber's containing block so the other 15
// inode slots sharing it are not clobbered.
func (ip *Inode) Store(dev disk.BlockDevice, inumber int) error {
	blockNum, offset := slotLocation(inumber)
	buf := make([]byte, disk.BlockSize)
	if err := dev.ReadBlock(blockNum, buf); err != nil {
		return err
	}
	ip.encode(buf, offset)
	return dev.WriteBlock(blockNum, buf)
}

// BlockForOffset returns the block number backing byte offset off, or
// Unassigned if no block has been allocated there yet.
func (ip *Inode) BlockForOffset(dev disk.BlockDevice, off int) (int, error) {
	if off < DirectCount*disk.BlockSize {
		return int(ip.Direct[off/disk.BlockSize]), nil
	}
	if ip.Indirect == Unassigned {
		return Unassigned, nil
	}
	buf := make([]byte, disk.BlockSize)
	if err := dev.ReadBlock(int(ip.Indirect), buf); err != nil {
		return 0, err
	}
	index := (off - DirectCount*disk.BlockSize) / disk.BlockSize
	return int(wire.Int16(buf, index*2)), nil
}

// AssignBlockForOffset records blockNumber as the block backing byte
// offset off. For an indirect-range offset, the indirect block must
// already be registered via RegisterIndirect; otherwise it fails with
// fserrors.ErrIndirectNull, leaving the caller to allocate and register
// one first.
func (ip *Inode) AssignBlockForOffset(dev disk.BlockDevice, off int, blockNumber int) error {
	if off < DirectCount*disk.BlockSize {
		ip.Direct[off/disk.BlockSize] = int16(blockNumber)
		return nil
	}
	if ip.Indirect == Unassigned {
		return fserrors.ErrIndirectNull
	}
	buf := make([]byte, disk.BlockSize)
	if err := dev.ReadBlock(int(ip.Indirect), buf); err != nil {
		return err
	}
	index := (off - DirectCount*disk.BlockSize) / disk.BlockSize
	wire.PutInt16(int16(blockNumber), buf, index*2)
	return dev.WriteBlock(int(ip.Indirect), buf)
}

// RegisterIndirect assigns blockNumber as the inode's indirect block. It
// succeeds only once every direct slot is populated and no indirect block
// is already registered; it does not initialize the indirect block's
// contents.
func (ip *Inode) RegisterIndirect(blockNumber int) bool {
	if ip.Indirect != Unassigned {
		return false
	}
	for _, d := range ip.Direct {
		if d == Unassigned {
			return false
		}
	}
	ip.Indirect = int16(blockNumber)
	return true
}

// UnregisterIndirect reads the current indirect block's contents, zeroes
// it on disk, clears the pointer, and returns what it used to contain.
// Returns nil if no indirect block was registered.
func (ip *Inode) UnregisterIndirect(dev disk.BlockDevice) ([]byte, error) {
	if ip.Indirect == Unassigned {
		return nil, nil
	}
	old := make([]byte, disk.BlockSize)
	if err := dev.ReadBlock(int(ip.Indirect), old); err != nil {
		return nil, err
	}
	if err := dev.WriteBlock(int(ip.Indirect), make([]byte, disk.BlockSize)); err != nil {
		return nil, err
	}
	ip.Indirect = Unassigned
	return old, nil
}

// String renders a one-line diagnostic dump of the inode's fields.
func (ip *Inode) String() string {
	return fmt.Sprintf("inode{length=%d count=%d flag=%d direct=%v indirect=%d}",
		ip.Length, ip.Count, ip.Flag, ip.Direct, ip.Indirect)
}
