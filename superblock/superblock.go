// Package superblock implements blockfs's single on-disk superblock:
// device geometry plus the head of the free-block list. It is the one
// component every other layer consults before touching the device, so its
// own state is guarded by a single mutex.
package superblock

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/nrosa/blockfs/disk"
	"github.com/nrosa/blockfs/fserrors"
	"github.com/nrosa/blockfs/inode"
	"github.com/nrosa/blockfs/wire"
)

// Block is the fixed block number the superblock lives at.
const Block = 0

// SuperBlock holds device geometry and the free list head. All access
// beyond construction must go through its exported methods, which take
// its mutex.
type SuperBlock struct {
	mu sync.Mutex

	dev disk.BlockDevice

	TotalBlocks  int
	InodeBlocks  int
	FreeListHead int

	// VolumeID is stamped during Format and persisted in previously
	// unused padding of block 0 (SPEC_FULL.md §4's supplemented volume
	// identity feature); it plays no role in the allocation invariants.
	VolumeID uuid.UUID
}

const (
	offTotalBlocks  = 0
	offInodeBlocks  = 4
	offFreeListHead = 8
	offVolumeID     = 12
)

// New returns an unformatted SuperBlock bound to dev, for callers that are
// about to call Format themselves (blockfs.Format).
func New(dev disk.BlockDevice) *SuperBlock {
	return &SuperBlock{dev: dev}
}

// Mount reads block 0 off dev and validates it against the device's actual
// size, falling back to a fresh Format with defaultInodeBlocks if
// validation fails. It never recomputes the free list head when the block
// it just read is already valid, so the persisted head survives a remount.
func Mount(dev disk.BlockDevice, defaultInodeBlocks int) (*SuperBlock, error) {
	sb := &SuperBlock{dev: dev}
	buf := make([]byte, disk.BlockSize)
	if err := dev.ReadBlock(Block, buf); err != nil {
		return nil, err
	}
	sb.TotalBlocks = int(wire.Int32(buf, offTotalBlocks))
	sb.InodeBlocks = int(wire.Int32(buf, offInodeBlocks))
	sb.FreeListHead = int(wire.Int32(buf, offFreeListHead))
	copy(sb.VolumeID[:], buf[offVolumeID:offVolumeID+16])

	if sb.valid(dev.TotalBlocks()) {
		return sb, nil
	}
	if err := sb.Format(dev.TotalBlocks(), defaultInodeBlocks); err != nil {
		return nil, err
	}
	return sb, nil
}

func (sb *SuperBlock) valid(deviceBlocks int) bool {
	if sb.TotalBlocks != deviceBlocks || sb.InodeBlocks <= 0 {
		return false
	}
	minFreeListHead := 1 + ceilDiv(sb.InodeBlocks*inode.Size, disk.BlockSize)
	return sb.FreeListHead >= minFreeListHead && sb.FreeListHead < sb.TotalBlocks
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// Sync persists the superblock's three geometry fields and volume id to
// block 0.
func (sb *SuperBlock) Sync() error {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.syncLocked()
}

func (sb *SuperBlock) syncLocked() error {
	buf := make([]byte, disk.BlockSize)
	wire.PutInt32(int32(sb.TotalBlocks), buf, offTotalBlocks)
	wire.PutInt32(int32(sb.InodeBlocks), buf, offInodeBlocks)
	wire.PutInt32(int32(sb.FreeListHead), buf, offFreeListHead)
	copy(buf[offVolumeID:offVolumeID+16], sb.VolumeID[:])
	return sb.dev.WriteBlock(Block, buf)
}

// Format lays out a fresh filesystem: numInodeBlocks reserved inumbers
// (packed 16 per block, so they occupy blocks 1..ceil(numInodeBlocks*32/512),
// each stamped with inode.FlagUsed even though none of them are reachable
// from any directory entry yet — liveness is tracked by directory
// membership, not this flag), followed by every remaining block threaded
// into the free list.
func (sb *SuperBlock) Format(totalBlocks, numInodeBlocks int) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	sb.TotalBlocks = totalBlocks
	sb.InodeBlocks = numInodeBlocks
	sb.FreeListHead = 1 + ceilDiv(numInodeBlocks*inode.Size, disk.BlockSize)
	sb.VolumeID = uuid.New()

	fresh := inode.New()
	for i := 0; i < numInodeBlocks; i++ {
		if err := fresh.Store(sb.dev, i); err != nil {
			return fmt.Errorf("superblock: format inode %d: %w", i, err)
		}
	}

	for b := sb.FreeListHead; b < totalBlocks; b++ {
		next := int32(b + 1)
		if b == totalBlocks-1 {
			next = int32(inode.Unassigned)
		}
		buf := make([]byte, disk.BlockSize)
		wire.PutInt32(next, buf, 0)
		if err := sb.dev.WriteBlock(b, buf); err != nil {
			return fmt.Errorf("superblock: format free block %d: %w", b, err)
		}
	}

	return sb.syncLocked()
}

// GetFreeBlock pops and returns the head of the free list, or
// fserrors.ErrNoFreeBlocks if the list is empty.
func (sb *SuperBlock) GetFreeBlock() (int, error) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if sb.FreeListHead < 0 || sb.FreeListHead >= sb.TotalBlocks {
		return 0, fserrors.ErrNoFreeBlocks
	}
	head := sb.FreeListHead
	buf := make([]byte, disk.BlockSize)
	if err := sb.dev.ReadBlock(head, buf); err != nil {
		return 0, err
	}
	sb.FreeListHead = int(wire.Int32(buf, 0))
	if err := sb.syncLocked(); err != nil {
		return 0, err
	}
	return head, nil
}

// ReturnBlock pushes blockNum back onto the head of the free list.
func (sb *SuperBlock) ReturnBlock(blockNum int) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if blockNum < 0 || blockNum >= sb.TotalBlocks {
		return fserrors.ErrBadBlockNumber
	}
	buf := make([]byte, disk.BlockSize)
	wire.PutInt32(int32(sb.FreeListHead), buf, 0)
	if err := sb.dev.WriteBlock(blockNum, buf); err != nil {
		return err
	}
	sb.FreeListHead = blockNum
	return sb.syncLocked()
}
