// Package fserrors defines the sentinel errors shared across blockfs's
// layers, in the style of a Minix errno table rather than ad-hoc per-package
// errors.
package fserrors

import "errors"

var (
	// ErrBadMode is returned when an operation is attempted under a mode
	// that does not permit it (e.g. reading a write-only entry).
	ErrBadMode = errors.New("bad file mode")

	// ErrNameTooLong indicates a filename the directory cannot store.
	// Directory.Ialloc returns it for an empty name; names longer than the
	// fixed name slot are truncated rather than rejected.
	ErrNameTooLong = errors.New("filename too long")

	// ErrNotFound indicates a name has no entry in the directory.
	ErrNotFound = errors.New("no such file")

	// ErrNoInodes indicates the directory has no free inumber to allocate.
	ErrNoInodes = errors.New("no free inodes")

	// ErrNoFreeBlocks indicates the superblock's free list is exhausted.
	ErrNoFreeBlocks = errors.New("no free blocks")

	// ErrIndirectNull is returned by Inode.AssignBlockForOffset when an
	// indirect-range offset is assigned before the inode's indirect block
	// has been registered. The caller must allocate and register one first.
	ErrIndirectNull = errors.New("indirect block not registered")

	// ErrFileTooLarge indicates an offset beyond the maximum addressable
	// file size (direct + indirect block coverage).
	ErrFileTooLarge = errors.New("file too large")

	// ErrCorruptSuperblock indicates on-disk metadata that cannot be
	// decoded: a serialized root directory of the wrong length or with an
	// out-of-range name length. An invalid block 0 does not produce it;
	// superblock.Mount reformats the device instead.
	ErrCorruptSuperblock = errors.New("corrupt superblock")

	// ErrBadBlockNumber indicates a block number outside [0, totalBlocks).
	ErrBadBlockNumber = errors.New("block number out of range")

	// ErrClosed indicates an operation on a file-table entry that has
	// already been closed and returned to the table.
	ErrClosed = errors.New("file table entry closed")
)
