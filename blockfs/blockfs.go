// Package blockfs is the filesystem facade: it wires together
// disk.BlockDevice, superblock.SuperBlock, directory.Directory, and
// filetable.Table into the Format/Open/Read/Write/Seek/Close/Delete/Sync
// operations a caller actually uses.
package blockfs

import (
	"fmt"
	"io"

	"github.com/nrosa/blockfs/directory"
	"github.com/nrosa/blockfs/disk"
	"github.com/nrosa/blockfs/fserrors"
	"github.com/nrosa/blockfs/filetable"
	"github.com/nrosa/blockfs/inode"
	"github.com/nrosa/blockfs/superblock"
	"github.com/nrosa/blockfs/wire"
)

// FileSystem is a mounted blockfs volume.
type FileSystem struct {
	dev   disk.BlockDevice
	sb    *superblock.SuperBlock
	dir   *directory.Directory
	table *filetable.Table
}

// Format lays out a brand new filesystem on dev with numInodeBlocks reserved
// inumbers. sb.Format already persists the superblock; the root directory
// itself is left unwritten, since it is empty and inode 0's zero length
// already represents that — writing it here would mean going through the
// normal file write path and eating into the very free list
// superblock.Format just laid out (see loadDirectory).
func Format(dev disk.BlockDevice, numInodeBlocks int) (*FileSystem, error) {
	sb := superblock.New(dev)
	if err := sb.Format(dev.TotalBlocks(), numInodeBlocks); err != nil {
		return nil, err
	}

	fs := &FileSystem{
		dev:   dev,
		sb:    sb,
		dir:   directory.New(numInodeBlocks),
		table: filetable.New(),
	}
	return fs, nil
}

// Mount reads an existing filesystem off dev, falling back to Format with
// defaultInodeBlocks if dev's superblock is missing or invalid
// (superblock.Mount's own contract).
func Mount(dev disk.BlockDevice, defaultInodeBlocks int) (*FileSystem, error) {
	sb, err := superblock.Mount(dev, defaultInodeBlocks)
	if err != nil {
		return nil, err
	}

	fs := &FileSystem{
		dev:   dev,
		sb:    sb,
		dir:   directory.New(sb.InodeBlocks),
		table: filetable.New(),
	}
	if err := fs.loadDirectory(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileSystem) loadDirectory() error {
	entry, err := fs.table.Falloc(fs.dev, fs.dir, directory.RootName, filetable.ModeRead)
	if err != nil {
		return err
	}
	defer fs.table.Ffree(entry)

	buf := make([]byte, fs.dir.Size())
	entry.Lock()
	n, err := fs.readLocked(entry, buf)
	entry.Unlock()
	if err != nil {
		return err
	}
	if n == 0 {
		// Root directory was never persisted through the normal write
		// path (a freshly formatted or reformatted volume): fs.dir
		// already holds the empty default state from directory.New.
		return nil
	}
	if n != len(buf) {
		return fserrors.ErrCorruptSuperblock
	}
	return fs.dir.FromBytes(buf)
}

// Sync persists the superblock and the root directory's contents to disk.
func (fs *FileSystem) Sync() error {
	data := fs.dir.ToBytes()

	entry, err := fs.table.Falloc(fs.dev, fs.dir, directory.RootName, filetable.ModeWrite)
	if err != nil {
		return err
	}

	entry.Lock()
	entry.Offset = 0
	_, werr := fs.writeLocked(entry, data)
	entry.Unlock()

	ferr := fs.table.Ffree(entry)
	if werr != nil {
		return werr
	}
	if ferr != nil {
		return ferr
	}
	return fs.sb.Sync()
}

// Open resolves filename to a file handle. mode must be one of
// filetable.ModeRead, filetable.ModeWrite, filetable.ModeReadWrite, or
// filetable.ModeAppend; opening in ModeWrite an existing file truncates it,
// releasing its blocks back to the free list.
func (fs *FileSystem) Open(filename, mode string) (*filetable.Entry, error) {
	switch mode {
	case filetable.ModeRead, filetable.ModeWrite, filetable.ModeReadWrite, filetable.ModeAppend:
	default:
		return nil, fserrors.ErrBadMode
	}

	entry, err := fs.table.Falloc(fs.dev, fs.dir, filename, mode)
	if err != nil {
		return nil, err
	}

	if mode == filetable.ModeWrite && !entry.IsNew() {
		entry.Lock()
		err := fs.truncateLocked(entry)
		entry.Unlock()
		if err != nil {
			fs.table.Ffree(entry)
			return nil, err
		}
	}
	return entry, nil
}

// Close persists entry's inode and releases it from the open-file table.
func (fs *FileSystem) Close(entry *filetable.Entry) error {
	entry.Lock()
	err := entry.Inode.Store(fs.dev, entry.Inumber)
	entry.Unlock()

	if ferr := fs.table.Ffree(entry); err == nil {
		err = ferr
	}
	return err
}

// Fsize returns entry's current file length in bytes.
func (fs *FileSystem) Fsize(entry *filetable.Entry) int {
	entry.Lock()
	defer entry.Unlock()
	return int(entry.Inode.Length)
}

// Read copies up to len(buf) bytes starting at entry's current offset into
// buf, advancing the offset by the number of bytes actually read. entry
// must have been opened with filetable.ModeRead or filetable.ModeReadWrite.
func (fs *FileSystem) Read(entry *filetable.Entry, buf []byte) (int, error) {
	if entry.Mode != filetable.ModeRead && entry.Mode != filetable.ModeReadWrite {
		return 0, fserrors.ErrBadMode
	}
	entry.Lock()
	defer entry.Unlock()
	return fs.readLocked(entry, buf)
}

func (fs *FileSystem) readLocked(entry *filetable.Entry, buf []byte) (int, error) {
	remaining := int(entry.Inode.Length) - entry.Offset
	if remaining <= 0 {
		return 0, nil
	}
	toRead := len(buf)
	if toRead > remaining {
		toRead = remaining
	}

	read := 0
	for read < toRead {
		blockNum, err := entry.Inode.BlockForOffset(fs.dev, entry.Offset)
		if err != nil {
			return read, err
		}
		if blockNum == inode.Unassigned {
			break
		}

		blockBuf := make([]byte, disk.BlockSize)
		if err := fs.dev.ReadBlock(blockNum, blockBuf); err != nil {
			return read, err
		}

		offInBlock := entry.Offset % disk.BlockSize
		n := disk.BlockSize - offInBlock
		if n > toRead-read {
			n = toRead - read
		}
		copy(buf[read:read+n], blockBuf[offInBlock:offInBlock+n])
		read += n
		entry.Offset += n
	}
	return read, nil
}

// Write copies buf into the file at entry's current offset, allocating
// blocks as needed and advancing the offset and, if the file grew, its
// length. It loops until buf is exhausted or allocation fails, so a write
// spanning multiple blocks never returns short just because it crossed a
// block boundary. entry must have been opened with filetable.ModeWrite,
// filetable.ModeReadWrite, or filetable.ModeAppend.
func (fs *FileSystem) Write(entry *filetable.Entry, buf []byte) (int, error) {
	if entry.Mode == filetable.ModeRead {
		return 0, fserrors.ErrBadMode
	}
	entry.Lock()
	defer entry.Unlock()
	if entry.Mode == filetable.ModeAppend {
		entry.Offset = int(entry.Inode.Length)
	}
	return fs.writeLocked(entry, buf)
}

func (fs *FileSystem) writeLocked(entry *filetable.Entry, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	written := 0
	for written < len(buf) {
		if entry.Offset >= inode.MaxFileSize {
			if written == 0 {
				return 0, fserrors.ErrFileTooLarge
			}
			break
		}

		blockNum, err := entry.Inode.BlockForOffset(fs.dev, entry.Offset)
		if err != nil {
			return written, err
		}
		if blockNum == inode.Unassigned {
			blockNum, err = fs.allocateBlockForOffset(entry, entry.Offset)
			if err != nil {
				return written, err
			}
		}

		blockBuf := make([]byte, disk.BlockSize)
		if err := fs.dev.ReadBlock(blockNum, blockBuf); err != nil {
			return written, err
		}

		offInBlock := entry.Offset % disk.BlockSize
		n := disk.BlockSize - offInBlock
		if n > len(buf)-written {
			n = len(buf) - written
		}
		copy(blockBuf[offInBlock:offInBlock+n], buf[written:written+n])
		if err := fs.dev.WriteBlock(blockNum, blockBuf); err != nil {
			return written, err
		}

		written += n
		entry.Offset += n
		if int32(entry.Offset) > entry.Inode.Length {
			entry.Inode.Length = int32(entry.Offset)
		}
	}

	if err := entry.Inode.Store(fs.dev, entry.Inumber); err != nil {
		return written, err
	}
	return written, nil
}

func (fs *FileSystem) allocateBlockForOffset(entry *filetable.Entry, offset int) (int, error) {
	if offset >= inode.DirectCount*disk.BlockSize && entry.Inode.Indirect == int16(inode.Unassigned) {
		indirectBlock, err := fs.sb.GetFreeBlock()
		if err != nil {
			return 0, err
		}
		if !entry.Inode.RegisterIndirect(indirectBlock) {
			fs.sb.ReturnBlock(indirectBlock)
			return 0, fserrors.ErrIndirectNull
		}
		if err := fs.initIndirectBlock(indirectBlock); err != nil {
			return 0, err
		}
	}

	dataBlock, err := fs.sb.GetFreeBlock()
	if err != nil {
		return 0, err
	}
	if err := entry.Inode.AssignBlockForOffset(fs.dev, offset, dataBlock); err != nil {
		fs.sb.ReturnBlock(dataBlock)
		return 0, err
	}
	return dataBlock, nil
}

func (fs *FileSystem) initIndirectBlock(blockNum int) error {
	buf := make([]byte, disk.BlockSize)
	for i := 0; i < inode.PointersPerIndirect; i++ {
		wire.PutInt16(int16(inode.Unassigned), buf, i*2)
	}
	return fs.dev.WriteBlock(blockNum, buf)
}

// truncateLocked frees every block reachable from entry's inode and resets
// its length to zero, for re-opening an existing file in ModeWrite.
func (fs *FileSystem) truncateLocked(entry *filetable.Entry) error {
	ip := entry.Inode
	for i := range ip.Direct {
		if ip.Direct[i] != int16(inode.Unassigned) {
			fs.sb.ReturnBlock(int(ip.Direct[i]))
			ip.Direct[i] = int16(inode.Unassigned)
		}
	}

	if ip.Indirect != int16(inode.Unassigned) {
		indirectBlockNum := int(ip.Indirect)
		old, err := ip.UnregisterIndirect(fs.dev)
		if err != nil {
			return err
		}
		for i := 0; i < inode.PointersPerIndirect; i++ {
			b := wire.Int16(old, i*2)
			if b != int16(inode.Unassigned) {
				fs.sb.ReturnBlock(int(b))
			}
		}
		fs.sb.ReturnBlock(indirectBlockNum)
	}

	ip.Length = 0
	entry.Offset = 0
	return ip.Store(fs.dev, entry.Inumber)
}

// Seek repositions entry's offset per whence (io.SeekStart, io.SeekCurrent,
// io.SeekEnd), clamped to [0, file length].
func (fs *FileSystem) Seek(entry *filetable.Entry, offset int, whence int) (int, error) {
	entry.Lock()
	defer entry.Unlock()

	var newOffset int
	switch whence {
	case io.SeekStart:
		newOffset = offset
	case io.SeekCurrent:
		newOffset = entry.Offset + offset
	case io.SeekEnd:
		newOffset = int(entry.Inode.Length) + offset
	default:
		return 0, fserrors.ErrBadMode
	}

	if newOffset < 0 {
		newOffset = 0
	}
	if newOffset > int(entry.Inode.Length) {
		newOffset = int(entry.Inode.Length)
	}
	entry.Offset = newOffset
	return newOffset, nil
}

// List returns every occupied directory slot, for cmd/blockfsctl's ls and
// fsck subcommands.
func (fs *FileSystem) List() []directory.Listing {
	return fs.dir.List()
}

// Stat opens filename read-only just long enough to report its size.
func (fs *FileSystem) Stat(filename string) (int, error) {
	entry, err := fs.Open(filename, filetable.ModeRead)
	if err != nil {
		return 0, err
	}
	size := fs.Fsize(entry)
	if err := fs.Close(entry); err != nil {
		return 0, err
	}
	return size, nil
}

// Fsck walks every occupied directory slot and returns one report per
// slot, marking Broken any inode that cannot be loaded or whose indirect
// pointer is registered but unreadable. It is read-only and
// never modifies the volume. A freshly formatted inode's flag cannot by
// itself distinguish a genuinely corrupt inode from an unused one, so
// Fsck only ever inspects inodes reachable from a directory entry.
type FsckReport struct {
	Inumber int
	Name    string
	Length  int
	Broken  bool
	Detail  string
}

func (fs *FileSystem) Fsck() []FsckReport {
	var reports []FsckReport
	for _, entry := range fs.dir.List() {
		ip, err := inode.Load(fs.dev, entry.Inumber)
		if err != nil {
			reports = append(reports, FsckReport{Inumber: entry.Inumber, Name: entry.Name, Broken: true, Detail: err.Error()})
			continue
		}
		r := FsckReport{Inumber: entry.Inumber, Name: entry.Name, Length: int(ip.Length)}
		if ip.Indirect != int16(inode.Unassigned) {
			buf := make([]byte, disk.BlockSize)
			if err := fs.dev.ReadBlock(int(ip.Indirect), buf); err != nil {
				r.Broken = true
				r.Detail = fmt.Sprintf("unreadable indirect block %d: %v", ip.Indirect, err)
			}
		}
		reports = append(reports, r)
	}
	return reports
}

// Delete removes filename's directory entry. It deliberately does not
// reclaim the file's data blocks — the inode and everything it points to
// stay allocated until the volume is reformatted.
func (fs *FileSystem) Delete(filename string) bool {
	inumber, err := fs.dir.Namei(filename)
	if err != nil {
		return false
	}
	return fs.dir.Ifree(inumber)
}
