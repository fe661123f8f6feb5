// Package filetable implements blockfs's in-memory open-file table: the
// layer between the on-disk directory/inode structures and a caller's file
// descriptor. Every open gets its own Entry; entries on the same file may
// be held by multiple readers concurrently, but a writer gets exclusive access,
// arbitrated with a condition variable rather than a spin-and-retry loop.
package filetable

import (
	"sync"

	"github.com/nrosa/blockfs/directory"
	"github.com/nrosa/blockfs/disk"
	"github.com/nrosa/blockfs/fserrors"
	"github.com/nrosa/blockfs/inode"
)

// Mode strings accepted by Falloc.
const (
	ModeRead      = "r"
	ModeWrite     = "w"
	ModeReadWrite = "w+"
	ModeAppend    = "a"
)

// Entry is one caller's open handle onto a file. Its own mutex serializes
// the read/write/seek calls a single caller makes against it.
type Entry struct {
	mu sync.Mutex

	Inumber int
	Inode   *inode.Inode
	Offset  int
	Mode    string
	isNew   bool
}

// Lock and Unlock expose the entry's mutex to callers (blockfs) that need
// to serialize a read-modify-write sequence spanning multiple method
// calls, such as a write that grows the inode.
func (e *Entry) Lock()   { e.mu.Lock() }
func (e *Entry) Unlock() { e.mu.Unlock() }

// IsNew reports whether Falloc had to create a fresh inode for this entry
// (the file did not previously exist).
func (e *Entry) IsNew() bool { return e.isNew }

// Table is blockfs's single open-file table. All entries for the same
// inode number share the reader/writer exclusion rule: any number of
// ModeRead entries may coexist, but a ModeWrite, ModeReadWrite, or
// ModeAppend entry excludes every other entry on that inode, in either
// direction.
type Table struct {
	mu      sync.Mutex
	cond    *sync.Cond
	entries map[int][]*Entry
}

// New returns an empty file table.
func New() *Table {
	t := &Table{entries: make(map[int][]*Entry)}
	t.cond = sync.NewCond(&t.mu)
	return t
}

func conflicts(existing []*Entry, mode string) bool {
	if mode != ModeRead {
		return len(existing) > 0
	}
	for _, e := range existing {
		if e.Mode != ModeRead {
			return true
		}
	}
	return false
}

// Falloc resolves filename to an inode (allocating a fresh directory slot
// and inode when mode is not ModeRead and the name does not yet exist),
// blocks until the reader/writer exclusion rule admits it, and returns a
// new Entry pinned to that inode.
func (t *Table) Falloc(dev disk.BlockDevice, dir *directory.Directory, filename, mode string) (*Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	inumber, err := dir.Namei(filename)
	isNew := false
	if err != nil {
		if mode == ModeRead {
			return nil, err
		}
		inumber, err = dir.Ialloc(filename)
		if err != nil {
			return nil, err
		}
		isNew = true
	}

	for conflicts(t.entries[inumber], mode) {
		t.cond.Wait()
	}

	var ip *inode.Inode
	if isNew {
		ip = inode.New()
		if err := ip.Store(dev, inumber); err != nil {
			dir.Ifree(inumber)
			return nil, err
		}
	} else {
		ip, err = inode.Load(dev, inumber)
		if err != nil {
			return nil, err
		}
	}

	offset := 0
	if mode == ModeAppend {
		offset = int(ip.Length)
	}

	entry := &Entry{
		Inumber: inumber,
		Inode:   ip,
		Offset:  offset,
		Mode:    mode,
		isNew:   isNew,
	}
	t.entries[inumber] = append(t.entries[inumber], entry)
	return entry, nil
}

// Ffree removes entry from the table and wakes any caller blocked in
// Falloc on the exclusion rule. Returns fserrors.ErrNotFound if entry was
// not present.
func (t *Table) Ffree(entry *Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	list := t.entries[entry.Inumber]
	for i, e := range list {
		if e == entry {
			t.entries[entry.Inumber] = append(list[:i], list[i+1:]...)
			if len(t.entries[entry.Inumber]) == 0 {
				delete(t.entries, entry.Inumber)
			}
			t.cond.Broadcast()
			return nil
		}
	}
	return fserrors.ErrNotFound
}

// Fempty reports whether the table currently has no open entries.
func (t *Table) Fempty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries) == 0
}

// Wait blocks until the table is empty. blockfs.Format does not call it:
// Format builds a new table instead of draining an existing one.
func (t *Table) Wait() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for len(t.entries) != 0 {
		t.cond.Wait()
	}
}
