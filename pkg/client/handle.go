package client

import (
	"sync"

	"github.com/tostrovsky/tp-so-alternativo/pkg/fs"
)

type remoteFile struct {
	path   string
	handle []byte
}

// handleTable maps local descriptors to the sealed handles the server issued.
// Descriptors are never reused.
type handleTable struct {
	mu      sync.Mutex
	entries map[fs.Descriptor]remoteFile
	next    fs.Descriptor
}

func newHandleTable() *handleTable {
	return &handleTable{
		entries: make(map[fs.Descriptor]remoteFile),
	}
}

// store records handle and returns the descriptor assigned to it
func (t *handleTable) store(path string, handle []byte) fs.Descriptor {
	t.mu.Lock()
	defer t.mu.Unlock()

	fd := t.next
	t.next++
	t.entries[fd] = remoteFile{path: path, handle: handle}
	return fd
}

func (t *handleTable) get(fd fs.Descriptor) (remoteFile, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rf, ok := t.entries[fd]
	return rf, ok
}

func (t *handleTable) remove(fd fs.Descriptor) (remoteFile, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rf, ok := t.entries[fd]
	delete(t.entries, fd)
	return rf, ok
}

// drain empties the table and returns what it held
func (t *handleTable) drain() map[fs.Descriptor]remoteFile {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.entries
	t.entries = make(map[fs.Descriptor]remoteFile)
	return entries
}

func (t *handleTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
