// Package wal implements the session's persistence layer (§4.4): a
// memory-mapped, append-only, newline-delimited-JSON write-ahead log, the
// framed baseline/checkpoint blob format, and the on-disk Session Index.
//
// Positions are 1-based logical positions over the WAL's entries; position
// 0 is always the baseline. Entry i (0-based in the in-memory offsets
// table) is logical position i+1.
package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

const (
	headerSize      = 8
	initialCapacity = 1 << 20 // 1 MiB, doubled on demand
)

// Errors mirror the teacher's sentinel-per-failure-mode style in
// internal/wal/wal.go, adapted to this format's failure modes.
var (
	ErrClosed       = errors.New("wal: log is closed")
	ErrOutOfRange   = errors.New("wal: position out of range")
	ErrTruncateGrow = errors.New("wal: truncate target exceeds current length")
)

// WAL is one session's memory-mapped append log.
type WAL struct {
	file *os.File
	data []byte // full mmap, including the 8-byte header

	length      uint64 // current payload length, mirrors the 8-byte header
	entryStarts []int  // byte offset (within payload) of each entry's first byte

	closed bool
}

// Open maps path into memory, creating it with an empty header and initial
// capacity if it does not exist, then scans the payload to rebuild the
// offsets table (§4.4 "On open, the module reads the header and scans to
// build an in-memory array of byte offsets").
func Open(path string) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("wal: stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		if err := f.Truncate(headerSize + initialCapacity); err != nil {
			f.Close()
			return nil, fmt.Errorf("wal: initial truncate %s: %w", path, err)
		}
	}

	size, err := fileSize(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("wal: mmap %s: %w", path, err)
	}

	w := &WAL{file: f, data: data}
	w.length = binary.LittleEndian.Uint64(data[:headerSize])
	w.scan()
	return w, nil
}

func fileSize(f *os.File) (int, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("wal: stat: %w", err)
	}
	return int(info.Size()), nil
}

// scan rebuilds entryStarts from the payload bytes data[8 : 8+length],
// splitting on '\n' terminators.
func (w *WAL) scan() {
	w.entryStarts = w.entryStarts[:0]
	payload := w.payload()
	start := 0
	for i, b := range payload {
		if b == '\n' {
			w.entryStarts = append(w.entryStarts, start)
			start = i + 1
		}
	}
}

func (w *WAL) payload() []byte {
	return w.data[headerSize : headerSize+int(w.length)]
}

func (w *WAL) capacity() int {
	return len(w.data) - headerSize
}

// Len reports the current WAL length: the highest valid logical position.
func (w *WAL) Len() int {
	return len(w.entryStarts)
}

// Append writes line (which must not itself contain '\n') as a new
// terminal entry, growing the mapping first if needed, and returns the new
// entry's 1-based logical position.
func (w *WAL) Append(line []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	needed := int(w.length) + len(line) + 1
	if needed > w.capacity() {
		if err := w.grow(needed); err != nil {
			return 0, err
		}
	}

	start := int(w.length)
	copy(w.data[headerSize+start:], line)
	w.data[headerSize+start+len(line)] = '\n'
	w.length = uint64(start + len(line) + 1)
	binary.LittleEndian.PutUint64(w.data[:headerSize], w.length)

	w.entryStarts = append(w.entryStarts, start)
	if err := w.flush(); err != nil {
		return 0, err
	}
	return len(w.entryStarts), nil
}

// ReadAt returns the raw bytes (no trailing newline) of the entry at
// 1-based logical position pos.
func (w *WAL) ReadAt(pos int) ([]byte, error) {
	if w.closed {
		return nil, ErrClosed
	}
	if pos < 1 || pos > len(w.entryStarts) {
		return nil, fmt.Errorf("%w: position %d (len %d)", ErrOutOfRange, pos, len(w.entryStarts))
	}
	i := pos - 1
	start := w.entryStarts[i]
	var end int
	if i+1 < len(w.entryStarts) {
		end = w.entryStarts[i+1] - 1 // exclude the '\n'
	} else {
		end = int(w.length) - 1
	}
	payload := w.payload()
	out := make([]byte, end-start)
	copy(out, payload[start:end])
	return out, nil
}

// TruncateTo discards every entry strictly after 1-based logical position
// n (n may be 0, meaning "discard everything"). It does not shrink the
// underlying file (§4.4 "it does not shrink the file").
func (w *WAL) TruncateTo(n int) error {
	if w.closed {
		return ErrClosed
	}
	if n > len(w.entryStarts) {
		return fmt.Errorf("%w: %d > %d", ErrTruncateGrow, n, len(w.entryStarts))
	}
	if n == len(w.entryStarts) {
		return nil
	}
	var newLength uint64
	if n == 0 {
		newLength = 0
	} else {
		newLength = uint64(w.entryStarts[n])
	}
	w.length = newLength
	binary.LittleEndian.PutUint64(w.data[:headerSize], w.length)
	w.entryStarts = w.entryStarts[:n]
	return w.flush()
}

// grow doubles the mapped capacity until it can hold needed payload bytes.
func (w *WAL) grow(needed int) error {
	newCap := w.capacity()
	if newCap == 0 {
		newCap = initialCapacity
	}
	for newCap < needed {
		newCap *= 2
	}
	if err := unix.Munmap(w.data); err != nil {
		return fmt.Errorf("wal: munmap during grow: %w", err)
	}
	if err := w.file.Truncate(int64(headerSize + newCap)); err != nil {
		return fmt.Errorf("wal: truncate during grow: %w", err)
	}
	data, err := unix.Mmap(int(w.file.Fd()), 0, headerSize+newCap, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("wal: remap during grow: %w", err)
	}
	w.data = data
	return nil
}

// flush asks the OS to write the mapping back; the module does not fsync
// (§4.4 "delegated to the operating system's page cache").
func (w *WAL) flush() error {
	if err := unix.Msync(w.data, unix.MS_ASYNC); err != nil {
		return fmt.Errorf("wal: msync: %w", err)
	}
	return nil
}

// Close unmaps and closes the underlying file.
func (w *WAL) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := unix.Munmap(w.data); err != nil {
		w.file.Close()
		return fmt.Errorf("wal: munmap on close: %w", err)
	}
	return w.file.Close()
}
