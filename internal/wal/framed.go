package wal

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

// WriteFramed writes payload to path using the framed blob format (§3.1,
// §4.4): an 8-byte little-endian length header followed by the raw bytes.
// The write lands via a temp file + rename so a baseline or checkpoint
// write is never observed half-written, mirroring the index.json atomicity
// rule in §4.4.
func WriteFramed(path string, payload []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".wal-frame-*")
	if err != nil {
		return fmt.Errorf("wal: create temp frame for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	var header [headerSize]byte
	binary.LittleEndian.PutUint64(header[:], uint64(len(payload)))
	if _, err := tmp.Write(header[:]); err != nil {
		tmp.Close()
		return fmt.Errorf("wal: write frame header for %s: %w", path, err)
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("wal: write frame payload for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("wal: close temp frame for %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("wal: rename temp frame into %s: %w", path, err)
	}
	return nil
}

// ReadFramed reads a framed blob, trusting the header length rather than
// the file's actual size (§4.4 "the underlying file may be larger than
// L + 8; the header is authoritative").
func ReadFramed(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wal: read frame %s: %w", path, err)
	}
	if len(raw) < headerSize {
		return nil, fmt.Errorf("wal: frame %s shorter than header", path)
	}
	length := binary.LittleEndian.Uint64(raw[:headerSize])
	end := headerSize + int(length)
	if end > len(raw) {
		return nil, fmt.Errorf("wal: frame %s header length %d exceeds file size", path, length)
	}
	out := make([]byte, length)
	copy(out, raw[headerSize:end])
	return out, nil
}
