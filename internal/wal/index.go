package wal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// IndexVersion is the current Session Index schema version (§6.3, §6.5).
const IndexVersion = 1

// IndexEntry describes one known session within the Session Index.
type IndexEntry struct {
	ID                  string `json:"id"`
	SourcePath          string `json:"source_path,omitempty"`
	CreatedAt           string `json:"created_at"`
	LastModifiedAt      string `json:"last_modified_at"`
	DocxFile            string `json:"docx_file"`
	WALCount            int    `json:"wal_count"`
	CursorPosition      int    `json:"cursor_position"`
	CheckpointPositions []int  `json:"checkpoint_positions"`
}

// Index is the process-wide Session Index (§3.1, §6.5): one file per
// sessions directory listing every known session.
type Index struct {
	Version  int          `json:"version"`
	Sessions []IndexEntry `json:"sessions"`
}

// LoadIndex reads the index at path. A missing file yields a fresh,
// empty index rather than an error, since a brand-new sessions directory
// has none yet.
func LoadIndex(path string) (*Index, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Index{Version: IndexVersion}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("wal: read index %s: %w", path, err)
	}
	var idx Index
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, fmt.Errorf("wal: unmarshal index %s: %w", path, err)
	}
	return &idx, nil
}

// SaveIndex serializes idx to path atomically: write to a temp file in the
// same directory, then rename over the target (§4.4 "Index mutations are
// atomic").
func SaveIndex(path string, idx *Index) error {
	raw, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("wal: marshal index: %w", err)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".index-*.json")
	if err != nil {
		return fmt.Errorf("wal: create temp index file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("wal: write temp index file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("wal: close temp index file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("wal: rename temp index file into %s: %w", path, err)
	}
	return nil
}

// Find returns the entry for id, or nil if unknown.
func (idx *Index) Find(id string) *IndexEntry {
	for i := range idx.Sessions {
		if idx.Sessions[i].ID == id {
			return &idx.Sessions[i]
		}
	}
	return nil
}

// Upsert replaces the entry matching entry.ID, or appends it if not
// already present.
func (idx *Index) Upsert(entry IndexEntry) {
	for i := range idx.Sessions {
		if idx.Sessions[i].ID == entry.ID {
			idx.Sessions[i] = entry
			return
		}
	}
	idx.Sessions = append(idx.Sessions, entry)
}

// Remove deletes the entry for id, if present.
func (idx *Index) Remove(id string) {
	for i := range idx.Sessions {
		if idx.Sessions[i].ID == id {
			idx.Sessions = append(idx.Sessions[:i], idx.Sessions[i+1:]...)
			return
		}
	}
}
