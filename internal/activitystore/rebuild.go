package activitystore

import (
	"encoding/json"
	"fmt"

	"docsession/internal/wal"
)

// RebuildSession replays every entry in w and re-records it for sessionID,
// making the projection consistent with the WAL regardless of its prior
// state. Safe to call at any time — after RestoreSessions, after a crash,
// or on an empty database.
func RebuildSession(s *Store, sessionID string, w *wal.WAL) error {
	if err := s.DropSession(sessionID); err != nil {
		return err
	}
	for pos := 1; pos <= w.Len(); pos++ {
		entry, err := w.ReadEntry(pos)
		if err != nil {
			return fmt.Errorf("activitystore: rebuild %s at %d: %w", sessionID, pos, err)
		}
		if err := s.recordEntry(sessionID, pos, entry); err != nil {
			return err
		}
	}
	return nil
}

// RecordEntry flattens a wal.Entry into the flat row shape Record stores.
// Callers that already hold the decoded entry (e.g. right after appending
// it) should use this instead of a full RebuildSession.
func (s *Store) RecordEntry(sessionID string, pos int, entry *wal.Entry) error {
	return s.recordEntry(sessionID, pos, entry)
}

func (s *Store) recordEntry(sessionID string, pos int, entry *wal.Entry) error {
	summaryJSON := ""
	if entry.SyncMeta != nil {
		b, err := json.Marshal(entry.SyncMeta.Summary)
		if err != nil {
			return fmt.Errorf("activitystore: marshal summary for %s#%d: %w", sessionID, pos, err)
		}
		summaryJSON = string(b)
	}
	return s.Record(sessionID, pos, entry.EntryType, entry.Timestamp, entry.Description, summaryJSON)
}
