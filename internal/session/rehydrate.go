package session

import (
	"encoding/json"
	"fmt"

	"docsession/internal/dom"
	"docsession/internal/logging"
	"docsession/internal/patch"
	"docsession/internal/wal"
)

// rehydrate implements §4.4's "Rehydration algorithm": load the nearest
// checkpoint at or below target (or the baseline, for position 0), then
// replay WAL entries from there up to target one at a time. A corrupt or
// invalid entry stops replay rather than failing the call (§4.1
// RestoreSessions, §7 "Restore-time replay never fails the session"); the
// returned position is the last one successfully reached, and degraded
// reports whether that fell short of target.
func rehydrate(s *Session, target int, logger *logging.Logger) (*dom.Document, int, bool, error) {
	q := s.nearestCheckpoint(target)

	var base []byte
	var err error
	if q == 0 {
		base, err = wal.ReadFramed(s.baselinePath())
	} else {
		base, err = wal.ReadFramed(s.checkpointPath(q))
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("session: load base image at position %d: %w", q, err)
	}

	doc, err := dom.OpenFromBytes(base)
	if err != nil {
		return nil, 0, false, fmt.Errorf("session: decode base image at position %d: %w", q, err)
	}

	reached := q
	degraded := false
	for pos := q + 1; pos <= target; pos++ {
		if err := replayEntry(doc, s.w, pos); err != nil {
			logger.Warn("session: corrupt or invalid WAL entry, stopping replay",
				"session_id", s.ID, "position", pos, "error", err)
			degraded = true
			break
		}
		reached = pos
	}
	return doc, reached, degraded, nil
}

// replayEntry applies the WAL entry at pos to doc in place: a Patch entry
// replays through the Patch Engine's same validation path (§4.4 "via the
// Patch Engine's replay path (same validation, no WAL append)"); an
// ExternalSync or Import entry's embedded snapshot is authoritative and
// simply replaces doc wholesale (§3.2 invariant 5).
func replayEntry(doc *dom.Document, w *wal.WAL, pos int) error {
	entry, err := w.ReadEntry(pos)
	if err != nil {
		return err
	}

	if entry.EntryType == wal.EntryExternalSync || entry.EntryType == wal.EntryImport {
		if entry.SyncMeta == nil || len(entry.SyncMeta.DocumentSnapshot) == 0 {
			return fmt.Errorf("session: sync entry at position %d has no document snapshot", pos)
		}
		synced, err := dom.OpenFromBytes(entry.SyncMeta.DocumentSnapshot)
		if err != nil {
			return fmt.Errorf("session: decode sync snapshot at position %d: %w", pos, err)
		}
		*doc = *synced
		return nil
	}

	var ops []patch.Op
	if err := json.Unmarshal([]byte(entry.Patches), &ops); err != nil {
		return fmt.Errorf("session: decode patches at position %d: %w", pos, err)
	}
	return patch.Apply(doc, ops)
}
