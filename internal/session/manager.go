package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"docsession/internal/activitystore"
	"docsession/internal/config"
	"docsession/internal/dom"
	"docsession/internal/docerr"
	"docsession/internal/logging"
	"docsession/internal/patch"
	"docsession/internal/reconcile"
	"docsession/internal/wal"
)

// Manager owns the registry of open sessions, restores them on start-up,
// and serializes every mutation through each session's own writer lock
// (§4.1, §5).
type Manager struct {
	cfg     *config.Config
	logger  *logging.Logger
	tracker *reconcile.Tracker

	// activity is the optional, non-authoritative SQLite activity
	// projection (§6.1). It is nil when cfg.ActivityDBPath is empty;
	// every use site checks for nil so the store is never load-bearing.
	activity *activitystore.Store

	// mu is the registry lock (§5 "Registry lock"): it guards lookup and
	// creation in sessions only, and is released before any session's own
	// writer lock is acquired.
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager constructs a Manager rooted at cfg.SessionsDir, creating the
// directory and starting the external-change tracker.
func NewManager(cfg *config.Config, logger *logging.Logger) (*Manager, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, docerr.New(docerr.KindIO, "new_manager", cfg.SessionsDir, "", err)
	}
	tracker, err := reconcile.NewTracker(time.Duration(cfg.DebounceMillis)*time.Millisecond, cfg.SimilarityThreshold)
	if err != nil {
		return nil, docerr.New(docerr.KindInternal, "new_manager", "", "", err)
	}

	var activity *activitystore.Store
	if cfg.ActivityDBPath != "" {
		store, err := activitystore.Open(cfg.ActivityDBPath)
		if err != nil {
			// The projection is never authoritative (§6.1): a database
			// that fails to open degrades to "no activity history"
			// rather than blocking Manager construction.
			logger.Warn("session: activity store unavailable, continuing without it",
				"path", cfg.ActivityDBPath, "error", err)
		} else {
			activity = store
		}
	}

	return &Manager{
		cfg:      cfg,
		logger:   logger,
		tracker:  tracker,
		activity: activity,
		sessions: make(map[string]*Session),
	}, nil
}

func (m *Manager) indexPath() string     { return filepath.Join(m.cfg.SessionsDir, "index.json") }
func (m *Manager) indexLockPath() string { return filepath.Join(m.cfg.SessionsDir, "index.lock") }

// Open implements §4.1 Open: with a path, reads the file, establishes a
// baseline, and creates an empty WAL; without one, synthesizes an empty
// document.
func (m *Manager) Open(path string) (*Session, error) {
	var doc *dom.Document
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, docerr.New(docerr.KindIO, "open", path, "check that the file exists and is readable", err)
		}
		doc, err = dom.OpenFromBytes(data)
		if err != nil {
			return nil, docerr.New(docerr.KindFormat, "open", path, "the file is not a well-formed document package", err)
		}
	} else {
		doc = dom.CreateEmpty()
	}
	dom.EnsureIDs(doc)

	now := time.Now()
	s := &Session{
		ID:             newSessionID(),
		SourcePath:     path,
		CreatedAt:      now,
		LastModifiedAt: now,
		Doc:            doc,
		dir:            m.cfg.SessionsDir,
	}
	s.DocxFile = s.ID + ".docx"

	baseline, err := doc.Save()
	if err != nil {
		return nil, docerr.New(docerr.KindInternal, "open", path, "", err)
	}
	if err := wal.WriteFramed(s.baselinePath(), baseline); err != nil {
		return nil, docerr.New(docerr.KindIO, "open", path, "", err)
	}

	w, err := wal.Open(s.walPath())
	if err != nil {
		return nil, docerr.New(docerr.KindIO, "open", path, "", err)
	}
	s.w = w

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	if err := m.persistIndexEntry(s); err != nil {
		return nil, err
	}

	if path != "" {
		if err := m.tracker.StartWatching(s.ID, path, baseline); err != nil {
			m.logger.Warn("session: could not watch source file for external changes",
				"session_id", s.ID, "path", path, "error", err)
		}
	}

	m.logger.Info("session opened", "session_id", s.ID, "source_path", path)
	return s, nil
}

// Get implements §4.1 Get.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, docerr.NotFound("get", id)
	}
	return s, nil
}

// Resolve implements §4.1 Resolve: prefer an exact session id match, then a
// source-path match among open sessions, else fall back to Open.
func (m *Manager) Resolve(idOrPath string) (*Session, error) {
	if s, err := m.Get(idOrPath); err == nil {
		return s, nil
	}

	m.mu.RLock()
	for _, s := range m.sessions {
		if s.SourcePath == idOrPath {
			m.mu.RUnlock()
			return s, nil
		}
	}
	m.mu.RUnlock()

	return m.Open(idOrPath)
}

// Close implements §4.1 Close: irreversibly removes the session's DOM, WAL,
// baseline, checkpoints, and index entry.
func (m *Manager) Close(id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m.tracker.StopWatching(id)

	if err := s.w.Close(); err != nil {
		m.logger.Warn("session: error closing WAL on session close", "session_id", id, "error", err)
	}

	_ = os.Remove(s.baselinePath())
	_ = os.Remove(s.walPath())
	_ = os.Remove(s.lockPath())
	for _, pos := range s.CheckpointPositions {
		_ = os.Remove(s.checkpointPath(pos))
	}

	if err := m.withIndexLock(func(idx *wal.Index) error {
		idx.Remove(id)
		return nil
	}); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	if m.activity != nil {
		if err := m.activity.DropSession(id); err != nil {
			m.logger.Warn("session: activity store cleanup failed", "session_id", id, "error", err)
		}
	}

	m.logger.Info("session closed", "session_id", id)
	return nil
}

// Save implements §4.1 Save: serialize the current DOM and write it to dst,
// or to the session's source path if dst is empty.
func (m *Manager) Save(id, dst string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	target := dst
	if target == "" {
		target = s.SourcePath
	}
	if target == "" {
		return docerr.New(docerr.KindIO, "save", "", "pass an explicit destination for a session opened without a source path", nil)
	}

	data, err := s.Doc.Save()
	if err != nil {
		return docerr.New(docerr.KindInternal, "save", target, "", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return docerr.New(docerr.KindIO, "save", target, "", err)
	}
	return nil
}

// RestoreSessions implements §4.1 RestoreSessions: reconstruct every
// session listed in the index by loading its nearest checkpoint and
// replaying the WAL range up to its recorded cursor. A session whose own
// reconstruction fails is logged and skipped rather than aborting the
// whole restore.
func (m *Manager) RestoreSessions() error {
	idx, err := wal.LoadIndex(m.indexPath())
	if err != nil {
		return docerr.New(docerr.KindIO, "restore_sessions", m.indexPath(), "", err)
	}

	for _, entry := range idx.Sessions {
		s, err := m.restoreOne(entry)
		if err != nil {
			m.logger.Warn("session: failed to restore session, skipping", "session_id", entry.ID, "error", err)
			continue
		}

		m.mu.Lock()
		m.sessions[s.ID] = s
		m.mu.Unlock()

		if m.activity != nil {
			if err := activitystore.RebuildSession(m.activity, s.ID, s.w); err != nil {
				m.logger.Warn("session: activity store rebuild failed", "session_id", s.ID, "error", err)
			}
		}

		if s.SourcePath != "" {
			snapshot, err := s.Doc.Save()
			if err == nil {
				if err := m.tracker.StartWatching(s.ID, s.SourcePath, snapshot); err != nil {
					m.logger.Warn("session: could not resume watching source file",
						"session_id", s.ID, "path", s.SourcePath, "error", err)
				}
			}
		}
	}
	return nil
}

func (m *Manager) restoreOne(entry wal.IndexEntry) (*Session, error) {
	s := &Session{
		ID:                  entry.ID,
		SourcePath:          entry.SourcePath,
		DocxFile:            entry.DocxFile,
		CheckpointPositions: append([]int(nil), entry.CheckpointPositions...),
		dir:                 m.cfg.SessionsDir,
	}
	if t, err := time.Parse(time.RFC3339Nano, entry.CreatedAt); err == nil {
		s.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, entry.LastModifiedAt); err == nil {
		s.LastModifiedAt = t
	}

	w, err := wal.Open(s.walPath())
	if err != nil {
		return nil, fmt.Errorf("session: open WAL: %w", err)
	}
	s.w = w

	doc, reached, degraded, err := rehydrate(s, entry.CursorPosition, m.logger)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("session: rehydrate: %w", err)
	}
	s.Doc = doc
	s.Cursor = reached
	s.Degraded = degraded
	return s, nil
}

// persistIndexEntry writes or updates s's entry in the Session Index under
// the cross-process index lock (§4.4 "Index mutations are atomic").
func (m *Manager) persistIndexEntry(s *Session) error {
	return m.withIndexLock(func(idx *wal.Index) error {
		idx.Upsert(wal.IndexEntry{
			ID:                  s.ID,
			SourcePath:          s.SourcePath,
			CreatedAt:           s.CreatedAt.UTC().Format(time.RFC3339Nano),
			LastModifiedAt:      s.LastModifiedAt.UTC().Format(time.RFC3339Nano),
			DocxFile:            s.ID + ".docx",
			WALCount:            s.w.Len(),
			CursorPosition:      s.Cursor,
			CheckpointPositions: s.CheckpointPositions,
		})
		return nil
	})
}

// withIndexLock acquires the Session Index's cross-process advisory lock,
// loads it, runs mutate, and saves the result (§4.4, §5 "Cross-process
// coordination").
func (m *Manager) withIndexLock(mutate func(idx *wal.Index) error) error {
	lock, err := wal.Lock(m.indexLockPath())
	if err != nil {
		return docerr.New(docerr.KindIO, "index_lock", m.indexLockPath(), "", err)
	}
	defer lock.Unlock()

	idx, err := wal.LoadIndex(m.indexPath())
	if err != nil {
		return docerr.New(docerr.KindIO, "index_load", m.indexPath(), "", err)
	}
	if err := mutate(idx); err != nil {
		return err
	}
	if err := wal.SaveIndex(m.indexPath(), idx); err != nil {
		return docerr.New(docerr.KindIO, "index_save", m.indexPath(), "", err)
	}
	return nil
}

// Shutdown stops the external-change tracker and releases its watcher
// handle and the activity store's database connection; it does not close
// individual sessions.
func (m *Manager) Shutdown() error {
	if m.activity != nil {
		if err := m.activity.Close(); err != nil {
			m.logger.Warn("session: activity store close failed", "error", err)
		}
	}
	return m.tracker.Stop()
}

// ActivityHistory returns the recorded activity rows for a session, or nil
// with ok=false if the activity store is not configured (§6.1).
func (m *Manager) ActivityHistory(id string) ([]activitystore.Record, bool, error) {
	if m.activity == nil {
		return nil, false, nil
	}
	recs, err := m.activity.History(id)
	if err != nil {
		return nil, true, err
	}
	return recs, true, nil
}

// ApplyPatch implements §4.1 ApplyPatch: run the Patch Engine under the
// session's writer lock, truncate any redo tail, append the resulting
// Patch entry, advance the cursor, and possibly force an auto-checkpoint.
func (m *Manager) ApplyPatch(id string, rawBatch []byte) (int, error) {
	s, err := m.Get(id)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ops, err := patch.ParseBatch(rawBatch)
	if err != nil {
		return 0, err
	}
	// patch.Apply is itself atomic per batch (§4.3, §8 invariant 6): on
	// any error s.Doc is left byte-for-byte unchanged, so no WAL entry is
	// appended and the cursor does not move.
	if err := patch.Apply(s.Doc, ops); err != nil {
		return 0, err
	}

	if s.Cursor < s.w.Len() {
		if err := s.w.TruncateTo(s.Cursor); err != nil {
			return 0, docerr.New(docerr.KindIO, "apply_patch", id, "", err)
		}
		s.CheckpointPositions = keepAtMost(s.CheckpointPositions, s.Cursor)
	}

	patchesJSON, err := json.Marshal(ops)
	if err != nil {
		return 0, docerr.New(docerr.KindInternal, "apply_patch", id, "", err)
	}
	entry := wal.NewPatchEntry(string(patchesJSON), "")
	pos, err := s.w.AppendEntry(entry)
	if err != nil {
		return 0, docerr.New(docerr.KindIO, "apply_patch", id, "", err)
	}
	s.Cursor = pos
	s.LastModifiedAt = time.Now()
	m.recordActivity(id, pos, &entry)

	if m.shouldAutoCheckpoint(s) {
		if err := m.writeCheckpoint(s, pos); err != nil {
			m.logger.Warn("session: auto-checkpoint failed", "session_id", id, "error", err)
		}
	}
	if m.cfg.AutoSave && s.SourcePath != "" {
		if data, err := s.Doc.Save(); err == nil {
			if err := os.WriteFile(s.SourcePath, data, 0o644); err != nil {
				m.logger.Warn("session: auto-save failed", "session_id", id, "error", err)
			}
		}
	}
	if s.SourcePath != "" {
		// Refresh the tracker's comparison snapshot so a later external
		// edit is diffed against the session's current content.
		if data, err := s.Doc.Save(); err == nil {
			if err := m.tracker.StartWatching(s.ID, s.SourcePath, data); err != nil {
				m.logger.Warn("session: could not refresh external-change snapshot", "session_id", id, "error", err)
			}
		}
	}

	if err := m.persistIndexEntry(s); err != nil {
		return 0, err
	}
	return pos, nil
}

// DryRunPatch implements §4.3 "Dry-run mode": run the same pipeline on a
// clone of the DOM and report the would-be outcome without touching the
// session or WAL.
func (m *Manager) DryRunPatch(id string, rawBatch []byte) (*dom.Document, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ops, err := patch.ParseBatch(rawBatch)
	if err != nil {
		return nil, err
	}
	return patch.DryRun(s.Doc, ops)
}

// Undo implements §4.1 Undo: decrement the cursor (bounded to 0) and
// rebuild the DOM from the nearest checkpoint at or below the new cursor.
func (m *Manager) Undo(id string, steps int) (int, error) {
	s, err := m.Get(id)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.Cursor - steps
	if target < 0 {
		target = 0
	}
	return m.rebuildTo(s, target, "undo")
}

// Redo implements §4.1 Redo: increment the cursor (bounded to WAL length)
// and replay forward from the session's current DOM rather than rebuilding
// from a checkpoint, since nothing between the current cursor and the new
// one has been undone out from under it.
func (m *Manager) Redo(id string, steps int) (int, error) {
	s, err := m.Get(id)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.Cursor + steps
	if target > s.w.Len() {
		target = s.w.Len()
	}
	for pos := s.Cursor + 1; pos <= target; pos++ {
		if err := replayEntry(s.Doc, s.w, pos); err != nil {
			m.logger.Warn("session: redo stopped on invalid entry", "session_id", id, "position", pos, "error", err)
			s.Degraded = true
			break
		}
		s.Cursor = pos
	}
	s.LastModifiedAt = time.Now()
	if err := m.persistIndexEntry(s); err != nil {
		return 0, err
	}
	return s.Cursor, nil
}

// JumpTo implements §4.1 JumpTo: move to an absolute position, always
// rebuilding from the nearest checkpoint to the target (§4.1 "like
// undo/redo but absolute").
func (m *Manager) JumpTo(id string, position int) (int, error) {
	s, err := m.Get(id)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if position < 0 || position > s.w.Len() {
		return 0, docerr.New(docerr.KindResolve, "jump_to", id,
			fmt.Sprintf("position must be between 0 and %d", s.w.Len()), nil)
	}
	return m.rebuildTo(s, position, "jump_to")
}

// rebuildTo rebuilds s's DOM from the nearest checkpoint through target
// and installs the result, used by Undo and JumpTo (§4.1).
func (m *Manager) rebuildTo(s *Session, target int, op string) (int, error) {
	doc, reached, degraded, err := rehydrate(s, target, m.logger)
	if err != nil {
		return 0, docerr.New(docerr.KindInternal, op, s.ID, "", err)
	}
	s.Doc = doc
	s.Cursor = reached
	s.Degraded = degraded
	s.LastModifiedAt = time.Now()
	if err := m.persistIndexEntry(s); err != nil {
		return 0, err
	}
	return reached, nil
}

// Snapshot implements §4.1 Snapshot: write a checkpoint at the current
// cursor, optionally discarding redo history (§3.3, §4.4 "Compaction").
func (m *Manager) Snapshot(id string, discardRedo bool) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if discardRedo {
		if s.Cursor < s.w.Len() {
			if err := s.w.TruncateTo(s.Cursor); err != nil {
				return docerr.New(docerr.KindIO, "snapshot", id, "", err)
			}
		}
		s.CheckpointPositions = keepAtMost(s.CheckpointPositions, s.Cursor)
	}

	if err := m.writeCheckpoint(s, s.Cursor); err != nil {
		return err
	}
	return m.persistIndexEntry(s)
}

// shouldAutoCheckpoint implements §4.1's auto-checkpoint policy: a forced
// checkpoint when entries since the last checkpoint exceed the configured
// interval, or total WAL entries exceed the compaction threshold.
func (m *Manager) shouldAutoCheckpoint(s *Session) bool {
	last := s.nearestCheckpoint(s.Cursor)
	sinceLast := s.Cursor - last
	return sinceLast > m.cfg.CheckpointInterval || s.w.Len() > m.cfg.CompactionThreshold
}

// writeCheckpoint writes a framed checkpoint image at pos and records pos
// in s.CheckpointPositions (§4.4 "Checkpoint").
func (m *Manager) writeCheckpoint(s *Session, pos int) error {
	data, err := s.Doc.Save()
	if err != nil {
		return docerr.New(docerr.KindInternal, "checkpoint", s.ID, "", err)
	}
	if err := wal.WriteFramed(s.checkpointPath(pos), data); err != nil {
		return docerr.New(docerr.KindIO, "checkpoint", s.ID, "", err)
	}
	if !containsInt(s.CheckpointPositions, pos) {
		s.CheckpointPositions = append(s.CheckpointPositions, pos)
		sort.Ints(s.CheckpointPositions)
	}
	return nil
}

// recordActivity mirrors one WAL entry into the activity projection, if
// configured. Failures are logged, never propagated: the projection is
// never authoritative (§6.1).
func (m *Manager) recordActivity(sessionID string, pos int, entry *wal.Entry) {
	if m.activity == nil {
		return
	}
	if err := m.activity.RecordEntry(sessionID, pos, entry); err != nil {
		m.logger.Warn("session: activity store record failed", "session_id", sessionID, "position", pos, "error", err)
	}
}

// hasPriorSync reports whether w already holds an ExternalSync or Import
// entry anywhere in its history — the provenance distinction SPEC_FULL.md
// resolves the Import/ExternalSync Open Question with: Import tags exactly
// a session's first-ever sync, regardless of how many Patch entries
// precede it, not merely "the WAL was empty" (a session can easily have
// prior Patch entries before its first external sync).
func hasPriorSync(w *wal.WAL) (bool, error) {
	for pos := 1; pos <= w.Len(); pos++ {
		entry, err := w.ReadEntry(pos)
		if err != nil {
			return false, err
		}
		if entry.EntryType == wal.EntryExternalSync || entry.EntryType == wal.EntryImport {
			return true, nil
		}
	}
	return false, nil
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// keepAtMost filters positions down to those not exceeding max, preserving
// order, for dropping checkpoints beyond a truncated cursor (§3.3, §4.1,
// §4.4).
func keepAtMost(positions []int, max int) []int {
	out := positions[:0:0]
	for _, p := range positions {
		if p <= max {
			out = append(out, p)
		}
	}
	return out
}

// SyncResult reports the outcome of an external-sync attempt (§7
// "External-sync failures leave the session state unchanged and return a
// SyncResult carrying Success=false and a message").
type SyncResult struct {
	Success   bool
	Message   string
	Position  int
	Summary   reconcile.ChangeSummaryCounts
	Uncovered []wal.UncoveredChange
}

// CheckExternalChange implements §4.5.3 "check": retrieve the pending
// unacknowledged external change for a session, if any.
func (m *Manager) CheckExternalChange(id string) (*reconcile.PendingChange, bool, error) {
	if _, err := m.Get(id); err != nil {
		return nil, false, err
	}
	pc, ok := m.tracker.Pending(id)
	return pc, ok, nil
}

// AcknowledgeExternalChange implements §4.5.3 "acknowledge": mark a
// session's pending external change as seen without applying it.
func (m *Manager) AcknowledgeExternalChange(id string) error {
	if _, err := m.Get(id); err != nil {
		return err
	}
	m.tracker.Acknowledge(id)
	return nil
}

// SyncExternalChange implements §4.5.3 "sync" and the single-WAL-entry
// algorithm in §4.5 "Sync as a single WAL entry": absorb the pending
// external change as one ExternalSync (or Import, on a session's very
// first sync) WAL entry and atomically install the new DOM.
func (m *Manager) SyncExternalChange(id string) (*SyncResult, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	pc, ok := m.tracker.Pending(id)
	if !ok {
		return &SyncResult{Success: false, Message: "no pending external change to sync"}, nil
	}

	newDoc, err := dom.OpenFromBytes(pc.NewBytes)
	if err != nil {
		return &SyncResult{Success: false, Message: "external file is not a well-formed document: " + err.Error()}, nil
	}
	// Reassign ids only to elements that lack one, so any element
	// matched by content fingerprint across the sync keeps its previous
	// id (§8 invariant 5 "Id stability across sync").
	dom.EnsureIDs(newDoc)
	finalBytes, err := newDoc.Save()
	if err != nil {
		return &SyncResult{Success: false, Message: "failed to reserialize synced document: " + err.Error()}, nil
	}

	patchesJSON, err := json.Marshal(pc.Patches)
	if err != nil {
		return nil, docerr.New(docerr.KindInternal, "sync", id, "", err)
	}

	entryType := wal.EntryExternalSync
	synced, err := hasPriorSync(s.w)
	if err != nil {
		return nil, docerr.New(docerr.KindIO, "sync", id, "", err)
	}
	if !synced {
		entryType = wal.EntryImport
	}

	entry := wal.Entry{
		EntryType: entryType,
		Patches:   string(patchesJSON),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Description: fmt.Sprintf("external sync: %d added, %d removed, %d modified, %d moved",
			pc.Summary.Added, pc.Summary.Removed, pc.Summary.Modified, pc.Summary.Moved),
		SyncMeta: &wal.SyncMeta{
			SourcePath:   s.SourcePath,
			PreviousHash: pc.PreviousHash,
			NewHash:      pc.NewHash,
			Summary: wal.ChangeSummary{
				Added:        pc.Summary.Added,
				Removed:      pc.Summary.Removed,
				Modified:     pc.Summary.Modified,
				Moved:        pc.Summary.Moved,
				TotalChanges: pc.Summary.TotalChanges,
			},
			UncoveredChanges: pc.Uncovered,
			DocumentSnapshot: finalBytes,
		},
	}

	if s.Cursor < s.w.Len() {
		if err := s.w.TruncateTo(s.Cursor); err != nil {
			return nil, docerr.New(docerr.KindIO, "sync", id, "", err)
		}
		s.CheckpointPositions = keepAtMost(s.CheckpointPositions, s.Cursor)
	}

	pos, err := s.w.AppendEntry(entry)
	if err != nil {
		return nil, docerr.New(docerr.KindIO, "sync", id, "", err)
	}
	s.Cursor = pos
	s.Doc = newDoc
	s.LastModifiedAt = time.Now()
	m.recordActivity(id, pos, &entry)

	// ExternalSync always forces a checkpoint (§4.1).
	if err := m.writeCheckpoint(s, pos); err != nil {
		m.logger.Warn("session: checkpoint after sync failed", "session_id", id, "error", err)
	}

	m.tracker.Acknowledge(id)

	if err := m.persistIndexEntry(s); err != nil {
		return nil, err
	}

	return &SyncResult{Success: true, Position: pos, Summary: pc.Summary, Uncovered: pc.Uncovered}, nil
}
