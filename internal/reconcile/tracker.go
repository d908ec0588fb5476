package reconcile

import (
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"docsession/internal/dom"
	"docsession/internal/patch"
	"docsession/internal/wal"
)

// PendingChange is one detected-but-unacknowledged external edit for a
// watched session (§4.5 "External change tracker"): enough information
// for a consumer to inspect the diff or apply it as a sync.
type PendingChange struct {
	ChangeID     string
	SessionID    string
	DetectedAt   time.Time
	PreviousHash string
	NewHash      string
	NewBytes     []byte
	Summary      ChangeSummaryCounts
	Uncovered    []wal.UncoveredChange
	Patches      []patch.Op
}

type watchedSession struct {
	sessionID   string
	path        string
	dir         string
	lastHash    string
	lastBytes   []byte
	dirty       bool
	lastEventAt time.Time
}

// Tracker watches each session's source file for external edits, debounces
// bursts of write events, and turns a stabilized change into a
// PendingChange the Session Manager can check/acknowledge/sync
// (§4.5.1-3). Its event-loop/debounce-loop split and per-path state map
// follow the teacher's internal/watcher.Watcher (fsnotify events channel
// feeding a state map, a separate ticker loop promoting "stable" files),
// adapted from "debounce then hash a batch of tracked paths" to
// "debounce then diff one session's source file against its last known
// state".
type Tracker struct {
	fsWatcher *fsnotify.Watcher
	debounce  time.Duration
	threshold float64

	mu       sync.Mutex
	sessions map[string]*watchedSession // sessionID -> state
	byPath   map[string]string          // absolute path -> sessionID
	pending  map[string]*PendingChange  // sessionID -> latest unacknowledged change

	nextChangeID int

	done chan struct{}
	wg   sync.WaitGroup
}

// NewTracker constructs a Tracker with the given debounce window and
// diff similarity threshold (§6.6 DOCSESSION_DEBOUNCE_MS /
// DOCSESSION_SIMILARITY_THRESHOLD).
func NewTracker(debounce time.Duration, threshold float64) (*Tracker, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("reconcile: create fsnotify watcher: %w", err)
	}
	t := &Tracker{
		fsWatcher: fsWatcher,
		debounce:  debounce,
		threshold: threshold,
		sessions:  make(map[string]*watchedSession),
		byPath:    make(map[string]string),
		pending:   make(map[string]*PendingChange),
		done:      make(chan struct{}),
	}
	t.wg.Add(2)
	go t.eventLoop()
	go t.debounceLoop()
	return t, nil
}

// StartWatching begins tracking path for sessionID, capturing
// currentSessionBytes and their hash as the comparison baseline (§4.5.1).
// Calling it again for a watched session replaces that baseline.
func (t *Tracker) StartWatching(sessionID, path string, currentSessionBytes []byte) error {
	dir := dirOf(path)
	if err := t.fsWatcher.Add(dir); err != nil {
		return fmt.Errorf("reconcile: watch %s: %w", dir, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[sessionID] = &watchedSession{
		sessionID: sessionID,
		path:      path,
		dir:       dir,
		lastHash:  hashOf(currentSessionBytes),
		lastBytes: currentSessionBytes,
	}
	t.byPath[path] = sessionID
	return nil
}

// StopWatching stops tracking a session's source file.
func (t *Tracker) StopWatching(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.sessions[sessionID]; ok {
		delete(t.byPath, s.path)
		delete(t.sessions, sessionID)
		delete(t.pending, sessionID)
	}
}

// Pending returns the latest unacknowledged external change for a
// session, if any.
func (t *Tracker) Pending(sessionID string) (*PendingChange, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pending[sessionID]
	return p, ok
}

// Acknowledge marks a session's pending change as seen, clearing it.
func (t *Tracker) Acknowledge(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, sessionID)
}

// Stop shuts the tracker down, releasing the underlying fsnotify watcher.
func (t *Tracker) Stop() error {
	close(t.done)
	t.wg.Wait()
	return t.fsWatcher.Close()
}

func (t *Tracker) eventLoop() {
	defer t.wg.Done()
	for {
		select {
		case <-t.done:
			return
		case ev, ok := <-t.fsWatcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			t.mu.Lock()
			if sessionID, ok := t.byPath[ev.Name]; ok {
				s := t.sessions[sessionID]
				s.dirty = true
				s.lastEventAt = time.Now()
			}
			t.mu.Unlock()
		case _, ok := <-t.fsWatcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (t *Tracker) debounceLoop() {
	defer t.wg.Done()
	tick := t.debounce / 4
	if tick <= 0 {
		tick = 50 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case now := <-ticker.C:
			t.checkStable(now)
		}
	}
}

func (t *Tracker) checkStable(now time.Time) {
	var ready []*watchedSession
	t.mu.Lock()
	for _, s := range t.sessions {
		if s.dirty && now.Sub(s.lastEventAt) >= t.debounce {
			s.dirty = false
			ready = append(ready, s)
		}
	}
	t.mu.Unlock()

	for _, s := range ready {
		t.reconcileSession(s)
	}
}

// reconcileSession implements §4.5.2: recompute the file hash, no-op if
// unchanged; else diff content-only hashes to skip id-only churn; else
// run the full diff and stash a PendingChange.
func (t *Tracker) reconcileSession(s *watchedSession) {
	newBytes, err := readFile(s.path)
	if err != nil {
		return
	}
	newHash := hashOf(newBytes)
	if newHash == s.lastHash {
		return
	}

	oldDoc, err := dom.OpenFromBytes(s.lastBytes)
	if err != nil {
		return
	}
	newDoc, err := dom.OpenFromBytes(newBytes)
	if err != nil {
		return
	}

	oldContentHash, err := ContentHash(oldDoc)
	if err != nil {
		return
	}
	newContentHash, err := ContentHash(newDoc)
	if err != nil {
		return
	}
	if oldContentHash == newContentHash {
		// Only private ids differ; update the baseline and move on
		// without surfacing a change (§4.5.2 "if equal ... no-op").
		t.mu.Lock()
		s.lastHash = newHash
		s.lastBytes = newBytes
		t.mu.Unlock()
		return
	}

	changes := Diff(oldDoc, newDoc, t.threshold)
	ops, err := GeneratePatches(changes)
	if err != nil {
		return
	}
	uncovered := DetectUncoveredChanges(oldDoc, newDoc)
	summary := Summarize(changes)

	t.mu.Lock()
	t.nextChangeID++
	change := &PendingChange{
		ChangeID:     fmt.Sprintf("chg-%d", t.nextChangeID),
		SessionID:    s.sessionID,
		DetectedAt:   time.Now(),
		PreviousHash: s.lastHash,
		NewHash:      newHash,
		NewBytes:     newBytes,
		Summary:      summary,
		Uncovered:    uncovered,
		Patches:      ops,
	}
	t.pending[s.sessionID] = change
	s.lastHash = newHash
	s.lastBytes = newBytes
	t.mu.Unlock()
}
