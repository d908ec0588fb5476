// Package session implements the Session Manager (§4.1): the in-memory
// registry of open document sessions, their on-disk WAL/checkpoint/baseline
// state, and the mutating operations (apply, undo, redo, jump, snapshot,
// close, save) that move a session between logical positions.
//
// Its registry-plus-per-item-lock shape follows the teacher's
// internal/ipc/server.go: a coarse lock guards the Server.clients map and is
// released before any per-client operation runs, while each Client carries
// its own mutex for serialized writes. Here the registry lock guards
// Manager.sessions and each Session carries its own writer lock (§5).
package session

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"docsession/internal/dom"
	"docsession/internal/wal"
)

// Session is one open document: the in-memory DOM plus the on-disk WAL,
// baseline, and checkpoint state backing it.
type Session struct {
	ID                  string
	SourcePath          string
	DocxFile            string
	CreatedAt           time.Time
	LastModifiedAt      time.Time
	Cursor              int
	CheckpointPositions []int
	Doc                 *dom.Document

	// Degraded is set when RestoreSessions or a rehydration stopped WAL
	// replay early after a corrupt entry (§4.4, §9): Cursor reflects the
	// last successfully replayed position, never the requested one, and
	// the session otherwise behaves normally.
	Degraded bool

	dir string // the sessions root directory
	w   *wal.WAL

	// mu is the per-session writer lock (§5): every mutating operation
	// holds it for the duration of its DOM/WAL/index critical section.
	mu sync.Mutex
}

// newSessionID generates a collision-resistant session identifier. Unlike
// element ids (§4.3, see dom.EnsureIDs), session ids are never replayed
// from the WAL, so a standard random UUID is appropriate here, following
// the same uuid.New().String() session-id pattern as the retrieval pack's
// cmd/wt/egg.go. The "s-" prefix keeps a session id and an element id
// visually distinct.
func newSessionID() string {
	return "s-" + uuid.New().String()
}

// WAL exposes the session's underlying write-ahead log for callers that
// need to read entries directly (e.g. inspecting a just-appended entry's
// kind), without granting them any mutation path outside the Manager.
func (s *Session) WAL() *wal.WAL {
	return s.w
}

func (s *Session) baselinePath() string {
	return filepath.Join(s.dir, s.ID+".docx")
}

func (s *Session) walPath() string {
	return filepath.Join(s.dir, s.ID+".wal")
}

func (s *Session) checkpointPath(pos int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.ckpt.%d.docx", s.ID, pos))
}

func (s *Session) lockPath() string {
	return filepath.Join(s.dir, s.ID+".lock")
}

// nearestCheckpoint returns the largest checkpoint position not exceeding
// target, or 0 (the baseline) if none qualifies (§4.4 "Rehydration
// algorithm").
func (s *Session) nearestCheckpoint(target int) int {
	best := 0
	for _, p := range s.CheckpointPositions {
		if p <= target && p > best {
			best = p
		}
	}
	return best
}
