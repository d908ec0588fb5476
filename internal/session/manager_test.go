package session

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsession/internal/config"
	"docsession/internal/dom"
	"docsession/internal/logging"
	"docsession/internal/paths"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.SessionsDir = t.TempDir()
	cfg.ActivityDBPath = filepath.Join(cfg.SessionsDir, "activity.db")
	cfg.DebounceMillis = 20

	logger, err := logging.New(&logging.Config{Level: logging.LevelError, Format: logging.FormatText, Output: "stderr"})
	require.NoError(t, err)

	m, err := NewManager(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown() })
	return m
}

func textAt(t *testing.T, doc *dom.Document, raw string) string {
	t.Helper()
	p, err := paths.Parse(raw)
	require.NoError(t, err)
	res, err := paths.Resolve(doc, p)
	require.NoError(t, err)
	require.Equal(t, paths.ResultElement, res.Kind)
	return res.Element.TextContent()
}

// TestApplyUndoRedo exercises scenarios 1-3 of §8: applying two adds in one
// batch, undoing them, and redoing back to the same serialized bytes.
func TestApplyUndoRedo(t *testing.T) {
	m := newTestManager(t)
	s, err := m.Open("")
	require.NoError(t, err)

	batch := []byte(`[
		{"op":"add","path":"/body/children/0","value":{"type":"heading","level":1,"text":"Hello"}},
		{"op":"add","path":"/body/children/1","value":{"type":"paragraph","text":"World"}}
	]`)
	pos, err := m.ApplyPatch(s.ID, batch)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
	assert.Equal(t, 1, s.Cursor)

	assert.Equal(t, "Hello", textAt(t, s.Doc, "/body/heading[0]"))
	assert.Equal(t, "World", textAt(t, s.Doc, "/body/paragraph[0]"))

	afterApply, err := s.Doc.Save()
	require.NoError(t, err)

	reached, err := m.Undo(s.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, reached)
	assert.Equal(t, 0, s.Cursor)
	assert.Equal(t, 1, s.w.Len(), "undo must not mutate the WAL")

	_, err = paths.Resolve(s.Doc, mustParse(t, "/body/heading[0]"))
	assert.Error(t, err, "heading should not exist before the patch was applied")

	reached, err = m.Redo(s.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, reached)

	afterRedo, err := s.Doc.Save()
	require.NoError(t, err)
	assert.Equal(t, afterApply, afterRedo)
}

func mustParse(t *testing.T, raw string) *paths.Path {
	t.Helper()
	p, err := paths.Parse(raw)
	require.NoError(t, err)
	return p
}

// TestApplyPatchTruncatesRedoTail covers §3.3: committing a new edit while
// cursor < WAL-length truncates the tail and drops checkpoints beyond it.
func TestApplyPatchTruncatesRedoTail(t *testing.T) {
	m := newTestManager(t)
	s, err := m.Open("")
	require.NoError(t, err)

	_, err = m.ApplyPatch(s.ID, []byte(`[{"op":"add","path":"/body/children/0","value":{"type":"paragraph","text":"one"}}]`))
	require.NoError(t, err)
	_, err = m.ApplyPatch(s.ID, []byte(`[{"op":"add","path":"/body/children/1","value":{"type":"paragraph","text":"two"}}]`))
	require.NoError(t, err)
	require.NoError(t, m.Snapshot(s.ID, false))

	_, err = m.Undo(s.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Cursor)

	pos, err := m.ApplyPatch(s.ID, []byte(`[{"op":"add","path":"/body/children/0","value":{"type":"paragraph","text":"three"}}]`))
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
	assert.Equal(t, 1, s.w.Len(), "the old tail must be discarded")
	assert.Empty(t, s.CheckpointPositions, "checkpoints beyond the truncated cursor must be dropped")
}

// TestPatchAtomicity covers §8 invariant 6: a batch with an invalid op
// leaves the WAL, cursor, and DOM untouched.
func TestPatchAtomicity(t *testing.T) {
	m := newTestManager(t)
	s, err := m.Open("")
	require.NoError(t, err)

	before, err := s.Doc.Save()
	require.NoError(t, err)

	batch := []byte(`[
		{"op":"add","path":"/body/children/0","value":{"type":"paragraph","text":"ok"}},
		{"op":"remove","path":"/body/paragraph[5]"}
	]`)
	_, err = m.ApplyPatch(s.ID, batch)
	assert.Error(t, err)
	assert.Equal(t, 0, s.w.Len())
	assert.Equal(t, 0, s.Cursor)

	after, err := s.Doc.Save()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

// TestSnapshotAndRestore covers checkpoint sufficiency (§8 invariant 3) and
// RestoreSessions rebuilding a session purely from disk.
func TestSnapshotAndRestore(t *testing.T) {
	m := newTestManager(t)
	s, err := m.Open("")
	require.NoError(t, err)

	_, err = m.ApplyPatch(s.ID, []byte(`[{"op":"add","path":"/body/children/0","value":{"type":"heading","level":2,"text":"Title"}}]`))
	require.NoError(t, err)
	require.NoError(t, m.Snapshot(s.ID, false))
	_, err = m.ApplyPatch(s.ID, []byte(`[{"op":"add","path":"/body/children/1","value":{"type":"paragraph","text":"Body"}}]`))
	require.NoError(t, err)

	id := s.ID
	expected, err := s.Doc.Save()
	require.NoError(t, err)

	m2 := newManagerSamedir(t, m)
	require.NoError(t, m2.RestoreSessions())

	restored, err := m2.Get(id)
	require.NoError(t, err)
	assert.Equal(t, 2, restored.Cursor)
	assert.False(t, restored.Degraded)

	got, err := restored.Doc.Save()
	require.NoError(t, err)
	assert.Equal(t, expected, got)
}

func newManagerSamedir(t *testing.T, m *Manager) *Manager {
	t.Helper()
	logger, err := logging.New(&logging.Config{Level: logging.LevelError, Format: logging.FormatText, Output: "stderr"})
	require.NoError(t, err)
	m2, err := NewManager(m.cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m2.Shutdown() })
	return m2
}

// TestExternalSyncWorkflow covers §8 scenario 4 and invariant 4: editing a
// file out-of-band produces exactly one pending change, and syncing it
// appends exactly one WAL entry carrying a full document snapshot.
func TestExternalSyncWorkflow(t *testing.T) {
	m := newTestManager(t)

	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "doc.docx")

	empty := dom.CreateEmpty()
	dom.EnsureIDs(empty)
	data, err := empty.Save()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(srcPath, data, 0o644))

	s, err := m.Open(srcPath)
	require.NoError(t, err)

	seeds := []string{"the quick fox jumps", "beta", "gamma"}
	for _, text := range seeds {
		batch := []byte(`[{"op":"add","path":"/body/children/` + indexEnd(s.Doc) + `","value":{"type":"paragraph","text":"` + text + `"}}]`)
		_, err := m.ApplyPatch(s.ID, batch)
		require.NoError(t, err)
	}
	require.Equal(t, 3, s.Cursor)

	externalDoc, err := dom.OpenFromBytes(mustSave(t, s.Doc))
	require.NoError(t, err)
	externalDoc.Body.Children[0].Children[0].Text = "the slow fox jumps"
	externalBytes, err := externalDoc.Save()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(srcPath, externalBytes, 0o644))

	require.Eventually(t, func() bool {
		_, ok, _ := m.CheckExternalChange(s.ID)
		return ok
	}, 2*time.Second, 25*time.Millisecond)

	pending, ok, err := m.CheckExternalChange(s.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, pending.Summary.Modified)
	assert.Equal(t, 0, pending.Summary.Added)
	assert.Equal(t, 0, pending.Summary.Removed)

	result, err := m.SyncExternalChange(s.ID)
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, 4, result.Position)
	assert.Equal(t, 4, s.Cursor)
	assert.Equal(t, 4, s.w.Len())

	entry, err := s.w.ReadEntry(4)
	require.NoError(t, err)
	require.NotNil(t, entry.SyncMeta)
	assert.NotEmpty(t, entry.SyncMeta.DocumentSnapshot)
	// This is the session's first-ever sync, even though 3 Patch entries
	// already precede it: the Import/ExternalSync distinction tracks prior
	// syncs, not WAL length (§9 Open Question; SPEC_FULL.md resolution).
	assert.Equal(t, "import", entry.EntryType)

	// Syncing again without a further file change must be a no-op: the
	// pending change was cleared by the first sync (§8 invariant 4).
	again, err := m.SyncExternalChange(s.ID)
	require.NoError(t, err)
	assert.False(t, again.Success)
	assert.Equal(t, 4, s.w.Len())
}

func indexEnd(doc *dom.Document) string {
	return strconv.Itoa(len(doc.Body.Children))
}

func mustSave(t *testing.T, doc *dom.Document) []byte {
	t.Helper()
	data, err := doc.Save()
	require.NoError(t, err)
	return data
}

// TestAcknowledgeExternalChangeClearsPendingWithoutApplying covers §4.5.3
// "acknowledge": marking a pending external change as seen clears it from
// Check without appending a WAL entry or mutating the session's DOM.
func TestAcknowledgeExternalChangeClearsPendingWithoutApplying(t *testing.T) {
	m := newTestManager(t)

	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "doc.docx")

	empty := dom.CreateEmpty()
	dom.EnsureIDs(empty)
	data, err := empty.Save()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(srcPath, data, 0o644))

	s, err := m.Open(srcPath)
	require.NoError(t, err)

	_, err = m.ApplyPatch(s.ID, []byte(`[{"op":"add","path":"/body/children/0","value":{"type":"paragraph","text":"original"}}]`))
	require.NoError(t, err)

	externalDoc, err := dom.OpenFromBytes(mustSave(t, s.Doc))
	require.NoError(t, err)
	externalDoc.Body.Children[0].Children[0].Text = "changed out of band"
	externalBytes, err := externalDoc.Save()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(srcPath, externalBytes, 0o644))

	require.Eventually(t, func() bool {
		_, ok, _ := m.CheckExternalChange(s.ID)
		return ok
	}, 2*time.Second, 25*time.Millisecond)

	require.NoError(t, m.AcknowledgeExternalChange(s.ID))

	_, ok, err := m.CheckExternalChange(s.ID)
	require.NoError(t, err)
	assert.False(t, ok, "an acknowledged change must no longer be reported as pending")
	assert.Equal(t, 1, s.w.Len(), "acknowledging must not append a WAL entry")
	assert.Equal(t, "original", textAt(t, s.Doc, "/body/paragraph[0]"), "acknowledging must not mutate the DOM")
}

// TestCloseRemovesDurableArtifacts covers §3.3 Close: every on-disk
// artifact and the index entry are removed.
func TestCloseRemovesDurableArtifacts(t *testing.T) {
	m := newTestManager(t)
	s, err := m.Open("")
	require.NoError(t, err)
	id := s.ID

	_, err = m.ApplyPatch(s.ID, []byte(`[{"op":"add","path":"/body/children/0","value":{"type":"paragraph","text":"x"}}]`))
	require.NoError(t, err)

	require.NoError(t, m.Close(id))

	_, err = m.Get(id)
	assert.Error(t, err)
	_, err = os.Stat(filepath.Join(m.cfg.SessionsDir, id+".wal"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(m.cfg.SessionsDir, id+".docx"))
	assert.True(t, os.IsNotExist(err))
}
