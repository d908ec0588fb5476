package activitystore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsession/internal/wal"
)

func TestRecordAndHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Record("sess-1", 1, wal.EntryPatch, "2026-01-01T00:00:00Z", "first edit", ""))
	require.NoError(t, s.Record("sess-1", 2, wal.EntryExternalSync, "2026-01-01T00:01:00Z", "sync", `{"modified":1}`))

	hist, err := s.History("sess-1")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, 1, hist[0].Position)
	assert.Equal(t, wal.EntryPatch, hist[0].EntryType)
	assert.Equal(t, 2, hist[1].Position)
	assert.Equal(t, `{"modified":1}`, hist[1].SummaryJSON)
}

func TestRecordUpsertOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Record("sess-1", 1, wal.EntryPatch, "t0", "first", ""))
	require.NoError(t, s.Record("sess-1", 1, wal.EntryPatch, "t1", "rewritten", ""))

	hist, err := s.History("sess-1")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "rewritten", hist[0].Description)
}

func TestDropSessionRemovesRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Record("sess-1", 1, wal.EntryPatch, "t0", "", ""))
	require.NoError(t, s.DropSession("sess-1"))

	hist, err := s.History("sess-1")
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestRebuildSessionReplaysWAL(t *testing.T) {
	dir := t.TempDir()
	w, err := wal.Open(filepath.Join(dir, "s.wal"))
	require.NoError(t, err)
	defer w.Close()

	_, err = w.AppendEntry(wal.NewPatchEntry(`[]`, "one"))
	require.NoError(t, err)
	_, err = w.AppendEntry(wal.NewPatchEntry(`[]`, "two"))
	require.NoError(t, err)

	s, err := Open(filepath.Join(dir, "activity.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, RebuildSession(s, "sess-1", w))

	hist, err := s.History("sess-1")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "one", hist[0].Description)
	assert.Equal(t, "two", hist[1].Description)

	// Rebuilding again must not duplicate rows.
	require.NoError(t, RebuildSession(s, "sess-1", w))
	hist, err = s.History("sess-1")
	require.NoError(t, err)
	assert.Len(t, hist, 2)
}
