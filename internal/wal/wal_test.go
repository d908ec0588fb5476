package wal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndReadAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s1.wal")
	w, err := Open(path)
	require.NoError(t, err)
	defer w.Close()

	pos1, err := w.Append([]byte(`{"n":1}`))
	require.NoError(t, err)
	assert.Equal(t, 1, pos1)

	pos2, err := w.Append([]byte(`{"n":2}`))
	require.NoError(t, err)
	assert.Equal(t, 2, pos2)

	line1, err := w.ReadAt(1)
	require.NoError(t, err)
	assert.Equal(t, `{"n":1}`, string(line1))

	line2, err := w.ReadAt(2)
	require.NoError(t, err)
	assert.Equal(t, `{"n":2}`, string(line2))

	assert.Equal(t, 2, w.Len())
}

func TestReadAtOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s1.wal")
	w, err := Open(path)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.ReadAt(1)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = w.Append([]byte("x"))
	require.NoError(t, err)
	_, err = w.ReadAt(0)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestTruncateTo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s1.wal")
	w, err := Open(path)
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 5; i++ {
		_, err := w.Append([]byte("entry"))
		require.NoError(t, err)
	}
	require.NoError(t, w.TruncateTo(2))
	assert.Equal(t, 2, w.Len())

	pos3, err := w.Append([]byte("fresh"))
	require.NoError(t, err)
	assert.Equal(t, 3, pos3)

	line, err := w.ReadAt(3)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(line))
}

func TestTruncateToRejectsGrowth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s1.wal")
	w, err := Open(path)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Append([]byte("entry"))
	require.NoError(t, err)

	err = w.TruncateTo(5)
	assert.ErrorIs(t, err, ErrTruncateGrow)
}

func TestGrowBeyondInitialCapacity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s1.wal")
	w, err := Open(path)
	require.NoError(t, err)
	defer w.Close()

	big := make([]byte, initialCapacity) // forces at least one grow
	for i := range big {
		big[i] = 'a'
	}
	pos, err := w.Append(big)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	got, err := w.ReadAt(1)
	require.NoError(t, err)
	assert.Equal(t, big, got)
}

func TestReopenRebuildsOffsets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s1.wal")
	w, err := Open(path)
	require.NoError(t, err)

	_, err = w.Append([]byte("one"))
	require.NoError(t, err)
	_, err = w.Append([]byte("two"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 2, reopened.Len())
	line1, err := reopened.ReadAt(1)
	require.NoError(t, err)
	assert.Equal(t, "one", string(line1))
	line2, err := reopened.ReadAt(2)
	require.NoError(t, err)
	assert.Equal(t, "two", string(line2))
}

func TestOperationsAfterCloseFail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s1.wal")
	w, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = w.Append([]byte("x"))
	assert.ErrorIs(t, err, ErrClosed)

	_, err = w.ReadAt(1)
	assert.ErrorIs(t, err, ErrClosed)

	assert.NoError(t, w.Close()) // idempotent
}

func TestAppendEntryAndReadEntryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s1.wal")
	w, err := Open(path)
	require.NoError(t, err)
	defer w.Close()

	entry := NewPatchEntry(`[{"op":"add"}]`, "added a paragraph")
	pos, err := w.AppendEntry(entry)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	got, err := w.ReadEntry(pos)
	require.NoError(t, err)
	assert.Equal(t, EntryPatch, got.EntryType)
	assert.Equal(t, `[{"op":"add"}]`, got.Patches)
	assert.Equal(t, "added a paragraph", got.Description)
}

func TestAppendEntryWithSyncMeta(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s1.wal")
	w, err := Open(path)
	require.NoError(t, err)
	defer w.Close()

	entry := Entry{
		EntryType: EntryExternalSync,
		Patches:   `[]`,
		Timestamp: nowUTC(),
		SyncMeta: &SyncMeta{
			SourcePath:       "/tmp/doc.docx",
			PreviousHash:     "aaaa",
			NewHash:          "bbbb",
			Summary:          ChangeSummary{Added: 1, TotalChanges: 1},
			UncoveredChanges: []UncoveredChange{{ChangeKind: "added", PartURI: "word/media/image1.png"}},
			DocumentSnapshot: []byte("fake docx bytes"),
		},
	}
	pos, err := w.AppendEntry(entry)
	require.NoError(t, err)

	got, err := w.ReadEntry(pos)
	require.NoError(t, err)
	require.NotNil(t, got.SyncMeta)
	assert.Equal(t, "bbbb", got.SyncMeta.NewHash)
	assert.Equal(t, []byte("fake docx bytes"), got.SyncMeta.DocumentSnapshot)
	assert.Equal(t, 1, got.SyncMeta.Summary.Added)
}

func TestWriteAndReadFramed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "baseline.docx")
	payload := []byte("pretend this is a zip of OOXML parts")

	require.NoError(t, WriteFramed(path, payload))
	got, err := ReadFramed(path)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestReadFramedIgnoresTrailingGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.docx")
	require.NoError(t, WriteFramed(path, []byte("short")))

	// Simulate a file larger than L+8; the header stays authoritative.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte("garbage-that-should-be-ignored"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	got, err := ReadFramed(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("short"), got)
}

func TestLoadIndexMissingFileYieldsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	idx, err := LoadIndex(path)
	require.NoError(t, err)
	assert.Equal(t, IndexVersion, idx.Version)
	assert.Empty(t, idx.Sessions)
}

func TestSaveAndLoadIndexRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	idx := &Index{Version: IndexVersion, Sessions: []IndexEntry{
		{ID: "s1", DocxFile: "s1.docx", CursorPosition: 3, CheckpointPositions: []int{0, 3}},
	}}
	require.NoError(t, SaveIndex(path, idx))

	reloaded, err := LoadIndex(path)
	require.NoError(t, err)
	require.Len(t, reloaded.Sessions, 1)
	assert.Equal(t, "s1", reloaded.Sessions[0].ID)
	assert.Equal(t, 3, reloaded.Sessions[0].CursorPosition)
}

func TestIndexUpsertAndRemove(t *testing.T) {
	idx := &Index{Version: IndexVersion}
	idx.Upsert(IndexEntry{ID: "a", CursorPosition: 1})
	idx.Upsert(IndexEntry{ID: "b", CursorPosition: 2})
	require.Len(t, idx.Sessions, 2)

	idx.Upsert(IndexEntry{ID: "a", CursorPosition: 9})
	assert.Equal(t, 9, idx.Find("a").CursorPosition)

	idx.Remove("a")
	assert.Nil(t, idx.Find("a"))
	assert.NotNil(t, idx.Find("b"))
}

func TestFileLockExcludesTryLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.lock")
	held, err := Lock(path)
	require.NoError(t, err)

	second, err := TryLock(path)
	require.NoError(t, err)
	assert.Nil(t, second, "a held lock must make TryLock return nil, nil rather than block")

	require.NoError(t, held.Unlock())

	third, err := TryLock(path)
	require.NoError(t, err)
	require.NotNil(t, third)
	require.NoError(t, third.Unlock())
}
