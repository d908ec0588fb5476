package reconcile

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsession/internal/dom"
	"docsession/internal/patch"
)

func addParagraph(t *testing.T, doc *dom.Document, text string) {
	t.Helper()
	raw := fmt.Sprintf(`[{"op":"add","path":"/body/children/%d","value":{"type":"paragraph","text":"%s"}}]`,
		len(doc.Body.Children), text)
	ops, err := patch.ParseBatch([]byte(raw))
	require.NoError(t, err)
	require.NoError(t, patch.Apply(doc, ops))
}

func TestFingerprintStableAcrossIDReassignment(t *testing.T) {
	doc := dom.CreateEmpty()
	addParagraph(t, doc, "hello world")
	fp1 := Fingerprint(doc.Body.Children[0])

	doc.Body.Children[0].ID = "different-id"
	fp2 := Fingerprint(doc.Body.Children[0])
	assert.Equal(t, fp1, fp2)
}

func TestFingerprintDiffersOnTextChange(t *testing.T) {
	doc := dom.CreateEmpty()
	addParagraph(t, doc, "hello world")
	fp1 := Fingerprint(doc.Body.Children[0])

	doc.Body.Children[0].Children[0].Text = "goodbye world"
	fp2 := Fingerprint(doc.Body.Children[0])
	assert.NotEqual(t, fp1, fp2)
}

func TestContentHashIgnoresIDsButNotText(t *testing.T) {
	doc := dom.CreateEmpty()
	addParagraph(t, doc, "hello world")
	h1, err := ContentHash(doc)
	require.NoError(t, err)

	doc.Body.Children[0].ID = "reassigned"
	h2, err := ContentHash(doc)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	doc.Body.Children[0].Children[0].Text = "different text"
	h3, err := ContentHash(doc)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestLevenshteinRatioIdentical(t *testing.T) {
	assert.Equal(t, 1.0, levenshteinRatio("hello", "hello"))
}

func TestLevenshteinRatioPartial(t *testing.T) {
	r := levenshteinRatio("hello world", "hello wrld")
	assert.Greater(t, r, 0.6)
	assert.Less(t, r, 1.0)
}

func TestDiffDetectsExactMoveAndModifyAndAddRemove(t *testing.T) {
	original := dom.CreateEmpty()
	addParagraph(t, original, "Alpha")
	addParagraph(t, original, "Beta")
	addParagraph(t, original, "Gamma")

	modified := dom.CreateEmpty()
	addParagraph(t, modified, "Beta")          // moved from index 1 to 0
	addParagraph(t, modified, "Alpha revised") // similar to "Alpha"
	addParagraph(t, modified, "Delta")         // added
	// "Gamma" is removed entirely.

	changes := Diff(original, modified, 0.3)

	var kinds []string
	for _, c := range changes {
		kinds = append(kinds, c.Kind)
	}
	assert.Contains(t, kinds, ChangeMoved)
	assert.Contains(t, kinds, ChangeModified)
	assert.Contains(t, kinds, ChangeAdded)
	assert.Contains(t, kinds, ChangeRemoved)
}

func TestGeneratePatchesOrdering(t *testing.T) {
	original := dom.CreateEmpty()
	addParagraph(t, original, "keep")
	addParagraph(t, original, "drop me")

	modified := dom.CreateEmpty()
	addParagraph(t, modified, "keep")
	addParagraph(t, modified, "new one")

	changes := Diff(original, modified, 0.6)
	ops, err := GeneratePatches(changes)
	require.NoError(t, err)
	require.NotEmpty(t, ops)

	// removes must precede adds per §4.5 ordering.
	firstRemoveIdx, firstAddIdx := -1, -1
	for i, op := range ops {
		if op.Op == patch.OpRemove && firstRemoveIdx < 0 {
			firstRemoveIdx = i
		}
		if op.Op == patch.OpAdd && firstAddIdx < 0 {
			firstAddIdx = i
		}
	}
	if firstRemoveIdx >= 0 && firstAddIdx >= 0 {
		assert.Less(t, firstRemoveIdx, firstAddIdx)
	}
}

func TestDetectUncoveredChanges(t *testing.T) {
	original := dom.CreateEmpty()
	modified := dom.CreateEmpty()
	modified.Parts["word/media/image1.png"] = []byte("new image bytes")

	changes := DetectUncoveredChanges(original, modified)
	require.Len(t, changes, 1)
	assert.Equal(t, "added", changes[0].ChangeKind)
	assert.Equal(t, "media", changes[0].Type)
}

func TestTrackerDetectsExternalEditAfterDebounce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.docx")

	original := dom.CreateEmpty()
	addParagraph(t, original, "original text")
	originalBytes, err := original.Save()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, originalBytes, 0o644))

	tracker, err := NewTracker(60*time.Millisecond, 0.6)
	require.NoError(t, err)
	defer tracker.Stop()

	require.NoError(t, tracker.StartWatching("s1", path, originalBytes))

	modified := dom.CreateEmpty()
	addParagraph(t, modified, "changed text")
	modifiedBytes, err := modified.Save()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, modifiedBytes, 0o644))

	require.Eventually(t, func() bool {
		_, ok := tracker.Pending("s1")
		return ok
	}, 2*time.Second, 20*time.Millisecond)

	pending, ok := tracker.Pending("s1")
	require.True(t, ok)
	assert.NotEmpty(t, pending.Patches)
	assert.Greater(t, pending.Summary.Modified+pending.Summary.Added+pending.Summary.Removed, 0)

	tracker.Acknowledge("s1")
	_, ok = tracker.Pending("s1")
	assert.False(t, ok)
}
