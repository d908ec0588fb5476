// Package integration exercises the §8 end-to-end scenarios against the
// assembled Session Manager rather than any one package in isolation,
// covering the seams between internal/patch, internal/wal, and
// internal/session that the package-level tests don't cross.
package integration

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsession/internal/config"
	"docsession/internal/dom"
	"docsession/internal/logging"
	"docsession/internal/paths"
	"docsession/internal/session"
)

func newManager(t *testing.T) *session.Manager {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.SessionsDir = t.TempDir()
	cfg.ActivityDBPath = filepath.Join(cfg.SessionsDir, "activity.db")

	logger, err := logging.New(&logging.Config{Level: logging.LevelError, Format: logging.FormatText, Output: "stderr"})
	require.NoError(t, err)

	m, err := session.NewManager(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown() })
	return m
}

func elementText(t *testing.T, doc *dom.Document, raw string) string {
	t.Helper()
	p, err := paths.Parse(raw)
	require.NoError(t, err)
	res, err := paths.Resolve(doc, p)
	require.NoError(t, err)
	require.Equal(t, paths.ResultElement, res.Kind)
	return res.Element.TextContent()
}

// TestScenario5ReplaceTextFirstOccurrenceOnly covers §8 scenario 5: a
// paragraph with a repeated word has only its first occurrence replaced,
// and the edit is durably recorded as one WAL entry.
func TestScenario5ReplaceTextFirstOccurrenceOnly(t *testing.T) {
	m := newManager(t)
	s, err := m.Open("")
	require.NoError(t, err)

	_, err = m.ApplyPatch(s.ID, []byte(`[
		{"op":"add","path":"/body/children/0","value":{"type":"paragraph","text":"foo bar foo"}}
	]`))
	require.NoError(t, err)

	pos, err := m.ApplyPatch(s.ID, []byte(`[
		{"op":"replace_text","path":"/body/paragraph[0]","find":"foo","replace":"baz","max_count":1}
	]`))
	require.NoError(t, err)
	assert.Equal(t, 2, pos)
	assert.Equal(t, "baz bar foo", elementText(t, s.Doc, "/body/paragraph[0]"))

	entry, err := s.WAL().ReadEntry(pos)
	require.NoError(t, err)
	assert.Equal(t, "patch", entry.EntryType)
}

// TestScenario6RemoveColumnPreservesOtherColumns covers §8 scenario 6: a
// 3x3 table loses its middle column, keeping the other two intact in every
// row, across an undo/redo round trip.
func TestScenario6RemoveColumnPreservesOtherColumns(t *testing.T) {
	m := newManager(t)
	s, err := m.Open("")
	require.NoError(t, err)

	tableValue := `{"type":"table","rows":[
		["a0","a1","a2"],
		["b0","b1","b2"],
		["c0","c1","c2"]
	]}`
	_, err = m.ApplyPatch(s.ID, []byte(`[{"op":"add","path":"/body/children/0","value":`+tableValue+`}]`))
	require.NoError(t, err)

	_, err = m.ApplyPatch(s.ID, []byte(`[{"op":"remove_column","path":"/body/table[0]","column":1}]`))
	require.NoError(t, err)

	p, err := paths.Parse("/body/table[0]")
	require.NoError(t, err)
	res, err := paths.Resolve(s.Doc, p)
	require.NoError(t, err)
	table := res.Element
	for _, row := range table.ChildrenOfKind(dom.KindRow) {
		assert.Len(t, row.Children, 2)
	}
	assert.Equal(t, "a0", table.ChildrenOfKind(dom.KindRow)[0].Children[0].TextContent())
	assert.Equal(t, "a2", table.ChildrenOfKind(dom.KindRow)[0].Children[1].TextContent())

	afterRemove, err := s.Doc.Save()
	require.NoError(t, err)

	_, err = m.Undo(s.ID, 1)
	require.NoError(t, err)
	_, err = m.Redo(s.ID, 1)
	require.NoError(t, err)

	afterRoundTrip, err := s.Doc.Save()
	require.NoError(t, err)
	assert.Equal(t, afterRemove, afterRoundTrip)
}

// TestScenario2And3UndoThenQueryThenRedo covers §8 scenarios 2 and 3 end to
// end, including that undo never shrinks the WAL and redo reproduces the
// exact serialized bytes.
func TestScenario2And3UndoThenQueryThenRedo(t *testing.T) {
	m := newManager(t)
	s, err := m.Open("")
	require.NoError(t, err)

	_, err = m.ApplyPatch(s.ID, []byte(`[
		{"op":"add","path":"/body/children/0","value":{"type":"heading","level":1,"text":"Hello"}},
		{"op":"add","path":"/body/children/1","value":{"type":"paragraph","text":"World"}}
	]`))
	require.NoError(t, err)
	afterApply, err := s.Doc.Save()
	require.NoError(t, err)
	walLenAfterApply := s.WAL().Len()

	reached, err := m.Undo(s.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, reached)
	assert.Equal(t, walLenAfterApply, s.WAL().Len(), "undo must not shrink the WAL")

	p, err := paths.Parse("/body/heading[0]")
	require.NoError(t, err)
	_, err = paths.Resolve(s.Doc, p)
	assert.Error(t, err, "the heading must not be visible before the patch is reapplied")

	_, err = m.Redo(s.ID, 1)
	require.NoError(t, err)
	afterRedo, err := s.Doc.Save()
	require.NoError(t, err)
	assert.Equal(t, afterApply, afterRedo)
}
