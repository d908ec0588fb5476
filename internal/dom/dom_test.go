// Package dom tests for the document model and its codec.
package dom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSample() *Document {
	doc := CreateEmpty()

	h := NewElement(KindHeading)
	h.Level = 1
	run := NewElement(KindRun)
	run.Text = "Title"
	h.Children = append(h.Children, run)
	run.Parent = h

	p := NewElement(KindParagraph)
	pr := NewElement(KindRun)
	pr.Text = "Hello, world."
	pr.Bold = true
	p.Children = append(p.Children, pr)
	pr.Parent = p

	doc.Body.Children = append(doc.Body.Children, h, p)
	h.Parent = doc.Body
	p.Parent = doc.Body
	return doc
}

func TestCreateEmpty(t *testing.T) {
	doc := CreateEmpty()
	assert.Equal(t, KindBody, doc.Body.Kind)
	assert.Empty(t, doc.Body.Children)
	assert.Contains(t, doc.Parts, "word/styles.xml")
}

func TestInsertReplaceRemoveChild(t *testing.T) {
	doc := CreateEmpty()
	p1 := NewElement(KindParagraph)
	p2 := NewElement(KindParagraph)

	require.NoError(t, doc.InsertChild(doc.Body, 0, p1))
	require.NoError(t, doc.InsertChild(doc.Body, 1, p2))
	assert.Equal(t, []*Element{p1, p2}, doc.Body.Children)

	p3 := NewElement(KindParagraph)
	require.NoError(t, doc.InsertAfter(p1, p3))
	assert.Equal(t, []*Element{p1, p3, p2}, doc.Body.Children)

	p4 := NewElement(KindParagraph)
	require.NoError(t, doc.ReplaceChild(p3, p4))
	assert.Equal(t, []*Element{p1, p4, p2}, doc.Body.Children)

	require.NoError(t, doc.RemoveChild(p4))
	assert.Equal(t, []*Element{p1, p2}, doc.Body.Children)
	assert.Nil(t, p4.Parent)

	err := doc.InsertChild(doc.Body, 99, NewElement(KindParagraph))
	assert.Error(t, err)
}

func TestTextContent(t *testing.T) {
	doc := buildSample()
	assert.Equal(t, "Title", doc.Body.Children[0].TextContent())
	assert.Equal(t, "Hello, world.", doc.Body.Children[1].TextContent())
}

func TestChildrenOfKind(t *testing.T) {
	doc := buildSample()
	paragraphs := doc.Body.ChildrenOfKind(KindParagraph)
	require.Len(t, paragraphs, 1)
	assert.Equal(t, "Hello, world.", paragraphs[0].TextContent())
}

func TestClone(t *testing.T) {
	doc := buildSample()
	original := doc.Body.Children[1]
	clone := original.Clone()

	assert.Equal(t, original.TextContent(), clone.TextContent())
	assert.Empty(t, clone.ID)
	assert.Nil(t, clone.Parent)
	require.Len(t, clone.Children, 1)
	assert.NotSame(t, original.Children[0], clone.Children[0])
}

func TestEnsureIDsAssignsOnlyPatchableKinds(t *testing.T) {
	doc := buildSample()
	EnsureIDs(doc)

	assert.Empty(t, doc.Body.ID, "body is not patchable")
	for _, c := range doc.Body.Children {
		assert.NotEmpty(t, c.ID)
		for _, gc := range c.Children {
			assert.NotEmpty(t, gc.ID)
		}
	}
}

func TestEnsureIDsIsIdempotent(t *testing.T) {
	doc := buildSample()
	EnsureIDs(doc)
	first := doc.Body.Children[0].ID

	EnsureIDs(doc)
	assert.Equal(t, first, doc.Body.Children[0].ID)
}

func TestFindByID(t *testing.T) {
	doc := buildSample()
	EnsureIDs(doc)

	target := doc.Body.Children[1]
	found := FindByID(doc, target.ID)
	require.NotNil(t, found)
	assert.Same(t, target, found)

	assert.Nil(t, FindByID(doc, "does-not-exist"))
}

func TestSaveAndReopenRoundTrip(t *testing.T) {
	doc := buildSample()
	EnsureIDs(doc)
	headingID := doc.Body.Children[0].ID
	runID := doc.Body.Children[1].Children[0].ID

	data, err := doc.Save()
	require.NoError(t, err)

	reopened, err := OpenFromBytes(data)
	require.NoError(t, err)

	require.Len(t, reopened.Body.Children, 2)
	assert.Equal(t, KindHeading, reopened.Body.Children[0].Kind)
	assert.Equal(t, 1, reopened.Body.Children[0].Level)
	assert.Equal(t, headingID, reopened.Body.Children[0].ID)
	assert.Equal(t, "Title", reopened.Body.Children[0].TextContent())

	para := reopened.Body.Children[1]
	assert.Equal(t, KindParagraph, para.Kind)
	require.Len(t, para.Children, 1)
	assert.Equal(t, runID, para.Children[0].ID)
	assert.True(t, para.Children[0].Bold)
	assert.Equal(t, "Hello, world.", para.Children[0].Text)

	assert.Contains(t, reopened.Parts, "word/styles.xml")
}

func TestOpenFromBytesRejectsGarbage(t *testing.T) {
	_, err := OpenFromBytes([]byte("not a zip"))
	assert.Error(t, err)
}

func TestCapabilityInterfaceSatisfiedByDocument(t *testing.T) {
	var cap Capability = CreateEmpty()
	assert.NotNil(t, cap.Root())
}
