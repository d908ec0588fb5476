// Package paths tests for path parsing, schema validation, and resolution.
package paths

import (
	"testing"

	"docsession/internal/dom"
	"docsession/internal/docerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDoc() *dom.Document {
	doc := dom.CreateEmpty()

	h := dom.NewElement(dom.KindHeading)
	h.Level = 1
	r1 := dom.NewElement(dom.KindRun)
	r1.Text = "Hello"
	h.Children = []*dom.Element{r1}
	r1.Parent = h

	p := dom.NewElement(dom.KindParagraph)
	r2 := dom.NewElement(dom.KindRun)
	r2.Text = "World"
	p.Children = []*dom.Element{r2}
	r2.Parent = p

	doc.Body.Children = []*dom.Element{h, p}
	h.Parent = doc.Body
	p.Parent = doc.Body
	dom.EnsureIDs(doc)
	return doc
}

func TestParseValidPath(t *testing.T) {
	p, err := Parse("/body/heading[0]")
	require.NoError(t, err)
	require.Len(t, p.Segments, 2)
	assert.Equal(t, NameBody, p.Segments[0].Name)
	assert.Equal(t, NameHeading, p.Segments[1].Name)
	assert.Equal(t, SelIndex, p.Segments[1].Selector.Kind)
	assert.Equal(t, 0, p.Segments[1].Selector.Index)
}

func TestParseRequiresLeadingSlash(t *testing.T) {
	_, err := Parse("body/heading[0]")
	assert.True(t, docerr.Is(err, docerr.KindParseError))
}

func TestParseRequiresBodyRoot(t *testing.T) {
	_, err := Parse("/paragraph[0]")
	assert.True(t, docerr.Is(err, docerr.KindParseError))
}

func TestParseRejectsUnknownSegment(t *testing.T) {
	_, err := Parse("/body/frobnicate[0]")
	assert.True(t, docerr.Is(err, docerr.KindParseError))
}

func TestParseRejectsInvalidNesting(t *testing.T) {
	_, err := Parse("/body/run[0]")
	assert.True(t, docerr.Is(err, docerr.KindSchemaError))
}

func TestParseSelectorForms(t *testing.T) {
	cases := []struct {
		path string
		kind SelectorKind
	}{
		{"/body/paragraph[id='abc']", SelID},
		{"/body/paragraph[text='World']", SelText},
		{"/body/paragraph[text~='orl']", SelTextContains},
		{"/body/table[style='Grid']", SelStyle},
		{"/body/heading[level=1]", SelLevel},
		{"/body/header[type=first]", SelType},
		{"/body/paragraph[*]", SelWildcard},
		{"/body/paragraph[-1]", SelIndex},
	}
	for _, c := range cases {
		p, err := Parse(c.path)
		require.NoError(t, err, c.path)
		last := p.Segments[len(p.Segments)-1]
		assert.Equal(t, c.kind, last.Selector.Kind, c.path)
	}
}

func TestResolveByIndex(t *testing.T) {
	doc := sampleDoc()
	p, err := Parse("/body/heading[0]")
	require.NoError(t, err)
	res, err := Resolve(doc, p)
	require.NoError(t, err)
	require.Equal(t, ResultElement, res.Kind)
	assert.Equal(t, "Hello", res.Element.TextContent())
}

func TestResolveByTextExact(t *testing.T) {
	doc := sampleDoc()
	p, err := Parse("/body/paragraph[text='World']")
	require.NoError(t, err)
	res, err := Resolve(doc, p)
	require.NoError(t, err)
	assert.Equal(t, "World", res.Element.TextContent())
}

func TestResolveNotFound(t *testing.T) {
	doc := sampleDoc()
	p, err := Parse("/body/paragraph[5]")
	require.NoError(t, err)
	_, err = Resolve(doc, p)
	assert.True(t, docerr.Is(err, docerr.KindNotFound))
}

func TestResolveAmbiguous(t *testing.T) {
	doc := sampleDoc()
	extra := dom.NewElement(dom.KindParagraph)
	r := dom.NewElement(dom.KindRun)
	r.Text = "World"
	extra.Children = []*dom.Element{r}
	r.Parent = extra
	doc.Body.Children = append(doc.Body.Children, extra)
	extra.Parent = doc.Body
	dom.EnsureIDs(doc)

	p, err := Parse("/body/paragraph[text='World']")
	require.NoError(t, err)
	_, err = Resolve(doc, p)
	assert.True(t, docerr.Is(err, docerr.KindAmbiguous))
}

func TestResolveWildcardProducesList(t *testing.T) {
	doc := sampleDoc()
	p, err := Parse("/body/paragraph[*]")
	require.NoError(t, err)
	res, err := Resolve(doc, p)
	require.NoError(t, err)
	assert.Equal(t, ResultList, res.Kind)
	require.Len(t, res.List, 1)
}

func TestResolveChildrenSlotAppend(t *testing.T) {
	doc := sampleDoc()
	p, err := Parse("/body/children")
	require.NoError(t, err)
	res, err := Resolve(doc, p)
	require.NoError(t, err)
	require.Equal(t, ResultParentIndex, res.Kind)
	assert.Same(t, doc.Body, res.Parent)
	assert.Equal(t, 2, res.Index)
}

func TestResolveChildrenSlotExplicitIndex(t *testing.T) {
	doc := sampleDoc()
	p, err := Parse("/body/children[0]")
	require.NoError(t, err)
	res, err := Resolve(doc, p)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Index)
}

func TestResolveMetadataAndStyles(t *testing.T) {
	doc := sampleDoc()

	p, err := Parse("/body/metadata")
	require.NoError(t, err)
	res, err := Resolve(doc, p)
	require.NoError(t, err)
	assert.Equal(t, ResultMetadata, res.Kind)

	p2, err := Parse("/body/styles")
	require.NoError(t, err)
	res2, err := Resolve(doc, p2)
	require.NoError(t, err)
	assert.Equal(t, ResultStyles, res2.Kind)
}

func TestResolveIndexIgnoresOtherKinds(t *testing.T) {
	doc := sampleDoc()
	table := dom.NewElement(dom.KindTable)
	doc.Body.Children = append([]*dom.Element{doc.Body.Children[0], table}, doc.Body.Children[1:]...)
	table.Parent = doc.Body
	dom.EnsureIDs(doc)

	p, err := Parse("/body/paragraph[0]")
	require.NoError(t, err)
	res, err := Resolve(doc, p)
	require.NoError(t, err)
	assert.Equal(t, "World", res.Element.TextContent())
}
