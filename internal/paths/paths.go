// Package paths implements the typed path language (§4.2): parsing,
// schema validation, and resolution of path strings to DOM element
// handles over a docsession document tree.
package paths

import (
	"docsession/internal/dom"
	"docsession/internal/docerr"
)

// SegmentName is a path segment's name token. Most values mirror dom.Kind;
// three are virtual and carry no dom.Kind counterpart.
type SegmentName string

const (
	NameBody      SegmentName = "body"
	NameParagraph SegmentName = "paragraph"
	NameHeading   SegmentName = "heading"
	NameTable     SegmentName = "table"
	NameRow       SegmentName = "row"
	NameCell      SegmentName = "cell"
	NameRun       SegmentName = "run"
	NameDrawing   SegmentName = "drawing"
	NameHyperlink SegmentName = "hyperlink"
	NameBookmark  SegmentName = "bookmark"
	NameComment   SegmentName = "comment"
	NameFootnote  SegmentName = "footnote"
	NameSection   SegmentName = "section"
	NameHeader    SegmentName = "header"
	NameFooter    SegmentName = "footer"
	NameStyle     SegmentName = "style"

	// NameChildren is the positional-insert virtual segment: /.../children/N.
	NameChildren SegmentName = "children"
	// NameMetadata and NameStyles are read-only virtual segments.
	NameMetadata SegmentName = "metadata"
	NameStyles   SegmentName = "styles"
)

var validNames = map[SegmentName]bool{
	NameBody: true, NameParagraph: true, NameHeading: true, NameTable: true,
	NameRow: true, NameCell: true, NameRun: true, NameDrawing: true,
	NameHyperlink: true, NameBookmark: true, NameComment: true,
	NameFootnote: true, NameSection: true, NameHeader: true, NameFooter: true,
	NameStyle: true, NameChildren: true, NameMetadata: true, NameStyles: true,
}

// nameToKind maps a real (non-virtual) segment name to its dom.Kind.
var nameToKind = map[SegmentName]dom.Kind{
	NameBody:      dom.KindBody,
	NameParagraph: dom.KindParagraph,
	NameHeading:   dom.KindHeading,
	NameTable:     dom.KindTable,
	NameRow:       dom.KindRow,
	NameCell:      dom.KindCell,
	NameRun:       dom.KindRun,
	NameDrawing:   dom.KindDrawing,
	NameHyperlink: dom.KindHyperlink,
	NameBookmark:  dom.KindBookmark,
	NameComment:   dom.KindComment,
	NameFootnote:  dom.KindFootnote,
	NameSection:   dom.KindSection,
	NameHeader:    dom.KindHeader,
	NameFooter:    dom.KindFooter,
	NameStyle:     dom.KindStyle,
}

func (n SegmentName) isVirtual() bool {
	return n == NameChildren || n == NameMetadata || n == NameStyles
}

// SelectorKind discriminates the selector forms in the grammar.
type SelectorKind int

const (
	SelNone SelectorKind = iota
	SelIndex
	SelID
	SelText
	SelTextContains
	SelStyle
	SelLevel
	SelType
	SelWildcard
)

// Selector is the parsed form of a bracketed segment qualifier.
type Selector struct {
	Kind  SelectorKind
	Index int    // SelIndex, SelLevel (level reuses Index)
	Str   string // SelID, SelText, SelTextContains, SelStyle, SelType
}

// Segment is one "/"-delimited path component.
type Segment struct {
	Name     SegmentName
	Selector Selector
	raw      string // original segment text, for error messages
}

// Path is a fully parsed typed path.
type Path struct {
	Segments []Segment
	raw      string
}

func (p *Path) String() string { return p.raw }

// schemaChildren lists which segment names may legally appear as a direct
// child segment under a given parent segment name (§4.2 "Schema"). Virtual
// segments are keyed by the name they virtually attach beneath.
var schemaChildren = map[SegmentName]map[SegmentName]bool{
	NameBody: set(NameParagraph, NameHeading, NameTable, NameSection, NameDrawing,
		NameChildren, NameStyle, NameHeader, NameFooter, NameBookmark, NameMetadata, NameStyles),
	NameTable:      set(NameRow, NameStyle, NameChildren),
	NameRow:        set(NameCell, NameChildren),
	NameCell:       set(NameParagraph, NameTable, NameChildren),
	NameParagraph:  set(NameRun, NameHyperlink, NameDrawing, NameStyle, NameBookmark, NameChildren),
	NameHeading:    set(NameRun, NameHyperlink, NameDrawing, NameStyle, NameBookmark, NameChildren),
	NameHyperlink:  set(NameRun, NameStyle, NameChildren),
	NameSection:    set(NameHeader, NameFooter, NameStyle),
	NameHeader:     set(NameParagraph, NameTable, NameChildren),
	NameFooter:     set(NameParagraph, NameTable, NameChildren),
	NameRun:        set(NameStyle, NameComment, NameFootnote),
	NameDrawing:    set(NameStyle),
	NameBookmark:   {},
	NameComment:    {},
	NameFootnote:   {},
	NameStyle:      {},
}

func set(names ...SegmentName) map[SegmentName]bool {
	m := make(map[SegmentName]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// validateSchema checks every adjacent (parent, child) segment pair against
// schemaChildren, returning a SchemaError naming the offending segment and
// parent on the first violation.
func validateSchema(p *Path) error {
	for i := 1; i < len(p.Segments); i++ {
		parent := p.Segments[i-1]
		child := p.Segments[i]
		allowed, ok := schemaChildren[parent.Name]
		if !ok || !allowed[child.Name] {
			return docerr.New(docerr.KindSchemaError, "resolve", p.raw,
				"segment \""+string(child.Name)+"\" may not be nested under \""+string(parent.Name)+"\"", nil)
		}
	}
	return nil
}
