// Package dom implements the minimal OOXML document-object-model capability
// set the session core consumes (§6.1 of the specification): open/create,
// save, enumerate/mutate body children, read/write element properties, and
// an `id` attribute for stable element identity. The attribute is written
// as a bare, unprefixed `id` with no namespace of its own.
//
// The real OOXML parser/serializer is an out-of-scope external collaborator
// in the design this core was built against; no ecosystem OOXML library is
// available in this module's dependency set, so this package backs the
// capability interface with a deliberately minimal implementation over
// archive/zip and encoding/xml. It is not a general-purpose WordprocessingML
// engine — it round-trips exactly the element kinds and properties the
// typed-path/patch layer needs, nothing more.
package dom

import (
	"fmt"
)

// Kind identifies the OOXML element kinds the typed path schema names.
type Kind string

const (
	KindBody       Kind = "body"
	KindParagraph  Kind = "paragraph"
	KindHeading    Kind = "heading"
	KindTable      Kind = "table"
	KindRow        Kind = "row"
	KindCell       Kind = "cell"
	KindRun        Kind = "run"
	KindDrawing    Kind = "drawing"
	KindHyperlink  Kind = "hyperlink"
	KindBookmark   Kind = "bookmark"
	KindComment    Kind = "comment"
	KindFootnote   Kind = "footnote"
	KindSection    Kind = "section"
	KindHeader     Kind = "header"
	KindFooter     Kind = "footer"
	KindStyle      Kind = "style"
)

// Patchable reports whether elements of this kind receive a stable private
// id during the id-assignment pass (§4.3 "Element identity").
func (k Kind) Patchable() bool {
	switch k {
	case KindParagraph, KindHeading, KindTable, KindRow, KindCell, KindRun,
		KindDrawing, KindHyperlink, KindBookmark, KindComment, KindFootnote,
		KindSection, KindHeader, KindFooter:
		return true
	default:
		return false
	}
}

// Element is one node of the in-memory DOM tree. Not every field applies to
// every Kind; unused fields are left zero.
type Element struct {
	Kind     Kind
	ID       string
	Parent   *Element
	Children []*Element

	// paragraph / run / heading text content. Runs hold literal text;
	// paragraphs and headings aggregate it from their run children.
	Text string

	Level     int    // heading level 1..9
	StyleName string // paragraph style id, table style name, or /style target

	// run/paragraph formatting properties
	Bold      bool
	Italic    bool
	Underline bool
	Strike    bool
	FontSize  int // points
	FontName  string
	Color     string
	Alignment string

	// hyperlink
	URL string

	// drawing (image)
	ImagePath string
	Width     int
	Height    int
	Alt       string

	// table border style
	BorderStyle string

	// header/footer discriminator
	HFType string // "default" | "first" | "even"

	// bookmark/comment/footnote cross-reference name
	RefName string

	// PageBreak marks a paragraph that contains only a page break.
	PageBreak bool
}

// NewElement constructs a detached element of the given kind.
func NewElement(kind Kind) *Element {
	return &Element{Kind: kind}
}

// Clone deep-copies an element subtree, dropping parent linkage and private
// ids (the caller decides whether the copy should receive its own id via
// the id-assignment pass, per the `copy` patch op).
func (e *Element) Clone() *Element {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Parent = nil
	clone.ID = ""
	clone.Children = make([]*Element, 0, len(e.Children))
	for _, c := range e.Children {
		cc := c.Clone()
		cc.Parent = &clone
		clone.Children = append(clone.Children, cc)
	}
	return &clone
}

// deepCopy duplicates a subtree preserving ids, unlike Clone which is the
// semantics of the `copy` patch op (fresh identity). Used for taking a
// full-fidelity scratch copy of a document.
func (e *Element) deepCopy() *Element {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Parent = nil
	cp.Children = make([]*Element, 0, len(e.Children))
	for _, c := range e.Children {
		cc := c.deepCopy()
		cc.Parent = &cp
		cp.Children = append(cp.Children, cc)
	}
	return &cp
}

// ChildrenOfKind returns the direct children matching kind, in document
// order. Index selectors in typed paths count over exactly this list, so
// `paragraph[2]` skips intervening tables (§4.2 "Resolver contract").
func (e *Element) ChildrenOfKind(kind Kind) []*Element {
	var out []*Element
	for _, c := range e.Children {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// TextContent returns the concatenated literal text of the subtree rooted
// at e, in document order, used by text= / text~= selectors and by the
// reconciliation fingerprint.
func (e *Element) TextContent() string {
	if e.Kind == KindRun {
		return e.Text
	}
	var out []byte
	for _, c := range e.Children {
		out = append(out, c.TextContent()...)
	}
	return string(out)
}

// Document is the in-memory OOXML DOM for one session.
type Document struct {
	Body *Element // root element, Kind == KindBody

	// Parts holds the raw bytes of every package part outside the main
	// document body, keyed by part URI (e.g. "word/header1.xml",
	// "word/styles.xml", "docProps/core.xml"). These are opaque to the
	// patch engine and typed paths; the reconciliation engine compares
	// them by URI and content hash to detect "uncovered changes" (§4.5).
	Parts map[string][]byte

	// CoreProperties is a best-effort parse of docProps/core.xml, exposed
	// read-only via the `/metadata` virtual path segment.
	CoreProperties map[string]string
}

// CreateEmpty synthesizes a minimal well-formed document: an empty body,
// no header/footer/style parts beyond a default styles part.
func CreateEmpty() *Document {
	return &Document{
		Body:           NewElement(KindBody),
		Parts:          map[string][]byte{"word/styles.xml": defaultStylesXML()},
		CoreProperties: map[string]string{},
	}
}

// Clone deep-copies the whole document: the body subtree plus independent
// copies of the opaque parts and core-properties maps. Used by the patch
// engine to apply a batch against a scratch copy so a mid-batch failure
// never mutates the caller's document (§4.3 "Patch pipeline" atomicity).
func (d *Document) Clone() *Document {
	parts := make(map[string][]byte, len(d.Parts))
	for k, v := range d.Parts {
		cp := make([]byte, len(v))
		copy(cp, v)
		parts[k] = cp
	}
	props := make(map[string]string, len(d.CoreProperties))
	for k, v := range d.CoreProperties {
		props[k] = v
	}
	return &Document{
		Body:           d.Body.deepCopy(),
		Parts:          parts,
		CoreProperties: props,
	}
}

// InsertChild inserts child into parent's children at position idx
// (0 <= idx <= len(parent.Children)), per §4.3 `add` semantics for
// `/.../children/N`.
func (d *Document) InsertChild(parent *Element, idx int, child *Element) error {
	if idx < 0 || idx > len(parent.Children) {
		return fmt.Errorf("dom: insert index %d out of range [0,%d]", idx, len(parent.Children))
	}
	child.Parent = parent
	parent.Children = append(parent.Children, nil)
	copy(parent.Children[idx+1:], parent.Children[idx:])
	parent.Children[idx] = child
	return nil
}

// InsertAfter inserts child immediately after sibling within sibling's
// parent, used for `add` operations whose path resolves to an existing
// element rather than a `children/N` slot.
func (d *Document) InsertAfter(sibling, child *Element) error {
	parent := sibling.Parent
	if parent == nil {
		return fmt.Errorf("dom: cannot insert after a detached element")
	}
	for i, c := range parent.Children {
		if c == sibling {
			return d.InsertChild(parent, i+1, child)
		}
	}
	return fmt.Errorf("dom: sibling not found among parent's children")
}

// ReplaceChild swaps old for replacement in old's parent, preserving
// position.
func (d *Document) ReplaceChild(old, replacement *Element) error {
	parent := old.Parent
	if parent == nil {
		if old == d.Body {
			return fmt.Errorf("dom: cannot replace the document body")
		}
		return fmt.Errorf("dom: cannot replace a detached element")
	}
	for i, c := range parent.Children {
		if c == old {
			replacement.Parent = parent
			parent.Children[i] = replacement
			return nil
		}
	}
	return fmt.Errorf("dom: element not found among parent's children")
}

// RemoveChild detaches el from its parent.
func (d *Document) RemoveChild(el *Element) error {
	parent := el.Parent
	if parent == nil {
		return fmt.Errorf("dom: cannot remove a detached element")
	}
	for i, c := range parent.Children {
		if c == el {
			parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
			el.Parent = nil
			return nil
		}
	}
	return fmt.Errorf("dom: element not found among parent's children")
}

// Walk visits every element of the subtree rooted at e in document order,
// including e itself.
func Walk(e *Element, visit func(*Element)) {
	visit(e)
	for _, c := range e.Children {
		Walk(c, visit)
	}
}

func defaultStylesXML() []byte {
	return []byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:styles xmlns:w="http://docsession/wordml"></w:styles>`)
}
