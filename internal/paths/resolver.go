package paths

import (
	"strings"

	"docsession/internal/dom"
	"docsession/internal/docerr"
)

// ResultKind discriminates the three resolution shapes the §4.2 resolver
// contract allows, plus the two read-only virtual segments.
type ResultKind int

const (
	ResultElement ResultKind = iota
	ResultParentIndex
	ResultList
	ResultMetadata
	ResultStyles
	// ResultStyleProperties targets the run/paragraph-level formatting
	// properties of Element itself, for a trailing "/style" segment whose
	// parent is not the document body (§4.3 value taxonomy, "style" type).
	ResultStyleProperties
)

// Result is the outcome of resolving a Path against a document.
type Result struct {
	Kind ResultKind

	Element *dom.Element // ResultElement

	Parent *dom.Element // ResultParentIndex
	Index  int          // ResultParentIndex: insertion index among Parent.Children

	List []*dom.Element // ResultList (wildcard, query-only)
}

// Resolve walks path against doc, producing a concrete element handle, a
// parent+index pair (for /.../children/N), an ordered list (wildcard), or
// one of the read-only virtual results.
func Resolve(doc *dom.Document, path *Path) (*Result, error) {
	segs := path.Segments
	current := doc.Body

	for i := 1; i < len(segs); i++ {
		seg := segs[i]
		last := i == len(segs)-1

		switch seg.Name {
		case NameChildren:
			if !last {
				return nil, docerr.New(docerr.KindSchemaError, "resolve", path.raw,
					"\"children\" may only appear as the final segment", nil)
			}
			return resolveChildrenSlot(current, seg, path.raw)

		case NameMetadata:
			if !last {
				return nil, docerr.New(docerr.KindSchemaError, "resolve", path.raw,
					"\"metadata\" may only appear as the final segment", nil)
			}
			return &Result{Kind: ResultMetadata}, nil

		case NameStyles:
			if !last {
				return nil, docerr.New(docerr.KindSchemaError, "resolve", path.raw,
					"\"styles\" may only appear as the final segment", nil)
			}
			return &Result{Kind: ResultStyles}, nil

		case NameStyle:
			if current.Kind != dom.KindBody {
				if !last {
					return nil, docerr.New(docerr.KindSchemaError, "resolve", path.raw,
						"\"style\" may only appear as the final segment", nil)
				}
				return &Result{Kind: ResultStyleProperties, Element: current}, nil
			}
			// falls through: at body level "style" addresses a named style
			// definition, resolved like any other kind-backed segment below.
		}

		kind, ok := nameToKind[seg.Name]
		if !ok {
			return nil, docerr.New(docerr.KindInternal, "resolve", path.raw,
				"unmapped segment name \""+string(seg.Name)+"\"", nil)
		}

		candidates := current.ChildrenOfKind(kind)
		matched := filterBySelector(candidates, seg.Selector)

		if seg.Selector.Kind == SelWildcard {
			if !last {
				return nil, docerr.New(docerr.KindSchemaError, "resolve", path.raw,
					"wildcard selectors are query-only and must be the final segment", nil)
			}
			return &Result{Kind: ResultList, List: matched}, nil
		}

		switch len(matched) {
		case 0:
			return nil, docerr.New(docerr.KindNotFound, "resolve", path.raw,
				"no element matched segment \""+seg.raw+"\"", nil)
		case 1:
			current = matched[0]
		default:
			return nil, docerr.Ambiguous("resolve", path.raw)
		}
	}

	return &Result{Kind: ResultElement, Element: current}, nil
}

func resolveChildrenSlot(parent *dom.Element, seg Segment, raw string) (*Result, error) {
	idx := len(parent.Children) // default: append at end
	switch seg.Selector.Kind {
	case SelNone:
		// no index given: append
	case SelIndex:
		idx = seg.Selector.Index
		if idx < 0 {
			idx = len(parent.Children) + idx + 1
		}
	default:
		return nil, docerr.New(docerr.KindSchemaError, "resolve", raw,
			"\"children\" accepts only an integer index selector", nil)
	}
	if idx < 0 || idx > len(parent.Children) {
		return nil, docerr.New(docerr.KindResolve, "resolve", raw,
			"children index out of range", nil)
	}
	return &Result{Kind: ResultParentIndex, Parent: parent, Index: idx}, nil
}

func filterBySelector(elems []*dom.Element, sel Selector) []*dom.Element {
	switch sel.Kind {
	case SelNone, SelWildcard:
		return elems

	case SelIndex:
		idx := sel.Index
		if idx < 0 {
			idx = len(elems) + idx
		}
		if idx < 0 || idx >= len(elems) {
			return nil
		}
		return []*dom.Element{elems[idx]}

	case SelID:
		return filter(elems, func(e *dom.Element) bool { return e.ID == sel.Str })

	case SelText:
		return filter(elems, func(e *dom.Element) bool { return e.TextContent() == sel.Str })

	case SelTextContains:
		return filter(elems, func(e *dom.Element) bool { return strings.Contains(e.TextContent(), sel.Str) })

	case SelStyle:
		return filter(elems, func(e *dom.Element) bool { return e.StyleName == sel.Str })

	case SelLevel:
		return filter(elems, func(e *dom.Element) bool { return e.Level == sel.Index })

	case SelType:
		return filter(elems, func(e *dom.Element) bool { return e.HFType == sel.Str })

	default:
		return elems
	}
}

func filter(elems []*dom.Element, pred func(*dom.Element) bool) []*dom.Element {
	var out []*dom.Element
	for _, e := range elems {
		if pred(e) {
			out = append(out, e)
		}
	}
	return out
}
