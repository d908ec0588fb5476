package reconcile

import (
	"encoding/json"
	"fmt"
	"sort"

	"docsession/internal/dom"
	"docsession/internal/docerr"
	"docsession/internal/patch"
)

// GeneratePatches turns a computed Change list into the ordered patch
// batch §4.5 "Patches from diff" describes: removes in reverse index
// order first, then replaces, then moves, then adds in ascending target
// index. Paths address the original document's body using kind-relative
// indices, the same indexing scheme typed paths use.
func GeneratePatches(changes []Change) ([]patch.Op, error) {
	var removed, modified, moved, added []Change
	for _, c := range changes {
		switch c.Kind {
		case ChangeRemoved:
			removed = append(removed, c)
		case ChangeModified:
			modified = append(modified, c)
		case ChangeMoved:
			moved = append(moved, c)
		case ChangeAdded:
			added = append(added, c)
		}
	}

	sort.Slice(removed, func(i, j int) bool {
		return kindIndex(removed[i].OriginalElement) > kindIndex(removed[j].OriginalElement)
	})
	sort.Slice(added, func(i, j int) bool { return added[i].ModifiedIndex < added[j].ModifiedIndex })

	var ops []patch.Op

	for _, c := range removed {
		ops = append(ops, patch.Op{
			Op:   patch.OpRemove,
			Path: kindPath(c.OriginalElement),
		})
	}

	for _, c := range modified {
		val, err := elementToValue(c.ModifiedElement)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("reconcile: marshal replace value: %w", err)
		}
		ops = append(ops, patch.Op{
			Op:    patch.OpReplace,
			Path:  kindPath(c.OriginalElement),
			Value: raw,
		})
	}

	for _, c := range moved {
		ops = append(ops, patch.Op{
			Op:   patch.OpMove,
			From: kindPath(c.OriginalElement),
			Path: fmt.Sprintf("/body/children/%d", c.ModifiedIndex),
		})
	}

	for _, c := range added {
		val, err := elementToValue(c.ModifiedElement)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("reconcile: marshal add value: %w", err)
		}
		ops = append(ops, patch.Op{
			Op:    patch.OpAdd,
			Path:  fmt.Sprintf("/body/children/%d", c.ModifiedIndex),
			Value: raw,
		})
	}

	return ops, nil
}

// kindIndex returns e's position among its parent's same-kind siblings,
// the same counting rule typed-path index selectors use.
func kindIndex(e *dom.Element) int {
	if e.Parent == nil {
		return 0
	}
	idx := 0
	for _, sib := range e.Parent.Children {
		if sib == e {
			return idx
		}
		if sib.Kind == e.Kind {
			idx++
		}
	}
	return idx
}

func kindPath(e *dom.Element) string {
	return fmt.Sprintf("/body/%s[%d]", e.Kind, kindIndex(e))
}

// elementToValue reconstructs the §4.3 value-taxonomy JSON shape that
// would materialize back to an element equivalent to e. Only the three
// fingerprintable top-level kinds ever reach this function, since
// TopLevelFingerprints restricts Diff to paragraph/heading/table.
func elementToValue(e *dom.Element) (*patch.Value, error) {
	switch e.Kind {
	case dom.KindParagraph:
		return &patch.Value{Type: "paragraph", Text: e.TextContent(), Style: e.StyleName}, nil
	case dom.KindHeading:
		return &patch.Value{Type: "heading", Level: e.Level, Text: e.TextContent()}, nil
	case dom.KindTable:
		rows := make([][]string, 0, len(e.ChildrenOfKind(dom.KindRow)))
		for _, row := range e.ChildrenOfKind(dom.KindRow) {
			var cells []string
			for _, cell := range row.Children {
				cells = append(cells, cell.TextContent())
			}
			rows = append(rows, cells)
		}
		return &patch.Value{Type: "table", Rows: rows, BorderStyle: e.BorderStyle}, nil
	default:
		return nil, docerr.New(docerr.KindInternal, "generate_patches", "",
			fmt.Sprintf("unsupported diff element kind %q", e.Kind), nil)
	}
}
