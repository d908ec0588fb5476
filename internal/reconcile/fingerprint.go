// Package reconcile implements the diff engine and external change
// tracker (§4.5): content fingerprinting, fuzzy/exact matching between a
// body's element list and a modified one, uncovered-change detection over
// non-body parts, patch generation from a computed diff, and a
// debounced file-system watcher that turns external edits into pending
// sync candidates.
package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"docsession/internal/dom"
)

// Fingerprint computes the 16-hex-char content-only fingerprint of a
// top-level body element (§4.5 "Content fingerprint"): kind tag, optional
// heading level, exact text, and for tables the row/column counts. The
// private element id is deliberately excluded so that id reassignment
// across a sync never produces a false diff.
func Fingerprint(e *dom.Element) string {
	h := sha256.New()
	fmt.Fprintf(h, "kind:%s\n", e.Kind)
	if e.Kind == dom.KindHeading {
		fmt.Fprintf(h, "level:%d\n", e.Level)
	}
	fmt.Fprintf(h, "text:%s\n", e.TextContent())
	if e.Kind == dom.KindTable {
		rows, cols := tableDims(e)
		fmt.Fprintf(h, "rows:%d cols:%d\n", rows, cols)
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:8]) // 8 bytes = 16 hex chars
}

func tableDims(table *dom.Element) (rows, cols int) {
	rowEls := table.ChildrenOfKind(dom.KindRow)
	rows = len(rowEls)
	for _, r := range rowEls {
		if n := len(r.Children); n > cols {
			cols = n
		}
	}
	return rows, cols
}

// ContentHash reserializes doc with every private element id stripped,
// then returns the hex SHA-256 of the result (§4.5 "Content-only hash").
// Used solely for change-detection gating, never for identity.
func ContentHash(doc *dom.Document) (string, error) {
	scrubbed := doc.Clone()
	dom.Walk(scrubbed.Body, func(e *dom.Element) {
		e.ID = ""
	})
	raw, err := scrubbed.Save()
	if err != nil {
		return "", fmt.Errorf("reconcile: content hash save: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// TopLevelFingerprints returns the fingerprint for every direct body child
// of a fingerprintable kind (paragraph, heading, table), in document
// order, alongside the element itself.
func TopLevelFingerprints(body *dom.Element) []FingerprintedElement {
	var out []FingerprintedElement
	for i, c := range body.Children {
		if !fingerprintable(c.Kind) {
			continue
		}
		out = append(out, FingerprintedElement{Index: i, Element: c, Hash: Fingerprint(c)})
	}
	return out
}

func fingerprintable(k dom.Kind) bool {
	return k == dom.KindParagraph || k == dom.KindHeading || k == dom.KindTable
}

// FingerprintedElement pairs a top-level body element with its original
// index and content fingerprint.
type FingerprintedElement struct {
	Index   int
	Element *dom.Element
	Hash    string
}
