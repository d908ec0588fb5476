package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"docsession/internal/dom"
	"docsession/internal/wal"
)

// DetectUncoveredChanges compares every package part outside the main
// document body (headers, footers, media, styles, core properties) by
// URI and content hash (§4.5 "Uncovered-change detection"). These never
// generate JSON patches; the full snapshot in the sync's WAL entry is the
// means of propagating them.
func DetectUncoveredChanges(original, modified *dom.Document) []wal.UncoveredChange {
	var out []wal.UncoveredChange

	for uri, oBytes := range original.Parts {
		mBytes, ok := modified.Parts[uri]
		if !ok {
			out = append(out, wal.UncoveredChange{
				ChangeKind:  "removed",
				Type:        partType(uri),
				PartURI:     uri,
				Description: fmt.Sprintf("part %s was removed", uri),
			})
			continue
		}
		if hashOf(oBytes) != hashOf(mBytes) {
			out = append(out, wal.UncoveredChange{
				ChangeKind:  "changed",
				Type:        partType(uri),
				PartURI:     uri,
				Description: fmt.Sprintf("part %s changed", uri),
			})
		}
	}
	for uri := range modified.Parts {
		if _, ok := original.Parts[uri]; !ok {
			out = append(out, wal.UncoveredChange{
				ChangeKind:  "added",
				Type:        partType(uri),
				PartURI:     uri,
				Description: fmt.Sprintf("part %s was added", uri),
			})
		}
	}
	return out
}

func hashOf(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// partType classifies a package part URI into a coarse human-readable
// category for the uncovered-change record.
func partType(uri string) string {
	switch {
	case uri == "docProps/core.xml":
		return "core_properties"
	case matchesPrefix(uri, "word/header"):
		return "header"
	case matchesPrefix(uri, "word/footer"):
		return "footer"
	case matchesPrefix(uri, "word/media/"):
		return "media"
	case uri == "word/styles.xml":
		return "styles"
	case uri == "word/numbering.xml":
		return "numbering"
	default:
		return "other"
	}
}

func matchesPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
