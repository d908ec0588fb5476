package reconcile

import (
	"docsession/internal/dom"
)

// Change kinds emitted by Diff (§4.5 "Matching algorithm" steps 4-5).
const (
	ChangeAdded    = "added"
	ChangeRemoved  = "removed"
	ChangeModified = "modified"
	ChangeMoved    = "moved"
)

// Change describes one difference between an original body element list
// and a modified one.
type Change struct {
	Kind             string
	OriginalIndex    int // meaningful for removed, modified, moved
	ModifiedIndex    int // meaningful for added, modified, moved
	OriginalElement  *dom.Element
	ModifiedElement  *dom.Element
	SimilarityScore  float64 // meaningful for modified
}

// DefaultSimilarityThreshold is τ from §4.5, the minimum Levenshtein-ratio
// (or structural/text blend, for tables) below which two unmatched
// elements are never paired as Similar.
const DefaultSimilarityThreshold = 0.6

// Diff computes the element-level changes between original and modified
// per §4.5's matching algorithm: greedy exact-fingerprint pairing first,
// then a greedy highest-similarity pass over the remainder, then the
// leftover unmatched elements become Added/Removed.
func Diff(original, modified *dom.Document, threshold float64) []Change {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	oEls := TopLevelFingerprints(original.Body)
	mEls := TopLevelFingerprints(modified.Body)

	oUsed := make([]bool, len(oEls))
	mUsed := make([]bool, len(mEls))

	var changes []Change

	// Step 1: exact fingerprint matches, greedy in order.
	for i := range oEls {
		for j := range mEls {
			if mUsed[j] || oEls[i].Hash != mEls[j].Hash {
				continue
			}
			oUsed[i] = true
			mUsed[j] = true
			if oEls[i].Index != mEls[j].Index {
				changes = append(changes, Change{
					Kind:            ChangeMoved,
					OriginalIndex:   oEls[i].Index,
					ModifiedIndex:   mEls[j].Index,
					OriginalElement: oEls[i].Element,
					ModifiedElement: mEls[j].Element,
					SimilarityScore: 1,
				})
			}
			break
		}
	}

	// Step 2-3: greedy highest-similarity pairing among the remainder.
	type candidate struct {
		i, j int
		sim  float64
	}
	var candidates []candidate
	for i := range oEls {
		if oUsed[i] {
			continue
		}
		for j := range mEls {
			if mUsed[j] {
				continue
			}
			sim := elementSimilarity(oEls[i].Element, mEls[j].Element)
			if sim > 0 {
				candidates = append(candidates, candidate{i, j, sim})
			}
		}
	}
	for {
		best := -1
		bestSim := threshold
		for k, c := range candidates {
			if oUsed[c.i] || mUsed[c.j] {
				continue
			}
			if c.sim >= bestSim {
				bestSim = c.sim
				best = k
			}
		}
		if best < 0 {
			break
		}
		c := candidates[best]
		oUsed[c.i] = true
		mUsed[c.j] = true
		changes = append(changes, Change{
			Kind:            ChangeModified,
			OriginalIndex:   oEls[c.i].Index,
			ModifiedIndex:   mEls[c.j].Index,
			OriginalElement: oEls[c.i].Element,
			ModifiedElement: mEls[c.j].Element,
			SimilarityScore: c.sim,
		})
	}

	// Step 4: leftovers.
	for i := range oEls {
		if !oUsed[i] {
			changes = append(changes, Change{
				Kind:            ChangeRemoved,
				OriginalIndex:   oEls[i].Index,
				OriginalElement: oEls[i].Element,
			})
		}
	}
	for j := range mEls {
		if !mUsed[j] {
			changes = append(changes, Change{
				Kind:            ChangeAdded,
				ModifiedIndex:   mEls[j].Index,
				ModifiedElement: mEls[j].Element,
			})
		}
	}
	return changes
}

// elementSimilarity returns 0 if kinds differ; otherwise a text
// Levenshtein ratio, blended with structural (row/col) similarity for
// tables (§4.5 "average the text similarity with a structural
// similarity").
func elementSimilarity(o, m *dom.Element) float64 {
	if o.Kind != m.Kind {
		return 0
	}
	textSim := levenshteinRatio(o.TextContent(), m.TextContent())
	if o.Kind != dom.KindTable {
		return textSim
	}
	oRows, oCols := tableDims(o)
	mRows, mCols := tableDims(m)
	structSim := structuralSimilarity(oRows, oCols, mRows, mCols)
	return (textSim + structSim) / 2
}

// Summarize tallies a Change slice into the §6.4 change-summary shape.
func Summarize(changes []Change) ChangeSummaryCounts {
	var s ChangeSummaryCounts
	for _, c := range changes {
		switch c.Kind {
		case ChangeAdded:
			s.Added++
		case ChangeRemoved:
			s.Removed++
		case ChangeModified:
			s.Modified++
		case ChangeMoved:
			s.Moved++
		}
	}
	s.TotalChanges = s.Added + s.Removed + s.Modified + s.Moved
	return s
}

// ChangeSummaryCounts mirrors wal.ChangeSummary's fields as a separate
// type (this package does import internal/wal, for UncoveredChange).
// Callers convert at the session-manager seam.
type ChangeSummaryCounts struct {
	Added        int
	Removed      int
	Modified     int
	Moved        int
	TotalChanges int
}
