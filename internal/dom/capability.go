package dom

// Capability is the narrow surface the session core requires of an OOXML
// document backend (§6.1): open/create, save, and in-place tree mutation.
// Everything upstream of this package (paths, patch, reconcile) depends
// only on this interface, never on *Document directly, so a different
// OOXML engine could be substituted without touching the rest of the core.
//
// *Document is the only implementation in this repo.
type Capability interface {
	Root() *Element
	Save() ([]byte, error)
	InsertChild(parent *Element, idx int, child *Element) error
	InsertAfter(sibling, child *Element) error
	ReplaceChild(old, replacement *Element) error
	RemoveChild(el *Element) error
}

// Root returns the document's body element, the entry point for all typed
// path resolution.
func (d *Document) Root() *Element {
	return d.Body
}

var _ Capability = (*Document)(nil)

// Open parses package bytes through the Capability surface. Kept distinct
// from OpenFromBytes so callers that only need the interface don't have to
// import the concrete return type.
func Open(data []byte) (Capability, error) {
	return OpenFromBytes(data)
}
