// README: Coordinate guard; keeps a known-good coordinate when an incoming
// update would replace it with an invalid placeholder.
package geo

// Merge decides which coordinate wins when an incoming order snapshot is
// merged over locally held state. An invalid incoming value never replaces
// a valid held one; the held value is returned tagged as preserved. The
// authoritative store is observed to zero coordinates on some transition
// paths (notably courier acceptance), so every merge goes through here.
func Merge(held, incoming Coordinate) (Coordinate, bool) {
	if incoming.Valid() {
		return incoming, false
	}
	if held.Valid() {
		return held.WithProvenance(ProvenancePreserved), true
	}
	return incoming, false
}
