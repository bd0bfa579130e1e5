// README: Tests for the coordinate guard merge rules.
package geo

import "testing"

func TestMergePreservesValidHeld(t *testing.T) {
	held := Coordinate{Lng: 72.8777, Lat: 19.0760, Provenance: ProvenanceOrderField}
	incoming := Coordinate{Lng: 0, Lat: 0}

	got, preserved := Merge(held, incoming)
	if !preserved {
		t.Fatal("expected preservation")
	}
	if got.Lng != held.Lng || got.Lat != held.Lat {
		t.Fatalf("got %+v, want held coordinates %+v", got, held)
	}
	if got.Provenance != ProvenancePreserved {
		t.Fatalf("provenance = %s, want %s", got.Provenance, ProvenancePreserved)
	}
}

func TestMergeValidIncomingWins(t *testing.T) {
	held := Coordinate{Lng: 72.8777, Lat: 19.0760}
	incoming := Coordinate{Lng: 72.9, Lat: 19.1, Provenance: ProvenanceOrderField}

	got, preserved := Merge(held, incoming)
	if preserved {
		t.Fatal("valid incoming must not be preserved over")
	}
	if got != incoming {
		t.Fatalf("got %+v, want %+v", got, incoming)
	}
}

func TestMergeBothInvalid(t *testing.T) {
	held := Coordinate{}
	incoming := Coordinate{Lng: 200, Lat: 10}

	got, preserved := Merge(held, incoming)
	if preserved {
		t.Fatal("nothing valid to preserve")
	}
	if got.Valid() {
		t.Fatalf("merge of two invalid pairs produced valid %+v", got)
	}
}
